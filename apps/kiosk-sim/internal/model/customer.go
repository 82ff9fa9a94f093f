package model

import (
	"time"

	"github.com/Harshitk-cp/smartcart/libs/wire"
)

// DateLayout is the wire format of birthdays.
const DateLayout = "2006-01-02"

// User is a registered customer.
type User struct {
	ID         string
	Name       string
	Phone      string
	Birthday   time.Time
	FaceDigest string
	CreatedAt  time.Time
	LastVisit  time.Time
}

// Wire converts the user to its public profile.
func (u *User) Wire() *wire.User {
	out := &wire.User{
		ID:    u.ID,
		Name:  u.Name,
		Phone: u.Phone,
	}
	if !u.Birthday.IsZero() {
		out.Birthday = u.Birthday.Format(DateLayout)
	}
	if !u.CreatedAt.IsZero() {
		out.CreatedAt = u.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !u.LastVisit.IsZero() {
		out.LastVisit = u.LastVisit.UTC().Format(time.RFC3339)
	}
	return out
}

// Transaction is a completed checkout.
type Transaction struct {
	ID            string
	UserID        string
	UserName      string
	Items         []wire.CartItem
	TotalQuantity int
	TotalAmount   float64
	CreatedAt     time.Time
}

// Wire converts the transaction to its API form.
func (t *Transaction) Wire() wire.Transaction {
	return wire.Transaction{
		ID:            t.ID,
		Date:          t.CreatedAt.UTC().Format(time.RFC3339),
		Items:         t.Items,
		TotalQuantity: t.TotalQuantity,
		TotalAmount:   t.TotalAmount,
	}
}

// ParseDate parses an optional YYYY-MM-DD date; empty yields the zero time.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(DateLayout, s)
}
