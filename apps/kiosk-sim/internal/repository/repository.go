package repository

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/smartcart/apps/kiosk-sim/internal/model"
)

var (
	// ErrUserNotFound is returned when a customer is not found
	ErrUserNotFound = errors.New("user not found")

	// ErrPhoneTaken is returned when a phone number is already registered
	ErrPhoneTaken = errors.New("phone number already registered")
)

// UserRepository defines the interface for customer storage
type UserRepository interface {
	// Create stores a new customer; the phone number must be unused
	Create(ctx context.Context, user *model.User) error

	// GetByID retrieves a customer by ID
	GetByID(ctx context.Context, id string) (*model.User, error)

	// GetByPhone retrieves a customer by phone number
	GetByPhone(ctx context.Context, phone string) (*model.User, error)

	// GetByFace retrieves the customer whose face digest matches
	GetByFace(ctx context.Context, digest string) (*model.User, error)

	// Update replaces an existing customer
	Update(ctx context.Context, user *model.User) error

	// Delete deletes a customer
	Delete(ctx context.Context, id string) error

	// List returns every customer, oldest first
	List(ctx context.Context) ([]*model.User, error)
}

// TransactionRepository defines the interface for checkout records
type TransactionRepository interface {
	// Create stores a completed checkout
	Create(ctx context.Context, tx *model.Transaction) error

	// ListByUser returns a customer's transactions, newest first
	ListByUser(ctx context.Context, userID string) ([]*model.Transaction, error)

	// List returns every transaction
	List(ctx context.Context) ([]*model.Transaction, error)

	// DeleteByUser removes all transactions of a customer
	DeleteByUser(ctx context.Context, userID string) error
}
