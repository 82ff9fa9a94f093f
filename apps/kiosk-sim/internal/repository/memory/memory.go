package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Harshitk-cp/smartcart/apps/kiosk-sim/internal/model"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-sim/internal/repository"
)

var (
	ErrUserNotFound = repository.ErrUserNotFound
	ErrPhoneTaken   = repository.ErrPhoneTaken
)

var (
	_ repository.UserRepository        = (*UserRepository)(nil)
	_ repository.TransactionRepository = (*TransactionRepository)(nil)
)

// UserRepository implements repository.UserRepository with in-memory storage
type UserRepository struct {
	users map[string]*model.User
	mu    sync.RWMutex
}

// NewUserRepository creates a new memory-based customer repository
func NewUserRepository() *UserRepository {
	return &UserRepository{
		users: make(map[string]*model.User),
	}
}

// Create adds a new customer to the repository
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Phone == user.Phone {
			return ErrPhoneTaken
		}
	}

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.LastVisit.IsZero() {
		user.LastVisit = now
	}

	userCopy := *user
	r.users[user.ID] = &userCopy
	return nil
}

// GetByID retrieves a customer by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[id]
	if !exists {
		return nil, ErrUserNotFound
	}

	// Return a copy to prevent concurrent modification
	userCopy := *user
	return &userCopy, nil
}

// GetByPhone retrieves a customer by phone number
func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.Phone == phone })
}

// GetByFace retrieves the customer registered with the given face digest
func (r *UserRepository) GetByFace(ctx context.Context, digest string) (*model.User, error) {
	if digest == "" {
		return nil, ErrUserNotFound
	}
	return r.find(func(u *model.User) bool { return u.FaceDigest == digest })
}

func (r *UserRepository) find(match func(*model.User) bool) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if match(u) {
			userCopy := *u
			return &userCopy, nil
		}
	}
	return nil, ErrUserNotFound
}

// Update updates an existing customer
func (r *UserRepository) Update(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.ID]; !exists {
		return ErrUserNotFound
	}
	for id, u := range r.users {
		if id != user.ID && u.Phone == user.Phone {
			return ErrPhoneTaken
		}
	}

	userCopy := *user
	r.users[user.ID] = &userCopy
	return nil
}

// Delete deletes a customer
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[id]; !exists {
		return ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

// List returns every customer, oldest first
func (r *UserRepository) List(ctx context.Context) ([]*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]*model.User, 0, len(r.users))
	for _, u := range r.users {
		userCopy := *u
		users = append(users, &userCopy)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// TransactionRepository implements repository.TransactionRepository with
// in-memory storage
type TransactionRepository struct {
	transactions []*model.Transaction
	mu           sync.RWMutex
}

// NewTransactionRepository creates a new memory-based transaction repository
func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{}
}

// Create stores a completed checkout
func (r *TransactionRepository) Create(ctx context.Context, tx *model.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	txCopy := *tx
	txCopy.Items = append(txCopy.Items[:0:0], tx.Items...)
	r.transactions = append(r.transactions, &txCopy)
	return nil
}

// ListByUser returns a customer's transactions, newest first
func (r *TransactionRepository) ListByUser(ctx context.Context, userID string) ([]*model.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.Transaction
	for i := len(r.transactions) - 1; i >= 0; i-- {
		if t := r.transactions[i]; t.UserID == userID {
			txCopy := *t
			out = append(out, &txCopy)
		}
	}
	return out, nil
}

// List returns every transaction in insertion order
func (r *TransactionRepository) List(ctx context.Context) ([]*model.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Transaction, len(r.transactions))
	for i, t := range r.transactions {
		txCopy := *t
		out[i] = &txCopy
	}
	return out, nil
}

// DeleteByUser removes all transactions of a customer
func (r *TransactionRepository) DeleteByUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.transactions[:0]
	for _, t := range r.transactions {
		if t.UserID != userID {
			kept = append(kept, t)
		}
	}
	r.transactions = kept
	return nil
}
