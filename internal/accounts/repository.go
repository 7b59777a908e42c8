package accounts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrDuplicateEmail is returned when an account already exists for the email.
var ErrDuplicateEmail = errors.New("accounts: email already registered")

// Account is a registered user as stored by the stub backend.
type Account struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	PasswordHash  string    `json:"-"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"-"`
}

// Repository defines persistence operations for accounts
type Repository interface {
	Create(ctx context.Context, a *Account) error
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)
	Update(ctx context.Context, a *Account) error
}

// MemoryRepository implements Repository with an in-process map. It backs
// the development stub, which has no durability requirements.
type MemoryRepository struct {
	mu      sync.RWMutex
	byEmail map[string]*Account
	byID    map[string]*Account
	seq     int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byEmail: map[string]*Account{},
		byID:    map[string]*Account{},
	}
}

func (r *MemoryRepository) Create(ctx context.Context, a *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(a.Email)
	if _, ok := r.byEmail[key]; ok {
		return ErrDuplicateEmail
	}
	r.seq++
	now := time.Now().UTC()
	a.ID = newID(r.seq)
	a.CreatedAt = now
	a.UpdatedAt = now
	cp := *a
	r.byEmail[key] = &cp
	r.byID[a.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) Update(ctx context.Context, a *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.UpdatedAt = time.Now().UTC()
	cp := *a
	r.byEmail[strings.ToLower(a.Email)] = &cp
	r.byID[a.ID] = &cp
	return nil
}
