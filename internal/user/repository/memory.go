package repository

import (
	"context"
	"strings"
	"sync"

	"accountability-assistant/backend/internal/user/domain"
)

// MemoryRepository is a process-local user store with unique phone and email indexes.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.User
	byEmail map[string]string
	byPhone map[string]string
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]string),
		byPhone: make(map[string]string),
	}
}

// GetByID returns a copy of the user with id.
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clone(r.byID[id]), nil
}

// GetByEmail returns a copy of the user with email (case-insensitive).
func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clone(r.byID[r.byEmail[emailKey(email)]]), nil
}

// GetByPhone returns a copy of the user with phone.
func (r *MemoryRepository) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clone(r.byID[r.byPhone[phone]]), nil
}

// Create stores u. The user must have ID set.
func (r *MemoryRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkUniqueLocked(u); err != nil {
		return err
	}
	r.putLocked(u)
	return nil
}

// Update replaces the stored user with u, reindexing phone and email.
func (r *MemoryRepository) Update(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.byID[u.ID]
	if !ok {
		return nil
	}
	if err := r.checkUniqueLocked(u); err != nil {
		return err
	}
	delete(r.byEmail, emailKey(prev.Email))
	delete(r.byPhone, prev.Phone)
	r.putLocked(u)
	return nil
}

func (r *MemoryRepository) checkUniqueLocked(u *domain.User) error {
	if id, ok := r.byPhone[u.Phone]; ok && u.Phone != "" && id != u.ID {
		return ErrPhoneTaken
	}
	if id, ok := r.byEmail[emailKey(u.Email)]; ok && u.Email != "" && id != u.ID {
		return ErrEmailTaken
	}
	return nil
}

func (r *MemoryRepository) putLocked(u *domain.User) {
	cp := *u
	r.byID[u.ID] = &cp
	if u.Email != "" {
		r.byEmail[emailKey(u.Email)] = u.ID
	}
	if u.Phone != "" {
		r.byPhone[u.Phone] = u.ID
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func clone(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}
