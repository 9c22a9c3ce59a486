package repository

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"accountability-assistant/backend/internal/otp/domain"
)

// MemoryRepository keeps challenges in a go-cache with per-item expiry.
type MemoryRepository struct {
	mu    sync.Mutex // guards writes so attempt updates do not resurrect replaced challenges
	cache *cache.Cache
	now   func() time.Time
}

// NewMemoryRepository returns an empty repository that sweeps expired challenges every minute.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		cache: cache.New(DefaultChallengeTTL, time.Minute),
		now:   time.Now,
	}
}

// Put stores a copy of c until c.ExpiresAt.
func (r *MemoryRepository) Put(ctx context.Context, c *domain.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ttl := c.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		r.cache.Delete(c.Key())
		return nil
	}
	cp := *c
	r.cache.Set(c.Key(), &cp, ttl)
	return nil
}

// Get returns a copy of the challenge for key.
func (r *MemoryRepository) Get(ctx context.Context, key string) (*domain.Challenge, error) {
	v, ok := r.cache.Get(key)
	if !ok {
		return nil, nil
	}
	c := *v.(*domain.Challenge)
	if !c.ExpiresAt.After(r.now()) {
		r.cache.Delete(key)
		return nil, nil
	}
	return &c, nil
}

// IncrementAttempts bumps the attempt counter of key. Returns 0 if the challenge is gone.
func (r *MemoryRepository) IncrementAttempts(ctx context.Context, key string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, exp, ok := r.cache.GetWithExpiration(key)
	if !ok {
		return 0, nil
	}
	c := *v.(*domain.Challenge)
	c.Attempts++
	ttl := time.Until(exp)
	if exp.IsZero() || ttl <= 0 {
		ttl = c.ExpiresAt.Sub(r.now())
	}
	if ttl <= 0 {
		r.cache.Delete(key)
		return c.Attempts, nil
	}
	r.cache.Set(key, &c, ttl)
	return c.Attempts, nil
}

// Delete removes the challenge for key.
func (r *MemoryRepository) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Delete(key)
	return nil
}
