// Package devotp keeps plain sign-in codes for developer retrieval (GET /dev/otp). It is only
// wired when OTP_RETURN_TO_CLIENT is enabled outside production.
package devotp

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// Store holds the latest plain code per target (E.164 phone or email).
type Store interface {
	// Put stores code for target until expiresAt, replacing any earlier code.
	Put(ctx context.Context, target, code string, expiresAt time.Time)
	// Get returns the code for target if present and not expired.
	Get(ctx context.Context, target string) (code string, ok bool)
}

// MemoryStore is a go-cache backed Store.
type MemoryStore struct {
	c *cache.Cache
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{c: cache.New(10*time.Minute, time.Minute)}
}

// Put stores code for target until expiresAt. A past expiresAt removes the entry.
func (s *MemoryStore) Put(ctx context.Context, target, code string, expiresAt time.Time) {
	key := normalize(target)
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		s.c.Delete(key)
		return
	}
	s.c.Set(key, code, ttl)
}

// Get returns the code for target.
func (s *MemoryStore) Get(ctx context.Context, target string) (string, bool) {
	v, ok := s.c.Get(normalize(target))
	if !ok {
		return "", false
	}
	return v.(string), true
}

func normalize(target string) string {
	return strings.ToLower(strings.TrimSpace(target))
}
