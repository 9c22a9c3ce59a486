package repository

import (
	"context"
	"time"

	"accountability-assistant/backend/internal/otp/domain"
)

// Repository stores outstanding challenges.
type Repository interface {
	Put(ctx context.Context, c *domain.Challenge) error
	// Get returns the challenge for key, or nil if absent or expired.
	Get(ctx context.Context, key string) (*domain.Challenge, error)
	// IncrementAttempts records a failed verification and returns the new count.
	IncrementAttempts(ctx context.Context, key string) (int, error)
	Delete(ctx context.Context, key string) error
}

// DefaultChallengeTTL is how long a code stays valid.
const DefaultChallengeTTL = 10 * time.Minute
