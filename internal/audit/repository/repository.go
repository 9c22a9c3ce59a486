package repository

import (
	"context"

	"accountability-assistant/backend/internal/audit/domain"
)

// Repository defines persistence for auth events.
type Repository interface {
	Create(ctx context.Context, e *domain.AuthEvent) error
	// ListByUser returns the user's most recent events, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.AuthEvent, error)
}
