package repository

import (
	"context"
	"errors"

	"accountability-assistant/backend/internal/user/domain"
)

var (
	// ErrPhoneTaken is returned when another user already has the phone.
	ErrPhoneTaken = errors.New("user: phone already registered")
	// ErrEmailTaken is returned when another user already has the email.
	ErrEmailTaken = errors.New("user: email already registered")
)

// Repository defines persistence for users. Getters return nil, nil when no user matches.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, u *domain.User) error
}
