// Package local is a self-hosted authflow.IdentityProvider for development and tests: accounts
// live in a user repository, codes are issued by the otp service, and Google sign-in is
// simulated. A Backend is shared by the process; each browser flow gets its own Provider.
package local

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"accountability-assistant/backend/internal/authflow"
	"accountability-assistant/backend/internal/otp"
	userdomain "accountability-assistant/backend/internal/user/domain"
	userrepo "accountability-assistant/backend/internal/user/repository"
)

const oauthCodeTTL = 5 * time.Minute

// Backend holds the state shared by every Provider.
type Backend struct {
	users  userrepo.Repository
	codes  *otp.Service
	oauth  *cache.Cache // simulated authorization code -> google account email
	log    *zap.Logger
	now    func() time.Time
	nextID func() string
}

// NewBackend returns a backend over users and codes.
func NewBackend(users userrepo.Repository, codes *otp.Service, log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	return &Backend{
		users:  users,
		codes:  codes,
		oauth:  cache.New(oauthCodeTTL, time.Minute),
		log:    log,
		now:    time.Now,
		nextID: func() string { return uuid.NewString() },
	}
}

// NewProvider returns a signed-out provider for one browser flow.
func (b *Backend) NewProvider() *Provider {
	return &Provider{b: b, listeners: make(map[int]authflow.SessionListener)}
}

// findOrCreate returns the user found by lookup or creates one from tmpl.
func (b *Backend) findOrCreate(ctx context.Context, lookup func() (*userdomain.User, error), tmpl userdomain.User) (*userdomain.User, error) {
	u, err := lookup()
	if err != nil {
		return nil, err
	}
	if u != nil {
		return u, nil
	}
	now := b.now().UTC()
	tmpl.ID = b.nextID()
	tmpl.CreatedAt, tmpl.UpdatedAt = now, now
	if err := b.users.Create(ctx, &tmpl); err != nil {
		if errors.Is(err, userrepo.ErrPhoneTaken) || errors.Is(err, userrepo.ErrEmailTaken) {
			// Lost a race with a concurrent sign-up for the same identity.
			u, lerr := lookup()
			if lerr == nil && u == nil {
				lerr = err
			}
			return u, lerr
		}
		return nil, err
	}
	b.log.Info("local identity: user created", zap.String("user_id", tmpl.ID), zap.String("provider", tmpl.Provider))
	return &tmpl, nil
}

// codeError maps otp failures to flow errors.
func codeError(err error) error {
	switch {
	case errors.Is(err, otp.ErrDelivery):
		return fmt.Errorf("%w: %w", authflow.ErrDelivery, err)
	case errors.Is(err, otp.ErrNoChallenge), errors.Is(err, otp.ErrMismatch), errors.Is(err, otp.ErrTooManyAttempts):
		return fmt.Errorf("%w: %w", authflow.ErrInvalidCode, err)
	default:
		return err
	}
}
