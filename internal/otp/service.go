package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"accountability-assistant/backend/internal/devotp"
	"accountability-assistant/backend/internal/otp/domain"
	"accountability-assistant/backend/internal/otp/repository"
)

const defaultMaxAttempts = 5

var (
	// ErrDelivery: the code could not be handed to the SMS or email transport.
	ErrDelivery = errors.New("otp: delivery failed")
	// ErrNoChallenge: no live code for the target (never sent, expired or already used).
	ErrNoChallenge = errors.New("otp: no active code")
	// ErrMismatch: the code does not match.
	ErrMismatch = errors.New("otp: code mismatch")
	// ErrTooManyAttempts: the challenge was discarded after repeated failures.
	ErrTooManyAttempts = errors.New("otp: too many attempts")
)

// Sender delivers a code to a target over one channel.
type Sender interface {
	Send(ctx context.Context, target, code string) error
}

// Service issues and checks codes.
type Service struct {
	repo        repository.Repository
	senders     map[domain.Channel]Sender
	dev         devotp.Store
	ttl         time.Duration
	maxAttempts int
	log         *zap.Logger
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithSender routes codes for ch through s.
func WithSender(ch domain.Channel, s Sender) Option {
	return func(svc *Service) { svc.senders[ch] = s }
}

// WithDevStore makes the service store plain codes in dev instead of sending them.
func WithDevStore(dev devotp.Store) Option {
	return func(svc *Service) { svc.dev = dev }
}

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(svc *Service) {
		if l != nil {
			svc.log = l
		}
	}
}

// NewService returns a service persisting challenges in repo.
func NewService(repo repository.Repository, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		senders:     make(map[domain.Channel]Sender),
		ttl:         repository.DefaultChallengeTTL,
		maxAttempts: defaultMaxAttempts,
		log:         zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue creates a fresh code for purpose and target, replacing any earlier one, and delivers it.
func (s *Service) Issue(ctx context.Context, purpose, target string, ch domain.Channel) error {
	code, err := GenerateOTP()
	if err != nil {
		return err
	}
	now := s.now()
	c := &domain.Challenge{
		Purpose:   purpose,
		Target:    target,
		Channel:   ch,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	c.CodeHash = HashOTP(c.Key(), code)
	if err := s.repo.Put(ctx, c); err != nil {
		return err
	}

	if s.dev != nil {
		s.dev.Put(ctx, target, code, c.ExpiresAt)
		s.log.Info("otp: code stored for dev retrieval", zap.String("purpose", purpose), zap.String("channel", string(ch)))
		return nil
	}
	sender, ok := s.senders[ch]
	if !ok {
		_ = s.repo.Delete(ctx, c.Key())
		return fmt.Errorf("%w: no %s sender configured", ErrDelivery, ch)
	}
	if err := sender.Send(ctx, target, code); err != nil {
		_ = s.repo.Delete(ctx, c.Key())
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	return nil
}

// Verify checks code for purpose and target. A matching code is consumed; after maxAttempts
// failures the challenge is discarded.
func (s *Service) Verify(ctx context.Context, purpose, target, code string) error {
	key := domain.Key(purpose, target)
	c, err := s.repo.Get(ctx, key)
	if err != nil {
		return err
	}
	if c == nil {
		return ErrNoChallenge
	}
	if !OTPEqual(key, code, c.CodeHash) {
		n, err := s.repo.IncrementAttempts(ctx, key)
		if err != nil {
			return err
		}
		if n >= s.maxAttempts {
			_ = s.repo.Delete(ctx, key)
			return ErrTooManyAttempts
		}
		return ErrMismatch
	}
	return s.repo.Delete(ctx, key)
}
