// Package session keeps one auth flow per browser. A flow is created on the first request that
// carries no (or an unknown) flow cookie and is discarded after it has been idle for the TTL.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"accountability-assistant/backend/internal/authflow"
)

// ErrNoFactory is returned by Store.Create when the store has no provider factory.
var ErrNoFactory = errors.New("session: no identity provider factory")

// Flow is one browser's auth flow.
type Flow struct {
	ID         string
	Controller *authflow.Controller
	// Provider is the identity provider instance bound to this flow only.
	Provider  authflow.IdentityProvider
	CreatedAt time.Time

	mu       sync.Mutex
	lastSeen time.Time
}

// LastSeen returns when the flow was last used.
func (f *Flow) LastSeen() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSeen
}

func (f *Flow) touch(now time.Time) {
	f.mu.Lock()
	f.lastSeen = now
	f.mu.Unlock()
}

// ProviderFactory returns a fresh, signed-out identity provider for a new flow.
type ProviderFactory func() authflow.IdentityProvider

// Store is a TTL registry of flows. Evicted flows have their controller closed.
type Store struct {
	flows    *cache.Cache
	group    singleflight.Group
	factory  ProviderFactory
	dir      authflow.ProfileDirectory
	ctrlOpts []authflow.Option
	log      *zap.Logger
	now      func() time.Time
	newID    func() string
}

// Option configures a Store.
type Option func(*Store)

// WithControllerOptions passes opts to every controller the store creates.
func WithControllerOptions(opts ...authflow.Option) Option {
	return func(s *Store) { s.ctrlOpts = append(s.ctrlOpts, opts...) }
}

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// NewStore returns a store whose flows expire after ttl of inactivity.
func NewStore(factory ProviderFactory, dir authflow.ProfileDirectory, ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		flows:   cache.New(ttl, ttl/2),
		factory: factory,
		dir:     dir,
		log:     zap.NewNop(),
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.flows.OnEvicted(func(id string, v interface{}) {
		if f, ok := v.(*Flow); ok {
			f.Controller.Close()
			s.log.Debug("session: flow evicted", zap.String("flow_id", id))
		}
	})
	return s
}

// Get returns the flow for id and extends its lifetime.
func (s *Store) Get(id string) (*Flow, bool) {
	if id == "" {
		return nil, false
	}
	v, ok := s.flows.Get(id)
	if !ok {
		return nil, false
	}
	f := v.(*Flow)
	f.touch(s.now())
	s.flows.SetDefault(id, f)
	return f, true
}

// Create starts a new flow with its own provider and controller.
func (s *Store) Create(ctx context.Context) (*Flow, error) {
	if s.factory == nil {
		return nil, ErrNoFactory
	}
	idp := s.factory()
	ctrl := authflow.NewController(idp, s.dir, s.ctrlOpts...)
	if err := ctrl.Init(ctx); err != nil {
		ctrl.Close()
		return nil, err
	}
	now := s.now()
	f := &Flow{ID: s.newID(), Controller: ctrl, Provider: idp, CreatedAt: now, lastSeen: now}
	s.flows.SetDefault(f.ID, f)
	s.log.Debug("session: flow created", zap.String("flow_id", f.ID))
	return f, nil
}

// Resolve returns the flow for id, creating one when id is empty or unknown. Concurrent calls
// presenting the same unknown id share a single new flow. created reports whether the caller
// must hand the new flow id to the browser.
func (s *Store) Resolve(ctx context.Context, id string) (f *Flow, created bool, err error) {
	if f, ok := s.Get(id); ok {
		return f, false, nil
	}
	if id == "" {
		// Without a cookie nothing ties two requests to one browser, so each gets its own flow.
		f, err := s.Create(ctx)
		return f, err == nil, err
	}
	v, err, _ := s.group.Do(id, func() (interface{}, error) {
		return s.Create(ctx)
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*Flow), true, nil
}

// Delete discards the flow for id and closes its controller.
func (s *Store) Delete(id string) {
	s.flows.Delete(id)
}

// Len returns the number of live flows, including expired ones not yet swept.
func (s *Store) Len() int {
	return s.flows.ItemCount()
}

// Flush discards every flow.
func (s *Store) Flush() {
	for id := range s.flows.Items() {
		s.flows.Delete(id)
	}
}
