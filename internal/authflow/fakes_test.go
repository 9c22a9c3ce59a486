package authflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"accountability-assistant/backend/internal/authflow/domain"
)

const validCode = "123456"

// fakeIDP is an in-memory identity provider. Codes equal to validCode verify.
type fakeIDP struct {
	mu          sync.Mutex
	session     *domain.Session
	byPhone     map[string]*domain.Session
	byEmail     map[string]*domain.Session
	listeners   map[int]SessionListener
	nextID      int
	nextUser    int
	pendingPh   string
	sent        []string
	emailSent   []string
	updates     []Attributes
	verifies    []VerifyRequest
	sendErr     error
	updateErr   error
	signOutErr  error
	sendStarted chan struct{}
	sendGate    chan struct{}
	phoneGates  map[string]*gate
}

// gate holds a SendOTP for one phone until released.
type gate struct {
	started chan struct{}
	release chan struct{}
}

func (f *fakeIDP) holdSend(phone string) *gate {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.phoneGates == nil {
		f.phoneGates = make(map[string]*gate)
	}
	g := &gate{started: make(chan struct{}), release: make(chan struct{})}
	f.phoneGates[phone] = g
	return g
}

func newFakeIDP() *fakeIDP {
	return &fakeIDP{
		byPhone:   make(map[string]*domain.Session),
		byEmail:   make(map[string]*domain.Session),
		listeners: make(map[int]SessionListener),
	}
}

func (f *fakeIDP) addUser(s *domain.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.Phone != "" {
		f.byPhone[s.Phone] = s
	}
	if s.Email != "" {
		f.byEmail[s.Email] = s
	}
}

func (f *fakeIDP) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent) + len(f.emailSent) + len(f.updates) + len(f.verifies)
}

func (f *fakeIDP) SendOTP(ctx context.Context, phone string) error {
	if f.sendStarted != nil {
		close(f.sendStarted)
	}
	if f.sendGate != nil {
		<-f.sendGate
	}
	f.mu.Lock()
	g := f.phoneGates[phone]
	f.mu.Unlock()
	if g != nil {
		close(g.started)
		<-g.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, phone)
	return nil
}

func (f *fakeIDP) SendEmailOTP(ctx context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.emailSent = append(f.emailSent, email)
	return nil
}

func (f *fakeIDP) VerifyOTP(ctx context.Context, req VerifyRequest) (*domain.Session, error) {
	f.mu.Lock()
	f.verifies = append(f.verifies, req)
	if req.Code != validCode {
		f.mu.Unlock()
		return nil, fmt.Errorf("verify: %w", ErrInvalidCode)
	}
	switch req.Purpose {
	case PurposeSignIn:
		u, ok := f.byPhone[req.Phone]
		if !ok {
			f.nextUser++
			u = &domain.Session{ID: fmt.Sprintf("user-%d", f.nextUser), Phone: req.Phone, Provider: ProviderPhone}
			f.byPhone[req.Phone] = u
		}
		f.session = u.Clone()
	case PurposePhoneChange:
		if f.session == nil || f.pendingPh != req.Phone {
			f.mu.Unlock()
			return nil, ErrInvalidCode
		}
		f.session.Phone = req.Phone
		f.pendingPh = ""
	case PurposeEmail:
		u, ok := f.byEmail[req.Email]
		if !ok {
			f.nextUser++
			u = &domain.Session{ID: fmt.Sprintf("user-%d", f.nextUser), Email: req.Email, Provider: ProviderEmail}
			f.byEmail[req.Email] = u
		}
		f.session = u.Clone()
	}
	s := f.session.Clone()
	f.mu.Unlock()
	f.fire(s)
	return s, nil
}

func (f *fakeIDP) Session(ctx context.Context) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session.Clone(), nil
}

func (f *fakeIDP) OnSessionChange(fn SessionListener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *fakeIDP) BeginOAuth(ctx context.Context, provider, redirectURL string) (string, error) {
	return "https://idp.test/authorize?provider=" + provider + "&redirect_to=" + redirectURL, nil
}

// completeOAuth simulates the browser returning from Google.
func (f *fakeIDP) completeOAuth(email, name string) {
	f.mu.Lock()
	f.nextUser++
	f.session = &domain.Session{ID: fmt.Sprintf("user-%d", f.nextUser), Email: email, Name: name, Provider: ProviderGoogle}
	s := f.session.Clone()
	f.mu.Unlock()
	f.fire(s)
}

func (f *fakeIDP) UpdateSession(ctx context.Context, attrs Attributes) (*domain.Session, error) {
	f.mu.Lock()
	f.updates = append(f.updates, attrs)
	if f.updateErr != nil {
		f.mu.Unlock()
		return nil, f.updateErr
	}
	if f.session == nil {
		f.mu.Unlock()
		return nil, errors.New("not signed in")
	}
	if attrs.Email != "" {
		f.session.Email = attrs.Email
	}
	if attrs.Name != "" {
		f.session.Name = attrs.Name
	}
	if attrs.Phone != "" {
		f.pendingPh = attrs.Phone
		f.sent = append(f.sent, attrs.Phone)
	}
	s := f.session.Clone()
	f.mu.Unlock()
	f.fire(s)
	return s, nil
}

func (f *fakeIDP) SignOut(ctx context.Context) error {
	f.mu.Lock()
	f.session = nil
	err := f.signOutErr
	f.mu.Unlock()
	f.fire(nil)
	return err
}

func (f *fakeIDP) fire(s *domain.Session) {
	f.mu.Lock()
	ls := make([]SessionListener, 0, len(f.listeners))
	for _, l := range f.listeners {
		ls = append(ls, l)
	}
	f.mu.Unlock()
	for _, l := range ls {
		l(s.Clone())
	}
}

// fakeDirectory is an in-memory profile directory.
type fakeDirectory struct {
	mu        sync.Mutex
	profiles  map[string]ProfileMatch
	notified  []Notification
	checks    int
	checkErr  error
	notifyErr error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{profiles: make(map[string]ProfileMatch)}
}

func (d *fakeDirectory) Check(ctx context.Context, phone string) (ProfileMatch, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checks++
	if d.checkErr != nil {
		return ProfileMatch{}, d.checkErr
	}
	if m, ok := d.profiles[phone]; ok {
		return m, nil
	}
	return ProfileMatch{Account: domain.AccountNone}, nil
}

func (d *fakeDirectory) Notify(ctx context.Context, n Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.notifyErr != nil {
		return d.notifyErr
	}
	d.notified = append(d.notified, n)
	return nil
}

func (d *fakeDirectory) notifications() []Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Notification(nil), d.notified...)
}

type memRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *memRecorder) Record(ctx context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *memRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
