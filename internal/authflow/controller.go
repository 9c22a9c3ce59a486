// Package authflow implements the sign-in/sign-up state machine: which form a partially
// authenticated user sees next, and the operations that move them through phone verification,
// OTP confirmation, Google linking and profile completion.
package authflow

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"accountability-assistant/backend/internal/authflow/domain"
	"accountability-assistant/backend/internal/phone"
)

const instrumentationName = "accountability-assistant/backend/internal/authflow"

// Session.Provider values.
const (
	ProviderPhone  = "phone"
	ProviderEmail  = "email"
	ProviderGoogle = "google"
)

// Result is what VerifyOTP reports to the form: the flow keeps its step on failure so the
// error can be shown inline.
type Result struct {
	Success      bool
	ErrorMessage string
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRecorder sets where flow events are recorded.
func WithRecorder(r EventRecorder) Option {
	return func(c *Controller) {
		if r != nil {
			c.recorder = r
		}
	}
}

// Controller owns one user's auth flow. It is safe for concurrent use; no lock is held across
// calls to the identity provider or the profile directory.
type Controller struct {
	idp      IdentityProvider
	dir      ProfileDirectory
	log      *zap.Logger
	recorder EventRecorder
	tracer   trace.Tracer
	ops      metric.Int64Counter

	mu           sync.Mutex
	session      *domain.Session
	pending      domain.PendingAction
	forceProfile bool
	started      uint64 // sequence number of the most recently started operation
	applied      uint64 // results of operations numbered at or below this are stale
	inflight     int
	errMsg       string
	unsubscribe  func()
}

// NewController returns a controller bound to idp and dir. Call Init before use and Close when
// the flow is discarded.
func NewController(idp IdentityProvider, dir ProfileDirectory, opts ...Option) *Controller {
	c := &Controller{
		idp:      idp,
		dir:      dir,
		log:      zap.NewNop(),
		recorder: noopRecorder{},
		tracer:   otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(c)
	}
	ops, err := otel.Meter(instrumentationName).Int64Counter("authflow.operations",
		metric.WithDescription("Auth flow operations by name and outcome."))
	if err != nil {
		c.log.Warn("authflow: operations counter unavailable", zap.Error(err))
		ops = noop.Int64Counter{}
	}
	c.ops = ops
	return c
}

// Init subscribes to session changes and adopts the provider's current session, if any.
func (c *Controller) Init(ctx context.Context) error {
	unsub := c.idp.OnSessionChange(c.handleSessionChange)
	c.mu.Lock()
	c.unsubscribe = unsub
	c.mu.Unlock()
	s, err := c.idp.Session(ctx)
	if err != nil {
		return classify(err, ErrNetwork)
	}
	c.handleSessionChange(s)
	return nil
}

// Close unsubscribes from session changes.
func (c *Controller) Close() {
	c.mu.Lock()
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// BeginPhoneSignIn sends an OTP to the phone built from rawPhone and countryCode. The profile
// directory is consulted first; if it is unreachable the phone is treated as unknown.
func (c *Controller) BeginPhoneSignIn(ctx context.Context, rawPhone, countryCode string) (err error) {
	ctx, snap, done := c.start(ctx, "begin_phone_sign_in")
	defer func() { err = done(err) }()

	e164, err := composePhone(rawPhone, countryCode)
	if err != nil {
		return err
	}
	match := c.lookup(ctx, e164)
	if err := c.idp.SendOTP(ctx, e164); err != nil {
		return classify(err, ErrDelivery)
	}
	action, err := domain.NewOTPInitiated(e164, match.Account, match.Name)
	if err != nil {
		return Invalid(err.Error())
	}
	if err := c.commit(snap, func() {
		c.pending = action
		c.forceProfile = false
	}); err != nil {
		return err
	}
	c.record(ctx, Event{Type: EventOTPSent, Phone: phone.Mask(e164), Detail: string(match.Account)})
	return nil
}

// BeginEmailSignIn sends a sign-in code to email.
func (c *Controller) BeginEmailSignIn(ctx context.Context, email string) (err error) {
	ctx, snap, done := c.start(ctx, "begin_email_sign_in")
	defer func() { err = done(err) }()

	email, err = normalizeEmail(email)
	if err != nil {
		return err
	}
	if err := c.idp.SendEmailOTP(ctx, email); err != nil {
		return classify(err, ErrDelivery)
	}
	action, err := domain.NewLoginEmail(email)
	if err != nil {
		return Invalid(err.Error())
	}
	if err := c.commit(snap, func() {
		c.pending = action
		c.forceProfile = false
	}); err != nil {
		return err
	}
	c.record(ctx, Event{Type: EventEmailOTPSent})
	return nil
}

// VerifyOTP submits code for the pending action. A wrong code leaves the flow where it is.
// With nothing awaiting a code the flow is restarted and ErrNoPendingAction returned.
func (c *Controller) VerifyOTP(ctx context.Context, code string) (Result, error) {
	err := c.verifyOTP(ctx, strings.TrimSpace(code))
	if err != nil {
		return Result{ErrorMessage: Message(err)}, err
	}
	return Result{Success: true}, nil
}

func (c *Controller) verifyOTP(ctx context.Context, code string) (err error) {
	ctx, snap, done := c.start(ctx, "verify_otp")
	defer func() { err = done(err) }()

	var req VerifyRequest
	switch p := snap.pending.(type) {
	case domain.OTPInitiated:
		req = VerifyRequest{Purpose: PurposeSignIn, Phone: p.Phone}
	case domain.GoogleNeedsOTP:
		req = VerifyRequest{Purpose: PurposePhoneChange, Phone: p.Phone}
	case domain.LoginEmail:
		req = VerifyRequest{Purpose: PurposeEmail, Email: p.Email}
	default:
		c.mu.Lock()
		if snap.seq > c.applied {
			c.resetLocked()
		}
		c.mu.Unlock()
		return ErrNoPendingAction
	}
	if code == "" {
		return Invalid("Please enter the verification code.")
	}
	req.Code = code

	sess, err := c.idp.VerifyOTP(ctx, req)
	if err != nil {
		err = classify(err, ErrInvalidCode)
		if errors.Is(err, ErrInvalidCode) {
			c.record(ctx, Event{Type: EventOTPRejected, Phone: phone.Mask(req.Phone)})
		}
		return err
	}
	if sess == nil {
		return fmt.Errorf("%w: provider returned no session", ErrInvalidCode)
	}
	c.handleSessionChange(sess)

	var apply func()
	switch p := snap.pending.(type) {
	case domain.OTPInitiated:
		match := p.Match
		if match != domain.AccountClosed {
			c.notify(ctx, Notification{UserID: sess.ID, Phone: p.Phone, Account: domain.AccountOpen, Email: sess.Email})
			match = domain.AccountOpen
		}
		if p.DisplayName != "" && sess.Name == "" {
			c.applyDisplayName(ctx, p.DisplayName)
		}
		if match == domain.AccountClosed || sess.Email != "" {
			apply = func() {
				c.pending = nil
				c.forceProfile = false
			}
		} else {
			verified := p.Verified(match)
			apply = func() {
				c.pending = verified
				c.forceProfile = true
			}
		}
	case domain.GoogleNeedsOTP:
		if p.Match != domain.AccountClosed {
			c.notify(ctx, Notification{UserID: sess.ID, Phone: p.Phone, Account: domain.AccountOpen, Email: sess.Email})
		}
		apply = func() {
			c.pending = nil
			c.forceProfile = false
		}
	case domain.LoginEmail:
		apply = func() { c.pending = nil }
	}
	if err := c.commit(snap, apply); err != nil {
		return err
	}
	c.record(ctx, Event{Type: EventOTPVerified, UserID: sess.ID, Phone: phone.Mask(req.Phone), Detail: string(req.Purpose)})
	return nil
}

// CompleteProfileWithEmail attaches email to the account after phone verification.
func (c *Controller) CompleteProfileWithEmail(ctx context.Context, email string) (err error) {
	ctx, snap, done := c.start(ctx, "complete_profile_with_email")
	defer func() { err = done(err) }()

	email, err = normalizeEmail(email)
	if err != nil {
		return err
	}
	sess := snap.session
	var ph string
	var match domain.AccountMatch
	switch p := snap.pending.(type) {
	case domain.OTPVerified:
		ph, match = p.Phone, p.Match
	case nil:
		if sess == nil || sess.Email != "" || sess.Phone == "" {
			return ErrNoPendingAction
		}
		ph = sess.Phone
		// Returning user: the directory decides whether this phone's profile is still open.
		m, err := c.dir.Check(ctx, ph)
		if err != nil {
			return classify(err, ErrNetwork)
		}
		match = m.Account
	default:
		return ErrNoPendingAction
	}
	if sess == nil {
		// The verification's session update may not have reached us yet.
		sess, err = c.idp.Session(ctx)
		if err != nil {
			return classify(err, ErrNetwork)
		}
		if sess == nil {
			return ErrNoPendingAction
		}
	}

	updated, err := c.idp.UpdateSession(ctx, Attributes{Email: email})
	if err != nil {
		return classify(err, ErrDelivery)
	}
	if updated != nil {
		c.handleSessionChange(updated)
	}
	if match != domain.AccountClosed {
		if err := c.dir.Notify(ctx, Notification{UserID: sess.ID, Phone: ph, Account: domain.AccountOpen, Email: email}); err != nil {
			return classify(err, ErrNetwork)
		}
	}
	if err := c.commit(snap, func() {
		c.pending = nil
		c.forceProfile = false
	}); err != nil {
		return err
	}
	c.record(ctx, Event{Type: EventProfileCompleted, UserID: sess.ID, Phone: phone.Mask(ph)})
	return nil
}

// BeginGoogleSignIn returns the provider URL for Google sign-in. Completion is observed through
// the session-change notification once the browser returns.
func (c *Controller) BeginGoogleSignIn(ctx context.Context, redirectURL string) (target string, err error) {
	ctx, _, done := c.start(ctx, "begin_google_sign_in")
	defer func() { err = done(err) }()

	target, err = c.idp.BeginOAuth(ctx, ProviderGoogle, redirectURL)
	if err != nil {
		return "", classify(err, ErrNetwork)
	}
	c.record(ctx, Event{Type: EventOAuthStarted, Detail: ProviderGoogle})
	return target, nil
}

// AddPhoneAfterGoogle starts attaching a phone to the current session. The provider sends an OTP
// that VerifyOTP then confirms.
func (c *Controller) AddPhoneAfterGoogle(ctx context.Context, rawPhone, countryCode string) (err error) {
	ctx, snap, done := c.start(ctx, "add_phone_after_google")
	defer func() { err = done(err) }()

	if snap.session == nil {
		return ErrNoPendingAction
	}
	e164, err := composePhone(rawPhone, countryCode)
	if err != nil {
		return err
	}
	match, err := c.dir.Check(ctx, e164)
	if err != nil {
		return classify(err, ErrNetwork)
	}
	if match.Account == domain.AccountClosed {
		c.record(ctx, Event{Type: EventPhoneInUse, UserID: snap.session.ID, Phone: phone.Mask(e164)})
		return ErrPhoneInUse
	}
	updated, err := c.idp.UpdateSession(ctx, Attributes{Phone: e164})
	if err != nil {
		return classify(err, ErrDelivery)
	}
	if updated != nil {
		c.handleSessionChange(updated)
	}
	action, err := domain.NewGoogleNeedsOTP(e164, match.Account)
	if err != nil {
		return Invalid(err.Error())
	}
	if err := c.commit(snap, func() { c.pending = action }); err != nil {
		return err
	}
	c.record(ctx, Event{Type: EventPhoneLinkRequested, UserID: snap.session.ID, Phone: phone.Mask(e164)})
	return nil
}

// Restart abandons any in-progress step. Results of operations still in flight are dropped.
func (c *Controller) Restart(ctx context.Context) {
	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()
	c.record(ctx, Event{Type: EventRestart})
}

// Logout signs out at the provider and clears local state whether or not that succeeds.
func (c *Controller) Logout(ctx context.Context) (err error) {
	ctx, snap, done := c.start(ctx, "logout")
	defer func() { err = done(err) }()

	signOutErr := c.idp.SignOut(ctx)
	c.mu.Lock()
	c.session = nil
	c.resetLocked()
	c.mu.Unlock()

	var userID string
	if snap.session != nil {
		userID = snap.session.ID
	}
	c.record(ctx, Event{Type: EventLogout, UserID: userID})
	if signOutErr != nil {
		c.log.Warn("authflow: provider sign-out failed", zap.Error(signOutErr))
		return classify(signOutErr, ErrNetwork)
	}
	return nil
}

// State returns a copy of the inputs to step derivation.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{Session: c.session.Clone(), Pending: c.pending, ForceProfileCompletion: c.forceProfile}
}

// Step returns the current derived step.
func (c *Controller) Step() domain.Step {
	return DeriveStep(c.State()).Step
}

// handleSessionChange adopts s as the current session. Sessions that break the provider's
// invariants are ignored.
func (c *Controller) handleSessionChange(s *domain.Session) {
	if s != nil {
		if err := s.Validate(); err != nil {
			c.log.Warn("authflow: ignoring invalid session", zap.Error(err))
			return
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.session
	c.session = s.Clone()
	switch {
	case s == nil:
		// Actions that only make sense with a session are void once it is gone.
		switch c.pending.(type) {
		case domain.OTPVerified, domain.GoogleNeedsPhone, domain.GoogleNeedsOTP:
			c.pending = nil
			c.applied = c.started
		}
		c.forceProfile = false
	case c.pending == nil && s.Provider == ProviderGoogle && s.Phone == "" && (prev == nil || prev.ID != s.ID):
		// A fresh OAuth session without a phone.
		c.pending = domain.GoogleNeedsPhone{}
		c.applied = c.started
	}
}

type snapshot struct {
	seq     uint64
	session *domain.Session
	pending domain.PendingAction
}

// start opens a span, marks the controller busy and captures the state the operation depends
// on. The returned func must be called exactly once with the operation's error.
func (c *Controller) start(ctx context.Context, op string) (context.Context, snapshot, func(error) error) {
	ctx, span := c.tracer.Start(ctx, "authflow."+op)
	c.mu.Lock()
	c.inflight++
	c.started++
	snap := snapshot{seq: c.started, session: c.session.Clone(), pending: c.pending}
	c.mu.Unlock()

	return ctx, snap, func(err error) error {
		c.mu.Lock()
		c.inflight--
		if !errors.Is(err, ErrSuperseded) {
			c.errMsg = Message(err)
		}
		c.mu.Unlock()

		outcome := outcomeOf(err)
		c.ops.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op), attribute.String("outcome", outcome)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
			c.log.Info("authflow: operation failed", zap.String("op", op), zap.String("outcome", outcome), zap.Error(err))
		}
		span.End()
		return err
	}
}

// commit applies fn unless an operation started after snap has already applied its result or
// the flow was reset since. Among overlapping operations the last one started wins.
func (c *Controller) commit(snap snapshot, fn func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if snap.seq <= c.applied {
		return ErrSuperseded
	}
	fn()
	c.applied = snap.seq
	return nil
}

func (c *Controller) resetLocked() {
	c.pending = nil
	c.forceProfile = false
	c.errMsg = ""
	c.applied = c.started
}

// lookup asks the directory about e164. Failures degrade to AccountNone so sign-in is not
// blocked by the directory.
func (c *Controller) lookup(ctx context.Context, e164 string) ProfileMatch {
	m, err := c.dir.Check(ctx, e164)
	if err != nil {
		c.log.Warn("authflow: profile lookup failed; treating phone as new",
			zap.String("phone", phone.Mask(e164)), zap.Error(err))
		c.record(ctx, Event{Type: EventDirectoryUnavailable, Phone: phone.Mask(e164), Detail: "check"})
		return ProfileMatch{Account: domain.AccountNone}
	}
	if m.Account == "" {
		m.Account = domain.AccountNone
	}
	return m
}

// notify registers the login identity with the directory. A failure is logged and recorded;
// CompleteProfileWithEmail sends the full record again.
func (c *Controller) notify(ctx context.Context, n Notification) {
	if err := c.dir.Notify(ctx, n); err != nil {
		c.log.Warn("authflow: profile notify failed",
			zap.String("user_id", n.UserID), zap.String("phone", phone.Mask(n.Phone)), zap.Error(err))
		c.record(ctx, Event{Type: EventDirectoryUnavailable, UserID: n.UserID, Phone: phone.Mask(n.Phone), Detail: "notify"})
	}
}

func (c *Controller) applyDisplayName(ctx context.Context, name string) {
	updated, err := c.idp.UpdateSession(ctx, Attributes{Name: name})
	if err != nil {
		c.log.Warn("authflow: could not apply display name", zap.Error(err))
		return
	}
	if updated != nil {
		c.handleSessionChange(updated)
	}
}

func (c *Controller) record(ctx context.Context, e Event) {
	c.recorder.Record(ctx, e)
}

func composePhone(raw, countryCode string) (string, error) {
	e164, err := phone.Compose(raw, countryCode)
	switch {
	case errors.Is(err, phone.ErrEmpty):
		return "", Invalid("Please enter your phone number.")
	case err != nil:
		return "", Invalid("Please enter a valid phone number.")
	}
	return e164, nil
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", Invalid("Please enter your email address.")
	}
	if !emailPattern.MatchString(email) {
		return "", Invalid("Please enter a valid email address.")
	}
	return email, nil
}

// classify keeps err if it already carries a flow sentinel, otherwise wraps it in fallback.
func classify(err, fallback error) error {
	for _, s := range []error{ErrValidation, ErrDelivery, ErrInvalidCode, ErrPhoneInUse, ErrNoPendingAction, ErrNetwork} {
		if errors.Is(err, s) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", fallback, err)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrDelivery):
		return "delivery"
	case errors.Is(err, ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, ErrPhoneInUse):
		return "phone_in_use"
	case errors.Is(err, ErrNoPendingAction):
		return "no_pending_action"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrSuperseded):
		return "superseded"
	default:
		return "error"
	}
}
