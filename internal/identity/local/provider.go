package local

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"accountability-assistant/backend/internal/authflow"
	"accountability-assistant/backend/internal/authflow/domain"
	otpdomain "accountability-assistant/backend/internal/otp/domain"
	userdomain "accountability-assistant/backend/internal/user/domain"
	userrepo "accountability-assistant/backend/internal/user/repository"
)

// ErrUnknownOAuthCode is returned by CompleteOAuth for a code this backend did not issue.
var ErrUnknownOAuthCode = errors.New("local identity: unknown or expired oauth code")

// Provider is one browser flow's view of the local backend.
type Provider struct {
	b *Backend

	mu           sync.Mutex
	userID       string
	pendingPhone string
	listeners    map[int]authflow.SessionListener
	nextID       int
}

var _ authflow.IdentityProvider = (*Provider)(nil)

// SendOTP issues a sign-in code to phone.
func (p *Provider) SendOTP(ctx context.Context, phone string) error {
	return codeError(p.b.codes.Issue(ctx, string(authflow.PurposeSignIn), phone, otpdomain.ChannelSMS))
}

// SendEmailOTP issues a sign-in code to email.
func (p *Provider) SendEmailOTP(ctx context.Context, email string) error {
	return codeError(p.b.codes.Issue(ctx, string(authflow.PurposeEmail), email, otpdomain.ChannelEmail))
}

// VerifyOTP checks the code and signs in, creating the account on first use.
func (p *Provider) VerifyOTP(ctx context.Context, req authflow.VerifyRequest) (*domain.Session, error) {
	users := p.b.users
	switch req.Purpose {
	case authflow.PurposeSignIn:
		if err := p.b.codes.Verify(ctx, string(req.Purpose), req.Phone, req.Code); err != nil {
			return nil, codeError(err)
		}
		u, err := p.b.findOrCreate(ctx,
			func() (*userdomain.User, error) { return users.GetByPhone(ctx, req.Phone) },
			userdomain.User{Phone: req.Phone, Provider: authflow.ProviderPhone})
		if err != nil {
			return nil, err
		}
		return p.signIn(u), nil

	case authflow.PurposeEmail:
		if err := p.b.codes.Verify(ctx, string(req.Purpose), req.Email, req.Code); err != nil {
			return nil, codeError(err)
		}
		u, err := p.b.findOrCreate(ctx,
			func() (*userdomain.User, error) { return users.GetByEmail(ctx, req.Email) },
			userdomain.User{Email: req.Email, Provider: authflow.ProviderEmail})
		if err != nil {
			return nil, err
		}
		return p.signIn(u), nil

	case authflow.PurposePhoneChange:
		p.mu.Lock()
		userID, pending := p.userID, p.pendingPhone
		p.mu.Unlock()
		if userID == "" || pending == "" || pending != req.Phone {
			return nil, fmt.Errorf("%w: no phone change pending for %s", authflow.ErrInvalidCode, req.Phone)
		}
		if err := p.b.codes.Verify(ctx, string(req.Purpose), req.Phone, req.Code); err != nil {
			return nil, codeError(err)
		}
		u, err := p.currentUser(ctx)
		if err != nil {
			return nil, err
		}
		u.Phone = req.Phone
		u.UpdatedAt = p.b.now().UTC()
		if err := users.Update(ctx, u); err != nil {
			if errors.Is(err, userrepo.ErrPhoneTaken) {
				return nil, fmt.Errorf("%w: %w", authflow.ErrPhoneInUse, err)
			}
			return nil, err
		}
		p.mu.Lock()
		p.pendingPhone = ""
		p.mu.Unlock()
		return p.signIn(u), nil
	}
	return nil, authflow.Invalid("Unsupported verification type.")
}

// Session returns the signed-in user's session, or nil.
func (p *Provider) Session(ctx context.Context) (*domain.Session, error) {
	u, err := p.currentUser(ctx)
	if err != nil || u == nil {
		return nil, err
	}
	return toSession(u), nil
}

// OnSessionChange registers fn and returns its unsubscribe func.
func (p *Provider) OnSessionChange(fn authflow.SessionListener) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

// BeginOAuth simulates the provider's consent screen: it mints a one-time code for a fresh
// development Google account and returns redirectURL carrying it.
func (p *Provider) BeginOAuth(ctx context.Context, provider, redirectURL string) (string, error) {
	if provider != authflow.ProviderGoogle {
		return "", authflow.Invalid("Unsupported sign-in provider.")
	}
	u, err := url.Parse(redirectURL)
	if err != nil || redirectURL == "" {
		return "", authflow.Invalid("Invalid redirect URL.")
	}
	code := p.b.nextID()
	p.b.oauth.SetDefault(code, "google-"+code[:8]+"@dev.local")
	q := u.Query()
	q.Set("code", code)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// CompleteOAuth redeems a code minted by BeginOAuth.
func (p *Provider) CompleteOAuth(ctx context.Context, code string) (*domain.Session, error) {
	v, ok := p.b.oauth.Get(code)
	if !ok {
		return nil, ErrUnknownOAuthCode
	}
	p.b.oauth.Delete(code)
	email := v.(string)
	users := p.b.users
	u, err := p.b.findOrCreate(ctx,
		func() (*userdomain.User, error) { return users.GetByEmail(ctx, email) },
		userdomain.User{Email: email, Name: "Dev Google User", Provider: authflow.ProviderGoogle})
	if err != nil {
		return nil, err
	}
	return p.signIn(u), nil
}

// UpdateSession updates the signed-in user. A new phone is not stored until its code is verified.
func (p *Provider) UpdateSession(ctx context.Context, attrs authflow.Attributes) (*domain.Session, error) {
	u, err := p.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, authflow.ErrNoPendingAction
	}
	if attrs.Phone != "" {
		other, err := p.b.users.GetByPhone(ctx, attrs.Phone)
		if err != nil {
			return nil, err
		}
		if other != nil && other.ID != u.ID {
			return nil, authflow.ErrPhoneInUse
		}
		if err := p.b.codes.Issue(ctx, string(authflow.PurposePhoneChange), attrs.Phone, otpdomain.ChannelSMS); err != nil {
			return nil, codeError(err)
		}
		p.mu.Lock()
		p.pendingPhone = attrs.Phone
		p.mu.Unlock()
	}
	if attrs.Email == "" && attrs.Name == "" {
		return toSession(u), nil
	}
	if attrs.Email != "" {
		u.Email = attrs.Email
	}
	if attrs.Name != "" {
		u.Name = attrs.Name
	}
	u.UpdatedAt = p.b.now().UTC()
	if err := p.b.users.Update(ctx, u); err != nil {
		if errors.Is(err, userrepo.ErrEmailTaken) {
			return nil, authflow.Invalid("This email is already linked to another account.")
		}
		return nil, err
	}
	s := toSession(u)
	p.fire(s)
	return s.Clone(), nil
}

// SignOut forgets the signed-in user.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.userID, p.pendingPhone = "", ""
	p.mu.Unlock()
	p.fire(nil)
	return nil
}

func (p *Provider) signIn(u *userdomain.User) *domain.Session {
	p.mu.Lock()
	p.userID = u.ID
	p.mu.Unlock()
	s := toSession(u)
	p.fire(s)
	return s.Clone()
}

func (p *Provider) currentUser(ctx context.Context) (*userdomain.User, error) {
	p.mu.Lock()
	id := p.userID
	p.mu.Unlock()
	if id == "" {
		return nil, nil
	}
	return p.b.users.GetByID(ctx, id)
}

func (p *Provider) fire(s *domain.Session) {
	p.mu.Lock()
	ls := make([]authflow.SessionListener, 0, len(p.listeners))
	for _, l := range p.listeners {
		ls = append(ls, l)
	}
	p.mu.Unlock()
	for _, l := range ls {
		l(s.Clone())
	}
}

func toSession(u *userdomain.User) *domain.Session {
	return &domain.Session{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone, Provider: u.Provider}
}
