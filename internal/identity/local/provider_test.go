package local

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"

	"accountability-assistant/backend/internal/authflow"
	"accountability-assistant/backend/internal/authflow/domain"
	"accountability-assistant/backend/internal/devotp"
	"accountability-assistant/backend/internal/otp"
	otpdomain "accountability-assistant/backend/internal/otp/domain"
	otprepo "accountability-assistant/backend/internal/otp/repository"
	userrepo "accountability-assistant/backend/internal/user/repository"
)

type failingSender struct{}

func (failingSender) Send(ctx context.Context, target, code string) error {
	return errors.New("gateway down")
}

func newTestBackend(t *testing.T) (*Backend, *devotp.MemoryStore) {
	t.Helper()
	dev := devotp.NewMemoryStore()
	codes := otp.NewService(otprepo.NewMemoryRepository(), otp.WithDevStore(dev))
	return NewBackend(userrepo.NewMemoryRepository(), codes, nil), dev
}

func devCode(t *testing.T, dev *devotp.MemoryStore, target string) string {
	t.Helper()
	code, ok := dev.Get(context.Background(), target)
	if !ok {
		t.Fatalf("no code issued for %s", target)
	}
	return code
}

func signInPhone(t *testing.T, p *Provider, dev *devotp.MemoryStore, phone string) *domain.Session {
	t.Helper()
	ctx := context.Background()
	if err := p.SendOTP(ctx, phone); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	s, err := p.VerifyOTP(ctx, authflow.VerifyRequest{Purpose: authflow.PurposeSignIn, Phone: phone, Code: devCode(t, dev, phone)})
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	return s
}

func TestProvider_PhoneSignInCreatesThenReuses(t *testing.T) {
	b, dev := newTestBackend(t)
	first := signInPhone(t, b.NewProvider(), dev, "+447700900000")
	if first.ID == "" || first.Phone != "+447700900000" || first.Provider != authflow.ProviderPhone {
		t.Fatalf("session = %+v", first)
	}
	second := signInPhone(t, b.NewProvider(), dev, "+447700900000")
	if second.ID != first.ID {
		t.Errorf("second sign-in ID = %q, want existing %q", second.ID, first.ID)
	}
}

func TestProvider_WrongCode(t *testing.T) {
	b, _ := newTestBackend(t)
	p := b.NewProvider()
	ctx := context.Background()
	if err := p.SendOTP(ctx, "+447700900000"); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	_, err := p.VerifyOTP(ctx, authflow.VerifyRequest{Purpose: authflow.PurposeSignIn, Phone: "+447700900000", Code: "000000x"})
	if !errors.Is(err, authflow.ErrInvalidCode) {
		t.Errorf("err = %v, want ErrInvalidCode", err)
	}
	if s, _ := p.Session(ctx); s != nil {
		t.Errorf("session after wrong code = %+v, want nil", s)
	}
}

func TestProvider_DeliveryFailure(t *testing.T) {
	codes := otp.NewService(otprepo.NewMemoryRepository(), otp.WithSender(otpdomain.ChannelSMS, failingSender{}))
	p := NewBackend(userrepo.NewMemoryRepository(), codes, nil).NewProvider()
	err := p.SendOTP(context.Background(), "+447700900000")
	if !errors.Is(err, authflow.ErrDelivery) {
		t.Errorf("err = %v, want ErrDelivery", err)
	}
}

func TestProvider_EmailSignIn(t *testing.T) {
	b, dev := newTestBackend(t)
	p := b.NewProvider()
	ctx := context.Background()
	if err := p.SendEmailOTP(ctx, "ann@example.com"); err != nil {
		t.Fatalf("SendEmailOTP: %v", err)
	}
	s, err := p.VerifyOTP(ctx, authflow.VerifyRequest{Purpose: authflow.PurposeEmail, Email: "ann@example.com", Code: devCode(t, dev, "ann@example.com")})
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if s.Email != "ann@example.com" || s.Provider != authflow.ProviderEmail {
		t.Errorf("session = %+v", s)
	}
}

func TestProvider_UpdateEmailAndName(t *testing.T) {
	b, dev := newTestBackend(t)
	p := b.NewProvider()
	signInPhone(t, p, dev, "+447700900000")

	var mu sync.Mutex
	var seen []*domain.Session
	unsub := p.OnSessionChange(func(s *domain.Session) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s)
	})
	defer unsub()

	s, err := p.UpdateSession(context.Background(), authflow.Attributes{Email: "ann@example.com", Name: "Ann"})
	if err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	if !s.Complete() || s.Name != "Ann" {
		t.Errorf("session = %+v, want complete with name", s)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0].Email != "ann@example.com" {
		t.Errorf("listener saw %+v", seen)
	}
}

func TestProvider_UpdateEmailTaken(t *testing.T) {
	b, dev := newTestBackend(t)
	ctx := context.Background()
	owner := b.NewProvider()
	signInPhone(t, owner, dev, "+447700900000")
	if _, err := owner.UpdateSession(ctx, authflow.Attributes{Email: "ann@example.com"}); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	other := b.NewProvider()
	signInPhone(t, other, dev, "+447700900001")
	_, err := other.UpdateSession(ctx, authflow.Attributes{Email: "ANN@example.com"})
	if !errors.Is(err, authflow.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestProvider_UpdateRequiresSession(t *testing.T) {
	b, _ := newTestBackend(t)
	_, err := b.NewProvider().UpdateSession(context.Background(), authflow.Attributes{Name: "Ann"})
	if !errors.Is(err, authflow.ErrNoPendingAction) {
		t.Errorf("err = %v, want ErrNoPendingAction", err)
	}
}

func TestProvider_GoogleThenPhoneChange(t *testing.T) {
	b, dev := newTestBackend(t)
	p := b.NewProvider()
	ctx := context.Background()

	to, err := p.BeginOAuth(ctx, authflow.ProviderGoogle, "http://localhost:8080/auth/callback")
	if err != nil {
		t.Fatalf("BeginOAuth: %v", err)
	}
	u, err := url.Parse(to)
	if err != nil {
		t.Fatalf("parse %q: %v", to, err)
	}
	code := u.Query().Get("code")
	if u.Path != "/auth/callback" || code == "" {
		t.Fatalf("redirect = %q", to)
	}
	s, err := p.CompleteOAuth(ctx, code)
	if err != nil {
		t.Fatalf("CompleteOAuth: %v", err)
	}
	if s.Provider != authflow.ProviderGoogle || s.Email == "" || s.Phone != "" {
		t.Fatalf("session = %+v", s)
	}
	if _, err := p.CompleteOAuth(ctx, code); !errors.Is(err, ErrUnknownOAuthCode) {
		t.Errorf("reused code err = %v, want ErrUnknownOAuthCode", err)
	}

	if _, err := p.UpdateSession(ctx, authflow.Attributes{Phone: "+447700900002"}); err != nil {
		t.Fatalf("UpdateSession phone: %v", err)
	}
	if cur, _ := p.Session(ctx); cur.Phone != "" {
		t.Errorf("phone stored before verification: %+v", cur)
	}
	s, err = p.VerifyOTP(ctx, authflow.VerifyRequest{Purpose: authflow.PurposePhoneChange, Phone: "+447700900002", Code: devCode(t, dev, "+447700900002")})
	if err != nil {
		t.Fatalf("VerifyOTP phone_change: %v", err)
	}
	if !s.Complete() {
		t.Errorf("session = %+v, want complete", s)
	}
}

func TestProvider_PhoneChangeToTakenPhone(t *testing.T) {
	b, dev := newTestBackend(t)
	ctx := context.Background()
	signInPhone(t, b.NewProvider(), dev, "+447700900000")

	p := b.NewProvider()
	if err := p.SendEmailOTP(ctx, "ann@example.com"); err != nil {
		t.Fatalf("SendEmailOTP: %v", err)
	}
	if _, err := p.VerifyOTP(ctx, authflow.VerifyRequest{Purpose: authflow.PurposeEmail, Email: "ann@example.com", Code: devCode(t, dev, "ann@example.com")}); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	_, err := p.UpdateSession(ctx, authflow.Attributes{Phone: "+447700900000"})
	if !errors.Is(err, authflow.ErrPhoneInUse) {
		t.Errorf("err = %v, want ErrPhoneInUse", err)
	}
}

func TestProvider_PhoneChangeWithoutRequest(t *testing.T) {
	b, dev := newTestBackend(t)
	p := b.NewProvider()
	signInPhone(t, p, dev, "+447700900000")
	_, err := p.VerifyOTP(context.Background(), authflow.VerifyRequest{Purpose: authflow.PurposePhoneChange, Phone: "+447700900009", Code: "123456"})
	if !errors.Is(err, authflow.ErrInvalidCode) {
		t.Errorf("err = %v, want ErrInvalidCode", err)
	}
}

func TestProvider_BeginOAuthRejectsOtherProviders(t *testing.T) {
	b, _ := newTestBackend(t)
	_, err := b.NewProvider().BeginOAuth(context.Background(), "github", "http://localhost/cb")
	if !errors.Is(err, authflow.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestProvider_SignOut(t *testing.T) {
	b, dev := newTestBackend(t)
	p := b.NewProvider()
	signInPhone(t, p, dev, "+447700900000")

	signedOut := make(chan struct{}, 1)
	unsub := p.OnSessionChange(func(s *domain.Session) {
		if s == nil {
			signedOut <- struct{}{}
		}
	})
	defer unsub()

	if err := p.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	select {
	case <-signedOut:
	default:
		t.Error("listener not told about sign-out")
	}
	if s, _ := p.Session(context.Background()); s != nil {
		t.Errorf("session after sign-out = %+v", s)
	}
}

func TestProvider_FlowsAreIsolated(t *testing.T) {
	b, dev := newTestBackend(t)
	a := b.NewProvider()
	signInPhone(t, a, dev, "+447700900000")
	if s, _ := b.NewProvider().Session(context.Background()); s != nil {
		t.Errorf("fresh provider session = %+v, want nil", s)
	}
}
