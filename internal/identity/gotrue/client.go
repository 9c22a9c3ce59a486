// Package gotrue is an authflow.IdentityProvider backed by a GoTrue-compatible auth API
// (phone and email OTP, PKCE OAuth, user updates, refresh and logout). One Client holds the
// tokens of one browser flow.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"accountability-assistant/backend/internal/authflow"
	"accountability-assistant/backend/internal/authflow/domain"
)

const defaultTimeout = 15 * time.Second

// refreshMargin is how long before expiry an access token is refreshed.
const refreshMargin = 30 * time.Second

// ErrNoOAuthInProgress is returned by CompleteOAuth when BeginOAuth was not called on this client.
var ErrNoOAuthInProgress = errors.New("gotrue: no oauth sign-in in progress")

// Config is shared by every Client of one deployment.
type Config struct {
	// BaseURL is the auth API root, e.g. https://project.supabase.co/auth/v1.
	BaseURL string
	// AnonKey is sent as the apikey header.
	AnonKey string
	// JWTSecret, when set, is used to verify access tokens (HS256) before they are trusted.
	JWTSecret  string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to GoTrue on behalf of one browser flow. It is safe for concurrent use.
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
	tokens  *tokenValidator
	log     *zap.Logger
	now     func() time.Time

	mu        sync.Mutex
	tok       *tokenSet
	user      *user
	verifier  string
	listeners map[int]authflow.SessionListener
	nextID    int
}

var _ authflow.IdentityProvider = (*Client)(nil)

// NewClient returns a signed-out client.
func NewClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		anonKey:   cfg.AnonKey,
		http:      hc,
		tokens:    newTokenValidator(cfg.JWTSecret),
		log:       log,
		now:       time.Now,
		listeners: make(map[int]authflow.SessionListener),
	}
}

type tokenSet struct {
	access    string
	refresh   string
	expiresAt time.Time
}

type user struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	NewEmail     string         `json:"new_email"`
	Phone        string         `json:"phone"`
	AppMetadata  map[string]any `json:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata"`
}

type sessionResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         *user  `json:"user"`
}

// apiError is GoTrue's error body. Older servers use msg/error_description, newer error_code.
type apiError struct {
	Code        any    `json:"code"`
	ErrorCode   string `json:"error_code"`
	Msg         string `json:"msg"`
	Message     string `json:"message"`
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

func (e apiError) text() string {
	for _, s := range []string{e.Msg, e.Message, e.Description, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// SendOTP asks GoTrue to text a sign-in code to phone, creating the user if needed.
func (c *Client) SendOTP(ctx context.Context, phone string) error {
	body := map[string]any{"phone": phone, "create_user": true}
	return c.do(ctx, http.MethodPost, "/otp", "", body, nil, authflow.ErrDelivery)
}

// SendEmailOTP asks GoTrue to email a sign-in code.
func (c *Client) SendEmailOTP(ctx context.Context, email string) error {
	body := map[string]any{"email": email, "create_user": true}
	return c.do(ctx, http.MethodPost, "/otp", "", body, nil, authflow.ErrDelivery)
}

// VerifyOTP exchanges a code for a session. Phone changes are verified against the current
// session's bearer token.
func (c *Client) VerifyOTP(ctx context.Context, req authflow.VerifyRequest) (*domain.Session, error) {
	body := map[string]any{"type": string(req.Purpose), "token": req.Code}
	if req.Purpose == authflow.PurposeEmail {
		body["email"] = req.Email
	} else {
		body["phone"] = req.Phone
	}
	var bearer string
	if req.Purpose == authflow.PurposePhoneChange {
		var err error
		if bearer, err = c.accessToken(ctx); err != nil {
			return nil, err
		}
	}
	var out sessionResponse
	if err := c.do(ctx, http.MethodPost, "/verify", bearer, body, &out, authflow.ErrInvalidCode); err != nil {
		return nil, err
	}
	return c.adopt(out)
}

// Session returns the current session, refreshing the access token when it is about to expire.
// A rejected refresh signs the client out.
func (c *Client) Session(ctx context.Context) (*domain.Session, error) {
	if _, err := c.accessToken(ctx); err != nil {
		if errors.Is(err, errSignedOut) {
			return nil, nil
		}
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return toSession(c.user), nil
}

// OnSessionChange registers fn and returns its unsubscribe func.
func (c *Client) OnSessionChange(fn authflow.SessionListener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// BeginOAuth returns the GoTrue authorize URL for provider using PKCE. The verifier is kept
// for CompleteOAuth.
func (c *Client) BeginOAuth(ctx context.Context, provider, redirectURL string) (string, error) {
	verifier, err := newCodeVerifier()
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.verifier = verifier
	c.mu.Unlock()

	q := url.Values{}
	q.Set("provider", provider)
	q.Set("redirect_to", redirectURL)
	q.Set("code_challenge", codeChallenge(verifier))
	q.Set("code_challenge_method", "s256")
	return c.baseURL + "/authorize?" + q.Encode(), nil
}

// CompleteOAuth exchanges the authorization code from the OAuth callback for a session.
func (c *Client) CompleteOAuth(ctx context.Context, code string) (*domain.Session, error) {
	c.mu.Lock()
	verifier := c.verifier
	c.verifier = ""
	c.mu.Unlock()
	if verifier == "" {
		return nil, ErrNoOAuthInProgress
	}
	if code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", authflow.ErrValidation)
	}
	body := map[string]any{"auth_code": code, "code_verifier": verifier}
	var out sessionResponse
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=pkce", "", body, &out, authflow.ErrNetwork); err != nil {
		return nil, err
	}
	return c.adopt(out)
}

// UpdateSession updates the signed-in user. Setting a phone makes GoTrue text a phone_change code.
func (c *Client) UpdateSession(ctx context.Context, attrs authflow.Attributes) (*domain.Session, error) {
	bearer, err := c.accessToken(ctx)
	if err != nil {
		if errors.Is(err, errSignedOut) {
			return nil, authflow.ErrNoPendingAction
		}
		return nil, err
	}
	body := map[string]any{}
	if attrs.Email != "" {
		body["email"] = attrs.Email
	}
	if attrs.Phone != "" {
		body["phone"] = attrs.Phone
	}
	if attrs.Name != "" {
		body["data"] = map[string]any{"name": attrs.Name, "full_name": attrs.Name}
	}
	var u user
	if err := c.do(ctx, http.MethodPut, "/user", bearer, body, &u, authflow.ErrDelivery); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.user = &u
	s := toSession(c.user)
	c.mu.Unlock()
	c.fire(s)
	return s.Clone(), nil
}

// SignOut revokes the refresh token at GoTrue and clears local state even when that fails.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	tok := c.tok
	c.tok, c.user, c.verifier = nil, nil, ""
	c.mu.Unlock()
	c.fire(nil)
	if tok == nil {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/logout", tok.access, nil, nil, authflow.ErrNetwork)
}

var errSignedOut = errors.New("gotrue: signed out")

// accessToken returns a usable access token, refreshing it if it is close to expiry.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	tok := c.tok
	c.mu.Unlock()
	if tok == nil {
		return "", errSignedOut
	}
	if tok.expiresAt.IsZero() || c.now().Add(refreshMargin).Before(tok.expiresAt) {
		return tok.access, nil
	}

	var out sessionResponse
	err := c.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", "",
		map[string]any{"refresh_token": tok.refresh}, &out, errRefreshRejected)
	if errors.Is(err, errRefreshRejected) {
		c.log.Info("gotrue: refresh rejected; signing out", zap.Error(err))
		c.mu.Lock()
		c.tok, c.user = nil, nil
		c.mu.Unlock()
		c.fire(nil)
		return "", errSignedOut
	}
	if err != nil {
		return "", err
	}
	if _, err := c.adopt(out); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tok.access, nil
}

var errRefreshRejected = errors.New("gotrue: refresh token rejected")

// adopt stores a session response after validating its access token and notifies listeners.
func (c *Client) adopt(out sessionResponse) (*domain.Session, error) {
	if out.AccessToken == "" || out.User == nil {
		return nil, fmt.Errorf("%w: gotrue returned no session", authflow.ErrNetwork)
	}
	if err := c.tokens.validate(out.AccessToken, out.User.ID); err != nil {
		return nil, fmt.Errorf("%w: %w", authflow.ErrNetwork, err)
	}
	tok := &tokenSet{access: out.AccessToken, refresh: out.RefreshToken}
	switch {
	case out.ExpiresAt > 0:
		tok.expiresAt = time.Unix(out.ExpiresAt, 0)
	case out.ExpiresIn > 0:
		tok.expiresAt = c.now().Add(time.Duration(out.ExpiresIn) * time.Second)
	}
	c.mu.Lock()
	c.tok = tok
	c.user = out.User
	s := toSession(c.user)
	c.mu.Unlock()
	c.fire(s)
	return s.Clone(), nil
}

func (c *Client) fire(s *domain.Session) {
	c.mu.Lock()
	ls := make([]authflow.SessionListener, 0, len(c.listeners))
	for _, l := range c.listeners {
		ls = append(ls, l)
	}
	c.mu.Unlock()
	for _, l := range ls {
		l(s.Clone())
	}
}

// do sends a JSON request. Transport failures and 5xx responses wrap ErrNetwork; 4xx responses
// wrap rejected, except 429 which always wraps ErrDelivery.
func (c *Client) do(ctx context.Context, method, path, bearer string, body, out any, rejected error) error {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.anonKey != "" {
		req.Header.Set("apikey", c.anonKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	} else if c.anonKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.anonKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: gotrue %s: %w", authflow.ErrNetwork, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr apiError
		_ = json.Unmarshal(raw, &apiErr)
		msg := apiErr.text()
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: gotrue %s: rate limited: %s", authflow.ErrDelivery, path, msg)
		case resp.StatusCode >= 500:
			return fmt.Errorf("%w: gotrue %s status=%d: %s", authflow.ErrNetwork, path, resp.StatusCode, msg)
		case apiErr.ErrorCode == "phone_exists":
			return fmt.Errorf("%w: gotrue %s: %s", authflow.ErrPhoneInUse, path, msg)
		default:
			return fmt.Errorf("%w: gotrue %s status=%d: %s", rejected, path, resp.StatusCode, msg)
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: gotrue %s: decode: %w", authflow.ErrNetwork, path, err)
	}
	return nil
}

// toSession maps a GoTrue user to the flow's session. An email awaiting confirmation counts as
// the session email.
func toSession(u *user) *domain.Session {
	if u == nil {
		return nil
	}
	s := &domain.Session{
		ID:       u.ID,
		Email:    u.Email,
		Phone:    normalizePhone(u.Phone),
		Name:     metaString(u.UserMetadata, "name", "full_name"),
		Provider: metaString(u.AppMetadata, "provider"),
	}
	if s.Email == "" {
		s.Email = u.NewEmail
	}
	if s.Provider == "" {
		switch {
		case s.Phone != "":
			s.Provider = authflow.ProviderPhone
		case s.Email != "":
			s.Provider = authflow.ProviderEmail
		}
	}
	return s
}

// normalizePhone restores the leading + that GoTrue strips from stored phones.
func normalizePhone(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || strings.HasPrefix(p, "+") {
		return p
	}
	return "+" + p
}

func metaString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
