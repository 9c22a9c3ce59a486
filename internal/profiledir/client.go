// Package profiledir is the HTTP client for the profile webhook service that knows which phone
// numbers already have an accountability profile.
package profiledir

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"accountability-assistant/backend/internal/authflow"
	"accountability-assistant/backend/internal/authflow/domain"
)

const defaultTimeout = 5 * time.Second

// maxErrorBody caps how much of an error response is kept in the error message.
const maxErrorBody = 512

// Client calls POST /user/check/ and POST /user/notify on the profile webhook service.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

var _ authflow.ProfileDirectory = (*Client)(nil)

// NewClient returns a client for baseURL. apiKey, when set, is sent as a bearer token. A zero
// timeout uses 5s.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type checkRequest struct {
	Phone string `json:"phone"`
}

type checkResponse struct {
	Account string `json:"account"`
	Name    string `json:"name"`
}

type notifyRequest struct {
	UserID  string `json:"userId"`
	Phone   string `json:"phone"`
	Account string `json:"account"`
	Email   string `json:"email,omitempty"`
}

// Check reports whether phone belongs to an existing profile. An absent or unrecognised account
// field is AccountNone.
func (c *Client) Check(ctx context.Context, phone string) (authflow.ProfileMatch, error) {
	var out checkResponse
	if err := c.post(ctx, "/user/check/", checkRequest{Phone: phone}, &out); err != nil {
		return authflow.ProfileMatch{}, err
	}
	return authflow.ProfileMatch{
		Account: domain.ParseAccountMatch(strings.ToLower(strings.TrimSpace(out.Account))),
		Name:    strings.TrimSpace(out.Name),
	}, nil
}

// Notify tells the directory that a login identity now owns phone.
func (c *Client) Notify(ctx context.Context, n authflow.Notification) error {
	return c.post(ctx, "/user/notify", notifyRequest{
		UserID:  n.UserID,
		Phone:   n.Phone,
		Account: string(n.Account),
		Email:   n.Email,
	}, nil)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: profile directory not configured", authflow.ErrNetwork)
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: profile directory %s: %w", authflow.ErrNetwork, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: profile directory %s status=%d body=%s", authflow.ErrNetwork, path, resp.StatusCode, string(b))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("%w: profile directory %s: decode: %w", authflow.ErrNetwork, path, err)
	}
	return nil
}
