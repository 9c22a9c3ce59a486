package domain

import "errors"

// ErrSessionWithoutChannel is returned by Validate when a session has neither email nor phone.
var ErrSessionWithoutChannel = errors.New("session requires an email or a phone")

// Session is the authenticated identity issued by the identity provider.
type Session struct {
	ID    string // stable, assigned by the identity provider
	Name  string // optional display name
	Email string // optional; unique per account at the provider
	Phone string // optional; E.164
	// Provider is the sign-in method that produced the session ("phone", "email", "google").
	Provider string
}

// Validate reports whether the session satisfies the provider's invariants.
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.New("session id is required")
	}
	if s.Email == "" && s.Phone == "" {
		return ErrSessionWithoutChannel
	}
	return nil
}

// Complete reports whether the account is fully onboarded (both email and phone present).
func (s *Session) Complete() bool {
	return s != nil && s.Email != "" && s.Phone != ""
}

// Clone returns a copy of s, or nil.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
