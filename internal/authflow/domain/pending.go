package domain

import (
	"errors"
	"fmt"
)

// Kind discriminates pending authentication actions.
type Kind string

const (
	KindOTPInitiated     Kind = "otp_initiated"
	KindOTPVerified      Kind = "otp_verified"
	KindLoginEmail       Kind = "login_email"
	KindGoogleNeedsPhone Kind = "google_signup_needs_phone"
	KindGoogleNeedsOTP   Kind = "google_signup_needs_otp"
)

// AccountMatch is the profile directory's verdict for a phone number.
type AccountMatch string

const (
	// AccountNone means no prior profile exists for the phone.
	AccountNone AccountMatch = "none"
	// AccountOpen is a pre-existing profile not yet linked to a login identity.
	AccountOpen AccountMatch = "open"
	// AccountClosed is a profile already bound to a login identity.
	AccountClosed AccountMatch = "closed"
)

// ParseAccountMatch maps the directory's "account" field to an AccountMatch. Anything other than
// "open" or "closed" (including absent) is AccountNone.
func ParseAccountMatch(s string) AccountMatch {
	switch AccountMatch(s) {
	case AccountOpen:
		return AccountOpen
	case AccountClosed:
		return AccountClosed
	default:
		return AccountNone
	}
}

// PendingAction is an in-flight, not yet complete authentication step. The set of implementations
// is closed; use the New* constructors so every variant carries the payload it needs.
type PendingAction interface {
	Kind() Kind
	pending()
}

// OTPInitiated: an OTP was sent to Phone for phone-first sign-in.
type OTPInitiated struct {
	Phone       string
	Match       AccountMatch
	DisplayName string
}

// OTPVerified: the phone OTP succeeded and the account still needs an email.
type OTPVerified struct {
	Phone       string
	Match       AccountMatch
	DisplayName string
}

// LoginEmail: an OTP was sent to Email for email sign-in.
type LoginEmail struct {
	Email string
}

// GoogleNeedsPhone: an OAuth session exists and has no phone yet.
type GoogleNeedsPhone struct{}

// GoogleNeedsOTP: a phone is being attached to an OAuth session and awaits its OTP.
type GoogleNeedsOTP struct {
	Phone string
	Match AccountMatch
}

func (OTPInitiated) Kind() Kind     { return KindOTPInitiated }
func (OTPVerified) Kind() Kind      { return KindOTPVerified }
func (LoginEmail) Kind() Kind       { return KindLoginEmail }
func (GoogleNeedsPhone) Kind() Kind { return KindGoogleNeedsPhone }
func (GoogleNeedsOTP) Kind() Kind   { return KindGoogleNeedsOTP }

func (OTPInitiated) pending()     {}
func (OTPVerified) pending()      {}
func (LoginEmail) pending()       {}
func (GoogleNeedsPhone) pending() {}
func (GoogleNeedsOTP) pending()   {}

var errMissingPhone = errors.New("pending action requires a phone")

// NewOTPInitiated returns an OTPInitiated action. phone must be non-empty.
func NewOTPInitiated(phone string, match AccountMatch, displayName string) (OTPInitiated, error) {
	if phone == "" {
		return OTPInitiated{}, fmt.Errorf("%s: %w", KindOTPInitiated, errMissingPhone)
	}
	return OTPInitiated{Phone: phone, Match: normalizeMatch(match), DisplayName: displayName}, nil
}

// Verified advances an OTPInitiated action to OTPVerified with the given match.
func (a OTPInitiated) Verified(match AccountMatch) OTPVerified {
	return OTPVerified{Phone: a.Phone, Match: normalizeMatch(match), DisplayName: a.DisplayName}
}

// NewLoginEmail returns a LoginEmail action. email must be non-empty.
func NewLoginEmail(email string) (LoginEmail, error) {
	if email == "" {
		return LoginEmail{}, fmt.Errorf("%s: email is required", KindLoginEmail)
	}
	return LoginEmail{Email: email}, nil
}

// NewGoogleNeedsOTP returns a GoogleNeedsOTP action. phone must be non-empty.
func NewGoogleNeedsOTP(phone string, match AccountMatch) (GoogleNeedsOTP, error) {
	if phone == "" {
		return GoogleNeedsOTP{}, fmt.Errorf("%s: %w", KindGoogleNeedsOTP, errMissingPhone)
	}
	return GoogleNeedsOTP{Phone: phone, Match: normalizeMatch(match)}, nil
}

// PhoneOf returns the phone a pending action concerns, or "".
func PhoneOf(a PendingAction) string {
	switch p := a.(type) {
	case OTPInitiated:
		return p.Phone
	case OTPVerified:
		return p.Phone
	case GoogleNeedsOTP:
		return p.Phone
	default:
		return ""
	}
}

func normalizeMatch(m AccountMatch) AccountMatch {
	if m == "" {
		return AccountNone
	}
	return m
}
