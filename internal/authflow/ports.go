package authflow

import (
	"context"

	"accountability-assistant/backend/internal/authflow/domain"
)

// OTPPurpose tells the identity provider which kind of code is being verified.
type OTPPurpose string

const (
	// PurposeSignIn verifies an SMS code for phone sign-in or sign-up.
	PurposeSignIn OTPPurpose = "sms"
	// PurposePhoneChange verifies an SMS code that attaches a phone to an existing session.
	PurposePhoneChange OTPPurpose = "phone_change"
	// PurposeEmail verifies an email code for email sign-in.
	PurposeEmail OTPPurpose = "email"
)

// VerifyRequest is a code submission. Phone is set for SMS purposes, Email for PurposeEmail.
type VerifyRequest struct {
	Purpose OTPPurpose
	Phone   string
	Email   string
	Code    string
}

// Attributes are session fields to update. Empty fields are left unchanged.
type Attributes struct {
	Phone string
	Email string
	Name  string
}

// SessionListener receives the provider's session on every change; nil means signed out.
type SessionListener func(*domain.Session)

// IdentityProvider is the hosted auth service: OTP delivery, OAuth and session management.
// Errors should wrap ErrDelivery, ErrInvalidCode, ErrValidation or ErrNetwork where applicable.
type IdentityProvider interface {
	SendOTP(ctx context.Context, phone string) error
	SendEmailOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, req VerifyRequest) (*domain.Session, error)
	// Session returns the current session or nil when signed out.
	Session(ctx context.Context) (*domain.Session, error)
	// OnSessionChange registers fn and returns a function that unregisters it.
	OnSessionChange(fn SessionListener) (unsubscribe func())
	// BeginOAuth returns the URL the browser must be redirected to.
	BeginOAuth(ctx context.Context, provider, redirectURL string) (string, error)
	// UpdateSession changes session attributes. Setting Phone triggers an OTP to that phone.
	UpdateSession(ctx context.Context, attrs Attributes) (*domain.Session, error)
	SignOut(ctx context.Context) error
}

// ProfileMatch is the directory's answer for a phone.
type ProfileMatch struct {
	Account domain.AccountMatch
	Name    string
}

// Notification tells the directory a login identity now owns a phone's profile.
type Notification struct {
	UserID  string
	Phone   string
	Account domain.AccountMatch
	Email   string
}

// ProfileDirectory maps phone numbers to backend profiles.
type ProfileDirectory interface {
	Check(ctx context.Context, phone string) (ProfileMatch, error)
	Notify(ctx context.Context, n Notification) error
}
