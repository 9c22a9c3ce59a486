package authflow

import (
	"accountability-assistant/backend/internal/authflow/domain"
	"accountability-assistant/backend/internal/phone"
)

// State is everything step derivation looks at.
type State struct {
	Session *domain.Session
	Pending domain.PendingAction
	// ForceProfileCompletion is set after a phone OTP succeeds on an account without email,
	// so a lagging session update cannot show a stale step.
	ForceProfileCompletion bool
}

// Derived is the result of DeriveStep.
type Derived struct {
	Step domain.Step
	// PhoneInput and CountryCode prefill the phone form while an OTP is outstanding.
	PhoneInput  string
	CountryCode string
}

// DeriveStep computes the UI step from s. Rules are evaluated in priority order and the first
// match wins. It is pure: equal inputs always produce equal outputs.
func DeriveStep(s State) Derived {
	if s.ForceProfileCompletion {
		return Derived{Step: domain.StepEnterEmail}
	}
	if s.Session.Complete() {
		return Derived{Step: domain.StepInitial}
	}
	if s.Pending != nil {
		switch p := s.Pending.(type) {
		case domain.GoogleNeedsPhone:
			return Derived{Step: domain.StepEnterPhoneAfterGoogle}
		case domain.GoogleNeedsOTP:
			return Derived{Step: domain.StepVerifyOTP}
		case domain.OTPInitiated:
			d := Derived{Step: domain.StepVerifyOTP}
			if p.Phone != "" {
				if cc, national, ok := phone.Split(p.Phone); ok {
					d.CountryCode, d.PhoneInput = cc, national
				} else {
					d.PhoneInput = p.Phone
				}
			}
			return d
		case domain.OTPVerified:
			return Derived{Step: domain.StepEnterEmail}
		case domain.LoginEmail:
			return Derived{Step: domain.StepVerifyOTP}
		default:
			return Derived{Step: domain.StepInitial}
		}
	}
	if s.Session != nil && s.Session.Email == "" {
		return Derived{Step: domain.StepEnterEmail}
	}
	if s.Session != nil && s.Session.Phone == "" {
		return Derived{Step: domain.StepEnterPhoneAfterGoogle}
	}
	return Derived{Step: domain.StepInitial}
}
