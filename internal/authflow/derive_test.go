package authflow

import (
	"testing"

	"accountability-assistant/backend/internal/authflow/domain"
)

func allPendingKinds() []domain.PendingAction {
	return []domain.PendingAction{
		domain.OTPInitiated{Phone: "+447700900000", Match: domain.AccountNone},
		domain.OTPVerified{Phone: "+447700900000", Match: domain.AccountOpen},
		domain.LoginEmail{Email: "a@b.com"},
		domain.GoogleNeedsPhone{},
		domain.GoogleNeedsOTP{Phone: "+447700900001", Match: domain.AccountOpen},
	}
}

func TestDeriveStep_Pure(t *testing.T) {
	states := []State{
		{},
		{Session: &domain.Session{ID: "u1", Phone: "+447700900000"}},
		{Session: &domain.Session{ID: "u1", Email: "a@b.com"}},
		{Pending: domain.OTPInitiated{Phone: "+447700900000"}},
		{ForceProfileCompletion: true},
	}
	for _, p := range allPendingKinds() {
		states = append(states, State{Pending: p})
	}
	for i, st := range states {
		first := DeriveStep(st)
		second := DeriveStep(st)
		if first != second {
			t.Errorf("state %d: DeriveStep not idempotent: %+v then %+v", i, first, second)
		}
	}
}

func TestDeriveStep_CompleteSessionIgnoresPending(t *testing.T) {
	sess := &domain.Session{ID: "u1", Email: "a@b.com", Phone: "+447700900000"}
	for _, p := range allPendingKinds() {
		got := DeriveStep(State{Session: sess, Pending: p}).Step
		if got != domain.StepInitial {
			t.Errorf("kind %s with complete session: step = %q, want %q", p.Kind(), got, domain.StepInitial)
		}
	}
}

func TestDeriveStep_ForceProfileCompletionWins(t *testing.T) {
	sess := &domain.Session{ID: "u1", Email: "a@b.com", Phone: "+447700900000"}
	got := DeriveStep(State{Session: sess, Pending: domain.GoogleNeedsPhone{}, ForceProfileCompletion: true}).Step
	if got != domain.StepEnterEmail {
		t.Errorf("step = %q, want %q", got, domain.StepEnterEmail)
	}
}

func TestDeriveStep_PendingKinds(t *testing.T) {
	tests := []struct {
		pending domain.PendingAction
		want    domain.Step
	}{
		{domain.GoogleNeedsPhone{}, domain.StepEnterPhoneAfterGoogle},
		{domain.GoogleNeedsOTP{Phone: "+447700900001"}, domain.StepVerifyOTP},
		{domain.OTPInitiated{Phone: "+447700900000"}, domain.StepVerifyOTP},
		{domain.OTPVerified{Phone: "+447700900000"}, domain.StepEnterEmail},
		{domain.LoginEmail{Email: "a@b.com"}, domain.StepVerifyOTP},
	}
	for _, tc := range tests {
		t.Run(string(tc.pending.Kind()), func(t *testing.T) {
			got := DeriveStep(State{Pending: tc.pending}).Step
			if got != tc.want {
				t.Errorf("step = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDeriveStep_OTPInitiatedPrefillsPhone(t *testing.T) {
	d := DeriveStep(State{Pending: domain.OTPInitiated{Phone: "+358401234567"}})
	if d.CountryCode != "+358" {
		t.Errorf("CountryCode = %q, want %q", d.CountryCode, "+358")
	}
	if d.PhoneInput != "401234567" {
		t.Errorf("PhoneInput = %q, want %q", d.PhoneInput, "401234567")
	}
}

type unknownAction struct{ domain.GoogleNeedsPhone }

func TestDeriveStep_UnrecognisedKind(t *testing.T) {
	got := DeriveStep(State{Pending: unknownAction{}}).Step
	if got != domain.StepInitial {
		t.Errorf("step = %q, want %q", got, domain.StepInitial)
	}
}

func TestDeriveStep_SessionFallbacks(t *testing.T) {
	tests := []struct {
		name string
		sess *domain.Session
		want domain.Step
	}{
		{"no session", nil, domain.StepInitial},
		{"missing email", &domain.Session{ID: "u1", Phone: "+447700900000"}, domain.StepEnterEmail},
		{"missing phone", &domain.Session{ID: "u1", Email: "a@b.com"}, domain.StepEnterPhoneAfterGoogle},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := DeriveStep(State{Session: tc.sess}).Step
			if got != tc.want {
				t.Errorf("step = %q, want %q", got, tc.want)
			}
		})
	}
}
