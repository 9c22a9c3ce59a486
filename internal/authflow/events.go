package authflow

import "context"

// Event types recorded by the controller.
const (
	EventOTPSent              = "otp_sent"
	EventEmailOTPSent         = "email_otp_sent"
	EventOTPVerified          = "otp_verified"
	EventOTPRejected          = "otp_rejected"
	EventProfileCompleted     = "profile_completed"
	EventOAuthStarted         = "oauth_started"
	EventPhoneLinkRequested   = "phone_link_requested"
	EventPhoneInUse           = "phone_in_use"
	EventDirectoryUnavailable = "directory_unavailable"
	EventRestart              = "restart"
	EventLogout               = "logout"
)

// Event describes one auth flow occurrence. Phone is masked.
type Event struct {
	Type   string
	UserID string
	Phone  string
	Detail string
}

// EventRecorder receives flow events. Recording is best-effort and must not block for long.
type EventRecorder interface {
	Record(ctx context.Context, e Event)
}

// Recorders fans an event out to every non-nil recorder.
type Recorders []EventRecorder

// Record implements EventRecorder.
func (rs Recorders) Record(ctx context.Context, e Event) {
	for _, r := range rs {
		if r != nil {
			r.Record(ctx, e)
		}
	}
}

type noopRecorder struct{}

func (noopRecorder) Record(context.Context, Event) {}
