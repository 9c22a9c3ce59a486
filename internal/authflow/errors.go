package authflow

import "errors"

// Sentinel errors for the auth flow. Adapters wrap their failures in ErrDelivery, ErrInvalidCode
// or ErrNetwork; the HTTP layer maps all of them to status codes.
var (
	// ErrValidation: empty or malformed input, caught before any network call.
	ErrValidation = errors.New("invalid input")
	// ErrDelivery: the provider refused to send an OTP or confirmation email.
	ErrDelivery = errors.New("could not send verification code")
	// ErrInvalidCode: wrong or expired OTP. The user may retry.
	ErrInvalidCode = errors.New("invalid or expired verification code")
	// ErrPhoneInUse: the phone already belongs to a closed account.
	ErrPhoneInUse = errors.New("phone number already in use")
	// ErrNoPendingAction: operation invoked out of sequence. The flow is restarted.
	ErrNoPendingAction = errors.New("no sign-in in progress")
	// ErrNetwork: transport failure talking to an external service.
	ErrNetwork = errors.New("service unavailable")
	// ErrSuperseded: the flow moved on while the operation was in flight; its result was dropped.
	ErrSuperseded = errors.New("operation superseded")
)

// Message returns the user-visible text for err, or "" for nil and ErrSuperseded.
func Message(err error) string {
	switch {
	case err == nil, errors.Is(err, ErrSuperseded):
		return ""
	case errors.Is(err, ErrValidation):
		var ve validationError
		if errors.As(err, &ve) {
			return ve.msg
		}
		return "Please check the details you entered."
	case errors.Is(err, ErrDelivery):
		return "We couldn't send a verification code. Please check the details and try again."
	case errors.Is(err, ErrInvalidCode):
		return "That code is invalid or has expired. Please try again."
	case errors.Is(err, ErrPhoneInUse):
		return "This phone number is already linked to another account."
	case errors.Is(err, ErrNoPendingAction):
		return "Your sign-in session has expired. Please start again."
	case errors.Is(err, ErrNetwork):
		return "We're having trouble reaching our servers. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}

// validationError carries a user-facing message and matches ErrValidation.
type validationError struct{ msg string }

func (e validationError) Error() string        { return e.msg }
func (e validationError) Is(target error) bool { return target == ErrValidation }

// Invalid returns an error matching ErrValidation whose Message is msg.
func Invalid(msg string) error { return validationError{msg: msg} }
