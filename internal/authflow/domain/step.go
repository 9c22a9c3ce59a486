package domain

// Step is the form the presentation layer should render. It is always derived, never stored.
type Step string

const (
	StepInitial               Step = "initial"
	StepVerifyOTP             Step = "verify_otp"
	StepEnterEmail            Step = "enter_email"
	StepEnterPhoneAfterGoogle Step = "enter_phone_after_google"
)
