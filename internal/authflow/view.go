package authflow

import (
	"accountability-assistant/backend/internal/authflow/domain"
)

// SessionView is the session as exposed to presentation code.
type SessionView struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// View is what the presentation layer renders from.
type View struct {
	Step                domain.Step  `json:"step"`
	Loading             bool         `json:"loading"`
	PendingKind         domain.Kind  `json:"pending_kind,omitempty"`
	PendingPhoneDisplay string       `json:"pending_phone_display,omitempty"`
	PendingEmail        string       `json:"pending_email,omitempty"`
	PhoneInput          string       `json:"phone_input,omitempty"`
	CountryCode         string       `json:"country_code,omitempty"`
	ErrorMessage        string       `json:"error_message,omitempty"`
	Session             *SessionView `json:"session,omitempty"`
}

// View returns the current presentation projection.
func (c *Controller) View() View {
	c.mu.Lock()
	st := State{Session: c.session.Clone(), Pending: c.pending, ForceProfileCompletion: c.forceProfile}
	loading := c.inflight > 0
	errMsg := c.errMsg
	c.mu.Unlock()

	d := DeriveStep(st)
	v := View{
		Step:         d.Step,
		Loading:      loading,
		PhoneInput:   d.PhoneInput,
		CountryCode:  d.CountryCode,
		ErrorMessage: errMsg,
	}
	if st.Pending != nil {
		v.PendingKind = st.Pending.Kind()
		v.PendingPhoneDisplay = domain.PhoneOf(st.Pending)
		if le, ok := st.Pending.(domain.LoginEmail); ok {
			v.PendingEmail = le.Email
		}
	}
	if s := st.Session; s != nil {
		v.Session = &SessionView{ID: s.ID, Name: s.Name, Email: s.Email, Phone: s.Phone}
	}
	return v
}
