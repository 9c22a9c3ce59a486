package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"accountability-assistant/backend/internal/authflow"
)

// flowResponse is the body of every /auth response.
type flowResponse struct {
	View        authflow.View `json:"view"`
	RedirectURL string        `json:"redirect_url,omitempty"`
	Code        string        `json:"code,omitempty"`
	Error       string        `json:"error,omitempty"`
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorCode maps a flow error to its HTTP status and machine-readable code.
func errorCode(err error) (int, string) {
	switch {
	case errors.Is(err, authflow.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, authflow.ErrDelivery):
		return http.StatusBadGateway, "delivery_failed"
	case errors.Is(err, authflow.ErrInvalidCode):
		return http.StatusUnprocessableEntity, "invalid_code"
	case errors.Is(err, authflow.ErrPhoneInUse):
		return http.StatusConflict, "phone_in_use"
	case errors.Is(err, authflow.ErrNoPendingAction):
		return http.StatusConflict, "no_pending_action"
	case errors.Is(err, authflow.ErrNetwork):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, authflow.ErrSuperseded):
		return http.StatusConflict, "superseded"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

type providerError struct{ code, desc string }

func (e providerError) Error() string {
	if e.desc == "" {
		return e.code
	}
	return e.code + ": " + e.desc
}

func oauthError(code, desc string) error { return providerError{code: code, desc: desc} }
