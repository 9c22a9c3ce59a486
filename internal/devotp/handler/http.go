// Package handler serves the dev-only OTP lookup endpoint.
package handler

import (
	"encoding/json"
	"net/http"

	"accountability-assistant/backend/internal/devotp"
)

const devOTPNote = "DEV MODE ONLY"

type response struct {
	OTP  string `json:"otp"`
	Note string `json:"note"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler returns the latest code for ?target= (an E.164 phone or email). Only mounted when dev
// OTP mode is enabled and not in production.
type Handler struct {
	store devotp.Store
}

// New returns a Handler reading from store.
func New(store devotp.Store) *Handler {
	return &Handler{store: store}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	target := r.URL.Query().Get("target")
	if target == "" {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(errorResponse{Error: "target is required"})
		return
	}
	code, ok := h.store.Get(r.Context(), target)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(errorResponse{Error: "OTP not found or expired"})
		return
	}
	_ = json.NewEncoder(w).Encode(response{OTP: code, Note: devOTPNote})
}
