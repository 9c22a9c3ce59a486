// Package server exposes the auth flow to the browser over HTTP/JSON and serves gRPC health.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"accountability-assistant/backend/internal/audit/domain"
	"accountability-assistant/backend/internal/ratelimit"
	"accountability-assistant/backend/internal/session"
)

// FlowCookie is the name of the cookie carrying the flow id.
const FlowCookie = "aa_flow"

const maxBodyBytes = 4 << 10

// ActivityLister returns a user's recent auth events.
type ActivityLister interface {
	Recent(ctx context.Context, userID string, limit int) ([]*domain.AuthEvent, error)
}

// Deps holds the HTTP server dependencies. Optional fields may be nil.
type Deps struct {
	Flows *session.Store
	// Health serves /healthz.
	Health http.Handler
	// Limiter bounds the OTP-sending routes. Optional.
	Limiter ratelimit.Limiter
	// DevOTP serves /dev/otp. Set only when dev OTP mode is enabled outside production.
	DevOTP http.Handler
	// Activity serves /auth/activity. Optional.
	Activity ActivityLister

	// AppBaseURL is where the browser is sent after the OAuth callback.
	AppBaseURL string
	// CallbackURL is the OAuth redirect target handed to the identity provider.
	CallbackURL        string
	DefaultCountryCode string
	CookieSecure       bool
	FlowTTL            time.Duration

	Log *zap.Logger
}

// NewRouter returns the BFF router.
func NewRouter(deps Deps) http.Handler {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	h := &handlers{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.Log))
	r.Use(middleware.Recoverer)

	if deps.Health != nil {
		r.Method(http.MethodGet, "/healthz", deps.Health)
	}
	if deps.DevOTP != nil {
		r.Method(http.MethodGet, "/dev/otp", deps.DevOTP)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Use(h.withFlow)
		r.Get("/state", h.state)
		r.Get("/callback", h.oauthCallback)
		r.Get("/activity", h.activity)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequestSize(maxBodyBytes))
			r.Post("/verify", h.verifyOTP)
			r.Post("/profile/email", h.completeProfile)
			r.Post("/google", h.beginGoogle)
			r.Post("/restart", h.restart)
			r.Post("/logout", h.logout)

			r.Group(func(r chi.Router) {
				r.Use(rateLimit(deps.Limiter))
				r.Post("/phone", h.beginPhone)
				r.Post("/email", h.beginEmail)
				r.Post("/google/phone", h.addPhoneAfterGoogle)
			})
		})
	})
	return r
}
