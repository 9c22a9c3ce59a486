package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"accountability-assistant/backend/internal/authflow"
	"accountability-assistant/backend/internal/authflow/domain"
	"accountability-assistant/backend/internal/logger"
)

const activityLimit = 20

// OAuthCompleter is implemented by identity providers that finish an OAuth sign-in from the
// authorization code the browser brings back to the callback.
type OAuthCompleter interface {
	CompleteOAuth(ctx context.Context, code string) (*domain.Session, error)
}

type handlers struct {
	deps Deps
}

type phoneRequest struct {
	Phone       string `json:"phone"`
	CountryCode string `json:"country_code"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type activityEntry struct {
	Type      string `json:"type"`
	Detail    string `json:"detail,omitempty"`
	IP        string `json:"ip"`
	CreatedAt string `json:"created_at"`
}

// withFlow resolves the browser's flow from its cookie, creating one if needed. The cookie is
// re-issued on every request so its lifetime slides with the server-side flow TTL.
func (h *handlers) withFlow(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(FlowCookie); err == nil {
			id = c.Value
		}
		f, _, err := h.deps.Flows.Resolve(r.Context(), id)
		if err != nil {
			logger.From(r.Context()).Error("flow unavailable", logger.Err(err))
			status, code := errorCode(err)
			writeJSON(w, status, errorResponse{Code: code, Error: authflow.Message(err)})
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     FlowCookie,
			Value:    f.ID,
			Path:     "/",
			MaxAge:   int(h.deps.FlowTTL.Seconds()),
			HttpOnly: true,
			Secure:   h.deps.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
		next.ServeHTTP(w, r.WithContext(withFlow(r.Context(), f)))
	})
}

// respond writes the flow's view, with err mapped to a status and message.
func (h *handlers) respond(w http.ResponseWriter, r *http.Request, err error, redirect string) {
	resp := flowResponse{View: h.view(r), RedirectURL: redirect}
	status := http.StatusOK
	if err != nil {
		status, resp.Code = errorCode(err)
		resp.Error = authflow.Message(err)
		if status == http.StatusInternalServerError {
			logger.From(r.Context()).Error("auth operation failed", logger.Err(err))
		}
	}
	writeJSON(w, status, resp)
}

func (h *handlers) view(r *http.Request) authflow.View {
	v := flowFrom(r.Context()).Controller.View()
	if v.CountryCode == "" {
		v.CountryCode = h.deps.DefaultCountryCode
	}
	return v
}

// decode reads a JSON body into dst, answering 400 itself on failure.
func (h *handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respond(w, r, authflow.Invalid("Malformed request."), "")
		return false
	}
	return true
}

func (h *handlers) state(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, nil, "")
}

func (h *handlers) beginPhone(w http.ResponseWriter, r *http.Request) {
	var in phoneRequest
	if !h.decode(w, r, &in) {
		return
	}
	err := flowFrom(r.Context()).Controller.BeginPhoneSignIn(r.Context(), in.Phone, in.CountryCode)
	h.respond(w, r, err, "")
}

func (h *handlers) beginEmail(w http.ResponseWriter, r *http.Request) {
	var in emailRequest
	if !h.decode(w, r, &in) {
		return
	}
	err := flowFrom(r.Context()).Controller.BeginEmailSignIn(r.Context(), in.Email)
	h.respond(w, r, err, "")
}

func (h *handlers) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var in codeRequest
	if !h.decode(w, r, &in) {
		return
	}
	_, err := flowFrom(r.Context()).Controller.VerifyOTP(r.Context(), in.Code)
	h.respond(w, r, err, "")
}

func (h *handlers) completeProfile(w http.ResponseWriter, r *http.Request) {
	var in emailRequest
	if !h.decode(w, r, &in) {
		return
	}
	err := flowFrom(r.Context()).Controller.CompleteProfileWithEmail(r.Context(), in.Email)
	h.respond(w, r, err, "")
}

func (h *handlers) beginGoogle(w http.ResponseWriter, r *http.Request) {
	target, err := flowFrom(r.Context()).Controller.BeginGoogleSignIn(r.Context(), h.deps.CallbackURL)
	h.respond(w, r, err, target)
}

// oauthCallback completes Google sign-in and sends the browser back to the app. The controller
// picks the new session up through its session-change subscription.
func (h *handlers) oauthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	log := logger.From(r.Context())
	if e := q.Get("error"); e != "" {
		log.Info("oauth denied by provider", logger.Err(oauthError(e, q.Get("error_description"))))
		h.backToApp(w, r, "oauth_denied")
		return
	}
	code := q.Get("code")
	completer, ok := flowFrom(r.Context()).Provider.(OAuthCompleter)
	if code == "" || !ok {
		h.backToApp(w, r, "oauth_invalid")
		return
	}
	if _, err := completer.CompleteOAuth(r.Context(), code); err != nil {
		log.Warn("oauth completion failed", logger.Err(err))
		h.backToApp(w, r, "oauth_failed")
		return
	}
	h.backToApp(w, r, "")
}

func (h *handlers) backToApp(w http.ResponseWriter, r *http.Request, authError string) {
	target := h.deps.AppBaseURL
	if target == "" {
		target = "/"
	}
	if authError != "" {
		if u, err := url.Parse(target); err == nil {
			q := u.Query()
			q.Set("auth_error", authError)
			u.RawQuery = q.Encode()
			target = u.String()
		}
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *handlers) addPhoneAfterGoogle(w http.ResponseWriter, r *http.Request) {
	var in phoneRequest
	if !h.decode(w, r, &in) {
		return
	}
	err := flowFrom(r.Context()).Controller.AddPhoneAfterGoogle(r.Context(), in.Phone, in.CountryCode)
	h.respond(w, r, err, "")
}

func (h *handlers) restart(w http.ResponseWriter, r *http.Request) {
	flowFrom(r.Context()).Controller.Restart(r.Context())
	h.respond(w, r, nil, "")
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	err := flowFrom(r.Context()).Controller.Logout(r.Context())
	h.respond(w, r, err, "")
}

// activity lists the signed-in user's recent auth events.
func (h *handlers) activity(w http.ResponseWriter, r *http.Request) {
	if h.deps.Activity == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Code: "not_found", Error: "Activity is not recorded."})
		return
	}
	st := flowFrom(r.Context()).Controller.State()
	if st.Session == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Code: "signed_out", Error: "Please sign in."})
		return
	}
	events, err := h.deps.Activity.Recent(r.Context(), st.Session.ID, activityLimit)
	if err != nil {
		logger.From(r.Context()).Error("activity lookup failed", logger.Err(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Code: "unavailable", Error: authflow.Message(authflow.ErrNetwork)})
		return
	}
	out := make([]activityEntry, 0, len(events))
	for _, e := range events {
		out = append(out, activityEntry{Type: e.Type, Detail: e.Detail, IP: e.IP, CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}
