package server

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"accountability-assistant/backend/internal/logger"
	"accountability-assistant/backend/internal/ratelimit"
)

// requestLogger puts a request-scoped logger in the context and logs each request on completion.
func requestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			info := &requestInfo{clientIP: remoteIP(r)}
			l := base.With(logger.RequestID(middleware.GetReqID(r.Context())), logger.ClientIP(info.clientIP))
			ctx := logger.ToContext(withRequestInfo(r.Context(), info), l)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			fields := []zap.Field{
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.Status(ww.Status()),
				logger.Duration(time.Since(start)),
			}
			if info.flowID != "" {
				fields = append(fields, logger.FlowID(info.flowID))
			}
			l.Info("http request", fields...)
		})
	}
}

// rateLimit rejects requests over the limiter's budget for the client IP and route. A failing
// limiter lets the request through.
func rateLimit(l ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "otp|" + remoteIP(r) + "|" + r.URL.Path
			res, err := l.Allow(r.Context(), key)
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
				writeJSON(w, http.StatusTooManyRequests, errorResponse{
					Code:  "rate_limited",
					Error: "Too many attempts. Please wait a few minutes and try again.",
				})
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			next.ServeHTTP(w, r)
		})
	}
}

// remoteIP is the host part of RemoteAddr, which middleware.RealIP has already rewritten from
// forwarding headers.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
