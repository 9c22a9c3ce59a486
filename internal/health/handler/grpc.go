// Package handler reports service health over gRPC (grpc.health.v1) and HTTP (/healthz) from the
// same set of dependency checks.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const checkTimeout = 2 * time.Second

// Pinger is a dependency that can be checked, e.g. *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// PingContext calls f.
func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// Report is the outcome of one Check.
type Report struct {
	Serving    bool              `json:"serving"`
	Components map[string]string `json:"components,omitempty"`
}

// Server runs the dependency checks.
type Server struct {
	mu      sync.RWMutex
	pingers map[string]Pinger
	log     *zap.Logger
}

// NewServer returns a Server with no dependencies; it reports serving until one is added.
func NewServer(log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{pingers: make(map[string]Pinger), log: log}
}

// Add registers a dependency under name. A nil p is ignored.
func (s *Server) Add(name string, p Pinger) {
	if p == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingers[name] = p
}

// Check pings every dependency. The service is serving only if all of them answer.
func (s *Server) Check(ctx context.Context) Report {
	s.mu.RLock()
	names := make([]string, 0, len(s.pingers))
	for name := range s.pingers {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)

	rep := Report{Serving: true, Components: make(map[string]string, len(names))}
	for _, name := range names {
		s.mu.RLock()
		p := s.pingers[name]
		s.mu.RUnlock()

		pctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := p.PingContext(pctx)
		cancel()
		if err != nil {
			rep.Serving = false
			rep.Components[name] = "unavailable"
			s.log.Warn("health: dependency check failed", zap.String("component", name), zap.Error(err))
			continue
		}
		rep.Components[name] = "ok"
	}
	return rep
}

// Watch re-checks every interval and publishes the result for service (and the overall "")
// on hs until ctx is done.
func (s *Server) Watch(ctx context.Context, hs *health.Server, service string, interval time.Duration) {
	publish := func() {
		st := healthpb.HealthCheckResponse_SERVING
		if !s.Check(ctx).Serving {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus("", st)
		hs.SetServingStatus(service, st)
	}
	publish()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-t.C:
			publish()
		}
	}
}

// ServeHTTP writes the report as JSON with 200 when serving and 503 otherwise.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rep := s.Check(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if !rep.Serving {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(rep)
}
