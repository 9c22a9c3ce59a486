// Package audit records auth flow events to a persistent trail.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"accountability-assistant/backend/internal/audit/domain"
	auditrepo "accountability-assistant/backend/internal/audit/repository"
	"accountability-assistant/backend/internal/authflow"
)

// Extractor reads a request attribute (client IP, flow id) from the context.
type Extractor func(context.Context) string

// writeTimeout bounds a single background insert.
const writeTimeout = 5 * time.Second

// Logger implements authflow.EventRecorder over the audit repository. Recording is best-effort:
// inserts run off the request path and failures are logged, never reaching the flow.
type Logger struct {
	repo   auditrepo.Repository
	ip     Extractor
	flowID Extractor
	log    *zap.Logger
	now    func() time.Time
	wg     sync.WaitGroup
}

var _ authflow.EventRecorder = (*Logger)(nil)

// NewLogger returns a Logger that persists to repo. ip and flowID may be nil; then the IP is
// recorded as "unknown" and the flow id is empty.
func NewLogger(repo auditrepo.Repository, ip, flowID Extractor, log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{repo: repo, ip: ip, flowID: flowID, log: log, now: time.Now}
}

// Record queues one event for writing. Request attributes are read from ctx before Record
// returns; the insert itself uses its own timeout so a finished request does not cancel it.
func (l *Logger) Record(ctx context.Context, e authflow.Event) {
	if l.repo == nil {
		return
	}
	entry := &domain.AuthEvent{
		ID:        uuid.NewString(),
		Type:      e.Type,
		UserID:    e.UserID,
		Phone:     e.Phone,
		Detail:    e.Detail,
		IP:        "unknown",
		CreatedAt: l.now().UTC(),
	}
	if l.ip != nil {
		if ip := l.ip(ctx); ip != "" {
			entry.IP = ip
		}
	}
	if l.flowID != nil {
		entry.FlowID = l.flowID(ctx)
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		wctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := l.repo.Create(wctx, entry); err != nil {
			l.log.Warn("audit: failed to record event", zap.String("type", entry.Type), zap.Error(err))
		}
	}()
}

// Wait blocks until every queued event has been written or has failed.
func (l *Logger) Wait() {
	l.wg.Wait()
}

// Recent returns the user's latest events.
func (l *Logger) Recent(ctx context.Context, userID string, limit int) ([]*domain.AuthEvent, error) {
	if l.repo == nil || userID == "" {
		return nil, nil
	}
	return l.repo.ListByUser(ctx, userID, limit)
}
