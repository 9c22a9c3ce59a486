package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"accountability-assistant/backend/internal/authflow"
	"accountability-assistant/backend/internal/telemetry/domain"
)

// Source is the value of the source attribute on flow events.
const Source = "authflow"

// Recorder forwards flow events to an EventEmitter without blocking the flow.
type Recorder struct {
	emitter EventEmitter
	flowID  func(context.Context) string
	log     *zap.Logger
}

var _ authflow.EventRecorder = (*Recorder)(nil)

// NewRecorder returns a Recorder over emitter. flowID reads the flow id from the request
// context and may be nil.
func NewRecorder(emitter EventEmitter, flowID func(context.Context) string, log *zap.Logger) *Recorder {
	return &Recorder{emitter: emitter, flowID: flowID, log: log}
}

// Record implements authflow.EventRecorder.
func (r *Recorder) Record(ctx context.Context, e authflow.Event) {
	ev := &domain.Event{
		UserID:    e.UserID,
		Phone:     e.Phone,
		EventType: e.Type,
		Detail:    e.Detail,
		Source:    Source,
		CreatedAt: time.Now().UTC(),
	}
	if r.flowID != nil {
		ev.FlowID = r.flowID(ctx)
	}
	EmitAsync(r.emitter, r.log, ev)
}
