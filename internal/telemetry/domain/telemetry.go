package domain

import "time"

// Event is an auth flow event as exported to the telemetry pipeline.
type Event struct {
	FlowID    string
	UserID    string
	Phone     string // masked
	EventType string
	Detail    string
	Source    string
	CreatedAt time.Time
}
