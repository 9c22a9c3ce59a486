package domain

import "time"

// AuthEvent is one recorded auth flow occurrence.
type AuthEvent struct {
	ID        string
	FlowID    string
	Type      string
	UserID    string // empty before sign-in
	Phone     string // masked
	Detail    string
	IP        string
	CreatedAt time.Time
}
