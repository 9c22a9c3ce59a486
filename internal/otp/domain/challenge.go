package domain

import "time"

// Channel is how a code reaches the user.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// Challenge is an outstanding one-time code for Target (an E.164 phone or an email address).
// Only the hash of the code is kept.
type Challenge struct {
	Purpose   string
	Target    string
	Channel   Channel
	CodeHash  string
	Attempts  int
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Key identifies the challenge for purpose and target; a new challenge replaces the old one.
func Key(purpose, target string) string {
	return purpose + ":" + target
}

// Key returns the challenge's storage key.
func (c *Challenge) Key() string {
	return Key(c.Purpose, c.Target)
}
