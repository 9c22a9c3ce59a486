package domain

import (
	"errors"
	"time"
)

// User is an account known to the local identity provider.
type User struct {
	ID        string
	Email     string
	Name      string
	Phone     string // E.164; set once verified by OTP
	Provider  string // how the account first signed in: phone, email or google
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ErrNoContact is returned by Validate for a user with neither email nor phone.
var ErrNoContact = errors.New("user: email or phone is required")

// Validate validates the user for persistence.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("user: id is required")
	}
	if u.Email == "" && u.Phone == "" {
		return ErrNoContact
	}
	return nil
}
