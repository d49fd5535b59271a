package model

import (
	"errors"
	"net/mail"
	"strings"
	"time"
)

// User is an account on the server.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Identity returns the public identity of the user.
func (u User) Identity() Identity {
	return Identity{ID: u.ID, Email: u.Email}
}

// Identity is the authenticated user as seen by the client.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// ValidatePassword checks password strength requirements.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return errors.New("password must be at least 8 characters")
	}
	return nil
}

// NormalizeEmail validates an email address and returns it lowercased.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", errors.New("invalid email address")
	}
	return strings.ToLower(addr.Address), nil
}
