package auth

import (
	"time"

	"github.com/campusmarket/campusmarket/internal/shared"
)

// User represents a registered marketplace account.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// NewUser carries the fields required to persist a registration.
type NewUser struct {
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// RegisterInput is the submitted registration form.
type RegisterInput struct {
	Username string `validate:"required"`
	Email    string `validate:"required"`
	Password string `validate:"required"`
}

// ErrDuplicateEmail is returned when the email is already registered.
var ErrDuplicateEmail = shared.NewDomainError("duplicate email", "Email already registered! Please use a different email.")

// ErrPasswordTooLong is returned for passwords bcrypt cannot hash.
var ErrPasswordTooLong = shared.NewDomainError("password too long", "Password must be at most 72 bytes.")
