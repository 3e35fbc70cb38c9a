// Package users provides user identity lookup for access-control decisions.
// Accounts are created and authenticated elsewhere; this package only reads.
package users

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no user matches the lookup.
var ErrNotFound = errors.New("user not found")

// User represents a user account. Identity fields (ID, Email) are
// immutable; profile fields may change over time.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Directory looks up users by identifier or email.
type Directory interface {
	// FindByID returns the user with the given id, or ErrNotFound.
	FindByID(ctx context.Context, id int64) (*User, error)

	// FindByEmail returns the user with the given email, matched
	// case-insensitively, or ErrNotFound.
	FindByEmail(ctx context.Context, email string) (*User, error)
}
