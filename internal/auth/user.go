// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

package auth

import (
	"context"
	"time"

	"github.com/samber/oops"
)

// MaxEmailLength bounds the stored email.
const MaxEmailLength = 254

// User is an account identity. Users are created once by registration and
// are never modified afterwards.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// NewUser creates an unsaved User. The repository assigns ID and CreatedAt.
func NewUser(email, passwordHash string) (*User, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_USER").Errorf("password hash cannot be empty")
	}
	return &User{Email: email, PasswordHash: passwordHash}, nil
}

// ValidateEmail checks that email is non-empty and within MaxEmailLength.
// The value is an opaque login key: its format is not checked, and it is
// compared exactly as stored.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code("AUTH_INVALID_EMAIL").
			With("max", MaxEmailLength).
			Errorf("email must be at most %d characters", MaxEmailLength)
	}
	return nil
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user and sets its ID and CreatedAt.
	// The uniqueness check and insert are atomic; a conflicting email
	// returns an error wrapping ErrEmailTaken.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	// Returns an error wrapping ErrNotFound if no user has the given ID.
	GetByID(ctx context.Context, id int64) (*User, error)

	// GetByEmail retrieves a user by exact email.
	// Returns an error wrapping ErrNotFound if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Count returns the number of stored users.
	Count(ctx context.Context) (int64, error)
}
