// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

package auth

import "errors"

// Sentinel error kinds. Callers match them with errors.Is; the oops errors
// returned by this package wrap exactly one of them.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmailTaken is returned when registering an email that already has an account.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials is returned for any failed login, whatever the cause.
	ErrInvalidCredentials = errors.New("incorrect email or password")

	// ErrInvalidToken is returned for any token that cannot be resolved to a user.
	ErrInvalidToken = errors.New("invalid token")
)

// Error codes attached to the unified failures.
const (
	CodeEmailTaken         = "AUTH_EMAIL_TAKEN"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeInvalidToken       = "AUTH_INVALID_TOKEN"
)
