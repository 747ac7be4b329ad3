// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

// Package auth provides the credential lifecycle for Lobby accounts.
//
// # Domain Types
//
// User is the account record. NewUser validates the email and requires a
// password hash; repositories assign the ID and creation time. Users are
// never updated or deleted by this package.
//
// # Credentials
//
//   - PasswordHasher - one-way password hashing (argon2id by default, SHA-256
//     digests for compatibility) with verification by stored format
//   - TokenCodec - HS256 bearer tokens carrying the user ID as subject
//   - Authenticator - login, registration, and token resolution
//
// # Failures
//
// Failed logins and unusable tokens are deliberately unified: every cause
// yields ErrInvalidCredentials or ErrInvalidToken respectively, carrying a
// stable oops code. The specific cause is attached as oops context under
// "reason" and is meant for logs, not clients.
package auth
