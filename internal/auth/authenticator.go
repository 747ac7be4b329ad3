// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/samber/oops"
)

// dummyPasswordHash is verified against when no user matches the email, and
// alongside any stored hash that is not argon2id, so every login attempt
// costs one argon2id verification. It never matches a password.
//
//nolint:gosec // G101: fake hash, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Authenticator resolves credentials and bearer tokens to users.
type Authenticator struct {
	users  UserRepository
	hasher PasswordHasher
	tokens *TokenCodec
	logger *slog.Logger
}

// NewAuthenticator creates a new Authenticator. A nil logger uses slog.Default().
func NewAuthenticator(users UserRepository, hasher PasswordHasher, tokens *TokenCodec, logger *slog.Logger) (*Authenticator, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("token codec is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{users: users, hasher: hasher, tokens: tokens, logger: logger}, nil
}

// Login verifies email and password and issues a token for the user.
// Unknown emails and wrong passwords both fail with ErrInvalidCredentials,
// and every attempt runs one argon2id verification whatever the configured
// algorithm or the stored hash format.
func (a *Authenticator) Login(ctx context.Context, email, password string) (string, error) {
	user, lookupErr := a.users.GetByEmail(ctx, email)

	var targetHash string
	userExists := false
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
		userExists = true
	case errors.Is(lookupErr, ErrNotFound):
		targetHash = dummyPasswordHash
	default:
		return "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get user by email").
			Wrap(lookupErr)
	}

	if !isArgon2idHash(targetHash) {
		_, _ = a.hasher.Verify(password, dummyPasswordHash)
	}

	valid, verifyErr := a.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !userExists {
			return "", invalidCredentials("unknown email")
		}
		return "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID).
			Wrap(verifyErr)
	}

	if !userExists {
		return "", invalidCredentials("unknown email")
	}
	if !valid {
		return "", invalidCredentials("password mismatch")
	}

	if a.hasher.NeedsUpgrade(user.PasswordHash) {
		a.logger.InfoContext(ctx, "stored password hash is not in the preferred format",
			"user_id", user.ID)
	}

	token, err := a.tokens.Issue(user.ID, 0)
	if err != nil {
		return "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue token").
			With("user_id", user.ID).
			Wrap(err)
	}
	return token, nil
}

// Register creates a user with the given email and password.
func (a *Authenticator) Register(ctx context.Context, email, password string) (*User, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, ErrEmptyPassword
	}

	_, err := a.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, emailTaken(email)
	case !errors.Is(err, ErrNotFound):
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	hash, err := a.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(email, hash)
	if err != nil {
		return nil, err
	}

	if err := a.users.Create(ctx, user); err != nil {
		// Lost a race with a concurrent registration.
		if errors.Is(err, ErrEmailTaken) {
			return nil, emailTaken(email)
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	a.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// Resolve returns the user a token was issued to. Undecodable tokens and
// tokens whose subject no longer exists both fail with ErrInvalidToken.
func (a *Authenticator) Resolve(ctx context.Context, token string) (*User, error) {
	subject, err := a.tokens.Decode(token)
	if err != nil {
		return nil, err
	}

	user, err := a.users.GetByID(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalidToken("unknown subject")
		}
		return nil, oops.Code("AUTH_RESOLVE_FAILED").
			With("operation", "get user by id").
			With("user_id", subject).
			Wrap(err)
	}
	return user, nil
}

// TokenCarrier yields the raw token carried by a request.
type TokenCarrier interface {
	Token() (string, bool)
}

// BearerHeader is an Authorization header value of the form "Bearer <token>".
type BearerHeader string

// Token returns the credentials after a case-insensitive "Bearer" scheme.
func (h BearerHeader) Token() (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(string(h)), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// QueryToken is a token passed as a query parameter.
type QueryToken string

// Token returns the parameter value.
func (q QueryToken) Token() (string, bool) {
	return string(q), q != ""
}

// CurrentUser extracts the token from carrier and resolves it.
// A missing token fails with ErrInvalidToken.
func (a *Authenticator) CurrentUser(ctx context.Context, carrier TokenCarrier) (*User, error) {
	token, ok := carrier.Token()
	if !ok {
		return nil, invalidToken("missing token")
	}
	return a.Resolve(ctx, token)
}

func invalidCredentials(reason string) error {
	return oops.Code(CodeInvalidCredentials).
		With("reason", reason).
		Wrap(ErrInvalidCredentials)
}

func emailTaken(email string) error {
	return oops.Code(CodeEmailTaken).
		With("email", email).
		Wrap(ErrEmailTaken)
}
