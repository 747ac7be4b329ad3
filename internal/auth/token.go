// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

package auth

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultTokenTTL is the token lifetime used when neither the codec nor the caller sets one.
const DefaultTokenTTL = 30 * time.Minute

// TokenCodec issues and verifies HS256-signed bearer tokens whose subject is a user ID.
// Tokens are self-contained; nothing is stored server side.
type TokenCodec struct {
	key    []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// TokenOption configures a TokenCodec.
type TokenOption func(*TokenCodec)

// WithClock overrides the codec's time source. Used by tests to cross expiry.
func WithClock(now func() time.Time) TokenOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

// NewTokenCodec creates a codec signing with key. A non-positive ttl selects DefaultTokenTTL.
func NewTokenCodec(key []byte, ttl time.Duration, opts ...TokenOption) (*TokenCodec, error) {
	if len(key) == 0 {
		return nil, oops.Code("AUTH_SIGNING_KEY_EMPTY").Errorf("token signing key cannot be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	c := &TokenCodec{
		key: append([]byte(nil), key...),
		ttl: ttl,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)
	return c, nil
}

// TTL returns the codec's default token lifetime.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a token for subject that expires ttl from now.
// A non-positive ttl uses the codec default.
func (c *TokenCodec) Issue(subject int64, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := c.now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(subject, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        ulid.Make().String(),
	})

	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", oops.Code("AUTH_TOKEN_SIGN_FAILED").
			With("subject", subject).
			Wrap(err)
	}
	return signed, nil
}

// Decode verifies the token's signature and expiry and returns its subject.
// Every failure is reported as ErrInvalidToken; the underlying reason is only
// available as error context for logging.
func (c *TokenCodec) Decode(tokenString string) (int64, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := c.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return c.key, nil
	})
	if err != nil {
		return 0, invalidToken(err.Error())
	}
	if !token.Valid {
		return 0, invalidToken("token not valid")
	}

	if claims.Subject == "" {
		return 0, invalidToken("missing subject")
	}
	subject, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, invalidToken("non-numeric subject")
	}
	return subject, nil
}

func invalidToken(reason string) error {
	return oops.Code(CodeInvalidToken).
		With("reason", reason).
		Wrap(ErrInvalidToken)
}
