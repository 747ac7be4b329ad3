// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2SaltLen = 16        // salt length in bytes
	argon2KeyLen  = 32        // output length in bytes
)

// Supported password hash algorithms.
const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmSHA256   = "sha256"
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a storable hash of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(password, hash string) (bool, error)

	// NeedsUpgrade returns true if the hash is not in the hasher's preferred format.
	NeedsUpgrade(hash string) bool
}

// NewHasher returns a PasswordHasher that hashes with the named algorithm and
// verifies hashes in any supported format.
func NewHasher(algorithm string) (PasswordHasher, error) {
	switch algorithm {
	case "", AlgorithmArgon2id:
		return &formatHasher{primary: NewArgon2idHasher(), preferred: AlgorithmArgon2id}, nil
	case AlgorithmSHA256:
		return &formatHasher{primary: NewDigestHasher(), preferred: AlgorithmSHA256}, nil
	default:
		return nil, oops.Code("AUTH_UNKNOWN_HASH_ALGORITHM").
			With("algorithm", algorithm).
			Errorf("unknown password hash algorithm %q", algorithm)
	}
}

// Argon2idHasher implements PasswordHasher using argon2id.
type Argon2idHasher struct{}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

// Hash produces an argon2id hash of the password.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks if the password matches the argon2id hash.
func (h *Argon2idHasher) Verify(password, encodedHash string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}

	if parts[1] != AlgorithmArgon2id {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	if threads > 255 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("threads value %d exceeds uint8 max", threads)
	}

	keyLen := len(expected)
	if keyLen <= 0 || keyLen > 1<<30 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", keyLen)
	}

	computed := argon2.IDKey([]byte(password), salt, time, memory, uint8(threads), uint32(keyLen))

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// NeedsUpgrade returns true if the hash is not argon2id.
func (h *Argon2idHasher) NeedsUpgrade(hash string) bool {
	return !isArgon2idHash(hash)
}

// DigestHasher hashes passwords as an unsalted lowercase-hex SHA-256 digest.
// Output is deterministic: the same password always yields the same hash.
// It exists to read and write hashes produced by earlier deployments; prefer
// Argon2idHasher for anything new.
type DigestHasher struct{}

// NewDigestHasher creates a new DigestHasher.
func NewDigestHasher() *DigestHasher {
	return &DigestHasher{}
}

// Hash returns the hex SHA-256 digest of the password.
func (h *DigestHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:]), nil
}

// Verify reports whether the digest of password equals hash.
func (h *DigestHasher) Verify(password, hash string) (bool, error) {
	if !isDigestHash(hash) {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid digest format")
	}
	sum := sha256.Sum256([]byte(password))
	computed := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1, nil
}

// NeedsUpgrade always returns true; digests are never the preferred format.
func (h *DigestHasher) NeedsUpgrade(_ string) bool {
	return true
}

// formatHasher hashes with its primary hasher and verifies by the stored hash's shape.
type formatHasher struct {
	primary   PasswordHasher
	preferred string
}

func (h *formatHasher) Hash(password string) (string, error) {
	return h.primary.Hash(password) //nolint:wrapcheck // primary returns coded errors
}

func (h *formatHasher) Verify(password, hash string) (bool, error) {
	switch {
	case isArgon2idHash(hash):
		return NewArgon2idHasher().Verify(password, hash)
	case isDigestHash(hash):
		return NewDigestHasher().Verify(password, hash)
	default:
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("unrecognised hash format")
	}
}

func (h *formatHasher) NeedsUpgrade(hash string) bool {
	if h.preferred == AlgorithmArgon2id {
		return !isArgon2idHash(hash)
	}
	return !isDigestHash(hash)
}

func isArgon2idHash(hash string) bool {
	return strings.HasPrefix(hash, "$argon2id$")
}

func isDigestHash(hash string) bool {
	if len(hash) != sha256.Size*2 {
		return false
	}
	for _, c := range hash {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
