// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

// Package memory provides an in-memory auth.UserRepository for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/lobby/internal/auth"
)

// UserRepository is an in-memory auth.UserRepository. IDs start at 1 and
// increase monotonically. Contents are lost when the process exits.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[int64]auth.User
	byEmail map[string]int64
	lastID  int64
	now     func() time.Time
}

// NewUserRepository creates an empty repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[int64]auth.User),
		byEmail: make(map[string]int64),
		now:     time.Now,
	}
}

// Create stores a new user, assigning its ID and CreatedAt.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[user.Email]; taken {
		return oops.Code("USER_EMAIL_TAKEN").
			With("email", user.Email).
			Wrap(auth.ErrEmailTaken)
	}

	r.lastID++
	user.ID = r.lastID
	user.CreatedAt = r.now().UTC()

	r.byID[user.ID] = *user
	r.byEmail[user.Email] = user.ID
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(_ context.Context, id int64) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id).
			Wrap(auth.ErrNotFound)
	}
	return &user, nil
}

// GetByEmail retrieves a user by exact email.
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	user := r.byID[id]
	return &user, nil
}

// Count returns the number of stored users.
func (r *UserRepository) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.byID)), nil
}

var _ auth.UserRepository = (*UserRepository)(nil)
