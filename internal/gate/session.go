// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

package gate

import (
	"io"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/lobby/internal/auth"
)

// Session is an admitted real-time connection, bound at admission to a room
// and the user its token resolved to.
type Session struct {
	ID       ulid.ULID
	Room     string
	User     *auth.User
	OpenedAt time.Time
}

type entry struct {
	session *Session
	conn    io.Closer
}

// registry tracks the sessions whose echo loops are running. Once closed it
// admits no further sessions.
type registry struct {
	mu       sync.RWMutex
	sessions map[ulid.ULID]entry
	closed   bool
}

func newRegistry() *registry {
	return &registry{sessions: make(map[ulid.ULID]entry)}
}

// add tracks s and reports whether it was admitted. It returns false after
// closeAll; the caller owns conn in that case.
func (r *registry) add(s *Session, conn io.Closer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.sessions[s.ID] = entry{session: s, conn: conn}
	return true
}

func (r *registry) remove(id ulid.ULID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// snapshot returns copies of the tracked sessions, oldest first.
func (r *registry) snapshot() []Session {
	r.mu.RLock()
	out := make([]Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, *e.session)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b Session) int { return a.ID.Compare(b.ID) })
	return out
}

// closeAll stops admitting sessions, closes every tracked connection and
// returns how many it closed. Sessions deregister themselves as their loops
// exit.
func (r *registry) closeAll() int {
	r.mu.Lock()
	r.closed = true
	conns := make([]io.Closer, 0, len(r.sessions))
	for _, e := range r.sessions {
		conns = append(conns, e.conn)
	}
	r.mu.Unlock()

	for _, c := range conns {
		_ = c.Close() //nolint:errcheck // best effort during shutdown
	}
	return len(conns)
}
