// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

package gate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"golang.org/x/net/websocket"

	"github.com/holomush/lobby/internal/auth"
	"github.com/holomush/lobby/internal/observability"
	"github.com/holomush/lobby/internal/origin"
	"github.com/holomush/lobby/pkg/errutil"
)

// ClosePolicyViolation is the websocket close status sent to connections
// whose token does not resolve.
const ClosePolicyViolation = 1008

// Authenticator resolves the token carried by a connection.
type Authenticator interface {
	CurrentUser(ctx context.Context, carrier auth.TokenCarrier) (*auth.User, error)
}

// Option configures a Gate.
type Option func(*Gate)

// WithOrigins restricts the handshake to origins allowed by policy. An
// empty or nil policy accepts any origin, including none.
func WithOrigins(policy *origin.Policy) Option {
	return func(g *Gate) { g.origins = policy }
}

// WithMetrics records session and rejection metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithClock sets the time source for Session.OpenedAt.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithMaxMessageBytes bounds a single received message. Larger messages end
// the session. Zero keeps the websocket package default.
func WithMaxMessageBytes(n int) Option {
	return func(g *Gate) { g.maxMessageBytes = n }
}

// Gate admits and serves real-time sessions.
type Gate struct {
	authn           Authenticator
	origins         *origin.Policy
	metrics         *observability.Metrics
	logger          *slog.Logger
	now             func() time.Time
	maxMessageBytes int
	sessions        *registry
}

// New creates a Gate that resolves tokens with authn.
func New(authn Authenticator, opts ...Option) (*Gate, error) {
	if authn == nil {
		return nil, oops.Code("GATE_INVALID_DEPENDENCY").Errorf("authenticator is required")
	}
	g := &Gate{
		authn:    authn,
		logger:   slog.Default(),
		now:      time.Now,
		sessions: newRegistry(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Open resolves token and, on success, returns a session for room. The
// session is not tracked until its connection is being served.
func (g *Gate) Open(ctx context.Context, room, token string) (*Session, error) {
	user, err := g.authn.CurrentUser(ctx, auth.QueryToken(token))
	if err != nil {
		return nil, err //nolint:wrapcheck // unified token failure passes through unchanged
	}
	return &Session{
		ID:       ulid.Make(),
		Room:     room,
		User:     user,
		OpenedAt: g.now(),
	}, nil
}

// ServeHTTP handles GET /ws/game?room=<room>&token=<token>.
func (g *Gate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	room := query.Get("room")

	handler := websocket.Handler(reject)
	session, err := g.Open(r.Context(), room, query.Get("token"))
	if err != nil {
		g.logRejection(r.Context(), room, err)
		g.metrics.GateRejected()
	} else {
		handler = func(conn *websocket.Conn) { g.serve(conn, session) }
	}

	websocket.Server{Handshake: g.handshake, Handler: handler}.ServeHTTP(w, r)
}

// Count returns the number of sessions being served.
func (g *Gate) Count() int {
	return g.sessions.count()
}

// Sessions returns a snapshot of the sessions being served, oldest first.
func (g *Gate) Sessions() []Session {
	return g.sessions.snapshot()
}

// Close closes the connections of all sessions being served. Their echo
// loops end as if the peers had disconnected. Connections admitted after
// Close are closed without starting a session.
func (g *Gate) Close() {
	if n := g.sessions.closeAll(); n > 0 {
		g.logger.Info("closed open sessions", "count", n)
	}
}

// handshake enforces the origin policy before the upgrade is accepted.
func (g *Gate) handshake(cfg *websocket.Config, r *http.Request) error {
	o, err := websocket.Origin(cfg, r)
	if err != nil {
		return oops.Code("GATE_BAD_ORIGIN").Wrap(err)
	}
	cfg.Origin = o
	if g.origins.Empty() {
		return nil
	}
	if o == nil || !g.origins.Allows(o.Scheme+"://"+o.Host) {
		g.logger.WarnContext(r.Context(), "websocket origin rejected", "origin", r.Header.Get("Origin"))
		return oops.Code("GATE_ORIGIN_DENIED").With("origin", r.Header.Get("Origin")).Errorf("origin not allowed")
	}
	return nil
}

// reject sends the policy violation close frame and returns. The server
// closes the underlying connection when the handler returns.
func reject(conn *websocket.Conn) {
	_ = conn.WriteClose(ClosePolicyViolation) //nolint:errcheck // peer may already be gone
}

func (g *Gate) serve(conn *websocket.Conn, s *Session) {
	defer func() {
		_ = conn.Close() //nolint:errcheck // peer may already be gone
	}()
	if g.maxMessageBytes > 0 {
		conn.MaxPayloadBytes = g.maxMessageBytes
	}

	logger := g.logger.With("session_id", s.ID.String(), "room", s.Room, "user_id", s.User.ID)
	if !g.sessions.add(s, conn) {
		logger.Info("session refused, gate closed")
		return
	}
	g.metrics.SessionOpened()
	defer func() {
		g.sessions.remove(s.ID)
		g.metrics.SessionClosed()
	}()

	logger.Info("session opened")

	messages := 0
	for {
		var f frame
		if err := frameCodec.Receive(conn, &f); err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug("session receive ended", "error", err)
			}
			break
		}
		if err := frameCodec.Send(conn, &f); err != nil {
			logger.Debug("session send failed", "error", err)
			break
		}
		messages++
	}

	logger.Info("session closed",
		"messages", messages,
		"duration", g.now().Sub(s.OpenedAt).String())
}

// frame is one received message and its payload type.
type frame struct {
	payloadType byte
	data        []byte
}

// frameCodec echoes text frames as text and binary frames as binary.
var frameCodec = websocket.Codec{
	Marshal: func(v any) ([]byte, byte, error) {
		f, ok := v.(*frame)
		if !ok {
			return nil, 0, websocket.ErrNotSupported
		}
		return f.data, f.payloadType, nil
	},
	Unmarshal: func(data []byte, payloadType byte, v any) error {
		f, ok := v.(*frame)
		if !ok {
			return websocket.ErrNotSupported
		}
		f.data, f.payloadType = data, payloadType
		return nil
	},
}

func (g *Gate) logRejection(ctx context.Context, room string, err error) {
	if errors.Is(err, auth.ErrInvalidToken) {
		g.logger.InfoContext(ctx, "websocket rejected", append([]any{"room", room}, errutil.Attrs(err)...)...)
		return
	}
	errutil.LogErrorContext(ctx, g.logger, "websocket token resolution failed", err)
}
