// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

package httpapi

import (
	"bufio"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/lobby/internal/logging"
	"github.com/holomush/lobby/internal/observability"
	"github.com/holomush/lobby/internal/origin"
)

// RequestIDHeader carries the request id on responses. A valid ULID sent by
// the client is reused.
const RequestIDHeader = "X-Request-ID"

// unmatchedRoute labels requests no route pattern matched.
const unmatchedRoute = "unmatched"

// statusRecorder captures the response status. It forwards Hijack so the
// websocket gate can take over the connection.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b) //nolint:wrapcheck // passthrough
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, oops.Code("HTTPAPI_HIJACK_UNSUPPORTED").Errorf("response writer does not support hijacking")
	}
	// A hijacked websocket upgrade never reports a status through WriteHeader.
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack() //nolint:wrapcheck // passthrough
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// instrument assigns a request id, logs each request, and records route metrics.
func instrument(logger *slog.Logger, metrics *observability.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(RequestIDHeader)
		if _, err := ulid.ParseStrict(id); err != nil {
			id = ulid.Make().String()
		}
		w.Header().Set(RequestIDHeader, id)

		r = r.WithContext(logging.WithRequestID(r.Context(), id))
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		route := r.Pattern
		if route == "" {
			route = unmatchedRoute
		}
		elapsed := time.Since(start)
		metrics.ObserveRequest(route, status, elapsed)

		logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", status,
			"duration_ms", strconv.FormatFloat(float64(elapsed.Microseconds())/1000, 'f', 3, 64),
			"remote", r.RemoteAddr)
	})
}

// cors answers cross-origin requests from origins allowed by policy. With
// an empty policy no CORS headers are sent.
func cors(policy *origin.Policy, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestOrigin := r.Header.Get("Origin")
		if requestOrigin == "" || policy.Empty() {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Add("Vary", "Origin")
		allowed := policy.Allows(requestOrigin)
		if allowed {
			h.Set("Access-Control-Allow-Origin", requestOrigin)
			h.Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if allowed {
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				h.Set("Access-Control-Max-Age", "600")
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
