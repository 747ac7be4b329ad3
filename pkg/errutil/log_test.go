// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/lobby/pkg/errutil"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("USER_CREATE_FAILED").
		With("email", "a@example.com").
		Errorf("insert failed")

	errutil.LogError(logger, "registration failed", err)

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "registration failed", entry["msg"])
	assert.Equal(t, "USER_CREATE_FAILED", entry["code"])
	assert.Equal(t, map[string]any{"email": "a@example.com"}, entry["context"])
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(logger, "operation failed", errors.New("standard error"))

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Contains(t, entry["error"], "standard error")
	assert.NotContains(t, entry, "code")
}

type ctxKey struct{}

type recordingHandler struct {
	slog.Handler
	seen []any
}

func (h *recordingHandler) Handle(ctx context.Context, r slog.Record) error {
	h.seen = append(h.seen, ctx.Value(ctxKey{}))
	return h.Handler.Handle(ctx, r)
}

func TestLogErrorContext_PassesContext(t *testing.T) {
	var buf bytes.Buffer
	h := &recordingHandler{Handler: slog.NewJSONHandler(&buf, nil)}
	ctx := context.WithValue(context.Background(), ctxKey{}, "req-1")

	errutil.LogErrorContext(ctx, slog.New(h), "failed", errors.New("boom"))

	assert.Equal(t, []any{"req-1"}, h.seen)
}
