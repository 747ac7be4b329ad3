// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireOops(t *testing.T, err error) oops.OopsError {
	t.Helper()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	return oopsErr
}

// AssertErrorCode asserts that err is an oops error whose deepest code is code.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	assert.Equal(t, code, requireOops(t, err).Code(), "error: %v", err)
}

// AssertErrorContext asserts that the merged oops context of err holds
// key with value.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	ctx := requireOops(t, err).Context()
	if assert.Contains(t, ctx, key) {
		assert.Equal(t, value, ctx[key])
	}
}

// AssertNoErrorCode asserts that err carries no oops code, as when it is a
// plain sentinel or a wrapped driver error.
func AssertNoErrorCode(t *testing.T, err error) {
	t.Helper()
	if oopsErr, ok := oops.AsOops(err); ok {
		code := oopsErr.Code()
		assert.True(t, code == nil || code == "", "unexpected error code %v", code)
	}
}
