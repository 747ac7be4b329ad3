// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/holomush/lobby/internal/config"
	"github.com/holomush/lobby/pkg/errutil"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func parseShown(t *testing.T, out string) map[string]any {
	t.Helper()
	var shown map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &shown))
	return shown
}

func TestConfigShow(t *testing.T) {
	t.Run("redacts secrets", func(t *testing.T) {
		envFile := isolateConfig(t)
		t.Setenv("JWT_SECRET", "super-secret")
		t.Setenv("DATABASE_URL", "postgres://lobby:hunter2@db/lobby")

		out, errOut, err := execute(t, "config", "show", "--env-file", envFile)
		require.NoError(t, err)

		assert.NotContains(t, out, "super-secret")
		assert.NotContains(t, out, "hunter2")
		shown := parseShown(t, out)
		assert.Equal(t, "<redacted>", shown["jwt_secret"])
		assert.Equal(t, ":8000", shown["addr"])
		assert.Empty(t, errOut)
	})

	t.Run("flags override", func(t *testing.T) {
		envFile := isolateConfig(t)

		out, _, err := execute(t, "config", "show", "--env-file", envFile,
			"--storage", "memory", "--token-ttl", "1h")
		require.NoError(t, err)

		shown := parseShown(t, out)
		assert.Equal(t, "memory", shown["storage"])
		assert.Equal(t, "1h0m0s", shown["token_ttl"])
	})

	t.Run("warns when serve would reject it", func(t *testing.T) {
		envFile := isolateConfig(t)

		_, errOut, err := execute(t, "config", "show", "--env-file", envFile)
		require.NoError(t, err)
		assert.Contains(t, errOut, "not valid for serve")
	})
}

func TestConfigSchema(t *testing.T) {
	out, _, err := execute(t, "config", "schema")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, config.SchemaID, doc["$id"])
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid file argument", func(t *testing.T) {
		isolateConfig(t)
		path := filepath.Join(t.TempDir(), "config.yaml")
		writeConfig(t, path, "addr: \":9000\"\nstorage: memory\n")

		out, _, err := execute(t, "config", "validate", path)
		require.NoError(t, err)
		assert.Equal(t, path+" is valid\n", out)
	})

	t.Run("invalid file", func(t *testing.T) {
		isolateConfig(t)
		path := filepath.Join(t.TempDir(), "config.yaml")
		writeConfig(t, path, "storage: sqlite\n")

		_, _, err := execute(t, "config", "validate", path)
		errutil.AssertErrorCode(t, err, "CONFIG_FILE_INVALID")
	})

	t.Run("uses config flag", func(t *testing.T) {
		isolateConfig(t)
		path := filepath.Join(t.TempDir(), "lobby.yaml")
		writeConfig(t, path, "log_format: text\n")

		out, _, err := execute(t, "config", "validate", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, out, path)
	})

	t.Run("missing default file", func(t *testing.T) {
		isolateConfig(t)

		_, _, err := execute(t, "config", "validate")
		errutil.AssertErrorCode(t, err, "CONFIG_FILE_READ_FAILED")
	})
}

func TestConfigInit(t *testing.T) {
	envFile := isolateConfig(t)
	path := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "lobby", "config.yaml")

	out, _, err := execute(t, "config", "init")
	require.NoError(t, err)
	assert.Equal(t, "Wrote "+path+"\n", out)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), config.DevSecret)
	require.NoError(t, config.ValidateDocument(data))

	// The written file is picked up as the default config.
	cfg, err := config.Load(config.LoadOptions{DotEnv: envFile})
	require.NoError(t, err)
	defaults := config.Default()
	assert.Equal(t, defaults.Addr, cfg.Addr)
	assert.Equal(t, defaults.TokenTTL, cfg.TokenTTL)
	assert.Equal(t, defaults.ShutdownTimeout, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.True(t, cfg.UsesDevSecret())

	_, _, err = execute(t, "config", "init")
	errutil.AssertErrorCode(t, err, "CONFIG_EXISTS")

	_, _, err = execute(t, "config", "init", "--force")
	require.NoError(t, err)
}
