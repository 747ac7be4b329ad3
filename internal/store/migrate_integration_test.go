//go:build integration

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/lobby/internal/store"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("lobby"),
		postgres.WithUsername("lobby"),
		postgres.WithPassword("lobby"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connStr
}

func TestMigrator_FullCycle(t *testing.T) {
	ctx := context.Background()
	connStr := startPostgres(t)

	pool, err := store.Connect(ctx, connStr, store.ConnectOptions{})
	require.NoError(t, err)
	defer pool.Close()

	migrator, err := store.NewMigrator(connStr)
	require.NoError(t, err)
	defer migrator.Close()

	version, dirty, err := migrator.Version()
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, dirty)

	pending, err := migrator.Pending()
	require.NoError(t, err)
	assert.Equal(t, []uint{1}, pending)

	require.NoError(t, migrator.Up())
	require.NoError(t, migrator.Up(), "second Up is a no-op")

	version, _, err = migrator.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	var exists bool
	err = pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'users')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = pool.Exec(ctx, `INSERT INTO users (email, password_hash) VALUES ('a@example.com', 'x')`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO users (email, password_hash) VALUES ('a@example.com', 'y')`)
	require.Error(t, err, "email must be unique")

	require.NoError(t, migrator.Down())
	err = pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'users')`).Scan(&exists)
	require.NoError(t, err)
	assert.False(t, exists)
}
