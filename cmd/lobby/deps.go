// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

package main

import (
	"context"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/holomush/lobby/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolConnector opens the database pool and waits for the database.
	// Default: store.Connect with default retry options
	PoolConnector func(ctx context.Context, url string) (*pgxpool.Pool, error)

	// MigratorFactory creates a schema migrator for auto-migration.
	// Default: store.NewMigrator
	MigratorFactory MigratorFactory

	// LogOutput receives the service logs.
	// Default: os.Stderr
	LogOutput io.Writer

	// OnReady is called with the bound addresses once every listener is up.
	// metricsAddr is empty when the observability server is disabled.
	OnReady func(apiAddr, metricsAddr string)
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Pending() ([]uint, error)
	Close() error
}

// MigratorFactory creates a Migrator for a database URL.
type MigratorFactory func(url string) (Migrator, error)

func defaultMigratorFactory(url string) (Migrator, error) {
	return store.NewMigrator(url)
}

func defaultPoolConnector(ctx context.Context, url string) (*pgxpool.Pool, error) {
	return store.Connect(ctx, url, store.ConnectOptions{})
}
