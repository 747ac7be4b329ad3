// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/lobby/internal/auth"
	"github.com/holomush/lobby/internal/auth/memory"
	"github.com/holomush/lobby/internal/auth/postgres"
	"github.com/holomush/lobby/internal/config"
	"github.com/holomush/lobby/internal/gate"
	"github.com/holomush/lobby/internal/httpapi"
	"github.com/holomush/lobby/internal/logging"
	"github.com/holomush/lobby/internal/observability"
	"github.com/holomush/lobby/internal/origin"
	"github.com/holomush/lobby/pkg/errutil"
)

// NewServeCmd creates the serve subcommand. A nil deps uses the defaults.
func NewServeCmd(opts *rootOptions, deps *ServeDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the account API and game channel",
		Long: `Serve the HTTP account API (registration, login, current user)
and the authenticated websocket game channel until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, deps)
		},
	}

	config.RegisterFlags(cmd.Flags())

	return cmd
}

// runServe runs the service until ctx is done or a server fails.
func runServe(ctx context.Context, cfg config.Config, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.PoolConnector == nil {
		deps.PoolConnector = defaultPoolConnector
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = defaultMigratorFactory
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.SetDefault(serviceName, version, cfg.LogFormat, deps.LogOutput)
	logger.Info("starting lobby",
		"addr", cfg.Addr,
		"storage", cfg.Storage,
		"password_hash", cfg.PasswordHash,
	)
	if cfg.UsesDevSecret() {
		logger.Warn("JWT_SECRET is not set; tokens are signed with the development key")
	}

	users, closeUsers, err := openUsers(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	defer closeUsers()

	hasher, err := auth.NewHasher(cfg.PasswordHash)
	if err != nil {
		return err //nolint:wrapcheck // already coded
	}
	tokens, err := auth.NewTokenCodec([]byte(cfg.JWTSecret), cfg.TokenTTL)
	if err != nil {
		return err //nolint:wrapcheck // already coded
	}
	authn, err := auth.NewAuthenticator(users, hasher, tokens, logger)
	if err != nil {
		return err //nolint:wrapcheck // already coded
	}
	origins, err := origin.Compile(cfg.AllowedOrigins)
	if err != nil {
		return err //nolint:wrapcheck // already coded
	}

	var api *httpapi.Server
	var obs *observability.Server
	var metrics *observability.Metrics
	if cfg.MetricsAddr != "" {
		obs = observability.NewServer(cfg.MetricsAddr, func(ctx context.Context) error {
			return checkReady(ctx, api, users)
		}, logger)
		metrics = obs.Metrics()
	}

	g, err := gate.New(authn,
		gate.WithOrigins(origins),
		gate.WithMetrics(metrics),
		gate.WithLogger(logger),
	)
	if err != nil {
		return err //nolint:wrapcheck // already coded
	}
	defer g.Close()

	handler, err := httpapi.NewHandler(httpapi.Deps{
		Accounts: authn,
		Users:    users,
		Gate:     g,
		Origins:  origins,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		return err //nolint:wrapcheck // already coded
	}

	api = httpapi.NewServer(cfg.Addr, handler, logger)
	apiErr, err := api.Start()
	if err != nil {
		return err //nolint:wrapcheck // already coded
	}

	var obsErr <-chan error
	metricsAddr := ""
	if obs != nil {
		obsErr, err = obs.Start()
		if err != nil {
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
			defer cancel()
			if stopErr := api.Stop(stopCtx); stopErr != nil {
				errutil.LogError(logger, "failed to stop api server during cleanup", stopErr)
			}
			return err //nolint:wrapcheck // already coded
		}
		metricsAddr = obs.Addr()
	}

	logger.Info("lobby ready", "addr", api.Addr(), "metrics_addr", metricsAddr)
	if deps.OnReady != nil {
		deps.OnReady(api.Addr(), metricsAddr)
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err, ok := <-apiErr:
		if ok && err != nil {
			runErr = oops.Code("SERVE_FAILED").With("server", "api").Wrap(err)
		}
	case err, ok := <-obsErr:
		if ok && err != nil {
			runErr = oops.Code("SERVE_FAILED").With("server", "observability").Wrap(err)
		}
	}

	shutdown(context.WithoutCancel(ctx), cfg, api, g, obs, logger)
	return runErr
}

// shutdown stops the API, ends game sessions, then stops the observability
// server.
func shutdown(ctx context.Context, cfg config.Config, api *httpapi.Server, g *gate.Gate, obs *observability.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancel()

	if err := api.Stop(ctx); err != nil {
		errutil.LogError(logger, "error stopping api server", err)
	}
	g.Close()
	if obs != nil {
		if err := obs.Stop(ctx); err != nil {
			errutil.LogError(logger, "error stopping observability server", err)
		}
	}
	logger.Info("shutdown complete")
}

// openUsers returns the configured user repository and its cleanup.
func openUsers(ctx context.Context, cfg config.Config, deps *ServeDeps, logger *slog.Logger) (auth.UserRepository, func(), error) {
	if cfg.Storage == config.StorageMemory {
		logger.Warn("using in-memory storage; accounts are lost on exit")
		return memory.NewUserRepository(), func() {}, nil
	}

	pool, err := deps.PoolConnector(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, oops.Code("SERVE_STORAGE_FAILED").With("operation", "connect to database").Wrap(err)
	}
	logger.Info("connected to database")

	if cfg.AutoMigrate {
		if err := autoMigrate(cfg.DatabaseURL, deps.MigratorFactory, logger); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}

	return postgres.NewUserRepository(pool), pool.Close, nil
}

func autoMigrate(url string, factory MigratorFactory, logger *slog.Logger) error {
	m, err := factory(url)
	if err != nil {
		return oops.Code("SERVE_MIGRATE_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			errutil.LogError(logger, "failed to close migrator", closeErr)
		}
	}()

	if err := m.Up(); err != nil {
		return oops.Code("SERVE_MIGRATE_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	v, dirty, err := m.Version()
	if err != nil {
		return oops.Code("SERVE_MIGRATE_FAILED").With("operation", "read version").Wrap(err)
	}
	logger.Info("database schema is current", "version", v, "dirty", dirty)
	return nil
}

// checkReady reports ready once the API listener is bound and storage
// answers.
func checkReady(ctx context.Context, api *httpapi.Server, users auth.UserRepository) error {
	if api == nil || !api.Ready() {
		return oops.Code("NOT_READY").Errorf("api listener is not bound")
	}
	if _, err := users.Count(ctx); err != nil {
		return oops.Code("NOT_READY").With("operation", "count users").Wrap(err)
	}
	return nil
}
