// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

package main

import (
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/lobby/internal/store"
)

// NewMigrateCmd creates the migrate subcommand tree. A nil factory uses
// store.NewMigrator.
func NewMigrateCmd(opts *rootOptions, factory MigratorFactory) *cobra.Command {
	if factory == nil {
		factory = defaultMigratorFactory
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Apply, roll back, and inspect the PostgreSQL schema migrations
embedded in the binary. The database URL comes from the usual config sources.`,
	}
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL")

	run := func(fn func(cmd *cobra.Command, m Migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return oops.Code("CONFIG_INVALID").
					With("field", "database_url").
					Errorf("database URL is required (DATABASE_URL, --database-url, or database_url in the config file)")
			}
			m, err := factory(cfg.DatabaseURL)
			if err != nil {
				return err //nolint:wrapcheck // already coded
			}
			defer func() {
				if closeErr := m.Close(); closeErr != nil {
					cmd.PrintErrf("warning: %v\n", closeErr)
				}
			}()
			return fn(cmd, m)
		}
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, m Migrator) error {
			if err := m.Up(); err != nil {
				return err //nolint:wrapcheck // already coded
			}
			return printVersion(cmd, m)
		}),
	}

	var confirmed bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		Long:  `Roll back every applied migration. This drops all account data.`,
		Args:  cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, m Migrator) error {
			if !confirmed {
				return oops.Code("MIGRATE_CONFIRM_REQUIRED").Errorf("down drops all data; pass --yes to confirm")
			}
			if err := m.Down(); err != nil {
				return err //nolint:wrapcheck // already coded
			}
			cmd.Println("All migrations rolled back")
			return nil
		}),
	}
	down.Flags().BoolVar(&confirmed, "yes", false, "confirm dropping all data")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show the applied schema version",
		Args:  cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, m Migrator) error {
			return printVersion(cmd, m)
		}),
	}

	force := &cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long: `Record VERSION as applied and clear the dirty flag. Use this to
recover after a failed migration has been repaired by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("INVALID_VERSION").With("value", args[0]).Wrap(err)
			}
			return run(func(cmd *cobra.Command, m Migrator) error {
				if err := m.Force(v); err != nil {
					return err //nolint:wrapcheck // already coded
				}
				cmd.Printf("Schema version forced to %d\n", v)
				return nil
			})(cmd, args)
		},
	}

	pending := &cobra.Command{
		Use:   "pending",
		Short: "List migrations not yet applied",
		Args:  cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, m Migrator) error {
			versions, err := m.Pending()
			if err != nil {
				return err //nolint:wrapcheck // already coded
			}
			if len(versions) == 0 {
				cmd.Println("No pending migrations")
				return nil
			}
			for _, v := range versions {
				name, err := store.MigrationName(v)
				if err != nil || name == "" {
					name = strconv.FormatUint(uint64(v), 10)
				}
				cmd.Println(name)
			}
			return nil
		}),
	}

	cmd.AddCommand(up, down, versionCmd, force, pending)
	return cmd
}

func printVersion(cmd *cobra.Command, m Migrator) error {
	v, dirty, err := m.Version()
	if err != nil {
		return err //nolint:wrapcheck // already coded
	}
	if v == 0 {
		cmd.Println("Schema version: none")
		return nil
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	cmd.Printf("Schema version: %d (%s)\n", v, state)
	return nil
}
