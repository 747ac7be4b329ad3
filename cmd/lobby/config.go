// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/holomush/lobby/internal/config"
	"github.com/holomush/lobby/internal/xdg"
)

// NewConfigCmd creates the config subcommand tree.
func NewConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return oops.Code("CONFIG_FORMAT_FAILED").Wrap(err)
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), string(data))
			if err := cfg.Validate(); err != nil {
				cmd.PrintErrf("warning: configuration is not valid for serve: %v\n", err)
			}
			return nil
		},
	}
	config.RegisterFlags(show.Flags())

	schema := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := config.Schema()
			if err != nil {
				return err //nolint:wrapcheck // already coded
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	validate := &cobra.Command{
		Use:   "validate [FILE]",
		Short: "Check a config file against the schema",
		Long: `Check a config file against the schema. Without FILE, the --config
path or the XDG default is checked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				var err error
				if path, err = xdg.ConfigFile(); err != nil {
					return err //nolint:wrapcheck // already coded
				}
			}
			if err := config.ValidateFile(path); err != nil {
				return err //nolint:wrapcheck // already coded
			}
			cmd.Printf("%s is valid\n", path)
			return nil
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file to the XDG config directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := opts.configFile
			if path == "" {
				var err error
				if path, err = xdg.ConfigFile(); err != nil {
					return err //nolint:wrapcheck // already coded
				}
			}
			if _, err := os.Stat(path); err == nil && !force {
				return oops.Code("CONFIG_EXISTS").With("path", path).Errorf("config file already exists; pass --force to overwrite")
			}
			if err := xdg.EnsureDir(filepath.Dir(path)); err != nil {
				return err //nolint:wrapcheck // already coded
			}

			defaults := config.Default()
			defaults.JWTSecret = ""
			data, err := yaml.Marshal(defaults)
			if err != nil {
				return oops.Code("CONFIG_FORMAT_FAILED").Wrap(err)
			}
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return oops.Code("CONFIG_WRITE_FAILED").With("path", path).Wrap(err)
			}
			cmd.Printf("Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	cmd.AddCommand(show, schema, validate, initCmd)
	return cmd
}
