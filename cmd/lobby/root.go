// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/lobby/internal/config"
)

const serviceName = "lobby"

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configFile string
	dotEnv     string
}

// load resolves the configuration for cmd. Only flags defined on cmd and
// set by the user take part.
func (o *rootOptions) load(cmd *cobra.Command) (config.Config, error) {
	return config.Load(config.LoadOptions{
		Path:   o.configFile,
		DotEnv: o.dotEnv,
		Flags:  cmd.Flags(),
	})
}

// NewRootCmd creates the root command for the Lobby CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "lobby",
		Short: "Lobby - accounts and game channel admission",
		Long: `Lobby registers accounts, issues bearer tokens, and admits
authenticated players to the realtime game channel over websockets.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/lobby/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.dotEnv, "env-file", config.DefaultDotEnv, ".env file read before the environment")

	cmd.AddCommand(NewServeCmd(opts, nil))
	cmd.AddCommand(NewMigrateCmd(opts, nil))
	cmd.AddCommand(NewStatusCmd(opts))
	cmd.AddCommand(NewConfigCmd(opts))

	return cmd
}
