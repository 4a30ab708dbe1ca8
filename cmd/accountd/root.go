// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	envFile    string
}

// NewRootCmd creates the root command for the accountd CLI.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "accountd",
		Short: "accountd - account registration, login and session service",
		Long: `accountd manages user accounts: registration with email verification,
password login with rotating refresh tokens, password reset and profile
maintenance.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "YAML config file path")
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", "", "dotenv file to load before the environment")

	cmd.AddCommand(NewServeCmd(flags))
	cmd.AddCommand(NewMigrateCmd(flags))
	cmd.AddCommand(NewPurgeCmd(flags))
	cmd.AddCommand(NewConfigCmd(flags))
	cmd.AddCommand(NewVersionCmd())

	return cmd
}
