// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/accountd/accountd/internal/config"
	"github.com/accountd/accountd/internal/store"
)

// NewMigrateCmd creates the migrate command group.
func NewMigrateCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
		Long: `Manage the PostgreSQL schema. The SQLite store migrates itself when
opened, so only "migrate up" applies to it.`,
	}
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newMigrateUpCmd(flags))
	cmd.AddCommand(newMigrateDownCmd(flags))
	cmd.AddCommand(newMigrateStatusCmd(flags))
	cmd.AddCommand(newMigrateForceCmd(flags))
	return cmd
}

func newMigrateUpCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			if cfg.Store.Driver == config.DriverSQLite {
				return migrateSQLite(cmd, cfg)
			}
			return withMigrator(cfg, func(m *store.Migrator) error {
				cmd.Println("Running migrations...")
				if err := m.Up(); err != nil {
					return err
				}
				version, _, err := m.Version()
				if err != nil {
					return err
				}
				cmd.Printf("Migrations completed successfully (version %d)\n", version)
				return nil
			})
		},
	}
}

func newMigrateDownCmd(flags *globalFlags) *cobra.Command {
	var (
		steps int
		all   bool
	)
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long: `Roll back the most recent migrations. --all rolls back every migration
and drops all account data.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps < 1 && !all {
				return oops.Code("INVALID_STEPS").With("steps", steps).Errorf("steps must be at least 1")
			}
			cfg, err := loadPostgresConfig(cmd, flags)
			if err != nil {
				return err
			}
			return withMigrator(cfg, func(m *store.Migrator) error {
				if all {
					if err := m.Down(); err != nil {
						return err
					}
					cmd.Println("Rolled back all migrations")
					return nil
				}
				if err := m.Steps(-steps); err != nil {
					return err
				}
				cmd.Printf("Rolled back %d migration(s)\n", steps)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.Flags().BoolVar(&all, "all", false, "roll back every migration")
	return cmd
}

func newMigrateStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the applied version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadPostgresConfig(cmd, flags)
			if err != nil {
				return err
			}
			return withMigrator(cfg, func(m *store.Migrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				pending, err := m.Pending()
				if err != nil {
					return err
				}
				return printMigrationStatus(cmd, version, dirty, pending)
			})
		},
	}
}

func newMigrateForceCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied and clear the dirty flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadPostgresConfig(cmd, flags)
			if err != nil {
				return err
			}
			return withMigrator(cfg, func(m *store.Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Forced version %d\n", version)
				return nil
			})
		},
	}
}

func printMigrationStatus(cmd *cobra.Command, version uint, dirty bool, pending []uint) error {
	name, err := store.MigrationName(version)
	if err != nil {
		return err
	}
	switch {
	case version == 0:
		cmd.Println("Current version: none")
	case name != "":
		cmd.Printf("Current version: %d (%s)\n", version, name)
	default:
		cmd.Printf("Current version: %d\n", version)
	}
	if dirty {
		cmd.Println("Database is DIRTY; fix the schema and run \"migrate force\"")
	}

	if len(pending) == 0 {
		cmd.Println("No pending migrations")
		return nil
	}
	cmd.Printf("Pending migrations: %d\n", len(pending))
	for _, v := range pending {
		name, err := store.MigrationName(v)
		if err != nil {
			return err
		}
		cmd.Printf("  %s\n", name)
	}
	return nil
}

func parseForceVersion(arg string) (int, error) {
	version, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", arg).Errorf("version must be an integer")
	}
	if version < 0 {
		return 0, oops.Code("INVALID_VERSION").With("input", arg).Errorf("version must be non-negative")
	}
	return version, nil
}

// loadPostgresConfig loads configuration for subcommands that only apply to
// the PostgreSQL store.
func loadPostgresConfig(cmd *cobra.Command, flags *globalFlags) (*config.Config, error) {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return nil, err
	}
	if cfg.Store.Driver != config.DriverPostgres {
		return nil, oops.Code("CONFIG_INVALID").
			With("key", "store.driver").
			Errorf("%q is only supported for the postgres store", cmd.CommandPath())
	}
	return cfg, nil
}

func withMigrator(cfg *config.Config, fn func(m *store.Migrator) error) (err error) {
	m, err := store.NewMigrator(cfg.Store.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(m)
}

// migrateSQLite opens the SQLite store, which applies its embedded
// migrations, and closes it again.
func migrateSQLite(cmd *cobra.Command, cfg *config.Config) error {
	logger, err := setupLogging(cmd, cfg)
	if err != nil {
		return err
	}
	_, closeStore, err := openStore(cmd.Context(), cfg, logger)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "open sqlite store").Wrap(err)
	}
	closeStore()
	cmd.Println("Migrations completed successfully")
	return nil
}
