// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/internal/auth/postgres"
	"github.com/accountd/accountd/internal/auth/sqlite"
	"github.com/accountd/accountd/internal/config"
	"github.com/accountd/accountd/internal/logging"
	"github.com/accountd/accountd/internal/store"
)

// serviceName tags every log record.
const serviceName = "accountd"

// loadConfig layers the config file, dotenv file, environment and the
// command's changed flags over the defaults.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (*config.Config, error) {
	return config.Load(config.LoadOptions{
		File:    flags.configFile,
		EnvFile: flags.envFile,
		Flags:   cmd.Flags(),
	})
}

// setupLogging installs the configured logger as the slog default.
func setupLogging(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	return logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  cmd.ErrOrStderr(),
	})
}

// openStore connects the configured identity store. The returned function
// releases it.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.InfoContext(ctx, "opened sqlite store", "path", cfg.Store.SQLitePath)
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Warn("error closing sqlite store", "error", err)
			}
		}, nil

	default:
		pool, err := store.Connect(ctx, cfg.Store.DatabaseURL, store.DefaultConnectOptions, logger)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Store.AutoMigrate {
			if err := store.MigrateUp(cfg.Store.DatabaseURL); err != nil {
				pool.Close()
				return nil, nil, err
			}
			logger.InfoContext(ctx, "database migrations applied")
		}
		logger.InfoContext(ctx, "connected to postgres")
		return postgres.NewStore(pool), pool.Close, nil
	}
}

// newService builds the engine over st.
func newService(cfg *config.Config, st auth.Store, mailer auth.Mailer, logger *slog.Logger, opts ...auth.Option) (*auth.Service, error) {
	opts = append([]auth.Option{auth.WithLogger(logger)}, opts...)
	return auth.NewService(st, auth.NewBcryptHasher(cfg.Auth.BcryptCost, logger), mailer, cfg.AuthEngine(), opts...)
}
