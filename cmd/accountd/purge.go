// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/internal/config"
)

// discardMailer satisfies the engine for commands that never send mail.
type discardMailer struct{}

func (discardMailer) Send(context.Context, auth.Message) error { return nil }

// NewPurgeCmd creates the purge subcommand.
func NewPurgeCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired and revoked tokens",
		Long: `Delete expired and revoked refresh tokens and spent email verification
and password reset tokens. Safe to run repeatedly from a scheduler.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			return runPurge(cmd, cfg)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func runPurge(cmd *cobra.Command, cfg *config.Config) error {
	logger, err := setupLogging(cmd, cfg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := newService(cfg, st, discardMailer{}, logger)
	if err != nil {
		return err
	}
	report, err := svc.Purge(ctx)
	if err != nil {
		return err
	}

	cmd.Printf("expired refresh tokens: %d\n", report.ExpiredRefreshTokens)
	cmd.Printf("revoked refresh tokens: %d\n", report.RevokedRefreshTokens)
	cmd.Printf("verification tokens:    %d\n", report.VerificationTokens)
	cmd.Printf("reset tokens:           %d\n", report.ResetTokens)
	return nil
}

// purgeRecorder observes in-process purges.
type purgeRecorder interface {
	RecordPurge(auth.PurgeReport)
}

// runPurgeLoop purges every interval until ctx ends. Failures are logged and
// retried on the next tick.
func runPurgeLoop(ctx context.Context, svc *auth.Service, interval time.Duration, rec purgeRecorder, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := svc.Purge(ctx)
			if err != nil {
				logger.WarnContext(ctx, "scheduled purge failed", "operation", "purge tokens", "error", err)
				continue
			}
			rec.RecordPurge(report)
		}
	}
}
