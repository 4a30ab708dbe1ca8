// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/accountd/accountd/internal/api"
	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/internal/config"
	"github.com/accountd/accountd/internal/mail"
	"github.com/accountd/accountd/internal/observability"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the account HTTP API",
		Long: `Run the account HTTP API together with the metrics and health
endpoints until SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			return runServe(cmd, cfg)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func runServe(cmd *cobra.Command, cfg *config.Config) error {
	logger, err := setupLogging(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.UsesDefaultSecret() {
		logger.WarnContext(ctx, "using the development signing secret; set JWT_SECRET in production")
	}

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return oops.Code("SERVE_FAILED").With("operation", "open store").Wrap(err)
	}
	defer closeStore()

	obsServer := observability.NewServer(cfg.Metrics.Addr, st.Ping, logger)
	metrics := obsServer.Metrics()

	renderer, err := mail.NewRenderer(cfg.Mail.BaseURL)
	if err != nil {
		return err
	}
	mailer := mail.NewAsyncMailer(
		mail.NewLogMailer(renderer, cmd.ErrOrStderr(), logger),
		cfg.Mail.QueueSize,
		mail.WithLogger(logger),
		mail.WithRecorder(metrics),
	)

	svc, err := newService(cfg, st, mailer, logger, auth.WithFlowRecorder(metrics))
	if err != nil {
		return err
	}

	// Any server failing cancels ctx with the failure as cause.
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if cfg.Metrics.Addr != "" {
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.Code("SERVE_FAILED").With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
	}

	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Handler:           api.NewRouter(svc, api.WithLogger(logger), api.WithHTTPRecorder(metrics)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	listener, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return oops.Code("SERVE_FAILED").With("operation", "listen").With("addr", cfg.HTTP.Addr).Wrap(err)
	}
	httpErrCh := make(chan error, 1)
	go func() {
		defer close(httpErrCh)
		if serveErr := httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			httpErrCh <- serveErr
		}
	}()
	go monitorServerErrors(ctx, cancel, httpErrCh, "http")

	if cfg.Maintenance.PurgeInterval > 0 {
		go runPurgeLoop(ctx, svc, cfg.Maintenance.PurgeInterval, metrics, logger)
	}

	logger.InfoContext(ctx, "accountd ready",
		"http_addr", listener.Addr().String(),
		"metrics_addr", obsServer.Addr(),
		"store_driver", cfg.Store.Driver)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping http server", "error", err)
	}
	if err := mailer.Close(shutdownCtx); err != nil {
		logger.Warn("error draining mail queue", "error", err)
	}
	if err := obsServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}

	logger.Info("shutdown complete")

	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return oops.Code("SERVE_FAILED").With("operation", "serve").Wrap(cause)
	}
	return nil
}

// monitorServerErrors cancels ctx when a server reports a failure.
func monitorServerErrors(ctx context.Context, cancel context.CancelCauseFunc, errCh <-chan error, name string) {
	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			slog.Error("server failed", "server", name, "error", err)
			cancel(oops.With("server", name).Wrap(err))
		}
	case <-ctx.Done():
	}
}
