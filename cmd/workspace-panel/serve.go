package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apierrors "github.com/devrev/workspace-panel/internal/errors"
	"github.com/devrev/workspace-panel/internal/handler"
	"github.com/devrev/workspace-panel/internal/health"
	"github.com/devrev/workspace-panel/internal/metrics"
	"github.com/devrev/workspace-panel/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting workspace panel",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("neon_base_url", cfg.Neon.BaseURL),
	)

	// Bounds the initial connects; pgxpool keeps it for its first idle connections.
	startCtx, cancelStart := withTimeout(cfg.Server.RequestTimeout)
	defer cancelStart()

	a, err := newApp(startCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var metricsServer *metrics.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, a.registry, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	healthCheck := health.NewHealthCheck(a.deps, a.metrics, logger)
	healthCheck.Start()
	defer healthCheck.Stop()

	errorHandler := apierrors.NewHandler(logger)
	handlers := handler.NewHandlers(a.workspaces, a.data, errorHandler, logger, cfg.Server.RequestTimeout)
	httpServer := server.NewServer(cfg, handlers, healthCheck, errorHandler, a.metrics, logger)

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case runErr = <-errChan:
		logger.Error("server error", zap.Error(runErr))
	}

	logger.Info("initiating graceful shutdown")
	a.metrics.SetHealthStatus(false)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown HTTP server", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}

	logger.Info("workspace panel shutdown complete")
	return runErr
}
