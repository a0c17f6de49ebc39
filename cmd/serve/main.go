// Command serve exposes the latest archived run over HTTP: health and
// readiness checks, Prometheus metrics, the results API and the rendered maps.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/rainfall-trend-etl/internal/adapter/http"
	"github.com/couchcryptid/rainfall-trend-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/rainfall-trend-etl/internal/config"
	"github.com/couchcryptid/rainfall-trend-etl/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	if cfg.ArchivePath == "" {
		logger.Error("ARCHIVE_PATH is required to serve results")
		os.Exit(1)
	}
	archive, err := sqlite.Open(cfg.ArchivePath, logger)
	if err != nil {
		logger.Error("failed to open archive", "path", cfg.ArchivePath, "error", err)
		os.Exit(1)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, archive, cfg.OutputDir, archive, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr, "maps_dir", cfg.OutputDir)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := archive.Close(); err != nil {
		logger.Error("archive close error", "error", err)
	}

	logger.Info("shutdown complete")
}
