// Command trends runs one rainfall trend analysis: it loads the station data,
// computes annual and seasonal trends, writes tables and maps to OUTPUT_DIR
// and hands the report to the configured sinks (SQLite archive, Kafka, S3).
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	kafkaadapter "github.com/couchcryptid/rainfall-trend-etl/internal/adapter/kafka"
	"github.com/couchcryptid/rainfall-trend-etl/internal/adapter/mapbox"
	s3adapter "github.com/couchcryptid/rainfall-trend-etl/internal/adapter/s3"
	"github.com/couchcryptid/rainfall-trend-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/rainfall-trend-etl/internal/config"
	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
	"github.com/couchcryptid/rainfall-trend-etl/internal/observability"
	"github.com/couchcryptid/rainfall-trend-etl/internal/pipeline"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := observability.NewMetrics(reg)

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		cached, err := mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		if err != nil {
			logger.Error("failed to create geocoder cache", "error", err)
			return 1
		}
		geocoder = cached
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	var sinks []pipeline.Sink
	if cfg.ArchivePath != "" {
		archive, err := sqlite.Open(cfg.ArchivePath, logger)
		if err != nil {
			logger.Error("failed to open archive", "path", cfg.ArchivePath, "error", err)
			return 1
		}
		defer func() {
			if err := archive.Close(); err != nil {
				logger.Error("archive close error", "error", err)
			}
		}()
		sinks = append(sinks, archive)
	}
	if len(cfg.KafkaBrokers) > 0 {
		publisher := kafkaadapter.NewPublisher(cfg, metrics, logger)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		sinks = append(sinks, publisher)
	}
	if cfg.S3.Enabled() {
		uploader, err := s3adapter.NewUploader(cfg.S3, cfg.OutputDir, metrics, logger)
		if err != nil {
			logger.Error("failed to create s3 uploader", "endpoint", cfg.S3.Endpoint, "error", err)
			return 1
		}
		sinks = append(sinks, uploader)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(pipeline.OptionsFromConfig(cfg), geocoder, sinks, reg, metrics, logger)
	if _, err := p.Run(ctx); err != nil {
		if errors.Is(err, pipeline.ErrNoResults) {
			logger.Error("run produced no trend results; see the exclusions table", "output_dir", cfg.OutputDir)
		} else {
			logger.Error("run failed", "error", err)
		}
		return 1
	}
	return 0
}
