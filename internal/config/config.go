package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all run settings, populated from environment variables.
type Config struct {
	StationMetaPath string
	DailyPath       string // directory of per-station CSVs or one combined CSV
	BoundaryPath    string // GeoJSON or .shp; empty disables the interpolated map
	OutputDir       string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Kafka results publishing. No brokers means publishing is off.
	KafkaBrokers      []string
	KafkaResultsTopic string

	// Mapbox geocoding for stations without coordinates.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	// ArchivePath is the SQLite results archive. Empty disables archiving.
	ArchivePath string

	S3 S3Config

	RenderTimeSeries bool

	Analysis Analysis
}

// S3Config configures artifact upload to an S3-compatible bucket.
type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// Enabled reports whether uploads are configured.
func (c S3Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("MAPBOX_TIMEOUT", "5s"))
	if err != nil || mapboxTimeout <= 0 {
		return nil, errors.New("invalid MAPBOX_TIMEOUT")
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	renderTimeSeries, err := parseBool("RENDER_TIMESERIES", true)
	if err != nil {
		return nil, err
	}
	s3UseSSL, err := parseBool("S3_USE_SSL", true)
	if err != nil {
		return nil, err
	}

	analysis, err := LoadAnalysis()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		StationMetaPath: sharedcfg.EnvOrDefault("STATION_META_PATH", "data/station_metadata.csv"),
		DailyPath:       sharedcfg.EnvOrDefault("DAILY_PATH", "data/daily"),
		BoundaryPath:    sharedcfg.EnvOrDefault("BOUNDARY_PATH", "data/bangladesh.geojson"),
		OutputDir:       sharedcfg.EnvOrDefault("OUTPUT_DIR", "output"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaResultsTopic: sharedcfg.EnvOrDefault("KAFKA_RESULTS_TOPIC", "rainfall-trend-results"),

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),

		ArchivePath: os.Getenv("ARCHIVE_PATH"),

		S3: S3Config{
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			Bucket:    os.Getenv("S3_BUCKET"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			Region:    sharedcfg.EnvOrDefault("S3_REGION", "auto"),
			UseSSL:    s3UseSSL,
		},

		RenderTimeSeries: renderTimeSeries,
		Analysis:         analysis,
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(v)
	}

	if cfg.StationMetaPath == "" {
		return nil, errors.New("STATION_META_PATH is required")
	}
	if cfg.DailyPath == "" {
		return nil, errors.New("DAILY_PATH is required")
	}
	if cfg.OutputDir == "" {
		return nil, errors.New("OUTPUT_DIR is required")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaResultsTopic == "" {
		return nil, errors.New("KAFKA_RESULTS_TOPIC is required when KAFKA_BROKERS is set")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	if cfg.S3.Enabled() && (cfg.S3.AccessKey == "" || cfg.S3.SecretKey == "") {
		return nil, errors.New("S3_ACCESS_KEY and S3_SECRET_KEY are required when S3_ENDPOINT and S3_BUCKET are set")
	}

	return cfg, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}

func parseBool(name string, def bool) (bool, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", name, v)
	}
	return b, nil
}
