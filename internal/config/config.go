// Package config loads process configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"raffleledger/internal/blob"
	"raffleledger/internal/core"
)

// Metrics backends.
const (
	MetricsPrometheus = "prometheus"
	MetricsExpvar     = "expvar"
	MetricsNone       = "none"
)

// Config is the full process configuration. Every field is read from a
// RAFFLE_* variable.
type Config struct {
	HTTPAddr        string        `env:"RAFFLE_HTTP_ADDR" envDefault:":8080"`
	RequestTimeout  time.Duration `env:"RAFFLE_REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"RAFFLE_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	StorageDriver string `env:"RAFFLE_STORAGE_DRIVER" envDefault:"sqlite"`
	SQLitePath    string `env:"RAFFLE_SQLITE_PATH" envDefault:"raffleledger.db"`
	PostgresDSN   string `env:"RAFFLE_POSTGRES_DSN"`

	Blob BlobConfig `envPrefix:"RAFFLE_BLOB_"`

	LogLevel       string `env:"RAFFLE_LOG_LEVEL" envDefault:"info"`
	MetricsBackend string `env:"RAFFLE_METRICS_BACKEND" envDefault:"prometheus"`
	// TraceLog writes JSON-line spans to stderr when no OTLP endpoint is set.
	TraceLog     bool   `env:"RAFFLE_TRACE_LOG" envDefault:"false"`
	OTelEndpoint string `env:"RAFFLE_OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"RAFFLE_OTEL_ENABLED" envDefault:"true"`
}

// BlobConfig selects the archive store.
type BlobConfig struct {
	Driver            string `env:"DRIVER" envDefault:"fs"`
	FSRoot            string `env:"FS_ROOT" envDefault:"./archives"`
	S3Bucket          string `env:"S3_BUCKET"`
	S3Region          string `env:"S3_REGION"`
	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3Prefix          string `env:"S3_PREFIX"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	S3PathStyle       bool   `env:"S3_PATH_STYLE" envDefault:"false"`
}

// Load reads the given .env files (".env" when none are named), then parses
// the environment. Variables already set in the environment win over the
// files, and missing files are ignored.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects unknown drivers and incomplete backend settings.
func (c Config) Validate() error {
	switch core.StorageDriver(c.StorageDriver) {
	case core.StorageMemory:
	case core.StorageSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return errors.New("RAFFLE_SQLITE_PATH is required for the sqlite driver")
		}
	case core.StoragePostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return errors.New("RAFFLE_POSTGRES_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown RAFFLE_STORAGE_DRIVER %q", c.StorageDriver)
	}
	switch blob.Driver(c.Blob.Driver) {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3Bucket == "" {
			return errors.New("RAFFLE_BLOB_S3_BUCKET is required for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown RAFFLE_BLOB_DRIVER %q", c.Blob.Driver)
	}
	switch c.MetricsBackend {
	case MetricsPrometheus, MetricsExpvar, MetricsNone:
	default:
		return fmt.Errorf("unknown RAFFLE_METRICS_BACKEND %q", c.MetricsBackend)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// Storage returns the persistent store settings.
func (c Config) Storage() core.StorageConfig {
	return core.StorageConfig{
		Driver:      core.StorageDriver(c.StorageDriver),
		SQLitePath:  c.SQLitePath,
		PostgresDSN: c.PostgresDSN,
	}
}

// Archive returns the blob store settings.
func (c Config) Archive() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.Blob.Driver),
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Bucket:          c.Blob.S3Bucket,
			Region:          c.Blob.S3Region,
			Endpoint:        c.Blob.S3Endpoint,
			Prefix:          c.Blob.S3Prefix,
			AccessKeyID:     c.Blob.S3AccessKeyID,
			SecretAccessKey: c.Blob.S3SecretAccessKey,
			PathStyle:       c.Blob.S3PathStyle,
		},
	}
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid RAFFLE_LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}
