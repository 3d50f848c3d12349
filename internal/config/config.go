// Package config defines service configuration and its defaults.
//
// Conventions:
// - Keys are flat snake_case koanf tags; env vars are ELDLOG_<KEY>.
// - Durations are integers with a unit suffix in the key name.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// CollaboratorURL is the base URL of the status log service. Mutually
	// exclusive with SourceFile.
	CollaboratorURL string `koanf:"collaborator_url"`

	// SourceFile is a YAML status log used instead of a remote service.
	SourceFile string `koanf:"source_file"`

	// TripID is attached to every submitted change.
	TripID string `koanf:"trip_id"`

	// Timezone is the IANA name the day window is computed in; empty means local.
	Timezone string `koanf:"timezone"`

	RequestTimeoutMS int `koanf:"request_timeout_ms"`

	// QueueSize bounds the submission queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of submission workers.
	WorkerCount int `koanf:"worker_count"`

	// DayTickIntervalMS is how often the day window is checked for rollover.
	DayTickIntervalMS int `koanf:"day_tick_interval_ms"`

	// RedisAddr enables the Redis snapshot store; empty keeps snapshots in memory.
	RedisAddr    string `koanf:"redis_addr"`
	RedisPrefix  string `koanf:"redis_prefix"`
	SnapshotTTLS int    `koanf:"snapshot_ttl_s"`
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	ServiceName  string `koanf:"service_name"`
	ReportDir    string `koanf:"report_dir"`
	PageWidthPx  int    `koanf:"report_page_width_px"`
	RasterWidth  int    `koanf:"raster_width"`
	RasterHeight int    `koanf:"raster_height"`

	// S3Bucket switches report export from ReportDir to S3.
	S3Bucket          string `koanf:"s3_bucket"`
	S3Prefix          string `koanf:"s3_prefix"`
	S3Region          string `koanf:"s3_region"`
	S3Endpoint        string `koanf:"s3_endpoint"`
	S3PathStyle       bool   `koanf:"s3_path_style"`
	S3AccessKeyID     string `koanf:"s3_access_key_id"`
	S3SecretAccessKey string `koanf:"s3_secret_access_key"`
}

// New returns a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		Addr:              ":9080",
		CollaboratorURL:   "http://localhost:8000",
		RequestTimeoutMS:  5_000,
		QueueSize:         256,
		WorkerCount:       runtime.NumCPU(),
		DayTickIntervalMS: 30_000,
		RedisPrefix:       "eldlog:snapshot:",
		SnapshotTTLS:      72 * 3600,
		ServiceName:       "eldlog",
		ReportDir:         "reports",
		PageWidthPx:       720,
		RasterWidth:       1200,
		RasterHeight:      360,
		S3Region:          "us-east-1",
	}
}

// Validate checks invariants Load cannot express through defaults.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.CollaboratorURL == "" && c.SourceFile == "":
		return fmt.Errorf("%w: one of collaborator_url or source_file is required", ErrInvalidConfig)
	case c.CollaboratorURL != "" && c.SourceFile != "":
		return fmt.Errorf("%w: collaborator_url and source_file are exclusive", ErrInvalidConfig)
	case c.RequestTimeoutMS <= 0:
		return fmt.Errorf("%w: request_timeout_ms must be positive", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.DayTickIntervalMS <= 0:
		return fmt.Errorf("%w: day_tick_interval_ms must be positive", ErrInvalidConfig)
	case c.SnapshotTTLS < 0:
		return fmt.Errorf("%w: snapshot_ttl_s must not be negative", ErrInvalidConfig)
	case c.PageWidthPx <= 0 || c.RasterWidth <= 0 || c.RasterHeight <= 0:
		return fmt.Errorf("%w: report sizes must be positive", ErrInvalidConfig)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %w", ErrInvalidConfig, c.Timezone, err)
	}
	return loc, nil
}

// RequestTimeout is RequestTimeoutMS as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// DayTickInterval is DayTickIntervalMS as a duration.
func (c *Config) DayTickInterval() time.Duration {
	return time.Duration(c.DayTickIntervalMS) * time.Millisecond
}

// SnapshotTTL is SnapshotTTLS as a duration.
func (c *Config) SnapshotTTL() time.Duration {
	return time.Duration(c.SnapshotTTLS) * time.Second
}
