// Package loader - Configuration Types
//
// Defines the YAML configuration structure for tally.
//
//   ┌─────────────────────────────────────────────────────────────────────┐
//   │                         config.yaml                                 │
//   ├─────────────────────────────────────────────────────────────────────┤
//   │  log:       level, format                                           │
//   │  store:     bucket store driver (duckdb | sqlite3), dsn, pool       │
//   │  sources:   counter networks keyed by source tag                    │
//   │             (timezone, cadence, start period, feed, stations)       │
//   │  metrics:   Pushgateway target for batch runs                       │
//   │  export:    Parquet export directory and codec                      │
//   │  schedule:  cron expression for unattended runs                     │
//   └─────────────────────────────────────────────────────────────────────┘

package loader

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xtxerr/tally/config"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure for tally.
type Config struct {
	// Log configures the global logger.
	Log LogConfig `yaml:"log"`

	// Store configures the bucket store.
	Store StoreConfig `yaml:"store"`

	// Sources defines the counter networks, keyed by source tag (e.g. "EC").
	Sources map[string]*SourceConfig `yaml:"sources"`

	// Metrics configures the optional Pushgateway push after each batch run.
	Metrics MetricsConfig `yaml:"metrics"`

	// Export configures Parquet exports.
	Export ExportConfig `yaml:"export"`

	// Schedule is a cron expression. Empty runs once and exits.
	// Example: "30 2 * * *"
	Schedule string `yaml:"schedule"`

	// Include lists additional config files to load.
	// Supports glob patterns. Relative to this file's directory.
	Include []string `yaml:"include"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// Format is text or json.
	// Default: text
	Format string `yaml:"format"`
}

// StoreConfig configures the bucket store.
type StoreConfig struct {
	// Driver is the database/sql driver: duckdb or sqlite3.
	// Default: duckdb
	Driver string `yaml:"driver"`

	// DSN is the database location. Empty or ":memory:" is in-memory.
	// Default: tally.db
	DSN string `yaml:"dsn"`

	// MaxOpenConns is the maximum number of open connections.
	// Forced to 1 for in-memory SQLite.
	// Default: 4
	MaxOpenConns int `yaml:"max_open_conns"`

	// QueryTimeout bounds a single statement.
	// Default: 30s
	QueryTimeout Duration `yaml:"query_timeout"`
}

// SourceConfig describes one counter network.
type SourceConfig struct {
	// Name is a human-readable label.
	Name string `yaml:"name"`

	// Timezone is the IANA zone buckets are cut in.
	// Default: Europe/Helsinki
	Timezone string `yaml:"timezone"`

	// Interval is the feed cadence. Must divide one hour.
	// Default: 15m
	Interval Duration `yaml:"interval"`

	// StartYear is the first year of the network's data.
	// Required.
	StartYear int `yaml:"start_year"`

	// StartMonth is the first month imported for a new source.
	// Default: 1
	StartMonth int `yaml:"start_month"`

	// Feed is a local path or http(s) URL of the CSV feed.
	// Can be overridden on the command line.
	Feed string `yaml:"feed"`

	// FetchTimeout bounds the download of a remote feed.
	// Default: 2m
	FetchTimeout Duration `yaml:"fetch_timeout"`

	// TimestampColumn is the header of the time column.
	// Default: startTime
	TimestampColumn string `yaml:"timestamp_column"`

	// TimestampLayout is a Go time layout.
	// Default: RFC3339
	TimestampLayout string `yaml:"timestamp_layout"`

	// MaxValue is the largest plausible sample; larger values are zeroed.
	// Default: 5400
	MaxValue int64 `yaml:"max_value"`

	// WeekWindow is the number of ISO weeks rebuilt on every run.
	// Default: 6
	WeekWindow int `yaml:"week_window"`

	// RegisterUnknown registers stations found in the feed but missing
	// from the registry. When false their columns are skipped.
	// Default: false
	RegisterUnknown bool `yaml:"register_unknown"`

	// Granularity of the stored checkpoint: month or day.
	// Default: month
	Granularity string `yaml:"granularity"`

	// Stations are registered before every run.
	Stations []StationConfig `yaml:"stations"`
}

// StationConfig declares a station of a source.
type StationConfig struct {
	Name       string `yaml:"name"`
	ExternalID string `yaml:"external_id"`
}

// MetricsConfig configures metric publication.
type MetricsConfig struct {
	// PushgatewayURL enables a push after each batch run.
	PushgatewayURL string `yaml:"pushgateway_url"`

	// Job is the Pushgateway job label.
	// Default: tally
	Job string `yaml:"job"`
}

// ExportConfig configures Parquet exports.
type ExportConfig struct {
	// Dir receives one sub-directory per source.
	Dir string `yaml:"dir"`

	// Compression is snappy, zstd, lz4, gzip or none.
	// Default: zstd
	Compression string `yaml:"compression"`
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a Config with all defaults applied and no sources.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Store: StoreConfig{
			Driver:       config.DefaultStoreDriver,
			DSN:          config.DefaultStoreDSN,
			MaxOpenConns: config.DefaultMaxOpenConns,
			QueryTimeout: Duration(config.DefaultQueryTimeout),
		},
		Sources: make(map[string]*SourceConfig),
		Metrics: MetricsConfig{
			Job: config.DefaultMetricsJob,
		},
		Export: ExportConfig{
			Compression: config.DefaultExportCompression,
		},
	}
}

// ApplyDefaults fills unset source fields.
func (s *SourceConfig) ApplyDefaults() {
	if s.Timezone == "" {
		s.Timezone = config.DefaultTimezone
	}
	if s.Interval == 0 {
		s.Interval = Duration(config.DefaultInterval)
	}
	if s.StartMonth == 0 {
		s.StartMonth = config.DefaultStartMonth
	}
	if s.FetchTimeout == 0 {
		s.FetchTimeout = Duration(config.DefaultFetchTimeout)
	}
	if s.TimestampColumn == "" {
		s.TimestampColumn = config.DefaultTimestampColumn
	}
	if s.TimestampLayout == "" {
		s.TimestampLayout = config.DefaultTimestampLayout
	}
	if s.MaxValue == 0 {
		s.MaxValue = config.DefaultMaxValue
	}
	if s.WeekWindow == 0 {
		s.WeekWindow = config.DefaultWeekWindow
	}
	if s.Granularity == "" {
		s.Granularity = "month"
	}
}

// =============================================================================
// Custom YAML types
// =============================================================================

// Duration is a time.Duration that can be unmarshaled from YAML.
// Supports: "15m", "1h", or plain seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)

	// Plain integers are seconds
	if i, err := strconv.Atoi(s); err == nil {
		*d = Duration(time.Duration(i) * time.Second)
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
