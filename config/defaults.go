// Package config provides configuration defaults and utilities
// for the tally importer.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or environment variables.
package config

import "time"

// =============================================================================
// Feed Defaults
// =============================================================================

const (
	// DefaultInterval is the sampling cadence of a counter feed.
	// Override via config: sources.<tag>.interval
	DefaultInterval = 15 * time.Minute

	// DefaultTimezone is the wall-clock zone buckets are cut in.
	// Override via config: sources.<tag>.timezone
	DefaultTimezone = "Europe/Helsinki"

	// DefaultTimestampColumn is the header of the feed's time column.
	// Override via config: sources.<tag>.timestamp_column
	DefaultTimestampColumn = "startTime"

	// DefaultTimestampLayout is the Go time layout of feed timestamps.
	// Timestamps carrying an offset are converted into the source timezone;
	// timestamps without one are read as wall-clock time in it.
	// Override via config: sources.<tag>.timestamp_layout
	DefaultTimestampLayout = time.RFC3339

	// DefaultFetchTimeout bounds the download of a remote feed.
	// Override via config: sources.<tag>.fetch_timeout
	DefaultFetchTimeout = 2 * time.Minute
)

// =============================================================================
// Sanity Limits
// =============================================================================

const (
	// DefaultMaxValue is the largest plausible 15-minute sample:
	// one vehicle per second on six lanes for fifteen minutes.
	// Larger values are sensor errors and stored as zero.
	// Override via config: sources.<tag>.max_value
	DefaultMaxValue = 1 * 6 * 15 * 60
)

// =============================================================================
// Resume Defaults
// =============================================================================

const (
	// DefaultWeekWindow is how many ISO weeks, starting at the week of the
	// checkpointed month's first day, are deleted before a run rebuilds them.
	// Six weeks cover any month plus the week that follows it.
	// Override via config: sources.<tag>.week_window
	DefaultWeekWindow = 6

	// DefaultStartMonth is the first month imported for a new source.
	// Override via config: sources.<tag>.start_month
	DefaultStartMonth = 1
)

// =============================================================================
// Store Defaults
// =============================================================================

const (
	// DefaultStoreDriver is the database/sql driver of the bucket store.
	// Supported: duckdb, sqlite3.
	// Override via config: store.driver
	DefaultStoreDriver = "duckdb"

	// DefaultStoreDSN is the bucket store location.
	// Override via config: store.dsn
	DefaultStoreDSN = "tally.db"

	// DefaultMaxOpenConns is the maximum number of open store connections.
	// Override via config: store.max_open_conns
	DefaultMaxOpenConns = 4

	// DefaultQueryTimeout bounds a single store statement.
	// Override via config: store.query_timeout
	DefaultQueryTimeout = 30 * time.Second
)

// =============================================================================
// Export Defaults
// =============================================================================

const (
	// DefaultExportCompression is the Parquet codec used by exports.
	// Supported: snappy, zstd, lz4, gzip, none.
	// Override via config: export.compression
	DefaultExportCompression = "zstd"
)

// =============================================================================
// Metrics Defaults
// =============================================================================

const (
	// DefaultMetricsJob is the Pushgateway job name.
	// Override via config: metrics.job
	DefaultMetricsJob = "tally"
)
