// Package loader handles configuration file loading and validation.
//
// This package is responsible for:
//   - Loading YAML configuration files
//   - Expanding environment variables
//   - Processing include directives
//   - Converting sources into ingest run configurations
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/tally/internal/errors"
	"github.com/xtxerr/tally/internal/export"
	"github.com/xtxerr/tally/internal/ingest"
	"github.com/xtxerr/tally/internal/logging"
	"github.com/xtxerr/tally/internal/scheduler"
	"github.com/xtxerr/tally/internal/storage/types"
	"github.com/xtxerr/tally/internal/store"
	"github.com/xtxerr/tally/internal/validation"
)

// =============================================================================
// Load
// =============================================================================

// Load loads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// Process includes (load additional source files)
	baseDir := filepath.Dir(path)
	if err := processIncludes(cfg, baseDir); err != nil {
		return nil, err
	}

	for _, src := range cfg.Sources {
		if src != nil {
			src.ApplyDefaults()
		}
	}

	return cfg, nil
}

// Parse parses a configuration document. Environment variables are
// expanded first. Source defaults are not applied.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	// Start with defaults
	cfg := DefaultConfig()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Sources == nil {
		cfg.Sources = make(map[string]*SourceConfig)
	}
	return cfg, nil
}

// processIncludes loads and merges included configuration files.
func processIncludes(cfg *Config, baseDir string) error {
	for _, pattern := range cfg.Include {
		// Resolve relative paths
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(baseDir, pattern)
		}

		// Expand glob pattern
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}

		for _, match := range matches {
			if err := loadInclude(cfg, match); err != nil {
				return fmt.Errorf("load include %q: %w", match, err)
			}
		}
	}

	return nil
}

// loadInclude loads a single include file and merges its sources into the
// config. A source defined twice is an error.
func loadInclude(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	expanded := os.ExpandEnv(string(data))

	// Parse into a partial config
	var partial Config
	if err := yaml.Unmarshal([]byte(expanded), &partial); err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	for tag, src := range partial.Sources {
		if _, dup := cfg.Sources[tag]; dup {
			return fmt.Errorf("%w: source %s defined twice", errors.ErrInvalidConfig, tag)
		}
		cfg.Sources[tag] = src
	}

	return nil
}

// =============================================================================
// Validate
// =============================================================================

// Validate validates the configuration.
func Validate(cfg *Config) error {
	errs := errors.NewValidationErrors()

	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		errs.AddField("log.level", err.Error())
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		errs.AddField("log.format", fmt.Sprintf("must be text or json, got %q", cfg.Log.Format))
	}

	switch cfg.Store.Driver {
	case "duckdb", "sqlite3":
	default:
		errs.AddField("store.driver", fmt.Sprintf("must be duckdb or sqlite3, got %q", cfg.Store.Driver))
	}

	if _, err := export.ParseCompressionType(cfg.Export.Compression); err != nil {
		errs.AddField("export.compression", err.Error())
	}

	if cfg.Schedule != "" {
		if _, err := scheduler.ParseSchedule(cfg.Schedule); err != nil {
			errs.AddField("schedule", err.Error())
		}
	}

	if len(cfg.Sources) == 0 {
		errs.AddField("sources", "at least one source is required")
	}

	for _, tag := range cfg.SourceTags() {
		validateSource(errs, tag, cfg.Sources[tag])
	}

	return errs.Err()
}

func validateSource(errs *errors.ValidationErrors, tag string, src *SourceConfig) {
	prefix := "sources." + tag
	if err := validation.ValidateSourceTag(tag); err != nil {
		errs.AddField("sources", fmt.Sprintf("tag %q: %v", tag, err))
		return
	}
	if src == nil {
		errs.AddField(prefix, "cannot be empty")
		return
	}

	if src.StartYear < 1 {
		errs.AddMissing(prefix + ".start_year")
	}
	if src.StartMonth < 1 || src.StartMonth > 12 {
		errs.AddField(prefix+".start_month", fmt.Sprintf("must be 1-12, got %d", src.StartMonth))
	}
	if _, err := time.LoadLocation(src.Timezone); err != nil {
		errs.AddField(prefix+".timezone", err.Error())
	}
	if d := src.Interval.Duration(); d <= 0 || time.Hour%d != 0 {
		errs.AddField(prefix+".interval", fmt.Sprintf("%s does not divide an hour", d))
	}
	if src.MaxValue < 0 {
		errs.AddField(prefix+".max_value", "cannot be negative")
	}
	if src.WeekWindow < 1 {
		errs.AddField(prefix+".week_window", "must be positive")
	}
	switch src.Granularity {
	case "month", "day":
	default:
		errs.AddField(prefix+".granularity", fmt.Sprintf("must be month or day, got %q", src.Granularity))
	}

	seen := make(map[string]bool)
	for i, st := range src.Stations {
		name := strings.TrimSpace(st.Name)
		if err := validation.ValidateStationName(name); err != nil {
			errs.AddField(fmt.Sprintf("%s.stations[%d].name", prefix, i), err.Error())
			continue
		}
		if seen[name] {
			errs.AddField(fmt.Sprintf("%s.stations[%d].name", prefix, i), fmt.Sprintf("duplicate station %q", name))
		}
		seen[name] = true
	}
}

// =============================================================================
// Conversion
// =============================================================================

// SourceTags returns the configured source tags in order.
func (c *Config) SourceTags() []string {
	tags := make([]string, 0, len(c.Sources))
	for tag := range c.Sources {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Source returns the run configuration of one source.
func (c *Config) Source(tag string) (ingest.Source, error) {
	src, ok := c.Sources[tag]
	if !ok || src == nil {
		return ingest.Source{}, fmt.Errorf("%w: %s", errors.ErrUnknownSource, tag)
	}
	return src.ToSource(tag)
}

// ToSource converts a source configuration.
func (s *SourceConfig) ToSource(tag string) (ingest.Source, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return ingest.Source{}, errors.NewStructural("source %s: timezone %q: %v", tag, s.Timezone, err)
	}

	src := ingest.Source{
		Tag:             tag,
		Location:        loc,
		Interval:        s.Interval.Duration(),
		TimestampColumn: s.TimestampColumn,
		TimestampLayout: s.TimestampLayout,
		MaxValue:        s.MaxValue,
		Start:           types.MonthKey{Year: s.StartYear, Month: time.Month(s.StartMonth)},
		WeekWindow:      s.WeekWindow,
		RegisterUnknown: s.RegisterUnknown,
		DailyCheckpoint: s.Granularity == "day",
	}
	for _, st := range s.Stations {
		src.Stations = append(src.Stations, ingest.Station{
			Name:       strings.TrimSpace(st.Name),
			ExternalID: st.ExternalID,
		})
	}
	return src, src.Validate()
}

// ToStoreConfig converts the store configuration.
func ToStoreConfig(cfg StoreConfig) store.Config {
	out := store.DefaultConfig()
	if cfg.Driver != "" {
		out.Driver = cfg.Driver
	}
	out.DSN = cfg.DSN
	if cfg.MaxOpenConns > 0 {
		out.MaxOpenConns = cfg.MaxOpenConns
		if out.MaxIdleConns > cfg.MaxOpenConns {
			out.MaxIdleConns = cfg.MaxOpenConns
		}
	}
	if cfg.QueryTimeout > 0 {
		out.QueryTimeout = cfg.QueryTimeout.Duration()
	}
	return out
}
