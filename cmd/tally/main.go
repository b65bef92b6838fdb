// tally imports traffic counter feeds into per-station time buckets.
//
// Usage:
//
//	tally -config config.yaml                     # resume every source once
//	tally -source EC -initial                     # rebuild EC from its start month
//	tally -source EC -from 2020-03-01 -to 2020-03-31 -input march.csv
//	tally -schedule "30 2 * * *" -export          # run nightly until stopped
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	_ "time/tzdata"

	"github.com/xtxerr/tally/internal/loader"
	"github.com/xtxerr/tally/internal/logging"
	"github.com/xtxerr/tally/internal/scheduler"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// CLI flags
	cfgPath := flag.String("config", "config.yaml", "config file path")
	sources := flag.String("source", "", "comma separated source tags (default: all configured)")
	initial := flag.Bool("initial", false, "wipe the sources and import from their start month")
	from := flag.String("from", "", "test range start date YYYY-MM-DD (checkpoint is not touched)")
	to := flag.String("to", "", "test range end date YYYY-MM-DD, inclusive")
	input := flag.String("input", "", "feed path or URL (overrides config, single source only)")
	doExport := flag.Bool("export", false, "export buckets to Parquet after each run")
	exportDir := flag.String("export-dir", "", "export directory (overrides config)")
	schedule := flag.String("schedule", "", "cron expression (overrides config)")
	once := flag.Bool("once", false, "run once even if a schedule is configured")
	logLevel := flag.String("log-level", "", "debug, info, warn or error (overrides config)")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("tally", Version)
		return 0
	}

	// Load config
	cfg, err := loader.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 2
	}

	// CLI overrides
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *schedule != "" {
		cfg.Schedule = *schedule
	}
	if *once {
		cfg.Schedule = ""
	}
	if *exportDir != "" {
		cfg.Export.Dir = *exportDir
	}

	if err := loader.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		return 2
	}

	level, _ := logging.ParseLevel(cfg.Log.Level)
	logging.Init(level, cfg.Log.Format)
	log := logging.Component("main")

	opts := runOptions{
		Initial: *initial,
		From:    *from,
		To:      *to,
		Input:   *input,
		Export:  *doExport,
	}

	tags := cfg.SourceTags()
	if *sources != "" {
		tags = splitTags(*sources)
	}
	if err := opts.check(tags, cfg.Schedule); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, opts)
	if err != nil {
		log.Error("startup failed", "error", err)
		return 1
	}
	defer a.Close()

	log.Info("tally starting", "version", Version, "sources", tags, "store", cfg.Store.DSN)

	runner := scheduler.New(a.importSource, scheduler.Config{})

	if cfg.Schedule != "" {
		if err := runner.Schedule(ctx, cfg.Schedule, tags); err != nil {
			log.Error("schedule failed", "error", err)
			return 1
		}
		return 0
	}

	if err := runner.RunAll(ctx, tags); err != nil {
		log.Error("import failed", "error", err)
		return 1
	}

	runs, _, _ := runner.Stats()
	log.Info("import finished", slog.Int64("runs", runs))
	return 0
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
