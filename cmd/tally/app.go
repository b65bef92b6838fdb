package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xtxerr/tally/internal/checkpoint"
	"github.com/xtxerr/tally/internal/errors"
	"github.com/xtxerr/tally/internal/export"
	"github.com/xtxerr/tally/internal/ingest"
	"github.com/xtxerr/tally/internal/loader"
	"github.com/xtxerr/tally/internal/logging"
	"github.com/xtxerr/tally/internal/metrics"
	"github.com/xtxerr/tally/internal/source"
	"github.com/xtxerr/tally/internal/store"
)

const dateLayout = "2006-01-02"

// runOptions are the per-invocation choices from the command line.
type runOptions struct {
	Initial bool
	From    string
	To      string
	Input   string
	Export  bool
}

// check rejects flag combinations that cannot work.
func (o runOptions) check(tags []string, schedule string) error {
	if len(tags) == 0 {
		return fmt.Errorf("%w: no source selected", errors.ErrInvalidConfig)
	}
	if o.Input != "" && len(tags) != 1 {
		return fmt.Errorf("%w: -input needs exactly one source", errors.ErrInvalidConfig)
	}
	if o.To != "" && o.From == "" {
		return fmt.Errorf("%w: -to needs -from", errors.ErrInvalidRange)
	}
	if o.From != "" && o.Initial {
		return fmt.Errorf("%w: -initial cannot be combined with a test range", errors.ErrInvalidRange)
	}
	if schedule != "" && (o.Initial || o.From != "") {
		return fmt.Errorf("%w: -initial and test ranges are one-off runs, use -once", errors.ErrInvalidConfig)
	}
	return nil
}

// ingestOptions converts the date flags in loc. To is inclusive, so the
// range ends at the following midnight.
func (o runOptions) ingestOptions(loc *time.Location) (ingest.Options, error) {
	opts := ingest.Options{Initial: o.Initial}
	if o.From != "" {
		from, err := time.ParseInLocation(dateLayout, o.From, loc)
		if err != nil {
			return opts, fmt.Errorf("%w: -from %q: %v", errors.ErrInvalidRange, o.From, err)
		}
		opts.From = from
	}
	if o.To != "" {
		to, err := time.ParseInLocation(dateLayout, o.To, loc)
		if err != nil {
			return opts, fmt.Errorf("%w: -to %q: %v", errors.ErrInvalidRange, o.To, err)
		}
		opts.To = to.AddDate(0, 0, 1)
	}
	return opts, nil
}

// app holds what every source run shares.
type app struct {
	cfg    *loader.Config
	opts   runOptions
	store  *store.Store
	engine *ingest.Engine
	log    *slog.Logger
}

func newApp(cfg *loader.Config, opts runOptions) (*app, error) {
	st, err := store.New(loader.ToStoreConfig(cfg.Store))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	return &app{
		cfg:    cfg,
		opts:   opts,
		store:  st,
		engine: ingest.New(st, checkpoint.NewManager(st)),
		log:    logging.Component("main"),
	}, nil
}

// importSource runs one import of tag and the optional export, then
// pushes the metrics.
func (a *app) importSource(ctx context.Context, tag string) error {
	defer a.pushMetrics(ctx)

	src, err := a.cfg.Source(tag)
	if err != nil {
		return err
	}
	srcCfg := a.cfg.Sources[tag]

	opts, err := a.opts.ingestOptions(src.Location)
	if err != nil {
		return err
	}

	feed := srcCfg.Feed
	if a.opts.Input != "" {
		feed = a.opts.Input
	}
	if feed == "" {
		return fmt.Errorf("%w: source %s has no feed", errors.ErrInvalidFeed, tag)
	}

	ctx = logging.ContextWithSource(ctx, tag)
	ctx = logging.ContextWithRunID(ctx, time.Now().UTC().Format("20060102T150405"))

	stream, err := source.Open(ctx, feed, srcCfg.FetchTimeout.Duration())
	if err != nil {
		return err
	}
	defer stream.Close()

	rep, err := a.engine.Run(ctx, src, stream, opts)
	if err != nil {
		return err
	}
	if rep.ErrorCount() > 0 {
		a.log.Info("row errors recovered", "source", tag, "errors", rep.ErrorCount())
	}

	if a.opts.Export {
		return a.export(ctx, tag)
	}
	return nil
}

func (a *app) export(ctx context.Context, tag string) error {
	if a.cfg.Export.Dir == "" {
		return fmt.Errorf("%w: export.dir is not set", errors.ErrInvalidConfig)
	}
	compression, err := export.ParseCompressionType(a.cfg.Export.Compression)
	if err != nil {
		return err
	}
	opts := export.DefaultOptions()
	opts.Compression = compression

	_, err = export.Run(ctx, a.store, tag, a.cfg.Export.Dir, opts)
	return err
}

// pushMetrics sends the run metrics to the configured Pushgateway.
func (a *app) pushMetrics(ctx context.Context) {
	url := a.cfg.Metrics.PushgatewayURL
	if url == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := metrics.Push(ctx, url, a.cfg.Metrics.Job); err != nil {
		a.log.Error("metrics push failed", "url", url, "error", err)
	}
}

func (a *app) Close() error {
	return a.store.Close()
}
