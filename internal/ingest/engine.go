// Package ingest turns counter feeds into the hour, day, week, month and
// year buckets of each station.
//
// A run walks the feed once in timestamp order. Samples are summed into an
// hour accumulator per station; every completed hour becomes one slot of
// the day's hour data. When the local date changes the finished day is
// stored and the boundary checks run in the order year, month, week, day:
// a rollup reads the children still attached to the outgoing bucket before
// the next bucket replaces it.
//
// Runs resume from the source's checkpoint. The checkpointed month's days
// and a window of weeks are deleted first and rebuilt from the feed, so a
// failed run is retried by simply running again.
package ingest

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xtxerr/tally/internal/checkpoint"
	"github.com/xtxerr/tally/internal/errors"
	"github.com/xtxerr/tally/internal/logging"
	"github.com/xtxerr/tally/internal/metrics"
	"github.com/xtxerr/tally/internal/source"
	"github.com/xtxerr/tally/internal/storage/types"
	"github.com/xtxerr/tally/internal/store"
)

var log = logging.Component("ingest")

// BucketStore is the persistence used by the engine.
type BucketStore interface {
	EnsureStation(ctx context.Context, source, name, externalID string) (*store.Station, error)
	StationsBySource(ctx context.Context, source string) ([]*store.Station, error)
	WipeSource(ctx context.Context, source string) error

	GetOrCreate(ctx context.Context, stationID int64, k store.Key) error
	Exists(ctx context.Context, stationID int64, k store.Key) (bool, error)
	AttachWeekYear(ctx context.Context, stationID int64, w types.WeekKey, year int) error
	UpsertAggregate(ctx context.Context, stationID int64, k store.Key, c types.Counts) error
	SumChildren(ctx context.Context, stationID int64, k store.Key) (types.Counts, error)
	SaveHours(ctx context.Context, stationID int64, date types.DateKey, hours []types.Counts) error
	DeleteRange(ctx context.Context, stationID int64, kind types.Kind, from, to store.Key) (int64, error)
}

// Checkpointer loads and advances import checkpoints.
type Checkpointer interface {
	Load(ctx context.Context, source string, start types.MonthKey) (checkpoint.Checkpoint, error)
	Advance(ctx context.Context, source string, cp checkpoint.Checkpoint) error
	Reset(ctx context.Context, source string) error
}

// Options select the kind of run.
type Options struct {
	// Initial wipes every bucket and station of the source and restarts
	// from the source's start month.
	Initial bool

	// From and To bound a test range [From, To). A range run neither reads
	// nor advances the checkpoint. A zero To leaves the range open.
	From time.Time
	To   time.Time
}

func (o Options) isRange() bool {
	return !o.From.IsZero()
}

// Engine runs imports. It keeps no state between runs; runs of different
// sources may execute concurrently, runs of the same source must not.
type Engine struct {
	buckets     BucketStore
	checkpoints Checkpointer
}

// New creates an Engine.
func New(buckets BucketStore, checkpoints Checkpointer) *Engine {
	return &Engine{
		buckets:     buckets,
		checkpoints: checkpoints,
	}
}

// Run imports stream for src.
//
// Row-level problems are repaired, counted in the report and logged.
// Structural problems (bad configuration, undecodable header, no anchor
// timestamp, no usable station) fail the run before anything is written.
// The checkpoint only moves after the whole stream has been processed.
func (e *Engine) Run(ctx context.Context, src Source, stream source.Stream, opts Options) (rep *Report, err error) {
	src = src.withDefaults()
	rep = newReport(src.Tag)

	ctx = logging.ContextWithSource(ctx, src.Tag)

	defer func() {
		rep.Duration = time.Since(rep.Started)
		metrics.RecordRun(metrics.Run{
			Source:   src.Tag,
			Rows:     rep.Rows,
			Errors:   rep.Errors,
			Buckets:  rep.Buckets,
			Duration: rep.Duration,
			Err:      err,
		})
		if err != nil {
			log.Error("run failed", "source", src.Tag, "error", err, "report", rep)
			return
		}
		log.Info("run finished", "report", rep)
	}()

	r, err := e.prepare(ctx, src, stream, opts, rep)
	if err != nil {
		return rep, err
	}
	if r == nil {
		log.Info("feed is empty", "source", src.Tag)
		return rep, nil
	}

	if err := e.begin(ctx, r); err != nil {
		return rep, err
	}

	if err := r.consume(ctx, stream); err != nil {
		return rep, err
	}

	if err := r.finish(ctx); err != nil {
		return rep, err
	}

	if opts.isRange() || !r.started {
		return rep, nil
	}

	last := types.DateOf(r.last)
	cp := checkpoint.Checkpoint{Year: last.Year, Month: last.Month}
	if src.DailyCheckpoint {
		cp.Day = last.Day
	}
	if err := e.checkpoints.Advance(ctx, src.Tag, cp); err != nil {
		return rep, err
	}
	rep.Checkpoint = cp
	rep.Advanced = true

	return rep, nil
}

// prepare validates everything a run needs without writing. It returns a
// nil run for an empty feed.
func (e *Engine) prepare(ctx context.Context, src Source, stream source.Stream, opts Options, rep *Report) (*run, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}

	if opts.isRange() && opts.Initial {
		return nil, fmt.Errorf("%w: initial import cannot be combined with a test range", errors.ErrInvalidRange)
	}
	if !opts.To.IsZero() && (opts.From.IsZero() || !opts.To.After(opts.From)) {
		return nil, fmt.Errorf("%w: %s .. %s", errors.ErrInvalidRange, opts.From, opts.To)
	}

	layout, err := source.DecodeColumns(stream.Columns(), src.TimestampColumn)
	if err != nil {
		return nil, err
	}

	first, err := stream.Next()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read first row: %w", err)
	}
	rep.Rows++

	r := newRun(src, opts, layout, rep, e.buckets)

	anchor, err := r.parseTimestamp(first)
	if err != nil {
		return nil, errors.NewStructural("first row (line %d) has no usable timestamp: %v", first.Line, err)
	}
	r.pending = &first
	r.pendingTS = anchor

	if err := r.plan(ctx, e.buckets); err != nil {
		return nil, err
	}
	return r, nil
}

// begin performs the writes that precede ingestion: the initial wipe,
// station registration, checkpoint load and the resume deletes.
func (e *Engine) begin(ctx context.Context, r *run) error {
	src := r.src

	if r.opts.Initial {
		if err := e.buckets.WipeSource(ctx, src.Tag); err != nil {
			return err
		}
		if err := e.checkpoints.Reset(ctx, src.Tag); err != nil {
			return err
		}
	}

	if err := r.register(ctx); err != nil {
		return err
	}

	if r.opts.isRange() {
		r.from = types.DateOf(r.opts.From.In(src.Location))
		end := lastDayOfMonth(r.from)
		if !r.opts.To.IsZero() {
			end = types.DateOf(r.opts.To.In(src.Location).Add(-time.Nanosecond))
		}
		log.Info("test range run", "source", src.Tag, "from", r.opts.From, "to", r.opts.To)
		return r.clearWindow(ctx, r.from, end)
	}

	cp, err := e.checkpoints.Load(ctx, src.Tag, src.Start)
	if err != nil {
		return err
	}
	r.from = cp.StartDate()
	log.Info("resuming", "source", src.Tag, "checkpoint", cp.String(), "initial", r.opts.Initial)

	return r.clearWindow(ctx, r.from, lastDayOfMonth(r.from))
}

func lastDayOfMonth(d types.DateKey) types.DateKey {
	return types.MonthOf(d).Next().FirstDay().AddDays(-1)
}
