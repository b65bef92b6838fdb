// Package scheduler runs source imports concurrently and on a cron schedule.
//
// Different sources run in parallel, one goroutine each. Runs of the same
// source never overlap: RunAll waits for a run in progress, scheduled ticks
// skip a source that is still busy.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/tally/internal/errors"
	"github.com/xtxerr/tally/internal/logging"
)

var log = logging.Component("scheduler")

// Job imports one source.
type Job func(ctx context.Context, source string) error

// Config holds runner configuration.
type Config struct {
	// MaxConcurrent bounds the sources run at once. Zero is unbounded.
	MaxConcurrent int

	// RunTimeout bounds a single source run. Zero is unbounded.
	RunTimeout time.Duration
}

// Runner executes Jobs.
//
// Runner is safe for concurrent use.
type Runner struct {
	job   Job
	cfg   Config
	locks *sourceLocks

	runs     atomic.Int64
	failures atomic.Int64
	skipped  atomic.Int64
}

// New creates a Runner.
func New(job Job, cfg Config) *Runner {
	return &Runner{
		job:   job,
		cfg:   cfg,
		locks: newSourceLocks(),
	}
}

// =============================================================================
// Runs
// =============================================================================

// Run imports one source, waiting for a run of the same source in progress.
func (r *Runner) Run(ctx context.Context, source string) error {
	if err := r.locks.lock(ctx, source); err != nil {
		return err
	}
	defer r.locks.unlock(source)

	return r.execute(ctx, source)
}

// TryRun imports one source unless a run of it is in progress, in which
// case it returns ErrSourceInFlight.
func (r *Runner) TryRun(ctx context.Context, source string) error {
	if !r.locks.tryLock(source) {
		r.skipped.Add(1)
		return fmt.Errorf("%w: %s", errors.ErrSourceInFlight, source)
	}
	defer r.locks.unlock(source)

	return r.execute(ctx, source)
}

// RunAll imports every distinct source concurrently and returns the joined
// errors of the failed ones. A failing source does not stop the others.
func (r *Runner) RunAll(ctx context.Context, sources []string) error {
	return r.runAll(ctx, sources, r.Run)
}

func (r *Runner) runAll(ctx context.Context, sources []string, run func(context.Context, string) error) error {
	var g errgroup.Group
	if r.cfg.MaxConcurrent > 0 {
		g.SetLimit(r.cfg.MaxConcurrent)
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	for _, source := range distinct(sources) {
		g.Go(func() error {
			if err := run(ctx, source); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("source %s: %w", source, err))
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	return errors.Join(errs...)
}

// execute runs the job with the run timeout and converts a panic into an
// error.
func (r *Runner) execute(ctx context.Context, source string) (err error) {
	r.runs.Add(1)
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			log.Error("panic in source run", "source", source, "panic", p)
			err = fmt.Errorf("%w: panic: %v", errors.ErrInternal, p)
		}
		if err != nil {
			r.failures.Add(1)
		}
		log.Debug("source run done", "source", source, "duration", time.Since(start), "error", err)
	}()

	if r.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.RunTimeout)
		defer cancel()
	}

	return r.job(ctx, source)
}

// Busy returns true if a run of source is in progress.
func (r *Runner) Busy(source string) bool {
	return r.locks.held(source)
}

// Stats returns the number of executed, failed and skipped runs.
func (r *Runner) Stats() (runs, failures, skipped int64) {
	return r.runs.Load(), r.failures.Load(), r.skipped.Load()
}

func distinct(sources []string) []string {
	seen := make(map[string]bool, len(sources))
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// Cron
// =============================================================================

// ParseSchedule validates a standard five-field cron expression.
func ParseSchedule(spec string) (cron.Schedule, error) {
	s, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: schedule %q: %v", errors.ErrInvalidConfig, spec, err)
	}
	return s, nil
}

// Schedule runs sources on every tick of spec until ctx ends. Sources still
// busy from an earlier tick are skipped. It returns after the running
// ticks have finished.
func (r *Runner) Schedule(ctx context.Context, spec string, sources []string) error {
	sched, err := ParseSchedule(spec)
	if err != nil {
		return err
	}
	return r.scheduleOn(ctx, sched, sources)
}

func (r *Runner) scheduleOn(ctx context.Context, sched cron.Schedule, sources []string) error {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger)),
	)

	c.Schedule(sched, cron.FuncJob(func() {
		if err := r.runAll(ctx, sources, r.TryRun); err != nil {
			log.Error("scheduled run failed", "error", err)
		}
	}))

	c.Start()
	log.Info("schedule started", "sources", distinct(sources), "next", sched.Next(time.Now()))

	<-ctx.Done()

	stopped := c.Stop()
	<-stopped.Done()
	log.Info("schedule stopped")
	return nil
}

// cronLogger routes cron's logging to slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
