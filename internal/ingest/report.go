package ingest

import (
	"log/slog"
	"sort"
	"time"

	"github.com/xtxerr/tally/internal/checkpoint"
	"github.com/xtxerr/tally/internal/storage/aggregate"
	"github.com/xtxerr/tally/internal/storage/types"
)

// Report summarizes one run.
type Report struct {
	Source string

	// Rows counts every data row read from the feed.
	Rows int

	// Accepted counts rows aggregated into buckets.
	Accepted int

	SkippedBeforeStart int
	SkippedAfterEnd    int

	// Hours counts flushed hours, PhantomHours the slots inserted on
	// spring-forward and MergedHours the repeated fall-back hours folded
	// into the previous slot.
	Hours        int
	PhantomHours int
	MergedHours  int
	Days         int

	Stations        int
	UnknownStations []string

	// Errors counts recovered row errors by kind name.
	Errors map[string]int

	// Buckets counts aggregates written by kind name.
	Buckets map[string]int

	First time.Time
	Last  time.Time

	// Checkpoint is the resume position after the run; Advanced tells
	// whether the run stored it.
	Checkpoint checkpoint.Checkpoint
	Advanced   bool

	// Volumes holds the hourly volume distribution per station.
	Volumes *aggregate.Set

	Started  time.Time
	Duration time.Duration
}

func newReport(source string) *Report {
	return &Report{
		Source:  source,
		Errors:  make(map[string]int),
		Buckets: make(map[string]int),
		Volumes: aggregate.NewSet(),
		Started: time.Now(),
	}
}

// ErrorCount returns the number of recovered row errors.
func (r *Report) ErrorCount() int {
	n := 0
	for _, v := range r.Errors {
		n += v
	}
	return n
}

func (r *Report) wrote(kind types.Kind, n int) {
	r.Buckets[kind.String()] += n
}

// LogValue implements slog.LogValuer.
func (r *Report) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("source", r.Source),
		slog.Int("rows", r.Rows),
		slog.Int("accepted", r.Accepted),
		slog.Int("skipped_before_start", r.SkippedBeforeStart),
		slog.Int("skipped_after_end", r.SkippedAfterEnd),
		slog.Int("hours", r.Hours),
		slog.Int("phantom_hours", r.PhantomHours),
		slog.Int("merged_hours", r.MergedHours),
		slog.Int("days", r.Days),
		slog.Int("stations", r.Stations),
		slog.Duration("duration", r.Duration),
	}

	if len(r.UnknownStations) > 0 {
		attrs = append(attrs, slog.Any("unknown_stations", r.UnknownStations))
	}

	if len(r.Errors) > 0 {
		kinds := make([]string, 0, len(r.Errors))
		for k := range r.Errors {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)

		errAttrs := make([]any, 0, len(kinds))
		for _, k := range kinds {
			errAttrs = append(errAttrs, slog.Int(k, r.Errors[k]))
		}
		attrs = append(attrs, slog.Group("errors", errAttrs...))
	}

	if s := r.Volumes.Total().Summary(); s.Count > 0 {
		attrs = append(attrs, slog.Group("hourly_volume",
			slog.Float64("p50", s.P50),
			slog.Float64("p95", s.P95),
			slog.Float64("p99", s.P99),
			slog.Float64("max", s.Max),
		))
	}

	if r.Advanced {
		attrs = append(attrs, slog.String("checkpoint", r.Checkpoint.String()))
	}

	return slog.GroupValue(attrs...)
}
