// Package metrics exposes Prometheus metrics of import runs.
//
// Metrics are registered with the default registry. A batch run publishes
// them by pushing to a Pushgateway once it finishes.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	// RowsTotal counts feed rows processed.
	RowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_rows_total",
			Help: "Total number of feed rows processed",
		},
		[]string{"source"},
	)

	// RowErrors counts recovered row-level errors by kind.
	RowErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_row_errors_total",
			Help: "Total number of recovered row errors",
		},
		[]string{"source", "kind"}, // "sensor_out_of_range", "malformed_timestamp", ...
	)

	// BucketsWritten counts aggregate rows written by bucket kind.
	BucketsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_buckets_written_total",
			Help: "Total number of bucket aggregates written",
		},
		[]string{"source", "kind"}, // "hour", "day", "week", "month", "year"
	)

	// RunDuration observes the wall time of import runs.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tally_run_duration_seconds",
			Help:    "Duration of import runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"source"},
	)

	// RunsTotal counts finished runs by outcome.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_runs_total",
			Help: "Total number of import runs",
		},
		[]string{"source", "status"}, // "success", "failure"
	)

	// LastSuccess is the unix time of the last clean run.
	LastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tally_last_success_timestamp",
			Help: "Unix timestamp of the last successful import run",
		},
		[]string{"source"},
	)
)

// Run is the outcome of one import run.
type Run struct {
	Source   string
	Rows     int
	Errors   map[string]int
	Buckets  map[string]int
	Duration time.Duration
	Err      error
}

// RecordRun records the outcome of an import run.
func RecordRun(r Run) {
	RowsTotal.WithLabelValues(r.Source).Add(float64(r.Rows))
	for kind, n := range r.Errors {
		RowErrors.WithLabelValues(r.Source, kind).Add(float64(n))
	}
	for kind, n := range r.Buckets {
		BucketsWritten.WithLabelValues(r.Source, kind).Add(float64(n))
	}
	RunDuration.WithLabelValues(r.Source).Observe(r.Duration.Seconds())

	if r.Err != nil {
		RunsTotal.WithLabelValues(r.Source, "failure").Inc()
		return
	}
	RunsTotal.WithLabelValues(r.Source, "success").Inc()
	LastSuccess.WithLabelValues(r.Source).SetToCurrentTime()
}

// Push sends the default registry to a Pushgateway under job.
func Push(ctx context.Context, url, job string) error {
	return PushGatherer(ctx, url, job, prometheus.DefaultGatherer)
}

// PushGatherer sends the metrics of g to a Pushgateway under job.
func PushGatherer(ctx context.Context, url, job string, g prometheus.Gatherer) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(g).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
