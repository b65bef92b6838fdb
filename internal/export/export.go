// Package export writes the stored buckets of a source to Parquet files.
//
// One directory per source receives hours.parquet, days.parquet,
// weeks.parquet, months.parquet and years.parquet. Files are rewritten as a
// whole on every export.
package export

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xtxerr/tally/internal/logging"
	"github.com/xtxerr/tally/internal/storage/types"
	"github.com/xtxerr/tally/internal/store"
)

var log = logging.Component("export")

// Counters is the Parquet group holding the twelve counters of a bucket.
type Counters struct {
	CarInbound         int64 `parquet:"car_inbound"`
	CarOutbound        int64 `parquet:"car_outbound"`
	CarTotal           int64 `parquet:"car_total"`
	BikeInbound        int64 `parquet:"bike_inbound"`
	BikeOutbound       int64 `parquet:"bike_outbound"`
	BikeTotal          int64 `parquet:"bike_total"`
	PedestrianInbound  int64 `parquet:"pedestrian_inbound"`
	PedestrianOutbound int64 `parquet:"pedestrian_outbound"`
	PedestrianTotal    int64 `parquet:"pedestrian_total"`
	BusInbound         int64 `parquet:"bus_inbound"`
	BusOutbound        int64 `parquet:"bus_outbound"`
	BusTotal           int64 `parquet:"bus_total"`
}

// CountersOf converts stored counts.
func CountersOf(c types.Counts) Counters {
	return Counters{
		CarInbound:         c.Get(types.ModeCar, types.DirectionInbound),
		CarOutbound:        c.Get(types.ModeCar, types.DirectionOutbound),
		CarTotal:           c.Get(types.ModeCar, types.DirectionTotal),
		BikeInbound:        c.Get(types.ModeBike, types.DirectionInbound),
		BikeOutbound:       c.Get(types.ModeBike, types.DirectionOutbound),
		BikeTotal:          c.Get(types.ModeBike, types.DirectionTotal),
		PedestrianInbound:  c.Get(types.ModePedestrian, types.DirectionInbound),
		PedestrianOutbound: c.Get(types.ModePedestrian, types.DirectionOutbound),
		PedestrianTotal:    c.Get(types.ModePedestrian, types.DirectionTotal),
		BusInbound:         c.Get(types.ModeBus, types.DirectionInbound),
		BusOutbound:        c.Get(types.ModeBus, types.DirectionOutbound),
		BusTotal:           c.Get(types.ModeBus, types.DirectionTotal),
	}
}

// HourRow is one hour slot in Parquet format.
type HourRow struct {
	Source  string   `parquet:"source,dict"`
	Station string   `parquet:"station,dict"`
	Date    string   `parquet:"date"`
	Hour    int32    `parquet:"hour"`
	Counts  Counters `parquet:"counts"`
}

// BucketRow is one day, week, month or year aggregate in Parquet format.
// Key fields that do not apply to the bucket kind are zero.
type BucketRow struct {
	Source  string `parquet:"source,dict"`
	Station string `parquet:"station,dict"`
	Bucket  string `parquet:"bucket"`
	Year    int32  `parquet:"year"`
	Month   int32  `parquet:"month"`
	ISOYear int32  `parquet:"iso_year"`
	Week    int32  `parquet:"week"`
	Date    string `parquet:"date,optional"`

	// Years lists the calendar years a week belongs to, e.g. "2020,2021".
	Years string `parquet:"years,optional"`

	Counts Counters `parquet:"counts"`
}

func bucketRow(source string, rec store.AggregateRecord) BucketRow {
	row := BucketRow{
		Source:  source,
		Station: rec.Station,
		Bucket:  rec.Key.String(),
		Counts:  CountersOf(rec.Counts),
	}

	switch rec.Key.Kind {
	case types.KindDay:
		d := rec.Key.Date
		row.Year, row.Month, row.Date = int32(d.Year), int32(d.Month), d.String()
		w := d.ISOWeek()
		row.ISOYear, row.Week = int32(w.ISOYear), int32(w.Week)
	case types.KindWeek:
		row.ISOYear, row.Week = int32(rec.Key.Week.ISOYear), int32(rec.Key.Week.Week)
		years := make([]string, len(rec.Years))
		for i, y := range rec.Years {
			years[i] = strconv.Itoa(y)
		}
		row.Years = strings.Join(years, ",")
	case types.KindMonth:
		row.Year, row.Month = int32(rec.Key.Year), int32(rec.Key.Month)
	case types.KindYear:
		row.Year = int32(rec.Key.Year)
	}
	return row
}

// Lister reads stored buckets.
type Lister interface {
	ListAggregates(ctx context.Context, source string, kind types.Kind) ([]store.AggregateRecord, error)
	ListHours(ctx context.Context, source string) ([]store.HourRecord, error)
}

// Result lists the written files with their row counts.
type Result struct {
	Dir      string
	Files    map[string]int64
	Duration time.Duration
}

// Run exports every bucket of source into dir/<source>.
func Run(ctx context.Context, st Lister, source, dir string, opts Options) (*Result, error) {
	start := time.Now()
	res := &Result{
		Dir:   filepath.Join(dir, source),
		Files: make(map[string]int64),
	}

	hours, err := st.ListHours(ctx, source)
	if err != nil {
		return nil, err
	}
	rows := make([]HourRow, len(hours))
	for i, h := range hours {
		rows[i] = HourRow{
			Source:  source,
			Station: h.Station,
			Date:    h.Date.String(),
			Hour:    int32(h.Index),
			Counts:  CountersOf(h.Counts),
		}
	}
	if err := writeFile(res, "hours.parquet", rows, opts); err != nil {
		return nil, err
	}

	for _, kind := range []types.Kind{types.KindDay, types.KindWeek, types.KindMonth, types.KindYear} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		recs, err := st.ListAggregates(ctx, source, kind)
		if err != nil {
			return nil, err
		}
		rows := make([]BucketRow, len(recs))
		for i, rec := range recs {
			rows[i] = bucketRow(source, rec)
		}
		if err := writeFile(res, kind.String()+"s.parquet", rows, opts); err != nil {
			return nil, err
		}
	}

	res.Duration = time.Since(start)
	log.Info("export written", "source", source, "dir", res.Dir, "files", len(res.Files), "duration", res.Duration)
	return res, nil
}

func writeFile[T any](res *Result, name string, rows []T, opts Options) error {
	w, err := NewWriter[T](filepath.Join(res.Dir, name), opts)
	if err != nil {
		return fmt.Errorf("export %s: %w", name, err)
	}
	if err := w.Write(rows); err != nil {
		w.Close()
		return fmt.Errorf("export %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("export %s: %w", name, err)
	}
	res.Files[name] = w.RowCount()
	log.Debug("export file written", "path", w.Path(), "rows", w.RowCount())
	return nil
}
