// Package store - Read queries
//
// Listing queries used by exports and tests. They read whole sources and
// are not on the ingest path.

package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xtxerr/tally/internal/storage/types"
)

// AggregateRecord is a stored bucket aggregate with its station.
type AggregateRecord struct {
	StationID int64
	Station   string
	Key       Key
	Counts    types.Counts

	// Years is the year-set of a week, empty for other kinds.
	Years []int
}

// HourRecord is one stored hour slot.
type HourRecord struct {
	StationID int64
	Station   string
	Date      types.DateKey
	Index     int
	Counts    types.Counts
}

// ListAggregates returns every aggregate of one kind for a source, ordered by
// station and key.
func (s *Store) ListAggregates(ctx context.Context, source string, kind types.Kind) ([]AggregateRecord, error) {
	bt, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	keyCols := make([]string, len(bt.keys))
	for i, k := range bt.keys {
		keyCols[i] = "d." + k
	}

	var years string
	if kind == types.KindWeek {
		years = `, (SELECT STRING_AGG(CAST(y.year_number AS VARCHAR), ',') FROM week_years y
			WHERE y.station_id = d.station_id AND y.iso_year = d.iso_year AND y.week_number = d.week_number)`
	} else {
		years = `, ''`
	}

	query := `SELECT st.id, st.name, ` + strings.Join(keyCols, ", ") + `, ` + prefixed("d.") + years + `
		FROM ` + bt.data + ` d
		JOIN stations st ON st.id = d.station_id
		WHERE st.source = ?
		ORDER BY st.id, ` + strings.Join(keyCols, ", ")

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, source)
	if err != nil {
		return nil, fmt.Errorf("list %s aggregates: %w", kind, err)
	}
	defer rows.Close()

	var records []AggregateRecord
	for rows.Next() {
		rec := AggregateRecord{Key: Key{Kind: kind}}

		var (
			a, b     int
			day      string
			yearList *string
		)
		dest := []interface{}{&rec.StationID, &rec.Station}
		switch kind {
		case types.KindYear:
			dest = append(dest, &a)
		case types.KindMonth, types.KindWeek:
			dest = append(dest, &a, &b)
		case types.KindDay:
			dest = append(dest, &day)
		}
		dest = append(dest, countDest(&rec.Counts)...)
		dest = append(dest, &yearList)

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s aggregate: %w", kind, err)
		}

		switch kind {
		case types.KindYear:
			rec.Key.Year = a
		case types.KindMonth:
			rec.Key.Year, rec.Key.Month = a, time.Month(b)
		case types.KindWeek:
			rec.Key.Week = types.WeekKey{ISOYear: a, Week: b}
			if yearList != nil {
				rec.Years = parseYearList(*yearList)
			}
		case types.KindDay:
			if rec.Key.Date, err = types.ParseDate(day); err != nil {
				return nil, fmt.Errorf("stored day %q: %w", day, err)
			}
		}

		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListHours returns every hour slot of a source ordered by station, day and
// slot.
func (s *Store) ListHours(ctx context.Context, source string) ([]HourRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT st.id, st.name, h.day_date, h.hour_index, `+prefixed("h.")+`
		FROM hour_data h
		JOIN stations st ON st.id = h.station_id
		WHERE st.source = ?
		ORDER BY st.id, h.day_date, h.hour_index`, source)
	if err != nil {
		return nil, fmt.Errorf("list hours: %w", err)
	}
	defer rows.Close()

	var records []HourRecord
	for rows.Next() {
		var (
			rec HourRecord
			day string
		)
		dest := append([]interface{}{&rec.StationID, &rec.Station, &day, &rec.Index}, countDest(&rec.Counts)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan hour: %w", err)
		}
		if rec.Date, err = types.ParseDate(day); err != nil {
			return nil, fmt.Errorf("stored day %q: %w", day, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountBuckets returns the number of bucket rows of a kind for a source.
func (s *Store) CountBuckets(ctx context.Context, source string, kind types.Kind) (int, error) {
	bt, err := tableFor(kind)
	if err != nil {
		return 0, err
	}

	var n int64
	err = s.queryRow(ctx,
		`SELECT COUNT(*) FROM `+bt.table+` b
		JOIN stations st ON st.id = b.station_id
		WHERE st.source = ?`,
		[]interface{}{source}, &n)
	if err != nil {
		return 0, fmt.Errorf("count %s buckets: %w", kind, err)
	}
	return int(n), nil
}

func prefixed(prefix string) string {
	parts := make([]string, 0, types.NumFields)
	for _, f := range types.AllFields() {
		parts = append(parts, prefix+f.String())
	}
	return strings.Join(parts, ", ")
}

func parseYearList(s string) []int {
	var years []int
	for _, p := range strings.Split(s, ",") {
		if y, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
			years = append(years, y)
		}
	}
	sort.Ints(years)
	return years
}
