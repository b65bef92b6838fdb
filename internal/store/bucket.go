// Package store - Time buckets and their aggregates
//
// Every bucket is scoped to a station and identified by its natural key.
// Bucket rows (years, months, weeks, days) only record existence; the
// counters live in the matching *_data table.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/xtxerr/tally/internal/errors"
	"github.com/xtxerr/tally/internal/storage/types"
)

// =============================================================================
// Bucket Keys
// =============================================================================

// Key identifies a bucket of a station.
//
// Only the fields relevant to Kind are set: Year for years, Year and Month
// for months, Week for weeks and Date for days.
type Key struct {
	Kind  types.Kind
	Year  int
	Month time.Month
	Week  types.WeekKey
	Date  types.DateKey
}

// YearBucket returns the key of a year.
func YearBucket(year int) Key {
	return Key{Kind: types.KindYear, Year: year}
}

// MonthBucket returns the key of a month.
func MonthBucket(m types.MonthKey) Key {
	return Key{Kind: types.KindMonth, Year: m.Year, Month: m.Month}
}

// WeekBucket returns the key of an ISO week.
func WeekBucket(w types.WeekKey) Key {
	return Key{Kind: types.KindWeek, Week: w}
}

// DayBucket returns the key of a day.
func DayBucket(d types.DateKey) Key {
	return Key{Kind: types.KindDay, Date: d}
}

// String returns a readable form such as "week 2020-W53".
func (k Key) String() string {
	switch k.Kind {
	case types.KindYear:
		return fmt.Sprintf("year %04d", k.Year)
	case types.KindMonth:
		return "month " + types.MonthKey{Year: k.Year, Month: k.Month}.String()
	case types.KindWeek:
		return "week " + k.Week.String()
	case types.KindDay:
		return "day " + k.Date.String()
	default:
		return k.Kind.String()
	}
}

// bucketTable describes how a kind is stored.
type bucketTable struct {
	table string   // bucket rows
	data  string   // aggregate rows
	keys  []string // natural key columns after station_id
}

var bucketTables = map[types.Kind]bucketTable{
	types.KindYear:  {table: "years", data: "year_data", keys: []string{"year_number"}},
	types.KindMonth: {table: "months", data: "month_data", keys: []string{"year_number", "month_number"}},
	types.KindWeek:  {table: "weeks", data: "week_data", keys: []string{"iso_year", "week_number"}},
	types.KindDay:   {table: "days", data: "day_data", keys: []string{"day_date"}},
}

func tableFor(kind types.Kind) (bucketTable, error) {
	bt, ok := bucketTables[kind]
	if !ok {
		return bucketTable{}, errors.NewValidation("kind", fmt.Sprintf("%s has no bucket table", kind))
	}
	return bt, nil
}

// keyArgs returns the natural key values of k in bucketTable.keys order.
func keyArgs(k Key) []interface{} {
	switch k.Kind {
	case types.KindYear:
		return []interface{}{k.Year}
	case types.KindMonth:
		return []interface{}{k.Year, int(k.Month)}
	case types.KindWeek:
		return []interface{}{k.Week.ISOYear, k.Week.Week}
	case types.KindDay:
		return []interface{}{k.Date.String()}
	default:
		return nil
	}
}

// keyWhere returns "station_id = ? AND <key> = ? ..." for a table alias.
func keyWhere(alias string, bt bucketTable) string {
	var b strings.Builder
	b.WriteString(alias + "station_id = ?")
	for _, k := range bt.keys {
		b.WriteString(" AND " + alias + k + " = ?")
	}
	return b.String()
}

// =============================================================================
// Bucket Operations
// =============================================================================

// GetOrCreate makes sure the bucket exists. Days record their weekday and
// the week, month and year they belong to.
func (s *Store) GetOrCreate(ctx context.Context, stationID int64, k Key) error {
	var (
		query string
		args  []interface{}
	)

	switch k.Kind {
	case types.KindYear:
		query = `INSERT INTO years (station_id, year_number) VALUES (?, ?)
			ON CONFLICT DO NOTHING`
		args = []interface{}{stationID, k.Year}

	case types.KindMonth:
		query = `INSERT INTO months (station_id, year_number, month_number) VALUES (?, ?, ?)
			ON CONFLICT DO NOTHING`
		args = []interface{}{stationID, k.Year, int(k.Month)}

	case types.KindWeek:
		query = `INSERT INTO weeks (station_id, iso_year, week_number) VALUES (?, ?, ?)
			ON CONFLICT DO NOTHING`
		args = []interface{}{stationID, k.Week.ISOYear, k.Week.Week}

	case types.KindDay:
		wk := k.Date.ISOWeek()
		query = `INSERT INTO days (station_id, day_date, weekday_number, iso_year, week_number,
				year_number, month_number) VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING`
		args = []interface{}{stationID, k.Date.String(), k.Date.Weekday(), wk.ISOYear, wk.Week,
			k.Date.Year, int(k.Date.Month)}

	default:
		return errors.NewValidation("kind", fmt.Sprintf("cannot create %s bucket", k.Kind))
	}

	if _, err := s.exec(ctx, query, args...); err != nil {
		return fmt.Errorf("create %s: %w", k, err)
	}
	return nil
}

// Exists reports whether the bucket row exists.
func (s *Store) Exists(ctx context.Context, stationID int64, k Key) (bool, error) {
	bt, err := tableFor(k.Kind)
	if err != nil {
		return false, err
	}

	var n int64
	query := `SELECT COUNT(*) FROM ` + bt.table + ` WHERE ` + keyWhere("", bt)
	args := append([]interface{}{stationID}, keyArgs(k)...)
	if err := s.queryRow(ctx, query, args, &n); err != nil {
		return false, fmt.Errorf("query %s: %w", k, err)
	}
	return n > 0, nil
}

// AttachWeekYear adds year to the year-set of a week.
func (s *Store) AttachWeekYear(ctx context.Context, stationID int64, w types.WeekKey, year int) error {
	_, err := s.exec(ctx,
		`INSERT INTO week_years (station_id, iso_year, week_number, year_number) VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		stationID, w.ISOYear, w.Week, year)
	if err != nil {
		return fmt.Errorf("attach year %d to week %s: %w", year, w, err)
	}
	return nil
}

// WeekYears returns the year-set of a week in ascending order.
func (s *Store) WeekYears(ctx context.Context, stationID int64, w types.WeekKey) ([]int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT year_number FROM week_years
		WHERE station_id = ? AND iso_year = ? AND week_number = ?
		ORDER BY year_number`,
		stationID, w.ISOYear, w.Week)
	if err != nil {
		return nil, fmt.Errorf("query week years: %w", err)
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, err
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

// =============================================================================
// Aggregates
// =============================================================================

// UpsertAggregate stores the counters of a bucket, replacing earlier values.
func (s *Store) UpsertAggregate(ctx context.Context, stationID int64, k Key, c types.Counts) error {
	bt, err := tableFor(k.Kind)
	if err != nil {
		return err
	}

	var query strings.Builder
	query.WriteString("INSERT INTO " + bt.data + " (station_id, " + strings.Join(bt.keys, ", ") + ", " + counterColumns + ") VALUES (?")
	for range bt.keys {
		query.WriteString(", ?")
	}
	for range c {
		query.WriteString(", ?")
	}
	query.WriteString(") ON CONFLICT (station_id, " + strings.Join(bt.keys, ", ") + ") DO UPDATE SET ")
	for i, f := range types.AllFields() {
		if i > 0 {
			query.WriteString(", ")
		}
		query.WriteString(f.String() + " = excluded." + f.String())
	}

	args := make([]interface{}, 0, 1+len(bt.keys)+types.NumFields)
	args = append(args, stationID)
	args = append(args, keyArgs(k)...)
	args = appendCounts(args, c)

	if _, err := s.exec(ctx, query.String(), args...); err != nil {
		return fmt.Errorf("upsert %s data: %w", k, err)
	}
	return nil
}

// Aggregate returns the stored counters of a bucket.
func (s *Store) Aggregate(ctx context.Context, stationID int64, k Key) (types.Counts, error) {
	var c types.Counts

	bt, err := tableFor(k.Kind)
	if err != nil {
		return c, err
	}

	query := `SELECT ` + counterColumns + ` FROM ` + bt.data + ` WHERE ` + keyWhere("", bt)
	args := append([]interface{}{stationID}, keyArgs(k)...)

	err = s.queryRow(ctx, query, args, countDest(&c)...)
	if err == sql.ErrNoRows {
		return c, fmt.Errorf("%w: station %d %s", ErrBucketNotFound, stationID, k)
	}
	if err != nil {
		return c, fmt.Errorf("query %s data: %w", k, err)
	}
	return c, nil
}

// SumChildren adds up the stored children of a bucket:
// a day from its hour slots, a week or a month from its days' data and a
// year from its months' data.
func (s *Store) SumChildren(ctx context.Context, stationID int64, k Key) (types.Counts, error) {
	var (
		c     types.Counts
		query string
		args  []interface{}
	)

	switch k.Kind {
	case types.KindDay:
		query = `SELECT ` + sumColumns("") + ` FROM hour_data WHERE station_id = ? AND day_date = ?`
		args = []interface{}{stationID, k.Date.String()}

	case types.KindWeek:
		query = `SELECT ` + sumColumns("d.") + ` FROM day_data d
			JOIN days b ON b.station_id = d.station_id AND b.day_date = d.day_date
			WHERE d.station_id = ? AND b.iso_year = ? AND b.week_number = ?`
		args = []interface{}{stationID, k.Week.ISOYear, k.Week.Week}

	case types.KindMonth:
		query = `SELECT ` + sumColumns("d.") + ` FROM day_data d
			JOIN days b ON b.station_id = d.station_id AND b.day_date = d.day_date
			WHERE d.station_id = ? AND b.year_number = ? AND b.month_number = ?`
		args = []interface{}{stationID, k.Year, int(k.Month)}

	case types.KindYear:
		query = `SELECT ` + sumColumns("") + ` FROM month_data WHERE station_id = ? AND year_number = ?`
		args = []interface{}{stationID, k.Year}

	default:
		return c, errors.NewValidation("kind", fmt.Sprintf("%s has no children", k.Kind))
	}

	if err := s.queryRow(ctx, query, args, countDest(&c)...); err != nil {
		return c, fmt.Errorf("sum %s: %w", k, err)
	}
	return c, nil
}

// =============================================================================
// Deletion
// =============================================================================

// DeleteRange removes the buckets of one kind with from <= key <= to.
//
// Deleting days also removes their data and hour slots. Deleting weeks also
// removes their year-sets. Months and years only lose their own data row.
func (s *Store) DeleteRange(ctx context.Context, stationID int64, kind types.Kind, from, to Key) (int64, error) {
	bt, err := tableFor(kind)
	if err != nil {
		return 0, err
	}

	var (
		cond string
		args []interface{}
	)
	switch kind {
	case types.KindYear:
		cond = "year_number BETWEEN ? AND ?"
		args = []interface{}{from.Year, to.Year}
	case types.KindMonth:
		cond = "year_number * 100 + month_number BETWEEN ? AND ?"
		args = []interface{}{from.Year*100 + int(from.Month), to.Year*100 + int(to.Month)}
	case types.KindWeek:
		cond = "iso_year * 100 + week_number BETWEEN ? AND ?"
		args = []interface{}{from.Week.ISOYear*100 + from.Week.Week, to.Week.ISOYear*100 + to.Week.Week}
	case types.KindDay:
		cond = "day_date BETWEEN ? AND ?"
		args = []interface{}{from.Date.String(), to.Date.String()}
	}
	args = append([]interface{}{stationID}, args...)

	tables := []string{bt.data}
	switch kind {
	case types.KindDay:
		tables = append(tables, "hour_data")
	case types.KindWeek:
		tables = append(tables, "week_years")
	}
	tables = append(tables, bt.table)

	var deleted int64
	err = s.TransactionContext(ctx, func(tx *sql.Tx) error {
		for _, table := range tables {
			res, err := tx.ExecContext(ctx,
				`DELETE FROM `+table+` WHERE station_id = ? AND `+cond, args...)
			if err != nil {
				return fmt.Errorf("delete from %s: %w", table, err)
			}
			if table == bt.table {
				deleted, _ = res.RowsAffected()
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Debug("buckets deleted",
		"station_id", stationID, "kind", kind.String(),
		"from", from.String(), "to", to.String(), "count", deleted)
	return deleted, nil
}

// WipeSource removes every bucket, hour slot and station of a source.
func (s *Store) WipeSource(ctx context.Context, source string) error {
	tables := []string{
		"hour_data", "day_data", "days",
		"week_data", "week_years", "weeks",
		"month_data", "months",
		"year_data", "years",
	}

	return s.TransactionContext(ctx, func(tx *sql.Tx) error {
		for _, table := range tables {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM `+table+` WHERE station_id IN (SELECT id FROM stations WHERE source = ?)`,
				source); err != nil {
				return fmt.Errorf("wipe %s: %w", table, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM stations WHERE source = ?`, source); err != nil {
			return fmt.Errorf("wipe stations: %w", err)
		}
		log.Info("source wiped", "source", source)
		return nil
	})
}

// =============================================================================
// Helpers
// =============================================================================

// sumColumns returns "COALESCE(CAST(SUM(p.col) AS BIGINT), 0), ..." for all
// counters. DuckDB sums BIGINT into HUGEINT, which does not scan into int64.
func sumColumns(prefix string) string {
	parts := make([]string, 0, types.NumFields)
	for _, f := range types.AllFields() {
		parts = append(parts, "COALESCE(CAST(SUM("+prefix+f.String()+") AS BIGINT), 0)")
	}
	return strings.Join(parts, ", ")
}

func countDest(c *types.Counts) []interface{} {
	dest := make([]interface{}, types.NumFields)
	for i := range c {
		dest[i] = &c[i]
	}
	return dest
}

func appendCounts(args []interface{}, c types.Counts) []interface{} {
	for _, v := range c {
		args = append(args, v)
	}
	return args
}
