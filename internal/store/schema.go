package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/xtxerr/tally/internal/storage/types"
)

// counterColumns is the comma separated list of the twelve counter columns.
var counterColumns = func() string {
	names := make([]string, 0, types.NumFields)
	for _, f := range types.AllFields() {
		names = append(names, f.String())
	}
	return strings.Join(names, ", ")
}()

// counterColumnDefs declares the counter columns of an aggregate table.
func counterColumnDefs() string {
	var b strings.Builder
	for _, f := range types.AllFields() {
		b.WriteString(f.String())
		b.WriteString(" BIGINT NOT NULL DEFAULT 0,\n")
	}
	return b.String()
}

// migrate creates every table the importer needs.
//
// This is idempotent - safe to run on every start. The statements stay within
// the SQL subset DuckDB and SQLite share.
//
// Buckets are keyed by their natural keys and scoped per station. Aggregates
// live in separate *_data tables so a bucket can exist before its totals are
// known. Foreign keys are not declared; cascades are done by the store.
func migrate(ctx context.Context, db *sql.DB) error {
	counters := counterColumnDefs()

	migrations := []struct {
		name string
		sql  string
	}{
		{
			name: "stations",
			sql: `CREATE TABLE IF NOT EXISTS stations (
				id INTEGER PRIMARY KEY,
				source VARCHAR NOT NULL,
				name VARCHAR NOT NULL,
				external_id VARCHAR,
				UNIQUE (source, name)
			)`,
		},
		{
			name: "years",
			sql: `CREATE TABLE IF NOT EXISTS years (
				station_id INTEGER NOT NULL,
				year_number INTEGER NOT NULL,
				PRIMARY KEY (station_id, year_number)
			)`,
		},
		{
			name: "months",
			sql: `CREATE TABLE IF NOT EXISTS months (
				station_id INTEGER NOT NULL,
				year_number INTEGER NOT NULL,
				month_number INTEGER NOT NULL,
				PRIMARY KEY (station_id, year_number, month_number)
			)`,
		},
		{
			name: "weeks",
			sql: `CREATE TABLE IF NOT EXISTS weeks (
				station_id INTEGER NOT NULL,
				iso_year INTEGER NOT NULL,
				week_number INTEGER NOT NULL,
				PRIMARY KEY (station_id, iso_year, week_number)
			)`,
		},
		{
			name: "week_years",
			sql: `CREATE TABLE IF NOT EXISTS week_years (
				station_id INTEGER NOT NULL,
				iso_year INTEGER NOT NULL,
				week_number INTEGER NOT NULL,
				year_number INTEGER NOT NULL,
				PRIMARY KEY (station_id, iso_year, week_number, year_number)
			)`,
		},
		{
			name: "days",
			sql: `CREATE TABLE IF NOT EXISTS days (
				station_id INTEGER NOT NULL,
				day_date VARCHAR NOT NULL,
				weekday_number INTEGER NOT NULL,
				iso_year INTEGER NOT NULL,
				week_number INTEGER NOT NULL,
				year_number INTEGER NOT NULL,
				month_number INTEGER NOT NULL,
				PRIMARY KEY (station_id, day_date)
			)`,
		},
		{
			name: "hour_data",
			sql: `CREATE TABLE IF NOT EXISTS hour_data (
				station_id INTEGER NOT NULL,
				day_date VARCHAR NOT NULL,
				hour_index INTEGER NOT NULL,
				` + counters + `
				PRIMARY KEY (station_id, day_date, hour_index)
			)`,
		},
		{
			name: "day_data",
			sql: `CREATE TABLE IF NOT EXISTS day_data (
				station_id INTEGER NOT NULL,
				day_date VARCHAR NOT NULL,
				` + counters + `
				PRIMARY KEY (station_id, day_date)
			)`,
		},
		{
			name: "week_data",
			sql: `CREATE TABLE IF NOT EXISTS week_data (
				station_id INTEGER NOT NULL,
				iso_year INTEGER NOT NULL,
				week_number INTEGER NOT NULL,
				` + counters + `
				PRIMARY KEY (station_id, iso_year, week_number)
			)`,
		},
		{
			name: "month_data",
			sql: `CREATE TABLE IF NOT EXISTS month_data (
				station_id INTEGER NOT NULL,
				year_number INTEGER NOT NULL,
				month_number INTEGER NOT NULL,
				` + counters + `
				PRIMARY KEY (station_id, year_number, month_number)
			)`,
		},
		{
			name: "year_data",
			sql: `CREATE TABLE IF NOT EXISTS year_data (
				station_id INTEGER NOT NULL,
				year_number INTEGER NOT NULL,
				` + counters + `
				PRIMARY KEY (station_id, year_number)
			)`,
		},
		{
			name: "import_state",
			sql: `CREATE TABLE IF NOT EXISTS import_state (
				source VARCHAR PRIMARY KEY,
				current_year_number INTEGER NOT NULL,
				current_month_number INTEGER NOT NULL,
				current_day_number INTEGER,
				updated_at VARCHAR
			)`,
		},
	}

	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
		log.Debug("migration applied", "name", m.name)
	}

	return nil
}
