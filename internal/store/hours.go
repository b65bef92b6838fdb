// Package store - Hour slots
//
// A day's hour data is an ordered list of slots, one per completed hour.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/xtxerr/tally/internal/storage/types"
)

// SaveHours replaces the hour slots of a day. Slots beyond len(hours) are
// removed.
func (s *Store) SaveHours(ctx context.Context, stationID int64, date types.DateKey, hours []types.Counts) error {
	return s.TransactionContext(ctx, func(tx *sql.Tx) error {
		if len(hours) > 0 {
			query, args := buildHourUpsert(stationID, date, hours)
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("upsert hours of %s: %w", date, err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM hour_data WHERE station_id = ? AND day_date = ? AND hour_index >= ?`,
			stationID, date.String(), len(hours)); err != nil {
			return fmt.Errorf("trim hours of %s: %w", date, err)
		}
		return nil
	})
}

// buildHourUpsert builds one multi-row INSERT for all slots of a day.
func buildHourUpsert(stationID int64, date types.DateKey, hours []types.Counts) (string, []interface{}) {
	const columnsPerRow = 3 + types.NumFields

	args := make([]interface{}, 0, len(hours)*columnsPerRow)

	placeholders := "(?" + strings.Repeat(",?", columnsPerRow-1) + ")"

	var query strings.Builder
	query.Grow(300 + len(hours)*len(placeholders))

	query.WriteString("INSERT INTO hour_data (station_id, day_date, hour_index, ")
	query.WriteString(counterColumns)
	query.WriteString(") VALUES ")

	day := date.String()
	for i, c := range hours {
		if i > 0 {
			query.WriteByte(',')
		}
		query.WriteString(placeholders)

		args = append(args, stationID, day, i)
		args = appendCounts(args, c)
	}

	query.WriteString(" ON CONFLICT (station_id, day_date, hour_index) DO UPDATE SET ")
	for i, f := range types.AllFields() {
		if i > 0 {
			query.WriteString(", ")
		}
		query.WriteString(f.String() + " = excluded." + f.String())
	}

	return query.String(), args
}

// Hours returns the hour slots of a day in order.
func (s *Store) Hours(ctx context.Context, stationID int64, date types.DateKey) ([]types.Counts, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+counterColumns+` FROM hour_data
		WHERE station_id = ? AND day_date = ?
		ORDER BY hour_index`,
		stationID, date.String())
	if err != nil {
		return nil, fmt.Errorf("query hours of %s: %w", date, err)
	}
	defer rows.Close()

	var hours []types.Counts
	for rows.Next() {
		var c types.Counts
		if err := rows.Scan(countDest(&c)...); err != nil {
			return nil, fmt.Errorf("scan hour: %w", err)
		}
		hours = append(hours, c)
	}
	return hours, rows.Err()
}
