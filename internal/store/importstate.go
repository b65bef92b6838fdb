// Package store - Import state
//
// One row per source holds the resumable import checkpoint.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ImportState is the persisted checkpoint of a source.
type ImportState struct {
	Source    string
	Year      int
	Month     time.Month
	Day       int // 0 when only the month is tracked
	UpdatedAt time.Time
}

// GetImportState returns the state of a source or ErrNotFound.
func (s *Store) GetImportState(ctx context.Context, source string) (*ImportState, error) {
	st := &ImportState{Source: source}

	var (
		month     int
		day       sql.NullInt64
		updatedAt sql.NullString
	)
	err := s.queryRow(ctx,
		`SELECT current_year_number, current_month_number, current_day_number, updated_at
		FROM import_state WHERE source = ?`,
		[]interface{}{source}, &st.Year, &month, &day, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: import state %s", ErrNotFound, source)
	}
	if err != nil {
		return nil, fmt.Errorf("query import state: %w", err)
	}

	st.Month = time.Month(month)
	if day.Valid {
		st.Day = int(day.Int64)
	}
	if updatedAt.Valid {
		st.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt.String)
	}
	return st, nil
}

// CreateImportState inserts st unless the source already has a state.
// It returns the stored state.
func (s *Store) CreateImportState(ctx context.Context, st *ImportState) (*ImportState, error) {
	_, err := s.exec(ctx,
		`INSERT INTO import_state (source, current_year_number, current_month_number, current_day_number, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		st.Source, st.Year, int(st.Month), nullDay(st.Day), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("create import state: %w", err)
	}
	return s.GetImportState(ctx, st.Source)
}

// SaveImportState stores st, replacing the previous state.
func (s *Store) SaveImportState(ctx context.Context, st *ImportState) error {
	_, err := s.exec(ctx,
		`INSERT INTO import_state (source, current_year_number, current_month_number, current_day_number, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (source) DO UPDATE SET
			current_year_number = excluded.current_year_number,
			current_month_number = excluded.current_month_number,
			current_day_number = excluded.current_day_number,
			updated_at = excluded.updated_at`,
		st.Source, st.Year, int(st.Month), nullDay(st.Day), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save import state: %w", err)
	}
	return nil
}

// DeleteImportState removes the state of a source.
func (s *Store) DeleteImportState(ctx context.Context, source string) error {
	if _, err := s.exec(ctx, `DELETE FROM import_state WHERE source = ?`, source); err != nil {
		return fmt.Errorf("delete import state: %w", err)
	}
	return nil
}

func nullDay(day int) interface{} {
	if day <= 0 {
		return nil
	}
	return day
}
