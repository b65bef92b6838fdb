// Package store - Station registry
//
// Stations are created once per (source, name) and read-only afterwards.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/xtxerr/tally/internal/errors"
	"github.com/xtxerr/tally/internal/validation"
)

// Station is a counter station of one source.
type Station struct {
	ID         int64
	Source     string
	Name       string
	ExternalID string
}

// EnsureStation returns the station (source, name), registering it if absent.
// An empty externalID never overwrites a stored one.
func (s *Store) EnsureStation(ctx context.Context, source, name, externalID string) (*Station, error) {
	name = strings.TrimSpace(name)
	if err := validation.ValidateSourceTag(source); err != nil {
		return nil, errors.NewValidation("source", err.Error())
	}
	if err := validation.ValidateStationName(name); err != nil {
		return nil, errors.NewValidation("station", err.Error())
	}

	// IDs are allocated as MAX(id)+1; concurrent registrations in this
	// process would race for the same id.
	s.regMu.Lock()
	defer s.regMu.Unlock()

	st := &Station{Source: source, Name: name}
	err := s.TransactionContext(ctx, func(tx *sql.Tx) error {
		var ext sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT id, external_id FROM stations WHERE source = ? AND name = ?`,
			source, name).Scan(&st.ID, &ext)

		switch {
		case err == sql.ErrNoRows:
			if err := tx.QueryRowContext(ctx,
				`SELECT COALESCE(MAX(id), 0) + 1 FROM stations`).Scan(&st.ID); err != nil {
				return fmt.Errorf("allocate station id: %w", err)
			}
			st.ExternalID = externalID
			_, err := tx.ExecContext(ctx,
				`INSERT INTO stations (id, source, name, external_id) VALUES (?, ?, ?, ?)`,
				st.ID, source, name, nullString(externalID))
			if err != nil {
				return fmt.Errorf("insert station: %w", err)
			}
			log.Info("station registered", "source", source, "station", name, "id", st.ID)
			return nil

		case err != nil:
			return fmt.Errorf("query station: %w", err)
		}

		st.ExternalID = ext.String
		if externalID != "" && externalID != ext.String {
			if _, err := tx.ExecContext(ctx,
				`UPDATE stations SET external_id = ? WHERE id = ?`, externalID, st.ID); err != nil {
				return fmt.Errorf("update station: %w", err)
			}
			st.ExternalID = externalID
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "ensure station %s/%s: %v", source, name, err)
	}
	return st, nil
}

// StationByName returns the station (source, name).
func (s *Store) StationByName(ctx context.Context, source, name string) (*Station, error) {
	st := &Station{Source: source, Name: name}
	var ext sql.NullString
	err := s.queryRow(ctx,
		`SELECT id, external_id FROM stations WHERE source = ? AND name = ?`,
		[]interface{}{source, name}, &st.ID, &ext)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s/%s", ErrStationNotFound, source, name)
	}
	if err != nil {
		return nil, fmt.Errorf("query station: %w", err)
	}
	st.ExternalID = ext.String
	return st, nil
}

// StationsBySource lists the stations of a source ordered by id.
func (s *Store) StationsBySource(ctx context.Context, source string) ([]*Station, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, external_id FROM stations WHERE source = ? ORDER BY id`, source)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	defer rows.Close()

	var stations []*Station
	for rows.Next() {
		st := &Station{Source: source}
		var ext sql.NullString
		if err := rows.Scan(&st.ID, &st.Name, &ext); err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		st.ExternalID = ext.String
		stations = append(stations, st)
	}
	return stations, rows.Err()
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
