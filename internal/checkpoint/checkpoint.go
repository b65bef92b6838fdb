// Package checkpoint persists how far each source has been imported.
//
// The checkpoint names the month (and optionally the day) a run resumes
// from. It is advanced only after a clean pass over the whole feed, so a
// failed or cancelled run leaves it untouched and the next run rebuilds the
// same period.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	tallyerrors "github.com/xtxerr/tally/internal/errors"
	"github.com/xtxerr/tally/internal/logging"
	"github.com/xtxerr/tally/internal/storage/types"
	"github.com/xtxerr/tally/internal/store"
)

var log = logging.Component("checkpoint")

// Checkpoint is the resume position of a source.
type Checkpoint struct {
	Year  int
	Month time.Month
	Day   int // 0 when the checkpoint is month-granular
}

// MonthKey returns the checkpointed month.
func (c Checkpoint) MonthKey() types.MonthKey {
	return types.MonthKey{Year: c.Year, Month: c.Month}
}

// StartDate returns the first day a resumed run rebuilds.
func (c Checkpoint) StartDate() types.DateKey {
	if c.Day > 0 {
		return types.DateKey{Year: c.Year, Month: c.Month, Day: c.Day}
	}
	return c.MonthKey().FirstDay()
}

// String formats the checkpoint as YYYY-MM or YYYY-MM-DD.
func (c Checkpoint) String() string {
	if c.Day > 0 {
		return c.StartDate().String()
	}
	return c.MonthKey().String()
}

// Validate checks the checkpoint is a real calendar position.
func (c Checkpoint) Validate() error {
	if c.Year < 1 || c.Month < time.January || c.Month > time.December {
		return tallyerrors.NewValidation("checkpoint", fmt.Sprintf("%04d-%02d is not a month", c.Year, int(c.Month)))
	}
	if c.Day != 0 {
		d := c.StartDate()
		if d.AddDays(0) != d {
			return tallyerrors.NewValidation("checkpoint", fmt.Sprintf("%s is not a date", d))
		}
	}
	return nil
}

// StateStore is the persistence used by Manager.
type StateStore interface {
	GetImportState(ctx context.Context, source string) (*store.ImportState, error)
	CreateImportState(ctx context.Context, st *store.ImportState) (*store.ImportState, error)
	SaveImportState(ctx context.Context, st *store.ImportState) error
	DeleteImportState(ctx context.Context, source string) error
}

// Manager loads and advances checkpoints.
type Manager struct {
	states StateStore
}

// NewManager creates a Manager over states.
func NewManager(states StateStore) *Manager {
	return &Manager{states: states}
}

// Load returns the checkpoint of source, creating it at start if the source
// has none yet.
func (m *Manager) Load(ctx context.Context, source string, start types.MonthKey) (Checkpoint, error) {
	st, err := m.states.GetImportState(ctx, source)
	if errors.Is(err, tallyerrors.ErrNotFound) {
		st, err = m.states.CreateImportState(ctx, &store.ImportState{
			Source: source,
			Year:   start.Year,
			Month:  start.Month,
		})
		if err == nil {
			log.Info("checkpoint created", "source", source, "month", start.String())
		}
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("load checkpoint %s: %w", source, err)
	}

	cp := Checkpoint{Year: st.Year, Month: st.Month, Day: st.Day}
	if err := cp.Validate(); err != nil {
		return Checkpoint{}, fmt.Errorf("stored checkpoint of %s: %w", source, err)
	}
	return cp, nil
}

// Advance stores cp as the new checkpoint of source.
func (m *Manager) Advance(ctx context.Context, source string, cp Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return err
	}
	err := m.states.SaveImportState(ctx, &store.ImportState{
		Source: source,
		Year:   cp.Year,
		Month:  cp.Month,
		Day:    cp.Day,
	})
	if err != nil {
		return fmt.Errorf("advance checkpoint %s: %w", source, err)
	}
	log.Info("checkpoint advanced", "source", source, "checkpoint", cp.String())
	return nil
}

// Reset forgets the checkpoint of source. The next Load starts over.
func (m *Manager) Reset(ctx context.Context, source string) error {
	if err := m.states.DeleteImportState(ctx, source); err != nil {
		return fmt.Errorf("reset checkpoint %s: %w", source, err)
	}
	log.Info("checkpoint reset", "source", source)
	return nil
}
