package ingest

import (
	"fmt"
	"time"

	"github.com/xtxerr/tally/config"
	"github.com/xtxerr/tally/internal/errors"
	"github.com/xtxerr/tally/internal/storage/types"
)

// Source is the run configuration of one counter network.
type Source struct {
	// Tag identifies the network, e.g. "EC".
	Tag string

	// Location is the zone days, weeks, months and years are cut in.
	Location *time.Location

	// Interval is the feed cadence.
	Interval time.Duration

	TimestampColumn string
	TimestampLayout string

	// MaxValue is the largest plausible sample.
	MaxValue int64

	// Start is the first month of the network's data.
	Start types.MonthKey

	// WeekWindow is the number of ISO weeks rebuilt from the resume date.
	WeekWindow int

	// RegisterUnknown registers feed stations missing from the registry.
	RegisterUnknown bool

	// DailyCheckpoint stores the day in the checkpoint, not just the month.
	DailyCheckpoint bool

	// Stations are registered before every run.
	Stations []Station
}

// Station is a declared station of a source.
type Station struct {
	Name       string
	ExternalID string
}

// withDefaults returns a copy with unset fields defaulted.
func (s Source) withDefaults() Source {
	if s.Interval == 0 {
		s.Interval = config.DefaultInterval
	}
	if s.TimestampColumn == "" {
		s.TimestampColumn = config.DefaultTimestampColumn
	}
	if s.TimestampLayout == "" {
		s.TimestampLayout = config.DefaultTimestampLayout
	}
	if s.MaxValue == 0 {
		s.MaxValue = config.DefaultMaxValue
	}
	if s.WeekWindow == 0 {
		s.WeekWindow = config.DefaultWeekWindow
	}
	return s
}

// Validate reports configuration a run cannot start with.
func (s Source) Validate() error {
	switch {
	case s.Tag == "":
		return errors.NewStructural("source tag is empty")
	case s.Location == nil:
		return errors.NewStructural("source %s: no timezone", s.Tag)
	case s.Interval <= 0 || time.Hour%s.Interval != 0:
		return errors.NewStructural("source %s: interval %s does not divide an hour", s.Tag, s.Interval)
	case s.MaxValue < 0:
		return errors.NewStructural("source %s: negative max value", s.Tag)
	case s.WeekWindow < 1:
		return errors.NewStructural("source %s: week window must be positive", s.Tag)
	case s.Start.Year < 1 || s.Start.Month < time.January || s.Start.Month > time.December:
		return errors.NewStructural("source %s: start %s is not a month", s.Tag, s.Start)
	}
	return nil
}

func (s Source) String() string {
	return fmt.Sprintf("%s (%s, every %s)", s.Tag, s.Location, s.Interval)
}
