package types

import (
	"fmt"
	"time"
)

// Kind represents a bucket level in the rollup hierarchy.
type Kind int

const (
	// KindHour is one slot of a day's hour array.
	KindHour Kind = iota

	// KindDay is one calendar day in the source timezone.
	KindDay

	// KindWeek is one ISO week. It may belong to two calendar years.
	KindWeek

	// KindMonth is one calendar month.
	KindMonth

	// KindYear is one calendar year.
	KindYear
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindHour:
		return "hour"
	case KindDay:
		return "day"
	case KindWeek:
		return "week"
	case KindMonth:
		return "month"
	case KindYear:
		return "year"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Next returns the parent kind in the rollup.
// Returns the same kind if it's the highest.
// Weeks are a side branch: days roll into both weeks and months.
func (k Kind) Next() Kind {
	switch k {
	case KindHour:
		return KindDay
	case KindDay:
		return KindMonth
	case KindWeek:
		return KindWeek
	case KindMonth:
		return KindYear
	default:
		return k
	}
}

// IsHighest returns true if nothing rolls up from this kind.
func (k Kind) IsHighest() bool {
	return k == KindYear || k == KindWeek
}

// Start returns the start of the bucket containing ts, in ts's location.
func (k Kind) Start(ts time.Time) time.Time {
	loc := ts.Location()
	switch k {
	case KindHour:
		return time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), 0, 0, 0, loc)
	case KindDay:
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, loc)
	case KindWeek:
		weekday := int(ts.Weekday())
		if weekday == 0 {
			weekday = 7 // Sunday = 7
		}
		monday := ts.AddDate(0, 0, -(weekday - 1))
		return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, loc)
	case KindMonth:
		return time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, loc)
	case KindYear:
		return time.Date(ts.Year(), time.January, 1, 0, 0, 0, 0, loc)
	default:
		return ts
	}
}

// ParseKind parses a string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "hour":
		return KindHour, nil
	case "day":
		return KindDay, nil
	case "week":
		return KindWeek, nil
	case "month":
		return KindMonth, nil
	case "year":
		return KindYear, nil
	default:
		return KindHour, fmt.Errorf("unknown bucket kind: %s", s)
	}
}

// AllKinds returns all kinds in order.
func AllKinds() []Kind {
	return []Kind{KindHour, KindDay, KindWeek, KindMonth, KindYear}
}

// DateKey is a calendar date without a location.
type DateKey struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of ts in its own location.
func DateOf(ts time.Time) DateKey {
	y, m, d := ts.Date()
	return DateKey{Year: y, Month: m, Day: d}
}

// String formats the date as YYYY-MM-DD.
func (d DateKey) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Time returns midnight of the date in UTC. Only use it for calendar arithmetic.
func (d DateKey) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// ISOWeek returns the ISO year and week of the date.
func (d DateKey) ISOWeek() WeekKey {
	y, w := d.Time().ISOWeek()
	return WeekKey{ISOYear: y, Week: w}
}

// Weekday returns the ISO weekday number, Monday = 1 .. Sunday = 7.
func (d DateKey) Weekday() int {
	wd := int(d.Time().Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// AddDays returns the date n days later.
func (d DateKey) AddDays(n int) DateKey {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// Before reports whether d is strictly before other.
func (d DateKey) Before(other DateKey) bool {
	return d.String() < other.String()
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (DateKey, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return DateKey{}, err
	}
	return DateOf(t), nil
}

// WeekKey identifies an ISO week. ISOYear is the year owning the week's Thursday.
type WeekKey struct {
	ISOYear int
	Week    int
}

// String formats the week as YYYY-Www.
func (w WeekKey) String() string {
	return fmt.Sprintf("%04d-W%02d", w.ISOYear, w.Week)
}

// MonthKey identifies a calendar month.
type MonthKey struct {
	Year  int
	Month time.Month
}

// MonthOf returns the month containing a date.
func MonthOf(d DateKey) MonthKey {
	return MonthKey{Year: d.Year, Month: d.Month}
}

// FirstDay returns the first day of the month.
func (m MonthKey) FirstDay() DateKey {
	return DateKey{Year: m.Year, Month: m.Month, Day: 1}
}

// Next returns the following month.
func (m MonthKey) Next() MonthKey {
	if m.Month == time.December {
		return MonthKey{Year: m.Year + 1, Month: time.January}
	}
	return MonthKey{Year: m.Year, Month: m.Month + 1}
}

// String formats the month as YYYY-MM.
func (m MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}
