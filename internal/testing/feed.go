package testing

import (
	"io"
	"strconv"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/xtxerr/tally/internal/storage/types"
)

// Feed builds a synthetic counter feed in the CSV format read by the source
// package. Rows are generated on the UTC time line, so ranges crossing a DST
// transition get the real wall-clock timestamps of the location.
//
//	feed := testing.NewFeed(helsinki, "A").
//	    Constant(jan1, feb1, 1)
//	stream, _ := source.NewCSV(feed.Reader())
type Feed struct {
	loc             *time.Location
	interval        time.Duration
	timestampColumn string
	layout          string
	stations        []string
	fields          []types.Field
	rows            [][]string
}

// NewFeed returns an empty feed with a car total column per station and a
// 15-minute cadence.
func NewFeed(loc *time.Location, stations ...string) *Feed {
	return &Feed{
		loc:             loc,
		interval:        15 * time.Minute,
		timestampColumn: "startTime",
		layout:          time.RFC3339,
		stations:        stations,
		fields:          []types.Field{types.FieldOf(types.ModeCar, types.DirectionTotal)},
	}
}

// WithFields sets the columns generated for every station.
func (f *Feed) WithFields(fields ...types.Field) *Feed {
	f.fields = fields
	return f
}

// WithInterval sets the cadence.
func (f *Feed) WithInterval(d time.Duration) *Feed {
	f.interval = d
	return f
}

// WithLayout sets the time layout of the timestamp column. Layouts
// without an offset render local wall-clock time, so a repeated DST hour
// appears twice with identical timestamps.
func (f *Feed) WithLayout(layout string) *Feed {
	f.layout = layout
	return f
}

// Header returns the header row.
func (f *Feed) Header() []string {
	header := []string{f.timestampColumn}
	for _, st := range f.stations {
		for _, field := range f.fields {
			header = append(header, st+" "+field.Code())
		}
	}
	return header
}

// Constant appends rows for [from, to) with every cell set to value.
func (f *Feed) Constant(from, to time.Time, value int64) *Feed {
	v := strconv.FormatInt(value, 10)
	return f.Each(from, to, func(time.Time, string, types.Field) string { return v })
}

// Each appends rows for [from, to); cell returns the text of each value cell.
func (f *Feed) Each(from, to time.Time, cell func(ts time.Time, station string, field types.Field) string) *Feed {
	for ts := from.UTC(); ts.Before(to.UTC()); ts = ts.Add(f.interval) {
		local := ts.In(f.loc)
		row := []string{local.Format(f.layout)}
		for _, st := range f.stations {
			for _, field := range f.fields {
				row = append(row, cell(local, st, field))
			}
		}
		f.rows = append(f.rows, row)
	}
	return f
}

// Raw appends a row as given.
func (f *Feed) Raw(cells ...string) *Feed {
	f.rows = append(f.rows, cells)
	return f
}

// Rows returns the number of data rows.
func (f *Feed) Rows() int {
	return len(f.rows)
}

// CSV renders the feed.
func (f *Feed) CSV() string {
	var b strings.Builder
	b.WriteString(strings.Join(f.Header(), ","))
	b.WriteByte('\n')
	for _, row := range f.rows {
		b.WriteString(strings.Join(row, ","))
		b.WriteByte('\n')
	}
	return b.String()
}

// Reader returns the rendered feed.
func (f *Feed) Reader() io.Reader {
	return strings.NewReader(f.CSV())
}

// Helsinki loads Europe/Helsinki.
func Helsinki(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Helsinki")
	if err != nil {
		t.Skipf("tzdata not available: %v", err)
	}
	return loc
}
