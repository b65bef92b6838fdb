package ingest

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xtxerr/tally/internal/errors"
	"github.com/xtxerr/tally/internal/source"
	"github.com/xtxerr/tally/internal/storage/types"
	"github.com/xtxerr/tally/internal/store"
)

// maxLoggedErrors is the number of row errors of one kind logged per run.
// Later ones are only counted.
const maxLoggedErrors = 20

// cursor is the state of one station during a run.
type cursor struct {
	name       string
	externalID string
	id         int64

	// derive marks modes whose total is computed from inbound + outbound
	derive [types.NumModes]bool

	row   types.Counts   // values of the current row
	hour  types.Counts   // open hour
	hours []types.Counts // completed hour slots of the open day
}

// run is the state of one pass over a feed.
type run struct {
	src    Source
	opts   Options
	layout *source.Layout
	rep    *Report
	store  BucketStore

	// cursors is indexed by station position; colCursor maps each layout
	// column to its cursor, -1 for skipped stations.
	cursors   []*cursor
	colCursor []int

	// first row, read while preparing
	pending   *source.Row
	pendingTS time.Time

	// from is the first date ingested
	from types.DateKey

	prev     time.Time // last parsed timestamp
	havePrev bool

	// wallClock is set when the timestamp layout carries no UTC offset
	wallClock bool

	started   bool
	last      time.Time // last accepted row
	openHour  time.Time // UTC start of the open hour
	offset    int       // UTC offset of the last accepted row
	mergeNext bool      // fold the next hour into the previous slot

	day   types.DateKey
	week  types.WeekKey
	month types.MonthKey
	year  int
}

func newRun(src Source, opts Options, layout *source.Layout, rep *Report, st BucketStore) *run {
	return &run{
		src:       src,
		opts:      opts,
		layout:    layout,
		rep:       rep,
		store:     st,
		wallClock: !layoutHasZone(src.TimestampLayout),
	}
}

// layoutHasZone reports whether a time layout contains an offset or zone
// name element.
func layoutHasZone(layout string) bool {
	return strings.Contains(layout, "MST") ||
		strings.Contains(layout, "Z07") ||
		strings.Contains(layout, "-07")
}

// =============================================================================
// Setup
// =============================================================================

// plan decides which feed stations are ingested. Stations neither
// registered nor declared are skipped unless the source registers unknown
// stations.
func (r *run) plan(ctx context.Context, st BucketStore) error {
	known := make(map[string]bool)
	if !r.opts.Initial {
		existing, err := st.StationsBySource(ctx, r.src.Tag)
		if err != nil {
			return err
		}
		for _, s := range existing {
			known[s.Name] = true
		}
	}

	declared := make(map[string]string)
	for _, s := range r.src.Stations {
		known[s.Name] = true
		declared[s.Name] = s.ExternalID
	}

	index := make(map[string]int)
	for _, name := range r.layout.Stations {
		if !known[name] && !r.src.RegisterUnknown {
			r.rep.UnknownStations = append(r.rep.UnknownStations, name)
			r.recordError(&errors.RowError{
				Kind:    errors.ErrUnknownStation,
				Station: name,
				Detail:  "columns skipped",
			})
			continue
		}
		index[name] = len(r.cursors)
		r.cursors = append(r.cursors, &cursor{name: name, externalID: declared[name]})
	}

	if len(r.cursors) == 0 {
		return errors.NewStructural("none of the %d feed stations of %s is registered", len(r.layout.Stations), r.src.Tag)
	}

	present := make([][types.NumFields]bool, len(r.cursors))
	r.colCursor = make([]int, len(r.layout.Columns))
	for i, col := range r.layout.Columns {
		ci, ok := index[col.Station]
		if !ok {
			r.colCursor[i] = -1
			continue
		}
		r.colCursor[i] = ci
		present[ci][col.Field] = true
	}

	for ci, c := range r.cursors {
		for m := types.Mode(0); m < types.NumModes; m++ {
			in := present[ci][types.FieldOf(m, types.DirectionInbound)]
			out := present[ci][types.FieldOf(m, types.DirectionOutbound)]
			total := present[ci][types.FieldOf(m, types.DirectionTotal)]
			c.derive[m] = !total && (in || out)
		}
	}

	r.rep.Stations = len(r.cursors)
	return nil
}

// register stores declared stations and resolves the ids of the ingested
// ones.
func (r *run) register(ctx context.Context) error {
	ids := make(map[string]int64)
	for _, s := range r.src.Stations {
		st, err := r.store.EnsureStation(ctx, r.src.Tag, s.Name, s.ExternalID)
		if err != nil {
			return err
		}
		ids[st.Name] = st.ID
	}

	for _, c := range r.cursors {
		if id, ok := ids[c.name]; ok {
			c.id = id
			continue
		}
		st, err := r.store.EnsureStation(ctx, r.src.Tag, c.name, c.externalID)
		if err != nil {
			return err
		}
		c.id = st.ID
	}
	return nil
}

// clearWindow deletes the days from..to and the weeks from the week of from
// onward, for every station of the source.
func (r *run) clearWindow(ctx context.Context, from, to types.DateKey) error {
	firstWeek := from.ISOWeek()
	lastWeek := from.AddDays(7 * (r.src.WeekWindow - 1)).ISOWeek()
	if w := to.ISOWeek(); weekOrdinal(w) > weekOrdinal(lastWeek) {
		lastWeek = w
	}

	stations, err := r.store.StationsBySource(ctx, r.src.Tag)
	if err != nil {
		return err
	}

	var days, weeks int64
	for _, st := range stations {
		n, err := r.store.DeleteRange(ctx, st.ID, types.KindDay, store.DayBucket(from), store.DayBucket(to))
		if err != nil {
			return err
		}
		days += n

		n, err = r.store.DeleteRange(ctx, st.ID, types.KindWeek, store.WeekBucket(firstWeek), store.WeekBucket(lastWeek))
		if err != nil {
			return err
		}
		weeks += n
	}

	log.Info("resume window cleared",
		"source", r.src.Tag,
		"days", from.String()+".."+to.String(),
		"weeks", firstWeek.String()+".."+lastWeek.String(),
		"deleted_days", days,
		"deleted_weeks", weeks)
	return nil
}

func weekOrdinal(w types.WeekKey) int {
	return w.ISOYear*100 + w.Week
}

// =============================================================================
// Rows
// =============================================================================

// consume processes the prepared first row and the rest of the stream.
func (r *run) consume(ctx context.Context, stream source.Stream) error {
	if r.pending != nil {
		if err := r.handle(ctx, *r.pending, r.pendingTS); err != nil {
			return err
		}
		r.pending = nil
	}

	for {
		row, err := stream.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read feed: %w", err)
		}
		r.rep.Rows++

		ts, perr := r.parseTimestamp(row)
		if perr != nil {
			ts = r.prev.Add(r.src.Interval)
			r.recordError(&errors.RowError{
				Kind:      errors.ErrMalformedTimestamp,
				Column:    r.src.TimestampColumn,
				Timestamp: ts,
				Detail:    fmt.Sprintf("line %d: %v; extrapolated", row.Line, perr),
			})
		}

		if err := r.handle(ctx, row, ts); err != nil {
			return err
		}
	}
}

// parseTimestamp reads the row's timestamp in the source location.
// Timestamps without an offset are wall-clock time in that location.
func (r *run) parseTimestamp(row source.Row) (time.Time, error) {
	raw, ok := row.Cell(r.layout.TimestampIndex)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	ts, err := time.ParseInLocation(r.src.TimestampLayout, raw, r.src.Location)
	if err != nil {
		return time.Time{}, err
	}
	ts = ts.In(r.src.Location)

	// A wall-clock reading inside a repeated DST hour maps to two instants.
	// Take the one that continues the cadence.
	if r.wallClock && r.havePrev {
		if next := r.prev.Add(r.src.Interval).In(r.src.Location); !next.Equal(ts) && sameWallClock(next, ts) {
			return next, nil
		}
	}
	return ts, nil
}

func sameWallClock(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd &&
		a.Hour() == b.Hour() && a.Minute() == b.Minute() && a.Second() == b.Second()
}

// handle filters a timestamped row and aggregates it.
func (r *run) handle(ctx context.Context, row source.Row, ts time.Time) error {
	if r.havePrev && !ts.After(r.prev) {
		r.recordError(&errors.RowError{
			Kind:      errors.ErrOutOfOrder,
			Timestamp: ts,
			Detail:    fmt.Sprintf("line %d is not after %s", row.Line, r.prev.Format(time.RFC3339)),
		})
		return nil
	}
	r.prev = ts
	r.havePrev = true

	if r.opts.isRange() {
		if ts.Before(r.opts.From) {
			r.rep.SkippedBeforeStart++
			return nil
		}
	} else if types.DateOf(ts).Before(r.from) {
		r.rep.SkippedBeforeStart++
		return nil
	}
	if !r.opts.To.IsZero() && !ts.Before(r.opts.To) {
		r.rep.SkippedAfterEnd++
		return nil
	}

	return r.accept(ctx, row, ts)
}

// accept advances the calendar to ts and adds the row to the open hour.
func (r *run) accept(ctx context.Context, row source.Row, ts time.Time) error {
	_, offset := ts.Zone()
	hour := ts.UTC().Truncate(time.Hour)
	date := types.DateOf(ts)

	if !r.started {
		if err := r.openFirstDay(ctx, date); err != nil {
			return err
		}
		r.started = true
		r.rep.First = ts
	} else {
		if !hour.Equal(r.openHour) {
			if err := r.flushHour(ctx); err != nil {
				return err
			}
		}

		switch {
		case offset > r.offset:
			r.springForward(offset - r.offset)
		case offset < r.offset:
			r.mergeNext = true
			log.Info("DST fall-back, repeated hour merged",
				"source", r.src.Tag, "date", date.String(), "at", ts.Format(time.RFC3339))
		}

		if date != r.day {
			if err := r.changeDay(ctx, date); err != nil {
				return err
			}
		}
	}

	r.openHour = hour
	r.offset = offset
	r.last = ts
	r.rep.Last = ts
	r.rep.Accepted++

	r.accumulate(row, ts)
	return nil
}

// accumulate adds the row's values to each station's open hour.
func (r *run) accumulate(row source.Row, ts time.Time) {
	for _, c := range r.cursors {
		c.row = types.Counts{}
	}

	for i, col := range r.layout.Columns {
		ci := r.colCursor[i]
		if ci < 0 {
			continue
		}
		c := r.cursors[ci]
		c.row[col.Field] += r.value(row, col, c, ts)
	}

	for _, c := range r.cursors {
		for m := types.Mode(0); m < types.NumModes; m++ {
			if c.derive[m] {
				c.row[types.FieldOf(m, types.DirectionTotal)] =
					c.row[types.FieldOf(m, types.DirectionInbound)] + c.row[types.FieldOf(m, types.DirectionOutbound)]
			}
		}
		c.hour.Add(c.row)
	}
}

// value reads one cell. Missing, malformed, negative and implausibly large
// values count as zero.
func (r *run) value(row source.Row, col source.Column, c *cursor, ts time.Time) int64 {
	raw, ok := row.Cell(col.Index)
	raw = strings.TrimSpace(raw)

	fail := func(kind error, detail string) int64 {
		r.recordError(&errors.RowError{
			Kind:      kind,
			Station:   c.name,
			Column:    col.Header,
			Timestamp: ts,
			Detail:    detail,
		})
		return 0
	}

	if !ok || raw == "" {
		return fail(errors.ErrMissingColumn, fmt.Sprintf("line %d", row.Line))
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || f != float64(int64(f)) {
			return fail(errors.ErrMalformedValue, fmt.Sprintf("%q", raw))
		}
		v = int64(f)
	}

	switch {
	case v < 0:
		return fail(errors.ErrNegativeValue, strconv.FormatInt(v, 10))
	case v > r.src.MaxValue:
		return fail(errors.ErrSensorOutOfRange, fmt.Sprintf("%d > %d", v, r.src.MaxValue))
	}
	return v
}

// recordError counts a recovered error and logs the first few of each kind.
func (r *run) recordError(e *errors.RowError) {
	name := errors.KindName(e.Kind)
	r.rep.Errors[name]++

	switch n := r.rep.Errors[name]; {
	case n <= maxLoggedErrors:
		log.Warn("row error recovered",
			"source", r.src.Tag,
			"kind", name,
			"station", e.Station,
			"error", e.Error())
	case n == maxLoggedErrors+1:
		log.Warn("row error limit reached, counting only", "source", r.src.Tag, "kind", name)
	}
}
