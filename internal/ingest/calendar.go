package ingest

import (
	"context"
	"time"

	"github.com/xtxerr/tally/internal/storage/types"
	"github.com/xtxerr/tally/internal/store"
)

// each applies fn to every ingested station.
func (r *run) each(fn func(c *cursor) error) error {
	for _, c := range r.cursors {
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// Hours
// =============================================================================

// flushHour closes the open hour of every station. After a fall-back the
// repeated wall-clock hour is added to the previous slot so the day keeps
// one slot per wall-clock hour.
func (r *run) flushHour(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	merge := r.mergeNext && len(r.cursors[0].hours) > 0
	for _, c := range r.cursors {
		if merge {
			c.hours[len(c.hours)-1].Add(c.hour)
		} else {
			c.hours = append(c.hours, c.hour)
		}
		r.rep.Volumes.Add(c.name, float64(c.hour.Volume()))
		c.hour = types.Counts{}
	}

	if merge {
		r.rep.MergedHours++
	} else {
		r.rep.Hours++
	}
	r.mergeNext = false
	return nil
}

// springForward inserts an all-zero slot for every wall-clock hour skipped
// by a DST transition of delta seconds.
func (r *run) springForward(delta int) {
	n := delta / 3600
	if n < 1 {
		return
	}
	for i := 0; i < n; i++ {
		for _, c := range r.cursors {
			c.hours = append(c.hours, types.Counts{})
		}
	}
	r.rep.PhantomHours += n

	log.Info("DST spring-forward, phantom hour inserted",
		"source", r.src.Tag, "date", r.day.String(), "hours", n)
}

// =============================================================================
// Calendar boundaries
// =============================================================================

// openFirstDay creates the buckets of the first ingested day.
func (r *run) openFirstDay(ctx context.Context, d types.DateKey) error {
	r.day = d
	r.week = d.ISOWeek()
	r.month = types.MonthOf(d)
	r.year = d.Year

	// A week starting in the previous year keeps that year in its set when
	// the earlier days are already stored.
	monday := d.AddDays(1 - d.Weekday())
	lastOfPrevYear := types.DateKey{Year: d.Year - 1, Month: time.December, Day: 31}

	return r.each(func(c *cursor) error {
		if err := r.store.GetOrCreate(ctx, c.id, store.YearBucket(r.year)); err != nil {
			return err
		}
		if err := r.store.GetOrCreate(ctx, c.id, store.MonthBucket(r.month)); err != nil {
			return err
		}
		if err := r.store.GetOrCreate(ctx, c.id, store.WeekBucket(r.week)); err != nil {
			return err
		}
		if err := r.store.AttachWeekYear(ctx, c.id, r.week, r.year); err != nil {
			return err
		}
		if monday.Year != d.Year {
			ok, err := r.store.Exists(ctx, c.id, store.DayBucket(lastOfPrevYear))
			if err != nil {
				return err
			}
			if ok {
				if err := r.store.AttachWeekYear(ctx, c.id, r.week, monday.Year); err != nil {
					return err
				}
			}
		}
		return r.store.GetOrCreate(ctx, c.id, store.DayBucket(d))
	})
}

// changeDay closes the open day and runs the boundary checks in the order
// year, month, week, day.
func (r *run) changeDay(ctx context.Context, next types.DateKey) error {
	if err := r.closeDay(ctx); err != nil {
		return err
	}

	nextWeek := next.ISOWeek()
	nextMonth := types.MonthOf(next)
	weekChanged := nextWeek != r.week

	switch {
	case next.Year != r.year:
		if err := r.roll(ctx, store.MonthBucket(r.month)); err != nil {
			return err
		}
		if err := r.roll(ctx, store.YearBucket(r.year)); err != nil {
			return err
		}
		r.year = next.Year
		r.month = nextMonth

		err := r.each(func(c *cursor) error {
			if err := r.store.GetOrCreate(ctx, c.id, store.YearBucket(r.year)); err != nil {
				return err
			}
			if err := r.store.GetOrCreate(ctx, c.id, store.MonthBucket(r.month)); err != nil {
				return err
			}
			// The week in progress now spans both years.
			if !weekChanged {
				return r.store.AttachWeekYear(ctx, c.id, r.week, r.year)
			}
			return nil
		})
		if err != nil {
			return err
		}

	case nextMonth != r.month:
		if err := r.roll(ctx, store.MonthBucket(r.month)); err != nil {
			return err
		}
		r.month = nextMonth

		err := r.each(func(c *cursor) error {
			return r.store.GetOrCreate(ctx, c.id, store.MonthBucket(r.month))
		})
		if err != nil {
			return err
		}
	}

	if weekChanged {
		if err := r.roll(ctx, store.WeekBucket(r.week)); err != nil {
			return err
		}
		r.week = nextWeek

		err := r.each(func(c *cursor) error {
			if err := r.store.GetOrCreate(ctx, c.id, store.WeekBucket(r.week)); err != nil {
				return err
			}
			return r.store.AttachWeekYear(ctx, c.id, r.week, r.year)
		})
		if err != nil {
			return err
		}
	}

	r.day = next
	return r.each(func(c *cursor) error {
		return r.store.GetOrCreate(ctx, c.id, store.DayBucket(next))
	})
}

// closeDay stores the hour slots of the open day and its total.
func (r *run) closeDay(ctx context.Context) error {
	slots := 0
	err := r.each(func(c *cursor) error {
		if err := r.store.SaveHours(ctx, c.id, r.day, c.hours); err != nil {
			return err
		}
		if err := r.store.UpsertAggregate(ctx, c.id, store.DayBucket(r.day), types.Sum(c.hours)); err != nil {
			return err
		}
		slots += len(c.hours)
		c.hours = c.hours[:0]
		return nil
	})
	if err != nil {
		return err
	}

	r.rep.Days++
	r.rep.wrote(types.KindHour, slots)
	r.rep.wrote(types.KindDay, len(r.cursors))
	return nil
}

// roll recomputes a bucket from its stored children.
func (r *run) roll(ctx context.Context, k store.Key) error {
	err := r.each(func(c *cursor) error {
		sum, err := r.store.SumChildren(ctx, c.id, k)
		if err != nil {
			return err
		}
		return r.store.UpsertAggregate(ctx, c.id, k, sum)
	})
	if err != nil {
		return err
	}

	r.rep.wrote(k.Kind, len(r.cursors))
	log.Debug("bucket rolled up", "source", r.src.Tag, "bucket", k.String())
	return nil
}

// finish flushes every bucket still open at the end of the feed.
func (r *run) finish(ctx context.Context) error {
	if !r.started {
		return nil
	}

	if err := r.flushHour(ctx); err != nil {
		return err
	}
	if err := r.closeDay(ctx); err != nil {
		return err
	}

	// A week running into the next year keeps that year in its set when
	// the later days are already stored.
	sunday := r.day.AddDays(7 - r.day.Weekday())
	if sunday.Year != r.year {
		firstOfNextYear := types.DateKey{Year: r.year + 1, Month: time.January, Day: 1}
		err := r.each(func(c *cursor) error {
			ok, err := r.store.Exists(ctx, c.id, store.DayBucket(firstOfNextYear))
			if err != nil || !ok {
				return err
			}
			return r.store.AttachWeekYear(ctx, c.id, r.week, sunday.Year)
		})
		if err != nil {
			return err
		}
	}

	for _, k := range []store.Key{
		store.MonthBucket(r.month),
		store.YearBucket(r.year),
		store.WeekBucket(r.week),
	} {
		if err := r.roll(ctx, k); err != nil {
			return err
		}
	}
	return nil
}
