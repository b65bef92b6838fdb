package store

import (
	"context"
	"errors"
	"testing"
	"time"

	tallyerrors "github.com/xtxerr/tally/internal/errors"
	"github.com/xtxerr/tally/internal/storage/types"
)

// =============================================================================
// Helpers
// =============================================================================

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	return setupTestStoreDriver(t, "duckdb")
}

func setupTestStoreDriver(t *testing.T, driver string) *Store {
	t.Helper()
	cfg := Config{
		Driver:       driver,
		DSN:          ":memory:",
		QueryTimeout: 30 * time.Second,
	}
	store, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// forEachDriver runs fn against every supported driver.
func forEachDriver(t *testing.T, fn func(t *testing.T, s *Store)) {
	for _, driver := range []string{"duckdb", "sqlite3"} {
		t.Run(driver, func(t *testing.T) {
			fn(t, setupTestStoreDriver(t, driver))
		})
	}
}

func date(y int, m time.Month, d int) types.DateKey {
	return types.DateKey{Year: y, Month: m, Day: d}
}

func counts(v int64) types.Counts {
	var c types.Counts
	for i := range c {
		c[i] = v
	}
	return c
}

func mustStation(t *testing.T, s *Store, source, name string) *Station {
	t.Helper()
	st, err := s.EnsureStation(context.Background(), source, name, "")
	if err != nil {
		t.Fatalf("EnsureStation(%s, %s): %v", source, name, err)
	}
	return st
}

// =============================================================================
// Store
// =============================================================================

func TestNew_UnsupportedDriver(t *testing.T) {
	_, err := New(Config{Driver: "postgres"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestNew_DefaultsToDuckDB(t *testing.T) {
	s, err := New(Config{DSN: ":memory:"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if s.Driver() != "duckdb" {
		t.Errorf("expected duckdb, got %s", s.Driver())
	}
	if err := s.Health(context.Background()); err != nil {
		t.Errorf("Health: %v", err)
	}

	ctx := context.Background()
	if _, err := s.EnsureStation(ctx, "EC", "A", ""); err != nil {
		t.Fatalf("EnsureStation: %v", err)
	}
	if _, err := s.StationByName(ctx, "EC", "A"); err != nil {
		t.Errorf("StationByName: %v", err)
	}
}

func TestNew_FileDatabaseReopen(t *testing.T) {
	dsn := t.TempDir() + "/tally.db"
	ctx := context.Background()

	s, err := New(Config{Driver: "duckdb", DSN: dsn})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	mustStation(t, s, "EC", "A")
	s.Close()

	s, err = New(Config{Driver: "duckdb", DSN: dsn})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	if _, err := s.StationByName(ctx, "EC", "A"); err != nil {
		t.Errorf("station lost after reopen: %v", err)
	}
}

func TestClose_Twice(t *testing.T) {
	s := setupTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
}

// =============================================================================
// Stations
// =============================================================================

func TestEnsureStation(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		a, err := s.EnsureStation(ctx, "EC", "Auransilta", "")
		if err != nil {
			t.Fatalf("EnsureStation: %v", err)
		}
		b := mustStation(t, s, "EC", "Kupittaa")
		again, err := s.EnsureStation(ctx, "EC", " Auransilta ", "ext-1")
		if err != nil {
			t.Fatalf("EnsureStation again: %v", err)
		}

		if a.ID == b.ID {
			t.Errorf("distinct stations share id %d", a.ID)
		}
		if again.ID != a.ID {
			t.Errorf("expected id %d, got %d", a.ID, again.ID)
		}
		if again.ExternalID != "ext-1" {
			t.Errorf("external id not updated: %q", again.ExternalID)
		}

		// Same name in another source is another station.
		other := mustStation(t, s, "TC", "Auransilta")
		if other.ID == a.ID {
			t.Error("stations of different sources share an id")
		}

		list, err := s.StationsBySource(ctx, "EC")
		if err != nil {
			t.Fatalf("StationsBySource: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("expected 2 stations, got %d", len(list))
		}
		if list[0].Name != "Auransilta" || list[0].ExternalID != "ext-1" {
			t.Errorf("unexpected first station %+v", list[0])
		}
	})
}

func TestEnsureStation_Validation(t *testing.T) {
	s := setupTestStore(t)
	tests := []struct {
		source, name string
	}{
		{"EC", "  "},
		{"", "A"},
		{"EC", "a,b"},
		{"E C", "A"},
	}
	for _, tt := range tests {
		_, err := s.EnsureStation(context.Background(), tt.source, tt.name, "")
		if !tallyerrors.IsValidation(err) {
			t.Errorf("EnsureStation(%q, %q): expected validation error, got %v", tt.source, tt.name, err)
		}
	}
}

func TestStationByName_NotFound(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.StationByName(context.Background(), "EC", "missing")
	if !errors.Is(err, ErrStationNotFound) {
		t.Errorf("expected ErrStationNotFound, got %v", err)
	}
}

// =============================================================================
// Buckets
// =============================================================================

func TestGetOrCreate_Idempotent(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		st := mustStation(t, s, "EC", "A")

		keys := []Key{
			YearBucket(2020),
			MonthBucket(types.MonthKey{Year: 2020, Month: time.January}),
			WeekBucket(types.WeekKey{ISOYear: 2020, Week: 1}),
			DayBucket(date(2020, time.January, 1)),
		}
		for i := 0; i < 2; i++ {
			for _, k := range keys {
				if err := s.GetOrCreate(ctx, st.ID, k); err != nil {
					t.Fatalf("GetOrCreate(%s): %v", k, err)
				}
			}
		}

		for _, kind := range []types.Kind{types.KindYear, types.KindMonth, types.KindWeek, types.KindDay} {
			n, err := s.CountBuckets(ctx, "EC", kind)
			if err != nil {
				t.Fatalf("CountBuckets(%s): %v", kind, err)
			}
			if n != 1 {
				t.Errorf("%s: expected 1 row, got %d", kind, n)
			}
		}

		ok, err := s.Exists(ctx, st.ID, DayBucket(date(2020, time.January, 1)))
		if err != nil || !ok {
			t.Errorf("day should exist: ok=%v err=%v", ok, err)
		}
		ok, _ = s.Exists(ctx, st.ID, DayBucket(date(2020, time.January, 2)))
		if ok {
			t.Error("unexpected day 2020-01-02")
		}
	})
}

func TestGetOrCreate_HourKindRejected(t *testing.T) {
	s := setupTestStore(t)
	if err := s.GetOrCreate(context.Background(), 1, Key{Kind: types.KindHour}); err == nil {
		t.Error("expected error for hour bucket")
	}
}

func TestWeekYears(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		st := mustStation(t, s, "EC", "A")
		wk := types.WeekKey{ISOYear: 2020, Week: 53}

		if err := s.GetOrCreate(ctx, st.ID, WeekBucket(wk)); err != nil {
			t.Fatal(err)
		}
		for _, y := range []int{2021, 2020, 2021} {
			if err := s.AttachWeekYear(ctx, st.ID, wk, y); err != nil {
				t.Fatalf("AttachWeekYear: %v", err)
			}
		}

		years, err := s.WeekYears(ctx, st.ID, wk)
		if err != nil {
			t.Fatalf("WeekYears: %v", err)
		}
		if len(years) != 2 || years[0] != 2020 || years[1] != 2021 {
			t.Errorf("expected [2020 2021], got %v", years)
		}
	})
}

func TestUpsertAggregate(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		st := mustStation(t, s, "EC", "A")
		k := MonthBucket(types.MonthKey{Year: 2020, Month: time.March})

		if _, err := s.Aggregate(ctx, st.ID, k); !errors.Is(err, ErrBucketNotFound) {
			t.Errorf("expected ErrBucketNotFound, got %v", err)
		}

		if err := s.UpsertAggregate(ctx, st.ID, k, counts(3)); err != nil {
			t.Fatalf("UpsertAggregate: %v", err)
		}
		if err := s.UpsertAggregate(ctx, st.ID, k, counts(7)); err != nil {
			t.Fatalf("UpsertAggregate again: %v", err)
		}

		got, err := s.Aggregate(ctx, st.ID, k)
		if err != nil {
			t.Fatalf("Aggregate: %v", err)
		}
		if got != counts(7) {
			t.Errorf("expected all 7, got %v", got)
		}
	})
}

func TestSumChildren(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		st := mustStation(t, s, "EC", "A")

		// 2020-12-31 (Thu) and 2021-01-01 (Fri) share ISO week 2020-W53.
		d1 := date(2020, time.December, 31)
		d2 := date(2021, time.January, 1)

		for _, d := range []types.DateKey{d1, d2} {
			if err := s.GetOrCreate(ctx, st.ID, DayBucket(d)); err != nil {
				t.Fatal(err)
			}
			if err := s.SaveHours(ctx, st.ID, d, []types.Counts{counts(1), counts(2), counts(3)}); err != nil {
				t.Fatal(err)
			}
		}

		day, err := s.SumChildren(ctx, st.ID, DayBucket(d1))
		if err != nil {
			t.Fatalf("SumChildren(day): %v", err)
		}
		if day != counts(6) {
			t.Errorf("day: expected all 6, got %v", day)
		}

		s.UpsertAggregate(ctx, st.ID, DayBucket(d1), counts(6))
		s.UpsertAggregate(ctx, st.ID, DayBucket(d2), counts(10))

		week, err := s.SumChildren(ctx, st.ID, WeekBucket(types.WeekKey{ISOYear: 2020, Week: 53}))
		if err != nil {
			t.Fatalf("SumChildren(week): %v", err)
		}
		if week != counts(16) {
			t.Errorf("week: expected all 16, got %v", week)
		}

		month, err := s.SumChildren(ctx, st.ID, MonthBucket(types.MonthKey{Year: 2021, Month: time.January}))
		if err != nil {
			t.Fatalf("SumChildren(month): %v", err)
		}
		if month != counts(10) {
			t.Errorf("month: expected all 10, got %v", month)
		}

		s.UpsertAggregate(ctx, st.ID, MonthBucket(types.MonthKey{Year: 2020, Month: time.November}), counts(5))
		s.UpsertAggregate(ctx, st.ID, MonthBucket(types.MonthKey{Year: 2020, Month: time.December}), counts(6))

		year, err := s.SumChildren(ctx, st.ID, YearBucket(2020))
		if err != nil {
			t.Fatalf("SumChildren(year): %v", err)
		}
		if year != counts(11) {
			t.Errorf("year: expected all 11, got %v", year)
		}

		empty, err := s.SumChildren(ctx, st.ID, YearBucket(1999))
		if err != nil {
			t.Fatalf("SumChildren(empty year): %v", err)
		}
		if !empty.IsZero() {
			t.Errorf("empty year should sum to zero, got %v", empty)
		}
	})
}

func TestDeleteRange_DayCascade(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		st := mustStation(t, s, "EC", "A")
		other := mustStation(t, s, "EC", "B")

		for d := 1; d <= 5; d++ {
			for _, id := range []int64{st.ID, other.ID} {
				day := date(2020, time.February, d)
				s.GetOrCreate(ctx, id, DayBucket(day))
				s.SaveHours(ctx, id, day, []types.Counts{counts(1)})
				s.UpsertAggregate(ctx, id, DayBucket(day), counts(1))
			}
		}

		n, err := s.DeleteRange(ctx, st.ID, types.KindDay,
			DayBucket(date(2020, time.February, 2)), DayBucket(date(2020, time.February, 4)))
		if err != nil {
			t.Fatalf("DeleteRange: %v", err)
		}
		if n != 3 {
			t.Errorf("expected 3 days deleted, got %d", n)
		}

		for d := 1; d <= 5; d++ {
			day := date(2020, time.February, d)
			want := d == 1 || d == 5

			ok, _ := s.Exists(ctx, st.ID, DayBucket(day))
			if ok != want {
				t.Errorf("%s: exists=%v, want %v", day, ok, want)
			}
			hours, _ := s.Hours(ctx, st.ID, day)
			if (len(hours) == 1) != want {
				t.Errorf("%s: %d hours left", day, len(hours))
			}
			_, err := s.Aggregate(ctx, st.ID, DayBucket(day))
			if (err == nil) != want {
				t.Errorf("%s: day data present=%v, want %v", day, err == nil, want)
			}

			// The other station is untouched.
			if ok, _ := s.Exists(ctx, other.ID, DayBucket(day)); !ok {
				t.Errorf("%s: other station lost its day", day)
			}
		}
	})
}

func TestDeleteRange_WeekAcrossYear(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		st := mustStation(t, s, "EC", "A")

		weeks := []types.WeekKey{{ISOYear: 2020, Week: 52}, {ISOYear: 2020, Week: 53}, {ISOYear: 2021, Week: 1}, {ISOYear: 2021, Week: 2}}
		for _, w := range weeks {
			s.GetOrCreate(ctx, st.ID, WeekBucket(w))
			s.AttachWeekYear(ctx, st.ID, w, w.ISOYear)
			s.UpsertAggregate(ctx, st.ID, WeekBucket(w), counts(1))
		}

		n, err := s.DeleteRange(ctx, st.ID, types.KindWeek, WeekBucket(weeks[1]), WeekBucket(weeks[2]))
		if err != nil {
			t.Fatalf("DeleteRange: %v", err)
		}
		if n != 2 {
			t.Errorf("expected 2 weeks deleted, got %d", n)
		}

		for i, w := range weeks {
			want := i == 0 || i == 3
			ok, _ := s.Exists(ctx, st.ID, WeekBucket(w))
			if ok != want {
				t.Errorf("%s: exists=%v, want %v", w, ok, want)
			}
			years, _ := s.WeekYears(ctx, st.ID, w)
			if (len(years) == 1) != want {
				t.Errorf("%s: year-set %v", w, years)
			}
		}
	})
}

func TestDeleteRange_MonthKeepsDays(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	st := mustStation(t, s, "EC", "A")

	m := types.MonthKey{Year: 2020, Month: time.January}
	s.GetOrCreate(ctx, st.ID, MonthBucket(m))
	s.UpsertAggregate(ctx, st.ID, MonthBucket(m), counts(1))
	s.GetOrCreate(ctx, st.ID, DayBucket(m.FirstDay()))

	if _, err := s.DeleteRange(ctx, st.ID, types.KindMonth, MonthBucket(m), MonthBucket(m)); err != nil {
		t.Fatalf("DeleteRange: %v", err)
	}

	if ok, _ := s.Exists(ctx, st.ID, MonthBucket(m)); ok {
		t.Error("month should be deleted")
	}
	if ok, _ := s.Exists(ctx, st.ID, DayBucket(m.FirstDay())); !ok {
		t.Error("deleting a month must not delete its days")
	}
}

func TestWipeSource(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	ec := mustStation(t, s, "EC", "A")
	tc := mustStation(t, s, "TC", "A")

	for _, id := range []int64{ec.ID, tc.ID} {
		s.GetOrCreate(ctx, id, YearBucket(2020))
		s.GetOrCreate(ctx, id, DayBucket(date(2020, time.January, 1)))
		s.SaveHours(ctx, id, date(2020, time.January, 1), []types.Counts{counts(1)})
	}

	if err := s.WipeSource(ctx, "EC"); err != nil {
		t.Fatalf("WipeSource: %v", err)
	}

	if list, _ := s.StationsBySource(ctx, "EC"); len(list) != 0 {
		t.Errorf("expected no EC stations, got %d", len(list))
	}
	if n, _ := s.CountBuckets(ctx, "TC", types.KindDay); n != 1 {
		t.Errorf("TC days should survive, got %d", n)
	}
	if hours, _ := s.Hours(ctx, ec.ID, date(2020, time.January, 1)); len(hours) != 0 {
		t.Errorf("EC hours should be gone, got %d", len(hours))
	}
}

// =============================================================================
// Hours
// =============================================================================

func TestSaveHours_ReplaceAndTrim(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		st := mustStation(t, s, "EC", "A")
		d := date(2020, time.January, 1)

		full := make([]types.Counts, 24)
		for i := range full {
			full[i] = counts(int64(i))
		}
		if err := s.SaveHours(ctx, st.ID, d, full); err != nil {
			t.Fatalf("SaveHours: %v", err)
		}

		got, err := s.Hours(ctx, st.ID, d)
		if err != nil {
			t.Fatalf("Hours: %v", err)
		}
		if len(got) != 24 || got[23] != counts(23) {
			t.Fatalf("unexpected hours: len=%d", len(got))
		}

		if err := s.SaveHours(ctx, st.ID, d, []types.Counts{counts(9), counts(8)}); err != nil {
			t.Fatalf("SaveHours shorter: %v", err)
		}
		got, _ = s.Hours(ctx, st.ID, d)
		if len(got) != 2 || got[0] != counts(9) || got[1] != counts(8) {
			t.Errorf("expected [9 8], got %v", got)
		}

		if err := s.SaveHours(ctx, st.ID, d, nil); err != nil {
			t.Fatalf("SaveHours empty: %v", err)
		}
		if got, _ = s.Hours(ctx, st.ID, d); len(got) != 0 {
			t.Errorf("expected no hours, got %d", len(got))
		}
	})
}

// =============================================================================
// Import State
// =============================================================================

func TestImportState(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		if _, err := s.GetImportState(ctx, "EC"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}

		st, err := s.CreateImportState(ctx, &ImportState{Source: "EC", Year: 2015, Month: time.January})
		if err != nil {
			t.Fatalf("CreateImportState: %v", err)
		}
		if st.Year != 2015 || st.Month != time.January || st.Day != 0 {
			t.Errorf("unexpected state %+v", st)
		}

		// A second create keeps the first state.
		st, _ = s.CreateImportState(ctx, &ImportState{Source: "EC", Year: 2000, Month: time.May})
		if st.Year != 2015 {
			t.Errorf("create overwrote state: %+v", st)
		}

		if err := s.SaveImportState(ctx, &ImportState{Source: "EC", Year: 2020, Month: time.March, Day: 14}); err != nil {
			t.Fatalf("SaveImportState: %v", err)
		}
		st, err = s.GetImportState(ctx, "EC")
		if err != nil {
			t.Fatalf("GetImportState: %v", err)
		}
		if st.Year != 2020 || st.Month != time.March || st.Day != 14 {
			t.Errorf("unexpected state %+v", st)
		}
		if st.UpdatedAt.IsZero() {
			t.Error("updated_at not set")
		}

		if err := s.DeleteImportState(ctx, "EC"); err != nil {
			t.Fatalf("DeleteImportState: %v", err)
		}
		if _, err := s.GetImportState(ctx, "EC"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
	})
}

// =============================================================================
// Listing
// =============================================================================

func TestListAggregates(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		a := mustStation(t, s, "EC", "A")
		b := mustStation(t, s, "EC", "B")

		w := types.WeekKey{ISOYear: 2020, Week: 53}
		for _, id := range []int64{b.ID, a.ID} {
			s.GetOrCreate(ctx, id, WeekBucket(w))
			s.AttachWeekYear(ctx, id, w, 2021)
			s.AttachWeekYear(ctx, id, w, 2020)
			s.UpsertAggregate(ctx, id, WeekBucket(w), counts(id))
		}

		recs, err := s.ListAggregates(ctx, "EC", types.KindWeek)
		if err != nil {
			t.Fatalf("ListAggregates: %v", err)
		}
		if len(recs) != 2 {
			t.Fatalf("expected 2 records, got %d", len(recs))
		}
		if recs[0].Station != "A" || recs[0].Key.Week != w {
			t.Errorf("unexpected first record %+v", recs[0])
		}
		if recs[0].Counts != counts(a.ID) {
			t.Errorf("unexpected counts %v", recs[0].Counts)
		}
		if len(recs[0].Years) != 2 || recs[0].Years[0] != 2020 || recs[0].Years[1] != 2021 {
			t.Errorf("unexpected year-set %v", recs[0].Years)
		}

		d := date(2020, time.January, 2)
		s.GetOrCreate(ctx, a.ID, DayBucket(d))
		s.UpsertAggregate(ctx, a.ID, DayBucket(d), counts(4))
		s.SaveHours(ctx, a.ID, d, []types.Counts{counts(1), counts(3)})

		days, err := s.ListAggregates(ctx, "EC", types.KindDay)
		if err != nil {
			t.Fatalf("ListAggregates(day): %v", err)
		}
		if len(days) != 1 || days[0].Key.Date != d {
			t.Errorf("unexpected days %+v", days)
		}

		hours, err := s.ListHours(ctx, "EC")
		if err != nil {
			t.Fatalf("ListHours: %v", err)
		}
		if len(hours) != 2 || hours[1].Index != 1 || hours[1].Counts != counts(3) {
			t.Errorf("unexpected hours %+v", hours)
		}
	})
}

func TestKeyString(t *testing.T) {
	tests := []struct {
		key  Key
		want string
	}{
		{YearBucket(2020), "year 2020"},
		{MonthBucket(types.MonthKey{Year: 2020, Month: time.March}), "month 2020-03"},
		{WeekBucket(types.WeekKey{ISOYear: 2020, Week: 53}), "week 2020-W53"},
		{DayBucket(date(2021, time.January, 1)), "day 2021-01-01"},
	}
	for _, tt := range tests {
		if got := tt.key.String(); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
}
