package types

import (
	"testing"
	"time"
)

func TestFieldRoundTrip(t *testing.T) {
	seen := make(map[string]bool)
	for _, f := range AllFields() {
		got, ok := ParseFieldCode(f.Code())
		if !ok {
			t.Fatalf("field %s: code %q did not parse", f, f.Code())
		}
		if got != f {
			t.Errorf("field %s: parsed %s", f, got)
		}
		if seen[f.String()] {
			t.Errorf("duplicate column name %s", f)
		}
		seen[f.String()] = true
	}

	if len(seen) != NumFields {
		t.Errorf("expected %d fields, got %d", NumFields, len(seen))
	}
}

func TestParseFieldCode(t *testing.T) {
	tests := []struct {
		code     string
		expected Field
		ok       bool
	}{
		{"AK", FieldOf(ModeCar, DirectionInbound), true},
		{"AP", FieldOf(ModeCar, DirectionOutbound), true},
		{"PT", FieldOf(ModeBike, DirectionTotal), true},
		{"JK", FieldOf(ModePedestrian, DirectionInbound), true},
		{"BP", FieldOf(ModeBus, DirectionOutbound), true},
		{"XK", 0, false},
		{"AX", 0, false},
		{"A", 0, false},
		{"AKT", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseFieldCode(tt.code)
		if ok != tt.ok {
			t.Errorf("code %q: expected ok=%v, got %v", tt.code, tt.ok, ok)
			continue
		}
		if ok && got != tt.expected {
			t.Errorf("code %q: expected %s, got %s", tt.code, tt.expected, got)
		}
	}
}

func TestFieldString(t *testing.T) {
	if s := FieldOf(ModePedestrian, DirectionTotal).String(); s != "pedestrian_total" {
		t.Errorf("expected pedestrian_total, got %s", s)
	}
	if s := FieldOf(ModeCar, DirectionInbound).String(); s != "car_inbound" {
		t.Errorf("expected car_inbound, got %s", s)
	}
}

func TestCounts(t *testing.T) {
	var a, b Counts
	a[FieldOf(ModeCar, DirectionTotal)] = 10
	a[FieldOf(ModeBike, DirectionInbound)] = 3
	b[FieldOf(ModeCar, DirectionTotal)] = 5
	b[FieldOf(ModeBus, DirectionTotal)] = 2

	if !(&Counts{}).IsZero() {
		t.Error("zero counts should be zero")
	}

	a.Add(b)
	if got := a.Get(ModeCar, DirectionTotal); got != 15 {
		t.Errorf("expected car total 15, got %d", got)
	}
	if got := a.Volume(); got != 17 {
		t.Errorf("expected volume 17, got %d", got)
	}

	sum := Sum([]Counts{b, b, b})
	if got := sum.Get(ModeBus, DirectionTotal); got != 6 {
		t.Errorf("expected bus total 6, got %d", got)
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{KindHour, "hour"},
		{KindDay, "day"},
		{KindWeek, "week"},
		{KindMonth, "month"},
		{KindYear, "year"},
	}

	for _, tt := range tests {
		if tt.kind.String() != tt.expected {
			t.Errorf("expected %s, got %s", tt.expected, tt.kind.String())
		}
		parsed, err := ParseKind(tt.expected)
		if err != nil || parsed != tt.kind {
			t.Errorf("ParseKind(%s) = %v, %v", tt.expected, parsed, err)
		}
	}

	if _, err := ParseKind("decade"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestKindNext(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected Kind
	}{
		{KindHour, KindDay},
		{KindDay, KindMonth},
		{KindMonth, KindYear},
		{KindYear, KindYear},
		{KindWeek, KindWeek},
	}

	for _, tt := range tests {
		if tt.kind.Next() != tt.expected {
			t.Errorf("kind %s: expected next %s, got %s", tt.kind, tt.expected, tt.kind.Next())
		}
	}
}

func TestKindStart(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Helsinki")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	ts := time.Date(2026, 1, 15, 10, 37, 45, 0, loc)

	tests := []struct {
		kind     Kind
		expected time.Time
	}{
		{KindHour, time.Date(2026, 1, 15, 10, 0, 0, 0, loc)},
		{KindDay, time.Date(2026, 1, 15, 0, 0, 0, 0, loc)},
		// 2026-01-15 is a Thursday, so Monday is 2026-01-12
		{KindWeek, time.Date(2026, 1, 12, 0, 0, 0, 0, loc)},
		{KindMonth, time.Date(2026, 1, 1, 0, 0, 0, 0, loc)},
		{KindYear, time.Date(2026, 1, 1, 0, 0, 0, 0, loc)},
	}

	for _, tt := range tests {
		if got := tt.kind.Start(ts); !got.Equal(tt.expected) {
			t.Errorf("%s: expected %v, got %v", tt.kind, tt.expected, got)
		}
	}
}

func TestDateKeyISOWeek(t *testing.T) {
	tests := []struct {
		date     DateKey
		expected WeekKey
	}{
		{DateKey{2020, time.January, 1}, WeekKey{2020, 1}},
		{DateKey{2020, time.December, 31}, WeekKey{2020, 53}},
		{DateKey{2021, time.January, 3}, WeekKey{2020, 53}},
		{DateKey{2021, time.January, 4}, WeekKey{2021, 1}},
		{DateKey{2019, time.December, 30}, WeekKey{2020, 1}},
	}

	for _, tt := range tests {
		if got := tt.date.ISOWeek(); got != tt.expected {
			t.Errorf("%s: expected %s, got %s", tt.date, tt.expected, got)
		}
	}
}

func TestDateKeyHelpers(t *testing.T) {
	d := DateKey{2020, time.December, 31}
	if next := d.AddDays(1); next != (DateKey{2021, time.January, 1}) {
		t.Errorf("expected 2021-01-01, got %s", next)
	}
	if d.Weekday() != 4 {
		t.Errorf("expected Thursday (4), got %d", d.Weekday())
	}
	if !d.Before(d.AddDays(1)) || d.Before(d) {
		t.Error("Before ordering is wrong")
	}

	parsed, err := ParseDate("2020-02-29")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if parsed.String() != "2020-02-29" {
		t.Errorf("expected 2020-02-29, got %s", parsed)
	}

	m := MonthOf(d)
	if m.Next() != (MonthKey{2021, time.January}) {
		t.Errorf("expected 2021-01, got %s", m.Next())
	}
	if m.FirstDay() != (DateKey{2020, time.December, 1}) {
		t.Errorf("expected 2020-12-01, got %s", m.FirstDay())
	}
}
