package testing

import (
	"strings"
	"testing"
	"time"

	"github.com/xtxerr/tally/internal/storage/types"
)

func TestFeed_Constant(t *testing.T) {
	loc := Helsinki(t)
	from := time.Date(2020, time.January, 1, 0, 0, 0, 0, loc)

	f := NewFeed(loc, "A", "B").Constant(from, from.Add(time.Hour), 1)

	if f.Rows() != 4 {
		t.Fatalf("expected 4 rows, got %d", f.Rows())
	}

	lines := strings.Split(strings.TrimSpace(f.CSV()), "\n")
	if lines[0] != "startTime,A AT,B AT" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if lines[1] != "2020-01-01T00:00:00+02:00,1,1" {
		t.Errorf("unexpected first row %q", lines[1])
	}
}

func TestFeed_SpringForward(t *testing.T) {
	loc := Helsinki(t)
	from := time.Date(2020, time.March, 29, 0, 0, 0, 0, loc)
	to := time.Date(2020, time.March, 30, 0, 0, 0, 0, loc)

	f := NewFeed(loc, "A").Constant(from, to, 1)

	// The day has 23 hours.
	if f.Rows() != 23*4 {
		t.Errorf("expected %d rows, got %d", 23*4, f.Rows())
	}
	if !strings.Contains(f.CSV(), "2020-03-29T04:00:00+03:00") {
		t.Error("missing first summer time row")
	}
	if strings.Contains(f.CSV(), "2020-03-29T03:00:00") {
		t.Error("03:00 does not exist on the transition day")
	}
}

func TestFeed_Each(t *testing.T) {
	loc := time.UTC
	from := time.Date(2020, time.January, 1, 0, 0, 0, 0, loc)

	f := NewFeed(loc, "A").
		WithFields(types.FieldOf(types.ModeBike, types.DirectionInbound), types.FieldOf(types.ModeBike, types.DirectionOutbound)).
		WithInterval(30*time.Minute).
		Each(from, from.Add(time.Hour), func(ts time.Time, station string, field types.Field) string {
			return field.Code()
		}).
		Raw("garbage", "1", "2")

	want := "startTime,A PK,A PP\n" +
		"2020-01-01T00:00:00Z,PK,PP\n" +
		"2020-01-01T00:30:00Z,PK,PP\n" +
		"garbage,1,2\n"
	if got := f.CSV(); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestFeed_WithLayoutRepeatsFallBackHour(t *testing.T) {
	loc := Helsinki(t)
	from := time.Date(2020, time.October, 25, 2, 45, 0, 0, loc)
	to := from.Add(75 * time.Minute)

	f := NewFeed(loc, "A").WithLayout("2006-01-02T15:04:05").Constant(from, to, 1)

	var stamps []string
	for _, line := range strings.Split(strings.TrimSpace(f.CSV()), "\n")[1:] {
		stamps = append(stamps, strings.SplitN(line, ",", 2)[0])
	}
	want := []string{
		"2020-10-25T02:45:00",
		"2020-10-25T03:00:00",
		"2020-10-25T03:15:00",
		"2020-10-25T03:30:00",
		"2020-10-25T03:45:00",
	}
	if strings.Join(stamps, " ") != strings.Join(want, " ") {
		t.Errorf("unexpected timestamps %v", stamps)
	}

	f = NewFeed(loc, "A").WithLayout("2006-01-02T15:04:05").Constant(from, from.Add(135*time.Minute), 1)
	if !strings.Contains(f.CSV(), "2020-10-25T03:45:00,1\n2020-10-25T03:00:00,1\n") {
		t.Errorf("expected the repeated hour to restart at 03:00:\n%s", f.CSV())
	}
}
