package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/xtxerr/tally/internal/storage/types"
	"github.com/xtxerr/tally/internal/store"
)

func setupManager(t *testing.T) *Manager {
	t.Helper()
	s, err := store.New(store.Config{DSN: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewManager(s)
}

func TestLoad_CreatesWithDefaults(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()
	start := types.MonthKey{Year: 2015, Month: time.June}

	cp, err := m.Load(ctx, "EC", start)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cp.MonthKey() != start || cp.Day != 0 {
		t.Errorf("expected %s, got %s", start, cp)
	}

	// A later load ignores the default.
	cp, err = m.Load(ctx, "EC", types.MonthKey{Year: 2000, Month: time.January})
	if err != nil {
		t.Fatalf("Load again: %v", err)
	}
	if cp.MonthKey() != start {
		t.Errorf("expected %s, got %s", start, cp)
	}
}

func TestAdvanceAndReset(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()
	start := types.MonthKey{Year: 2015, Month: time.January}

	if _, err := m.Load(ctx, "EC", start); err != nil {
		t.Fatal(err)
	}

	if err := m.Advance(ctx, "EC", Checkpoint{Year: 2020, Month: time.March, Day: 29}); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	cp, _ := m.Load(ctx, "EC", start)
	if cp.String() != "2020-03-29" {
		t.Errorf("expected 2020-03-29, got %s", cp)
	}

	if err := m.Reset(ctx, "EC"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	cp, _ = m.Load(ctx, "EC", start)
	if cp.String() != "2015-01" {
		t.Errorf("expected 2015-01 after reset, got %s", cp)
	}
}

func TestAdvance_Invalid(t *testing.T) {
	m := setupManager(t)
	tests := []Checkpoint{
		{Year: 2020, Month: 13},
		{Year: 2020, Month: 0},
		{Year: 2021, Month: time.February, Day: 29},
	}
	for _, cp := range tests {
		if err := m.Advance(context.Background(), "EC", cp); err == nil {
			t.Errorf("expected error for %+v", cp)
		}
	}
}

func TestCheckpoint_StartDate(t *testing.T) {
	tests := []struct {
		cp   Checkpoint
		want string
	}{
		{Checkpoint{Year: 2020, Month: time.March}, "2020-03-01"},
		{Checkpoint{Year: 2020, Month: time.March, Day: 14}, "2020-03-14"},
	}
	for _, tt := range tests {
		if got := tt.cp.StartDate().String(); got != tt.want {
			t.Errorf("%+v: got %s, want %s", tt.cp, got, tt.want)
		}
	}
}
