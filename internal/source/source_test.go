package source

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tallyerrors "github.com/xtxerr/tally/internal/errors"
	"github.com/xtxerr/tally/internal/storage/types"
)

func TestDecodeColumn(t *testing.T) {
	tests := []struct {
		header  string
		station string
		field   types.Field
		ok      bool
	}{
		{"Auransilta AK", "Auransilta", types.FieldOf(types.ModeCar, types.DirectionInbound), true},
		{"Auransilta AP", "Auransilta", types.FieldOf(types.ModeCar, types.DirectionOutbound), true},
		{"Kupittaa PT", "Kupittaa", types.FieldOf(types.ModeBike, types.DirectionTotal), true},
		{"  Teatterisilta  JK ", "Teatterisilta", types.FieldOf(types.ModePedestrian, types.DirectionInbound), true},
		{"Hansa BP", "Hansa", types.FieldOf(types.ModeBus, types.DirectionOutbound), true},
		{"Itäharju 2 AT", "Itäharju 2", types.FieldOf(types.ModeCar, types.DirectionTotal), true},
		{"AK", "", 0, false},
		{"StationAK", "", 0, false},
		{"Station XK", "", 0, false},
		{"Station AX", "", 0, false},
		{"startTime", "", 0, false},
		{"", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			station, field, ok := DecodeColumn(tt.header)
			if ok != tt.ok {
				t.Fatalf("ok: got %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if station != tt.station {
				t.Errorf("station: got %q, want %q", station, tt.station)
			}
			if field != tt.field {
				t.Errorf("field: got %s, want %s", field, tt.field)
			}
		})
	}
}

func TestDecodeColumns(t *testing.T) {
	headers := []string{"\ufeffstartTime", "A AK", "A AP", "B PT", "A AK", "notes", "B PK"}

	l, err := DecodeColumns(headers, "startTime")
	if err != nil {
		t.Fatalf("DecodeColumns: %v", err)
	}

	if l.TimestampIndex != 0 {
		t.Errorf("timestamp index: got %d", l.TimestampIndex)
	}
	if len(l.Columns) != 4 {
		t.Fatalf("expected 4 columns, got %d", len(l.Columns))
	}
	if len(l.Stations) != 2 || l.Stations[0] != "A" || l.Stations[1] != "B" {
		t.Errorf("unexpected stations %v", l.Stations)
	}
	if len(l.Ignored) != 2 {
		t.Errorf("expected duplicate and notes ignored, got %v", l.Ignored)
	}
	if cols := l.StationColumns("B"); len(cols) != 2 || cols[1].Index != 6 {
		t.Errorf("unexpected B columns %+v", cols)
	}
}

func TestDecodeColumns_Structural(t *testing.T) {
	_, err := DecodeColumns([]string{"time", "A AK"}, "startTime")
	if !errors.Is(err, tallyerrors.ErrStructuralConfig) {
		t.Errorf("expected ErrStructuralConfig, got %v", err)
	}

	_, err = DecodeColumns([]string{"startTime", "foo", "bar"}, "startTime")
	if !errors.Is(err, tallyerrors.ErrNoValueColumns) {
		t.Errorf("expected ErrNoValueColumns, got %v", err)
	}
	if !tallyerrors.IsFatal(err) {
		t.Error("missing value columns should be fatal")
	}
}

const sampleFeed = `startTime,A AK,A AP
2020-01-01T00:00:00+02:00,1,2
2020-01-01T00:15:00+02:00,3

2020-01-01T00:30:00+02:00,5,6
`

func TestCSVStream(t *testing.T) {
	s, err := NewCSV(strings.NewReader(sampleFeed))
	if err != nil {
		t.Fatalf("NewCSV: %v", err)
	}
	defer s.Close()

	if cols := s.Columns(); len(cols) != 3 || cols[1] != "A AK" {
		t.Errorf("unexpected columns %v", cols)
	}

	var rows []Row
	for {
		row, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		rows = append(rows, row)
	}

	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Line != 2 || rows[2].Line != 5 {
		t.Errorf("unexpected lines %d, %d", rows[0].Line, rows[2].Line)
	}
	if _, ok := rows[1].Cell(2); ok {
		t.Error("short row should not have cell 2")
	}
	if v, ok := rows[2].Cell(2); !ok || v != "6" {
		t.Errorf("cell 2: got %q, %v", v, ok)
	}
}

func TestNewCSV_Empty(t *testing.T) {
	if _, err := NewCSV(strings.NewReader("")); err == nil {
		t.Error("expected error for empty feed")
	}
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.csv")
	if err := os.WriteFile(path, []byte(sampleFeed), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(context.Background(), path, time.Second)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := s.Next(); err != nil {
		t.Errorf("Next: %v", err)
	}
}

func TestOpen_Missing(t *testing.T) {
	if _, err := Open(context.Background(), filepath.Join(t.TempDir(), "none.csv"), time.Second); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Open(context.Background(), "", time.Second); err == nil {
		t.Error("expected error for empty feed")
	}
}

func TestOpen_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feed.csv" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		io.WriteString(w, sampleFeed)
	}))
	defer srv.Close()

	s, err := Open(context.Background(), srv.URL+"/feed.csv", 5*time.Second)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	row, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if row.Cells[1] != "1" {
		t.Errorf("unexpected first row %v", row.Cells)
	}

	if _, err := Open(context.Background(), srv.URL+"/missing.csv", 5*time.Second); err == nil {
		t.Error("expected error for 404")
	}
}
