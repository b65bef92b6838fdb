package errors

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestCategories(t *testing.T) {
	tests := []struct {
		err         error
		recoverable bool
		fatal       bool
		kind        string
	}{
		{ErrMalformedTimestamp, true, false, "malformed_timestamp"},
		{ErrSensorOutOfRange, true, false, "sensor_out_of_range"},
		{ErrNegativeValue, true, false, "negative_value"},
		{ErrMissingColumn, true, false, "missing_column"},
		{ErrUnknownStation, true, false, "unknown_station"},
		{ErrStructuralConfig, false, true, "other"},
		{NewStructural("source %q has no timezone", "EC"), false, true, "other"},
		{NewValidation("interval", "must be positive"), false, true, "other"},
		{fmt.Errorf("wrapped: %w", ErrNegativeValue), true, false, "negative_value"},
	}

	for _, tt := range tests {
		if got := IsRecoverable(tt.err); got != tt.recoverable {
			t.Errorf("%v: IsRecoverable = %v, want %v", tt.err, got, tt.recoverable)
		}
		if got := IsFatal(tt.err); got != tt.fatal {
			t.Errorf("%v: IsFatal = %v, want %v", tt.err, got, tt.fatal)
		}
		if got := KindName(tt.err); got != tt.kind {
			t.Errorf("%v: KindName = %s, want %s", tt.err, got, tt.kind)
		}
	}
}

func TestRowError(t *testing.T) {
	ts := time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)
	err := &RowError{
		Kind:      ErrSensorOutOfRange,
		Station:   "Auransilta",
		Column:    "Auransilta AK",
		Timestamp: ts,
		Detail:    "value 6000",
	}

	if !Is(err, ErrSensorOutOfRange) {
		t.Error("RowError should unwrap to its kind")
	}
	msg := err.Error()
	for _, want := range []string{"out of range", "Auransilta AK", "2020-01-01T12:00:00Z", "value 6000"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q does not contain %q", msg, want)
		}
	}
}

func TestValidationErrors(t *testing.T) {
	v := NewValidationErrors()
	if v.Err() != nil {
		t.Fatal("empty collector should return nil")
	}

	v.AddMissing("sources.EC.timezone")
	v.AddField("sources.EC.interval", "must be positive")
	v.Add(nil)

	if len(v.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(v.Errors))
	}
	err := v.Err()
	if !Is(err, ErrMissingField) || !Is(err, ErrInvalidConfig) {
		t.Error("collector should match every collected sentinel")
	}
	if !strings.Contains(err.Error(), "validation failed with 2 errors") {
		t.Errorf("unexpected message: %s", err)
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	err := Wrapf(ErrDatabase, "upsert %s", "day")
	if !Is(err, ErrDatabase) || err.Error() != "upsert day: database error" {
		t.Errorf("unexpected wrap: %v", err)
	}
	if !IsNotFound(NewNotFound("station", "A")) {
		t.Error("NewNotFound should be a not-found error")
	}
}
