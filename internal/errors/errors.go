// Package errors holds the error definitions shared by the whole project.
//
// This file provides:
// - Sentinel errors for row-level and structural failures
// - Error category checking functions
// - RowError for carrying row context through recovery paths
// - Error wrapping utilities

package errors

import (
	"errors"
	"fmt"
	"time"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Row-level, recovered in place and counted
	ErrMalformedTimestamp = errors.New("malformed timestamp")
	ErrSensorOutOfRange   = errors.New("sensor value out of range")
	ErrNegativeValue      = errors.New("negative value")
	ErrMissingColumn      = errors.New("missing column")
	ErrMalformedValue     = errors.New("malformed value")
	ErrOutOfOrder         = errors.New("row out of order")
	ErrUnknownStation     = errors.New("unknown station")

	// Structural, abort the run before any mutation
	ErrStructuralConfig = errors.New("structural configuration error")
	ErrUnknownSource    = errors.New("unknown counter source")
	ErrNoValueColumns   = errors.New("feed has no decodable value columns")

	// Not found errors
	ErrNotFound        = errors.New("not found")
	ErrStationNotFound = errors.New("station not found")
	ErrBucketNotFound  = errors.New("bucket not found")

	// Validation errors
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrMissingField   = errors.New("missing required field")
	ErrInvalidRange   = errors.New("invalid date range")
	ErrInvalidFeed    = errors.New("invalid feed")
	ErrSourceInFlight = errors.New("source import already running")

	// Internal errors
	ErrInternal = errors.New("internal error")
	ErrDatabase = errors.New("database error")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// New is a convenience wrapper for errors.New
var New = errors.New

// IsRecoverable returns true if err is a row-level error that the engine
// repairs in place.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrMalformedTimestamp) ||
		errors.Is(err, ErrSensorOutOfRange) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrMissingColumn) ||
		errors.Is(err, ErrMalformedValue) ||
		errors.Is(err, ErrOutOfOrder) ||
		errors.Is(err, ErrUnknownStation)
}

// IsFatal returns true if err must abort a run without touching the checkpoint.
func IsFatal(err error) bool {
	return errors.Is(err, ErrStructuralConfig) ||
		errors.Is(err, ErrUnknownSource) ||
		errors.Is(err, ErrNoValueColumns) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidRange)
}

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrStationNotFound) ||
		errors.Is(err, ErrBucketNotFound)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidFeed)
}

// KindName returns the short label used in logs and metrics for a
// recoverable error.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrMalformedTimestamp):
		return "malformed_timestamp"
	case errors.Is(err, ErrSensorOutOfRange):
		return "sensor_out_of_range"
	case errors.Is(err, ErrNegativeValue):
		return "negative_value"
	case errors.Is(err, ErrMissingColumn):
		return "missing_column"
	case errors.Is(err, ErrMalformedValue):
		return "malformed_value"
	case errors.Is(err, ErrOutOfOrder):
		return "out_of_order"
	case errors.Is(err, ErrUnknownStation):
		return "unknown_station"
	default:
		return "other"
	}
}

// ============================================================================
// Row errors
// ============================================================================

// RowError describes a recovered problem in one feed row.
type RowError struct {
	Kind      error
	Station   string
	Column    string
	Timestamp time.Time
	Detail    string
}

// Error implements the error interface.
func (e *RowError) Error() string {
	msg := e.Kind.Error()
	if e.Column != "" {
		msg += fmt.Sprintf(" in column %q", e.Column)
	}
	if !e.Timestamp.IsZero() {
		msg += " at " + e.Timestamp.Format(time.RFC3339)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap returns the sentinel kind for errors.Is support.
func (e *RowError) Unwrap() error {
	return e.Kind
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// NewNotFound creates a not-found error with context.
func NewNotFound(entityType, identifier string) error {
	return fmt.Errorf("%s '%s': %w", entityType, identifier, ErrNotFound)
}

// NewStructural creates a structural configuration error.
func NewStructural(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrStructuralConfig)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns all collected errors for errors.Is/As support.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
