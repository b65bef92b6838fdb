// Package logging provides structured logging for the tally importer.
//
// This package wraps the standard library's log/slog package to provide
// consistent logging across all components. It supports text and JSON
// output, configurable log levels, and component-based loggers. Text output
// on a terminal is colorized with tint.
//
// Usage:
//
//	// Initialize at startup
//	logging.Init(slog.LevelInfo, "text")
//	logging.Init(slog.LevelDebug, "json")
//
//	// Get a component logger
//	log := logging.Component("ingest")
//	log.Info("run finished", "source", "EC", "rows", 2976)
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Logger is the global logger instance.
var Logger *slog.Logger

// Init initializes the global logger with the specified level and format.
// Format is "text" or "json".
func Init(level slog.Level, format string) {
	InitWithHandler(NewHandler(os.Stdout, level, format))
}

// NewHandler builds the handler used by Init. Text output goes through tint
// when w is a terminal.
func NewHandler(w io.Writer, level slog.Level, format string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}

	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return tint.NewHandler(w, &tint.Options{
			Level:      level,
			AddSource:  opts.AddSource,
			TimeFormat: time.TimeOnly,
		})
	}

	return slog.NewTextHandler(w, opts)
}

// InitWithHandler initializes the global logger with a custom handler.
// This is useful for testing or custom output destinations.
func InitWithHandler(handler slog.Handler) {
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// ParseLevel parses debug, info, warn or error.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (allowed: debug, info, warn, error)", s)
	}
}

// With returns a new logger with additional attributes.
// These attributes are included in every log entry from the returned logger.
func With(args ...any) *slog.Logger {
	if Logger == nil {
		Init(slog.LevelInfo, "text")
	}
	return Logger.With(args...)
}

// Component returns a logger for a specific component.
//
// The returned logger resolves the global logger on every call, so package
// level component loggers pick up a later Init.
//
// Example:
//
//	log := logging.Component("ingest")
//	log.Info("started") // Output: time=... level=INFO component=ingest msg=started
func Component(name string) *slog.Logger {
	return slog.New(&componentHandler{
		apply: func(h slog.Handler) slog.Handler {
			return h.WithAttrs([]slog.Attr{slog.String("component", name)})
		},
	})
}

// componentHandler forwards to whatever Logger currently holds.
type componentHandler struct {
	apply func(slog.Handler) slog.Handler
}

func (h *componentHandler) target() slog.Handler {
	if Logger == nil {
		Init(slog.LevelInfo, "text")
	}
	return h.apply(Logger.Handler())
}

func (h *componentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.target().Enabled(ctx, level)
}

func (h *componentHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.target().Handle(ctx, r)
}

func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prev := h.apply
	return &componentHandler{apply: func(t slog.Handler) slog.Handler {
		return prev(t).WithAttrs(attrs)
	}}
}

func (h *componentHandler) WithGroup(name string) slog.Handler {
	prev := h.apply
	return &componentHandler{apply: func(t slog.Handler) slog.Handler {
		return prev(t).WithGroup(name)
	}}
}

// WithContext returns a logger that includes context values.
func WithContext(ctx context.Context) *slog.Logger {
	if Logger == nil {
		Init(slog.LevelInfo, "text")
	}

	logger := Logger

	if source, ok := ctx.Value(contextKeySource).(string); ok {
		logger = logger.With("source", source)
	}
	if runID, ok := ctx.Value(contextKeyRunID).(string); ok {
		logger = logger.With("run_id", runID)
	}

	return logger
}

// Context key types for type-safe context value extraction.
type contextKey int

const (
	contextKeySource contextKey = iota
	contextKeyRunID
)

// ContextWithSource adds a counter source tag to the context for logging.
func ContextWithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, contextKeySource, source)
}

// ContextWithRunID adds a run identifier to the context for logging.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, contextKeyRunID, runID)
}
