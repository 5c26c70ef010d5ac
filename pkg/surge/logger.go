package surge

import (
	"io"
	"log/slog"
	"os"
)

// LogFormat selects the slog.Handler used by NewLogger.
type LogFormat string

const (
	// LogFormatJSON produces structured JSON log lines. Best for
	// production and log aggregation.
	LogFormatJSON LogFormat = "json"
	// LogFormatText produces human-readable key=value log lines. Best
	// for local development.
	LogFormatText LogFormat = "text"
)

// NewLogger builds an *slog.Logger writing to w in the given format at
// the given level. Actual formatting (timestamps, colorization, static
// fields) is deliberately left to slog's own handlers rather than
// reimplemented here — the framework only needs a logger to hand to its
// components, not a logging product of its own.
func NewLogger(format LogFormat, level slog.Level, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == LogFormatText {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}
