package cli

import (
	"io"
	"log/slog"
)

// LogOptions selects the handler NewLogger installs.
type LogOptions struct {
	// Verbose enables debug records.
	Verbose bool

	// JSON switches from the text handler to one JSON object per line.
	JSON bool
}

// NewLogger builds the process logger writing to w (normally stderr, so
// stdout stays clean for reports).
func NewLogger(w io.Writer, opts LogOptions) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	ho := &slog.HandlerOptions{Level: level}
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(w, ho))
	}
	return slog.New(slog.NewTextHandler(w, ho))
}
