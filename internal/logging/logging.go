// Package logging builds the operator log stream.
//
// Events are written through a zerolog diode: a lock-free ring buffer that a
// background goroutine drains into the real writer. Emitting an event never
// blocks the caller. When the buffer is full the oldest events are dropped
// and the number of dropped events is reported on the next flush.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
)

// Options configures New.
type Options struct {
	// Level is a zerolog level name ("debug", "info", "warn", ...).
	Level string

	// Format is "console" for human-readable output or "json".
	Format string

	// Buffer is the diode ring size in events.
	Buffer int

	// Output defaults to os.Stderr.
	Output io.Writer
}

// Logger owns the asynchronous writer behind a zerolog.Logger.
type Logger struct {
	zerolog.Logger
	w diode.Writer
}

// New creates a logger whose writes are asynchronous.
func New(opts Options) (*Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	switch opts.Format {
	case "", "console":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime, NoColor: out != os.Stderr}
	case "json":
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	size := opts.Buffer
	if size <= 0 {
		size = 1000
	}

	w := diode.NewWriter(out, size, 10*time.Millisecond, func(missed int) {
		fmt.Fprintf(os.Stderr, "logger dropped %d messages\n", missed)
	})

	zl := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &Logger{Logger: zl, w: w}, nil
}

// Close flushes pending events and stops the drain goroutine.
func (l *Logger) Close() error {
	return l.w.Close()
}

// ParseLevel maps a level name to a zerolog level. An empty name is "info".
func ParseLevel(name string) (zerolog.Level, error) {
	if name == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}
