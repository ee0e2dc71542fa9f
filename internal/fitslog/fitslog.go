// Package fitslog provides the zerolog setup shared by every fitscat
// subcommand: a console writer for interactive use, JSON output for piped/
// batch runs, and the field names used consistently across the pipelines
// (path, hdu, row).
package fitslog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a logger writing to w. When pretty is true (an interactive
// terminal), output goes through zerolog's console writer; otherwise it is
// newline-delimited JSON suitable for log aggregation.
func New(w io.Writer, pretty bool, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Default builds a logger writing to stderr, console-formatted when stderr
// is a terminal.
func Default(verbose bool) zerolog.Logger {
	pretty := isTerminal(os.Stderr)
	return New(os.Stderr, pretty, verbose)
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// WithPath returns a child logger tagging every subsequent event with the
// FITS file path being processed.
func WithPath(l zerolog.Logger, path string) zerolog.Logger {
	return l.With().Str("path", path).Logger()
}

// RowSkipped logs a row-level decode failure at warn level; the row is
// skipped and processing continues, per the pipeline's error-tolerance
// policy for per-row (as opposed to per-file I/O) errors.
func RowSkipped(l zerolog.Logger, hduIndex int, row int64, err error) {
	l.Warn().Int("hdu", hduIndex).Int64("row", row).Err(err).Msg("row skipped")
}
