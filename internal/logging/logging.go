// Package logging builds the process logger: zerolog with a console writer,
// info level by default, debug level in verbose mode.
package logging

import (
	"io"

	"github.com/rs/zerolog"
)

// New returns a logger writing human-readable console lines to out. With
// verbose set, debug-level events pass through as well.
func New(out io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "15:04:05",
	}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}
