// Package logger builds the process logger.
package logger

import (
	"io"
	stdlog "log"

	"github.com/rs/zerolog"
)

// New constructs a zerolog.Logger writing to w through a RedactWriter.
// format "text" selects the console writer, anything else JSON. Unknown
// levels fall back to info.
func New(level, format string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	redacted := NewRedactWriter(w)
	var out io.Writer = redacted
	if format == "text" {
		cw := zerolog.NewConsoleWriter()
		cw.Out = redacted
		out = cw
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Std adapts l for libraries that take a standard library *log.Logger.
func Std(l zerolog.Logger, component string) *stdlog.Logger {
	return stdlog.New(l.With().Str("component", component).Logger(), "", 0)
}
