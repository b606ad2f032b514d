package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New initializes the base logger every component derives its sub-logger from.
// devMode enables human-readable console output at debug level; otherwise
// JSON lines at info level are written to stderr.
func New(devMode bool, service string) zerolog.Logger {
	return newLogger(os.Stderr, devMode, service)
}

func newLogger(out io.Writer, devMode bool, service string) zerolog.Logger {
	level := zerolog.InfoLevel
	if devMode {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		level = zerolog.DebugLevel
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if service != "" {
		ctx = ctx.Str("service", service)
	}
	return ctx.Logger()
}
