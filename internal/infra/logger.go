package infra

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger aliases zerolog.Logger so packages can accept a logger without
// importing the third-party module directly.
type Logger = zerolog.Logger

// NewLogger builds the service logger: JSON at info level, or a console
// writer at debug level when appEnv is "development".
func NewLogger(appEnv string) Logger {
	return NewLoggerTo(os.Stdout, appEnv)
}

// NewLoggerTo is NewLogger writing to w; command-line tools log to stderr so
// stdout stays machine-readable.
func NewLoggerTo(w io.Writer, appEnv string) Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("env", appEnv).
		Logger()

	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339})
	}

	return logger
}

// DiscardLogger returns a logger that drops everything; used when callers
// pass no logger.
func DiscardLogger() *Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// Component tags a logger with the emitting subsystem.
func Component(l Logger, name string) Logger {
	return l.With().Str("component", name).Logger()
}
