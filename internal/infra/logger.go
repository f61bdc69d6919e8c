package infra

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger aliases zerolog.Logger so packages depend on infra rather than the
// logging module directly.
type Logger = zerolog.Logger

// NewLogger builds the process logger for appEnv. Development gets a
// console writer at debug level; "cli" logs warnings to stderr so command
// output stays clean; everything else emits JSON at info level.
func NewLogger(appEnv string) zerolog.Logger {
	return newLogger(appEnv, os.Stdout, os.Stderr)
}

func newLogger(appEnv string, stdout, stderr io.Writer) zerolog.Logger {
	switch appEnv {
	case "development":
		return zerolog.New(zerolog.ConsoleWriter{Out: stdout, TimeFormat: time.RFC3339}).
			Level(zerolog.DebugLevel).
			With().Timestamp().Str("service", "mediagen").
			Logger()
	case "cli":
		return zerolog.New(zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.Kitchen}).
			Level(zerolog.WarnLevel).
			With().Timestamp().
			Logger()
	default:
		return zerolog.New(stdout).
			Level(zerolog.InfoLevel).
			With().Timestamp().Str("service", "mediagen").Str("env", appEnv).
			Logger()
	}
}
