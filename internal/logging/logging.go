// Package logging builds the process-wide zerolog.Logger, grounded on
// adred-codev-ws_poc/ws's internal/shared/monitoring/logger.go: structured
// JSON by default, an optional human-readable console format, and a
// deferrable panic-recovery helper for long-running goroutines.
package logging

import (
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// New builds the service logger from the level/format pair loaded by
// internal/config. An unrecognized level falls back to info rather than
// failing startup, since config.Load already validates the enum.
func New(level, format string) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(level))

	var output io.Writer = os.Stdout
	if format == "pretty" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(output).With().Timestamp().Str("service", "salesd").Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// RecoverPanic logs a recovered panic with its stack trace but does not
// re-panic, so one connection's bad handler never brings down the process.
// Call as `defer logging.RecoverPanic(logger, "session.reader")`.
func RecoverPanic(logger zerolog.Logger, goroutine string) {
	if r := recover(); r != nil {
		logger.Error().
			Str("goroutine", goroutine).
			Interface("panic", r).
			Str("stack", string(debug.Stack())).
			Msg("recovered from panic")
	}
}
