/*
Package logx provides a structured logging wrapper based on zerolog.

It initializes the global logger, selects the output format (JSON or console)
based on the environment, and offers level helpers (Debug, Info, Warn, Error,
Fatal) that accept optional key-value fields.
*/
package logx

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitGlobalLogger initializes the global zerolog instance.
// Development mode logs at Debug level through a colored ConsoleWriter;
// otherwise logs are emitted as JSON at Info level. All entries carry a
// Unix timestamp and caller information.
func InitGlobalLogger(isDevelopment bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	if isDevelopment {
		logger = logger.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			NoColor:    false,
			TimeFormat: time.RFC3339,
		})
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	log.Logger = logger.With().Caller().Logger()
}

// Logger returns a pointer to the global zerolog.Logger instance.
// Components derive their own sub-loggers from it via With().
func Logger() *zerolog.Logger {
	return &log.Logger
}

// emit attaches the fields to the event and writes msg. Fields must come in
// key-value pairs; an odd trailing field is dropped with a notice so zerolog
// never panics on caller mistakes.
func emit(ev *zerolog.Event, msg string, fields []any) {
	if len(fields)%2 != 0 {
		ev = ev.Interface("dropped_field", fields[len(fields)-1])
		fields = fields[:len(fields)-1]
	}

	ev.Fields(fields).CallerSkipFrame(2).Msg(msg)
}

// Debug records a log message at the Debug level.
func Debug(msg string, fields ...any) {
	emit(Logger().Debug(), msg, fields)
}

// Info records a log message at the Info level.
func Info(msg string, fields ...any) {
	emit(Logger().Info(), msg, fields)
}

// Warn records a log message at the Warn level.
func Warn(msg string, fields ...any) {
	emit(Logger().Warn(), msg, fields)
}

// Error records a log message at the Error level, attaching err to the entry.
func Error(err error, msg string, fields ...any) {
	emit(Logger().Error().Err(err), msg, fields)
}

// Fatal records a log message at the Fatal level and terminates the process.
func Fatal(err error, msg string, fields ...any) {
	emit(Logger().Fatal().Err(err), msg, fields)
}
