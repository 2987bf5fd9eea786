// Package logger provides the logging facade for the orchestrator.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

// Setup configures the global logger from level and format strings.
// Format "json" writes raw zerolog JSON, anything else the console format.
func Setup(level, format string, out io.Writer) {
	if out == nil {
		out = os.Stderr
	}
	if strings.ToLower(format) != "json" {
		out = zerolog.ConsoleWriter{Out: out}
	}
	log = zerolog.New(out).With().Timestamp().Logger()
	SetLevelFromString(level)
}

// SetLevelFromString sets the global log level.
func SetLevelFromString(level string) {
	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// EnableDebug enables debug logging.
func EnableDebug() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// IsDebugEnabled checks whether debug logging is enabled.
func IsDebugEnabled() bool {
	return zerolog.GlobalLevel() <= zerolog.DebugLevel
}

// L returns the underlying zerolog logger for structured call sites.
func L() *zerolog.Logger { return &log }

// Debug logs a debug message.
func Debug(format string, args ...interface{}) {
	log.Debug().Msgf(format, args...)
}

// Info logs an informational message.
func Info(format string, args ...interface{}) {
	log.Info().Msgf(format, args...)
}

// Warn logs a warning.
func Warn(format string, args ...interface{}) {
	log.Warn().Msgf(format, args...)
}

// Error logs an error.
func Error(format string, args ...interface{}) {
	log.Error().Msgf(format, args...)
}
