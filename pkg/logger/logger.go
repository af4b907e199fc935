// Package logger provides the structured zerolog logger shared by the engine components.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const serviceName = "giveaway-engine"

// Logger wraps zerolog logger
type Logger struct {
	logger zerolog.Logger
}

// New creates a logger for the configured format and output. output is
// "stdout", "stderr" or a file path opened for appending.
func New(level, format, output string) (*Logger, error) {
	var writer io.Writer
	switch output {
	case "", "stdout":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", output, err)
		}
		writer = file
	}

	if format == "console" || format == "text" {
		writer = zerolog.ConsoleWriter{Out: writer}
	}

	return NewWithWriter(writer, level), nil
}

// NewWithWriter creates a JSON logger writing to w.
func NewWithWriter(w io.Writer, level string) *Logger {
	return &Logger{
		logger: zerolog.New(w).
			Level(parseLevel(level)).
			With().
			Timestamp().
			Str("service", serviceName).
			Logger(),
	}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// parseLevel falls back to info for unknown levels.
func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		return zerolog.WarnLevel
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return parsed
}

// Debug logs a debug message
func (l *Logger) Debug() *zerolog.Event {
	return l.logger.Debug()
}

// Info logs an info message
func (l *Logger) Info() *zerolog.Event {
	return l.logger.Info()
}

// Warn logs a warning message
func (l *Logger) Warn() *zerolog.Event {
	return l.logger.Warn()
}

// Error logs an error message
func (l *Logger) Error() *zerolog.Event {
	return l.logger.Error()
}

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) *Logger {
	return &Logger{logger: l.logger.With().Str("component", name).Logger()}
}

// Level returns the minimum level this logger emits.
func (l *Logger) Level() zerolog.Level {
	return l.logger.GetLevel()
}
