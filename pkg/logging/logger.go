// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ValidLevel reports whether level names a supported level.
func ValidLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
		return true
	default:
		return false
	}
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithRunID returns a copy of ctx whose logger carries run_id. Loggers
// obtained through FromContext pick it up.
func WithRunID(ctx context.Context, component, runID string) context.Context {
	logger := NewLogger(component).With().Str("run_id", runID).Logger()
	return logger.WithContext(ctx)
}

// FromContext returns the logger stored in ctx, or a component logger when
// there is none.
func FromContext(ctx context.Context, component string) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l.With().Str("component", component).Logger()
	}
	return NewLogger(component)
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit, revalidation)
//   - Request flow (status codes, durations, retries scheduled)
//   - Worker lifecycle
//
// Info: Normal operation events
//   - Run start/finish with totals
//   - Customer batch start/finish
//   - Output files written
//   - 304 Not Modified responses
//
// Warn: Warning conditions that don't prevent operation
//   - Per-identifier fetch failures (recorded as Failed outcomes)
//   - Retry budgets exhausted
//   - Cache errors (fetch proceeds without cache)
//   - Rate limit waits and Retry-After pauses
//
// Error: Error conditions requiring attention
//   - Authentication failures (run aborted)
//   - Output write failures
//   - Configuration errors
//
// Context Fields:
//   - run_id: Identifier of one pipeline run
//   - customer_id: Customer whose batch is processed
//   - identifier: Normalized NR identifier
//   - status_code: HTTP status code
//   - duration: Request or batch duration
//   - error_class: Error classification (client, server, rate_limit, network, timeout, auth)
//   - attempts: Attempts made for one identifier
