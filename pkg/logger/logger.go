// Package logger provides structured logging for the mediation adapter
package logger

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// serviceName is attached to every log line
const serviceName = "medbridge"

// contextKey is a private type for context keys to avoid collisions
type contextKey string

// Context keys for request-scoped log fields
const (
	RequestIDKey   contextKey = "request_id"
	PlacementIDKey contextKey = "placement_id"
)

// Log is the package-wide logger. Call Init before use; the zero value
// logs nothing useful.
var Log zerolog.Logger

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	TimeFormat string
}

// DefaultConfig returns the logger configuration from the environment
func DefaultConfig() Config {
	return Config{
		Level:      getEnv("LOG_LEVEL", "info"),
		Format:     getEnv("LOG_FORMAT", "json"),
		TimeFormat: time.RFC3339,
	}
}

// Init configures the package logger. Unknown levels fall back to info.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = cfg.TimeFormat

	var out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: cfg.TimeFormat}
	if cfg.Format == "json" {
		Log = zerolog.New(os.Stdout).
			Level(level).
			With().
			Timestamp().
			Str("service", serviceName).
			Logger()
		return
	}

	Log = zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// getEnv returns the environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// WithRequestID stores the request id in the context for FromContext
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithPlacementID stores the placement id in the context for FromContext
func WithPlacementID(ctx context.Context, placementID string) context.Context {
	return context.WithValue(ctx, PlacementIDKey, placementID)
}

// FromContext builds a logger carrying the ids stored in the context
func FromContext(ctx context.Context) zerolog.Logger {
	logger := Log

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		logger = logger.With().Str("request_id", requestID).Logger()
	}
	if placementID, ok := ctx.Value(PlacementIDKey).(string); ok && placementID != "" {
		logger = logger.With().Str("placement_id", placementID).Logger()
	}

	return logger
}

// Adapter returns a logger for the adapter facade
func Adapter() zerolog.Logger {
	return Log.With().Str("component", "adapter").Logger()
}

// Partner returns a logger for the Vantage client
func Partner() zerolog.Logger {
	return Log.With().Str("component", "partner").Logger()
}

// HTTP returns a logger for the HTTP layer
func HTTP() zerolog.Logger {
	return Log.With().Str("component", "http").Logger()
}

// Storage returns a logger for the placement store
func Storage() zerolog.Logger {
	return Log.With().Str("component", "storage").Logger()
}

// Placement returns a logger scoped to one placement
func Placement(placementID string) zerolog.Logger {
	return Log.With().Str("placement_id", placementID).Logger()
}

// RequestLogger tracks one inbound request's log fields and duration
type RequestLogger struct {
	logger zerolog.Logger
	start  time.Time
}

// NewRequestLogger creates a logger for one request
func NewRequestLogger(requestID string) *RequestLogger {
	return &RequestLogger{
		logger: Log.With().Str("request_id", requestID).Logger(),
		start:  time.Now(),
	}
}

// WithField returns a copy with an extra field attached
func (rl *RequestLogger) WithField(key string, value interface{}) *RequestLogger {
	return &RequestLogger{
		logger: rl.logger.With().Interface(key, value).Logger(),
		start:  rl.start,
	}
}

// Info logs at info level
func (rl *RequestLogger) Info(msg string) {
	rl.logger.Info().Msg(msg)
}

// Error logs at error level with the given error
func (rl *RequestLogger) Error(msg string, err error) {
	rl.logger.Error().Err(err).Msg(msg)
}

// Duration returns the time elapsed since the request started
func (rl *RequestLogger) Duration() time.Duration {
	return time.Since(rl.start)
}

// LogComplete logs the request completion with status and duration
func (rl *RequestLogger) LogComplete(status int) {
	rl.logger.Info().
		Int("status", status).
		Float64("duration_ms", float64(rl.Duration().Microseconds())/1000.0).
		Msg("request completed")
}
