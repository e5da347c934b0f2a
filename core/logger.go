package core

import (
	"context"
	"log/slog"
	"time"
)

// Logger interface for structured logging
// Implementations can provide custom logging behavior (e.g., integration with slog, zap, etc.)
type Logger interface {
	// Debug logs a debug message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields
	Info(msg string, fields ...Field)

	// Warn logs a warning message with optional fields
	Warn(msg string, fields ...Field)

	// Error logs an error message with optional fields
	Error(msg string, fields ...Field)
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value any
}

// F creates a new Field with the given key and value
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// SlogLogger adapts a *slog.Logger to Logger.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps l. A nil logger falls back to slog.Default().
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{logger: l}
}

// NewDefaultLogger logs through slog.Default().
func NewDefaultLogger() *SlogLogger {
	return NewSlogLogger(nil)
}

// Slog returns the wrapped logger.
func (l *SlogLogger) Slog() *slog.Logger { return l.logger }

func (l *SlogLogger) Debug(msg string, fields ...Field) { l.log(slog.LevelDebug, msg, fields) }
func (l *SlogLogger) Info(msg string, fields ...Field)  { l.log(slog.LevelInfo, msg, fields) }
func (l *SlogLogger) Warn(msg string, fields ...Field)  { l.log(slog.LevelWarn, msg, fields) }
func (l *SlogLogger) Error(msg string, fields ...Field) { l.log(slog.LevelError, msg, fields) }

func (l *SlogLogger) log(level slog.Level, msg string, fields []Field) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}
	attrs := make([]slog.Attr, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	l.logger.LogAttrs(ctx, level, msg, attrs...)
}

// NoOpLogger is a logger that discards all log messages
// Useful for tests or when logging is not desired
type NoOpLogger struct{}

// NewNoOpLogger creates a new NoOpLogger
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (l *NoOpLogger) Debug(msg string, fields ...Field) {}
func (l *NoOpLogger) Info(msg string, fields ...Field)  {}
func (l *NoOpLogger) Warn(msg string, fields ...Field)  {}
func (l *NoOpLogger) Error(msg string, fields ...Field) {}

// =============================================================================
// Retry Policy
// =============================================================================

// RetryPolicy defines how Submit retries while a bounded pending queue is full.
type RetryPolicy struct {
	// MaxRetries is the maximum number of retry attempts (0 = no retry, 1 = one retry)
	MaxRetries int

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration

	// BackoffRatio is the multiplier for delay after each retry (e.g., 2.0 for exponential)
	// For example, with InitialDelay=50ms and BackoffRatio=2.0:
	// - Retry 1 delay: 50ms
	// - Retry 2 delay: 100ms
	// - Retry 3 delay: 200ms (capped by MaxDelay)
	BackoffRatio float64
}

// DefaultRetryPolicy returns a short, bounded backoff suitable for Submit.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		BackoffRatio: 2.0,
	}
}

// NoRetry returns a retry policy with no retries
func NoRetry() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   0,
		InitialDelay: 0,
		MaxDelay:     0,
		BackoffRatio: 1.0,
	}
}

// calculateDelay calculates the delay for the given retry attempt
// attempt is 0-indexed (0 = first retry, 1 = second retry, etc.)
func (p RetryPolicy) calculateDelay(attempt int) time.Duration {
	if p.InitialDelay == 0 {
		return 0
	}

	// Calculate exponential backoff
	delay := float64(p.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= p.BackoffRatio
	}

	// Cap at MaxDelay
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	return time.Duration(delay)
}
