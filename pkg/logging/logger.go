package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger struct {
	*slog.Logger
}

type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// ContextKey for correlation IDs
type contextKey string

const correlationIDKey contextKey = "correlation_id"

// Options selects the level and destination of log output.
type Options struct {
	Level LogLevel

	// Writer defaults to os.Stdout.
	Writer io.Writer

	// File, when set, also writes to a size-rotated file.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func NewLogger(level LogLevel) *Logger {
	return NewLoggerWithOptions(Options{Level: level})
}

func NewLoggerWithOptions(opts Options) *Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	if opts.File != "" {
		w = io.MultiWriter(w, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		})
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: toSlogLevel(opts.Level)})
	return &Logger{Logger: slog.New(handler)}
}

// Discard returns a logger that writes nowhere.
func Discard() *Logger {
	return NewLoggerWithOptions(Options{Level: LevelError, Writer: io.Discard})
}

func toSlogLevel(level LogLevel) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithCorrelationID adds a correlation ID to the context
func WithCorrelationID(ctx context.Context) context.Context {
	if GetCorrelationID(ctx) == "" {
		return context.WithValue(ctx, correlationIDKey, uuid.New().String())
	}
	return ctx
}

// ContextWithCorrelationID stores an ID received from upstream.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return WithCorrelationID(ctx)
	}
	return context.WithValue(ctx, correlationIDKey, id)
}

// GetCorrelationID retrieves the correlation ID from context
func GetCorrelationID(ctx context.Context) string {
	if correlationID, ok := ctx.Value(correlationIDKey).(string); ok {
		return correlationID
	}
	return ""
}

func withCorrelation(ctx context.Context, args []any) []any {
	if correlationID := GetCorrelationID(ctx); correlationID != "" {
		args = append(args, "correlation_id", correlationID)
	}
	return args
}

// Debug logs debug level messages with correlation ID
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.Logger.Debug(msg, withCorrelation(ctx, args)...)
}

// Info logs info level messages with correlation ID
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.Logger.Info(msg, withCorrelation(ctx, args)...)
}

// Warn logs warn level messages with correlation ID
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.Logger.Warn(msg, withCorrelation(ctx, args)...)
}

// Error logs error level messages with correlation ID
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.Logger.Error(msg, withCorrelation(ctx, args)...)
}

// LogLinkOperation logs mapping operations without the destination URL
func (l *Logger) LogLinkOperation(ctx context.Context, operation, key string, success bool) {
	l.Info(ctx, "link operation",
		"operation", operation,
		"key", key,
		"success", success,
	)
}

// LogAllocation records how many candidates a key took.
func (l *Logger) LogAllocation(ctx context.Context, key string, custom bool, attempts int) {
	l.Debug(ctx, "key allocated",
		"key", key,
		"custom", custom,
		"attempts", attempts,
	)
}

// LogKeySpaceExhausted is a capacity signal: random keys are colliding
// often enough to hit the retry ceiling.
func (l *Logger) LogKeySpaceExhausted(ctx context.Context, attempts, keyLength int) {
	l.Error(ctx, "key space exhausted",
		"attempts", attempts,
		"key_length", keyLength,
		"capacity_signal", true,
	)
}

// LogResolution logs a redirect outcome. Misses and expiries look the same
// to the visitor but are kept apart here.
func (l *Logger) LogResolution(ctx context.Context, key, outcome string) {
	if outcome == "error" {
		l.Warn(ctx, "key resolution", "key", key, "outcome", outcome)
		return
	}
	l.Debug(ctx, "key resolution", "key", key, "outcome", outcome)
}

// LogURLValidation logs URL validation without the actual URL
func (l *Logger) LogURLValidation(ctx context.Context, valid bool, scheme string) {
	l.Debug(ctx, "url validation",
		"valid", valid,
		"scheme", scheme,
	)
}

// LogAuthEvent logs authentication events without sensitive data
func (l *Logger) LogAuthEvent(ctx context.Context, event string, userID string, success bool) {
	l.Info(ctx, "auth event",
		"event", event,
		"user_hash", hashSensitiveData(userID),
		"success", success,
	)
}

// Simple hash function for sensitive data logging
func hashSensitiveData(data string) string {
	if len(data) < 8 {
		return "***"
	}
	// Show first 3 and last 3 chars with stars in middle
	return data[:3] + "***" + data[len(data)-3:]
}
