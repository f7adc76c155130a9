// Package logger provides structured logging on log/slog: a JSON handler
// tagged with the service name, level parsing for LOG_LEVEL, and trace IDs
// carried through context.Context so one bar can be followed from the
// stream consumer to the published results.
package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

// Init creates a JSON logger on stdout for the given service and installs it
// as the slog default.
func Init(service string, level slog.Level) *slog.Logger {
	return InitWriter(os.Stdout, service, level)
}

// InitWriter is Init with an explicit output.
func InitWriter(w io.Writer, service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	// Set as default so slog.Info() and the std log package share the handler
	slog.SetDefault(logger)

	return logger
}

// ParseLevel maps debug|info|warn|error (case-insensitive) to a slog level.
// Empty input is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// FromEnv initialises the service logger from LOG_LEVEL, falling back to
// info when the value is not recognised.
func FromEnv(service string) *slog.Logger {
	level, err := ParseLevel(os.Getenv("LOG_LEVEL"))
	l := Init(service, level)
	if err != nil {
		log.Printf("[logger] %v, using info", err)
	}
	return l
}

// WithTraceID stores a trace ID in the context for downstream propagation.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID extracts the trace ID from context. Returns "" if not set.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateTraceID builds a trace ID for a bar: "{exchange:token}-{tf}s-{unix}".
func GenerateTraceID(instrumentKey string, tf int, ts time.Time) string {
	return fmt.Sprintf("%s-%ds-%d", instrumentKey, tf, ts.Unix())
}

// LogWithTrace returns slog attributes including the trace ID from context.
// Usage: slog.Info("msg", logger.LogWithTrace(ctx)...)
func LogWithTrace(ctx context.Context) []any {
	tid := TraceID(ctx)
	if tid == "" {
		return nil
	}
	return []any{slog.String("trace_id", tid)}
}
