// Package logging provides correlation-ID aware structured logging for the gateway and the
// study-assistant API client.
//
// Log lines are single JSON objects written through the standard log package, prefixed with
// the level ([INFO], [WARN], [ERROR]) so they can be filtered before parsing.
//
// Correlation IDs are uuid v4 strings carried in the context and forwarded upstream as the
// X-Request-ID header, so a gateway call and the study-assistant requests it caused share one ID.
package logging

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader is the header that carries correlation IDs.
const RequestIDHeader = "X-Request-ID"

type contextKey string

const requestIDKey contextKey = "request-id"

// Level is a log severity.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Fields are extra key/value pairs added to a log line.
type Fields map[string]interface{}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromCtx retrieves the request ID from the context.
// Returns empty string if not found.
func RequestIDFromCtx(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// EnsureRequestID returns ctx unchanged if it already carries a request ID, otherwise a
// child context with a freshly generated one.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	if id := RequestIDFromCtx(ctx); id != "" {
		return ctx, id
	}
	id := NewRequestID()
	return WithRequestID(ctx, id), id
}

// NewRequestID creates a new UUID-based request ID.
func NewRequestID() string {
	return uuid.New().String()
}

// Info logs at INFO level.
func Info(ctx context.Context, message string, fields Fields) {
	write(ctx, LevelInfo, message, fields)
}

// Warn logs at WARN level.
func Warn(ctx context.Context, message string, fields Fields) {
	write(ctx, LevelWarn, message, fields)
}

// Error logs at ERROR level. err is recorded under the "error" field.
func Error(ctx context.Context, message string, err error, fields Fields) {
	merged := make(Fields, len(fields)+1)
	for k, v := range fields {
		merged[k] = v
	}
	if err != nil {
		merged["error"] = err.Error()
	}
	write(ctx, LevelError, message, merged)
}

// Entry builds the log object for a message. Exposed for tests.
func Entry(ctx context.Context, message string, fields Fields) map[string]interface{} {
	entry := map[string]interface{}{
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"request_id": RequestIDFromCtx(ctx),
		"message":    message,
	}
	for k, v := range fields {
		entry[k] = v
	}
	return entry
}

func write(ctx context.Context, level Level, message string, fields Fields) {
	data, err := json.Marshal(Entry(ctx, message, fields))
	if err != nil {
		log.Printf("[ERROR] Failed to marshal log entry: %v", err)
		log.Printf("[%s] %s", level, message)
		return
	}
	log.Printf("[%s] %s", level, string(data))
}
