package context

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// DispatchIDKey is the context key for the ID of an in-flight fan-out
	DispatchIDKey contextKey = "dispatch_id"
	// TraceIDKey is the context key for trace ID
	TraceIDKey contextKey = "trace_id"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithDispatchID adds a dispatch ID to the context
func WithDispatchID(ctx context.Context, dispatchID string) context.Context {
	return context.WithValue(ctx, DispatchIDKey, dispatchID)
}

// GetDispatchID retrieves the dispatch ID from context
func GetDispatchID(ctx context.Context) string {
	if id, ok := ctx.Value(DispatchIDKey).(string); ok {
		return id
	}
	return ""
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from context
func GetTraceID(ctx context.Context) string {
	if id, ok := ctx.Value(TraceIDKey).(string); ok {
		return id
	}
	return ""
}

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	return uuid.NewString()
}

// EnsureDispatchID returns ctx carrying a dispatch ID, reusing the request
// ID when one is present.
func EnsureDispatchID(ctx context.Context) (context.Context, string) {
	if id := GetDispatchID(ctx); id != "" {
		return ctx, id
	}
	id := GetRequestID(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	return WithDispatchID(ctx, id), id
}
