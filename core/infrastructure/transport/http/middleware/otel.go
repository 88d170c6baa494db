package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/hyperterse/fanout/core/observability"
	ctxutil "github.com/hyperterse/fanout/core/shared/context"
)

// Tracing middleware for OpenTelemetry tracing. Spans are named after the
// matched route pattern.
func Tracing(next http.Handler) http.Handler {
	return otelhttp.NewHandler(
		next,
		"http.request",
		otelhttp.WithPropagators(otel.GetTextMapPropagator()),
		otelhttp.WithTracerProvider(otel.GetTracerProvider()),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				return r.Method + " " + rctx.RoutePattern()
			}
			return r.Method + " " + r.URL.Path
		}),
	)
}

// RequestContext copies the chi request ID and the active trace ID into the
// request context so dispatches can reuse them as their identifiers.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := chimiddleware.GetReqID(ctx)
		if requestID == "" {
			requestID = ctxutil.GenerateRequestID()
		}
		ctx = ctxutil.WithRequestID(ctx, requestID)
		if traceID := observability.TraceID(ctx); traceID != "" {
			ctx = ctxutil.WithTraceID(ctx, traceID)
		}
		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
