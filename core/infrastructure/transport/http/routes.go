package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hyperterse/fanout/core/application/services"
	"github.com/hyperterse/fanout/core/infrastructure/logging"
	"github.com/hyperterse/fanout/core/infrastructure/transport/http/dto"
	"github.com/hyperterse/fanout/core/infrastructure/transport/http/handlers"
	httpmiddleware "github.com/hyperterse/fanout/core/infrastructure/transport/http/middleware"
)

// RouteOptions configures optional route behaviour.
type RouteOptions struct {
	// Limiter and RateLimit throttle the fan-out routes per client IP,
	// RateLimit requests per minute. Either unset disables throttling.
	Limiter   httpmiddleware.RateLimiter
	RateLimit int
}

// RegisterRoutes registers all HTTP routes
func RegisterRoutes(r chi.Router, engine handlers.Engine, opts RouteOptions) {
	log := logging.New("routes")
	h := handlers.New(engine)

	throttle := func(next http.Handler) http.Handler { return next }
	if opts.Limiter != nil && opts.RateLimit > 0 {
		throttle = httpmiddleware.RateLimitByIP(opts.Limiter, opts.RateLimit, time.Minute)
		log.Infof("Rate limiting fan-out routes to %d request(s) per minute", opts.RateLimit)
	}

	r.Get("/heartbeat", h.Heartbeat)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/connections", func(r chi.Router) {
		r.Get("/", h.ListConnections)
		r.With(httpmiddleware.ValidateBody[services.AddConnectionRequest]()).Post("/", h.AddConnection)
		r.Delete("/{name}", h.RemoveConnection)
		r.Post("/{name}/validate", h.ValidateConnection)
	})

	r.With(throttle, httpmiddleware.ValidateBody[services.RunQueryRequest]()).Post("/query", h.RunQuery)
	r.With(throttle, httpmiddleware.ValidateBody[dto.CompareSchemasRequest]()).Post("/schemas/compare", h.CompareSchemas)

	routes := []string{
		"GET /heartbeat", "GET /metrics",
		"GET /connections", "POST /connections", "DELETE /connections/{name}", "POST /connections/{name}/validate",
		"POST /query", "POST /schemas/compare",
	}
	log.Infof("Routes registered: %d", len(routes))
	for _, route := range routes {
		log.Debugf("  %s", route)
	}
}
