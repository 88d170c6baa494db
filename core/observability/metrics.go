package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Prometheus collectors served on /metrics.
var (
	DispatchUnitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_dispatch_units_total",
			Help: "Total number of per-connection query executions by outcome",
		},
		[]string{"kind", "outcome"},
	)

	DispatchUnitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fanout_dispatch_unit_duration_seconds",
			Help:    "Per-connection query execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_merges_total",
			Help: "Total number of merges by strategy and result",
		},
		[]string{"merge_type", "result"},
	)
)

type instruments struct {
	dispatchUnitsTotal  metric.Int64Counter
	dispatchDuration    metric.Float64Histogram
	mergesTotal         metric.Int64Counter
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram
}

var (
	metricsOnce sync.Once
	m           instruments
)

func buildMeterProvider(ctx context.Context, cfg Config) (*sdkmetric.MeterProvider, error) {
	if !cfg.Enabled || !cfg.MetricsEnabled {
		return sdkmetric.NewMeterProvider(), nil
	}

	exporter, err := otlpmetricgrpc.New(
		ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := buildResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter),
		),
	), nil
}

// initInstruments binds OTel instruments to the global meter provider on
// first use.
func initInstruments() {
	metricsOnce.Do(func() {
		meter := otel.Meter("fanout")
		m.dispatchUnitsTotal, _ = meter.Int64Counter("fanout.dispatch.units_total")
		m.dispatchDuration, _ = meter.Float64Histogram("fanout.dispatch.unit_duration_ms")
		m.mergesTotal, _ = meter.Int64Counter("fanout.merge.total")
		m.httpRequestsTotal, _ = meter.Int64Counter("fanout.http.server.requests_total")
		m.httpRequestDuration, _ = meter.Float64Histogram("fanout.http.server.request_duration_ms")
	})
}

// RecordDispatchUnit records one per-connection execution. outcome is
// OutcomeSuccess or the error kind.
func RecordDispatchUnit(ctx context.Context, kind, outcome string, duration time.Duration) {
	if kind == "" {
		kind = "unknown"
	}
	DispatchUnitsTotal.WithLabelValues(kind, outcome).Inc()
	DispatchUnitDuration.WithLabelValues(kind).Observe(duration.Seconds())

	initInstruments()
	attrs := metric.WithAttributes(
		attribute.String(AttrBackendKind, kind),
		attribute.String(AttrOutcome, outcome),
	)
	m.dispatchUnitsTotal.Add(ctx, 1, attrs)
	m.dispatchDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

// RecordMerge records one merge attempt.
func RecordMerge(ctx context.Context, mergeType string, success bool) {
	result := "ok"
	if !success {
		result = "error"
	}
	MergesTotal.WithLabelValues(mergeType, result).Inc()

	initInstruments()
	m.mergesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrMergeType, mergeType),
		attribute.Bool("success", success),
	))
}

// RecordHTTPRequest mirrors the Prometheus HTTP middleware into OTel.
func RecordHTTPRequest(ctx context.Context, method, route string, status int, durationMS float64) {
	initInstruments()
	attrs := metric.WithAttributes(
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPRoute, route),
		attribute.Int(AttrHTTPStatusCode, status),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, durationMS, attrs)
}
