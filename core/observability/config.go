package observability

import (
	"os"
	"strconv"
	"strings"
)

// Config controls trace and metric export. Prometheus metrics are always
// collected; OTLP export only happens when Enabled is set.
type Config struct {
	Enabled           bool    `yaml:"enabled" json:"enabled"`
	TracesEnabled     bool    `yaml:"traces_enabled" json:"traces_enabled"`
	MetricsEnabled    bool    `yaml:"metrics_enabled" json:"metrics_enabled"`
	ServiceName       string  `yaml:"service_name" json:"service_name"`
	ServiceVersion    string  `yaml:"service_version" json:"service_version"`
	Environment       string  `yaml:"environment" json:"environment"`
	OTLPEndpoint      string  `yaml:"endpoint" json:"endpoint"`
	TraceSamplingRate float64 `yaml:"trace_sampling_ratio" json:"trace_sampling_ratio" validate:"gte=0,lte=1"`
}

// DefaultConfig returns export disabled with local collector defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:           false,
		TracesEnabled:     true,
		MetricsEnabled:    true,
		ServiceName:       "fanout",
		ServiceVersion:    "dev",
		Environment:       "development",
		OTLPEndpoint:      "localhost:4317",
		TraceSamplingRate: 1.0,
	}
}

// ResolveConfig applies FANOUT_OTEL_* environment overrides to base.
func ResolveConfig(base Config) Config {
	cfg := base

	overrideBool("FANOUT_OTEL_ENABLED", &cfg.Enabled)
	overrideBool("FANOUT_OTEL_TRACES_ENABLED", &cfg.TracesEnabled)
	overrideBool("FANOUT_OTEL_METRICS_ENABLED", &cfg.MetricsEnabled)
	overrideString("FANOUT_OTEL_SERVICE_NAME", &cfg.ServiceName)
	overrideString("FANOUT_OTEL_SERVICE_VERSION", &cfg.ServiceVersion)
	overrideString("FANOUT_OTEL_ENVIRONMENT", &cfg.Environment)
	overrideString("FANOUT_OTEL_ENDPOINT", &cfg.OTLPEndpoint)
	overrideFloat("FANOUT_OTEL_TRACE_SAMPLING_RATIO", &cfg.TraceSamplingRate)

	if cfg.TraceSamplingRate < 0 {
		cfg.TraceSamplingRate = 0
	}
	if cfg.TraceSamplingRate > 1 {
		cfg.TraceSamplingRate = 1
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = "fanout"
	}

	return cfg
}

func overrideString(name string, target *string) {
	if value := os.Getenv(name); value != "" {
		*target = value
	}
}

func overrideBool(name string, target *bool) {
	value := os.Getenv(name)
	if value == "" {
		return
	}
	parsed, err := strconv.ParseBool(value)
	if err == nil {
		*target = parsed
	}
}

func overrideFloat(name string, target *float64) {
	value := os.Getenv(name)
	if value == "" {
		return
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err == nil {
		*target = parsed
	}
}
