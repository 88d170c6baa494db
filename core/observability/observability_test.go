package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveConfig(t *testing.T) {
	t.Setenv("FANOUT_OTEL_ENABLED", "true")
	t.Setenv("FANOUT_OTEL_SERVICE_NAME", "fanout-test")
	t.Setenv("FANOUT_OTEL_TRACE_SAMPLING_RATIO", "4")

	cfg := ResolveConfig(DefaultConfig())

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "fanout-test", cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.TraceSamplingRate)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
}

func TestResolveConfig_IgnoresMalformed(t *testing.T) {
	t.Setenv("FANOUT_OTEL_ENABLED", "maybe")
	cfg := ResolveConfig(DefaultConfig())
	assert.False(t, cfg.Enabled)
}

func TestRedactAttributeValue(t *testing.T) {
	assert.Equal(t, "[REDACTED]", RedactAttributeValue("db.password", "hunter2"))
	assert.Equal(t, "[REDACTED]", RedactAttributeValue("API_KEY", "abc"))
	assert.Equal(t, "disable", RedactAttributeValue("sslmode", "disable"))

	assert.Equal(t, map[string]string{"sslmode": "require", "sslkey": "[REDACTED]"},
		RedactOptions(map[string]string{"sslmode": "require", "sslkey": "/secret/key"}))
	assert.Nil(t, RedactOptions(nil))
}

func TestRecordDispatchUnit(t *testing.T) {
	before := testutil.ToFloat64(DispatchUnitsTotal.WithLabelValues("sqlite", "TIMEOUT"))

	RecordDispatchUnit(context.Background(), "sqlite", "TIMEOUT", 20*time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(DispatchUnitsTotal.WithLabelValues("sqlite", "TIMEOUT")))
}

func TestSetup_Disabled(t *testing.T) {
	ctx := context.Background()
	p, err := Setup(ctx, DefaultConfig(), "1.2.3")
	require.NoError(t, err)

	assert.Equal(t, "1.2.3", ActiveConfig().ServiceVersion)
	assert.False(t, ActiveConfig().Enabled)

	spanCtx, span := StartSpan(ctx, "test")
	span.End()
	assert.NotNil(t, spanCtx)
	assert.NoError(t, p.Shutdown(ctx))
}
