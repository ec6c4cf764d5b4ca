package telemetry

import (
	"context"
	"testing"

	"github.com/abgdnv/storefront/pkg/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func Test_NewMeterProvider_exportsCounters(t *testing.T) {
	// given
	registry := prometheus.NewRegistry()
	mp, err := NewMeterProvider("storefront-test", registry)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	counter, err := otel.Meter("test").Int64Counter("widgets_built")
	require.NoError(t, err)

	// when
	counter.Add(context.Background(), 3)
	families, err := registry.Gather()

	// then
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "widgets_built_total" {
			found = true
			require.Len(t, f.GetMetric(), 1)
			assert.InDelta(t, 3, f.GetMetric()[0].GetCounter().GetValue(), 1e-9)
		}
	}
	assert.True(t, found, "widgets_built_total should be exported")
}

func Test_NewTracerProvider_disabled(t *testing.T) {
	// given
	cfg := config.TelemetryConfig{}

	// when
	tp, err := NewTracerProvider(context.Background(), "storefront-test", cfg)

	// then
	require.NoError(t, err)
	require.NotNil(t, tp)
	_, span := tp.Tracer("test").Start(context.Background(), "op")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, tp.Shutdown(context.Background()))
}
