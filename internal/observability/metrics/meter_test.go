package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// TestPurpose: Validates that counters created through the wrapper are recorded by the provider.
// Scope: Unit Test
// Expected: A single sum data point with value 3.
// Test Case ID: MET-01
func TestMeter_CreateCounter(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	m := FromProvider(provider, "farmgate-test")
	counter, err := m.CreateCounter("farmgate.grants.swept", "Grants deactivated by the expiry sweep")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)
	sum, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(3), sum.DataPoints[0].Value)
}

func TestMeter_Disabled(t *testing.T) {
	m, err := New(context.Background(), Config{Enabled: false, ServiceName: "farmgate"})
	require.NoError(t, err)
	_, err = m.CreateHistogram("farmgate.authz.latency", "Decision latency", "ms")
	assert.NoError(t, err)
	assert.NoError(t, m.Shutdown(context.Background()))
}
