package crawl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumFor(t *testing.T, m metricdata.Metrics, key, value string) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	return 0
}

func TestMetricsFromCrawl(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := NewMetrics(provider)
	require.NoError(t, err)

	network := newFakeNetwork()
	network.add("core",
		neighbor{"dist", "10.0.0.2", platformSwitch},
		neighbor{"SEP0011223344AA", "10.20.0.15", platformPhone},
	)
	network.add("dist", neighbor{"core", "10.0.0.1", platformSwitch}).failures = 1

	te := newTestEngine(t, network, nil, 1, nil, WithMetrics(metrics))
	_, err = te.Run(context.Background(), "core", "")
	require.NoError(t, err)

	got := collect(t, reader)

	processed := got[metricDevicesProcessed]
	assert.Equal(t, int64(2), sumFor(t, processed, "outcome", outcomeDone))
	assert.Equal(t, int64(1), sumFor(t, processed, "outcome", outcomeRetry))
	assert.Equal(t, int64(0), sumFor(t, processed, "outcome", outcomeFailed))

	neighbors := got[metricNeighborsSeen]
	assert.Equal(t, int64(1), sumFor(t, neighbors, "result", neighborQueued))
	assert.Equal(t, int64(1), sumFor(t, neighbors, "result", neighborFiltered))
	assert.Equal(t, int64(1), sumFor(t, neighbors, "result", neighborKnown))

	hist, ok := got[metricDeviceDuration].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(3), count)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordDevice(context.Background(), outcomeDone, time.Second)
	m.RecordNeighbor(context.Background(), neighborQueued)
}
