package crawl

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName              = "cdpcrawler.crawl"
	metricDevicesProcessed = "crawl_devices_processed_total"
	metricNeighborsSeen    = "crawl_neighbors_total"
	metricDeviceDuration   = "crawl_device_duration_seconds"
)

// Outcome and result attribute values
const (
	outcomeDone      = "done"
	outcomeRetry     = "retry"
	outcomeFailed    = "failed"
	neighborQueued   = "queued"
	neighborKnown    = "known"
	neighborFiltered = "filtered"
	neighborSelf     = "self"
)

// Metrics records crawl instruments
type Metrics struct {
	processed metric.Int64Counter
	neighbors metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewMetrics registers the crawl instruments with provider. A nil provider
// uses the global one.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	processed, err := meter.Int64Counter(
		metricDevicesProcessed,
		metric.WithDescription("Device processing attempts by outcome"),
	)
	if err != nil {
		return nil, err
	}

	neighbors, err := meter.Int64Counter(
		metricNeighborsSeen,
		metric.WithDescription("Neighbor entries seen by what happened to them"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		metricDeviceDuration,
		metric.WithDescription("Time spent processing one device"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{processed: processed, neighbors: neighbors, duration: duration}, nil
}

// RecordDevice counts one processing attempt and its latency
func (m *Metrics) RecordDevice(ctx context.Context, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.processed.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordNeighbor counts one neighbor entry
func (m *Metrics) RecordNeighbor(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.neighbors.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
