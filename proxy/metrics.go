package proxy

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/goliatone/go-rpc-cache/proxy"

// dispatchMetrics records one data point per dispatched operation.
type dispatchMetrics struct {
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
}

func defaultMeter() metric.Meter {
	return noop.NewMeterProvider().Meter(meterName)
}

func newDispatchMetrics(meter metric.Meter) (*dispatchMetrics, error) {
	totalCount, err := meter.Int64Counter(
		"rpccache.dispatch.total",
		metric.WithDescription("Total number of dispatched proxy operations"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"rpccache.dispatch.errors",
		metric.WithDescription("Total number of proxy operations that returned an error"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"rpccache.dispatch.duration_ms",
		metric.WithDescription("Proxy operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &dispatchMetrics{
		totalCount:   totalCount,
		errorCount:   errorCount,
		durationHist: durationHist,
	}, nil
}

func (m *dispatchMetrics) record(ctx context.Context, path, operation string, duration time.Duration, err error) {
	opt := metric.WithAttributes(
		attribute.String("rpc.path", path),
		attribute.String("rpc.operation", operation),
	)

	m.totalCount.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Microseconds())/1000, opt)
}
