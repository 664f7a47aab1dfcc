package http

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	clientMeterName = "labkit/http-client"

	metricClientAttempts = "labkit.http.client.attempts"
	metricClientDuration = "http.client.request.duration"

	attrHTTPRequestMethod  = "http.request.method"
	attrHTTPResponseStatus = "http.response.status_code"
	attrOutcome            = "labkit.outcome"
)

var clientDurationBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

type clientMetrics struct {
	attempts metric.Int64Counter
	duration metric.Float64Histogram
}

// logMetricError is best-effort: a broken meter must not break provisioning.
func logMetricError(metricName string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize HTTP client metric %s: %v\n", metricName, err)
	}
}

func newClientMetrics(mp metric.MeterProvider) *clientMetrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(clientMeterName)

	m := &clientMetrics{}
	var err error
	m.attempts, err = meter.Int64Counter(
		metricClientAttempts,
		metric.WithDescription("Outbound call attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	logMetricError(metricClientAttempts, err)

	m.duration, err = meter.Float64Histogram(
		metricClientDuration,
		metric.WithDescription("Duration of outbound HTTP requests"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(clientDurationBuckets...),
	)
	logMetricError(metricClientDuration, err)

	return m
}

func (m *clientMetrics) recordAttempt(ctx context.Context, method string, out Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String(attrHTTPRequestMethod, method),
		attribute.String(attrOutcome, out.Kind.String()),
	}
	if out.Response != nil {
		attrs = append(attrs, attribute.Int(attrHTTPResponseStatus, out.Response.StatusCode))
	}

	if m.attempts != nil {
		m.attempts.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if m.duration != nil {
		m.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
	}
}
