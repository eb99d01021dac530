// Package observe provides the observability primitives shared by every
// greffier component: OpenTelemetry metrics, tracing, trace-aware logging and
// the HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus by the bridge installed in [Init], so they can be scraped
// from /metrics. [DefaultMetrics] is a lazily created package-level instance;
// tests should call [NewMetrics] with their own [metric.MeterProvider] to
// avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all greffier metrics.
const meterName = "github.com/MrWong99/greffier"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// TranscriptionDuration tracks speech-to-text latency, retries included.
	TranscriptionDuration metric.Float64Histogram

	// GenerationDuration tracks structured generation latency, retries and
	// reinforcement included.
	GenerationDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts failed provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("code", ...)
	ProviderErrors metric.Int64Counter

	// Retries counts backoff sleeps. Use with attributes:
	//   attribute.String("op", ...), attribute.String("code", ...)
	Retries metric.Int64Counter

	// Reinforcements counts generations re-issued after a parse failure.
	// Use with attributes: attribute.String("provider", ...), attribute.String("status", ...)
	Reinforcements metric.Int64Counter

	// Classifications counts inbound message verdicts. Use with attributes:
	//   attribute.String("source", ...), attribute.Bool("report", ...)
	Classifications metric.Int64Counter

	// RateLimited counts requests rejected by the per-key limiter.
	RateLimited metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// provider round trips, which range from sub-second classifications to
// minute-long detailed reports.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80, 160,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscriptionDuration, err = m.Float64Histogram("greffier.transcription.duration",
		metric.WithDescription("Latency of audio transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GenerationDuration, err = m.Float64Histogram("greffier.generation.duration",
		metric.WithDescription("Latency of structured generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("greffier.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("greffier.provider.errors",
		metric.WithDescription("Total provider errors by provider and error code."),
	); err != nil {
		return nil, err
	}
	if met.Retries, err = m.Int64Counter("greffier.retries",
		metric.WithDescription("Total backoff retries by operation and error code."),
	); err != nil {
		return nil, err
	}
	if met.Reinforcements, err = m.Int64Counter("greffier.generation.reinforcements",
		metric.WithDescription("Total generations re-issued with the JSON reminder."),
	); err != nil {
		return nil, err
	}
	if met.Classifications, err = m.Int64Counter("greffier.inbound.classifications",
		metric.WithDescription("Total inbound message classifications by source and verdict."),
	); err != nil {
		return nil, err
	}
	if met.RateLimited, err = m.Int64Counter("greffier.ratelimit.rejected",
		metric.WithDescription("Total requests rejected by the rate limiter."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("greffier.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records a provider request with the standard
// attribute set. kind is "llm" or "stt"; status is "ok" or "error".
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error by taxonomy code.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, code string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("code", code),
		),
	)
}

// RecordRetry records one backoff sleep.
func (m *Metrics) RecordRetry(ctx context.Context, op, code string) {
	m.Retries.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("code", code),
		),
	)
}

// RecordReinforcement records a reinforced generation and whether the second
// reply parsed.
func (m *Metrics) RecordReinforcement(ctx context.Context, provider string, ok bool) {
	status := "error"
	if ok {
		status = "ok"
	}
	m.Reinforcements.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordClassification records an inbound verdict.
func (m *Metrics) RecordClassification(ctx context.Context, source string, isReport bool) {
	m.Classifications.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("source", source),
			attribute.Bool("report", isReport),
		),
	)
}

// RecordRateLimited records a rejected request for the given route.
func (m *Metrics) RecordRateLimited(ctx context.Context, route string) {
	m.RateLimited.Add(ctx, 1, metric.WithAttributes(attribute.String("route", route)))
}
