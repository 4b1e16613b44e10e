// Package observe provides application-wide observability primitives for
// LinguaLoop: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all LinguaLoop metrics.
const meterName = "github.com/lingualoop/lingualoop"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// EvaluationDuration tracks end-to-end grading latency. Use with attributes:
	//   attribute.String("mode", ...), attribute.String("source", ...)
	EvaluationDuration metric.Float64Histogram

	// STTDuration tracks speech-to-text recognition latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks AI evaluator latency.
	LLMDuration metric.Float64Histogram

	// TranscodeDuration tracks audio container transcoding latency.
	TranscodeDuration metric.Float64Histogram

	// ToolExecutionDuration tracks MCP tool execution latency.
	ToolExecutionDuration metric.Float64Histogram

	// --- Counters ---

	// Evaluations counts emitted outcomes. Use with attributes:
	//   attribute.String("mode", ...), attribute.String("source", ...), attribute.String("verdict", ...)
	Evaluations metric.Int64Counter

	// EvaluationFailures counts evaluations that ended in an EvaluationError.
	// Use with attribute: attribute.String("mode", ...)
	EvaluationFailures metric.Int64Counter

	// Fallbacks counts switches from the AI evaluator to a local scorer. Use
	// with attribute: attribute.String("mode", ...)
	Fallbacks metric.Int64Counter

	// AudioNormalizations counts audio normalisation attempts. Use with attributes:
	//   attribute.String("route", "direct"|"transcoded"), attribute.String("outcome", ...)
	AudioNormalizations metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with attributes:
	//   attribute.String("breaker", ...), attribute.String("state", ...)
	BreakerTransitions metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveEvaluations tracks the number of evaluations in flight.
	ActiveEvaluations metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) spanning
// local scoring (sub-millisecond) up to slow LLM and recognition calls.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.EvaluationDuration, "lingualoop.evaluation.duration", "Latency of a complete evaluation by mode and source."},
		{&met.STTDuration, "lingualoop.stt.duration", "Latency of speech-to-text recognition."},
		{&met.LLMDuration, "lingualoop.llm.duration", "Latency of AI evaluator calls."},
		{&met.TranscodeDuration, "lingualoop.transcode.duration", "Latency of audio transcoding."},
		{&met.ToolExecutionDuration, "lingualoop.tool_execution.duration", "Latency of MCP tool execution."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.Evaluations, "lingualoop.evaluations", "Total emitted evaluations by mode, source, and verdict."},
		{&met.EvaluationFailures, "lingualoop.evaluation.failures", "Total evaluations that failed without a fallback, by mode."},
		{&met.Fallbacks, "lingualoop.evaluation.fallbacks", "Total fallbacks from the AI evaluator to a local scorer, by mode."},
		{&met.AudioNormalizations, "lingualoop.audio.normalizations", "Total audio normalisations by route and outcome."},
		{&met.ProviderRequests, "lingualoop.provider.requests", "Total provider API requests by provider, kind, and status."},
		{&met.ToolCalls, "lingualoop.tool.calls", "Total tool invocations by tool name and status."},
		{&met.BreakerTransitions, "lingualoop.circuit_breaker.transitions", "Total circuit breaker state changes by breaker and new state."},
		{&met.ProviderErrors, "lingualoop.provider.errors", "Total provider errors by provider and kind."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ActiveEvaluations, err = m.Int64UpDownCounter("lingualoop.active_evaluations",
		metric.WithDescription("Number of evaluations currently in flight."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("lingualoop.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// RecordEvaluation records one emitted evaluation: its duration and the
// outcome counter.
func (m *Metrics) RecordEvaluation(ctx context.Context, mode, source, verdict string, d time.Duration) {
	m.EvaluationDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("source", source),
		),
	)
	m.Evaluations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("source", source),
			attribute.String("verdict", verdict),
		),
	)
}

// RecordEvaluationFailure records an evaluation that could not be completed.
func (m *Metrics) RecordEvaluationFailure(ctx context.Context, mode string) {
	m.EvaluationFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordFallback records a switch to a local scorer.
func (m *Metrics) RecordFallback(ctx context.Context, mode string) {
	m.Fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordNormalization records the outcome of one audio normalisation.
func (m *Metrics) RecordNormalization(ctx context.Context, route, outcome string) {
	m.AudioNormalizations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("route", route),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordToolCall is a convenience method that records a tool call counter
// increment with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordBreakerTransition records a circuit breaker entering state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("breaker", breaker),
			attribute.String("state", state),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
