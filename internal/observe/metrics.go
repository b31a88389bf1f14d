// Package observe provides observability primitives for speakeasy:
// OpenTelemetry metrics and tracing, trace-aware structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and scraped via
// the Prometheus exporter installed by [InitProvider]. A package-level
// [Metrics] instance ([DefaultMetrics]) is available for convenience; tests
// should use [NewMetrics] with their own [metric.MeterProvider].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all speakeasy metrics.
const meterName = "github.com/MrWong99/speakeasy"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Assessment ---

	// TranscriptionDuration tracks how long one transcription call takes.
	// Attributes: backend, result ("ok", "no_speech", "error").
	TranscriptionDuration metric.Float64Histogram

	// Assessments counts scored attempts by status.
	Assessments metric.Int64Counter

	// WordAccuracy records the word accuracy (0–100) of every scored
	// attempt that reached the comparison stage.
	WordAccuracy metric.Float64Histogram

	// --- Synthesis ---

	// SynthesisAttempts counts backend attempts. Attributes: backend, mode,
	// result ("ok", "error", "empty", "circuit_open").
	SynthesisAttempts metric.Int64Counter

	// SynthesisDuration tracks a full synthesis request including fallbacks.
	// Attributes: mode, outcome (backend id or error code).
	SynthesisDuration metric.Float64Histogram

	// SweptFiles counts temporary audio files removed by the retention sweep.
	SweptFiles metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Attributes:
	// name, to.
	BreakerTransitions metric.Int64Counter

	// --- Tools & HTTP ---

	// ToolCalls counts MCP tool invocations. Attributes: tool, status.
	ToolCalls metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, route, status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds. Synthesis over the
// network and whisper on CPU both routinely take several seconds.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// accuracyBuckets mirror the score bands used in feedback.
var accuracyBuckets = []float64{25, 50, 75, 90, 100}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TranscriptionDuration, err = m.Float64Histogram("speakeasy.transcription.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Assessments, err = m.Int64Counter("speakeasy.assessments",
		metric.WithDescription("Pronunciation assessments by resulting status."),
	); err != nil {
		return nil, err
	}
	if met.WordAccuracy, err = m.Float64Histogram("speakeasy.assessment.word_accuracy",
		metric.WithDescription("Word accuracy of scored attempts."),
		metric.WithUnit("%"),
		metric.WithExplicitBucketBoundaries(accuracyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.SynthesisAttempts, err = m.Int64Counter("speakeasy.synthesis.attempts",
		metric.WithDescription("Synthesis backend attempts by backend, mode and result."),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("speakeasy.synthesis.duration",
		metric.WithDescription("Latency of a synthesis request across all fallbacks."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SweptFiles, err = m.Int64Counter("speakeasy.retention.swept_files",
		metric.WithDescription("Temporary audio files deleted by the retention sweep."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("speakeasy.breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions by breaker name and target state."),
	); err != nil {
		return nil, err
	}

	if met.ToolCalls, err = m.Int64Counter("speakeasy.tool.calls",
		metric.WithDescription("MCP tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("speakeasy.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
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
// fails, which does not happen with the global provider.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTranscription records one transcription call.
func (m *Metrics) RecordTranscription(ctx context.Context, backend, result string, d time.Duration) {
	m.TranscriptionDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("result", result),
		),
	)
}

// RecordAssessment records the outcome of one scored attempt. accuracy is
// only recorded when scored is true, so silent and off-topic attempts do
// not drag the histogram to zero.
func (m *Metrics) RecordAssessment(ctx context.Context, status string, accuracy float64, scored bool) {
	m.Assessments.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	if scored {
		m.WordAccuracy.Record(ctx, accuracy)
	}
}

// RecordSynthesisAttempt records one backend attempt.
func (m *Metrics) RecordSynthesisAttempt(ctx context.Context, backend, mode, result string) {
	m.SynthesisAttempts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("mode", mode),
			attribute.String("result", result),
		),
	)
}

// RecordSynthesis records a whole synthesis request.
func (m *Metrics) RecordSynthesis(ctx context.Context, mode, outcome string, d time.Duration) {
	m.SynthesisDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordSwept records files removed by one retention sweep.
func (m *Metrics) RecordSwept(ctx context.Context, n int) {
	if n > 0 {
		m.SweptFiles.Add(ctx, int64(n))
	}
}

// RecordBreakerTransition records a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, name, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("name", name),
			attribute.String("to", to),
		),
	)
}

// RecordToolCall records an MCP tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}
