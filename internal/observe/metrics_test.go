package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumWhere returns the value of the int64 sum data point whose attribute key
// equals value, and whether it was found.
func sumWhere(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) (int64, bool) {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value, true
		}
	}
	return 0, false
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordTranscription(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTranscription(ctx, "whisper-native", "ok", 800*time.Millisecond)
	m.RecordTranscription(ctx, "whisper-native", "ok", 1200*time.Millisecond)

	met := findMetric(collect(t, reader), "speakeasy.transcription.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 2 {
		t.Fatalf("data points = %+v, want one point with count 2", hist.DataPoints)
	}
	if got := hist.DataPoints[0].Sum; got < 1.99 || got > 2.01 {
		t.Errorf("sum = %v, want 2", got)
	}
}

func TestRecordAssessment(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordAssessment(ctx, "excellent", 100, true)
	m.RecordAssessment(ctx, "excellent", 92, true)
	m.RecordAssessment(ctx, "silent", 0, false)

	rm := collect(t, reader)
	if v, ok := sumWhere(t, rm, "speakeasy.assessments", "status", "excellent"); !ok || v != 2 {
		t.Errorf("excellent count = %d (found %v), want 2", v, ok)
	}
	if v, ok := sumWhere(t, rm, "speakeasy.assessments", "status", "silent"); !ok || v != 1 {
		t.Errorf("silent count = %d (found %v), want 1", v, ok)
	}

	hist := findMetric(rm, "speakeasy.assessment.word_accuracy").Data.(metricdata.Histogram[float64])
	if got := hist.DataPoints[0].Count; got != 2 {
		t.Errorf("accuracy samples = %d, want 2 (silent is not scored)", got)
	}
}

func TestRecordSynthesis(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSynthesisAttempt(ctx, "edge", "auto", "error")
	m.RecordSynthesisAttempt(ctx, "espeak", "auto", "ok")
	m.RecordSynthesis(ctx, "auto", "espeak", 300*time.Millisecond)
	m.RecordSwept(ctx, 3)
	m.RecordSwept(ctx, 0)
	m.RecordBreakerTransition(ctx, "edge", "open")

	rm := collect(t, reader)
	if v, ok := sumWhere(t, rm, "speakeasy.synthesis.attempts", "backend", "espeak"); !ok || v != 1 {
		t.Errorf("espeak attempts = %d (found %v), want 1", v, ok)
	}
	if v, ok := sumWhere(t, rm, "speakeasy.breaker.transitions", "to", "open"); !ok || v != 1 {
		t.Errorf("breaker transitions = %d (found %v), want 1", v, ok)
	}
	swept := findMetric(rm, "speakeasy.retention.swept_files").Data.(metricdata.Sum[int64])
	if got := swept.DataPoints[0].Value; got != 3 {
		t.Errorf("swept = %d, want 3", got)
	}
	if findMetric(rm, "speakeasy.synthesis.duration") == nil {
		t.Error("synthesis duration not recorded")
	}
}

func TestToolCallsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordToolCall(ctx, "assess_pronunciation", "ok")
	m.RecordToolCall(ctx, "assess_pronunciation", "error")

	if v, ok := sumWhere(t, collect(t, reader), "speakeasy.tool.calls", "status", "ok"); !ok || v != 1 {
		t.Errorf("ok calls = %d (found %v), want 1", v, ok)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
