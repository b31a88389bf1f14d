package observe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// serve runs one request through a chi router using [Middleware] and returns
// the recorder, the manual metric reader and the span exporter.
func serve(t *testing.T, pattern string, h http.HandlerFunc, req *http.Request) (*httptest.ResponseRecorder, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	exp := useTracer(t)

	r := chi.NewRouter()
	r.Use(Middleware(m))
	r.HandleFunc(pattern, h)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec, reader, exp
}

func TestMiddleware_CorrelationID(t *testing.T) {
	var inHandler string
	rec, _, exp := serve(t, "/api/analyze_speech", func(w http.ResponseWriter, r *http.Request) {
		inHandler = CorrelationID(r.Context())
	}, httptest.NewRequest(http.MethodPost, "/api/analyze_speech", nil))

	if len(inHandler) != 32 {
		t.Fatalf("handler correlation id = %q, want 32 hex digits", inHandler)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != inHandler {
		t.Errorf("X-Correlation-ID = %q, want %q", got, inHandler)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "HTTP POST /api/analyze_speech" {
		t.Fatalf("spans = %v, want one server span", spans)
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	req := httptest.NewRequest(http.MethodGet, "/tts", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")

	var inHandler string
	rec, _, _ := serve(t, "/tts", func(w http.ResponseWriter, r *http.Request) {
		inHandler = CorrelationID(r.Context())
	}, req)

	if inHandler != traceID {
		t.Errorf("handler correlation id = %q, want %q", inHandler, traceID)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("X-Correlation-ID = %q, want %q", got, traceID)
	}
}

func TestMiddleware_SpanStatus(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantStatus codes.Code
	}{
		{"client error stays unset", http.StatusBadRequest, codes.Unset},
		{"server error marks span", http.StatusServiceUnavailable, codes.Error},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, exp := serve(t, "/tts", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}, httptest.NewRequest(http.MethodGet, "/tts", nil))

			spans := exp.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("recorded %d spans, want 1", len(spans))
			}
			if spans[0].Status.Code != tt.wantStatus {
				t.Errorf("span status = %v, want %v", spans[0].Status.Code, tt.wantStatus)
			}
			var code int64
			for _, kv := range spans[0].Attributes {
				if kv.Key == "http.response.status_code" {
					code = kv.Value.AsInt64()
				}
			}
			if code != int64(tt.status) {
				t.Errorf("http.response.status_code = %d, want %d", code, tt.status)
			}
		})
	}
}

func TestMiddleware_DurationByRoutePattern(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}
	useTracer(t)

	r := chi.NewRouter()
	r.Use(Middleware(m))
	r.Get("/audio/{name}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	for _, name := range []string{"tts_a.mp3", "tts_b.mp3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/audio/"+name, nil))
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "speakeasy.http.request.duration")
	if met == nil {
		t.Fatal("duration histogram not recorded")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1 (both requests share a route)", len(hist.DataPoints))
	}
	dp := hist.DataPoints[0]
	if dp.Count != 2 {
		t.Errorf("count = %d, want 2", dp.Count)
	}
	for key, want := range map[string]string{"method": "GET", "route": "/audio/{name}", "status": "200"} {
		if v, _ := dp.Attributes.Value(attribute.Key(key)); v.AsString() != want {
			t.Errorf("%s = %q, want %q", key, v.AsString(), want)
		}
	}
}
