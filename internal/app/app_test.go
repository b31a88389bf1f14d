package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/speakeasy/internal/app"
	"github.com/MrWong99/speakeasy/internal/config"
	"github.com/MrWong99/speakeasy/internal/observe"
	"github.com/MrWong99/speakeasy/internal/progress"
	"github.com/MrWong99/speakeasy/internal/synth"
	"github.com/MrWong99/speakeasy/pkg/audio"
	"github.com/MrWong99/speakeasy/pkg/provider/stt"
	sttmock "github.com/MrWong99/speakeasy/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/speakeasy/pkg/provider/tts/mock"
)

// testConfig returns a default config with temp directories for tests.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.Server.TempDir = t.TempDir()
	cfg.Synthesis.Dir = filepath.Join(t.TempDir(), "tts")
	return cfg
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	return m
}

type memRecorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *memRecorder) Record(_ context.Context, e progress.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *memRecorder) all() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}

func newApp(t *testing.T, cfg *config.Config, providers *app.Providers, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{app.WithMetrics(testMetrics(t))}, opts...)
	a, err := app.New(context.Background(), cfg, providers, opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func TestNew_AnalyzeSpeechEndToEnd(t *testing.T) {
	t.Parallel()

	rec := &memRecorder{}
	engine := &sttmock.Provider{Result: stt.Transcript{Text: "I like to eat oranges"}}
	a := newApp(t, testConfig(t), &app.Providers{STT: engine}, app.WithRecorder(rec))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("audio", "take1.wav")
	_, _ = fw.Write(audio.EncodeWAV(make([]byte, 3200), audio.SpeechFormat))
	_ = mw.WriteField("expected_text", "I like to eat apples")
	_ = mw.WriteField("user_id", "learner-7")
	_ = mw.WriteField("day", "3")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/analyze_speech", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var got struct {
		OK       bool `json:"ok"`
		Analysis struct {
			WordAccuracy float64 `json:"word_accuracy"`
		} `json:"analysis"`
	}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if !got.OK || got.Analysis.WordAccuracy != 80 {
		t.Errorf("got ok=%v accuracy=%v, want ok=true accuracy=80", got.OK, got.Analysis.WordAccuracy)
	}
	if engine.CallCount() != 1 {
		t.Errorf("stt calls = %d, want 1", engine.CallCount())
	}
	events := rec.all()
	if len(events) != 1 || events[0].UserID != "learner-7" || events[0].Day != "3" {
		t.Errorf("progress events = %+v, want one for learner-7 day 3", events)
	}
}

func TestNew_SynthesisThroughStages(t *testing.T) {
	t.Parallel()

	edge := &ttsmock.Provider{Audio: []byte("ID3-audio"), AudioFormat: audio.FormatMP3}
	espeak := &ttsmock.Provider{Audio: audio.EncodeWAV(make([]byte, 320), audio.SpeechFormat), AudioFormat: audio.FormatWAV}
	a := newApp(t, testConfig(t), &app.Providers{Stages: []synth.Stage{
		{Name: "edge", Reach: synth.Online, Provider: edge},
		{Name: "espeak", Reach: synth.Offline, Provider: espeak},
	}})

	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tts?text=hello&mode=offline", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-TTS-Backend"); got != "espeak" {
		t.Errorf("X-TTS-Backend = %q, want espeak", got)
	}
	if edge.CallCount() != 0 {
		t.Errorf("online stage called %d times in offline mode", edge.CallCount())
	}
}

func TestNew_ReadinessWithoutTranscription(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig(t), nil)

	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (degraded is still ready)", w.Code)
	}
	var got struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Status != "degraded" {
		t.Errorf("status = %q, want degraded", got.Status)
	}
	if !strings.HasPrefix(got.Checks["transcription"], "degraded") {
		t.Errorf("transcription check = %q", got.Checks["transcription"])
	}
	if got.Checks["synthesis_dir"] != "ok" {
		t.Errorf("synthesis_dir check = %q, want ok", got.Checks["synthesis_dir"])
	}
}

func TestNew_FileProgress(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Progress = config.ProgressConfig{Kind: config.ProgressFile, Path: filepath.Join(t.TempDir(), "progress.jsonl")}
	engine := &sttmock.Provider{Result: stt.Transcript{Text: "good morning"}}
	a := newApp(t, cfg, &app.Providers{STT: engine})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("audio", "a.wav")
	_, _ = fw.Write(audio.EncodeWAV(make([]byte, 3200), audio.SpeechFormat))
	_ = mw.WriteField("expected_text", "good morning")
	_ = mw.WriteField("user_id", "u1")
	_ = mw.WriteField("day", "1")
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze_speech", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	a.Handler().ServeHTTP(httptest.NewRecorder(), req)

	data, err := os.ReadFile(cfg.Progress.Path)
	if err != nil {
		t.Fatalf("progress file: %v", err)
	}
	if !strings.Contains(string(data), `"user_id":"u1"`) {
		t.Errorf("progress file = %s", data)
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing dictionary", func(c *config.Config) { c.Assessment.Dictionary = "/nonexistent/cmudict.dict" }},
		{"unreachable postgres", func(c *config.Config) {
			c.Progress = config.ProgressConfig{Kind: config.ProgressPostgres, PostgresDSN: "postgres://speakeasy@127.0.0.1:1/speakeasy?connect_timeout=1"}
		}},
		{"synthesis dir is a file", func(c *config.Config) {
			f := filepath.Join(t.TempDir(), "file")
			_ = os.WriteFile(f, nil, 0o644)
			c.Synthesis.Dir = f
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig(t)
			tt.mutate(cfg)
			if _, err := app.New(context.Background(), cfg, nil, app.WithMetrics(testMetrics(t))); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestApplyConfig(t *testing.T) {
	t.Parallel()

	var level slog.LevelVar
	old := testConfig(t)
	a := newApp(t, old, nil, app.WithLogLevel(&level))

	next := *old
	next.Server.LogLevel = config.LogDebug
	mt := 0.95
	next.Assessment.MatchThreshold = &mt
	next.Synthesis.Voices = synth.VoiceTable{"edge": {{Voice: "en-GB-SoniaNeural"}}}

	a.ApplyConfig(old, &next)

	if level.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", level.Level())
	}
	if got := a.Scorer().Config().MatchThreshold; got != 0.95 {
		t.Errorf("match threshold = %v, want 0.95", got)
	}
}

func TestApplyConfig_InvalidAssessmentKeepsScorer(t *testing.T) {
	t.Parallel()
	old := testConfig(t)
	a := newApp(t, old, nil)
	before := a.Scorer().Config()

	next := *old
	next.Assessment.Strategy = "rhyming"
	a.ApplyConfig(old, &next)

	if a.Scorer().Config() != before {
		t.Errorf("scorer config changed to %+v after invalid reload", a.Scorer().Config())
	}
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig(t), nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestShutdown_ClosesEngine(t *testing.T) {
	t.Parallel()
	engine := &sttmock.Provider{}
	a, err := app.New(context.Background(), testConfig(t), &app.Providers{STT: engine}, app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if !engine.Closed {
		t.Error("stt engine was not closed")
	}
}
