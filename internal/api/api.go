// Package api exposes the practice core over HTTP.
//
// Routes:
//
//	POST /api/analyze_speech               multipart recording + expected_text
//	POST /api/analyze_mispronounced_words  JSON text-only analysis
//	GET  /tts                              synthesized audio
//	GET  /api/voices                       voice catalogue per synthesis stage
//	GET  /healthz, /readyz                 probes
//	GET  /metrics                          Prometheus scrape endpoint
//
// Error bodies carry a stable error_code. Internal error details go to the
// log only.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/MrWong99/speakeasy/internal/health"
	"github.com/MrWong99/speakeasy/internal/observe"
	"github.com/MrWong99/speakeasy/internal/practice"
	"github.com/MrWong99/speakeasy/internal/synth"
)

// Assessor scores recordings and transcripts. *practice.Service satisfies
// it.
type Assessor interface {
	Assess(ctx context.Context, up practice.Upload) (practice.Assessment, error)
	AssessText(ctx context.Context, expected, spoken, language string) (practice.Assessment, error)
	MaxUploadBytes() int64
}

// Synthesizer renders text to an audio file. *synth.Orchestrator satisfies
// it.
type Synthesizer interface {
	Synthesize(ctx context.Context, req synth.Request) (synth.Result, error)
}

var (
	_ Assessor    = (*practice.Service)(nil)
	_ Synthesizer = (*synth.Orchestrator)(nil)
)

// Option configures a [Server].
type Option func(*Server)

// WithMetrics enables request metrics and tracing middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealth mounts the probes of h.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithAllowedOrigins sets the CORS origins. Default: any.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// WithRateLimit caps requests per client IP on the assessment and synthesis
// routes. Zero disables limiting.
func WithRateLimit(requests int, window time.Duration) Option {
	return func(s *Server) {
		s.rateRequests = requests
		s.rateWindow = window
	}
}

// Server holds the HTTP handlers.
type Server struct {
	assessor    Assessor
	synthesizer Synthesizer

	metrics        *observe.Metrics
	health         *health.Handler
	metricsHandler http.Handler
	origins        []string
	rateRequests   int
	rateWindow     time.Duration
}

// New returns a Server. Either dependency may be nil, in which case its
// routes are not mounted.
func New(a Assessor, s Synthesizer, opts ...Option) *Server {
	srv := &Server{
		assessor:    a,
		synthesizer: s,
		origins:     []string{"*"},
	}
	for _, o := range opts {
		o(srv)
	}
	return srv
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(observe.Middleware(s.metrics))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Correlation-ID", "X-TTS-Backend"},
		MaxAge:         300,
	}))

	if s.health != nil {
		s.health.Register(r)
	}
	if s.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.metricsHandler)
	}

	r.Group(func(r chi.Router) {
		if s.rateRequests > 0 {
			r.Use(httprate.LimitByIP(s.rateRequests, s.rateWindow))
		}
		r.Route("/api", func(api chi.Router) {
			if s.assessor != nil {
				api.Post("/analyze_speech", s.handleAnalyzeSpeech)
				api.Post("/analyze_mispronounced_words", s.handleAnalyzeText)
			}
			if s.synthesizer != nil {
				api.Get("/voices", s.handleVoices)
			}
		})
		if s.synthesizer != nil {
			r.Get("/tts", s.handleTTS)
		}
	})

	return r
}

// errorBody is the JSON shape of every assessment error.
type errorBody struct {
	OK      bool   `json:"ok"`
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

func respondError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Code: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
