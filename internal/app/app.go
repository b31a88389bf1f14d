// Package app wires all speakeasy subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP API (or the MCP tools over stdio) next to
// the retention sweep, ApplyConfig hot-reloads what can change at runtime,
// and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithRecorder,
// WithMetrics, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/speakeasy/internal/api"
	"github.com/MrWong99/speakeasy/internal/assess"
	"github.com/MrWong99/speakeasy/internal/assess/feedback"
	"github.com/MrWong99/speakeasy/internal/assess/phonetic"
	"github.com/MrWong99/speakeasy/internal/config"
	"github.com/MrWong99/speakeasy/internal/health"
	"github.com/MrWong99/speakeasy/internal/mcpserver"
	"github.com/MrWong99/speakeasy/internal/observe"
	"github.com/MrWong99/speakeasy/internal/practice"
	"github.com/MrWong99/speakeasy/internal/progress"
	"github.com/MrWong99/speakeasy/internal/progress/postgres"
	"github.com/MrWong99/speakeasy/internal/resilience"
	"github.com/MrWong99/speakeasy/internal/synth"
	"github.com/MrWong99/speakeasy/internal/synth/retention"
	"github.com/MrWong99/speakeasy/internal/transcribe"
	"github.com/MrWong99/speakeasy/pkg/audio"
	"github.com/MrWong99/speakeasy/pkg/provider/stt"
)

// errSTTUnavailable is returned by the placeholder engine used when no
// transcription provider is configured.
var errSTTUnavailable = errors.New("app: no transcription provider configured")

// Providers holds the backends built from the config registry by main.go.
type Providers struct {
	// STT transcribes recordings. Nil means audio assessment always reports
	// an engine failure; text comparison still works.
	STT stt.Provider

	// Stages is the synthesis fallback chain in priority order.
	Stages []synth.Stage
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	version   string

	metrics  *observe.Metrics
	level    *slog.LevelVar
	recorder progress.Recorder
	composer *feedback.Composer

	// Subsystems, initialised in New and torn down in Shutdown.
	scorer  *assess.Scorer
	service *practice.Service
	orch    *synth.Orchestrator
	sweeper *retention.Sweeper
	health  *health.Handler
	api     *api.Server
	mcp     *mcpserver.Server
	server  *http.Server
	checks  []health.Checker

	// closers are called in order during Shutdown.
	closers []func() error

	mu       sync.Mutex
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRecorder injects a progress recorder instead of creating one from config.
func WithRecorder(r progress.Recorder) Option {
	return func(a *App) { a.recorder = r }
}

// WithMetrics sets the metric instruments. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel hands the app the level variable behind the process logger so
// that log level changes can be applied on reload.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithComposer injects a feedback composer, typically one with a seeded rand.
func WithComposer(c *feedback.Composer) Option {
	return func(a *App) { a.composer = c }
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		version:   "dev",
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Scoring ───────────────────────────────────────────────────────
	if err := a.initScorer(); err != nil {
		return nil, fmt.Errorf("app: init scorer: %w", err)
	}

	// ── 2. Progress store ────────────────────────────────────────────────
	if err := a.initProgress(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init progress: %w", err)
	}

	// ── 3. Transcription + practice service ──────────────────────────────
	a.initPractice()

	// ── 4. Synthesis chain ───────────────────────────────────────────────
	if err := a.initSynthesis(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init synthesis: %w", err)
	}

	// ── 5. Surfaces ──────────────────────────────────────────────────────
	a.initSurfaces()

	slog.Info("app initialised",
		"stt", cfg.Transcription.Provider.String(),
		"stages", len(a.orch.Stages()),
		"progress", string(cfg.Progress.Kind),
	)
	return a, nil
}

func (a *App) initScorer() error {
	sc, err := a.cfg.Assessment.Scorer()
	if err != nil {
		return err
	}
	var cmpOpts []phonetic.Option
	if path := a.cfg.Assessment.Dictionary; path != "" {
		dict, err := phonetic.LoadDictionary(path)
		if err != nil {
			return err
		}
		cmpOpts = append(cmpOpts, phonetic.WithDictionary(dict))
		slog.Info("pronouncing dictionary loaded", "path", path, "words", dict.Len())
	}
	a.scorer, err = assess.New(sc, assess.WithComparator(phonetic.New(cmpOpts...)))
	if err != nil {
		return err
	}
	if a.composer == nil {
		a.composer = feedback.New()
	}
	return nil
}

// initProgress sets up the configured progress recorder or keeps an
// injected one.
func (a *App) initProgress(ctx context.Context) error {
	if a.recorder != nil {
		return nil
	}
	switch a.cfg.Progress.Kind {
	case config.ProgressFile:
		a.recorder = progress.NewFileRecorder(a.cfg.Progress.Path)
	case config.ProgressPostgres:
		store, err := postgres.Open(ctx, a.cfg.Progress.PostgresDSN)
		if err != nil {
			return err
		}
		a.recorder = store
		a.checks = append(a.checks, health.Checker{Name: "progress", Check: store.Ping})
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
	default:
		a.recorder = progress.Nop{}
	}
	return nil
}

func (a *App) initPractice() {
	engine := a.providers.STT
	if engine == nil {
		engine = unavailableSTT{}
		a.checks = append(a.checks, health.Checker{
			Name:     "transcription",
			Optional: true,
			Check:    func(context.Context) error { return errSTTUnavailable },
		})
	} else if c, ok := engine.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	var normOpts []audio.NormalizerOption
	if bin := a.cfg.Transcription.FFmpeg; bin != "" {
		normOpts = append(normOpts, audio.WithFFmpeg(bin))
	}
	adapter := transcribe.New(engine,
		transcribe.WithNormalizer(audio.NewNormalizer(normOpts...)),
		transcribe.WithMetrics(a.metrics),
		transcribe.WithBackendName(a.cfg.Transcription.Provider.Name),
		transcribe.WithTempDir(a.cfg.Server.TempDir),
	)

	opts := []practice.Option{
		practice.WithRecorder(a.recorder),
		practice.WithMetrics(a.metrics),
		practice.WithTempDir(a.cfg.Server.TempDir),
	}
	if n := a.cfg.Server.MaxUploadBytes; n > 0 {
		opts = append(opts, practice.WithMaxUploadBytes(n))
	}
	a.service = practice.New(adapter, a.scorer, a.composer, opts...)
}

func (a *App) initSynthesis() error {
	syn := a.cfg.Synthesis
	dir := syn.Dir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "speakeasy-tts")
	}

	a.sweeper = retention.New(dir, syn.RetentionTTL(), retention.WithMetrics(a.metrics))

	var normOpts []audio.NormalizerOption
	if bin := a.cfg.Transcription.FFmpeg; bin != "" {
		normOpts = append(normOpts, audio.WithFFmpeg(bin))
	}
	opts := []synth.Option{
		synth.WithSweeper(a.sweeper),
		synth.WithMetrics(a.metrics),
		synth.WithNormalizer(audio.NewNormalizer(normOpts...)),
		synth.WithBreaker(resilience.CircuitBreakerConfig{
			MaxFailures:  syn.Breaker.MaxFailures,
			ResetTimeout: syn.Breaker.ResetTimeout,
			HalfOpenMax:  syn.Breaker.HalfOpenMax,
		}),
	}
	if syn.AttemptTimeout > 0 {
		opts = append(opts, synth.WithAttemptTimeout(syn.AttemptTimeout))
	}
	if syn.Voices != nil {
		opts = append(opts, synth.WithVoices(syn.Voices))
	}

	orch, err := synth.New(dir, a.providers.Stages, opts...)
	if err != nil {
		return err
	}
	a.orch = orch

	a.checks = append(a.checks, health.Checker{
		Name: "synthesis_dir",
		Check: func(context.Context) error {
			st, err := os.Stat(dir)
			if err != nil {
				return err
			}
			if !st.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}
			return nil
		},
	})
	for _, s := range orch.Stages() {
		a.checks = append(a.checks, health.Checker{
			Name:     "tts:" + s.Name,
			Optional: true,
			Check:    a.stageCheck(s.Name),
		})
	}
	return nil
}

// stageCheck reports an error while the named stage's breaker is open.
func (a *App) stageCheck(name string) func(context.Context) error {
	return func(context.Context) error {
		for _, s := range a.orch.Stages() {
			if s.Name == name && s.Breaker == resilience.StateOpen {
				return resilience.ErrCircuitOpen
			}
		}
		return nil
	}
}

func (a *App) initSurfaces() {
	a.health = health.New(a.checks...)

	opts := []api.Option{
		api.WithMetrics(a.metrics),
		api.WithHealth(a.health),
		api.WithMetricsHandler(observe.MetricsHandler()),
		api.WithAllowedOrigins(a.cfg.Server.AllowedOrigins...),
	}
	if rl := a.cfg.Server.RateLimit; rl.Requests > 0 {
		opts = append(opts, api.WithRateLimit(rl.Requests, rl.Window))
	}
	a.api = api.New(a.service, a.orch, opts...)
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.mcp = mcpserver.New(a.version, a.service, a.orch, mcpserver.WithMetrics(a.metrics))
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the HTTP handler of the API.
func (a *App) Handler() http.Handler { return a.server.Handler }

// MCP returns the tool server.
func (a *App) MCP() *mcpserver.Server { return a.mcp }

// Scorer returns the live scorer.
func (a *App) Scorer() *assess.Scorer { return a.scorer }

// Synthesizer returns the synthesis orchestrator.
func (a *App) Synthesizer() *synth.Orchestrator { return a.orch }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves until ctx is cancelled. With mcp.stdio set it serves the tools
// on stdin/stdout; otherwise it serves the HTTP API on ln, or on
// server.listen_addr when ln is nil. The retention sweep runs alongside
// either way. Returns nil after a clean stop.
func (a *App) Run(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.sweeper.Run(ctx, a.cfg.Synthesis.SweepInterval)
	})

	if a.cfg.MCP.Stdio {
		slog.Info("serving MCP tools on stdio")
		g.Go(func() error {
			err := a.mcp.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		})
		return g.Wait()
	}

	g.Go(func() error {
		var err error
		if ln != nil {
			slog.Info("http server listening", "addr", ln.Addr().String())
			err = a.server.Serve(ln)
		} else {
			slog.Info("http server listening", "addr", a.server.Addr)
			err = a.server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: http server: %w", err)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable part of next: log level, scorer
// thresholds and the voice table. Everything else is logged as requiring a
// restart. It is meant to be used as a [config.Watcher] callback.
func (a *App) ApplyConfig(old, next *config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()

	d := config.Diff(old, next)
	if d.Empty() {
		return
	}

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", string(d.NewLogLevel))
	}
	if d.AssessmentChanged {
		sc, err := next.Assessment.Scorer()
		if err == nil {
			err = a.scorer.SetConfig(sc)
		}
		if err != nil {
			slog.Warn("assessment config not applied", "err", err)
		} else {
			slog.Info("assessment thresholds updated",
				"difference_threshold", sc.DifferenceThreshold,
				"match_threshold", sc.MatchThreshold,
				"strategy", sc.Strategy.String(),
				"alignment", sc.Alignment.String(),
			)
		}
	}
	if d.VoicesChanged {
		a.orch.SetVoices(next.Synthesis.Voices)
		slog.Info("voice table updated", "stages", len(next.Synthesis.Voices))
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart to take effect", "sections", d.RestartRequired)
	}
}

// SlogLevel maps a config log level onto slog.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs the closers registered so far after a failed New.
func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
}

// unavailableSTT stands in for a missing transcription provider.
type unavailableSTT struct{}

func (unavailableSTT) Transcribe(context.Context, string, stt.Options) (stt.Transcript, error) {
	return stt.Transcript{}, errSTTUnavailable
}
