// Package synth turns text into a playable audio file by walking an ordered
// list of speech synthesis backends until one produces output.
//
// Each backend is a stage tagged [Online] or [Offline]. The request [Mode]
// filters the list, and one loop tries the remaining stages in priority
// order. Any error, an empty file, an open circuit breaker or an attempt
// that outlives its timeout moves on to the next stage. The first non-empty
// file wins and is normalised to mp3 when a converter is available.
//
// Output files are named tts_<uuid>.<ext> in one directory shared by all
// calls. Only the retention sweeper deletes files created by other calls.
package synth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/speakeasy/internal/observe"
	"github.com/MrWong99/speakeasy/internal/resilience"
	"github.com/MrWong99/speakeasy/internal/synth/retention"
	"github.com/MrWong99/speakeasy/pkg/audio"
	"github.com/MrWong99/speakeasy/pkg/provider/tts"
)

// errEmptyOutput is recorded for a stage that returned without writing audio.
var errEmptyOutput = errors.New("synth: backend produced no audio")

// Stage describes one backend in the chain.
type Stage struct {
	// Name identifies the backend in logs, metrics, voice tables and
	// explicit "name:voice" requests.
	Name string

	// Reach tags the stage online or offline for mode filtering.
	Reach Reach

	Provider tts.Provider

	// AcceptsVoice, when set, reports whether a bare explicit voice id
	// belongs to this backend.
	AcceptsVoice func(id string) bool
}

// Request is one synthesis call.
type Request struct {
	Text string

	Gender tts.Gender

	// Language is a BCP-47 tag or "hinglish". Empty means English.
	Language string

	// Accent refines the voice choice (e.g. "indian").
	Accent string

	// Voice is an explicit voice, either "stage:id" or a bare id.
	Voice string

	Mode Mode

	// Speed scales the speaking rate; 0 means normal.
	Speed float64

	// SingleUse marks audio the caller deletes right after serving it.
	SingleUse bool
}

// languageTag resolves the effective language tag, folding the accent in.
func (r Request) languageTag() string {
	l := strings.TrimSpace(r.Language)
	switch {
	case l == "":
		l = "en"
	case strings.EqualFold(l, "hinglish"):
		return "hi-IN"
	}
	if strings.EqualFold(l, "en") && strings.EqualFold(r.Accent, "indian") {
		return "en-IN"
	}
	return l
}

// Attempt records one stage that was tried.
type Attempt struct {
	Backend  string
	Duration time.Duration
	Err      error
}

// Result is a successfully synthesized file.
type Result struct {
	Path      string
	Format    audio.Format
	Backend   string
	SingleUse bool
	Attempts  []Attempt
}

// Remove deletes the result's file. Callers use it for single-use audio
// once the response has been sent.
func (r Result) Remove() error {
	if err := os.Remove(r.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("synth: remove %s: %w", filepath.Base(r.Path), err)
	}
	return nil
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithAttemptTimeout bounds each stage. Defaults to 15 s.
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.attemptTimeout = d
		}
	}
}

// WithNormalizer converts non-mp3 output after a successful attempt.
func WithNormalizer(n *audio.Normalizer) Option {
	return func(o *Orchestrator) { o.norm = n }
}

// WithSweeper runs a throttled retention sweep on every call.
func WithSweeper(s *retention.Sweeper) Option {
	return func(o *Orchestrator) { o.sweeper = s }
}

// WithMetrics records attempts, request latency and breaker transitions.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithVoices replaces the default voice table.
func WithVoices(t VoiceTable) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.voices.Store(&t)
		}
	}
}

// WithBreaker sets the circuit breaker template used for every stage. Name
// and OnStateChange are filled in per stage.
func WithBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(o *Orchestrator) { o.breakerCfg = cfg }
}

type stage struct {
	name         string
	reach        Reach
	provider     tts.Provider
	acceptsVoice func(string) bool
	breaker      *resilience.CircuitBreaker
}

// Orchestrator runs the fallback chain. It is safe for concurrent use.
type Orchestrator struct {
	dir            string
	stages         []*stage
	attemptTimeout time.Duration
	norm           *audio.Normalizer
	sweeper        *retention.Sweeper
	metrics        *observe.Metrics
	voices         atomic.Pointer[VoiceTable]
	breakerCfg     resilience.CircuitBreakerConfig
}

// New creates an Orchestrator writing into dir, which is created if needed.
// stages are tried in the given order. An empty list is allowed; every call
// then fails with [ErrNoMethodAvailable] or a [*ModeUnavailableError].
func New(dir string, stages []Stage, opts ...Option) (*Orchestrator, error) {
	if dir == "" {
		return nil, errors.New("synth: output directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("synth: create output directory: %w", err)
	}

	o := &Orchestrator{
		dir:            dir,
		attemptTimeout: 15 * time.Second,
	}
	def := DefaultVoices()
	o.voices.Store(&def)
	for _, opt := range opts {
		opt(o)
	}

	seen := make(map[string]bool, len(stages))
	for _, s := range stages {
		if s.Name == "" || s.Provider == nil {
			return nil, fmt.Errorf("synth: stage %q needs a name and a provider", s.Name)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("synth: duplicate stage %q", s.Name)
		}
		seen[s.Name] = true

		bc := o.breakerCfg
		bc.Name = "tts:" + s.Name
		bc.OnStateChange = o.onBreakerChange
		o.stages = append(o.stages, &stage{
			name:         s.Name,
			reach:        s.Reach,
			provider:     s.Provider,
			acceptsVoice: s.AcceptsVoice,
			breaker:      resilience.NewCircuitBreaker(bc),
		})
	}
	return o, nil
}

// Dir returns the output directory.
func (o *Orchestrator) Dir() string { return o.dir }

// StageInfo is a read-only view of one stage.
type StageInfo struct {
	Name    string
	Reach   Reach
	Breaker resilience.State
}

// Stages returns the stages in priority order.
func (o *Orchestrator) Stages() []StageInfo {
	out := make([]StageInfo, 0, len(o.stages))
	for _, s := range o.stages {
		out = append(out, StageInfo{Name: s.name, Reach: s.reach, Breaker: s.breaker.State()})
	}
	return out
}

// SetVoices replaces the voice table for later calls.
func (o *Orchestrator) SetVoices(t VoiceTable) {
	if t == nil {
		t = DefaultVoices()
	}
	o.voices.Store(&t)
}

func (o *Orchestrator) onBreakerChange(name string, _, to resilience.State) {
	if o.metrics != nil {
		o.metrics.RecordBreakerTransition(context.Background(), name, to.String())
	}
}

// Synthesize renders req.Text and returns the resulting file.
//
// Errors: [tts.ErrEmptyText] for blank text, [*ModeUnavailableError] when a
// restricted mode has no working stage, [ErrNoMethodAvailable] when nothing
// works in auto mode, [ErrGenericFailure] for local I/O problems, and the
// context error when ctx ends.
func (o *Orchestrator) Synthesize(ctx context.Context, req Request) (Result, error) {
	ctx, span := observe.StartSpan(ctx, "synth.Synthesize", observe.Attr("mode", req.Mode.String()))
	res, err := o.synthesize(ctx, req)
	if err == nil {
		span.SetAttributes(observe.Attr("backend", res.Backend))
	}
	observe.EndSpan(span, err)
	return res, err
}

func (o *Orchestrator) synthesize(ctx context.Context, req Request) (Result, error) {
	log := observe.Logger(ctx).With("mode", req.Mode.String())
	start := time.Now()

	if strings.TrimSpace(req.Text) == "" {
		return Result{}, tts.ErrEmptyText
	}
	if o.sweeper != nil {
		// Before writing, so a fresh file is never a candidate.
		o.sweeper.MaybeSweep(ctx)
	}

	var (
		attempts []Attempt
		errs     []error
	)
	for _, st := range o.stages {
		if !req.Mode.allows(st.reach) {
			continue
		}

		t0 := time.Now()
		path, err := o.attempt(ctx, st, req)
		a := Attempt{Backend: st.name, Duration: time.Since(t0), Err: err}
		attempts = append(attempts, a)
		o.recordAttempt(ctx, st.name, req.Mode, err)

		if err == nil {
			res := Result{
				Path:      path,
				Format:    st.provider.Format(),
				Backend:   st.name,
				SingleUse: req.SingleUse,
				Attempts:  attempts,
			}
			if o.norm != nil {
				res.Path, res.Format, _ = o.norm.Normalize(ctx, res.Path, res.Format)
			}
			o.recordRequest(ctx, req.Mode, st.name, start)
			log.Info("synth: audio ready", "backend", st.name, "attempts", len(attempts), "duration", time.Since(start))
			return res, nil
		}

		if errors.Is(err, ErrGenericFailure) {
			o.recordRequest(ctx, req.Mode, CodeGenericFailure, start)
			return Result{}, err
		}
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("synth: %w", ctx.Err())
		}
		log.Warn("synth: backend failed, trying next", "backend", st.name, "err", err)
		errs = append(errs, fmt.Errorf("%s: %w", st.name, err))
	}

	var err error
	switch req.Mode {
	case ModeOnline, ModeOffline:
		err = &ModeUnavailableError{Mode: req.Mode, Err: errors.Join(errs...)}
	default:
		err = fmt.Errorf("%w: %w", ErrNoMethodAvailable, errors.Join(errs...))
		if len(errs) == 0 {
			err = ErrNoMethodAvailable
		}
	}
	d := Describe(err, "")
	o.recordRequest(ctx, req.Mode, d.Code, start)
	log.Error("synth: every backend failed", "attempts", len(attempts), "err", err)
	return Result{}, err
}

// attempt runs one stage into a fresh file. On failure the file is removed.
func (o *Orchestrator) attempt(ctx context.Context, st *stage, req Request) (string, error) {
	path := filepath.Join(o.dir, "tts_"+strings.ReplaceAll(uuid.NewString(), "-", "")+st.provider.Format().Ext())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("%w: create output file: %w", ErrGenericFailure, err)
	}

	voice := o.voiceProfile(st, req)
	actx, cancel := context.WithTimeout(ctx, o.attemptTimeout)
	defer cancel()

	err = st.breaker.Execute(func() error {
		if err := st.provider.Synthesize(actx, req.Text, voice, f); err != nil {
			return err
		}
		info, err := f.Stat()
		if err != nil {
			return err
		}
		if info.Size() == 0 {
			return errEmptyOutput
		}
		return nil
	})
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("%w: close output file: %w", ErrGenericFailure, cerr)
	}
	if err != nil {
		if rerr := os.Remove(path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			observe.Logger(ctx).Warn("synth: remove failed output", "path", path, "err", rerr)
		}
		return "", err
	}
	return path, nil
}

func (o *Orchestrator) recordAttempt(ctx context.Context, backend string, mode Mode, err error) {
	if o.metrics == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, resilience.ErrCircuitOpen):
		result = "circuit_open"
	case errors.Is(err, errEmptyOutput):
		result = "empty"
	case errors.Is(err, context.DeadlineExceeded):
		result = "timeout"
	default:
		result = "error"
	}
	o.metrics.RecordSynthesisAttempt(ctx, backend, mode.String(), result)
}

func (o *Orchestrator) recordRequest(ctx context.Context, mode Mode, outcome string, start time.Time) {
	if o.metrics != nil {
		o.metrics.RecordSynthesis(ctx, mode.String(), outcome, time.Since(start))
	}
}
