// Package transcribe turns a learner's recording into an
// [assess.Transcription].
//
// The [Adapter] never returns an error. A missing file, an undecodable upload
// or a failing engine all yield an empty transcription with a
// [assess.Failure] marker, which the scorer reports as silent input. The
// detail goes to the log.
package transcribe

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/MrWong99/speakeasy/internal/assess"
	"github.com/MrWong99/speakeasy/internal/observe"
	"github.com/MrWong99/speakeasy/pkg/audio"
	"github.com/MrWong99/speakeasy/pkg/provider/stt"
)

// sentinels are placeholder strings some engines and older clients emit
// instead of an empty result. They are compared case-insensitively.
var sentinels = []string{
	"[no speech detected]",
	"[transcription error]",
	"[low volume or unclear speech detected]",
	"[blank_audio]",
}

// Option configures an [Adapter].
type Option func(*Adapter)

// WithNormalizer converts uploads to 16 kHz mono WAV before they reach the
// engine. Without one, files are passed to the engine unchanged.
func WithNormalizer(n *audio.Normalizer) Option {
	return func(a *Adapter) { a.norm = n }
}

// WithMetrics records transcription latency.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Adapter) { a.metrics = m }
}

// WithBackendName labels metrics and logs. Defaults to "stt".
func WithBackendName(name string) Option {
	return func(a *Adapter) {
		if name != "" {
			a.backend = name
		}
	}
}

// WithTempDir sets where converted copies are written. Defaults to
// [os.TempDir].
func WithTempDir(dir string) Option {
	return func(a *Adapter) { a.tmpDir = dir }
}

// Adapter wraps an [stt.Provider]. It is safe for concurrent use as long as
// the provider is; share a non-reentrant engine through an [stt.Pool].
type Adapter struct {
	engine  stt.Provider
	norm    *audio.Normalizer
	metrics *observe.Metrics
	backend string
	tmpDir  string
}

// New returns an Adapter over engine.
func New(engine stt.Provider, opts ...Option) *Adapter {
	a := &Adapter{engine: engine, backend: "stt"}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Transcribe recognises the speech in the file at path. language is a
// BCP-47 hint and may be empty.
func (a *Adapter) Transcribe(ctx context.Context, path, language string) assess.Transcription {
	log := observe.Logger(ctx).With("backend", a.backend, "path", path)

	st, err := os.Stat(path)
	if err != nil || st.IsDir() || st.Size() == 0 {
		log.Warn("transcribe: no audio", "err", err)
		return assess.Transcription{Failure: assess.FailureNoAudio}
	}

	input, cleanup, err := a.prepare(ctx, path)
	if err != nil {
		log.Warn("transcribe: audio could not be decoded", "err", err)
		return assess.Transcription{Failure: assess.FailureUnreadable}
	}
	defer cleanup()

	start := time.Now()
	tr, err := a.engine.Transcribe(ctx, input, stt.Options{Language: language})
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, stt.ErrNoSpeech):
		a.record(ctx, "no_speech", elapsed)
		return assess.Transcription{Failure: assess.FailureNoSpeech}
	case err != nil:
		a.record(ctx, "error", elapsed)
		log.Error("transcribe: engine failed", "err", err, "duration", elapsed)
		return assess.Transcription{Failure: assess.FailureEngineError}
	}

	text := strings.TrimSpace(tr.Text)
	if text == "" || IsSentinel(text) {
		a.record(ctx, "no_speech", elapsed)
		log.Debug("transcribe: no speech recognised", "raw", tr.Text)
		return assess.Transcription{Failure: assess.FailureNoSpeech}
	}

	a.record(ctx, "ok", elapsed)
	log.Debug("transcribe: done", "chars", len(text), "duration", elapsed)
	return assess.Transcription{Text: text, Confidence: tr.Confidence}
}

// prepare returns the file the engine should read and a cleanup func that
// removes any temporary copy.
func (a *Adapter) prepare(ctx context.Context, path string) (string, func(), error) {
	noop := func() {}
	if a.norm == nil {
		return path, noop, nil
	}

	tmp, err := os.CreateTemp(a.tmpDir, "speech-*.wav")
	if err != nil {
		return "", noop, err
	}
	out := tmp.Name()
	tmp.Close()
	cleanup := func() {
		if err := os.Remove(out); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("transcribe: remove temporary file", "path", out, "err", err)
		}
	}

	err = a.norm.ToSpeechWAV(ctx, path, out)
	if err == nil {
		return out, cleanup, nil
	}
	cleanup()

	// Without ffmpeg a compressed upload can still go to engines that
	// decode it themselves. A WAV that failed in-process is corrupt.
	if f, ok := audio.FormatOf(path); errors.Is(err, audio.ErrNoConverter) && ok && f != audio.FormatWAV {
		return path, noop, nil
	}
	return "", noop, err
}

func (a *Adapter) record(ctx context.Context, result string, d time.Duration) {
	if a.metrics != nil {
		a.metrics.RecordTranscription(ctx, a.backend, result, d)
	}
}

// IsSentinel reports whether text is a placeholder that means "nothing was
// heard" rather than real speech.
func IsSentinel(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	for _, s := range sentinels {
		if t == s {
			return true
		}
	}
	return false
}
