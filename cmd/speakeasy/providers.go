package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"time"

	"github.com/MrWong99/speakeasy/internal/app"
	"github.com/MrWong99/speakeasy/internal/config"
	"github.com/MrWong99/speakeasy/internal/resilience"
	"github.com/MrWong99/speakeasy/internal/synth"
	"github.com/MrWong99/speakeasy/pkg/provider/stt"
	"github.com/MrWong99/speakeasy/pkg/provider/stt/deepgram"
	sttopenai "github.com/MrWong99/speakeasy/pkg/provider/stt/openai"
	"github.com/MrWong99/speakeasy/pkg/provider/stt/whisper"
	"github.com/MrWong99/speakeasy/pkg/provider/tts"
	"github.com/MrWong99/speakeasy/pkg/provider/tts/coqui"
	"github.com/MrWong99/speakeasy/pkg/provider/tts/edge"
	"github.com/MrWong99/speakeasy/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/speakeasy/pkg/provider/tts/espeak"
	"github.com/MrWong99/speakeasy/pkg/provider/tts/gtranslate"
	ttsopenai "github.com/MrWong99/speakeasy/pkg/provider/tts/openai"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = config.OptString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithBaseURL(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []sttopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, sttopenai.WithTimeout(d))
		}
		if n := config.OptInt(entry.Options, "max_retries"); n > 0 {
			opts = append(opts, sttopenai.WithMaxRetries(n))
		}
		return sttopenai.New(entry.APIKey, entry.Model, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("edge", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []edge.Option
		if entry.BaseURL != "" {
			opts = append(opts, edge.WithEndpoint(entry.BaseURL))
		}
		if v := config.OptString(entry.Options, "default_voice"); v != "" {
			opts = append(opts, edge.WithDefaultVoice(v))
		}
		return edge.New(opts...), nil
	})

	reg.RegisterTTS("espeak", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []espeak.Option
		if bin := config.OptString(entry.Options, "binary"); bin != "" {
			opts = append(opts, espeak.WithBinary(bin))
		}
		if wpm := config.OptInt(entry.Options, "rate"); wpm > 0 {
			opts = append(opts, espeak.WithRate(wpm))
		}
		return espeak.New(opts...), nil
	})

	reg.RegisterTTS("gtranslate", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []gtranslate.Option
		if entry.BaseURL != "" {
			opts = append(opts, gtranslate.WithBaseURL(entry.BaseURL))
		}
		return gtranslate.New(opts...), nil
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if v := config.OptString(entry.Options, "default_voice"); v != "" {
			opts = append(opts, elevenlabs.WithDefaultVoice(v))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []ttsopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(entry.BaseURL))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, ttsopenai.WithTimeout(d))
		}
		if n := config.OptInt(entry.Options, "max_retries"); n > 0 {
			opts = append(opts, ttsopenai.WithMaxRetries(n))
		}
		return ttsopenai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := config.OptString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if v := config.OptString(entry.Options, "default_voice"); v != "" {
			opts = append(opts, coqui.WithDefaultVoice(v))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, coqui.WithTimeout(d))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	for _, kind := range []string{"stt", "tts"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates the transcription engine and the synthesis
// stages named in cfg and returns them for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if entry := cfg.Transcription.Provider; entry.Name != "" {
		primary, err := newEnginePool(reg, entry, cfg.Transcription.PoolSize)
		switch {
		case errors.Is(err, config.ErrProviderNotRegistered):
			slog.Warn("stt provider not available, skipping", "name", entry.Name)
		case err != nil:
			return nil, err
		case len(cfg.Transcription.Fallbacks) == 0:
			ps.STT = primary
		default:
			fb := resilience.NewSTTFallback(primary, entry.String(), resilience.FallbackConfig{})
			for _, fe := range cfg.Transcription.Fallbacks {
				p, err := newEnginePool(reg, fe, cfg.Transcription.PoolSize)
				if errors.Is(err, config.ErrProviderNotRegistered) {
					slog.Warn("stt fallback not available, skipping", "name", fe.Name)
					continue
				} else if err != nil {
					_ = fb.Close()
					return nil, err
				}
				fb.AddFallback(fe.String(), p)
			}
			ps.STT = fb
			slog.Info("stt fallback chain", "backends", fb.Backends())
		}
	}

	for i, sc := range cfg.Synthesis.Stages {
		name := sc.StageName()
		p, err := reg.CreateTTS(sc.ProviderEntry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("tts provider not available, skipping stage", "stage", name, "name", sc.Name)
			continue
		} else if err != nil {
			return nil, fmt.Errorf("create tts stage %d (%s): %w", i, name, err)
		}
		reach, err := synth.ParseReach(sc.Reach)
		if err != nil {
			return nil, fmt.Errorf("tts stage %s: %w", name, err)
		}
		stage := synth.Stage{Name: name, Reach: reach, Provider: p}
		if sc.VoicePattern != "" {
			re, err := regexp.Compile(sc.VoicePattern)
			if err != nil {
				return nil, fmt.Errorf("tts stage %s: voice_pattern: %w", name, err)
			}
			stage.AcceptsVoice = re.MatchString
		}
		ps.Stages = append(ps.Stages, stage)
		slog.Info("provider created", "kind", "tts", "stage", name, "name", sc.Name, "reach", sc.Reach)
	}

	return ps, nil
}

// newEnginePool creates one engine for entry and wraps it in a pool of the
// given size. Every slot shares that engine: the pool only bounds how many
// calls reach it at once.
func newEnginePool(reg *config.Registry, entry config.ProviderEntry, size int) (*stt.Pool, error) {
	engine, err := reg.CreateSTT(entry)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
	}
	pool, err := stt.NewPool(size, func(context.Context) (stt.Provider, error) {
		return engine, nil
	})
	if err != nil {
		if c, ok := engine.(io.Closer); ok {
			_ = c.Close()
		}
		return nil, fmt.Errorf("create stt pool: %w", err)
	}
	slog.Info("provider created", "kind", "stt", "name", entry.Name, "pool_size", size)
	return pool, nil
}

// optDuration reads a duration option given either as a Go duration string
// ("30s") or as a number of seconds.
func optDuration(opts map[string]any, key string) time.Duration {
	if s := config.OptString(opts, key); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0
		}
		return d
	}
	return time.Duration(config.OptInt(opts, key)) * time.Second
}
