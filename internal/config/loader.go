package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/speakeasy/internal/synth"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper-native", "whisper", "openai", "deepgram"},
	"tts": {"edge", "espeak", "gtranslate", "elevenlabs", "openai", "coqui"},
}

// envRef matches ${NAME} references.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv replaces every ${NAME} in data with the value of the environment
// variable NAME. Unset variables expand to the empty string. A bare $NAME is
// left untouched so that regular expressions in the file survive.
func ExpandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		return []byte(os.Getenv(string(envRef.FindSubmatch(m)[1])))
	})
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// A .env file next to the config, if present, is loaded into the process
// environment first; variables that are already set are not overridden.
func Load(path string) (*Config, error) {
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load %q: %w", envPath, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader expands ${VAR} references, decodes a YAML config from r,
// applies defaults and validates the result. Unknown keys are rejected.
// An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(ExpandEnv(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if r := cfg.Server.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("server.trace_sample_ratio %v must be between 0 and 1", r))
	}
	if cfg.Server.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes %d must not be negative", cfg.Server.MaxUploadBytes))
	}
	if rl := cfg.Server.RateLimit; rl.Requests < 0 || rl.Window < 0 {
		errs = append(errs, errors.New("server.rate_limit values must not be negative"))
	}

	// Transcription
	validateProviderName("stt", cfg.Transcription.Provider.Name)
	if cfg.Transcription.Provider.Name == "" {
		slog.Warn("transcription.provider is not configured; only text comparison will be available")
	}
	for i, fb := range cfg.Transcription.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("transcription.fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("stt", fb.Name)
	}
	if len(cfg.Transcription.Fallbacks) > 0 && cfg.Transcription.Provider.Name == "" {
		errs = append(errs, errors.New("transcription.fallbacks requires transcription.provider"))
	}
	if cfg.Transcription.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("transcription.pool_size %d must not be negative", cfg.Transcription.PoolSize))
	}

	// Assessment
	if _, err := cfg.Assessment.Scorer(); err != nil {
		errs = append(errs, fmt.Errorf("assessment: %w", err))
	}

	// Synthesis
	syn := cfg.Synthesis
	if syn.TTL != nil && *syn.TTL <= 0 {
		errs = append(errs, fmt.Errorf("synthesis.ttl %v must be positive", *syn.TTL))
	}
	if syn.SweepInterval < 0 {
		errs = append(errs, fmt.Errorf("synthesis.sweep_interval %v must not be negative", syn.SweepInterval))
	}
	if syn.AttemptTimeout < 0 {
		errs = append(errs, fmt.Errorf("synthesis.attempt_timeout %v must not be negative", syn.AttemptTimeout))
	}
	if len(syn.Stages) == 0 {
		slog.Warn("synthesis.stages is empty; every synthesis request will fail")
	}
	stagesSeen := make(map[string]int, len(syn.Stages))
	for i, st := range syn.Stages {
		prefix := fmt.Sprintf("synthesis.stages[%d]", i)
		if st.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		validateProviderName("tts", st.Name)
		name := st.StageName()
		if prev, ok := stagesSeen[name]; ok {
			errs = append(errs, fmt.Errorf("%s: stage %q is a duplicate of synthesis.stages[%d]", prefix, name, prev))
		}
		stagesSeen[name] = i
		if _, err := synth.ParseReach(st.Reach); err != nil {
			errs = append(errs, fmt.Errorf("%s.reach: %w", prefix, err))
		}
		if st.VoicePattern != "" {
			if _, err := regexp.Compile(st.VoicePattern); err != nil {
				errs = append(errs, fmt.Errorf("%s.voice_pattern: %w", prefix, err))
			}
		}
	}
	for stage := range syn.Voices {
		if _, ok := stagesSeen[stage]; !ok && len(syn.Stages) > 0 {
			slog.Warn("synthesis.voices names a stage that is not configured", "stage", stage)
		}
	}
	if b := syn.Breaker; b.MaxFailures < 0 || b.HalfOpenMax < 0 || b.ResetTimeout < 0 {
		errs = append(errs, errors.New("synthesis.breaker values must not be negative"))
	}

	// Progress
	if !cfg.Progress.Kind.IsValid() {
		errs = append(errs, fmt.Errorf("progress.kind %q is invalid; valid values: nop, file, postgres", cfg.Progress.Kind))
	}
	if cfg.Progress.Kind == ProgressFile && cfg.Progress.Path == "" {
		errs = append(errs, errors.New("progress.path is required when kind is file"))
	}
	if cfg.Progress.Kind == ProgressPostgres && cfg.Progress.PostgresDSN == "" {
		errs = append(errs, errors.New("progress.postgres_dsn is required when kind is postgres"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
