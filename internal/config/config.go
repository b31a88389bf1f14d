// Package config provides the configuration schema, loader, and provider
// registry for the speakeasy server.
package config

import (
	"fmt"
	"time"

	"github.com/MrWong99/speakeasy/internal/assess"
	"github.com/MrWong99/speakeasy/internal/assess/align"
	"github.com/MrWong99/speakeasy/internal/synth"
)

// LogLevel controls log verbosity for the speakeasy server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// ProgressKind selects where practice progress is recorded.
type ProgressKind string

const (
	// ProgressNop discards progress events.
	ProgressNop ProgressKind = "nop"

	// ProgressFile appends progress events as JSON lines to a local file.
	ProgressFile ProgressKind = "file"

	// ProgressPostgres stores progress in PostgreSQL.
	ProgressPostgres ProgressKind = "postgres"
)

// IsValid reports whether k is a recognised progress backend.
func (k ProgressKind) IsValid() bool {
	switch k {
	case ProgressNop, ProgressFile, ProgressPostgres:
		return true
	}
	return false
}

// Config is the root configuration structure for speakeasy.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Assessment    AssessmentConfig    `yaml:"assessment"`
	Synthesis     SynthesisConfig     `yaml:"synthesis"`
	Progress      ProgressConfig      `yaml:"progress"`
	MCP           MCPConfig           `yaml:"mcp"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP API listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// AllowedOrigins lists the CORS origins allowed to call the API. Empty
	// allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// MaxUploadBytes caps the size of an uploaded recording. Zero uses the
	// built-in default of 25 MiB.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// TempDir is where uploads are staged. Empty uses the OS temp dir.
	TempDir string `yaml:"temp_dir"`

	// ShutdownTimeout bounds graceful shutdown. Default: 10s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// TraceSampleRatio is the fraction of new traces that are sampled, in
	// [0, 1]. Zero samples every trace.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// RateLimitConfig throttles the practice endpoints per client IP. A zero
// Requests disables rate limiting.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "edge",
	// "whisper-native").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "tts-1",
	// "nova-2") or, for whisper-native, the model file path.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// TranscriptionConfig selects the speech-to-text engine.
type TranscriptionConfig struct {
	Provider ProviderEntry `yaml:"provider"`

	// Fallbacks are tried in order when the primary engine fails or its
	// circuit breaker is open.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// PoolSize bounds concurrent transcriptions. Default: 2.
	PoolSize int `yaml:"pool_size"`

	// FFmpeg is the converter binary used to turn compressed uploads into
	// 16 kHz mono WAV. Empty searches PATH.
	FFmpeg string `yaml:"ffmpeg"`
}

// AssessmentConfig holds the scorer thresholds. Hot-reloadable.
type AssessmentConfig struct {
	DifferenceThreshold *float64    `yaml:"difference_threshold"`
	MatchThreshold      *float64    `yaml:"match_threshold"`
	Bands               BandsConfig `yaml:"bands"`

	// Strategy is "phonetic" (default) or "orthographic".
	Strategy string `yaml:"strategy"`

	// Alignment is "edit" (default) or "positional".
	Alignment string `yaml:"alignment"`

	// Dictionary is an optional CMU-style pronouncing dictionary that
	// replaces the built-in one.
	Dictionary string `yaml:"dictionary"`
}

// BandsConfig overrides the word-accuracy lower bound of each status band.
// Nil fields keep the default.
type BandsConfig struct {
	Excellent *float64 `yaml:"excellent"`
	Good      *float64 `yaml:"good"`
	Fair      *float64 `yaml:"fair"`
}

// Scorer converts the section into an [assess.Config], starting from
// [assess.DefaultConfig] and overriding whatever is set.
func (a AssessmentConfig) Scorer() (assess.Config, error) {
	cfg := assess.DefaultConfig()
	if a.DifferenceThreshold != nil {
		cfg.DifferenceThreshold = *a.DifferenceThreshold
	}
	if a.MatchThreshold != nil {
		cfg.MatchThreshold = *a.MatchThreshold
	}
	if a.Bands.Excellent != nil {
		cfg.Bands.Excellent = *a.Bands.Excellent
	}
	if a.Bands.Good != nil {
		cfg.Bands.Good = *a.Bands.Good
	}
	if a.Bands.Fair != nil {
		cfg.Bands.Fair = *a.Bands.Fair
	}
	st, err := assess.ParseStrategy(a.Strategy)
	if err != nil {
		return cfg, err
	}
	cfg.Strategy = st
	mode, err := align.ParseMode(a.Alignment)
	if err != nil {
		return cfg, err
	}
	cfg.Alignment = mode
	return cfg, cfg.Validate()
}

// SynthesisConfig configures the text-to-speech fallback chain.
type SynthesisConfig struct {
	// Dir receives synthesised files. Default: "<os temp>/speakeasy-tts".
	Dir string `yaml:"dir"`

	// TTL is how long a synthesised file may live before the retention
	// sweep removes it. Must be positive when set. Default: 10m.
	TTL *time.Duration `yaml:"ttl"`

	// SweepInterval is the period of the background sweep. Default: 1m.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// AttemptTimeout bounds each backend attempt. Default: 30s.
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`

	// Stages lists the backends in fallback order.
	Stages []StageConfig `yaml:"stages"`

	// Voices maps stage names to voice rules. Hot-reloadable. Nil keeps the
	// built-in table.
	Voices synth.VoiceTable `yaml:"voices"`

	Breaker BreakerConfig `yaml:"breaker"`
}

// StageConfig is one backend of the fallback chain.
type StageConfig struct {
	ProviderEntry `yaml:",inline"`

	// Stage names the stage in logs, voice tables and "stage:voice"
	// requests. Defaults to the provider name.
	Stage string `yaml:"stage"`

	// Reach is "online" or "offline".
	Reach string `yaml:"reach"`

	// VoicePattern is a regular expression matching bare voice ids that
	// belong to this stage (e.g., "Neural$" for edge).
	VoicePattern string `yaml:"voice_pattern"`
}

// StageName returns the configured stage name, falling back to the
// provider name.
func (s StageConfig) StageName() string {
	if s.Stage != "" {
		return s.Stage
	}
	return s.Name
}

// BreakerConfig tunes the per-stage circuit breakers. Zero values use the
// breaker defaults.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// ProgressConfig selects the practice progress store.
type ProgressConfig struct {
	// Kind is "nop" (default), "file" or "postgres".
	Kind ProgressKind `yaml:"kind"`

	// Path is the JSON lines file used by the file backend.
	Path string `yaml:"path"`

	// PostgresDSN is the connection string used by the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// MCPConfig configures the Model Context Protocol tool server.
type MCPConfig struct {
	// Stdio serves the practice tools over stdin/stdout instead of
	// starting the HTTP API.
	Stdio bool `yaml:"stdio"`
}

// Defaults for values left unset.
const (
	DefaultListenAddr      = ":8080"
	DefaultPoolSize        = 2
	DefaultTTL             = 10 * time.Minute
	DefaultSweepInterval   = time.Minute
	DefaultAttemptTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// ApplyDefaults fills unset values that have a built-in default.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Server.RateLimit.Requests > 0 && c.Server.RateLimit.Window == 0 {
		c.Server.RateLimit.Window = time.Minute
	}
	if c.Transcription.PoolSize == 0 {
		c.Transcription.PoolSize = DefaultPoolSize
	}
	if c.Synthesis.TTL == nil {
		ttl := DefaultTTL
		c.Synthesis.TTL = &ttl
	}
	if c.Synthesis.SweepInterval == 0 {
		c.Synthesis.SweepInterval = DefaultSweepInterval
	}
	if c.Synthesis.AttemptTimeout == 0 {
		c.Synthesis.AttemptTimeout = DefaultAttemptTimeout
	}
	if c.Progress.Kind == "" {
		c.Progress.Kind = ProgressNop
	}
}

// RetentionTTL returns the configured TTL or [DefaultTTL].
func (s SynthesisConfig) RetentionTTL() time.Duration {
	if s.TTL == nil {
		return DefaultTTL
	}
	return *s.TTL
}

// String renders a short summary for startup logs without secrets.
func (e ProviderEntry) String() string {
	if e.Model == "" {
		return e.Name
	}
	return fmt.Sprintf("%s(%s)", e.Name, e.Model)
}
