// Package espeak provides an offline TTS provider that shells out to the
// espeak-ng speech synthesizer. No network access or model download is
// needed, which makes it the last-resort local voice when every online
// backend is unreachable.
//
// Usage:
//
//	p := espeak.New(espeak.WithRate(160))
//	err := p.Synthesize(ctx, "Try again", tts.VoiceProfile{Language: "en-IN"}, f)
package espeak

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/MrWong99/speakeasy/pkg/audio"
	"github.com/MrWong99/speakeasy/pkg/provider/tts"
)

// defaultRate is the speaking rate in words per minute.
const defaultRate = 170

// ErrNotInstalled is returned when neither espeak-ng nor espeak is on PATH.
var ErrNotInstalled = errors.New("espeak: espeak-ng binary not found")

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the espeak Provider.
type Option func(*Provider)

// WithBinary sets the synthesizer binary explicitly instead of searching
// PATH for espeak-ng and espeak.
func WithBinary(path string) Option {
	return func(p *Provider) {
		p.bin = path
		p.resolved = true
	}
}

// WithRate sets the base speaking rate in words per minute. Defaults to 170.
func WithRate(wpm int) Option {
	return func(p *Provider) {
		if wpm > 0 {
			p.rate = wpm
		}
	}
}

// Provider implements tts.Provider by running one espeak-ng process per
// utterance. It is safe for concurrent use.
type Provider struct {
	rate int

	once     sync.Once
	bin      string
	resolved bool
}

// New creates a new espeak Provider. The binary is resolved lazily on first
// use so construction never fails.
func New(opts ...Option) *Provider {
	p := &Provider{rate: defaultRate}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Available reports whether a synthesizer binary can be found.
func (p *Provider) Available() bool { return p.binary() != "" }

func (p *Provider) binary() string {
	p.once.Do(func() {
		if p.resolved {
			return
		}
		for _, name := range []string{"espeak-ng", "espeak"} {
			if path, err := exec.LookPath(name); err == nil {
				p.bin = path
				return
			}
		}
	})
	return p.bin
}

// Format implements tts.Provider.
func (p *Provider) Format() audio.Format { return audio.FormatWAV }

// Synthesize implements tts.Provider. Text is fed on stdin and the WAV is
// read from stdout.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile, w io.Writer) error {
	bin := p.binary()
	if bin == "" {
		return ErrNotInstalled
	}

	name := voice.ID
	if name == "" {
		name = VoiceFor(voice.Language, voice.Gender)
	}
	if strings.HasPrefix(name, "en") {
		// English voices spell out non-Latin scripts letter by letter.
		text = asciiOnly(text)
	}
	if strings.TrimSpace(text) == "" {
		return tts.ErrEmptyText
	}

	rate := p.rate
	if voice.SpeedFactor > 0 {
		rate = int(float64(rate) * voice.SpeedFactor)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "--stdout", "-v", name, "-s", strconv.Itoa(rate), "--stdin")
	cmd.Stdin = strings.NewReader(text)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("espeak: run %s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}

	pcm, _, err := audio.DecodeWAV(bytes.NewReader(stdout.Bytes()))
	if err != nil {
		return fmt.Errorf("espeak: decode output: %w", err)
	}
	if len(pcm) == 0 {
		return errors.New("espeak: produced no samples")
	}
	if _, err := w.Write(stdout.Bytes()); err != nil {
		return fmt.Errorf("espeak: write audio: %w", err)
	}
	return nil
}

// VoiceFor picks an espeak-ng voice for a language tag and gender, e.g.
// ("en-IN", female) → "en-us+f3" and ("hi", male) → "hi+m3".
func VoiceFor(lang string, g tts.Gender) string {
	base := "en-us"
	switch tts.BaseLanguage(lang) {
	case "hi", "hinglish":
		base = "hi"
	case "en":
		if strings.EqualFold(lang, "en-GB") {
			base = "en-gb"
		}
	}
	variant := "+f3"
	if g == tts.GenderMale {
		variant = "+m3"
	}
	return base + variant
}

func asciiOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, s)
}
