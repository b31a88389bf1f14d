// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to return controlled audio bytes or errors and to verify the
// text and VoiceProfile that reached the backend.
//
// Example:
//
//	p := &mock.Provider{Audio: []byte("ID3..."), AudioFormat: audio.FormatMP3}
//	err := p.Synthesize(ctx, "hello", tts.VoiceProfile{}, w)
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/MrWong99/speakeasy/pkg/audio"
	"github.com/MrWong99/speakeasy/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Text is the text passed to Synthesize.
	Text string
	// Voice is the VoiceProfile passed to Synthesize.
	Voice tts.VoiceProfile
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Audio is written to w on success. Nil writes nothing, which lets tests
	// exercise empty-output handling.
	Audio []byte

	// AudioFormat is returned by Format. Defaults to mp3.
	AudioFormat audio.Format

	// Err, if non-nil, is returned from Synthesize after PartialAudio (if
	// any) has been written.
	Err error

	// PartialAudio is written before Err is returned.
	PartialAudio []byte

	// Block, when non-nil, makes Synthesize wait until the channel is closed
	// or ctx is done.
	Block chan struct{}

	// Voices is returned by ListVoices.
	Voices []tts.VoiceProfile

	// ListErr, if non-nil, is returned from ListVoices instead of Voices.
	ListErr error

	// --- Call records ---

	// Calls records every call to Synthesize.
	Calls []SynthesizeCall
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile, w io.Writer) error {
	p.mu.Lock()
	p.Calls = append(p.Calls, SynthesizeCall{Text: text, Voice: voice})
	block, data, partial, err := p.Block, p.Audio, p.PartialAudio, p.Err
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		if len(partial) > 0 {
			_, _ = w.Write(partial)
		}
		return err
	}
	if len(data) > 0 {
		if _, werr := w.Write(data); werr != nil {
			return werr
		}
	}
	return nil
}

// Format implements tts.Provider.
func (p *Provider) Format() audio.Format {
	if p.AudioFormat == "" {
		return audio.FormatMP3
	}
	return p.AudioFormat
}

// ListVoices implements tts.VoiceLister.
func (p *Provider) ListVoices(context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ListErr != nil {
		return nil, p.ListErr
	}
	return append([]tts.VoiceProfile(nil), p.Voices...), nil
}

// CallCount returns the number of Synthesize calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastCall returns the most recent call and whether there was one.
// Thread-safe.
func (p *Provider) LastCall() (SynthesizeCall, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		return SynthesizeCall{}, false
	}
	return p.Calls[len(p.Calls)-1], true
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)
