// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps one speech synthesis service (Microsoft Edge neural
// voices, a local espeak-ng binary, a Coqui server, a cloud API) and renders
// a complete utterance into one audio file. Learners hear short prompts and
// feedback sentences, so there is no streaming surface: the caller gets a
// whole, playable file or an error.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
	"io"

	"github.com/MrWong99/speakeasy/pkg/audio"
)

// ErrEmptyText is returned when asked to synthesise blank text.
var ErrEmptyText = errors.New("tts: text must not be empty")

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with voice and writes one complete audio file
	// in [Provider.Format] to w. A voice with an empty ID selects the
	// backend's default voice.
	//
	// Returns an error if the backend cannot be reached, rejects the request
	// or ctx is cancelled. Bytes may already have been written to w when an
	// error is returned; callers must discard partial output.
	Synthesize(ctx context.Context, text string, voice VoiceProfile, w io.Writer) error

	// Format is the container the provider writes.
	Format() audio.Format
}

// VoiceLister is implemented by providers that can enumerate their voices.
type VoiceLister interface {
	// ListVoices returns the voices the backend currently offers.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
