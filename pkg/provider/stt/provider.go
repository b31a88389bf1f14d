// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch transcription engine (a local whisper.cpp
// model, a whisper.cpp server, or a cloud API) and exposes a uniform
// file-in, text-out call. Learners record a complete utterance before it is
// assessed, so there is no streaming surface.
//
// Engines are not assumed to be reentrant. Callers that share one engine
// across goroutines should go through a [Pool], which bounds the number of
// concurrent calls and hands out one engine instance per caller.
package stt

import (
	"context"
	"errors"
)

// ErrNoSpeech is returned by providers that can tell the difference between
// a failed call and audio that contains no recognisable speech.
var ErrNoSpeech = errors.New("stt: no speech detected")

// Options carries recognition hints for a single call.
type Options struct {
	// Language is the BCP-47 language tag for recognition (e.g., "en",
	// "hi-IN"). An empty string lets the provider use its default or
	// auto-detect, if supported.
	Language string
}

// Provider is the abstraction over any STT backend.
//
// Implementations document whether they are safe for concurrent use. Those
// that are not must be wrapped in a [Pool] before being shared.
type Provider interface {
	// Transcribe recognises the speech in the audio file at path. Providers
	// accept 16 kHz mono 16-bit WAV; other formats are provider-specific.
	//
	// Returns an error if the file cannot be read, the engine fails, or ctx
	// is cancelled. An empty Transcript.Text with a nil error means the
	// engine ran but heard nothing.
	Transcribe(ctx context.Context, path string, opts Options) (Transcript, error)
}
