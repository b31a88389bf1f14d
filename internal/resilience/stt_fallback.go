package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/MrWong99/speakeasy/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across
// several transcription backends. Each backend has its own circuit breaker.
//
// [stt.ErrNoSpeech] is an answer, not a failure: it is returned immediately
// and does not count against the backend's breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var (
	_ stt.Provider = (*STTFallback)(nil)
	_ io.Closer    = (*STTFallback)(nil)
)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Backends returns the backend names in the order they are tried.
func (f *STTFallback) Backends() []string {
	return f.group.Names()
}

// Transcribe runs the first healthy backend and falls over to the next one on
// error.
func (f *STTFallback) Transcribe(ctx context.Context, path string, opts stt.Options) (stt.Transcript, error) {
	noSpeech := false
	tr, err := ExecuteWithResult(ctx, f.group, func(p stt.Provider) (stt.Transcript, error) {
		tr, err := p.Transcribe(ctx, path, opts)
		if errors.Is(err, stt.ErrNoSpeech) {
			noSpeech = true
			return stt.Transcript{}, nil
		}
		return tr, err
	})
	if err != nil {
		return stt.Transcript{}, err
	}
	if noSpeech {
		return stt.Transcript{}, stt.ErrNoSpeech
	}
	return tr, nil
}

// Close closes every backend that implements io.Closer.
func (f *STTFallback) Close() error {
	var errs []error
	for _, e := range f.group.entries {
		if c, ok := e.value.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
			}
		}
	}
	return errors.Join(errs...)
}
