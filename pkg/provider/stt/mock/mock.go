// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to return a controlled Transcript and inspect which files
// were submitted. Set Block to hold calls open, which lets tests observe how
// many callers are inside the engine at once.
//
// Example:
//
//	p := &mock.Provider{Result: stt.Transcript{Text: "good morning"}}
//	tr, _ := p.Transcribe(ctx, "/tmp/a.wav", stt.Options{Language: "en"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/speakeasy/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Path is the audio file path passed to Transcribe.
	Path string
	// Opts is the Options value passed to Transcribe.
	Opts stt.Options
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by every successful Transcribe call.
	Result stt.Transcript

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Block, if non-nil, makes Transcribe wait until the channel is closed
	// or ctx is done before returning.
	Block chan struct{}

	// Calls records every call to Transcribe.
	Calls []TranscribeCall

	// Closed reports whether Close has been called.
	Closed bool

	inFlight    int
	maxInFlight int
}

// Transcribe records the call and returns Result, Err.
func (p *Provider) Transcribe(ctx context.Context, path string, opts stt.Options) (stt.Transcript, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, TranscribeCall{Path: path, Opts: opts})
	p.inFlight++
	p.maxInFlight = max(p.maxInFlight, p.inFlight)
	block := p.Block
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inFlight--
		p.mu.Unlock()
	}()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return stt.Transcript{}, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return stt.Transcript{}, p.Err
	}
	return p.Result, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// MaxConcurrent returns the highest number of simultaneous Transcribe calls
// observed. Thread-safe.
func (p *Provider) MaxConcurrent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxInFlight
}

// Close records the call. It lets the mock stand in for engines that hold
// native resources.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
	p.maxInFlight = 0
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
