package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrPoolClosed is returned by [Pool.Acquire] after [Pool.Close].
var ErrPoolClosed = errors.New("stt: pool is closed")

// Factory creates one engine instance for a [Pool]. It is called lazily,
// the first time a slot is needed, so a slow model load does not delay
// startup.
type Factory func(ctx context.Context) (Provider, error)

// Pool bounds concurrent access to a non-reentrant engine. Each slot holds
// at most one engine instance; a caller holding a [Handle] has exclusive use
// of that instance until it calls [Handle.Release].
//
// Pool itself implements [Provider], acquiring and releasing a handle around
// every call, so it can be injected wherever a Provider is expected.
type Pool struct {
	sem     *semaphore.Weighted
	factory Factory

	mu     sync.Mutex
	idle   []Provider
	all    []Provider
	closed bool
}

var _ Provider = (*Pool)(nil)

// NewPool returns a pool of at most size engine instances created by factory.
func NewPool(size int, factory Factory) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("stt: pool size must be positive, got %d", size)
	}
	if factory == nil {
		return nil, errors.New("stt: pool factory must not be nil")
	}
	return &Pool{
		sem:     semaphore.NewWeighted(int64(size)),
		factory: factory,
	}, nil
}

// Handle is exclusive access to one pooled engine.
type Handle struct {
	Provider
	pool *Pool
	once sync.Once
}

// Release returns the engine to the pool. Calling Release more than once is
// safe.
func (h *Handle) Release() {
	h.once.Do(func() { h.pool.put(h.Provider) })
}

// Acquire blocks until a slot is free or ctx is done, then returns a handle
// to an idle engine, creating one if needed. The caller must call
// [Handle.Release].
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("stt: acquire engine: %w", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, ErrPoolClosed
	}
	if n := len(p.idle); n > 0 {
		prov := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return &Handle{Provider: prov, pool: p}, nil
	}
	p.mu.Unlock()

	prov, err := p.factory(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, fmt.Errorf("stt: create engine: %w", err)
	}

	p.mu.Lock()
	p.all = append(p.all, prov)
	p.mu.Unlock()
	return &Handle{Provider: prov, pool: p}, nil
}

func (p *Pool) put(prov Provider) {
	p.mu.Lock()
	if !p.closed {
		p.idle = append(p.idle, prov)
	}
	p.mu.Unlock()
	p.sem.Release(1)
}

// Transcribe runs one call on a pooled engine.
func (p *Pool) Transcribe(ctx context.Context, path string, opts Options) (Transcript, error) {
	h, err := p.Acquire(ctx)
	if err != nil {
		return Transcript{}, err
	}
	defer h.Release()
	return h.Transcribe(ctx, path, opts)
}

// Size reports how many engine instances have been created so far.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.all)
}

// Close marks the pool closed and closes every engine that implements
// io.Closer. Engines still held by callers are closed as well; callers must
// not use them afterwards.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	all := p.all
	p.all, p.idle = nil, nil
	p.mu.Unlock()

	var errs []error
	for _, prov := range all {
		if c, ok := prov.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
