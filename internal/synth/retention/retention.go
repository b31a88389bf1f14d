// Package retention deletes synthesized audio files once they are older than
// a time-to-live.
//
// Only files following the synthesis naming convention (tts_<id>.<ext>, with
// ext one of the [audio.Format] extensions) are considered; anything else in the directory is left
// alone. A [Sweeper] can be triggered opportunistically after each synthesis
// ([Sweeper.MaybeSweep], throttled) and additionally run on a ticker
// ([Sweeper.Run]).
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/MrWong99/speakeasy/internal/observe"
	"github.com/MrWong99/speakeasy/pkg/audio"
)

// namePattern matches files written by the synthesis orchestrator.
// The extension must also be a known [audio.Format].
var namePattern = regexp.MustCompile(`^tts_[0-9a-f]+\.[a-z0-9]+$`)

// IsSynthesisFile reports whether name follows the synthesis naming
// convention. Only the base name is inspected.
func IsSynthesisFile(name string) bool {
	base := filepath.Base(name)
	if !namePattern.MatchString(base) {
		return false
	}
	_, ok := audio.FormatOf(base)
	return ok
}

// Sweep deletes every synthesis file in dir whose modification time is more
// than ttl ago and returns how many were removed. A ttl of zero removes all
// of them. Files that vanish mid-sweep are ignored; other deletion errors are
// collected and returned together.
func Sweep(dir string, ttl time.Duration) (int, error) {
	return sweep(dir, ttl, time.Now())
}

func sweep(dir string, ttl time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("retention: read %s: %w", dir, err)
	}

	var (
		removed int
		errs    []error
	)
	for _, e := range entries {
		if !e.Type().IsRegular() || !IsSynthesisFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if ttl > 0 && now.Sub(info.ModTime()) < ttl {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		removed++
	}
	if len(errs) > 0 {
		return removed, fmt.Errorf("retention: sweep %s: %w", dir, errors.Join(errs...))
	}
	return removed, nil
}

// Option configures a [Sweeper].
type Option func(*Sweeper)

// WithMinInterval sets the least time between two opportunistic sweeps.
// Defaults to one minute.
func WithMinInterval(d time.Duration) Option {
	return func(s *Sweeper) { s.minInterval = d }
}

// WithMetrics counts removed files.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

// WithClock replaces the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// Sweeper removes expired synthesis files from one directory. It is safe for
// concurrent use; overlapping triggers collapse into one sweep.
type Sweeper struct {
	dir         string
	ttl         time.Duration
	minInterval time.Duration
	metrics     *observe.Metrics
	now         func() time.Time

	mu       sync.Mutex
	lastRun  time.Time
	sweeping bool
}

// New returns a Sweeper for dir with the given ttl.
func New(dir string, ttl time.Duration, opts ...Option) *Sweeper {
	s := &Sweeper{
		dir:         dir,
		ttl:         ttl,
		minInterval: time.Minute,
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Dir returns the swept directory.
func (s *Sweeper) Dir() string { return s.dir }

// TTL returns the configured time-to-live.
func (s *Sweeper) TTL() time.Duration { return s.ttl }

// Sweep removes expired files now, regardless of throttling.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	if s.sweeping {
		s.mu.Unlock()
		return 0, nil
	}
	s.sweeping = true
	s.mu.Unlock()

	n, err := sweep(s.dir, s.ttl, s.now())

	s.mu.Lock()
	s.sweeping = false
	s.lastRun = s.now()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordSwept(ctx, n)
	}
	if n > 0 {
		observe.Logger(ctx).Debug("retention: swept expired audio", "dir", s.dir, "removed", n)
	}
	return n, err
}

// MaybeSweep sweeps only if the last sweep is at least the minimum interval
// ago. Errors are logged, not returned.
func (s *Sweeper) MaybeSweep(ctx context.Context) {
	s.mu.Lock()
	due := !s.sweeping && s.now().Sub(s.lastRun) >= s.minInterval
	s.mu.Unlock()
	if !due {
		return
	}
	if _, err := s.Sweep(ctx); err != nil {
		slog.Warn("retention: sweep failed", "dir", s.dir, "err", err)
	}
}

// Run sweeps every interval until ctx is cancelled. It always returns nil so
// it can run in an errgroup next to the server.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := s.Sweep(ctx); err != nil {
				slog.Warn("retention: periodic sweep failed", "dir", s.dir, "err", err)
			}
		}
	}
}
