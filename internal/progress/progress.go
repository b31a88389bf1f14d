// Package progress records learner practice events after an assessment.
//
// The assessment core never depends on a [Recorder] succeeding: callers log
// and drop recording errors. Implementations are [Nop], [FileRecorder]
// (append-only JSON lines) and the PostgreSQL recorder in the postgres
// subpackage.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// Event is one scored speaking attempt.
type Event struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Day       string    `json:"day"`
	Statement int       `json:"statement,omitempty"`
	Status    string    `json:"status"`
	Accuracy  float64   `json:"word_accuracy"`
	At        time.Time `json:"at"`
}

// Validate reports whether e identifies a learner and a day.
func (e Event) Validate() error {
	var errs []error
	if e.UserID == "" {
		errs = append(errs, errors.New("progress: user_id is required"))
	}
	if e.Day == "" {
		errs = append(errs, errors.New("progress: day is required"))
	}
	if e.Accuracy < 0 || e.Accuracy > 100 {
		errs = append(errs, fmt.Errorf("progress: word_accuracy %v out of range", e.Accuracy))
	}
	return errors.Join(errs...)
}

// Recorder persists practice events.
type Recorder interface {
	Record(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

// Record implements [Recorder].
func (Nop) Record(context.Context, Event) error { return nil }

var (
	_ Recorder = Nop{}
	_ Recorder = (*FileRecorder)(nil)
)

// FileRecorder appends events as JSON lines to a local file. Suitable for a
// single instance; use the PostgreSQL recorder when several share progress.
type FileRecorder struct {
	mu   sync.Mutex
	path string
}

// NewFileRecorder returns a recorder writing to path. The file is created on
// first use.
func NewFileRecorder(path string) *FileRecorder {
	return &FileRecorder{path: path}
}

// Record appends e to the file.
func (r *FileRecorder) Record(ctx context.Context, e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("progress: marshal: %w", err)
	}
	data = append(data, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("progress: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("progress: write: %w", err)
	}
	return nil
}
