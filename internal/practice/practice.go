// Package practice runs the assessment request flow: accept an uploaded
// recording and a target sentence, transcribe, score, compose feedback and
// record progress.
//
// The flow is synchronous. Recording progress happens after the core has
// produced its result and never changes it; recorder errors are logged.
package practice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/speakeasy/internal/assess"
	"github.com/MrWong99/speakeasy/internal/assess/feedback"
	"github.com/MrWong99/speakeasy/internal/observe"
	"github.com/MrWong99/speakeasy/internal/progress"
)

// Input error codes.
const (
	CodeNoAudio     = "NO_AUDIO"
	CodeBadFilename = "BAD_FILENAME"
	CodeBadFormat   = "BAD_FORMAT"
	CodeNoText      = "NO_TEXT"
	CodeTooLarge    = "AUDIO_TOO_LARGE"
)

// DefaultMaxUploadBytes bounds a single recording.
const DefaultMaxUploadBytes = 25 << 20

// allowedExtensions are the upload formats accepted for assessment.
var allowedExtensions = map[string]bool{
	"wav":  true,
	"mp3":  true,
	"m4a":  true,
	"webm": true,
	"ogg":  true,
}

// InputError reports a request the service refuses before doing any work.
type InputError struct {
	Code    string
	Message string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("practice: %s: %s", e.Code, e.Message)
}

func inputError(code, msg string) error {
	return &InputError{Code: code, Message: msg}
}

// Transcriber converts a recording on disk into text. It never fails;
// problems are reported as an empty transcription with a failure marker.
// *transcribe.Adapter satisfies it.
type Transcriber interface {
	Transcribe(ctx context.Context, path, language string) assess.Transcription
}

// Upload is one recorded attempt.
type Upload struct {
	Audio    io.Reader
	Filename string

	ExpectedText string
	Language     string

	// UserID, Day and Statement identify the attempt for progress tracking.
	// Progress is only recorded when UserID and Day are set.
	UserID    string
	Day       string
	Statement int
}

// Assessment is the outcome of one attempt.
type Assessment struct {
	Result   assess.Result
	Feedback feedback.Feedback
}

// Option configures a [Service].
type Option func(*Service)

// WithRecorder sets the progress recorder. The default discards events.
func WithRecorder(r progress.Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTempDir sets where uploads are staged. Defaults to os.TempDir().
func WithTempDir(dir string) Option {
	return func(s *Service) { s.tmpDir = dir }
}

// WithMaxUploadBytes bounds the size of one recording.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// Service wires transcription, scoring, feedback and progress together.
// It is safe for concurrent use.
type Service struct {
	transcriber Transcriber
	scorer      *assess.Scorer
	composer    *feedback.Composer
	recorder    progress.Recorder
	metrics     *observe.Metrics
	tmpDir      string
	maxUpload   int64
}

// New returns a Service.
func New(t Transcriber, scorer *assess.Scorer, composer *feedback.Composer, opts ...Option) *Service {
	s := &Service{
		transcriber: t,
		scorer:      scorer,
		composer:    composer,
		recorder:    progress.Nop{},
		maxUpload:   DefaultMaxUploadBytes,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// MaxUploadBytes returns the upload size limit.
func (s *Service) MaxUploadBytes() int64 { return s.maxUpload }

// Extension validates filename and returns its lower-case extension.
func Extension(filename string) (string, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	i := strings.LastIndexByte(name, '.')
	if name == "" || name == "." || i < 0 || i == len(name)-1 {
		return "", inputError(CodeBadFilename, "invalid filename")
	}
	ext := strings.ToLower(name[i+1:])
	if !allowedExtensions[ext] {
		return "", inputError(CodeBadFormat, "allowed formats: wav, mp3, m4a, webm, ogg")
	}
	return ext, nil
}

// Assess scores one uploaded recording against its target sentence.
//
// Input problems return an [*InputError]. Everything after validation
// produces an assessment: a failed transcription is scored as silent input.
func (s *Service) Assess(ctx context.Context, up Upload) (Assessment, error) {
	ctx, span := observe.StartSpan(ctx, "practice.Assess", observe.Attr("language", up.Language))
	a, err := s.assess(ctx, up)
	if err == nil {
		span.SetAttributes(observe.Attr("status", string(a.Result.Status)))
	}
	observe.EndSpan(span, err)
	return a, err
}

func (s *Service) assess(ctx context.Context, up Upload) (Assessment, error) {
	if up.Audio == nil {
		return Assessment{}, inputError(CodeNoAudio, "no audio uploaded")
	}
	ext, err := Extension(up.Filename)
	if err != nil {
		return Assessment{}, err
	}
	if len(assess.Tokenize(up.ExpectedText)) == 0 {
		return Assessment{}, inputError(CodeNoText, "expected_text must contain at least one word")
	}

	path, err := s.stage(up.Audio, ext)
	if err != nil {
		return Assessment{}, err
	}
	defer func() {
		if rerr := os.Remove(path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			observe.Logger(ctx).Warn("practice: remove upload", "path", path, "err", rerr)
		}
	}()

	tr := s.transcriber.Transcribe(ctx, path, up.Language)
	a := s.score(ctx, assess.NewReference(up.ExpectedText, up.Language), tr)
	s.record(ctx, up, a.Result)
	return a, nil
}

// AssessText scores an already transcribed utterance. Both texts are
// required.
func (s *Service) AssessText(ctx context.Context, expected, spoken, language string) (Assessment, error) {
	if strings.TrimSpace(spoken) == "" || len(assess.Tokenize(expected)) == 0 {
		return Assessment{}, inputError(CodeNoText, "both transcribed_text and expected_text are required")
	}
	return s.score(ctx, assess.NewReference(expected, language), assess.Transcription{Text: spoken}), nil
}

func (s *Service) score(ctx context.Context, ref assess.Reference, tr assess.Transcription) Assessment {
	res := s.scorer.Score(ref, tr)
	fb := s.composer.Apply(&res)

	scored := res.Status != assess.StatusSilent && res.Status != assess.StatusDifferent
	if s.metrics != nil {
		s.metrics.RecordAssessment(ctx, string(res.Status), res.WordAccuracy, scored)
	}
	observe.Logger(ctx).Info("practice: attempt scored",
		"status", res.Status,
		"word_accuracy", res.WordAccuracy,
		"failure", res.Failure,
	)
	return Assessment{Result: res, Feedback: fb}
}

// stage copies the upload into a private temp file and returns its path.
func (s *Service) stage(r io.Reader, ext string) (string, error) {
	f, err := os.CreateTemp(s.tmpDir, "upload_*."+ext)
	if err != nil {
		return "", fmt.Errorf("practice: create upload file: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(r, s.maxUpload+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	switch {
	case err != nil:
		os.Remove(f.Name())
		return "", fmt.Errorf("practice: store upload: %w", err)
	case n == 0:
		os.Remove(f.Name())
		return "", inputError(CodeNoAudio, "uploaded audio is empty")
	case n > s.maxUpload:
		os.Remove(f.Name())
		return "", inputError(CodeTooLarge, fmt.Sprintf("audio exceeds %d bytes", s.maxUpload))
	}
	return f.Name(), nil
}

func (s *Service) record(ctx context.Context, up Upload, res assess.Result) {
	if up.UserID == "" || up.Day == "" {
		return
	}
	e := progress.Event{
		ID:        uuid.NewString(),
		UserID:    up.UserID,
		Day:       up.Day,
		Statement: up.Statement,
		Status:    string(res.Status),
		Accuracy:  res.WordAccuracy,
		At:        time.Now().UTC(),
	}
	if err := s.recorder.Record(ctx, e); err != nil {
		observe.Logger(ctx).Warn("practice: progress not recorded", "user_id", up.UserID, "day", up.Day, "err", err)
	}
}
