package practice_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/MrWong99/speakeasy/internal/assess"
	"github.com/MrWong99/speakeasy/internal/assess/feedback"
	"github.com/MrWong99/speakeasy/internal/practice"
	"github.com/MrWong99/speakeasy/internal/progress"
)

// fakeTranscriber returns a fixed transcription and records what it saw.
type fakeTranscriber struct {
	mu       sync.Mutex
	result   assess.Transcription
	paths    []string
	contents []string
	langs    []string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, path, language string) assess.Transcription {
	data, _ := os.ReadFile(path)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	f.contents = append(f.contents, string(data))
	f.langs = append(f.langs, language)
	return f.result
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []progress.Event
	err    error
}

func (r *fakeRecorder) Record(_ context.Context, e progress.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func newService(t *testing.T, tr *fakeTranscriber, opts ...practice.Option) *practice.Service {
	t.Helper()
	scorer, err := assess.New(assess.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	opts = append([]practice.Option{practice.WithTempDir(t.TempDir())}, opts...)
	return practice.New(tr, scorer, feedback.New(), opts...)
}

func upload(text string) practice.Upload {
	return practice.Upload{
		Audio:        strings.NewReader("RIFF....WAVE"),
		Filename:     "attempt.WAV",
		ExpectedText: text,
		Language:     "en-IN",
	}
}

func TestAssess_ScoresTranscription(t *testing.T) {
	t.Parallel()

	tr := &fakeTranscriber{result: assess.Transcription{Text: "I like to eat apples"}}
	svc := newService(t, tr)

	a, err := svc.Assess(context.Background(), upload("I like to eat apples"))
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if a.Result.WordAccuracy != 100 || a.Result.Status != assess.StatusExcellent {
		t.Errorf("result = %+v", a.Result)
	}
	if a.Feedback.Message == "" || a.Result.Feedback == "" || a.Result.Encouragement == "" {
		t.Error("feedback not composed")
	}

	if len(tr.paths) != 1 {
		t.Fatalf("transcriber calls = %d", len(tr.paths))
	}
	if tr.contents[0] != "RIFF....WAVE" || tr.langs[0] != "en-IN" {
		t.Errorf("transcriber saw %q (%s)", tr.contents[0], tr.langs[0])
	}
	if !strings.HasSuffix(tr.paths[0], ".wav") {
		t.Errorf("staged path %q lost its extension", tr.paths[0])
	}
	if _, err := os.Stat(tr.paths[0]); !os.IsNotExist(err) {
		t.Error("staged upload was not removed")
	}
}

func TestAssess_TranscriptionFailureIsSilent(t *testing.T) {
	t.Parallel()

	tr := &fakeTranscriber{result: assess.Transcription{Failure: assess.FailureEngineError}}
	a, err := newService(t, tr).Assess(context.Background(), upload("Good morning"))
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if a.Result.Status != assess.StatusSilent || a.Result.WordAccuracy != 0 {
		t.Errorf("result = %+v, want silent with zero accuracy", a.Result)
	}
	if a.Result.Failure != assess.FailureEngineError {
		t.Errorf("failure = %q, want engine_error", a.Result.Failure)
	}
}

func TestAssess_InputErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		up   practice.Upload
		code string
	}{
		{"no audio", practice.Upload{Filename: "a.wav", ExpectedText: "hi"}, practice.CodeNoAudio},
		{"empty audio", practice.Upload{Audio: strings.NewReader(""), Filename: "a.wav", ExpectedText: "hi"}, practice.CodeNoAudio},
		{"no extension", practice.Upload{Audio: strings.NewReader("x"), Filename: "recording", ExpectedText: "hi"}, practice.CodeBadFilename},
		{"empty filename", practice.Upload{Audio: strings.NewReader("x"), ExpectedText: "hi"}, practice.CodeBadFilename},
		{"bad format", practice.Upload{Audio: strings.NewReader("x"), Filename: "a.flac", ExpectedText: "hi"}, practice.CodeBadFormat},
		{"no text", practice.Upload{Audio: strings.NewReader("x"), Filename: "a.mp3", ExpectedText: "  "}, practice.CodeNoText},
		{"punctuation only text", practice.Upload{Audio: strings.NewReader("x"), Filename: "a.mp3", ExpectedText: "?!"}, practice.CodeNoText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr := &fakeTranscriber{}
			_, err := newService(t, tr).Assess(context.Background(), tt.up)
			var ie *practice.InputError
			if !errors.As(err, &ie) || ie.Code != tt.code {
				t.Fatalf("err = %v, want InputError %s", err, tt.code)
			}
			if len(tr.paths) != 0 {
				t.Error("transcriber must not run for invalid input")
			}
		})
	}
}

func TestAssess_UploadTooLarge(t *testing.T) {
	t.Parallel()

	tr := &fakeTranscriber{}
	svc := newService(t, tr, practice.WithMaxUploadBytes(8))
	up := upload("hello")
	up.Audio = bytes.NewReader(make([]byte, 9))

	_, err := svc.Assess(context.Background(), up)
	var ie *practice.InputError
	if !errors.As(err, &ie) || ie.Code != practice.CodeTooLarge {
		t.Fatalf("err = %v, want %s", err, practice.CodeTooLarge)
	}
}

func TestAssess_RecordsProgress(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{}
	tr := &fakeTranscriber{result: assess.Transcription{Text: "I like to eat"}}
	svc := newService(t, tr, practice.WithRecorder(rec))

	up := upload("I like to eat apples")
	up.UserID, up.Day, up.Statement = "u-1", "Day-2", 4
	a, err := svc.Assess(context.Background(), up)
	if err != nil {
		t.Fatal(err)
	}

	if len(rec.events) != 1 {
		t.Fatalf("events = %d, want 1", len(rec.events))
	}
	e := rec.events[0]
	if e.UserID != "u-1" || e.Day != "Day-2" || e.Statement != 4 || e.ID == "" {
		t.Errorf("event = %+v", e)
	}
	if e.Accuracy != a.Result.WordAccuracy || e.Status != string(a.Result.Status) {
		t.Errorf("event score %v/%s does not match result %v/%s", e.Accuracy, e.Status, a.Result.WordAccuracy, a.Result.Status)
	}
}

func TestAssess_RecorderFailureDoesNotChangeResult(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{err: errors.New("db down")}
	tr := &fakeTranscriber{result: assess.Transcription{Text: "hello world"}}
	svc := newService(t, tr, practice.WithRecorder(rec))

	up := upload("hello world")
	up.UserID, up.Day = "u", "Day-1"
	a, err := svc.Assess(context.Background(), up)
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if a.Result.WordAccuracy != 100 {
		t.Errorf("accuracy = %v", a.Result.WordAccuracy)
	}
}

func TestAssess_NoProgressWithoutIdentity(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{}
	tr := &fakeTranscriber{result: assess.Transcription{Text: "hello"}}
	if _, err := newService(t, tr, practice.WithRecorder(rec)).Assess(context.Background(), upload("hello")); err != nil {
		t.Fatal(err)
	}
	if len(rec.events) != 0 {
		t.Errorf("events = %v, want none for anonymous attempts", rec.events)
	}
}

func TestAssessText(t *testing.T) {
	t.Parallel()

	svc := newService(t, &fakeTranscriber{})
	a, err := svc.AssessText(context.Background(), "She sells sea shells", "She sell sea shells", "en")
	if err != nil {
		t.Fatal(err)
	}
	if a.Result.WordAccuracy <= 0 || a.Result.WordAccuracy > 100 {
		t.Errorf("accuracy = %v", a.Result.WordAccuracy)
	}
	if _, err := svc.AssessText(context.Background(), "hello", "", "en"); err == nil {
		t.Error("expected error for empty transcription")
	}
	_, err = svc.AssessText(context.Background(), "...", "hello", "en")
	var ie *practice.InputError
	if !errors.As(err, &ie) || ie.Code != practice.CodeNoText {
		t.Errorf("err = %v, want InputError %s for a reference without words", err, practice.CodeNoText)
	}
}

func TestExtension(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{"a.wav": "wav", "b.M4A": "m4a", "dir/c.webm": "webm", "voice.note.ogg": "ogg"} {
		got, err := practice.Extension(in)
		if err != nil || got != want {
			t.Errorf("Extension(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, in := range []string{"", "noext", "trailing.", "a.exe"} {
		if _, err := practice.Extension(in); err == nil {
			t.Errorf("Extension(%q) succeeded", in)
		}
	}
}
