package whisper_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/MrWong99/speakeasy/pkg/audio"
	"github.com/MrWong99/speakeasy/pkg/provider/stt"
	"github.com/MrWong99/speakeasy/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

// inferenceRequest captures what the mock server received.
type inferenceRequest struct {
	fields map[string]string
	audio  []byte
	name   string
}

// newMockServer creates a test server that responds to POST /inference with a
// JSON body containing responseText and records every request it matched.
func newMockServer(t *testing.T, responseText string) (*httptest.Server, func() []inferenceRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []inferenceRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		got := inferenceRequest{fields: map[string]string{}}
		for k, v := range r.MultipartForm.Value {
			got.fields[k] = v[0]
		}
		if f, hdr, err := r.FormFile("file"); err == nil {
			got.audio, _ = io.ReadAll(f)
			got.name = hdr.Filename
			f.Close()
		}
		mu.Lock()
		reqs = append(reqs, got)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv, func() []inferenceRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]inferenceRequest(nil), reqs...)
	}
}

// samplesToBytes converts int16 samples to little-endian PCM.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// writeFile writes data into a fresh temp dir and returns its path.
func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// ---- tests ------------------------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	_, err := whisper.New("")
	if err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestTranscribe_SendsMultipartFields(t *testing.T) {
	srv, requests := newMockServer(t, " Hello there. ")
	p, err := whisper.New(srv.URL+"/", whisper.WithModel("base.en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	wav := audio.EncodeWAV(samplesToBytes([]int16{1, 2, 3, 4}), audio.SpeechFormat)
	path := writeFile(t, "utterance.wav", wav)

	tr, err := p.Transcribe(context.Background(), path, stt.Options{Language: "hi-IN"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "Hello there." {
		t.Errorf("Text = %q, want %q", tr.Text, "Hello there.")
	}
	if tr.Language != "hi" {
		t.Errorf("Language = %q, want %q", tr.Language, "hi")
	}

	reqs := requests()
	if len(reqs) != 1 {
		t.Fatalf("server saw %d requests, want 1", len(reqs))
	}
	got := reqs[0]
	want := map[string]string{"language": "hi", "model": "base.en", "response_format": "json"}
	for k, v := range want {
		if got.fields[k] != v {
			t.Errorf("field %q = %q, want %q", k, got.fields[k], v)
		}
	}
	if got.name != "utterance.wav" {
		t.Errorf("file name = %q", got.name)
	}
	if !bytes.Equal(got.audio, wav) {
		t.Error("16 kHz mono WAV should be uploaded unchanged")
	}
}

func TestTranscribe_DefaultLanguageAndNoModel(t *testing.T) {
	srv, requests := newMockServer(t, "ok")
	p, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	path := writeFile(t, "clip.mp3", []byte("ID3 fake mp3"))
	if _, err := p.Transcribe(context.Background(), path, stt.Options{}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	got := requests()[0]
	if got.fields["language"] != "en" {
		t.Errorf("language = %q, want en", got.fields["language"])
	}
	if _, ok := got.fields["model"]; ok {
		t.Error("empty model should not be sent")
	}
	if string(got.audio) != "ID3 fake mp3" {
		t.Error("non-WAV input should be uploaded as-is")
	}
}

func TestTranscribe_ConvertsWAVToSpeechFormat(t *testing.T) {
	srv, requests := newMockServer(t, "hi")
	p, _ := whisper.New(srv.URL)

	stereo := samplesToBytes([]int16{100, 300, 100, 300, 100, 300, 100, 300, 100, 300, 100, 300})
	path := writeFile(t, "stereo.wav", audio.EncodeWAV(stereo, audio.PCMFormat{SampleRate: 48000, Channels: 2}))
	if _, err := p.Transcribe(context.Background(), path, stt.Options{}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	_, pf, err := audio.DecodeWAV(bytes.NewReader(requests()[0].audio))
	if err != nil {
		t.Fatalf("uploaded audio is not WAV: %v", err)
	}
	if pf != audio.SpeechFormat {
		t.Errorf("uploaded format = %+v, want %+v", pf, audio.SpeechFormat)
	}
}

func TestTranscribe_StripsAnnotations(t *testing.T) {
	tests := []struct {
		response string
		want     string
	}{
		{"[BLANK_AUDIO]", ""},
		{" (music) good  morning [laughs] ", "good morning"},
		{"plain text", "plain text"},
	}
	for _, tt := range tests {
		t.Run(tt.response, func(t *testing.T) {
			srv, _ := newMockServer(t, tt.response)
			p, _ := whisper.New(srv.URL)
			path := writeFile(t, "a.wav", audio.EncodeWAV(samplesToBytes([]int16{1}), audio.SpeechFormat))
			tr, err := p.Transcribe(context.Background(), path, stt.Options{})
			if err != nil {
				t.Fatalf("Transcribe: %v", err)
			}
			if tr.Text != tt.want {
				t.Errorf("Text = %q, want %q", tr.Text, tt.want)
			}
		})
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	path := writeFile(t, "a.wav", audio.EncodeWAV(samplesToBytes([]int16{1}), audio.SpeechFormat))
	if _, err := p.Transcribe(context.Background(), path, stt.Options{}); err == nil {
		t.Fatal("expected error for HTTP 500")
	}
}

func TestTranscribe_MissingOrEmptyFile(t *testing.T) {
	p, _ := whisper.New("http://127.0.0.1:1")
	if _, err := p.Transcribe(context.Background(), "/nonexistent.wav", stt.Options{}); err == nil {
		t.Error("expected error for missing file")
	}
	empty := writeFile(t, "empty.wav", nil)
	if _, err := p.Transcribe(context.Background(), empty, stt.Options{}); err == nil {
		t.Error("expected error for empty file")
	}
}
