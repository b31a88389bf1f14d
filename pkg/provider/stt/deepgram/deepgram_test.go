package deepgram

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/speakeasy/pkg/provider/stt"
)

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rawURL, err := p.buildURL(stt.Options{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}

	assertEqual(t, "scheme", "https", u.Scheme)
	assertEqual(t, "host", "api.deepgram.com", u.Host)
	assertEqual(t, "path", "/v1/listen", u.Path)

	q := u.Query()
	assertEqual(t, "model", defaultModel, q.Get("model"))
	assertEqual(t, "language", defaultLanguage, q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
}

func TestBuildURL_LanguageOverriddenByOptions(t *testing.T) {
	p, _ := New("key", WithLanguage("en"), WithModel("base"))
	rawURL, _ := p.buildURL(stt.Options{Language: "hi"})
	u, _ := url.Parse(rawURL)
	assertEqual(t, "language", "hi", u.Query().Get("language"))
	assertEqual(t, "model", "base", u.Query().Get("model"))
}

func TestParseDeepgramResponse(t *testing.T) {
	data := []byte(`{
		"metadata": {"duration": 1.5},
		"results": {"channels": [{
			"detected_language": "en",
			"alternatives": [{
				"transcript": "good morning",
				"confidence": 0.93,
				"words": [
					{"word": "good", "start": 0.1, "end": 0.4, "confidence": 0.95},
					{"word": "morning", "start": 0.5, "end": 1.0, "confidence": 0.91}
				]
			}]
		}]}
	}`)

	tr, err := parseDeepgramResponse(data)
	if err != nil {
		t.Fatalf("parseDeepgramResponse: %v", err)
	}
	assertEqual(t, "text", "good morning", tr.Text)
	assertEqual(t, "language", "en", tr.Language)
	if tr.Confidence != 0.93 {
		t.Errorf("confidence: want 0.93, got %v", tr.Confidence)
	}
	if tr.Duration != 1500*time.Millisecond {
		t.Errorf("duration: want 1.5s, got %v", tr.Duration)
	}
	if len(tr.Words) != 2 {
		t.Fatalf("words: want 2, got %d", len(tr.Words))
	}
	if tr.Words[1].Start != 500*time.Millisecond {
		t.Errorf("words[1].Start: want 500ms, got %v", tr.Words[1].Start)
	}
}

func TestParseDeepgramResponse_EmptyAlternatives(t *testing.T) {
	tr, err := parseDeepgramResponse([]byte(`{"results":{"channels":[{"alternatives":[]}]}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Text != "" {
		t.Errorf("want empty text, got %q", tr.Text)
	}
}

func TestParseDeepgramResponse_InvalidJSON(t *testing.T) {
	if _, err := parseDeepgramResponse([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestTranscribe_PostsFileWithToken(t *testing.T) {
	var gotAuth, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"results":{"channels":[{"alternatives":[{"transcript":"hello","confidence":0.8}]}]}}`)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "clip.mp3")
	if err := os.WriteFile(path, []byte("ID3data"), 0o644); err != nil {
		t.Fatal(err)
	}

	p, _ := New("secret", WithBaseURL(srv.URL+"/v1/listen"))
	tr, err := p.Transcribe(context.Background(), path, stt.Options{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	assertEqual(t, "text", "hello", tr.Text)
	assertEqual(t, "authorization", "Token secret", gotAuth)
	assertEqual(t, "content-type", "audio/mpeg", gotType)
	assertEqual(t, "body", "ID3data", string(gotBody))
}

func TestTranscribe_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"err_msg":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "clip.wav")
	_ = os.WriteFile(path, []byte("RIFF"), 0o644)

	p, _ := New("bad", WithBaseURL(srv.URL))
	if _, err := p.Transcribe(context.Background(), path, stt.Options{}); err == nil {
		t.Fatal("expected error for HTTP 401")
	}
}

func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Fatal("expected error for empty API key, got nil")
	}
}

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
