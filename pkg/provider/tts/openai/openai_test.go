package openai_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/speakeasy/pkg/audio"
	"github.com/MrWong99/speakeasy/pkg/provider/tts"
	"github.com/MrWong99/speakeasy/pkg/provider/tts/openai"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := openai.New("", ""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestSynthesize(t *testing.T) {
	var (
		gotPath string
		gotBody map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = io.WriteString(w, "ID3speech")
	}))
	defer srv.Close()

	p, err := openai.New("sk-test", "", openai.WithBaseURL(srv.URL+"/v1/"), openai.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Format() != audio.FormatMP3 {
		t.Errorf("Format() = %q, want mp3", p.Format())
	}

	var buf bytes.Buffer
	if err := p.Synthesize(context.Background(), "Well done", tts.VoiceProfile{Gender: tts.GenderMale, SpeedFactor: 1.5}, &buf); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if buf.String() != "ID3speech" {
		t.Errorf("audio = %q", buf.String())
	}
	if gotPath != "/v1/audio/speech" {
		t.Errorf("path = %q, want /v1/audio/speech", gotPath)
	}
	want := map[string]any{"input": "Well done", "model": "tts-1", "voice": "onyx", "response_format": "mp3", "speed": 1.5}
	for k, v := range want {
		if gotBody[k] != v {
			t.Errorf("body[%q] = %v, want %v", k, gotBody[k], v)
		}
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad voice"}}`)
	}))
	defer srv.Close()

	p, _ := openai.New("sk-test", "", openai.WithBaseURL(srv.URL+"/v1/"), openai.WithMaxRetries(0))
	if err := p.Synthesize(context.Background(), "hi", tts.VoiceProfile{ID: "nope"}, io.Discard); err == nil {
		t.Fatal("expected error")
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	p, _ := openai.New("sk-test", "")
	if err := p.Synthesize(context.Background(), "", tts.VoiceProfile{}, io.Discard); !errors.Is(err, tts.ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
}

func TestVoiceFor(t *testing.T) {
	tests := []struct {
		in   tts.VoiceProfile
		want string
	}{
		{tts.VoiceProfile{}, "nova"},
		{tts.VoiceProfile{Gender: tts.GenderMale}, "onyx"},
		{tts.VoiceProfile{ID: "shimmer", Gender: tts.GenderMale}, "shimmer"},
	}
	for _, tt := range tests {
		if got := openai.VoiceFor(tt.in); got != tt.want {
			t.Errorf("VoiceFor(%+v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
