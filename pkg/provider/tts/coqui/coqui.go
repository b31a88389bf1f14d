// Package coqui synthesizes speech with a self-hosted Coqui TTS server. It
// needs no internet access once the server runs, so it can serve as an
// offline stage.
//
// Two server flavours are supported. [APIModeStandard] talks to the stock
// TTS server (GET /api/tts, voices from GET /details). [APIModeXTTS] talks
// to the XTTS v2 API server (POST /tts_to_audio/, voices from
// GET /studio_speakers). Both answer with one WAV file.
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/speakeasy/pkg/audio"
	"github.com/MrWong99/speakeasy/pkg/provider/tts"
)

var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second

	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"
	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
)

// APIMode selects the server flavour.
type APIMode string

const (
	// APIModeStandard is the stock Coqui TTS server. Default.
	APIModeStandard APIMode = "standard"

	// APIModeXTTS is the XTTS v2 API server. It needs a speaker on every
	// request, so configure one with [WithDefaultVoice] or pass it per call.
	APIModeXTTS APIMode = "xtts"
)

// Option configures a [Provider].
type Option func(*Provider)

// WithLanguage sets the language sent when the voice carries none.
// Default: "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithTimeout bounds each HTTP request. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// WithAPIMode selects the server flavour.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) { p.apiMode = mode }
}

// WithDefaultVoice sets the speaker used when a request names none.
func WithDefaultVoice(id string) Option {
	return func(p *Provider) { p.defaultVoice = id }
}

// Provider is a Coqui TTS client. It is safe for concurrent use.
type Provider struct {
	serverURL    string
	language     string
	defaultVoice string
	apiMode      APIMode
	httpClient   *http.Client
}

// New returns a Provider for the server at serverURL, e.g.
// "http://localhost:5002".
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Format implements tts.Provider.
func (p *Provider) Format() audio.Format { return audio.FormatWAV }

// ttsRequest is the XTTS synthesis body.
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// detailsResponse is the standard server's model description. Speakers is
// empty for single-speaker models.
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// Synthesize implements tts.Provider. Nothing is written to w unless the
// server returned a decodable WAV with samples.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile, w io.Writer) error {
	if strings.TrimSpace(text) == "" {
		return tts.ErrEmptyText
	}
	speaker := voice.ID
	if speaker == "" {
		speaker = p.defaultVoice
	}
	lang := p.language
	if voice.Language != "" {
		lang = tts.BaseLanguage(voice.Language)
	}

	req, err := p.synthesisRequest(ctx, text, speaker, lang)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "audio/wav")
	wav, err := p.do(req)
	if err != nil {
		return err
	}

	pcm, _, err := audio.DecodeWAV(bytes.NewReader(wav))
	switch {
	case err != nil:
		return fmt.Errorf("coqui: decode WAV response: %w", err)
	case len(pcm) == 0:
		return errors.New("coqui: server returned a WAV without samples")
	}
	if _, err := w.Write(wav); err != nil {
		return fmt.Errorf("coqui: write audio: %w", err)
	}
	return nil
}

func (p *Provider) synthesisRequest(ctx context.Context, text, speaker, lang string) (*http.Request, error) {
	if p.apiMode == APIModeXTTS {
		if speaker == "" {
			return nil, errors.New("coqui: a speaker is required in XTTS mode")
		}
		body, err := json.Marshal(ttsRequest{Text: text, SpeakerWav: speaker, Language: lang})
		if err != nil {
			return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("coqui: create tts request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	q := url.Values{"text": {text}}
	if speaker != "" {
		q.Set("speaker_id", speaker)
	}
	if lang != "" {
		q.Set("language_id", lang)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	return req, nil
}

// do sends req and returns the body of a 200 response.
func (p *Provider) do(req *http.Request) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: %s %s returned status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read %s response: %w", req.URL.Path, err)
	}
	return data, nil
}

func (p *Provider) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("coqui: create %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	data, err := p.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("coqui: decode %s: %w", endpoint, err)
	}
	return nil
}

// ListVoices implements tts.VoiceLister. XTTS servers report their studio
// speakers. Standard servers report one voice per speaker of a
// multi-speaker model, or the model itself. Voices are sorted by id.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	if p.apiMode == APIModeXTTS {
		var speakers map[string]json.RawMessage
		if err := p.getJSON(ctx, studioSpeakersEndpoint, &speakers); err != nil {
			return nil, err
		}
		return voices(slices.Sorted(maps.Keys(speakers)), "", map[string]string{"type": "studio"}), nil
	}

	var d detailsResponse
	if err := p.getJSON(ctx, detailsEndpoint, &d); err != nil {
		return nil, err
	}
	if len(d.Speakers) > 0 {
		return voices(slices.Sorted(slices.Values(d.Speakers)), d.Language,
			map[string]string{"type": "speaker", "model_name": d.ModelName}), nil
	}
	name := d.ModelName
	if name == "" {
		name = "default"
	}
	return voices([]string{name}, d.Language,
		map[string]string{"type": "single-speaker", "model_name": name}), nil
}

// voices builds one profile per id. Profiles share meta, which callers must
// treat as read-only.
func voices(ids []string, lang string, meta map[string]string) []tts.VoiceProfile {
	out := make([]tts.VoiceProfile, len(ids))
	for i, id := range ids {
		out[i] = tts.VoiceProfile{ID: id, Name: id, Provider: "coqui", Language: lang, Metadata: meta}
	}
	return out
}
