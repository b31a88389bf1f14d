// Package gtranslate provides a TTS provider backed by the Google Translate
// speech endpoint. It needs no credentials, speaks in a single voice per
// language and returns mp3. The endpoint rejects long inputs, so text is
// split into chunks of at most 100 characters on word boundaries and the
// resulting mp3 segments are concatenated.
package gtranslate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/speakeasy/pkg/audio"
	"github.com/MrWong99/speakeasy/pkg/provider/tts"
)

const (
	defaultBaseURL = "https://translate.google.com"
	ttsPath        = "/translate_tts"

	// maxChunk is the longest text the endpoint accepts per request.
	maxChunk = 100

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithBaseURL overrides the endpoint origin. Intended for tests.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the HTTP client. The default has a 20 s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// Provider implements tts.Provider against Google Translate. It is safe for
// concurrent use.
type Provider struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new Provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Format implements tts.Provider.
func (p *Provider) Format() audio.Format { return audio.FormatMP3 }

// Synthesize implements tts.Provider. voice.ID is ignored; only the language
// and speed are honoured.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile, w io.Writer) error {
	chunks := splitText(text, maxChunk)
	if len(chunks) == 0 {
		return tts.ErrEmptyText
	}
	lang := Language(voice.Language)
	slow := voice.SpeedFactor > 0 && voice.SpeedFactor < 0.8

	for i, chunk := range chunks {
		if err := p.fetch(ctx, chunk, lang, slow, i, len(chunks), w); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) fetch(ctx context.Context, chunk, lang string, slow bool, idx, total int, w io.Writer) error {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", lang)
	q.Set("q", chunk)
	q.Set("idx", fmt.Sprint(idx))
	q.Set("total", fmt.Sprint(total))
	q.Set("textlen", fmt.Sprint(utf8.RuneCountInString(chunk)))
	if slow {
		q.Set("ttsspeed", "0.3")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+ttsPath+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("gtranslate: create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", "https://translate.google.com/")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gtranslate: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gtranslate: chunk %d/%d: unexpected status %d", idx+1, total, resp.StatusCode)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return fmt.Errorf("gtranslate: read audio: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("gtranslate: chunk %d/%d: empty audio", idx+1, total)
	}
	return nil
}

// Language maps a learner language tag to the code the endpoint expects:
// Hindi and Hinglish become "hi", everything else "en".
func Language(tag string) string {
	switch tts.BaseLanguage(tag) {
	case "hi", "hinglish":
		return "hi"
	default:
		return "en"
	}
}

// splitText breaks text into chunks of at most limit runes, preferring
// sentence punctuation, then spaces. Words longer than limit are cut.
func splitText(text string, limit int) []string {
	var chunks []string
	rest := strings.Join(strings.Fields(text), " ")
	for rest != "" {
		if utf8.RuneCountInString(rest) <= limit {
			chunks = append(chunks, rest)
			break
		}
		cut := byteOffset(rest, limit)
		head := rest[:cut]
		if i := strings.LastIndexAny(head, ".!?,;:।"); i > 0 {
			_, size := utf8.DecodeRuneInString(head[i:])
			cut = i + size
		} else if i := strings.LastIndexByte(head, ' '); i > 0 {
			cut = i
		}
		chunks = append(chunks, strings.TrimSpace(rest[:cut]))
		rest = strings.TrimSpace(rest[cut:])
	}
	return chunks
}

// byteOffset returns the byte index of the n-th rune in s.
func byteOffset(s string, n int) int {
	for i := range s {
		if n == 0 {
			return i
		}
		n--
	}
	return len(s)
}
