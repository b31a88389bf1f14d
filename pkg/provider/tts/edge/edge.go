// Package edge provides a TTS provider backed by the Microsoft Edge "Read
// aloud" neural voice service. It speaks the same websocket protocol as the
// browser: a speech.config message, one SSML message, then binary audio
// frames until a turn.end message.
//
// The service needs no API key, only network access, and produces mp3.
package edge

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/speakeasy/pkg/audio"
	"github.com/MrWong99/speakeasy/pkg/provider/tts"
)

const (
	defaultEndpoint     = "wss://speech.platform.bing.com/consumer/speech/synthesize/readaloud/edge/v1"
	trustedClientToken  = "6A5AA1D4EAFF4E9FB37E23D68491D6F4"
	secMSGECVersion     = "1-130.0.2849.68"
	defaultOutputFormat = "audio-24khz-48kbitrate-mono-mp3"
	defaultVoice        = "en-US-JennyNeural"
	extensionOrigin     = "chrome-extension://jdiccldimpdaibmpdkjnbmckianbfold"
	userAgent           = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36 Edg/130.0.0.0"

	// windowsEpochOffset is the number of seconds between 1601-01-01 and
	// the Unix epoch.
	windowsEpochOffset = 11644473600

	// maxMessageSize bounds a single websocket frame.
	maxMessageSize = 1 << 20
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Edge Provider.
type Option func(*Provider)

// WithEndpoint overrides the websocket endpoint. Intended for tests.
func WithEndpoint(u string) Option {
	return func(p *Provider) { p.endpoint = u }
}

// WithDefaultVoice sets the voice used when a request carries no voice ID.
func WithDefaultVoice(name string) Option {
	return func(p *Provider) { p.defaultVoice = name }
}

// WithClock replaces the time source used for request timestamps and the
// Sec-MS-GEC token. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// Provider implements tts.Provider against the Edge read-aloud service. It
// opens one websocket per utterance and is safe for concurrent use.
type Provider struct {
	endpoint     string
	defaultVoice string
	now          func() time.Time
}

// New creates a new Edge Provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		endpoint:     defaultEndpoint,
		defaultVoice: defaultVoice,
		now:          time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Format implements tts.Provider.
func (p *Provider) Format() audio.Format { return audio.FormatMP3 }

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile, w io.Writer) error {
	if strings.TrimSpace(text) == "" {
		return tts.ErrEmptyText
	}
	name := voice.ID
	if name == "" {
		name = p.defaultVoice
	}

	conn, _, err := websocket.Dial(ctx, p.url(), &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Origin":        {extensionOrigin},
			"User-Agent":    {userAgent},
			"Pragma":        {"no-cache"},
			"Cache-Control": {"no-cache"},
		},
	})
	if err != nil {
		return fmt.Errorf("edge: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxMessageSize)

	ts := jsTimestamp(p.now())
	if err := conn.Write(ctx, websocket.MessageText, []byte(configMessage(ts))); err != nil {
		return fmt.Errorf("edge: send speech.config: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(ssmlMessage(ts, name, voice.SpeedFactor, text))); err != nil {
		return fmt.Errorf("edge: send ssml: %w", err)
	}

	var received int
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("edge: read: %w", err)
		}
		switch typ {
		case websocket.MessageText:
			if messagePath(data) == "turn.end" {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				if received == 0 {
					return errors.New("edge: no audio received")
				}
				return nil
			}
		case websocket.MessageBinary:
			chunk, err := audioPayload(data)
			if err != nil {
				return err
			}
			if len(chunk) == 0 {
				continue
			}
			if _, err := w.Write(chunk); err != nil {
				return fmt.Errorf("edge: write audio: %w", err)
			}
			received += len(chunk)
		}
	}
}

func (p *Provider) url() string {
	q := url.Values{}
	q.Set("TrustedClientToken", trustedClientToken)
	q.Set("ConnectionId", strings.ReplaceAll(uuid.NewString(), "-", ""))
	q.Set("Sec-MS-GEC", secMSGEC(p.now()))
	q.Set("Sec-MS-GEC-Version", secMSGECVersion)
	return p.endpoint + "?" + q.Encode()
}

// secMSGEC derives the anti-abuse token the service expects: the SHA-256 of
// the Windows file time rounded down to five minutes, concatenated with the
// trusted client token.
func secMSGEC(now time.Time) string {
	ticks := now.Unix() + windowsEpochOffset
	ticks -= ticks % 300
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d%s", ticks*10_000_000, trustedClientToken)))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// jsTimestamp formats t the way a browser's Date.toString does.
func jsTimestamp(t time.Time) string {
	return t.UTC().Format("Mon Jan 02 2006 15:04:05") + " GMT+0000 (Coordinated Universal Time)"
}

func configMessage(ts string) string {
	return "X-Timestamp:" + ts + "\r\n" +
		"Content-Type:application/json; charset=utf-8\r\n" +
		"Path:speech.config\r\n\r\n" +
		`{"context":{"synthesis":{"audio":{"metadataoptions":{"sentenceBoundaryEnabled":"false","wordBoundaryEnabled":"false"},"outputFormat":"` + defaultOutputFormat + `"}}}}` + "\r\n"
}

var shortVoiceRE = regexp.MustCompile(`^([a-z]{2,3})-([A-Z]{2})-(\w+Neural)$`)

// longVoiceName expands "en-US-JennyNeural" to the service's canonical
// "Microsoft Server Speech Text to Speech Voice (en-US, JennyNeural)".
// Other names are returned unchanged.
func longVoiceName(name string) (long, locale string) {
	m := shortVoiceRE.FindStringSubmatch(name)
	if m == nil {
		return name, "en-US"
	}
	locale = m[1] + "-" + m[2]
	return fmt.Sprintf("Microsoft Server Speech Text to Speech Voice (%s, %s)", locale, m[3]), locale
}

// ratePercent converts a speed factor to the SSML prosody rate ("+25%").
func ratePercent(speed float64) string {
	if speed <= 0 {
		speed = 1
	}
	return fmt.Sprintf("%+d%%", int((speed-1)*100))
}

func ssmlMessage(ts, voice string, speed float64, text string) string {
	long, locale := longVoiceName(voice)
	var esc bytes.Buffer
	_ = xml.EscapeText(&esc, []byte(text))

	ssml := fmt.Sprintf("<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='%s'>"+
		"<voice name='%s'><prosody pitch='+0Hz' rate='%s' volume='+0%%'>%s</prosody></voice></speak>",
		locale, long, ratePercent(speed), esc.String())

	return "X-RequestId:" + strings.ReplaceAll(uuid.NewString(), "-", "") + "\r\n" +
		"Content-Type:application/ssml+xml\r\n" +
		"X-Timestamp:" + ts + "Z\r\n" +
		"Path:ssml\r\n\r\n" + ssml
}

// messagePath extracts the Path header of a text frame.
func messagePath(data []byte) string {
	head, _, _ := bytes.Cut(data, []byte("\r\n\r\n"))
	for _, line := range strings.Split(string(head), "\r\n") {
		if v, ok := strings.CutPrefix(line, "Path:"); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// audioPayload strips the header of a binary frame. Frames start with a
// big-endian uint16 header length followed by the header and the payload.
// Frames whose Path is not audio yield nil.
func audioPayload(data []byte) ([]byte, error) {
	if len(data) < 2 {
		return nil, errors.New("edge: binary frame too short")
	}
	n := int(binary.BigEndian.Uint16(data[:2]))
	if 2+n > len(data) {
		return nil, errors.New("edge: binary frame header exceeds frame")
	}
	if messagePath(append(append([]byte{}, data[2:2+n]...), "\r\n\r\n"...)) != "audio" {
		return nil, nil
	}
	return data[2+n:], nil
}
