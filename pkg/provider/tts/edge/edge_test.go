package edge

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/speakeasy/pkg/audio"
	"github.com/MrWong99/speakeasy/pkg/provider/tts"
)

// fakeService is a minimal stand-in for the read-aloud websocket endpoint.
type fakeService struct {
	mu       sync.Mutex
	query    map[string]string
	origin   string
	messages []string

	chunks   [][]byte
	skipTurn bool
}

func (f *fakeService) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.query = map[string]string{}
		for k := range r.URL.Query() {
			f.query[k] = r.URL.Query().Get(k)
		}
		f.origin = r.Header.Get("Origin")
		f.mu.Unlock()

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		for range 2 {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			f.mu.Lock()
			f.messages = append(f.messages, string(data))
			f.mu.Unlock()
		}

		_ = conn.Write(ctx, websocket.MessageText, []byte("Path:turn.start\r\n\r\n{}"))
		for _, c := range f.chunks {
			_ = conn.Write(ctx, websocket.MessageBinary, binaryFrame("audio", c))
		}
		// Metadata frames carry no audio.
		_ = conn.Write(ctx, websocket.MessageBinary, binaryFrame("audio.metadata", []byte("{}")))
		if f.skipTurn {
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		}
		_ = conn.Write(ctx, websocket.MessageText, []byte("X-RequestId:abc\r\nPath:turn.end\r\n\r\n{}"))
		_, _, _ = conn.Read(ctx)
	}
}

func binaryFrame(path string, payload []byte) []byte {
	header := "X-RequestId:abc\r\nContent-Type:audio/mpeg\r\nPath:" + path
	out := make([]byte, 2, 2+len(header)+len(payload))
	binary.BigEndian.PutUint16(out, uint16(len(header)))
	out = append(out, header...)
	return append(out, payload...)
}

func newTestProvider(t *testing.T, f *fakeService, opts ...Option) *Provider {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return New(append([]Option{WithEndpoint(wsURL)}, opts...)...)
}

func TestSynthesize_WritesAudioChunks(t *testing.T) {
	t.Parallel()

	f := &fakeService{chunks: [][]byte{[]byte("ID3-one-"), []byte("two")}}
	p := newTestProvider(t, f)

	var buf bytes.Buffer
	err := p.Synthesize(context.Background(), "Hello & welcome", tts.VoiceProfile{
		ID:          "en-IN-NeerjaNeural",
		SpeedFactor: 1.25,
	}, &buf)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got := buf.String(); got != "ID3-one-two" {
		t.Errorf("audio = %q, want %q", got, "ID3-one-two")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.query["TrustedClientToken"] != trustedClientToken {
		t.Errorf("TrustedClientToken = %q", f.query["TrustedClientToken"])
	}
	if len(f.query["Sec-MS-GEC"]) != 64 {
		t.Errorf("Sec-MS-GEC = %q, want 64 hex chars", f.query["Sec-MS-GEC"])
	}
	if f.query["ConnectionId"] == "" || strings.Contains(f.query["ConnectionId"], "-") {
		t.Errorf("ConnectionId = %q, want dashless uuid", f.query["ConnectionId"])
	}
	if f.origin != extensionOrigin {
		t.Errorf("Origin = %q, want %q", f.origin, extensionOrigin)
	}

	if len(f.messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(f.messages))
	}
	if !strings.Contains(f.messages[0], "Path:speech.config") || !strings.Contains(f.messages[0], defaultOutputFormat) {
		t.Errorf("first message is not speech.config: %q", f.messages[0])
	}
	ssml := f.messages[1]
	for _, want := range []string{
		"Path:ssml",
		"xml:lang='en-IN'",
		"Microsoft Server Speech Text to Speech Voice (en-IN, NeerjaNeural)",
		"rate='+25%'",
		"Hello &amp; welcome",
	} {
		if !strings.Contains(ssml, want) {
			t.Errorf("ssml missing %q:\n%s", want, ssml)
		}
	}
}

func TestSynthesize_DefaultVoice(t *testing.T) {
	t.Parallel()

	f := &fakeService{chunks: [][]byte{[]byte("x")}}
	p := newTestProvider(t, f, WithDefaultVoice("en-US-GuyNeural"))

	if err := p.Synthesize(context.Background(), "hi", tts.VoiceProfile{}, &bytes.Buffer{}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !strings.Contains(f.messages[1], "(en-US, GuyNeural)") {
		t.Errorf("ssml does not use default voice:\n%s", f.messages[1])
	}
}

func TestSynthesize_NoAudio(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, &fakeService{})
	err := p.Synthesize(context.Background(), "hi", tts.VoiceProfile{}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "no audio") {
		t.Fatalf("err = %v, want no audio error", err)
	}
}

func TestSynthesize_ConnectionClosedBeforeTurnEnd(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, &fakeService{chunks: [][]byte{[]byte("x")}, skipTurn: true})
	if err := p.Synthesize(context.Background(), "hi", tts.VoiceProfile{}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error when the stream ends without turn.end")
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	t.Parallel()

	p := New(WithEndpoint("ws://127.0.0.1:1"))
	err := p.Synthesize(context.Background(), "   ", tts.VoiceProfile{}, &bytes.Buffer{})
	if !errors.Is(err, tts.ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
}

func TestSynthesize_DialError(t *testing.T) {
	t.Parallel()

	p := New(WithEndpoint("ws://127.0.0.1:1"))
	err := p.Synthesize(context.Background(), "hi", tts.VoiceProfile{}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "edge: dial") {
		t.Fatalf("err = %v, want dial error", err)
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()
	if got := New().Format(); got != audio.FormatMP3 {
		t.Errorf("Format() = %q, want mp3", got)
	}
}

func TestSecMSGEC_StableWithinWindow(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	a := secMSGEC(base)
	b := secMSGEC(base.Add(299 * time.Second))
	c := secMSGEC(base.Add(300 * time.Second))

	if a != b {
		t.Errorf("token changed inside one five-minute window: %s vs %s", a, b)
	}
	if a == c {
		t.Error("token did not change across windows")
	}
	if strings.ToUpper(a) != a {
		t.Errorf("token %q is not upper case", a)
	}
}

func TestLongVoiceName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, long, locale string
	}{
		{"en-US-JennyNeural", "Microsoft Server Speech Text to Speech Voice (en-US, JennyNeural)", "en-US"},
		{"hi-IN-SwaraNeural", "Microsoft Server Speech Text to Speech Voice (hi-IN, SwaraNeural)", "hi-IN"},
		{"custom", "custom", "en-US"},
	}
	for _, tt := range tests {
		long, locale := longVoiceName(tt.in)
		if long != tt.long || locale != tt.locale {
			t.Errorf("longVoiceName(%q) = (%q, %q), want (%q, %q)", tt.in, long, locale, tt.long, tt.locale)
		}
	}
}

func TestRatePercent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		speed float64
		want  string
	}{
		{0, "+0%"},
		{1, "+0%"},
		{1.5, "+50%"},
		{0.75, "-25%"},
	}
	for _, tt := range tests {
		if got := ratePercent(tt.speed); got != tt.want {
			t.Errorf("ratePercent(%v) = %q, want %q", tt.speed, got, tt.want)
		}
	}
}

func TestAudioPayload(t *testing.T) {
	t.Parallel()

	got, err := audioPayload(binaryFrame("audio", []byte("abc")))
	if err != nil || string(got) != "abc" {
		t.Errorf("audioPayload(audio) = %q, %v", got, err)
	}
	if got, _ := audioPayload(binaryFrame("audio.metadata", []byte("abc"))); got != nil {
		t.Errorf("metadata frame yielded %q", got)
	}
	if _, err := audioPayload([]byte{0}); err == nil {
		t.Error("expected error for short frame")
	}
	if _, err := audioPayload([]byte{0, 9, 'x'}); err == nil {
		t.Error("expected error for oversized header length")
	}
}
