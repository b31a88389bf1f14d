package api

import (
	"errors"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/MrWong99/speakeasy/internal/observe"
	"github.com/MrWong99/speakeasy/internal/synth"
	"github.com/MrWong99/speakeasy/pkg/provider/tts"
)

// maxTTSChars bounds the text of one synthesis request.
const maxTTSChars = 2000

type ttsError struct {
	Code            string `json:"error_code"`
	Message         string `json:"message"`
	SuggestedAction string `json:"suggested_action,omitempty"`
}

// Speaking rate bounds accepted on /tts.
const (
	minSpeed = 0.5
	maxSpeed = 2.0
)

// parseSpeed reads the speed query parameter. Anything that is not a
// finite positive number means the default rate; the rest is clamped.
func parseSpeed(raw string) float64 {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0
	}
	return min(max(v, minSpeed), maxSpeed)
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	lang := q.Get("lang")

	mode, err := synth.ParseMode(q.Get("mode"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ttsError{Code: "BAD_MODE", Message: "mode must be auto, online or offline"})
		return
	}
	text := strings.TrimSpace(q.Get("text"))
	if text == "" {
		writeJSON(w, http.StatusBadRequest, ttsError{Code: "NO_TEXT", Message: "text is required"})
		return
	}
	if len([]rune(text)) > maxTTSChars {
		writeJSON(w, http.StatusBadRequest, ttsError{Code: "TEXT_TOO_LONG", Message: "text must be at most " + strconv.Itoa(maxTTSChars) + " characters"})
		return
	}
	speed := parseSpeed(q.Get("speed"))
	singleUse, _ := strconv.ParseBool(q.Get("single_use"))

	res, err := s.synthesizer.Synthesize(ctx, synth.Request{
		Text:      text,
		Gender:    tts.ParseGender(q.Get("voice")),
		Language:  lang,
		Accent:    q.Get("accent"),
		Voice:     q.Get("voice_name"),
		Mode:      mode,
		Speed:     speed,
		SingleUse: singleUse,
	})
	if err != nil {
		if errors.Is(err, tts.ErrEmptyText) {
			writeJSON(w, http.StatusBadRequest, ttsError{Code: "NO_TEXT", Message: "text is required"})
			return
		}
		f := synth.Describe(err, lang)
		observe.Logger(ctx).Warn("api: synthesis failed", "code", f.Code, "err", err)
		writeJSON(w, f.Status, ttsError{Code: f.Code, Message: f.Message, SuggestedAction: f.SuggestedAction})
		return
	}
	if res.SingleUse {
		defer func() {
			if err := res.Remove(); err != nil {
				observe.Logger(ctx).Warn("api: remove single-use audio", "err", err)
			}
		}()
	}

	f, err := os.Open(res.Path)
	if err != nil {
		observe.Logger(ctx).Error("api: open synthesized audio", "path", res.Path, "err", err)
		fail := synth.Describe(synth.ErrGenericFailure, lang)
		writeJSON(w, fail.Status, ttsError{Code: fail.Code, Message: fail.Message, SuggestedAction: fail.SuggestedAction})
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", res.Format.MIMEType())
	w.Header().Set("X-TTS-Backend", res.Backend)
	w.Header().Set("Cache-Control", "no-store")
	if st, err := f.Stat(); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(st.Size(), 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		observe.Logger(ctx).Debug("api: client went away during audio", "err", err)
	}
}
