package synth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/MrWong99/speakeasy/pkg/provider/tts"
)

var (
	// ErrNoMethodAvailable means no stage could produce audio: none is
	// configured, or every one failed in auto mode.
	ErrNoMethodAvailable = errors.New("synth: no synthesis method available")

	// ErrGenericFailure wraps failures that are not a backend's fault, such
	// as an unwritable output directory.
	ErrGenericFailure = errors.New("synth: synthesis failed")
)

// ModeUnavailableError is returned when a request restricted to one mode
// could not be served by any stage of that mode.
type ModeUnavailableError struct {
	Mode Mode

	// Err joins the per-stage failures, if any stage was tried.
	Err error
}

func (e *ModeUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("synth: %s synthesis requested but not available", e.Mode)
	}
	return fmt.Sprintf("synth: %s synthesis requested but not available: %v", e.Mode, e.Err)
}

func (e *ModeUnavailableError) Unwrap() error { return e.Err }

// Error codes reported to clients.
const (
	CodeNoMethods          = "NO_TTS_METHODS"
	CodeOnlineUnavailable  = "ONLINE_UNAVAILABLE"
	CodeOfflineUnavailable = "OFFLINE_UNAVAILABLE"
	CodeGenericFailure     = "GENERIC_FAILURE"
)

// Failure is the client-facing description of a synthesis error.
type Failure struct {
	Code            string `json:"error_code"`
	Message         string `json:"message"`
	SuggestedAction string `json:"suggested_action"`
	Status          int    `json:"-"`
}

type localized struct {
	en, hi, action string
}

var failureText = map[string]localized{
	CodeNoMethods: {
		en:     "No voice is available right now. Please check your internet connection.",
		hi:     "कोई आवाज़ उपलब्ध नहीं है। कृपया अपना इंटरनेट कनेक्शन जांचें।",
		action: "Check internet connection or try offline mode",
	},
	CodeOnlineUnavailable: {
		en:     "The online voice is unavailable. Please use offline mode.",
		hi:     "ऑनलाइन आवाज़ उपलब्ध नहीं है। ऑफलाइन मोड का उपयोग करें।",
		action: "Switch to offline mode in settings",
	},
	CodeOfflineUnavailable: {
		en:     "The offline voice is unavailable. Please use online mode.",
		hi:     "ऑफलाइन आवाज़ उपलब्ध नहीं है। ऑनलाइन मोड का उपयोग करें।",
		action: "Switch to online mode in settings",
	},
	CodeGenericFailure: {
		en:     "Something went wrong while creating the audio. Please try again.",
		hi:     "आवाज़ बनाने में समस्या हुई। कृपया दोबारा कोशिश करें।",
		action: "Try again or change voice settings",
	},
}

// Describe maps a Synthesize error to its client-facing [Failure], with the
// message in lang (Hindi for "hi*" and "hinglish", English otherwise). Errors outside
// the synthesis taxonomy are reported as a generic failure.
func Describe(err error, lang string) Failure {
	code, status := CodeGenericFailure, http.StatusInternalServerError
	var mu *ModeUnavailableError
	switch {
	case errors.As(err, &mu) && mu.Mode == ModeOnline:
		code, status = CodeOnlineUnavailable, http.StatusServiceUnavailable
	case errors.As(err, &mu) && mu.Mode == ModeOffline:
		code, status = CodeOfflineUnavailable, http.StatusServiceUnavailable
	case errors.Is(err, ErrNoMethodAvailable):
		code, status = CodeNoMethods, http.StatusServiceUnavailable
	}

	text := failureText[code]
	msg := text.en
	if l := tts.BaseLanguage(lang); l == "hi" || l == "hinglish" {
		msg = text.hi
	}
	return Failure{Code: code, Message: msg, SuggestedAction: text.action, Status: status}
}
