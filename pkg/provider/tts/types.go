package tts

import "strings"

// Gender is the requested voice gender.
type Gender string

const (
	GenderFemale Gender = "female"
	GenderMale   Gender = "male"
)

// ParseGender maps loose user input ("f", "Male", "woman") to a [Gender].
// Anything unrecognised is female, the product default.
func ParseGender(s string) Gender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "m", "male", "man", "boy", "purush":
		return GenderMale
	default:
		return GenderFemale
	}
}

// VoiceProfile describes the voice a backend should speak with.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier (e.g.
	// "en-IN-NeerjaNeural" for edge, "en-us+f3" for espeak). Empty selects
	// the provider default.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Language is the BCP-47 tag the text is written in (e.g. "en-IN").
	Language string

	// Gender is the requested voice gender.
	Gender Gender

	// SpeedFactor adjusts speaking rate (0.5–2.0, 1.0 or 0 = default).
	SpeedFactor float64

	// Metadata holds provider-specific voice attributes.
	Metadata map[string]string
}

// BaseLanguage returns the primary language subtag of l in lower case
// ("en-IN" → "en"). Empty input yields "en".
func BaseLanguage(l string) string {
	l = strings.ToLower(strings.TrimSpace(l))
	if i := strings.IndexAny(l, "-_"); i > 0 {
		l = l[:i]
	}
	if l == "" {
		return "en"
	}
	return l
}
