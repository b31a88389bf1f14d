package phonetic

import (
	"fmt"
	"strings"
)

// knownTips holds hand-written advice for words learners commonly get wrong.
var knownTips = map[string]string{
	"the":  "Pronounce as 'thuh' or 'thee', tongue between teeth for 'th'",
	"this": "Start with 'th' sound (tongue between teeth), then 'is'",
	"that": "'Th' sound followed by 'at', tongue between teeth",
	"with": "End with 'th' sound",
}

// hintSyllables maps stress-stripped vowels and digraphs to Devanagari
// approximations used in spoken hints.
var hintSyllables = map[Phoneme]string{
	"TH": "थ",
	"DH": "द",
	"IH": "इ",
	"IY": "ई",
	"AE": "ऐ",
	"AH": "अ",
	"AA": "आ",
	"UH": "उ",
	"UW": "ऊ",
	"ER": "र",
	"OW": "ओ",
	"AW": "औ",
	"EY": "ए",
	"AY": "आइ",
	"OY": "ऑय",
}

// Tip returns a pronunciation tip for an aligned pair. An empty spoken word
// means the learner skipped expected; an empty expected word means spoken
// was added.
func (c *Comparator) Tip(expected, spoken string) string {
	expected, spoken = clean(expected), clean(spoken)
	switch {
	case expected == "" && spoken == "":
		return ""
	case spoken == "":
		return fmt.Sprintf("You missed the word '%s'. Try to pronounce it clearly.", expected)
	case expected == "":
		return fmt.Sprintf("You added an extra word '%s'. Stick to the original sentence.", spoken)
	}

	if tip, ok := knownTips[expected]; ok {
		return tip
	}
	switch {
	case strings.HasPrefix(expected, "th"):
		return fmt.Sprintf("Place tongue between teeth for '%s'", expected)
	case strings.Contains(expected, "r") && !strings.Contains(spoken, "r"):
		return fmt.Sprintf("Make sure to pronounce the 'r' sound in '%s'", expected)
	case strings.HasSuffix(expected, "ed"):
		return fmt.Sprintf("Pronounce the '-ed' ending clearly in '%s'", expected)
	case c.SoundsAlike(expected, spoken):
		return fmt.Sprintf("'%s' sounds close to '%s'; stress each sound in '%s' a little more", spoken, expected, expected)
	}
	return fmt.Sprintf("Practice pronouncing '%s' slowly, focusing on each syllable", expected)
}

// Guide renders the dictionary pronunciation of word as space-separated
// phonemes, or "/word/" when the word is unknown.
func (c *Comparator) Guide(word string) string {
	w := clean(word)
	if w == "" {
		return ""
	}
	p, ok := c.dict.Lookup(w)
	if !ok {
		return "/" + w + "/"
	}
	parts := make([]string, len(p))
	for i, ph := range p {
		parts[i] = string(ph)
	}
	return strings.Join(parts, " ")
}

// SpokenHint returns a Hinglish read-aloud hint for word, mapping vowels to
// Devanagari where possible. Unknown words are spelled out letter by letter.
func (c *Comparator) SpokenHint(word string) string {
	w := clean(word)
	if w == "" {
		return ""
	}
	p, ok := c.dict.Lookup(w)
	if !ok {
		return fmt.Sprintf("Word '%s' ko clearly bolo: %s", w, strings.Join(strings.Split(w, ""), " "))
	}
	parts := make([]string, len(p))
	for i, ph := range p {
		base := ph.Base()
		if s, ok := hintSyllables[base]; ok {
			parts[i] = s
		} else {
			parts[i] = string(base)
		}
	}
	return fmt.Sprintf("Word '%s' ko bolo: %s. Dheere se repeat karo.", w, strings.Join(parts, " - "))
}
