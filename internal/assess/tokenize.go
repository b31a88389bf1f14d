package assess

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

var wordRE = regexp.MustCompile(`[\p{L}\p{M}\p{N}']+`)

// Tokenize lowercases text and splits it into words, dropping punctuation.
// Combining marks stay with their word, so Devanagari vowel signs and
// viramas do not split it.
// Apostrophes inside words are kept ("don't"); leading and trailing ones are
// removed.
func Tokenize(text string) []string {
	text = strings.ReplaceAll(strings.ToLower(text), "\u2019", "'")
	raw := wordRE.FindAllString(text, -1)
	words := raw[:0]
	for _, w := range raw {
		w = strings.Trim(w, "'")
		if w != "" {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return nil
	}
	return words
}

// Normalize returns text as its tokens joined by single spaces.
func Normalize(text string) string {
	return strings.Join(Tokenize(text), " ")
}

// Ratio is the normalised Levenshtein similarity of a and b in [0,1],
// measured in runes. Two empty strings are identical.
func Ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	d := matchr.Levenshtein(a, b)
	r := 1 - float64(d)/float64(longest)
	if r < 0 {
		return 0
	}
	return r
}
