// Package phonetic compares words by their canonical pronunciation.
//
// Pronunciations come from a CMU-format [Dictionary]. Words that are not in
// the dictionary fall back to one pseudo-phoneme per letter. This is not
// phonetically accurate, but it is deterministic and always defined, which
// is all the scorer needs to rank a spoken word against an expected one.
//
// Similarity is the normalised Levenshtein similarity over the two phoneme
// sequences with stress digits removed, so "AH0" and "AH1" compare equal.
package phonetic

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// Option configures a [Comparator].
type Option func(*Comparator)

// WithDictionary replaces the embedded starter dictionary.
func WithDictionary(d *Dictionary) Option {
	return func(c *Comparator) {
		if d != nil {
			c.dict = d
		}
	}
}

// Comparator looks up phoneme sequences and scores pronunciation similarity.
// It is read-only after construction and safe for concurrent use.
type Comparator struct {
	dict *Dictionary
}

// New returns a Comparator backed by [DefaultDictionary] unless overridden.
func New(opts ...Option) *Comparator {
	c := &Comparator{dict: DefaultDictionary()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Known reports whether word has a dictionary pronunciation.
func (c *Comparator) Known(word string) bool {
	_, ok := c.dict.Lookup(clean(word))
	return ok
}

// Phonemes returns the canonical phoneme sequence for word. Unknown words
// yield one upper-cased pseudo-phoneme per letter or digit. An empty or
// punctuation-only word yields nil.
func (c *Comparator) Phonemes(word string) []Phoneme {
	w := clean(word)
	if w == "" {
		return nil
	}
	if p, ok := c.dict.Lookup(w); ok {
		out := make([]Phoneme, len(p))
		copy(out, p)
		return out
	}
	out := make([]Phoneme, 0, len(w))
	for _, r := range w {
		if r == '\'' {
			continue
		}
		out = append(out, Phoneme(strings.ToUpper(string(r))))
	}
	return out
}

// Similarity returns the pronunciation similarity of a and b in [0,1].
// Two empty words are identical; one empty word against a non-empty one
// scores 0.
func (c *Comparator) Similarity(a, b string) float64 {
	return SequenceSimilarity(c.Phonemes(a), c.Phonemes(b))
}

// SoundsAlike reports whether a and b share a Double Metaphone code. It is a
// coarser signal than [Comparator.Similarity] and is used to pick tips.
func (c *Comparator) SoundsAlike(a, b string) bool {
	a, b = clean(a), clean(b)
	if a == "" || b == "" {
		return false
	}
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	for _, x := range []string{ap, as} {
		if x == "" {
			continue
		}
		if x == bp || x == bs {
			return true
		}
	}
	return false
}

// SequenceSimilarity computes 1 - levenshtein(a, b) / max(len(a), len(b))
// over stress-stripped phonemes.
func SequenceSimilarity(a, b []Phoneme) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	longest := max(len(a), len(b))
	if min(len(a), len(b)) == 0 {
		return 0
	}

	// matchr works on strings, so each distinct phoneme becomes one rune from
	// the private use area and the distance is taken over those runes.
	alphabet := make(map[Phoneme]rune, longest)
	encode := func(seq []Phoneme) string {
		var sb strings.Builder
		for _, p := range seq {
			base := p.Base()
			r, ok := alphabet[base]
			if !ok {
				r = rune(0xE000 + len(alphabet))
				alphabet[base] = r
			}
			sb.WriteRune(r)
		}
		return sb.String()
	}

	dist := matchr.Levenshtein(encode(a), encode(b))
	return 1 - float64(dist)/float64(longest)
}

// clean lowercases word and strips everything but letters, combining marks,
// digits and apostrophes.
func clean(word string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(word) {
		if unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsDigit(r) || r == '\'' {
			sb.WriteRune(r)
		}
	}
	return strings.Trim(sb.String(), "'")
}
