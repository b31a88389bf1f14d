package phonetic

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"unicode"
)

// Phoneme is a single ARPAbet symbol as it appears in a CMU-format
// pronunciation dictionary (e.g. "AH0", "TH"). Vowels carry a trailing stress
// digit.
type Phoneme string

// Base returns the phoneme without its stress digit ("AH0" → "AH").
func (p Phoneme) Base() Phoneme {
	return Phoneme(strings.TrimRightFunc(string(p), unicode.IsDigit))
}

//go:embed cmudict.txt
var starterDict string

var (
	defaultDict     *Dictionary
	defaultDictOnce sync.Once
)

// Dictionary maps lowercased words to their canonical phoneme sequence.
// It is read-only after construction and safe for concurrent use.
type Dictionary struct {
	entries map[string][]Phoneme
}

// DefaultDictionary returns the embedded starter dictionary. It covers the
// common words used in everyday practice sentences; deployments that need
// broader coverage should load a full cmudict with [LoadDictionary].
func DefaultDictionary() *Dictionary {
	defaultDictOnce.Do(func() {
		d, err := ParseDictionary(strings.NewReader(starterDict))
		if err != nil {
			panic("phonetic: embedded dictionary is malformed: " + err.Error())
		}
		defaultDict = d
	})
	return defaultDict
}

// LoadDictionary reads a CMU-format dictionary file from path.
func LoadDictionary(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("phonetic: open dictionary %q: %w", path, err)
	}
	defer f.Close()

	d, err := ParseDictionary(f)
	if err != nil {
		return nil, fmt.Errorf("phonetic: parse dictionary %q: %w", path, err)
	}
	return d, nil
}

// ParseDictionary decodes CMU-format lines ("WORD  P1 P2 ..."). Lines
// starting with ";;;" are comments. Alternate pronunciations written as
// "WORD(2)" are skipped so the first variant always wins.
func ParseDictionary(r io.Reader) (*Dictionary, error) {
	d := &Dictionary{entries: make(map[string][]Phoneme)}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, ";;;") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: expected word followed by phonemes", line)
		}
		word := strings.ToLower(fields[0])
		if strings.HasSuffix(word, ")") && strings.Contains(word, "(") {
			continue
		}
		if _, seen := d.entries[word]; seen {
			continue
		}
		phones := make([]Phoneme, 0, len(fields)-1)
		for _, f := range fields[1:] {
			if f == "#" {
				// cmudict trailing comments
				break
			}
			phones = append(phones, Phoneme(f))
		}
		d.entries[word] = phones
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return d, nil
}

// Lookup returns the phonemes for word and whether the word is present.
// The returned slice must not be modified.
func (d *Dictionary) Lookup(word string) ([]Phoneme, bool) {
	if d == nil {
		return nil, false
	}
	p, ok := d.entries[strings.ToLower(word)]
	return p, ok
}

// Len reports the number of words in the dictionary.
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}
