// Package assess scores a learner's spoken attempt against a reference
// sentence.
//
// The [Scorer] gates on silence and on gross sentence dissimilarity, aligns
// the remaining words (package align), compares each aligned pair using the
// configured [Strategy] and derives a word accuracy and a [Status] band.
// Scoring is a pure function of its inputs and never fails: malformed or
// empty input degrades to [StatusSilent] or [StatusDifferent].
package assess

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/MrWong99/speakeasy/internal/assess/align"
	"github.com/MrWong99/speakeasy/internal/assess/phonetic"
)

// Option configures a [Scorer].
type Option func(*Scorer)

// WithComparator sets the phonetic comparator used for phonetic scoring,
// tips and guides. Defaults to phonetic.New().
func WithComparator(c *phonetic.Comparator) Option {
	return func(s *Scorer) {
		if c != nil {
			s.phon = c
		}
	}
}

// Scorer turns a reference and a transcription into a [Result].
// It is safe for concurrent use; [Scorer.SetConfig] swaps thresholds
// atomically for subsequent calls.
type Scorer struct {
	cfg  atomic.Pointer[Config]
	phon *phonetic.Comparator
}

// New validates cfg and returns a Scorer.
func New(cfg Config, opts ...Option) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("assess: invalid config: %w", err)
	}
	s := &Scorer{}
	s.cfg.Store(&cfg)
	for _, o := range opts {
		o(s)
	}
	if s.phon == nil {
		s.phon = phonetic.New()
	}
	return s, nil
}

// Config returns the thresholds currently in effect.
func (s *Scorer) Config() Config {
	return *s.cfg.Load()
}

// SetConfig replaces the thresholds used by later calls.
func (s *Scorer) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("assess: invalid config: %w", err)
	}
	s.cfg.Store(&cfg)
	return nil
}

// Comparator returns the phonetic comparator in use.
func (s *Scorer) Comparator() *phonetic.Comparator {
	return s.phon
}

// Score assesses tr against ref.
func (s *Scorer) Score(ref Reference, tr Transcription) Result {
	cfg := s.Config()

	expected := ref.Words
	if expected == nil {
		expected = Tokenize(ref.Text)
	}
	res := Result{
		ExpectedWords: len(expected),
		Reference:     ref.Text,
		Transcript:    strings.TrimSpace(tr.Text),
		Failure:       tr.Failure,
	}

	if res.Transcript == "" {
		res.Status = StatusSilent
		return res
	}
	if len(expected) == 0 {
		// Nothing to score against.
		res.Status = StatusDifferent
		return res
	}

	spoken := Tokenize(tr.Text)
	res.SpokenWords = len(spoken)
	res.SentenceSimilarity = Ratio(strings.Join(expected, " "), strings.Join(spoken, " "))
	if res.SentenceSimilarity < cfg.DifferenceThreshold {
		res.Status = StatusDifferent
		return res
	}

	sim := s.similarityFunc(cfg.Strategy)
	pairs := align.Align(cfg.Alignment, expected, spoken, sim)
	res.Comparisons = make([]WordComparison, 0, len(pairs))
	for _, p := range pairs {
		wc := s.compare(cfg, p)
		if wc.Class == ClassMatch {
			res.Matches++
		}
		res.Comparisons = append(res.Comparisons, wc)
	}

	res.WordAccuracy = float64(res.Matches) / float64(max(1, len(expected))) * 100
	res.Status = band(cfg.Bands, res.WordAccuracy, res.Comparisons)
	return res
}

func (s *Scorer) similarityFunc(st Strategy) align.SimilarityFunc {
	if st == StrategyOrthographic {
		return Ratio
	}
	return s.phon.Similarity
}

func (s *Scorer) compare(cfg Config, p align.Pair) WordComparison {
	wc := WordComparison{Pos: p.Pos, Expected: p.Expected, Spoken: p.Spoken}

	switch {
	case p.Extra():
		wc.Class = ClassInsertion
	case p.Missing():
		wc.Class = ClassDeletion
	default:
		wc.Orthographic = Ratio(p.Expected, p.Spoken)
		wc.Similarity = wc.Orthographic
		if cfg.Strategy == StrategyPhonetic {
			wc.Phonetic = s.phon.Similarity(p.Expected, p.Spoken)
			wc.HasPhonetic = true
			wc.Similarity = wc.Phonetic
		}
		if wc.Similarity >= cfg.MatchThreshold {
			wc.Class = ClassMatch
			return wc
		}
		wc.Class = ClassSubstitution
	}

	wc.Tip = s.phon.Tip(p.Expected, p.Spoken)
	if p.Expected != "" {
		wc.Guide = s.phon.Guide(p.Expected)
		wc.Hint = s.phon.SpokenHint(p.Expected)
	}
	return wc
}

// band maps accuracy onto a status. Within the good band, skipped or added
// words downgrade ok to improving.
func band(b Bands, accuracy float64, comps []WordComparison) Status {
	switch {
	case accuracy >= b.Excellent:
		return StatusExcellent
	case accuracy >= b.Good:
		for _, c := range comps {
			if c.Class == ClassInsertion || c.Class == ClassDeletion {
				return StatusImproving
			}
		}
		return StatusOK
	case accuracy >= b.Fair:
		return StatusMispronounced
	default:
		return StatusWordError
	}
}
