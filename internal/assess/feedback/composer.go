// Package feedback turns an assessment into learner-facing text.
//
// Every composed [Feedback] has a non-empty, constructive message: the
// lowest band still ends in a retry prompt. Encouragements are drawn from a
// weighted [Catalog] keyed by status and accuracy band using an injectable
// random source, so tests can pin the selection.
package feedback

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/MrWong99/speakeasy/internal/assess"
)

// maxListedWords caps the words named in a "you missed some words" message.
const maxListedWords = 5

// Correction describes one aligned position that was not a clean match.
type Correction struct {
	Pos        int                   `json:"position"`
	Expected   string                `json:"expected_word"`
	Spoken     string                `json:"spoken_word"`
	Similarity float64               `json:"similarity"`
	Class      assess.Classification `json:"classification"`
	Tip        string                `json:"tip"`
	Guide      string                `json:"phonetic_guide,omitempty"`
	Hint       string                `json:"audio_tip,omitempty"`
}

// Feedback is the composed output for one assessment.
type Feedback struct {
	Message       string
	Encouragement string
	Corrections   []Correction
}

// Option configures a [Composer].
type Option func(*Composer)

// WithRand sets the random source used to pick encouragements.
func WithRand(r *rand.Rand) Option {
	return func(c *Composer) {
		if r != nil {
			c.rng = r
		}
	}
}

// WithCatalog replaces the built-in encouragement catalog.
func WithCatalog(cat Catalog) Option {
	return func(c *Composer) {
		if cat != nil {
			c.catalog = cat
		}
	}
}

// Composer builds [Feedback] from an [assess.Result]. It is safe for
// concurrent use.
type Composer struct {
	mu      sync.Mutex // guards rng
	rng     *rand.Rand
	catalog Catalog
}

// New returns a Composer with the default catalog and a randomly seeded
// source unless overridden.
func New(opts ...Option) *Composer {
	c := &Composer{catalog: DefaultCatalog()}
	for _, o := range opts {
		o(c)
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return c
}

// Compose builds the message, encouragement and corrections for res.
func (c *Composer) Compose(res assess.Result) Feedback {
	fb := Feedback{
		Corrections: Corrections(res),
	}
	fb.Message = message(res, fb.Corrections)
	fb.Encouragement = c.encouragement(res)
	return fb
}

// Apply composes feedback and stores message and encouragement on res.
func (c *Composer) Apply(res *assess.Result) Feedback {
	fb := c.Compose(*res)
	res.Feedback = fb.Message
	res.Encouragement = fb.Encouragement
	return fb
}

// Corrections lists every non-matching comparison of res in order.
func Corrections(res assess.Result) []Correction {
	var out []Correction
	for _, wc := range res.Comparisons {
		if wc.Class == assess.ClassMatch {
			continue
		}
		out = append(out, Correction{
			Pos:        wc.Pos,
			Expected:   wc.Expected,
			Spoken:     wc.Spoken,
			Similarity: Percent(wc.Similarity),
			Class:      wc.Class,
			Tip:        wc.Tip,
			Guide:      wc.Guide,
			Hint:       wc.Hint,
		})
	}
	return out
}

// Percent converts a [0,1] ratio to a percentage rounded to one decimal.
func Percent(ratio float64) float64 {
	return math.Round(ratio*1000) / 10
}

func message(res assess.Result, corrections []Correction) string {
	switch res.Status {
	case assess.StatusSilent:
		if res.Reference != "" {
			return fmt.Sprintf("We couldn't hear you clearly. Speak a little louder and try again: '%s'", res.Reference)
		}
		return "We couldn't hear you clearly. Speak a little louder and try again."
	case assess.StatusDifferent:
		if res.Reference != "" {
			return fmt.Sprintf("Nice try! Now let's say this sentence: '%s'", res.Reference)
		}
		return "Nice try! Let's practise the sentence once more."
	}

	if res.WordAccuracy >= 100 {
		if len(corrections) == 0 {
			return "Excellent pronunciation! 0 corrections needed."
		}
		return "Excellent pronunciation! Every word was right; leave out the extra words next time."
	}

	switch res.Status {
	case assess.StatusExcellent:
		return "Excellent pronunciation!"
	case assess.StatusOK, assess.StatusImproving:
		return "Good attempt. Focus on clarity of a few words."
	case assess.StatusMispronounced:
		var words []string
		for _, c := range corrections {
			if c.Expected == "" {
				continue
			}
			words = append(words, c.Expected)
			if len(words) == maxListedWords {
				break
			}
		}
		if len(words) > 0 {
			return "You missed some words. Try: " + strings.Join(words, ", ")
		}
		return "Good attempt. Focus on clarity of a few words."
	default:
		return "Let's slow down and try again. Repeat each word clearly."
	}
}

func (c *Composer) encouragement(res assess.Result) string {
	entries := c.catalog.lookup(res.Status, BandOf(res.WordAccuracy))
	total := 0
	for _, e := range entries {
		if e.Weight > 0 {
			total += e.Weight
		}
	}
	if total == 0 {
		return fallbackEncouragement
	}

	c.mu.Lock()
	x := c.rng.Float64() * float64(total)
	c.mu.Unlock()

	acc := 0.0
	for _, e := range entries {
		if e.Weight <= 0 {
			continue
		}
		acc += float64(e.Weight)
		if x < acc {
			return e.Text
		}
	}
	// Float64 is below 1, so this is only reached through rounding.
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Weight > 0 {
			return entries[i].Text
		}
	}
	return fallbackEncouragement
}
