package assess

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/speakeasy/internal/assess/align"
)

// Strategy selects how two aligned words are compared.
type Strategy int

const (
	// StrategyPhonetic compares canonical phoneme sequences.
	StrategyPhonetic Strategy = iota

	// StrategyOrthographic compares spelling only.
	StrategyOrthographic
)

// String returns the config spelling of the strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyPhonetic:
		return "phonetic"
	case StrategyOrthographic:
		return "orthographic"
	default:
		return "unknown"
	}
}

// ParseStrategy converts a config value into a [Strategy]. The empty string
// selects [StrategyPhonetic].
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "phonetic":
		return StrategyPhonetic, nil
	case "orthographic", "text":
		return StrategyOrthographic, nil
	}
	return StrategyPhonetic, fmt.Errorf("assess: unknown strategy %q; valid values: phonetic, orthographic", s)
}

// Bands are the word-accuracy lower bounds (percent) of each status band.
type Bands struct {
	Excellent float64
	Good      float64
	Fair      float64
}

// Config holds the tunable thresholds of the scorer. They are empirical and
// usually need adjusting per language or accent.
type Config struct {
	// DifferenceThreshold is the sentence similarity below which the
	// utterance is considered unrelated to the reference.
	DifferenceThreshold float64

	// MatchThreshold is the word similarity at or above which an aligned
	// pair counts as a match.
	MatchThreshold float64

	Bands     Bands
	Strategy  Strategy
	Alignment align.Mode
}

// DefaultConfig returns the thresholds used when none are configured.
func DefaultConfig() Config {
	return Config{
		DifferenceThreshold: 0.35,
		MatchThreshold:      0.8,
		Bands: Bands{
			Excellent: 90,
			Good:      75,
			Fair:      50,
		},
		Strategy:  StrategyPhonetic,
		Alignment: align.ModeEdit,
	}
}

// Validate reports every invalid threshold.
func (c Config) Validate() error {
	var errs []error
	if c.DifferenceThreshold < 0 || c.DifferenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("difference_threshold %v must be in [0,1]", c.DifferenceThreshold))
	}
	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		errs = append(errs, fmt.Errorf("match_threshold %v must be in (0,1]", c.MatchThreshold))
	}
	b := c.Bands
	if b.Excellent > 100 || b.Fair < 0 {
		errs = append(errs, errors.New("bands must lie within [0,100]"))
	}
	if !(b.Excellent >= b.Good && b.Good >= b.Fair) {
		errs = append(errs, errors.New("bands must satisfy excellent >= good >= fair"))
	}
	if c.Strategy != StrategyPhonetic && c.Strategy != StrategyOrthographic {
		errs = append(errs, fmt.Errorf("unknown strategy %d", c.Strategy))
	}
	if c.Alignment != align.ModeEdit && c.Alignment != align.ModePositional {
		errs = append(errs, fmt.Errorf("unknown alignment mode %d", c.Alignment))
	}
	return errors.Join(errs...)
}
