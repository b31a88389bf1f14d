// Package align pairs the words a learner was expected to say with the words
// they actually said.
//
// Two strategies are available. [ModeEdit] (the default) computes a minimum
// cost word-level edit script, so a single skipped or inserted word only
// affects its own position. [ModePositional] pairs words by index; it is
// cheaper but one insertion or omission shifts every later pair, so it is
// kept only as an explicit fast mode.
package align

import (
	"fmt"
	"math"
	"strings"
)

// Mode selects the alignment strategy.
type Mode int

const (
	// ModeEdit aligns with a weighted edit distance over words.
	ModeEdit Mode = iota

	// ModePositional pairs the i-th expected word with the i-th spoken word.
	ModePositional
)

// String returns the config spelling of the mode.
func (m Mode) String() string {
	switch m {
	case ModeEdit:
		return "edit"
	case ModePositional:
		return "positional"
	default:
		return "unknown"
	}
}

// ParseMode converts a config value into a [Mode]. The empty string selects
// [ModeEdit].
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "edit":
		return ModeEdit, nil
	case "positional", "fast":
		return ModePositional, nil
	}
	return ModeEdit, fmt.Errorf("align: unknown mode %q; valid values: edit, positional", s)
}

// Pair is one aligned position. An empty Expected marks an extra spoken word;
// an empty Spoken marks a missing expected word.
type Pair struct {
	// Pos is the 1-based position within the alignment.
	Pos      int
	Expected string
	Spoken   string
}

// Missing reports whether the expected word was not spoken.
func (p Pair) Missing() bool { return p.Expected != "" && p.Spoken == "" }

// Extra reports whether the spoken word has no expected counterpart.
func (p Pair) Extra() bool { return p.Expected == "" && p.Spoken != "" }

// SimilarityFunc scores two words in [0,1].
type SimilarityFunc func(a, b string) float64

// Align pairs expected and spoken using mode. sim is only consulted by
// [ModeEdit]; nil means exact equality.
func Align(mode Mode, expected, spoken []string, sim SimilarityFunc) []Pair {
	if mode == ModePositional {
		return Positional(expected, spoken)
	}
	return Edit(expected, spoken, sim)
}

// Positional pairs words by index up to max(len(expected), len(spoken)).
func Positional(expected, spoken []string) []Pair {
	n := max(len(expected), len(spoken))
	pairs := make([]Pair, n)
	for i := range n {
		p := Pair{Pos: i + 1}
		if i < len(expected) {
			p.Expected = expected[i]
		}
		if i < len(spoken) {
			p.Spoken = spoken[i]
		}
		pairs[i] = p
	}
	return pairs
}

// epsilon absorbs floating point noise when retracing the cost matrix.
const epsilon = 1e-9

// Edit aligns with substitution cost 1-sim(a,b) and unit insertion and
// deletion costs. Ties prefer substitution, then deletion, then insertion,
// so the result is deterministic.
func Edit(expected, spoken []string, sim SimilarityFunc) []Pair {
	if sim == nil {
		sim = exact
	}
	n, m := len(expected), len(spoken)

	cost := make([][]float64, n+1)
	for i := range cost {
		cost[i] = make([]float64, m+1)
		cost[i][0] = float64(i)
	}
	for j := 0; j <= m; j++ {
		cost[0][j] = float64(j)
	}

	subCost := func(i, j int) float64 {
		if expected[i-1] == spoken[j-1] {
			return 0
		}
		s := sim(expected[i-1], spoken[j-1])
		return 1 - math.Max(0, math.Min(1, s))
	}

	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			cost[i][j] = math.Min(
				cost[i-1][j-1]+subCost(i, j),
				math.Min(cost[i-1][j]+1, cost[i][j-1]+1),
			)
		}
	}

	// Walk back from the bottom-right corner, then reverse.
	rev := make([]Pair, 0, n+m)
	i, j := n, m
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && math.Abs(cost[i][j]-(cost[i-1][j-1]+subCost(i, j))) < epsilon:
			rev = append(rev, Pair{Expected: expected[i-1], Spoken: spoken[j-1]})
			i--
			j--
		case i > 0 && math.Abs(cost[i][j]-(cost[i-1][j]+1)) < epsilon:
			rev = append(rev, Pair{Expected: expected[i-1]})
			i--
		default:
			rev = append(rev, Pair{Spoken: spoken[j-1]})
			j--
		}
	}

	pairs := make([]Pair, len(rev))
	for k := range rev {
		p := rev[len(rev)-1-k]
		p.Pos = k + 1
		pairs[k] = p
	}
	return pairs
}

func exact(a, b string) float64 {
	if a == b {
		return 1
	}
	return 0
}
