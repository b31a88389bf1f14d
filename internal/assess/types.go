package assess

// Status is the overall verdict of one assessment.
type Status string

const (
	// StatusSilent means the transcription was empty or whitespace.
	StatusSilent Status = "silent"

	// StatusDifferent means the learner said something unrelated to the
	// reference sentence, so no word-level comparison was made.
	StatusDifferent Status = "different"

	// StatusOK means accuracy reached the good band and every error is a
	// substitution (the right words, imperfectly pronounced).
	StatusOK Status = "ok"

	// StatusImproving means accuracy reached the good band but words were
	// skipped or added.
	StatusImproving Status = "improving"

	// StatusMispronounced means accuracy reached the fair band.
	StatusMispronounced Status = "mispronounced"

	// StatusWordError means accuracy fell below the fair band.
	StatusWordError Status = "word_error"

	// StatusExcellent means accuracy reached the excellent band.
	StatusExcellent Status = "excellent"
)

// Classification describes how one aligned position diverges.
type Classification string

const (
	ClassMatch        Classification = "match"
	ClassSubstitution Classification = "substitution"
	ClassInsertion    Classification = "insertion"
	ClassDeletion     Classification = "deletion"
)

// Failure records why a transcription produced no text. It is informational:
// the scorer treats every failure as silent input.
type Failure string

const (
	FailureNone        Failure = ""
	FailureNoAudio     Failure = "no_audio"
	FailureUnreadable  Failure = "unreadable"
	FailureEngineError Failure = "engine_error"
	FailureNoSpeech    Failure = "no_speech"
)

// Reference is the sentence the learner was asked to say.
type Reference struct {
	Text     string
	Words    []string
	Language string
}

// NewReference tokenizes text into a [Reference].
func NewReference(text, language string) Reference {
	return Reference{Text: text, Words: Tokenize(text), Language: language}
}

// Transcription is the text recognised from the learner's recording.
type Transcription struct {
	Text string

	// Confidence is the engine's confidence in [0,1], or zero if the engine
	// does not report one.
	Confidence float64

	Failure Failure
}

// WordComparison is one aligned position of the reference and the
// transcription. Exactly one of Expected and Spoken may be empty.
type WordComparison struct {
	Pos      int
	Expected string
	Spoken   string

	// Orthographic is the character-level similarity of the two words.
	Orthographic float64

	// Phonetic is the phoneme-level similarity; only set when the scorer
	// runs with [StrategyPhonetic].
	Phonetic    float64
	HasPhonetic bool

	// Similarity is the score that drove Class.
	Similarity float64
	Class      Classification

	Tip   string
	Guide string
	Hint  string
}

// Result is the output of [Scorer.Score]. Feedback and Encouragement are
// left empty by the scorer and filled in by a feedback composer.
type Result struct {
	Status      Status
	Comparisons []WordComparison

	// SentenceSimilarity is the sentence-level similarity in [0,1].
	SentenceSimilarity float64

	// WordAccuracy is Matches / max(1, ExpectedWords) * 100.
	WordAccuracy  float64
	Matches       int
	ExpectedWords int
	SpokenWords   int

	Reference  string
	Transcript string
	Failure    Failure

	Feedback      string
	Encouragement string
}

// Mismatches returns every comparison that is not a match, in order.
func (r Result) Mismatches() []WordComparison {
	var out []WordComparison
	for _, c := range r.Comparisons {
		if c.Class != ClassMatch {
			out = append(out, c)
		}
	}
	return out
}
