package feedback

import "github.com/MrWong99/speakeasy/internal/assess"

// Band buckets word accuracy for encouragement selection.
type Band int

const (
	// BandAny matches every accuracy. Catalog entries keyed with it are the
	// fallback for a status.
	BandAny Band = iota
	BandLow
	BandMid
	BandHigh
	BandPerfect
)

// BandOf returns the band for a word accuracy in percent.
func BandOf(accuracy float64) Band {
	switch {
	case accuracy >= 100:
		return BandPerfect
	case accuracy >= 75:
		return BandHigh
	case accuracy >= 50:
		return BandMid
	default:
		return BandLow
	}
}

// Key addresses one list of encouragements.
type Key struct {
	Status assess.Status
	Band   Band
}

// Entry is one encouragement and its relative selection weight.
type Entry struct {
	Text   string
	Weight int
}

// Catalog maps (status, band) to weighted encouragements.
type Catalog map[Key][]Entry

// fallbackEncouragement is used when the catalog has nothing for a result.
const fallbackEncouragement = "Har koshish aapko better banati hai. Keep it up!"

// DefaultCatalog returns the built-in encouragement catalog.
func DefaultCatalog() Catalog {
	return Catalog{
		{assess.StatusSilent, BandAny}: {
			{"Aap bilkul sahi kar rahe hain. Bas ek baar aur try kijiye!", 3},
			{"Koi baat nahi! Thoda aur confidence ke saath boliye.", 2},
			{"Take a deep breath and speak a little louder. You've got this!", 1},
		},
		{assess.StatusDifferent, BandAny}: {
			{"Practice makes perfect! Aap bilkul sahi direction mein hain.", 3},
			{"Aapne koshish ki, ye bahut acchi baat hai!", 2},
		},
		{assess.StatusWordError, BandAny}: {
			{"Bilkul sahi direction mein hain! Bas thoda dhyan dena hai.", 3},
			{"Har koshish aapko better banati hai. Keep it up!", 2},
		},
		{assess.StatusMispronounced, BandAny}: {
			{"Aap sahi raah par hain! Keep going!", 3},
			{"Har koshish aapko better banati hai. Keep it up!", 2},
		},
		{assess.StatusImproving, BandAny}: {
			{"Bahut accha! Aapka pronunciation improve ho raha hai.", 3},
			{"Aap sahi raah par hain! Keep going!", 2},
		},
		{assess.StatusOK, BandAny}: {
			{"Bahut acchi koshish! Aap sahi direction mein hain.", 3},
			{"Great job! Aapka confidence badh raha hai!", 2},
		},
		{assess.StatusExcellent, BandHigh}: {
			{"Excellent! Aapka pronunciation bahut accha hai!", 2},
			{"Wonderful! Aap bilkul sahi bol rahe hain!", 2},
			{"Great job! Aapka confidence badh raha hai!", 1},
		},
		{assess.StatusExcellent, BandPerfect}: {
			{"Perfect! Aapne bahut accha kiya!", 3},
			{"Amazing! Aap expert ban rahe hain!", 2},
			{"Aap bahut accha kar rahe hain! Next sentence ke liye ready?", 2},
		},
	}
}

// lookup returns the entries for (status, band), falling back to
// (status, BandAny).
func (c Catalog) lookup(status assess.Status, b Band) []Entry {
	if e := c[Key{status, b}]; len(e) > 0 {
		return e
	}
	return c[Key{status, BandAny}]
}
