package mood

import "strings"

// Emotion is a finer-grained tag layered on top of a Category.
// The zero value means no specific emotion was detected.
type Emotion int

const (
	EmotionNone Emotion = iota
	Energetic
	Relaxed
	Focus
	Melancholy
	Angry
	Romantic
)

var emotionNames = [...]string{
	EmotionNone: "",
	Energetic:   "energetic",
	Relaxed:     "relaxed",
	Focus:       "focus",
	Melancholy:  "melancholy",
	Angry:       "angry",
	Romantic:    "romantic",
}

// Emotions lists every specific emotion in tie-break order.
func Emotions() []Emotion {
	return []Emotion{Energetic, Relaxed, Focus, Melancholy, Angry, Romantic}
}

func (e Emotion) String() string {
	if e < EmotionNone || e > Romantic {
		return ""
	}
	return emotionNames[e]
}

// ParseEmotion returns the emotion with the given name. Unknown names
// yield EmotionNone and false.
func ParseEmotion(s string) (Emotion, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return EmotionNone, false
	}
	for i, name := range emotionNames {
		if name == s {
			return Emotion(i), true
		}
	}
	return EmotionNone, false
}

var keywords = map[Emotion][]string{
	Energetic:  {"energetic", "party", "dance", "celebration", "workout", "exercise", "pumped"},
	Relaxed:    {"chill", "relax", "calm", "peaceful", "sleep", "rest", "meditation"},
	Focus:      {"focus", "study", "work", "concentrate", "productive"},
	Melancholy: {"nostalgic", "memories", "remember", "reflection"},
	Angry:      {"angry", "mad", "frustrated", "annoyed", "rage"},
	Romantic:   {"love", "romance", "date", "relationship"},
}

// Keywords returns the trigger words for e.
func Keywords(e Emotion) []string {
	return append([]string(nil), keywords[e]...)
}

// Refine counts exact keyword matches per emotion over already normalized
// tokens. The emotion with the strictly highest nonzero count wins; ties
// go to the emotion listed first in Emotions.
func Refine(tokens []string) Emotion {
	index := make(map[string][]Emotion)
	for _, e := range Emotions() {
		for _, kw := range keywords[e] {
			index[kw] = append(index[kw], e)
		}
	}

	counts := make(map[Emotion]int)
	for _, tok := range tokens {
		for _, e := range index[strings.ToLower(tok)] {
			counts[e]++
		}
	}

	best, bestCount := EmotionNone, 0
	for _, e := range Emotions() {
		if counts[e] > bestCount {
			best, bestCount = e, counts[e]
		}
	}
	return best
}
