// Package genres selects catalog genres for a mood and optional emotion.
package genres

import "github.com/justestif/moodtunes/internal/mood"

// MaxGenres caps the size of a recommended genre set.
const MaxGenres = 5

// Default is returned when no other genres are available.
var Default = []string{"pop", "indie"}

var moodGenres = map[mood.Category][]string{
	mood.VeryHappy: {"pop", "dance", "electronic"},
	mood.Happy:     {"pop", "indie pop", "funk"},
	mood.Positive:  {"pop rock", "indie", "folk"},
	mood.Neutral:   {"ambient", "classical", "jazz"},
	mood.Negative:  {"indie rock", "alternative", "blues"},
	mood.Sad:       {"acoustic", "singer-songwriter", "slow"},
	mood.VerySad:   {"ambient", "classical piano", "instrumental"},
}

var emotionGenres = map[mood.Emotion][]string{
	mood.Energetic:  {"dance", "electronic", "workout", "edm"},
	mood.Relaxed:    {"ambient", "chillout", "acoustic"},
	mood.Focus:      {"instrumental", "classical", "lo-fi"},
	mood.Melancholy: {"indie folk", "singer-songwriter"},
	mood.Angry:      {"rock", "metal", "punk"},
	mood.Romantic:   {"r&b", "love songs", "ballads"},
}

// ForMood returns the static genre list for c.
func ForMood(c mood.Category) []string {
	return append([]string(nil), moodGenres[c]...)
}

// ForEmotion returns the static genre list for e.
func ForEmotion(e mood.Emotion) []string {
	return append([]string(nil), emotionGenres[e]...)
}

// Recommend builds an ordered, duplicate-free genre set of at most MaxGenres.
//
// Mood genres come first, then emotion genres, then the listener's own
// genres. A neutral mood without a specific emotion defers entirely to the
// listener's genres when any are known. The result is never empty.
func Recommend(c mood.Category, e mood.Emotion, listener []string) []string {
	base, ok := moodGenres[c]
	if !ok {
		return defaultSet()
	}

	if c == mood.Neutral && e == mood.EmotionNone {
		if picked := Merge(MaxGenres, listener); len(picked) > 0 {
			return picked
		}
		return defaultSet()
	}

	picked := Merge(MaxGenres, base, emotionGenres[e], listener)
	if len(picked) == 0 {
		return defaultSet()
	}
	return picked
}

// Merge concatenates lists, drops blanks and duplicates (first occurrence
// wins, case-sensitive) and truncates to limit. A limit <= 0 means no cap.
func Merge(limit int, lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, g := range list {
			if g == "" || seen[g] {
				continue
			}
			seen[g] = true
			out = append(out, g)
			if limit > 0 && len(out) == limit {
				return out
			}
		}
	}
	return out
}

func defaultSet() []string {
	return append([]string(nil), Default...)
}
