// Package mood maps sentiment scores to mood categories and detects
// specific emotions from keywords.
package mood

import (
	"math"
	"strings"
)

// Category is a discrete bucket summarizing sentiment polarity and intensity.
// Categories are ordered from most negative to most positive.
type Category int

const (
	VerySad Category = iota
	Sad
	Negative
	Neutral
	Positive
	Happy
	VeryHappy
)

// Band thresholds on the compound score. Each edge belongs to exactly one band:
//
//	s >= 0.75         very_happy
//	0.25 <= s < 0.75  happy
//	0 < s < 0.25      positive
//	s == 0            neutral
//	-0.25 < s < 0     negative
//	-0.75 < s <= -0.25 sad
//	s <= -0.75        very_sad
const (
	VeryHappyThreshold = 0.75
	HappyThreshold     = 0.25
	SadThreshold       = -0.25
	VerySadThreshold   = -0.75
)

var categoryNames = [...]string{
	VerySad:   "very_sad",
	Sad:       "sad",
	Negative:  "negative",
	Neutral:   "neutral",
	Positive:  "positive",
	Happy:     "happy",
	VeryHappy: "very_happy",
}

// Categories lists every category in order.
func Categories() []Category {
	return []Category{VerySad, Sad, Negative, Neutral, Positive, Happy, VeryHappy}
}

func (c Category) String() string {
	if c < VerySad || c > VeryHappy {
		return "unknown"
	}
	return categoryNames[c]
}

// Valid reports whether c is one of the defined categories.
func (c Category) Valid() bool {
	return c >= VerySad && c <= VeryHappy
}

// ParseCategory returns the category with the given name.
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range categoryNames {
		if name == s {
			return Category(i), true
		}
	}
	return Neutral, false
}

// Classify maps a compound score to a category. Scores outside [-1, 1]
// are clamped and NaN is treated as neutral.
func Classify(score float64) Category {
	if math.IsNaN(score) {
		return Neutral
	}
	score = math.Max(-1, math.Min(1, score))

	switch {
	case score >= VeryHappyThreshold:
		return VeryHappy
	case score >= HappyThreshold:
		return Happy
	case score > 0:
		return Positive
	case score == 0:
		return Neutral
	case score > SadThreshold:
		return Negative
	case score > VerySadThreshold:
		return Sad
	default:
		return VerySad
	}
}
