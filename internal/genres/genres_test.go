package genres

import (
	"slices"
	"testing"

	"github.com/justestif/moodtunes/internal/mood"
)

func TestRecommend(t *testing.T) {
	tests := []struct {
		name     string
		mood     mood.Category
		emotion  mood.Emotion
		listener []string
		want     []string
	}{
		{
			name: "very happy mood only",
			mood: mood.VeryHappy,
			want: []string{"pop", "dance", "electronic"},
		},
		{
			name:    "emotion genres follow mood genres",
			mood:    mood.VeryHappy,
			emotion: mood.Energetic,
			want:    []string{"pop", "dance", "electronic", "workout", "edm"},
		},
		{
			name:     "listener genres appended after",
			mood:     mood.Sad,
			listener: []string{"emo", "acoustic"},
			want:     []string{"acoustic", "singer-songwriter", "slow", "emo"},
		},
		{
			name:     "cap applies in insertion order",
			mood:     mood.Negative,
			emotion:  mood.Angry,
			listener: []string{"grunge"},
			want:     []string{"indie rock", "alternative", "blues", "rock", "metal"},
		},
		{
			name:     "neutral uses listener genres",
			mood:     mood.Neutral,
			listener: []string{"k-pop", "shoegaze"},
			want:     []string{"k-pop", "shoegaze"},
		},
		{
			name: "neutral without listener falls back to default",
			mood: mood.Neutral,
			want: []string{"pop", "indie"},
		},
		{
			name:    "neutral with emotion uses tables",
			mood:    mood.Neutral,
			emotion: mood.Focus,
			want:    []string{"ambient", "classical", "jazz", "instrumental", "lo-fi"},
		},
		{
			name: "unknown mood falls back to default",
			mood: mood.Category(42),
			want: []string{"pop", "indie"},
		},
		{
			name:     "case sensitive dedup",
			mood:     mood.Happy,
			listener: []string{"Pop"},
			want:     []string{"pop", "indie pop", "funk", "Pop"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Recommend(tt.mood, tt.emotion, tt.listener)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Recommend() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecommend_NeverEmptyNeverDuplicated(t *testing.T) {
	listeners := [][]string{nil, {}, {"pop", "pop", ""}, {"ambient", "jazz", "metal", "folk", "house", "trap"}}
	emotions := append([]mood.Emotion{mood.EmotionNone}, mood.Emotions()...)

	for _, c := range mood.Categories() {
		for _, e := range emotions {
			for _, l := range listeners {
				got := Recommend(c, e, l)
				if len(got) == 0 {
					t.Fatalf("Recommend(%s, %q, %v) returned empty set", c, e, l)
				}
				if len(got) > MaxGenres {
					t.Fatalf("Recommend(%s, %q, %v) returned %d genres", c, e, l, len(got))
				}
				seen := make(map[string]bool)
				for _, g := range got {
					if seen[g] {
						t.Fatalf("Recommend(%s, %q, %v) = %v has duplicate %q", c, e, l, got, g)
					}
					seen[g] = true
				}
			}
		}
	}
}

func TestRecommend_DoesNotAliasTables(t *testing.T) {
	got := Recommend(mood.Neutral, mood.EmotionNone, nil)
	got[0] = "mutated"

	if Default[0] != "pop" {
		t.Errorf("Default was mutated: %v", Default)
	}
}

func TestMerge(t *testing.T) {
	got := Merge(0, []string{"a", "b"}, []string{"b", "", "c"})
	if !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("Merge() = %v", got)
	}
	if got := Merge(1, []string{"a", "b"}); !slices.Equal(got, []string{"a"}) {
		t.Errorf("Merge(1) = %v", got)
	}
}
