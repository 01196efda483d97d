// Package sentiment scores free text on a normalized [-1, 1] polarity scale.
package sentiment

import (
	"bufio"
	_ "embed"
	"math"
	"strconv"
	"strings"
	"sync"
)

// Score is the result of analyzing one piece of text.
type Score struct {
	// Compound is the normalized polarity in [-1, 1].
	Compound float64
	// Hits lists the lexicon words that contributed to the score.
	Hits []string
}

// Scorer turns text into a polarity score.
type Scorer interface {
	Score(text string) Score
}

const (
	// normalizationAlpha approximates the maximum expected raw valence sum.
	normalizationAlpha = 15.0

	// negationScalar is applied to a valence preceded by a negator.
	negationScalar = -0.74

	// boosterIncrement is added to (or removed from) an intensified valence.
	boosterIncrement = 0.293

	// negationWindow is how many preceding tokens are checked for a negator.
	negationWindow = 3
)

var negators = map[string]bool{
	"not": true, "no": true, "never": true, "nothing": true, "nobody": true,
	"none": true, "neither": true, "nor": true, "nowhere": true, "without": true,
	"hardly": true, "rarely": true, "cannot": true,
}

var boosters = map[string]float64{
	"absolutely": boosterIncrement, "completely": boosterIncrement,
	"extremely": boosterIncrement, "really": boosterIncrement,
	"so": boosterIncrement, "totally": boosterIncrement,
	"very": boosterIncrement, "incredibly": boosterIncrement,
	"super": boosterIncrement, "truly": boosterIncrement,
	"barely": -boosterIncrement, "slightly": -boosterIncrement,
	"somewhat": -boosterIncrement, "kinda": -boosterIncrement,
	"little": -boosterIncrement,
}

//go:embed lexicon.tsv
var lexiconData string

var (
	lexiconOnce sync.Once
	lexicon     map[string]float64
)

func loadLexicon() map[string]float64 {
	lexiconOnce.Do(func() {
		lexicon = make(map[string]float64)
		sc := bufio.NewScanner(strings.NewReader(lexiconData))
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			word, val, ok := strings.Cut(line, "\t")
			if !ok {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
			if err != nil {
				continue
			}
			lexicon[word] = v
		}
	})
	return lexicon
}

// LexiconScorer scores text against an embedded valence lexicon.
// It is pure and safe for concurrent use.
type LexiconScorer struct {
	words map[string]float64
}

// NewLexiconScorer returns a scorer backed by the built-in lexicon.
func NewLexiconScorer() *LexiconScorer {
	return &LexiconScorer{words: loadLexicon()}
}

var _ Scorer = (*LexiconScorer)(nil)

// Score implements Scorer. Text with no lexicon hits scores exactly 0.
func (s *LexiconScorer) Score(text string) Score {
	return s.scoreTokens(Tokens(text))
}

func (s *LexiconScorer) scoreTokens(tokens []string) Score {
	var (
		sum  float64
		hits []string
	)
	for i, tok := range tokens {
		v, ok := s.words[tok]
		if !ok || v == 0 {
			continue
		}
		if i > 0 {
			if inc, ok := boosters[tokens[i-1]]; ok {
				if v > 0 {
					v += inc
				} else {
					v -= inc
				}
			}
		}
		if negated(tokens, i) {
			v *= negationScalar
		}
		sum += v
		hits = append(hits, tok)
	}
	return Score{Compound: compound(sum), Hits: hits}
}

func negated(tokens []string, i int) bool {
	for j := max(0, i-negationWindow); j < i; j++ {
		if negators[tokens[j]] {
			return true
		}
	}
	return false
}

// compound squashes a raw valence sum into [-1, 1].
func compound(sum float64) float64 {
	if sum == 0 {
		return 0
	}
	c := sum / math.Sqrt(sum*sum+normalizationAlpha)
	return math.Max(-1, math.Min(1, c))
}
