// Package emotion classifies chat messages into a mood category, an optional
// emotion tag and a toxicity flag.
package emotion

import (
	"context"

	"github.com/justestif/moodtunes/internal/mood"
	"github.com/justestif/moodtunes/internal/sentiment"
)

// Classifier sources.
const (
	SourceLexicon  = "lexicon"
	SourceAnalyzer = "analyzer"
	SourceOpenAI   = "openai"
)

// Analysis is the classification of one message.
type Analysis struct {
	Score   float64       // Sentiment compound in [-1, 1]
	Hits    int           // Scorer words that contributed to Score
	Mood    mood.Category
	Emotion mood.Emotion // EmotionNone when nothing specific was detected
	Toxic   bool
	Genres  []string // Genres suggested by the classifier, if any
	Source  string
}

// Conversation is what a classifier knows about the session around a message.
type Conversation struct {
	History []string // Earlier user messages, oldest first
	Genres  []string // Listener's preferred genres, when already known
}

// Classifier analyzes a message.
type Classifier interface {
	Classify(ctx context.Context, text string, conv Conversation) (Analysis, error)
}

// toxicTerms are rejected outright.
var toxicTerms = map[string]bool{
	"hate":   true,
	"kill":   true,
	"hurt":   true,
	"stupid": true,
	"idiot":  true,
	"damn":   true,
	"fuck":   true,
	"shit":   true,
}

// IsToxic reports whether text contains a toxic term as a whole word.
func IsToxic(text string) bool {
	return toxicTokens(sentiment.Tokens(text))
}

func toxicTokens(tokens []string) bool {
	for _, tok := range tokens {
		if toxicTerms[tok] {
			return true
		}
	}
	return false
}

// ============================================================================
// Local Classifier
// ============================================================================

// Local classifies with a sentiment scorer and keyword rules. It needs no
// network access and never fails.
type Local struct {
	scorer sentiment.Scorer
}

// NewLocal creates a Local classifier. A nil scorer uses the lexicon scorer.
func NewLocal(scorer sentiment.Scorer) *Local {
	if scorer == nil {
		scorer = sentiment.NewLexiconScorer()
	}
	return &Local{scorer: scorer}
}

// Classify implements Classifier. The conversation is not used.
func (l *Local) Classify(_ context.Context, text string, _ Conversation) (Analysis, error) {
	return l.analyze(text), nil
}

func (l *Local) analyze(text string) Analysis {
	score := l.scorer.Score(text)
	tokens := sentiment.Tokens(text)
	return Analysis{
		Score:   score.Compound,
		Hits:    len(score.Hits),
		Mood:    mood.Classify(score.Compound),
		Emotion: mood.Refine(tokens),
		Toxic:   toxicTokens(tokens),
		Source:  SourceLexicon,
	}
}

// refine overlays a remote verdict on the local analysis. The local mood
// stands when the scorer found sentiment words; otherwise the remote mood,
// if any, is used. A remote emotion replaces the local one only when the
// local keywords found none. Toxicity from either side rejects the message.
func refine(local Analysis, remote verdict, source string) Analysis {
	out := local
	out.Source = source
	if local.Hits == 0 && remote.hasMood {
		out.Mood = remote.mood
	}
	if local.Emotion == mood.EmotionNone {
		out.Emotion = remote.emotion
	}
	out.Toxic = local.Toxic || remote.toxic
	out.Genres = remote.genres
	return out
}

// verdict is a remote classifier's answer in local terms.
type verdict struct {
	mood    mood.Category
	hasMood bool
	emotion mood.Emotion
	toxic   bool
	genres  []string
}

var _ Classifier = (*Local)(nil)
