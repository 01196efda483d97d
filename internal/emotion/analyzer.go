package emotion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/justestif/moodtunes/internal/mood"
)

// DefaultAnalyzerTimeout bounds one analyzer request.
const DefaultAnalyzerTimeout = 5 * time.Second

// ErrAnalyzerStatus is returned when the analyzer answers with a non-2xx status.
var ErrAnalyzerStatus = errors.New("analyzer returned error status")

type analyzeRequest struct {
	Text       string   `json:"text"`
	Context    []string `json:"context"`
	UserGenres []string `json:"userGenres"`
}

type analyzeResponse struct {
	DominantEmotion   string   `json:"dominantEmotion"`
	Confidence        float64  `json:"confidence"`
	IsToxic           bool     `json:"isToxic"`
	RecommendedGenres []string `json:"recommendedGenres"`
}

// analyzerEmotions maps analyzer emotion labels to a mood and emotion.
var analyzerEmotions = map[string]struct {
	mood    mood.Category
	emotion mood.Emotion
}{
	"happy":     {mood.Happy, mood.EmotionNone},
	"excited":   {mood.VeryHappy, mood.Energetic},
	"relaxed":   {mood.Positive, mood.Relaxed},
	"neutral":   {mood.Neutral, mood.EmotionNone},
	"nostalgic": {mood.Negative, mood.Melancholy},
	"sad":       {mood.Sad, mood.EmotionNone},
	"angry":     {mood.Negative, mood.Angry},
}

// Analyzer classifies through a remote emotion analysis service exposing
// POST /analyze. The local analysis is computed first and refined with the
// service's answer.
type Analyzer struct {
	client *resty.Client
	local  *Local
	logger *zap.Logger
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithAnalyzerTimeout sets the request timeout.
func WithAnalyzerTimeout(d time.Duration) AnalyzerOption {
	return func(a *Analyzer) {
		if d > 0 {
			a.client.SetTimeout(d)
		}
	}
}

// WithAnalyzerLogger sets the logger.
func WithAnalyzerLogger(logger *zap.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAnalyzer creates an Analyzer for the service at baseURL.
func NewAnalyzer(baseURL string, local *Local, opts ...AnalyzerOption) *Analyzer {
	if local == nil {
		local = NewLocal(nil)
	}
	a := &Analyzer{
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(DefaultAnalyzerTimeout).
			SetHeader("Accept", "application/json"),
		local:  local,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Classify implements Classifier.
func (a *Analyzer) Classify(ctx context.Context, text string, conv Conversation) (Analysis, error) {
	local := a.local.analyze(text)

	history, genres := conv.History, conv.Genres
	if history == nil {
		history = []string{}
	}
	if genres == nil {
		genres = []string{}
	}
	var result analyzeResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(analyzeRequest{Text: text, Context: history, UserGenres: genres}).
		SetResult(&result).
		Post("/analyze")
	if err != nil {
		return Analysis{}, fmt.Errorf("calling analyzer: %w", err)
	}
	if resp.IsError() {
		return Analysis{}, fmt.Errorf("%w: %d", ErrAnalyzerStatus, resp.StatusCode())
	}

	v := verdict{toxic: result.IsToxic, genres: result.RecommendedGenres}
	if m, ok := analyzerEmotions[strings.ToLower(result.DominantEmotion)]; ok {
		v.mood, v.hasMood, v.emotion = m.mood, true, m.emotion
	} else {
		a.logger.Debug("unknown analyzer emotion", zap.String("emotion", result.DominantEmotion))
	}

	return refine(local, v, SourceAnalyzer), nil
}

var _ Classifier = (*Analyzer)(nil)
