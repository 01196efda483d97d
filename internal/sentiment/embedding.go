package sentiment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Embedder abstracts the OpenAI embeddings endpoint for testing.
type Embedder interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// anchor is a reference sentence with a known polarity.
type anchor struct {
	text    string
	valence float64
	vector  []float32
}

// defaultAnchors span the polarity scale from despair to elation.
var defaultAnchors = []anchor{
	{text: "I am overjoyed, ecstatic and celebrating the best day of my life", valence: 0.95},
	{text: "I feel happy and cheerful today", valence: 0.6},
	{text: "Things are pretty good, I feel fine", valence: 0.3},
	{text: "The table is blue and the door is closed", valence: 0},
	{text: "I'm a bit annoyed and things could be better", valence: -0.3},
	{text: "I feel sad, lonely and down", valence: -0.6},
	{text: "I am devastated, heartbroken and hopeless", valence: -0.95},
}

// ErrNoEmbedding is returned when the embeddings endpoint returns no vectors.
var ErrNoEmbedding = errors.New("no embedding returned")

// EmbeddingScorer scores text by its similarity to reference sentences
// of known polarity. Failures on a single call fall back to another Scorer.
type EmbeddingScorer struct {
	client   Embedder
	model    openai.EmbeddingModel
	anchors  []anchor
	fallback Scorer
	timeout  time.Duration
	logger   *zap.Logger
}

// EmbeddingOption configures an EmbeddingScorer.
type EmbeddingOption func(*EmbeddingScorer)

// WithModel sets the embedding model.
func WithModel(model string) EmbeddingOption {
	return func(s *EmbeddingScorer) {
		if model != "" {
			s.model = openai.EmbeddingModel(model)
		}
	}
}

// WithTimeout bounds each embeddings request.
func WithTimeout(d time.Duration) EmbeddingOption {
	return func(s *EmbeddingScorer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger used to report fallbacks.
func WithLogger(logger *zap.Logger) EmbeddingOption {
	return func(s *EmbeddingScorer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// LoadEmbeddingScorer embeds the reference sentences once and returns a
// ready scorer. If loading fails, the fallback scorer is returned instead.
func LoadEmbeddingScorer(ctx context.Context, client Embedder, fallback Scorer, opts ...EmbeddingOption) Scorer {
	s, err := NewEmbeddingScorer(ctx, client, fallback, opts...)
	if err != nil {
		if s != nil {
			s.logger.Warn("embedding scorer unavailable, using lexicon", zap.Error(err))
		}
		return fallback
	}
	return s
}

// NewEmbeddingScorer embeds the reference sentences and returns the scorer.
func NewEmbeddingScorer(ctx context.Context, client Embedder, fallback Scorer, opts ...EmbeddingOption) (*EmbeddingScorer, error) {
	s := &EmbeddingScorer{
		client:   client,
		model:    openai.SmallEmbedding3,
		fallback: fallback,
		timeout:  5 * time.Second,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fallback == nil {
		s.fallback = NewLexiconScorer()
	}
	if client == nil {
		return s, errors.New("nil embeddings client")
	}

	texts := make([]string, len(defaultAnchors))
	for i, a := range defaultAnchors {
		texts[i] = a.text
	}
	vectors, err := s.embed(ctx, texts)
	if err != nil {
		return s, fmt.Errorf("embedding reference sentences: %w", err)
	}

	s.anchors = make([]anchor, len(defaultAnchors))
	for i, a := range defaultAnchors {
		a.vector = vectors[i]
		s.anchors[i] = a
	}
	return s, nil
}

var _ Scorer = (*EmbeddingScorer)(nil)

// Score implements Scorer.
func (s *EmbeddingScorer) Score(text string) Score {
	base := s.fallback.Score(text)
	if Normalize(text) == "" {
		return Score{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	vectors, err := s.embed(ctx, []string{text})
	if err != nil {
		s.logger.Warn("embedding request failed, using lexicon score", zap.Error(err))
		return base
	}
	return Score{Compound: s.weigh(vectors[0]), Hits: base.Hits}
}

// weigh blends anchor valences by sharpened cosine similarity.
func (s *EmbeddingScorer) weigh(v []float32) float64 {
	var num, den float64
	for _, a := range s.anchors {
		sim := cosine(v, a.vector)
		if sim <= 0 {
			continue
		}
		w := math.Pow(sim, 4)
		num += w * a.valence
		den += w
	}
	if den == 0 {
		return 0
	}
	return math.Max(-1, math.Min(1, num/den))
}

func (s *EmbeddingScorer) embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: s.model,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, ErrNoEmbedding
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
