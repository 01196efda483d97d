package emotion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/justestif/moodtunes/internal/mood"
)

// DefaultChatModel is used when no model is configured.
const DefaultChatModel = openai.GPT4oMini

// ErrEmptyCompletion is returned when the model answers with no choices.
var ErrEmptyCompletion = errors.New("empty chat completion")

// ChatCompleter is the part of the OpenAI client used by OpenAI.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type openAIResponse struct {
	Mood    string   `json:"mood"`
	Emotion string   `json:"emotion"`
	Toxic   bool     `json:"toxic"`
	Genres  []string `json:"genres"`
}

// OpenAI classifies with a chat model in JSON mode. The local analysis is
// computed first and refined with the model's answer.
type OpenAI struct {
	client      ChatCompleter
	local       *Local
	model       string
	maxTokens   int
	temperature float32
	logger      *zap.Logger
}

// OpenAIOption configures an OpenAI classifier.
type OpenAIOption func(*OpenAI)

// WithChatModel sets the chat model.
func WithChatModel(model string) OpenAIOption {
	return func(o *OpenAI) {
		if model != "" {
			o.model = model
		}
	}
}

// WithMaxTokens sets the completion token limit.
func WithMaxTokens(n int) OpenAIOption {
	return func(o *OpenAI) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) OpenAIOption {
	return func(o *OpenAI) {
		o.temperature = float32(t)
	}
}

// WithOpenAILogger sets the logger.
func WithOpenAILogger(logger *zap.Logger) OpenAIOption {
	return func(o *OpenAI) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOpenAI creates an OpenAI classifier.
func NewOpenAI(client ChatCompleter, local *Local, opts ...OpenAIOption) *OpenAI {
	if local == nil {
		local = NewLocal(nil)
	}
	o := &OpenAI{
		client:    client,
		local:     local,
		model:     DefaultChatModel,
		maxTokens: 150,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Classify implements Classifier.
func (o *OpenAI) Classify(ctx context.Context, text string, conv Conversation) (Analysis, error) {
	local := o.local.analyze(text)

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(text, conv)},
		},
		MaxTokens:      o.maxTokens,
		Temperature:    o.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return Analysis{}, fmt.Errorf("requesting chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Analysis{}, ErrEmptyCompletion
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	var parsed openAIResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		o.logger.Warn("failed to parse chat completion",
			zap.Error(err),
			zap.String("response", content))
		return Analysis{}, fmt.Errorf("parsing chat completion: %w", err)
	}

	v := verdict{toxic: parsed.Toxic, genres: cleanGenres(parsed.Genres)}
	v.mood, v.hasMood = mood.ParseCategory(parsed.Mood)
	v.emotion, _ = mood.ParseEmotion(parsed.Emotion)

	return refine(local, v, SourceOpenAI), nil
}

func systemPrompt() string {
	moods := make([]string, 0, 7)
	for _, c := range mood.Categories() {
		moods = append(moods, c.String())
	}
	emotions := make([]string, 0, 6)
	for _, e := range mood.Emotions() {
		emotions = append(emotions, e.String())
	}
	return fmt.Sprintf(`You classify chat messages for a music recommender.
Return a JSON object with this structure:
{
    "mood": one of [%s],
    "emotion": one of [%s] or "",
    "toxic": true if the message is abusive,
    "genres": up to 3 lowercase music genres that fit the message
}`, strings.Join(moods, ", "), strings.Join(emotions, ", "))
}

func userPrompt(text string, conv Conversation) string {
	var b strings.Builder
	if len(conv.Genres) > 0 {
		fmt.Fprintf(&b, "Listener genres: %s\n\n", strings.Join(conv.Genres, ", "))
	}
	if len(conv.History) > 0 {
		fmt.Fprintf(&b, "Earlier messages:\n- %s\n\n", strings.Join(conv.History, "\n- "))
	}
	b.WriteString("Message: " + text)
	return b.String()
}

func cleanGenres(in []string) []string {
	var out []string
	for _, g := range in {
		g = strings.ToLower(strings.TrimSpace(g))
		if g != "" {
			out = append(out, g)
		}
	}
	return out
}

var _ Classifier = (*OpenAI)(nil)
