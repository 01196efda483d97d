// Package reply composes the conversational text sent back with a playlist.
package reply

import (
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/justestif/moodtunes/internal/mood"
)

// Fixed replies for non-recommendation outcomes.
const (
	// NoTracks is returned when no tier produced any tracks.
	NoTracks = "I'm having trouble finding music right now. Please try again later."

	// Toxic redirects the conversation after abusive input.
	Toxic = "Let's keep the conversation positive. I'm here to help."

	defaultResponse = "I've created a playlist based on what you shared:"
)

var moodResponses = map[mood.Category]string{
	mood.VeryHappy: "You sound really excited! Here's an energetic playlist to match your fantastic mood:",
	mood.Happy:     "Glad to hear you're feeling good! I've created a cheerful playlist for you:",
	mood.Positive:  "Sounds like you're in a nice mood! Here's a pleasant playlist I think you'll enjoy:",
	mood.Neutral:   "Here's a balanced playlist that might suit your current mood:",
	mood.Negative:  "Seems like things could be better. This playlist might help lift your spirits:",
	mood.Sad:       "I'm sorry you're feeling down. Here's a thoughtful playlist that might resonate with you:",
	mood.VerySad:   "I'm here for you during tough times. This playlist has some comforting tracks:",
}

var emotionTexts = map[mood.Emotion]string{
	mood.Energetic:  " I've included some high-energy tracks to keep you moving!",
	mood.Relaxed:    " These tracks should help you unwind and relax.",
	mood.Focus:      " These selections should help you stay focused and productive.",
	mood.Melancholy: " These nostalgic tracks might complement your reflective mood.",
	mood.Angry:      " These powerful tracks might help you process those intense feelings.",
	mood.Romantic:   " I've included some romantic tracks that might suit your mood.",
}

// openers are optional lead-in phrases, grouped by overall feeling.
var openers = map[string][]string{
	"joy": {
		"Your enthusiasm is contagious!",
		"That positive energy is exactly what great music is all about.",
		"I love your upbeat vibe!",
	},
	"sadness": {
		"Music can be such a comfort during tough times.",
		"Sometimes the right song can really help when you're feeling down.",
		"I hope these tracks bring you some peace.",
	},
	"anger": {
		"These tracks might help channel those intense feelings.",
		"Some powerful music that matches your energy.",
		"Sometimes music helps us process our stronger emotions.",
	},
	"relaxed": {
		"That laid-back energy inspired this selection.",
		"Perfect for keeping that chill vibe going.",
		"These tracks should complement your relaxed state.",
	},
	"neutral": {
		"Here's something to add some color to your day.",
		"A mix of tracks that might spark something interesting.",
		"A versatile playlist for whatever direction your mood takes.",
	},
}

// Composer builds reply text from a mood and emotion.
type Composer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Composer.
type Option func(*Composer)

// WithVariety enables a randomly chosen opener drawn from src.
// A fixed seed yields a repeatable sequence of replies.
func WithVariety(src rand.Source) Option {
	return func(c *Composer) {
		if src != nil {
			c.rng = rand.New(src)
		}
	}
}

// New creates a Composer. Without options, replies are fully deterministic.
func New(opts ...Option) *Composer {
	c := &Composer{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose returns the templated reply for c and e.
func (c *Composer) Compose(m mood.Category, e mood.Emotion) string {
	response, ok := moodResponses[m]
	if !ok {
		response = defaultResponse
	}
	response += emotionTexts[e]

	if opener := c.opener(m, e); opener != "" {
		response = opener + " " + response
	}
	return response
}

// ComposeFor is Compose addressed to a listener by name.
func (c *Composer) ComposeFor(name string, m mood.Category, e mood.Emotion) string {
	response := c.Compose(m, e)
	name = strings.TrimSpace(name)
	if name == "" {
		return response
	}
	return "Hey " + name + "! " + response
}

func (c *Composer) opener(m mood.Category, e mood.Emotion) string {
	if c.rng == nil {
		return ""
	}
	pool := openers[openerPool(m, e)]

	c.mu.Lock()
	defer c.mu.Unlock()
	return pool[c.rng.IntN(len(pool))]
}

func openerPool(m mood.Category, e mood.Emotion) string {
	switch e {
	case mood.Angry:
		return "anger"
	case mood.Relaxed:
		return "relaxed"
	}
	switch m {
	case mood.VeryHappy, mood.Happy, mood.Positive:
		return "joy"
	case mood.Negative, mood.Sad, mood.VerySad:
		return "sadness"
	default:
		return "neutral"
	}
}
