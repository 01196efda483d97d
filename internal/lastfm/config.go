// Package lastfm looks up artist tags on Last.fm. The tags back up Spotify
// artist genres when matching tracks against mood genres.
package lastfm

import (
	"errors"
	"strings"
	"time"
)

// DefaultTimeout bounds one HTTP request to Last.fm.
const DefaultTimeout = 10 * time.Second

// ErrMissingAPIKey is returned when no Last.fm API key is configured.
var ErrMissingAPIKey = errors.New("missing Last.fm API key")

// Config holds Last.fm API configuration.
type Config struct {
	APIKey  string
	Timeout time.Duration
}

// NewConfig returns a Config for apiKey, or ErrMissingAPIKey if it is blank.
func NewConfig(apiKey string) (*Config, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	return &Config{APIKey: apiKey, Timeout: DefaultTimeout}, nil
}
