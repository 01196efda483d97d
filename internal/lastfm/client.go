package lastfm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"
)

const (
	apiRoot   = "https://ws.audioscrobbler.com/2.0/"
	userAgent = "moodtunes/1.0"
)

// Last.fm error codes.
const (
	codeInvalidAPIKey = 10
	codeRateLimited   = 29
)

var (
	// ErrRateLimited is returned when Last.fm still rate limits after every retry.
	ErrRateLimited = errors.New("last.fm rate limit exceeded")

	// ErrInvalidAPIKey is returned when Last.fm rejects the API key.
	ErrInvalidAPIKey = errors.New("invalid last.fm API key")
)

// Client fetches artist tags from Last.fm. Answers are memoised per
// lowercased artist name and concurrent lookups of one artist share a call.
type Client struct {
	http    *resty.Client
	backoff []time.Duration

	group singleflight.Group
	mu    sync.RWMutex
	memo  map[string][]Tag
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API root.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.http.SetBaseURL(u)
	}
}

// WithBackoff sets the waits between retries of a rate-limited call.
func WithBackoff(delays ...time.Duration) ClientOption {
	return func(c *Client) {
		c.backoff = delays
	}
}

// NewClient creates a Last.fm client.
func NewClient(cfg *Config, opts ...ClientOption) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		http: resty.New().
			SetBaseURL(apiRoot).
			SetTimeout(timeout).
			SetHeader("User-Agent", userAgent).
			SetQueryParams(map[string]string{
				"api_key": cfg.APIKey,
				"format":  "json",
			}),
		backoff: []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
		memo:    make(map[string][]Tag),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetArtistTags returns the top tags of artist, never nil on success.
func (c *Client) GetArtistTags(ctx context.Context, artist string) ([]Tag, error) {
	key := strings.ToLower(strings.TrimSpace(artist))

	c.mu.RLock()
	tags, ok := c.memo[key]
	c.mu.RUnlock()
	if ok {
		return tags, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		tags, err := c.topTags(ctx, artist)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.memo[key] = tags
		c.mu.Unlock()
		return tags, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching tags for %q: %w", artist, err)
	}
	return v.([]Tag), nil
}

func (c *Client) topTags(ctx context.Context, artist string) ([]Tag, error) {
	body, err := c.call(ctx, map[string]string{
		"method":      "artist.getTopTags",
		"artist":      artist,
		"autocorrect": "1",
	})
	if err != nil {
		return nil, err
	}

	var env topTagsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decoding top tags: %w", err)
	}
	if env.TopTags.Tags == nil {
		return []Tag{}, nil
	}
	return env.TopTags.Tags, nil
}

// call performs one API method, waiting out rate limiting per c.backoff.
func (c *Client) call(ctx context.Context, params map[string]string) ([]byte, error) {
	var err error
	for attempt := 0; ; attempt++ {
		var body []byte
		body, err = c.get(ctx, params)
		if !errors.Is(err, ErrRateLimited) || attempt >= len(c.backoff) {
			return body, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.backoff[attempt]):
		}
	}
}

func (c *Client) get(ctx context.Context, params map[string]string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get("/")
	if err != nil {
		return nil, fmt.Errorf("requesting last.fm: %w", err)
	}
	body := resp.Body()

	var f failure
	if json.Unmarshal(body, &f) == nil && f.Code != 0 {
		switch f.Code {
		case codeRateLimited:
			return nil, ErrRateLimited
		case codeInvalidAPIKey:
			return nil, ErrInvalidAPIKey
		default:
			return nil, fmt.Errorf("last.fm error %d: %s", f.Code, f.Message)
		}
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return nil, fmt.Errorf("last.fm status %d", resp.StatusCode())
	}
	return body, nil
}
