// Package spotify implements the music catalog on top of the Spotify Web API.
package spotify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/justestif/moodtunes/internal/catalog"
)

// DefaultMarket is used for market-scoped lookups such as artist top tracks.
const DefaultMarket = "US"

// Artist genre cache defaults.
const (
	GenreCacheTTL  = 24 * time.Hour
	GenreCacheSize = 10000
)

// TagSource supplies genre tags for artists Spotify has no genres for.
type TagSource interface {
	ArtistGenres(ctx context.Context, artists []string) map[string][]string
}

// Provider creates catalog clients bound to a listener's access token.
// Artist genres are cached across clients since they are not user-specific.
type Provider struct {
	baseURL string
	retry   bool
	market  string
	tags    TagSource
	logger  *zap.Logger

	// In-memory cache: key = artist ID
	genres    map[string]genreEntry
	genresMu  sync.RWMutex
	genresTTL time.Duration
	genresMax int
	now       func() time.Time
}

type genreEntry struct {
	genres   []string
	cachedAt time.Time
}

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL points clients at a different API root (used in tests).
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// WithRetry makes clients wait and retry when rate limited.
func WithRetry(retry bool) Option {
	return func(p *Provider) {
		p.retry = retry
	}
}

// WithMarket sets the market used for artist top tracks.
func WithMarket(market string) Option {
	return func(p *Provider) {
		if market != "" {
			p.market = market
		}
	}
}

// WithTagSource sets a fallback source of artist genre tags.
func WithTagSource(src TagSource) Option {
	return func(p *Provider) {
		p.tags = src
	}
}

// WithGenreCache bounds the artist genre cache. Non-positive values keep
// the defaults.
func WithGenreCache(ttl time.Duration, size int) Option {
	return func(p *Provider) {
		if ttl > 0 {
			p.genresTTL = ttl
		}
		if size > 0 {
			p.genresMax = size
		}
	}
}

// WithClock sets the time source for cache expiry (used in tests).
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProvider creates a Provider.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		market:    DefaultMarket,
		logger:    zap.NewNop(),
		genres:    make(map[string]genreEntry),
		genresTTL: GenreCacheTTL,
		genresMax: GenreCacheSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Catalog returns a catalog client authorized with accessToken.
func (p *Provider) Catalog(accessToken string) catalog.Catalog {
	return p.client(accessToken)
}

func (p *Provider) client(accessToken string) *Client {
	httpClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	opts := []spotify.ClientOption{spotify.WithRetry(p.retry)}
	if p.baseURL != "" {
		opts = append(opts, spotify.WithBaseURL(p.baseURL))
	}
	return &Client{api: spotify.New(httpClient, opts...), provider: p}
}

// Client wraps the Spotify API client for one access token.
type Client struct {
	api      *spotify.Client
	provider *Provider
}

var _ catalog.Catalog = (*Client)(nil)

// CurrentUser implements catalog.Catalog.
func (c *Client) CurrentUser(ctx context.Context) (catalog.User, error) {
	user, err := c.api.CurrentUser(ctx)
	if err != nil {
		return catalog.User{}, fmt.Errorf("getting current user: %w", mapError(err))
	}
	return catalog.User{ID: user.ID, DisplayName: user.DisplayName}, nil
}
