// Package tags fetches Last.fm artist tags concurrently and turns them into
// genre labels for artists the catalog has no genres for.
package tags

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/justestif/moodtunes/internal/lastfm"
)

// Default concurrency for batch processing.
const DefaultConcurrency = 5

// DefaultMaxTags is how many of an artist's top tags become genres.
const DefaultMaxTags = 5

// ArtistTags holds the tags fetched for an artist.
type ArtistTags struct {
	Artist string
	Tags   []lastfm.Tag
	Error  error // Non-nil if fetching failed
}

// TagFetcher abstracts the Last.fm client for testing.
type TagFetcher interface {
	GetArtistTags(ctx context.Context, artist string) ([]lastfm.Tag, error)
}

// Service fetches artist tags with a bounded worker pool.
type Service struct {
	fetcher     TagFetcher
	concurrency int
	maxTags     int
	logger      *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithConcurrency sets the number of concurrent tag fetch operations.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithMaxTags caps the number of genres returned per artist.
func WithMaxTags(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxTags = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a new tag service.
func NewService(fetcher TagFetcher, opts ...Option) *Service {
	s := &Service{
		fetcher:     fetcher,
		concurrency: DefaultConcurrency,
		maxTags:     DefaultMaxTags,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchArtistTags fetches tags for multiple artists concurrently.
// Results are returned in the same order as input artists.
// Individual fetch errors are captured in ArtistTags.Error rather than failing the batch.
func (s *Service) FetchArtistTags(ctx context.Context, artists []string) ([]ArtistTags, error) {
	if len(artists) == 0 {
		return []ArtistTags{}, nil
	}

	results := make([]ArtistTags, len(artists))

	type workItem struct {
		index  int
		artist string
	}
	workCh := make(chan workItem, len(artists))
	for i, a := range artists {
		workCh <- workItem{index: i, artist: a}
	}
	close(workCh)

	var wg sync.WaitGroup
	for i := 0; i < min(s.concurrency, len(artists)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for work := range workCh {
				if err := ctx.Err(); err != nil {
					results[work.index] = ArtistTags{Artist: work.artist, Tags: []lastfm.Tag{}, Error: err}
					continue
				}

				tags, err := s.fetcher.GetArtistTags(ctx, work.artist)
				if err != nil {
					tags = []lastfm.Tag{}
				}
				results[work.index] = ArtistTags{Artist: work.artist, Tags: tags, Error: err}
			}
		}()
	}

	wg.Wait()

	if ctx.Err() != nil {
		return results, ctx.Err()
	}
	return results, nil
}

// ArtistGenres returns up to maxTags lowercased tag names per artist.
// Artists whose lookup failed or returned no tags are omitted.
func (s *Service) ArtistGenres(ctx context.Context, artists []string) map[string][]string {
	results, err := s.FetchArtistTags(ctx, artists)
	if err != nil {
		s.logger.Debug("artist tag batch interrupted", zap.Error(err))
	}

	genres := make(map[string][]string, len(results))
	for _, r := range results {
		if r.Error != nil {
			s.logger.Debug("artist tag lookup failed",
				zap.String("artist", r.Artist),
				zap.Error(r.Error))
			continue
		}
		if names := topTagNames(r.Tags, s.maxTags); len(names) > 0 {
			genres[r.Artist] = names
		}
	}
	return genres
}

// topTagNames returns the first n distinct, lowercased tag names.
func topTagNames(tags []lastfm.Tag, n int) []string {
	seen := make(map[string]bool)
	var names []string
	for _, t := range tags {
		name := strings.ToLower(strings.TrimSpace(t.Name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
		if len(names) == n {
			break
		}
	}
	return names
}
