package tags

import (
	"context"
	"fmt"
	"time"

	"github.com/justestif/moodtunes/internal/db"
	"github.com/justestif/moodtunes/internal/lastfm"
)

// CacheTTL is how long persisted tags stay fresh.
const CacheTTL = 30 * 24 * time.Hour

// TagStore persists artist tags. *db.ArtistTagRepository implements it.
type TagStore interface {
	Fresh(ctx context.Context, artist string, since time.Time) ([]db.ArtistTag, error)
	Replace(ctx context.Context, artist string, tags []db.ArtistTag) error
}

// CachedTagFetcher serves artist tags from a TagStore, going to the wrapped
// fetcher when the stored tags are missing or older than CacheTTL.
type CachedTagFetcher struct {
	store  TagStore
	client TagFetcher
	now    func() time.Time
}

// NewCachedTagFetcher wraps client with store.
func NewCachedTagFetcher(store TagStore, client TagFetcher) *CachedTagFetcher {
	return &CachedTagFetcher{
		store:  store,
		client: client,
		now:    time.Now,
	}
}

// GetArtistTags implements TagFetcher. A failed write still returns the
// fetched tags along with the error.
func (c *CachedTagFetcher) GetArtistTags(ctx context.Context, artist string) ([]lastfm.Tag, error) {
	now := c.now()

	stored, err := c.store.Fresh(ctx, artist, now.Add(-CacheTTL))
	if err != nil {
		return nil, fmt.Errorf("reading stored tags: %w", err)
	}
	if len(stored) > 0 {
		tags := make([]lastfm.Tag, len(stored))
		for i, t := range stored {
			tags[i] = lastfm.Tag{Name: t.TagName, Count: t.TagCount}
		}
		return tags, nil
	}

	tags, err := c.client.GetArtistTags(ctx, artist)
	if err != nil {
		return nil, err
	}

	rows := make([]db.ArtistTag, len(tags))
	for i, t := range tags {
		rows[i] = db.ArtistTag{Artist: artist, TagName: t.Name, TagCount: t.Count, FetchedAt: now}
	}
	if err := c.store.Replace(ctx, artist, rows); err != nil {
		return tags, fmt.Errorf("storing tags: %w", err)
	}
	return tags, nil
}

var (
	_ TagFetcher = (*CachedTagFetcher)(nil)
	_ TagStore   = (*db.ArtistTagRepository)(nil)
)
