package tags

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/justestif/moodtunes/internal/db"
	"github.com/justestif/moodtunes/internal/lastfm"
)

// memoryTagStore implements TagStore in memory.
type memoryTagStore struct {
	rows     map[string][]db.ArtistTag
	readErr  error
	writeErr error
	writes   int
}

func newMemoryTagStore() *memoryTagStore {
	return &memoryTagStore{rows: make(map[string][]db.ArtistTag)}
}

func (s *memoryTagStore) Fresh(_ context.Context, artist string, since time.Time) ([]db.ArtistTag, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	var fresh []db.ArtistTag
	for _, r := range s.rows[artist] {
		if !r.FetchedAt.Before(since) {
			fresh = append(fresh, r)
		}
	}
	return fresh, nil
}

func (s *memoryTagStore) Replace(_ context.Context, artist string, tags []db.ArtistTag) error {
	s.writes++
	if s.writeErr != nil {
		return s.writeErr
	}
	s.rows[artist] = tags
	return nil
}

func TestCachedTagFetcher(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		stored     []db.ArtistTag
		wantTags   []string
		wantCalls  int32
		wantWrites int
	}{
		{
			name:       "miss goes upstream and stores",
			wantTags:   []string{"shoegaze"},
			wantCalls:  1,
			wantWrites: 1,
		},
		{
			name:     "fresh rows served from store",
			stored:   []db.ArtistTag{{Artist: "Slowdive", TagName: "dream pop", TagCount: 90, FetchedAt: now.Add(-time.Hour)}},
			wantTags: []string{"dream pop"},
		},
		{
			name:       "stale rows refetched",
			stored:     []db.ArtistTag{{Artist: "Slowdive", TagName: "dream pop", TagCount: 90, FetchedAt: now.Add(-CacheTTL - time.Hour)}},
			wantTags:   []string{"shoegaze"},
			wantCalls:  1,
			wantWrites: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryTagStore()
			if tt.stored != nil {
				store.rows["Slowdive"] = tt.stored
			}
			upstream := newMockFetcher()
			upstream.tags["Slowdive"] = []lastfm.Tag{{Name: "shoegaze", Count: 100}}

			c := NewCachedTagFetcher(store, upstream)
			c.now = func() time.Time { return now }

			tags, err := c.GetArtistTags(context.Background(), "Slowdive")
			if err != nil {
				t.Fatalf("GetArtistTags() error = %v", err)
			}
			var names []string
			for _, tag := range tags {
				names = append(names, tag.Name)
			}
			if len(names) != len(tt.wantTags) || names[0] != tt.wantTags[0] {
				t.Errorf("tags = %v, want %v", names, tt.wantTags)
			}
			if n := upstream.callCount.Load(); n != tt.wantCalls {
				t.Errorf("upstream calls = %d, want %d", n, tt.wantCalls)
			}
			if store.writes != tt.wantWrites {
				t.Errorf("store writes = %d, want %d", store.writes, tt.wantWrites)
			}
		})
	}
}

func TestCachedTagFetcher_Errors(t *testing.T) {
	errBoom := errors.New("boom")

	t.Run("read failure", func(t *testing.T) {
		store := newMemoryTagStore()
		store.readErr = errBoom
		c := NewCachedTagFetcher(store, newMockFetcher())

		if _, err := c.GetArtistTags(context.Background(), "Slowdive"); !errors.Is(err, errBoom) {
			t.Errorf("error = %v, want %v", err, errBoom)
		}
	})

	t.Run("upstream failure not stored", func(t *testing.T) {
		store := newMemoryTagStore()
		upstream := newMockFetcher()
		upstream.errors["Slowdive"] = lastfm.ErrRateLimited
		c := NewCachedTagFetcher(store, upstream)

		if _, err := c.GetArtistTags(context.Background(), "Slowdive"); !errors.Is(err, lastfm.ErrRateLimited) {
			t.Errorf("error = %v, want ErrRateLimited", err)
		}
		if store.writes != 0 {
			t.Errorf("store writes = %d, want 0", store.writes)
		}
	})

	t.Run("write failure still returns tags", func(t *testing.T) {
		store := newMemoryTagStore()
		store.writeErr = errBoom
		upstream := newMockFetcher()
		upstream.tags["Slowdive"] = []lastfm.Tag{{Name: "shoegaze"}}
		c := NewCachedTagFetcher(store, upstream)

		tags, err := c.GetArtistTags(context.Background(), "Slowdive")
		if !errors.Is(err, errBoom) {
			t.Errorf("error = %v, want %v", err, errBoom)
		}
		if len(tags) != 1 {
			t.Errorf("tags = %v, want 1 tag", tags)
		}
	})
}
