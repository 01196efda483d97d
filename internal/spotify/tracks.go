package spotify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"

	"github.com/justestif/moodtunes/internal/catalog"
)

// maxArtistsPerRequest is the Spotify limit for GET /artists.
const maxArtistsPerRequest = 50

// SearchTracksByGenre implements catalog.Catalog. Returned tracks carry
// the queried genre and their artists' genre tags.
func (c *Client) SearchTracksByGenre(ctx context.Context, genre string, limit int) ([]catalog.Track, error) {
	result, err := c.api.Search(ctx, genreQuery(genre), spotify.SearchTypeTrack, spotify.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("searching genre %q: %w", genre, mapError(err))
	}
	if result.Tracks == nil {
		return nil, nil
	}

	tracks := make([]catalog.Track, 0, len(result.Tracks.Tracks))
	artistIDs := make([][]spotify.ID, 0, len(result.Tracks.Tracks))
	for _, ft := range result.Tracks.Tracks {
		t := convertFullTrack(ft)
		t.Genre = genre
		tracks = append(tracks, t)
		artistIDs = append(artistIDs, simpleArtistIDs(ft.Artists))
	}

	c.tagTracks(ctx, tracks, artistIDs)
	return tracks, nil
}

// RecentlyPlayed implements catalog.Catalog.
func (c *Client) RecentlyPlayed(ctx context.Context, limit int) ([]catalog.Track, error) {
	items, err := c.api.PlayerRecentlyPlayedOpt(ctx, &spotify.RecentlyPlayedOptions{Limit: spotify.Numeric(limit)})
	if err != nil {
		return nil, fmt.Errorf("getting recently played: %w", mapError(err))
	}

	tracks := make([]catalog.Track, 0, len(items))
	artistIDs := make([][]spotify.ID, 0, len(items))
	for _, item := range items {
		tracks = append(tracks, convertSimpleTrack(item.Track))
		artistIDs = append(artistIDs, simpleArtistIDs(item.Track.Artists))
	}

	c.tagTracks(ctx, tracks, artistIDs)
	return tracks, nil
}

// TopArtists implements catalog.Catalog.
func (c *Client) TopArtists(ctx context.Context, limit int, window catalog.TimeWindow) ([]catalog.Artist, error) {
	page, err := c.api.CurrentUsersTopArtists(ctx, spotify.Limit(limit), spotify.Timerange(timeRange(window)))
	if err != nil {
		return nil, fmt.Errorf("getting top artists: %w", mapError(err))
	}

	artists := make([]catalog.Artist, 0, len(page.Artists))
	for _, a := range page.Artists {
		artists = append(artists, catalog.Artist{
			ID:     a.ID.String(),
			Name:   a.Name,
			Genres: a.Genres,
		})
		c.provider.cacheGenres(a.ID.String(), a.Genres)
	}
	return artists, nil
}

// ArtistTopTracks implements catalog.Catalog.
func (c *Client) ArtistTopTracks(ctx context.Context, artistID string) ([]catalog.Track, error) {
	fts, err := c.api.GetArtistsTopTracks(ctx, spotify.ID(artistID), c.provider.market)
	if err != nil {
		return nil, fmt.Errorf("getting top tracks for artist %s: %w", artistID, mapError(err))
	}

	tracks := make([]catalog.Track, 0, len(fts))
	artistIDs := make([][]spotify.ID, 0, len(fts))
	for _, ft := range fts {
		tracks = append(tracks, convertFullTrack(ft))
		artistIDs = append(artistIDs, simpleArtistIDs(ft.Artists))
	}

	c.tagTracks(ctx, tracks, artistIDs)
	return tracks, nil
}

// NewReleases implements catalog.Catalog. Each released album becomes one
// candidate identified by the album ID.
func (c *Client) NewReleases(ctx context.Context, limit int) ([]catalog.Track, error) {
	page, err := c.api.NewReleases(ctx, spotify.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("getting new releases: %w", mapError(err))
	}

	tracks := make([]catalog.Track, 0, len(page.Albums))
	for _, album := range page.Albums {
		tracks = append(tracks, catalog.Track{
			ID:         album.ID.String(),
			Title:      album.Name,
			Artist:     joinArtists(album.Artists),
			ArtworkURL: firstImage(album.Images),
			URI:        string(album.URI),
		})
	}
	return tracks, nil
}

// tagTracks fills Track.Tags with the genres of each track's artists.
// Lookup failures leave tracks untagged.
func (c *Client) tagTracks(ctx context.Context, tracks []catalog.Track, artistIDs [][]spotify.ID) {
	var ids []spotify.ID
	seen := make(map[spotify.ID]bool)
	for _, group := range artistIDs {
		for _, id := range group {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	genres := c.artistGenres(ctx, ids)
	for i := range tracks {
		var tags []string
		for _, id := range artistIDs[i] {
			tags = append(tags, genres[id.String()]...)
		}
		tracks[i].Tags = tags
	}
}

// artistGenres resolves genres for artist IDs, using the provider cache
// and then GET /artists in batches. Artists with no Spotify genres fall
// back to the tag source, keyed by name.
func (c *Client) artistGenres(ctx context.Context, ids []spotify.ID) map[string][]string {
	result := make(map[string][]string, len(ids))
	var missing []spotify.ID
	for _, id := range ids {
		if g, ok := c.provider.cachedGenres(id.String()); ok {
			result[id.String()] = g
			continue
		}
		missing = append(missing, id)
	}

	var untagged []string
	untaggedIDs := make(map[string]string)
	for i := 0; i < len(missing); i += maxArtistsPerRequest {
		end := min(i+maxArtistsPerRequest, len(missing))
		artists, err := c.api.GetArtists(ctx, missing[i:end]...)
		if err != nil {
			c.provider.logger.Debug("artist genre lookup failed", zap.Error(err))
			continue
		}
		for _, a := range artists {
			if a == nil {
				continue
			}
			id := a.ID.String()
			if len(a.Genres) == 0 && c.provider.tags != nil {
				untagged = append(untagged, a.Name)
				untaggedIDs[a.Name] = id
				continue
			}
			result[id] = a.Genres
			c.provider.cacheGenres(id, a.Genres)
		}
	}

	if len(untagged) > 0 {
		fetched := c.provider.tags.ArtistGenres(ctx, untagged)
		for name, id := range untaggedIDs {
			result[id] = fetched[name]
			c.provider.cacheGenres(id, fetched[name])
		}
	}
	return result
}

func (p *Provider) cachedGenres(artistID string) ([]string, bool) {
	p.genresMu.RLock()
	defer p.genresMu.RUnlock()
	e, ok := p.genres[artistID]
	if !ok || p.now().Sub(e.cachedAt) >= p.genresTTL {
		return nil, false
	}
	return e.genres, true
}

func (p *Provider) cacheGenres(artistID string, genres []string) {
	p.genresMu.Lock()
	defer p.genresMu.Unlock()

	now := p.now()
	if _, ok := p.genres[artistID]; !ok && len(p.genres) >= p.genresMax {
		p.evictGenresLocked(now)
	}
	p.genres[artistID] = genreEntry{genres: genres, cachedAt: now}
}

// evictGenresLocked drops expired entries, then the oldest one if the cache
// is still full.
func (p *Provider) evictGenresLocked(now time.Time) {
	var oldest string
	var oldestAt time.Time
	for id, e := range p.genres {
		if now.Sub(e.cachedAt) >= p.genresTTL {
			delete(p.genres, id)
			continue
		}
		if oldest == "" || e.cachedAt.Before(oldestAt) {
			oldest, oldestAt = id, e.cachedAt
		}
	}
	if len(p.genres) >= p.genresMax && oldest != "" {
		delete(p.genres, oldest)
	}
}

// genreQuery builds a search query restricted to genre.
func genreQuery(genre string) string {
	if strings.ContainsAny(genre, " -") {
		return fmt.Sprintf("genre:%q", genre)
	}
	return "genre:" + genre
}

func timeRange(w catalog.TimeWindow) spotify.Range {
	switch w {
	case catalog.ShortTerm:
		return spotify.ShortTermRange
	case catalog.LongTerm:
		return spotify.LongTermRange
	default:
		return spotify.MediumTermRange
	}
}

// convertFullTrack converts a Spotify FullTrack to a catalog track.
func convertFullTrack(ft spotify.FullTrack) catalog.Track {
	return catalog.Track{
		ID:         ft.ID.String(),
		Title:      ft.Name,
		Artist:     joinArtists(ft.Artists),
		ArtworkURL: firstImage(ft.Album.Images),
		URI:        string(ft.URI),
	}
}

// convertSimpleTrack converts a Spotify SimpleTrack to a catalog track.
func convertSimpleTrack(st spotify.SimpleTrack) catalog.Track {
	return catalog.Track{
		ID:     st.ID.String(),
		Title:  st.Name,
		Artist: joinArtists(st.Artists),
		URI:    string(st.URI),
	}
}

func joinArtists(artists []spotify.SimpleArtist) string {
	names := make([]string, len(artists))
	for i, a := range artists {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}

func simpleArtistIDs(artists []spotify.SimpleArtist) []spotify.ID {
	ids := make([]spotify.ID, 0, len(artists))
	for _, a := range artists {
		if a.ID != "" {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

func firstImage(images []spotify.Image) string {
	if len(images) == 0 {
		return ""
	}
	return images[0].URL
}
