package spotify

import (
	"context"
	"fmt"
	"strings"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/moodtunes/internal/catalog"
)

const maxTracksPerRequest = 100

// UserPlaylists implements catalog.Catalog.
func (c *Client) UserPlaylists(ctx context.Context, limit int) ([]catalog.Playlist, error) {
	page, err := c.api.CurrentUsersPlaylists(ctx, spotify.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("getting user playlists: %w", mapError(err))
	}
	return convertPlaylists(page.Playlists), nil
}

// Featured implements catalog.Catalog.
func (c *Client) Featured(ctx context.Context, limit int) ([]catalog.Playlist, error) {
	_, page, err := c.api.FeaturedPlaylists(ctx, spotify.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("getting featured playlists: %w", mapError(err))
	}
	return convertPlaylists(page.Playlists), nil
}

// PlaylistTracks implements catalog.Catalog. Episodes and local files are skipped.
func (c *Client) PlaylistTracks(ctx context.Context, playlistID string, limit int) ([]catalog.Track, error) {
	page, err := c.api.GetPlaylistItems(ctx, spotify.ID(playlistID), spotify.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("getting tracks for playlist %s: %w", playlistID, mapError(err))
	}

	tracks := make([]catalog.Track, 0, len(page.Items))
	artistIDs := make([][]spotify.ID, 0, len(page.Items))
	for _, item := range page.Items {
		ft := item.Track.Track
		if ft == nil || item.IsLocal || ft.ID == "" {
			continue
		}
		tracks = append(tracks, convertFullTrack(*ft))
		artistIDs = append(artistIDs, simpleArtistIDs(ft.Artists))
	}

	c.tagTracks(ctx, tracks, artistIDs)
	return tracks, nil
}

// CreatePlaylist implements catalog.Catalog.
func (c *Client) CreatePlaylist(ctx context.Context, userID, name, description string, public bool) (catalog.Playlist, error) {
	playlist, err := c.api.CreatePlaylistForUser(ctx, userID, name, description, public, false)
	if err != nil {
		return catalog.Playlist{}, fmt.Errorf("creating playlist: %w", mapError(err))
	}
	return convertPlaylist(playlist.SimplePlaylist), nil
}

// AddTracks implements catalog.Catalog. It accepts track URIs or bare IDs,
// handling batching for large sets. Spotify allows max 100 tracks per request.
func (c *Client) AddTracks(ctx context.Context, playlistID string, uris []string) error {
	if len(uris) == 0 {
		return nil
	}

	ids := make([]spotify.ID, len(uris))
	for i, uri := range uris {
		ids[i] = trackID(uri)
	}

	// Batch in chunks of 100
	for i := 0; i < len(ids); i += maxTracksPerRequest {
		end := min(i+maxTracksPerRequest, len(ids))
		batch := ids[i:end]

		_, err := c.api.AddTracksToPlaylist(ctx, spotify.ID(playlistID), batch...)
		if err != nil {
			return fmt.Errorf("adding tracks (batch %d-%d): %w", i+1, end, mapError(err))
		}
	}

	return nil
}

// trackID extracts the ID from a "spotify:track:<id>" URI.
func trackID(uri string) spotify.ID {
	if i := strings.LastIndex(uri, ":"); i >= 0 {
		return spotify.ID(uri[i+1:])
	}
	return spotify.ID(uri)
}

func convertPlaylists(in []spotify.SimplePlaylist) []catalog.Playlist {
	out := make([]catalog.Playlist, 0, len(in))
	for _, p := range in {
		out = append(out, convertPlaylist(p))
	}
	return out
}

func convertPlaylist(p spotify.SimplePlaylist) catalog.Playlist {
	return catalog.Playlist{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		URL:         p.ExternalURLs["spotify"],
	}
}
