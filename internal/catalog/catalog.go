// Package catalog defines the music catalog contract used by the recommender
// and the error taxonomy shared by all catalog implementations.
package catalog

import (
	"context"
	"errors"
)

// Sentinel errors returned by Catalog implementations.
var (
	// ErrUnauthorized is returned when the access token is missing, expired or revoked.
	ErrUnauthorized = errors.New("catalog: unauthorized")

	// ErrRateLimited is returned when the catalog throttles requests.
	ErrRateLimited = errors.New("catalog: rate limited")

	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("catalog: not found")

	// ErrUnavailable is returned for network failures, timeouts and 5xx responses.
	ErrUnavailable = errors.New("catalog: unavailable")
)

// TimeWindow selects the period for listener top-item queries.
type TimeWindow string

const (
	ShortTerm  TimeWindow = "short_term"
	MediumTerm TimeWindow = "medium_term"
	LongTerm   TimeWindow = "long_term"
)

// Track is a playable catalog item. Identity is ID.
type Track struct {
	ID         string   `json:"id"`
	Title      string   `json:"name"`
	Artist     string   `json:"artist"`
	ArtworkURL string   `json:"albumArt,omitempty"`
	URI        string   `json:"uri"`
	Genre      string   `json:"genre,omitempty"` // Genre query that produced the track, if any
	Tags       []string `json:"-"`               // Genre tags of the track's artists
}

// Artist is a catalog artist with its genre tags.
type Artist struct {
	ID     string
	Name   string
	Genres []string
}

// Playlist is a catalog playlist summary.
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
}

// User is the listener that owns the access token.
type User struct {
	ID          string
	DisplayName string
}

// Catalog is a music catalog bound to one listener's access token.
type Catalog interface {
	// SearchTracksByGenre returns tracks matching a genre query.
	SearchTracksByGenre(ctx context.Context, genre string, limit int) ([]Track, error)

	// RecentlyPlayed returns the listener's recently played tracks.
	RecentlyPlayed(ctx context.Context, limit int) ([]Track, error)

	// TopArtists returns the listener's most played artists for a window.
	TopArtists(ctx context.Context, limit int, window TimeWindow) ([]Artist, error)

	// ArtistTopTracks returns an artist's most popular tracks.
	ArtistTopTracks(ctx context.Context, artistID string) ([]Track, error)

	// UserPlaylists returns the listener's own and followed playlists.
	UserPlaylists(ctx context.Context, limit int) ([]Playlist, error)

	// PlaylistTracks returns the tracks of a playlist.
	PlaylistTracks(ctx context.Context, playlistID string, limit int) ([]Track, error)

	// Featured returns editorially featured playlists.
	Featured(ctx context.Context, limit int) ([]Playlist, error)

	// NewReleases returns recently released items as track candidates.
	NewReleases(ctx context.Context, limit int) ([]Track, error)

	// CurrentUser returns the listener that owns the token.
	CurrentUser(ctx context.Context) (User, error)

	// CreatePlaylist creates a playlist owned by userID.
	CreatePlaylist(ctx context.Context, userID, name, description string, public bool) (Playlist, error)

	// AddTracks appends track URIs to a playlist.
	AddTracks(ctx context.Context, playlistID string, uris []string) error
}

// IsRetryable reports whether err is transient and worth retrying later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable)
}

// Invoker runs fn with a Catalog bound to one listener's valid credential.
// Implementations may retry fn once after re-authorizing.
type Invoker interface {
	Invoke(ctx context.Context, fn func(context.Context, Catalog) error) error
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, fn func(context.Context, Catalog) error) error

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, fn func(context.Context, Catalog) error) error {
	return f(ctx, fn)
}

// Direct returns an Invoker that calls fn with c as is.
func Direct(c Catalog) Invoker {
	return InvokerFunc(func(ctx context.Context, fn func(context.Context, Catalog) error) error {
		return fn(ctx, c)
	})
}
