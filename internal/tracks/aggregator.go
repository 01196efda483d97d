// Package tracks assembles a recommended track list from several catalog
// sources, falling back to broader sources when targeted ones come up short.
package tracks

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/justestif/moodtunes/internal/catalog"
	"github.com/justestif/moodtunes/internal/session"
)

// Defaults for Config.
const (
	Target      = 10              // Tracks returned at most
	Minimum     = 5               // Fallback tiers run while fewer unique tracks are collected
	PerGenre    = 5               // Tracks requested per genre search
	CallTimeout = 8 * time.Second // Deadline for each upstream call
	RetryDelay  = 500 * time.Millisecond
)

// Tier names, in the order tiers are tried.
const (
	TierSearch      = "search"
	TierRecent      = "recent"
	TierTopArtists  = "top_artists"
	TierPlaylists   = "playlists"
	TierRecentAny   = "recent_any"
	TierFeatured    = "featured"
	TierNewReleases = "new_releases"
)

// Config holds aggregation limits.
type Config struct {
	Target      int
	Minimum     int
	PerGenre    int
	CallTimeout time.Duration
	RetryDelay  time.Duration // Wait before the single retry of a throttled or unavailable call

	RecentLimit        int // Recently played tracks fetched
	TopArtistLimit     int // Top artists fetched when the listener has none cached
	MaxArtists         int // Matching artists whose top tracks are fetched
	PlaylistLimit      int // Listener playlists scanned
	MaxPlaylists       int // Matching playlists whose tracks are fetched
	PlaylistTrackLimit int // Tracks fetched per playlist
	FeaturedLimit      int // Featured playlists fetched
	NewReleaseLimit    int // New releases fetched
}

// DefaultConfig returns the recommended default configuration.
func DefaultConfig() Config {
	return Config{
		Target:             Target,
		Minimum:            Minimum,
		PerGenre:           PerGenre,
		CallTimeout:        CallTimeout,
		RetryDelay:         RetryDelay,
		RecentLimit:        50,
		TopArtistLimit:     20,
		MaxArtists:         5,
		PlaylistLimit:      20,
		MaxPlaylists:       3,
		PlaylistTrackLimit: 50,
		FeaturedLimit:      5,
		NewReleaseLimit:    20,
	}
}

// Listener enables the personalized tiers.
type Listener struct {
	Artists []catalog.Artist // Top artists, if already known
}

// Result is an aggregated track list.
type Result struct {
	Tracks []catalog.Track // Unique by ID, at most Config.Target
	Tiers  []string        // Tiers that contributed tracks, in order
}

// Empty reports whether no tracks were found.
func (r Result) Empty() bool {
	return len(r.Tracks) == 0
}

// Aggregator builds track lists. It is safe for concurrent use.
type Aggregator struct {
	cfg    Config
	logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithConfig sets the aggregation limits. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(a *Aggregator) {
		a.cfg = mergeConfig(a.cfg, cfg)
	}
}

// WithShuffle shuffles each result using src.
func WithShuffle(src rand.Source) Option {
	return func(a *Aggregator) {
		if src != nil {
			a.rng = rand.New(src)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an Aggregator.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		cfg:    DefaultConfig(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate collects tracks for genres. Targeted genre search always runs;
// each later tier runs only while fewer than Minimum unique tracks have been
// collected. Personalized tiers need a non-nil listener. Tier failures are
// logged and skipped; an empty Result means no source produced anything.
//
// A call that fails because the session is unusable (ErrSessionNotFound,
// ErrRefreshFailed, or ErrUnauthorized after the invoker's own refresh)
// stops the run, and Aggregate returns that error.
func (a *Aggregator) Aggregate(ctx context.Context, sessionID string, inv catalog.Invoker, genres []string, listener *Listener) (Result, error) {
	st := &run{
		agg:       a,
		inv:       inv,
		sessionID: sessionID,
		genres:    genres,
		seen:      make(map[string]bool),
	}

	st.search(ctx)

	if listener != nil && st.short() {
		st.personalized(ctx, listener)
	}

	if listener != nil && st.short() {
		st.recentAny(ctx)
	}
	if st.short() {
		st.featured(ctx)
	}
	if st.short() {
		st.newReleases(ctx)
	}

	if err := st.aborted(); err != nil {
		a.logger.Info("track aggregation stopped",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return Result{}, err
	}

	out := st.tracks
	if len(out) > a.cfg.Target {
		out = out[:a.cfg.Target]
	}
	a.shuffle(out)

	a.logger.Debug("aggregated tracks",
		zap.String("session_id", sessionID),
		zap.Strings("genres", genres),
		zap.Int("count", len(out)),
		zap.Strings("tiers", st.tiers))

	return Result{Tracks: out, Tiers: st.tiers}, nil
}

func (a *Aggregator) shuffle(ts []catalog.Track) {
	if a.rng == nil {
		return
	}
	a.mu.Lock()
	a.rng.Shuffle(len(ts), func(i, j int) { ts[i], ts[j] = ts[j], ts[i] })
	a.mu.Unlock()
}

// run is the state of one Aggregate call.
type run struct {
	agg       *Aggregator
	inv       catalog.Invoker
	sessionID string
	genres    []string

	seen   map[string]bool
	tracks []catalog.Track
	tiers  []string

	mu  sync.Mutex
	err error // First session failure; no calls are made once set
}

func (r *run) short() bool {
	return r.aborted() == nil && len(r.tracks) < r.agg.cfg.Minimum
}

func (r *run) aborted() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *run) abort(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

// sessionFailure reports whether err means no further call can succeed.
func sessionFailure(err error) bool {
	return errors.Is(err, session.ErrSessionNotFound) ||
		errors.Is(err, session.ErrRefreshFailed) ||
		errors.Is(err, catalog.ErrUnauthorized)
}

// add appends tracks not already collected and returns how many were new.
func (r *run) add(tier string, ts []catalog.Track) int {
	added := 0
	for _, t := range ts {
		if t.ID == "" || r.seen[t.ID] {
			continue
		}
		r.seen[t.ID] = true
		r.tracks = append(r.tracks, t)
		added++
	}
	if added > 0 && (len(r.tiers) == 0 || r.tiers[len(r.tiers)-1] != tier) {
		r.tiers = append(r.tiers, tier)
	}
	return added
}

// call runs fn through the invoker under the per-call deadline. A throttled
// or unavailable call is retried once after RetryDelay.
func (r *run) call(ctx context.Context, fn func(context.Context, catalog.Catalog) error) error {
	if err := r.aborted(); err != nil {
		return err
	}

	err := r.invoke(ctx, fn)
	if catalog.IsRetryable(err) {
		select {
		case <-ctx.Done():
			return err
		case <-time.After(r.agg.cfg.RetryDelay):
		}
		err = r.invoke(ctx, fn)
	}
	if sessionFailure(err) {
		r.abort(err)
	}
	return err
}

func (r *run) invoke(ctx context.Context, fn func(context.Context, catalog.Catalog) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.agg.cfg.CallTimeout)
	defer cancel()
	return r.inv.Invoke(ctx, fn)
}

func (r *run) fail(tier, genre string, err error) {
	if sessionFailure(err) {
		return
	}
	r.agg.logger.Warn("track tier failed",
		zap.String("session_id", r.sessionID),
		zap.String("tier", tier),
		zap.String("genre", genre),
		zap.Error(err))
}

// ============================================================================
// Targeted search
// ============================================================================

func (r *run) search(ctx context.Context) {
	for _, genre := range r.genres {
		if len(r.tracks) >= r.agg.cfg.Target || r.aborted() != nil {
			return
		}
		var found []catalog.Track
		err := r.call(ctx, func(ctx context.Context, c catalog.Catalog) error {
			var err error
			found, err = c.SearchTracksByGenre(ctx, genre, r.agg.cfg.PerGenre)
			return err
		})
		if err != nil {
			r.fail(TierSearch, genre, err)
			continue
		}
		for i := range found {
			found[i].Genre = genre
		}
		r.add(TierSearch, found)
	}
}

// ============================================================================
// Personalized tiers
// ============================================================================

// personalized runs the listener tiers concurrently and merges their
// results in fixed order: recent, top artists, playlists.
func (r *run) personalized(ctx context.Context, listener *Listener) {
	var recent, top, playlists []catalog.Track

	var g errgroup.Group
	g.Go(func() error {
		recent = r.recentMatching(ctx)
		return nil
	})
	g.Go(func() error {
		top = r.topArtistTracks(ctx, listener.Artists)
		return nil
	})
	g.Go(func() error {
		playlists = r.playlistTracks(ctx)
		return nil
	})
	_ = g.Wait()

	r.add(TierRecent, recent)
	r.add(TierTopArtists, top)
	r.add(TierPlaylists, playlists)
}

func (r *run) recentMatching(ctx context.Context) []catalog.Track {
	var recent []catalog.Track
	err := r.call(ctx, func(ctx context.Context, c catalog.Catalog) error {
		var err error
		recent, err = c.RecentlyPlayed(ctx, r.agg.cfg.RecentLimit)
		return err
	})
	if err != nil {
		r.fail(TierRecent, "", err)
		return nil
	}

	var out []catalog.Track
	for _, t := range recent {
		if genre, ok := catalog.MatchedGenre(r.genres, t.Tags); ok {
			t.Genre = genre
			out = append(out, t)
		}
	}
	return out
}

func (r *run) topArtistTracks(ctx context.Context, artists []catalog.Artist) []catalog.Track {
	if artists == nil {
		err := r.call(ctx, func(ctx context.Context, c catalog.Catalog) error {
			var err error
			artists, err = c.TopArtists(ctx, r.agg.cfg.TopArtistLimit, catalog.MediumTerm)
			return err
		})
		if err != nil {
			r.fail(TierTopArtists, "", err)
			return nil
		}
	}

	var out []catalog.Track
	matched := 0
	for _, artist := range artists {
		if matched >= r.agg.cfg.MaxArtists || r.aborted() != nil {
			break
		}
		genre, ok := catalog.MatchedGenre(r.genres, artist.Genres)
		if !ok {
			continue
		}
		matched++

		var top []catalog.Track
		err := r.call(ctx, func(ctx context.Context, c catalog.Catalog) error {
			var err error
			top, err = c.ArtistTopTracks(ctx, artist.ID)
			return err
		})
		if err != nil {
			r.fail(TierTopArtists, genre, fmt.Errorf("artist %s: %w", artist.ID, err))
			continue
		}
		for _, t := range top {
			t.Genre = genre
			out = append(out, t)
		}
	}
	return out
}

func (r *run) playlistTracks(ctx context.Context) []catalog.Track {
	var playlists []catalog.Playlist
	err := r.call(ctx, func(ctx context.Context, c catalog.Catalog) error {
		var err error
		playlists, err = c.UserPlaylists(ctx, r.agg.cfg.PlaylistLimit)
		return err
	})
	if err != nil {
		r.fail(TierPlaylists, "", err)
		return nil
	}

	var out []catalog.Track
	matched := 0
	for _, p := range playlists {
		if matched >= r.agg.cfg.MaxPlaylists || r.aborted() != nil {
			break
		}
		genre, ok := playlistGenre(r.genres, p)
		if !ok {
			continue
		}
		matched++

		tracks, err := r.fetchPlaylist(ctx, p.ID)
		if err != nil {
			r.fail(TierPlaylists, genre, fmt.Errorf("playlist %s: %w", p.ID, err))
			continue
		}
		for _, t := range tracks {
			t.Genre = genre
			out = append(out, t)
		}
	}
	return out
}

// playlistGenre returns the first genre named in the playlist's title or
// description.
func playlistGenre(genres []string, p catalog.Playlist) (string, bool) {
	for _, g := range genres {
		if catalog.MatchText([]string{g}, p.Name) || catalog.MatchText([]string{g}, p.Description) {
			return g, true
		}
	}
	return "", false
}

func (r *run) fetchPlaylist(ctx context.Context, id string) ([]catalog.Track, error) {
	var tracks []catalog.Track
	err := r.call(ctx, func(ctx context.Context, c catalog.Catalog) error {
		var err error
		tracks, err = c.PlaylistTracks(ctx, id, r.agg.cfg.PlaylistTrackLimit)
		return err
	})
	return tracks, err
}

// ============================================================================
// Generic tiers
// ============================================================================

func (r *run) recentAny(ctx context.Context) {
	var recent []catalog.Track
	err := r.call(ctx, func(ctx context.Context, c catalog.Catalog) error {
		var err error
		recent, err = c.RecentlyPlayed(ctx, r.agg.cfg.RecentLimit)
		return err
	})
	if err != nil {
		r.fail(TierRecentAny, "", err)
		return
	}
	r.add(TierRecentAny, recent)
}

func (r *run) featured(ctx context.Context) {
	var playlists []catalog.Playlist
	err := r.call(ctx, func(ctx context.Context, c catalog.Catalog) error {
		var err error
		playlists, err = c.Featured(ctx, r.agg.cfg.FeaturedLimit)
		return err
	})
	if err != nil {
		r.fail(TierFeatured, "", err)
		return
	}

	for _, p := range playlists {
		if !r.short() {
			return
		}
		tracks, err := r.fetchPlaylist(ctx, p.ID)
		if err != nil {
			r.fail(TierFeatured, "", fmt.Errorf("playlist %s: %w", p.ID, err))
			continue
		}
		r.add(TierFeatured, tracks)
	}
}

func (r *run) newReleases(ctx context.Context) {
	var releases []catalog.Track
	err := r.call(ctx, func(ctx context.Context, c catalog.Catalog) error {
		var err error
		releases, err = c.NewReleases(ctx, r.agg.cfg.NewReleaseLimit)
		return err
	})
	if err != nil {
		r.fail(TierNewReleases, "", err)
		return
	}
	r.add(TierNewReleases, releases)
}

func mergeConfig(base, override Config) Config {
	pick := func(dst *int, v int) {
		if v > 0 {
			*dst = v
		}
	}
	pick(&base.Target, override.Target)
	pick(&base.Minimum, override.Minimum)
	pick(&base.PerGenre, override.PerGenre)
	pick(&base.RecentLimit, override.RecentLimit)
	pick(&base.TopArtistLimit, override.TopArtistLimit)
	pick(&base.MaxArtists, override.MaxArtists)
	pick(&base.PlaylistLimit, override.PlaylistLimit)
	pick(&base.MaxPlaylists, override.MaxPlaylists)
	pick(&base.PlaylistTrackLimit, override.PlaylistTrackLimit)
	pick(&base.FeaturedLimit, override.FeaturedLimit)
	pick(&base.NewReleaseLimit, override.NewReleaseLimit)
	if override.CallTimeout > 0 {
		base.CallTimeout = override.CallTimeout
	}
	if override.RetryDelay > 0 {
		base.RetryDelay = override.RetryDelay
	}
	return base
}
