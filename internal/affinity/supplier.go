package affinity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/justestif/moodtunes/internal/catalog"
)

const (
	// DefaultArtistLimit is how many top artists are fetched per listener.
	DefaultArtistLimit = 20

	// DefaultCacheTTL is how long a listener profile is reused.
	DefaultCacheTTL = 15 * time.Minute
)

// Profile describes a listener for personalization.
type Profile struct {
	UserID      string
	DisplayName string
	Genres      []string         // Dominant genres, strongest first
	Artists     []catalog.Artist // Top artists the genres were derived from
}

type cacheEntry struct {
	profile   Profile
	fetchedAt time.Time
}

// Supplier builds and caches listener profiles per session.
type Supplier struct {
	cfg         ClusterConfig
	artistLimit int
	window      catalog.TimeWindow
	ttl         time.Duration
	now         func() time.Time
	logger      *zap.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// Option configures a Supplier.
type Option func(*Supplier)

// WithClusterConfig sets the clustering parameters.
func WithClusterConfig(cfg ClusterConfig) Option {
	return func(s *Supplier) {
		s.cfg = cfg
	}
}

// WithArtistLimit sets how many top artists are fetched.
func WithArtistLimit(n int) Option {
	return func(s *Supplier) {
		if n > 0 {
			s.artistLimit = n
		}
	}
}

// WithWindow sets the listening period for top artists.
func WithWindow(w catalog.TimeWindow) Option {
	return func(s *Supplier) {
		if w != "" {
			s.window = w
		}
	}
}

// WithCacheTTL sets how long profiles are cached. Zero disables caching.
func WithCacheTTL(d time.Duration) Option {
	return func(s *Supplier) {
		if d >= 0 {
			s.ttl = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Supplier) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Supplier) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSupplier creates a Supplier.
func NewSupplier(opts ...Option) *Supplier {
	s := &Supplier{
		cfg:         DefaultClusterConfig(),
		artistLimit: DefaultArtistLimit,
		window:      catalog.MediumTerm,
		ttl:         DefaultCacheTTL,
		now:         time.Now,
		logger:      zap.NewNop(),
		cache:       make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Profile returns the listener profile for a session, fetching it through
// inv when the cached copy is missing or stale.
func (s *Supplier) Profile(ctx context.Context, sessionID string, inv catalog.Invoker) (Profile, error) {
	if p, ok := s.Cached(sessionID); ok {
		return p, nil
	}

	var user catalog.User
	var artists []catalog.Artist
	err := inv.Invoke(ctx, func(ctx context.Context, c catalog.Catalog) error {
		var err error
		user, err = c.CurrentUser(ctx)
		if err != nil {
			return fmt.Errorf("fetching current user: %w", err)
		}
		artists, err = c.TopArtists(ctx, s.artistLimit, s.window)
		if err != nil {
			return fmt.Errorf("fetching top artists: %w", err)
		}
		// New accounts have no medium-term history yet.
		if len(artists) == 0 && s.window != catalog.ShortTerm {
			artists, err = c.TopArtists(ctx, s.artistLimit, catalog.ShortTerm)
			if err != nil {
				return fmt.Errorf("fetching short-term top artists: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Profile{}, err
	}

	p := Profile{
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		Genres:      TopGenres(artists, s.cfg, s.logger),
		Artists:     artists,
	}

	s.logger.Debug("built listener profile",
		zap.String("session_id", sessionID),
		zap.Int("artists", len(artists)),
		zap.Strings("genres", p.Genres))

	if s.ttl > 0 {
		s.mu.Lock()
		s.cache[sessionID] = cacheEntry{profile: p, fetchedAt: s.now()}
		s.mu.Unlock()
	}
	return p, nil
}

// Forget drops the cached profile for a session.
func (s *Supplier) Forget(sessionID string) {
	s.mu.Lock()
	delete(s.cache, sessionID)
	s.mu.Unlock()
}

// Cached returns the session's profile if a fresh copy is cached. It never
// reaches the catalog.
func (s *Supplier) Cached(sessionID string) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.cache[sessionID]
	if !ok || s.now().Sub(e.fetchedAt) >= s.ttl {
		return Profile{}, false
	}
	return e.profile, true
}
