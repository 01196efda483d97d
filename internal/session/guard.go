package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/justestif/moodtunes/internal/catalog"
)

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Guard validates and refreshes session credentials.
//
// Refreshes are serialized per session ID: concurrent or back-to-back callers
// holding the same stale credential share a single upstream refresh.
type Guard struct {
	store     Store
	refresher Refresher
	margin    time.Duration
	now       func() time.Time
	logger    *zap.Logger

	flight singleflight.Group

	mu     sync.Mutex
	states map[string]State
}

// Option configures a Guard.
type Option func(*Guard)

// WithMargin sets how long before expiry a credential is refreshed.
func WithMargin(d time.Duration) Option {
	return func(g *Guard) {
		if d >= 0 {
			g.margin = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGuard creates a Guard over store using refresher for renewals.
func NewGuard(store Store, refresher Refresher, opts ...Option) *Guard {
	g := &Guard{
		store:     store,
		refresher: refresher,
		margin:    DefaultMargin,
		now:       time.Now,
		logger:    zap.NewNop(),
		states:    make(map[string]State),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Open stores a newly issued credential and marks it valid.
func (g *Guard) Open(ctx context.Context, c Credential) error {
	if err := g.store.Put(ctx, c); err != nil {
		return fmt.Errorf("opening session: %w", err)
	}
	g.setState(c.SessionID, Valid)
	return nil
}

// Close deletes a session's credential.
func (g *Guard) Close(ctx context.Context, id string) error {
	if err := g.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("closing session: %w", err)
	}
	g.mu.Lock()
	delete(g.states, id)
	g.mu.Unlock()
	return nil
}

// State reports the last observed state of a session.
func (g *Guard) State(id string) State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.states[id]
}

// EnsureValid returns a credential for id that is valid now.
// A credential that has not reached its expiry is returned without any
// upstream call. An expired one is refreshed and persisted first, as is one
// whose last forced refresh failed.
func (g *Guard) EnsureValid(ctx context.Context, id string) (Credential, error) {
	c, err := g.load(ctx, id)
	if err != nil {
		return Credential{}, err
	}

	rejected := g.State(id) == Invalid
	if !rejected && g.now().Before(c.Expiry(g.margin)) {
		g.setState(id, Valid)
		return *c, nil
	}

	g.setState(id, Expiring)
	return g.refresh(ctx, id, c.AccessToken, rejected)
}

// WithRetry runs fn with a valid credential. If fn fails with
// catalog.ErrUnauthorized, the credential is force-refreshed and fn is
// retried exactly once. A second authorization failure is returned as is.
func (g *Guard) WithRetry(ctx context.Context, id string, fn func(context.Context, Credential) error) error {
	c, err := g.EnsureValid(ctx, id)
	if err != nil {
		return err
	}

	err = fn(ctx, c)
	if !errors.Is(err, catalog.ErrUnauthorized) {
		return err
	}

	g.logger.Info("upstream rejected credential, forcing refresh",
		zap.String("session_id", id))

	g.setState(id, Expiring)
	fresh, rerr := g.refresh(ctx, id, c.AccessToken, true)
	if rerr != nil {
		return rerr
	}
	return fn(ctx, fresh)
}

// Invoker returns a catalog.Invoker for session id. Each invocation binds a
// catalog to the current credential and goes through WithRetry.
func (g *Guard) Invoker(id string, bind func(Credential) catalog.Catalog) catalog.Invoker {
	return catalog.InvokerFunc(func(ctx context.Context, fn func(context.Context, catalog.Catalog) error) error {
		return g.WithRetry(ctx, id, func(ctx context.Context, c Credential) error {
			return fn(ctx, bind(c))
		})
	})
}

func (g *Guard) load(ctx context.Context, id string) (*Credential, error) {
	c, err := g.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if c == nil {
		g.setState(id, Invalid)
		return nil, ErrSessionNotFound
	}
	return c, nil
}

// refresh renews the credential whose access token is stale. Inside the
// flight the stored credential is re-read: if another caller already
// replaced the stale token with a valid one, that credential is reused.
//
// The flight runs detached from ctx under its own timeout, so a caller that
// gives up does not fail the callers sharing the flight.
func (g *Guard) refresh(ctx context.Context, id, stale string, force bool) (Credential, error) {
	ch := g.flight.DoChan(id, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), RefreshTimeout)
		defer cancel()
		return g.renew(fctx, id, stale, force)
	})

	select {
	case <-ctx.Done():
		return Credential{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Credential{}, res.Err
		}
		return res.Val.(Credential), nil
	}
}

func (g *Guard) renew(ctx context.Context, id, stale string, force bool) (Credential, error) {
	cur, err := g.load(ctx, id)
	if err != nil {
		return Credential{}, err
	}

	replaced := cur.AccessToken != stale
	if g.now().Before(cur.Expiry(g.margin)) && (replaced || !force) {
		g.setState(id, Valid)
		return *cur, nil
	}

	if cur.RefreshToken == "" {
		g.setState(id, Invalid)
		return Credential{}, ErrNoRefreshToken
	}

	g.setState(id, Refreshing)
	tok, err := g.refresher.Refresh(ctx, cur.RefreshToken)
	if err != nil {
		g.logger.Warn("token refresh failed",
			zap.String("session_id", id),
			zap.Error(err))
		if ctx.Err() != nil {
			// Timed out: the refresh token may still be good.
			g.setState(id, Expiring)
			return Credential{}, fmt.Errorf("refreshing credential: %w", ctx.Err())
		}
		g.setState(id, Invalid)
		return Credential{}, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	if tok == nil || tok.AccessToken == "" {
		g.setState(id, Invalid)
		return Credential{}, fmt.Errorf("%w: empty access token", ErrRefreshFailed)
	}

	now := g.now()
	updated := *cur
	updated.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		updated.RefreshToken = tok.RefreshToken
	}
	updated.IssuedAt = now
	updated.TTL = lifetime(tok, now)

	if err := g.store.Put(ctx, updated); err != nil {
		g.setState(id, Expiring)
		return Credential{}, fmt.Errorf("saving refreshed credential: %w", err)
	}

	g.setState(id, Valid)
	g.logger.Debug("refreshed credential", zap.String("session_id", id))
	return updated, nil
}

func (g *Guard) setState(id string, s State) {
	g.mu.Lock()
	g.states[id] = s
	g.mu.Unlock()
}
