// Package auth implements the Spotify OAuth2 authorization code flow and
// access token refresh.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

var (
	// ErrMissingCredentials is returned when the client ID or secret is not configured.
	ErrMissingCredentials = errors.New("missing SPOTIFY_ID or SPOTIFY_SECRET")

	// ErrStateMismatch is returned when the OAuth state parameter doesn't match.
	ErrStateMismatch = errors.New("OAuth state mismatch")

	// ErrNoRefreshToken is returned when Refresh is called without a token.
	ErrNoRefreshToken = errors.New("no refresh token")
)

// Scopes requested at login. Top artists and recently played feed
// personalized recommendations; the playlist scopes allow saving results.
var Scopes = []string{
	spotifyauth.ScopeUserReadPrivate,
	spotifyauth.ScopeUserReadEmail,
	spotifyauth.ScopeUserTopRead,
	spotifyauth.ScopeUserReadRecentlyPlayed,
	spotifyauth.ScopeUserLibraryRead,
	spotifyauth.ScopePlaylistModifyPublic,
	spotifyauth.ScopePlaylistModifyPrivate,
}

// Config holds the OAuth client registration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Authenticator handles Spotify OAuth2 login and token refresh.
type Authenticator struct {
	auth    *spotifyauth.Authenticator
	refresh *oauth2.Config
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithTokenURL overrides the token endpoint used for refreshes.
func WithTokenURL(url string) Option {
	return func(a *Authenticator) {
		if url != "" {
			a.refresh.Endpoint.TokenURL = url
		}
	}
}

// New creates an Authenticator. Returns ErrMissingCredentials if the
// client ID or secret is empty.
func New(cfg Config, opts ...Option) (*Authenticator, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrMissingCredentials
	}

	a := &Authenticator{
		auth: spotifyauth.New(
			spotifyauth.WithClientID(cfg.ClientID),
			spotifyauth.WithClientSecret(cfg.ClientSecret),
			spotifyauth.WithRedirectURL(cfg.RedirectURL),
			spotifyauth.WithScopes(Scopes...),
		),
		refresh: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   spotifyauth.AuthURL,
				TokenURL:  spotifyauth.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// AuthURL returns the Spotify consent page URL for state.
func (a *Authenticator) AuthURL(state string) string {
	return a.auth.AuthURL(state)
}

// Exchange validates the callback request and exchanges its code for a token.
func (a *Authenticator) Exchange(ctx context.Context, state string, r *http.Request) (*oauth2.Token, error) {
	if r.URL.Query().Get("state") != state {
		return nil, ErrStateMismatch
	}
	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		return nil, fmt.Errorf("spotify auth error: %s", errMsg)
	}

	token, err := a.auth.Token(ctx, state, r)
	if err != nil {
		return nil, fmt.Errorf("exchanging code for token: %w", err)
	}
	return token, nil
}

// Refresh exchanges a refresh token for a new access token. The returned
// token carries a new refresh token only if the provider rotated it.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	src := a.refresh.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing access token: %w", err)
	}
	if token.RefreshToken == refreshToken {
		token.RefreshToken = ""
	}
	return token, nil
}

// Client returns an HTTP client that authorizes requests with token.
// The client does not refresh the token on its own.
func (a *Authenticator) Client(ctx context.Context, token *oauth2.Token) *http.Client {
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
}

// GenerateState creates a random state string for OAuth.
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
