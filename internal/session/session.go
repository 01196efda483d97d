// Package session guards per-session OAuth credentials: it validates
// expiry, refreshes tokens at most once per session at a time and retries
// catalog calls that fail authorization.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// Sentinel errors.
var (
	// ErrSessionNotFound is returned when no credential exists for a session ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrRefreshFailed is returned when an expired credential could not be refreshed.
	ErrRefreshFailed = errors.New("failed to refresh authentication")

	// ErrNoRefreshToken is returned when an expired credential has no refresh token.
	ErrNoRefreshToken = fmt.Errorf("%w: no refresh token", ErrRefreshFailed)
)

// DefaultMargin is subtracted from a credential's lifetime so tokens are
// refreshed slightly before the provider rejects them.
const DefaultMargin = 60 * time.Second

// RefreshTimeout bounds one upstream token refresh.
const RefreshTimeout = 15 * time.Second

// DefaultTTL is assumed when the provider does not report a lifetime.
const DefaultTTL = time.Hour

// Credential is the OAuth token pair and validity window for one session.
type Credential struct {
	SessionID    string
	UserID       string
	AccessToken  string
	RefreshToken string // Empty when the provider issued none
	IssuedAt     time.Time
	TTL          time.Duration
}

// Expiry returns the instant after which the credential must be refreshed.
func (c Credential) Expiry(margin time.Duration) time.Time {
	return c.IssuedAt.Add(c.TTL - margin)
}

// Token converts the credential into an oauth2 token.
func (c Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       c.IssuedAt.Add(c.TTL),
	}
}

// FromToken builds a credential for sessionID from a freshly issued token.
func FromToken(sessionID, userID string, tok *oauth2.Token, now time.Time) Credential {
	return Credential{
		SessionID:    sessionID,
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		IssuedAt:     now,
		TTL:          lifetime(tok, now),
	}
}

// lifetime derives a token's TTL from its absolute expiry.
func lifetime(tok *oauth2.Token, now time.Time) time.Duration {
	if tok.ExpiresIn > 0 {
		return time.Duration(tok.ExpiresIn) * time.Second
	}
	if !tok.Expiry.IsZero() {
		if d := tok.Expiry.Sub(now).Round(time.Second); d > 0 {
			return d
		}
	}
	return DefaultTTL
}

// NewID returns a cryptographically random session ID.
func NewID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session ID: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// State describes where a session is in its validity lifecycle.
type State int

const (
	Unvalidated State = iota
	Valid
	Expiring
	Refreshing
	Invalid
)

func (s State) String() string {
	switch s {
	case Valid:
		return "valid"
	case Expiring:
		return "expiring"
	case Refreshing:
		return "refreshing"
	case Invalid:
		return "invalid"
	default:
		return "unvalidated"
	}
}
