package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/justestif/moodtunes/internal/db"
)

// Store persists credentials keyed by session ID.
type Store interface {
	// Get returns the credential for id, or (nil, nil) when none exists.
	Get(ctx context.Context, id string) (*Credential, error)

	// Put creates or replaces the credential for c.SessionID.
	Put(ctx context.Context, c Credential) error

	// Delete removes the credential for id. Missing IDs are not an error.
	Delete(ctx context.Context, id string) error
}

// ============================================================================
// In-Memory Store (for development/testing)
// ============================================================================

// MemoryStore keeps credentials in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]Credential
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]Credential)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.creds[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, c Credential) error {
	if c.SessionID == "" {
		return errors.New("credential has no session ID")
	}
	s.mu.Lock()
	s.creds[c.SessionID] = c
	s.mu.Unlock()
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.creds, id)
	s.mu.Unlock()
	return nil
}

// ============================================================================
// Database-Backed Store
// ============================================================================

// DBStore keeps credentials in PostgreSQL.
type DBStore struct {
	database *db.DB
}

// NewDBStore creates a PostgreSQL-backed store.
func NewDBStore(database *db.DB) *DBStore {
	return &DBStore{database: database}
}

// Get implements Store.
func (s *DBStore) Get(ctx context.Context, id string) (*Credential, error) {
	row, err := s.database.Sessions().Get(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading credential: %w", err)
	}
	c := FromRow(row)
	return &c, nil
}

// Put implements Store.
func (s *DBStore) Put(ctx context.Context, c Credential) error {
	if err := s.database.Sessions().Upsert(ctx, ToRow(c)); err != nil {
		return fmt.Errorf("saving credential: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *DBStore) Delete(ctx context.Context, id string) error {
	return s.database.Sessions().Delete(ctx, id)
}

// FromRow converts a database session row into a Credential.
func FromRow(row *db.Session) Credential {
	return Credential{
		SessionID:    row.ID,
		UserID:       row.UserID,
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		IssuedAt:     row.IssuedAt,
		TTL:          time.Duration(row.TTLSeconds) * time.Second,
	}
}

// ToRow converts a Credential into a database session row.
func ToRow(c Credential) *db.Session {
	return &db.Session{
		ID:           c.SessionID,
		UserID:       c.UserID,
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		IssuedAt:     c.IssuedAt,
		TTLSeconds:   int64(c.TTL / time.Second),
	}
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*DBStore)(nil)
)
