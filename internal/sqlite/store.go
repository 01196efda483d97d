// Package sqlite provides SQLite-backed credential and history stores for
// single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // Import the driver anonymously

	"github.com/justestif/moodtunes/internal/history"
	"github.com/justestif/moodtunes/internal/session"
)

// Store implements session.Store and history.Store on one SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore opens the database at path and runs the schema migration.
// Use ":memory:" for an ephemeral database.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One connection, so ":memory:" databases are shared by all queries.
	db.SetMaxOpenConns(1)

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating sqlite db: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL DEFAULT '',
		access_token TEXT NOT NULL,
		refresh_token TEXT NOT NULL DEFAULT '',
		issued_at INTEGER NOT NULL,
		ttl_seconds INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		body TEXT NOT NULL,
		mood TEXT NOT NULL DEFAULT '',
		emotion TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS messages_session_created_idx ON messages (session_id, created_at);
	`
	_, err := s.db.Exec(query)
	return err
}

// ============================================================================
// Credentials
// ============================================================================

// Sessions returns the credential store view.
func (s *Store) Sessions() session.Store {
	return sessionStore{s}
}

type sessionStore struct{ s *Store }

func (v sessionStore) Get(ctx context.Context, id string) (*session.Credential, error) {
	row := v.s.db.QueryRowContext(ctx, `
		SELECT id, user_id, access_token, refresh_token, issued_at, ttl_seconds
		FROM sessions WHERE id = ?`, id)

	var c session.Credential
	var issuedAt, ttl int64
	err := row.Scan(&c.SessionID, &c.UserID, &c.AccessToken, &c.RefreshToken, &issuedAt, &ttl)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading credential: %w", err)
	}
	c.IssuedAt = time.Unix(0, issuedAt).UTC()
	c.TTL = time.Duration(ttl) * time.Second
	return &c, nil
}

func (v sessionStore) Put(ctx context.Context, c session.Credential) error {
	if c.SessionID == "" {
		return errors.New("credential has no session ID")
	}
	_, err := v.s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, access_token, refresh_token, issued_at, ttl_seconds)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			issued_at = excluded.issued_at,
			ttl_seconds = excluded.ttl_seconds`,
		c.SessionID, c.UserID, c.AccessToken, c.RefreshToken,
		c.IssuedAt.UnixNano(), int64(c.TTL/time.Second),
	)
	if err != nil {
		return fmt.Errorf("saving credential: %w", err)
	}
	return nil
}

func (v sessionStore) Delete(ctx context.Context, id string) error {
	tx, err := v.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("deleting session messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	return tx.Commit()
}

// ============================================================================
// History
// ============================================================================

// History returns the conversation store view.
func (s *Store) History() history.Store {
	return historyStore{s}
}

type historyStore struct{ s *Store }

func (v historyStore) Append(ctx context.Context, m history.Message) error {
	_, err := v.s.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, role, body, mood, emotion, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID.String(), m.SessionID, m.Role, m.Text, m.Mood, m.Emotion, m.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("appending message: %w", err)
	}
	return nil
}

func (v historyStore) Recent(ctx context.Context, sessionID string, n int) ([]history.Message, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := v.s.db.QueryContext(ctx, `
		SELECT id, session_id, role, body, mood, emotion, created_at FROM (
			SELECT id, session_id, role, body, mood, emotion, created_at, rowid
			FROM messages
			WHERE session_id = ?
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		) ORDER BY created_at ASC, rowid ASC`, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	defer rows.Close()

	var msgs []history.Message
	for rows.Next() {
		var m history.Message
		var id string
		var createdAt int64
		if err := rows.Scan(&id, &m.SessionID, &m.Role, &m.Text, &m.Mood, &m.Emotion, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parsing message ID %q: %w", id, err)
		}
		m.CreatedAt = time.Unix(0, createdAt).UTC()
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return msgs, nil
}

func (v historyStore) Clear(ctx context.Context, sessionID string) error {
	if _, err := v.s.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("deleting messages: %w", err)
	}
	return nil
}

var (
	_ session.Store = sessionStore{}
	_ history.Store = historyStore{}
)
