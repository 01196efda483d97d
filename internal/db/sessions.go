package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRepository handles session database operations.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// Upsert inserts a session or replaces its tokens and validity window.
func (r *SessionRepository) Upsert(ctx context.Context, session *Session) error {
	query := `
		INSERT INTO sessions (id, user_id, access_token, refresh_token, issued_at, ttl_seconds, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			issued_at = EXCLUDED.issued_at,
			ttl_seconds = EXCLUDED.ttl_seconds,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		session.ID,
		session.UserID,
		session.AccessToken,
		session.RefreshToken,
		session.IssuedAt,
		session.TTLSeconds,
	).Scan(&session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID, or ErrNotFound.
func (r *SessionRepository) Get(ctx context.Context, id string) (*Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, access_token, refresh_token, issued_at, ttl_seconds, created_at, updated_at
		FROM sessions
		WHERE id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}

	session, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByPos[Session])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	return session, nil
}

// Delete removes a session by ID.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM sessions WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteIdle removes sessions not updated since before.
func (r *SessionRepository) DeleteIdle(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE updated_at < $1`
	result, err := r.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("deleting idle sessions: %w", err)
	}
	return result.RowsAffected(), nil
}
