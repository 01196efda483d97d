package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageRepository handles chat message database operations.
type MessageRepository struct {
	pool *pgxpool.Pool
}

// Insert stores a message.
func (r *MessageRepository) Insert(ctx context.Context, m *Message) error {
	query := `
		INSERT INTO messages (id, session_id, role, body, mood, emotion, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		m.ID,
		m.SessionID,
		m.Role,
		m.Body,
		m.Mood,
		m.Emotion,
		m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// Recent returns up to limit most recent messages for a session, oldest first.
func (r *MessageRepository) Recent(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	query := `
		SELECT id, session_id, role, body, mood, emotion, created_at
		FROM (
			SELECT id, session_id, role, body, mood, emotion, created_at
			FROM messages
			WHERE session_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}

	messages, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Message])
	if err != nil {
		return nil, fmt.Errorf("scanning messages: %w", err)
	}
	return messages, nil
}

// DeleteForSession removes all messages for a session.
func (r *MessageRepository) DeleteForSession(ctx context.Context, sessionID string) error {
	query := `DELETE FROM messages WHERE session_id = $1`
	if _, err := r.pool.Exec(ctx, query, sessionID); err != nil {
		return fmt.Errorf("deleting session messages: %w", err)
	}
	return nil
}
