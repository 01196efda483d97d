// Package history records the conversation of each chat session.
package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/moodtunes/internal/db"
)

// Roles of a message author.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContextSize is how many prior messages are handed to classifiers.
const ContextSize = 3

// Message is one line of a conversation.
type Message struct {
	ID        uuid.UUID `json:"id"`
	SessionID string    `json:"-"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Mood      string    `json:"mood,omitempty"`
	Emotion   string    `json:"emotion,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// New creates a message with a fresh ID stamped at now.
func New(sessionID, role, text string, now time.Time) Message {
	return Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      role,
		Text:      text,
		CreatedAt: now,
	}
}

// Store appends and reads session conversations.
type Store interface {
	// Append records m.
	Append(ctx context.Context, m Message) error

	// Recent returns up to n most recent messages for a session, oldest first.
	Recent(ctx context.Context, sessionID string, n int) ([]Message, error)

	// Clear deletes all messages for a session.
	Clear(ctx context.Context, sessionID string) error
}

// Texts returns the text of each message, skipping assistant replies.
func Texts(msgs []Message) []string {
	var out []string
	for _, m := range msgs {
		if m.Role == RoleUser {
			out = append(out, m.Text)
		}
	}
	return out
}

// ============================================================================
// In-Memory Store
// ============================================================================

// DefaultMaxPerSession bounds how many messages MemoryStore keeps per session.
const DefaultMaxPerSession = 200

// MemoryStore keeps conversations in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	max      int
	sessions map[string][]Message
}

// NewMemoryStore creates an in-memory store keeping at most max messages
// per session. Non-positive max uses DefaultMaxPerSession.
func NewMemoryStore(max int) *MemoryStore {
	if max <= 0 {
		max = DefaultMaxPerSession
	}
	return &MemoryStore{max: max, sessions: make(map[string][]Message)}
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, m Message) error {
	if m.SessionID == "" {
		return errors.New("message has no session ID")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := append(s.sessions[m.SessionID], m)
	if len(msgs) > s.max {
		msgs = append([]Message(nil), msgs[len(msgs)-s.max:]...)
	}
	s.sessions[m.SessionID] = msgs
	return nil
}

// Recent implements Store.
func (s *MemoryStore) Recent(_ context.Context, sessionID string, n int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.sessions[sessionID]
	if n <= 0 || len(msgs) == 0 {
		return nil, nil
	}
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return append([]Message(nil), msgs...), nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}

// ============================================================================
// Database-Backed Store
// ============================================================================

// DBStore keeps conversations in PostgreSQL.
type DBStore struct {
	database *db.DB
}

// NewDBStore creates a PostgreSQL-backed store.
func NewDBStore(database *db.DB) *DBStore {
	return &DBStore{database: database}
}

// Append implements Store.
func (s *DBStore) Append(ctx context.Context, m Message) error {
	row := toRow(m)
	if err := s.database.Messages().Insert(ctx, &row); err != nil {
		return fmt.Errorf("appending message: %w", err)
	}
	return nil
}

// Recent implements Store.
func (s *DBStore) Recent(ctx context.Context, sessionID string, n int) ([]Message, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.database.Messages().Recent(ctx, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	msgs := make([]Message, len(rows))
	for i, r := range rows {
		msgs[i] = fromRow(r)
	}
	return msgs, nil
}

// Clear implements Store.
func (s *DBStore) Clear(ctx context.Context, sessionID string) error {
	return s.database.Messages().DeleteForSession(ctx, sessionID)
}

func toRow(m Message) db.Message {
	return db.Message{
		ID:        m.ID,
		SessionID: m.SessionID,
		Role:      m.Role,
		Body:      m.Text,
		Mood:      m.Mood,
		Emotion:   m.Emotion,
		CreatedAt: m.CreatedAt,
	}
}

func fromRow(r db.Message) Message {
	return Message{
		ID:        r.ID,
		SessionID: r.SessionID,
		Role:      r.Role,
		Text:      r.Body,
		Mood:      r.Mood,
		Emotion:   r.Emotion,
		CreatedAt: r.CreatedAt,
	}
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*DBStore)(nil)
)
