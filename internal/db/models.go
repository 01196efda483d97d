package db

import (
	"time"

	"github.com/google/uuid"
)

// Session is a stored OAuth credential for one chat session.
type Session struct {
	ID           string
	UserID       string
	AccessToken  string
	RefreshToken string
	IssuedAt     time.Time
	TTLSeconds   int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Message is one line of a chat conversation.
type Message struct {
	ID        uuid.UUID
	SessionID string
	Role      string // "user" or "assistant"
	Body      string
	Mood      string
	Emotion   string
	CreatedAt time.Time
}

// ArtistTag is a cached Last.fm tag for an artist.
type ArtistTag struct {
	Artist    string
	TagName   string
	TagCount  int
	FetchedAt time.Time
}
