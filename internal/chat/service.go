// Package chat turns a listener's message into a reply and a track list.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/justestif/moodtunes/internal/affinity"
	"github.com/justestif/moodtunes/internal/catalog"
	"github.com/justestif/moodtunes/internal/emotion"
	"github.com/justestif/moodtunes/internal/genres"
	"github.com/justestif/moodtunes/internal/history"
	"github.com/justestif/moodtunes/internal/mood"
	"github.com/justestif/moodtunes/internal/reply"
	"github.com/justestif/moodtunes/internal/session"
	"github.com/justestif/moodtunes/internal/tracks"
)

// Common errors.
var (
	// ErrToxicContent is wrapped by *ToxicContentError.
	ErrToxicContent = errors.New("toxic content")

	// ErrEmptyMessage is returned for blank messages.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNoTracks is returned when saving a playlist without tracks.
	ErrNoTracks = errors.New("no tracks to save")
)

// ToxicContentError rejects a message. Reply is the message to show instead.
type ToxicContentError struct {
	Reply string
}

func (e *ToxicContentError) Error() string {
	return "message rejected: toxic content"
}

func (e *ToxicContentError) Unwrap() error {
	return ErrToxicContent
}

// suggestedGenres is how many classifier-suggested genres lead the genre set.
const suggestedGenres = 2

// Result is the answer to one message.
type Result struct {
	Reply    string          `json:"response"`
	Mood     string          `json:"mood"`
	Emotion  string          `json:"emotion,omitempty"`
	Genres   []string        `json:"genres"`
	Tracks   []catalog.Track `json:"tracks"`
	NoTracks bool            `json:"noTracks"`
}

// CatalogProvider binds a catalog to an access token.
type CatalogProvider interface {
	Catalog(accessToken string) catalog.Catalog
}

// ProfileSource supplies listener profiles.
type ProfileSource interface {
	Profile(ctx context.Context, sessionID string, inv catalog.Invoker) (affinity.Profile, error)
	Cached(sessionID string) (affinity.Profile, bool)
	Forget(sessionID string)
}

// Service handles chat messages for authenticated sessions.
type Service struct {
	guard      *session.Guard
	provider   CatalogProvider
	classifier emotion.Classifier
	aggregator *tracks.Aggregator
	composer   *reply.Composer
	profiles   ProfileSource
	history    history.Store
	now        func() time.Time
	logger     *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithProfiles enables personalization from listener profiles.
func WithProfiles(p ProfileSource) Option {
	return func(s *Service) {
		s.profiles = p
	}
}

// WithHistory sets the conversation store.
func WithHistory(h history.Store) Option {
	return func(s *Service) {
		if h != nil {
			s.history = h
		}
	}
}

// WithComposer sets the reply composer.
func WithComposer(c *reply.Composer) Option {
	return func(s *Service) {
		if c != nil {
			s.composer = c
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a Service.
func NewService(guard *session.Guard, provider CatalogProvider, classifier emotion.Classifier, aggregator *tracks.Aggregator, opts ...Option) *Service {
	s := &Service{
		guard:      guard,
		provider:   provider,
		classifier: classifier,
		aggregator: aggregator,
		composer:   reply.New(),
		history:    history.NewMemoryStore(0),
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleMessage classifies text, picks genres and gathers tracks for the
// session's listener.
//
// Returns session.ErrSessionNotFound, session.ErrRefreshFailed or
// catalog.ErrUnauthorized when the session cannot be used, and a *ToxicContentError (matching
// ErrToxicContent) when the message is rejected. Toxic messages never reach
// the catalog. Finding no tracks is not an error: the Result has NoTracks
// set instead.
func (s *Service) HandleMessage(ctx context.Context, sessionID, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, ErrEmptyMessage
	}

	if _, err := s.guard.EnsureValid(ctx, sessionID); err != nil {
		return Result{}, err
	}

	recent, err := s.history.Recent(ctx, sessionID, history.ContextSize)
	if err != nil {
		s.logger.Warn("failed to load history", zap.String("session_id", sessionID), zap.Error(err))
	}

	conv := emotion.Conversation{History: history.Texts(recent)}
	if s.profiles != nil {
		if p, ok := s.profiles.Cached(sessionID); ok {
			conv.Genres = p.Genres
		}
	}

	analysis, err := s.classifier.Classify(ctx, text, conv)
	if err != nil {
		return Result{}, fmt.Errorf("classifying message: %w", err)
	}

	s.record(ctx, sessionID, history.RoleUser, text, analysis.Mood, analysis.Emotion)

	if analysis.Toxic {
		s.logger.Info("rejected toxic message", zap.String("session_id", sessionID))
		s.record(ctx, sessionID, history.RoleAssistant, reply.Toxic, analysis.Mood, analysis.Emotion)
		return Result{}, &ToxicContentError{Reply: reply.Toxic}
	}

	inv := s.invoker(sessionID)

	var listener *tracks.Listener
	var listenerGenres []string
	var name string
	if s.profiles != nil {
		p, err := s.profiles.Profile(ctx, sessionID, inv)
		if err != nil {
			if sessionFailure(err) {
				return Result{}, err
			}
			s.logger.Warn("failed to load listener profile",
				zap.String("session_id", sessionID),
				zap.Error(err))
		} else {
			listener = &tracks.Listener{Artists: p.Artists}
			listenerGenres = p.Genres
			name = p.DisplayName
		}
	}

	gs := genres.Recommend(analysis.Mood, analysis.Emotion, listenerGenres)
	if len(analysis.Genres) > 0 {
		lead := analysis.Genres[:min(suggestedGenres, len(analysis.Genres))]
		gs = genres.Merge(genres.MaxGenres, lead, gs)
	}

	found, err := s.aggregator.Aggregate(ctx, sessionID, inv, gs, listener)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Mood:    analysis.Mood.String(),
		Emotion: analysis.Emotion.String(),
		Genres:  gs,
		Tracks:  found.Tracks,
	}
	if found.Empty() {
		result.Reply = reply.NoTracks
		result.NoTracks = true
		result.Tracks = []catalog.Track{}
	} else {
		result.Reply = s.composer.ComposeFor(name, analysis.Mood, analysis.Emotion)
	}

	s.logger.Info("handled message",
		zap.String("session_id", sessionID),
		zap.String("mood", result.Mood),
		zap.String("emotion", result.Emotion),
		zap.String("source", analysis.Source),
		zap.Strings("genres", gs),
		zap.Int("tracks", len(result.Tracks)))

	s.record(ctx, sessionID, history.RoleAssistant, result.Reply, analysis.Mood, analysis.Emotion)
	return result, nil
}

// sessionFailure reports whether err means the session's credential is no
// longer usable. An ErrUnauthorized here has already survived one refresh.
func sessionFailure(err error) bool {
	return errors.Is(err, session.ErrSessionNotFound) ||
		errors.Is(err, session.ErrRefreshFailed) ||
		errors.Is(err, catalog.ErrUnauthorized)
}

// SavePlaylist creates a private playlist for the session's listener and
// adds the given track URIs. An empty name gets a dated default.
func (s *Service) SavePlaylist(ctx context.Context, sessionID, name string, uris []string) (catalog.Playlist, error) {
	uris = compact(uris)
	if len(uris) == 0 {
		return catalog.Playlist{}, ErrNoTracks
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Moodtunes Mix " + s.now().Format("Jan 2, 2006")
	}

	inv := s.invoker(sessionID)

	var playlist catalog.Playlist
	err := inv.Invoke(ctx, func(ctx context.Context, c catalog.Catalog) error {
		user, err := c.CurrentUser(ctx)
		if err != nil {
			return fmt.Errorf("getting current user: %w", err)
		}
		playlist, err = c.CreatePlaylist(ctx, user.ID, name, "Created by Moodtunes", false)
		return err
	})
	if err != nil {
		return catalog.Playlist{}, fmt.Errorf("creating playlist: %w", err)
	}

	err = inv.Invoke(ctx, func(ctx context.Context, c catalog.Catalog) error {
		return c.AddTracks(ctx, playlist.ID, uris)
	})
	if err != nil {
		return catalog.Playlist{}, fmt.Errorf("adding tracks to playlist %s: %w", playlist.ID, err)
	}

	s.logger.Info("saved playlist",
		zap.String("session_id", sessionID),
		zap.String("playlist_id", playlist.ID),
		zap.Int("tracks", len(uris)))
	return playlist, nil
}

// History returns up to n recent messages of a valid session.
func (s *Service) History(ctx context.Context, sessionID string, n int) ([]history.Message, error) {
	if _, err := s.guard.EnsureValid(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.history.Recent(ctx, sessionID, n)
}

// EndSession deletes the session's credential, conversation and profile.
func (s *Service) EndSession(ctx context.Context, sessionID string) error {
	if err := s.guard.Close(ctx, sessionID); err != nil {
		return err
	}
	if s.profiles != nil {
		s.profiles.Forget(sessionID)
	}
	if err := s.history.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}

func (s *Service) invoker(sessionID string) catalog.Invoker {
	return s.guard.Invoker(sessionID, func(c session.Credential) catalog.Catalog {
		return s.provider.Catalog(c.AccessToken)
	})
}

func (s *Service) record(ctx context.Context, sessionID, role, text string, m mood.Category, e mood.Emotion) {
	msg := history.New(sessionID, role, text, s.now())
	msg.Mood = m.String()
	msg.Emotion = e.String()
	if err := s.history.Append(ctx, msg); err != nil {
		s.logger.Warn("failed to record message",
			zap.String("session_id", sessionID),
			zap.String("role", role),
			zap.Error(err))
	}
}

func compact(uris []string) []string {
	out := make([]string, 0, len(uris))
	for _, u := range uris {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}
