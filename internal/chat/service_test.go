package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"golang.org/x/oauth2"

	"github.com/justestif/moodtunes/internal/affinity"
	"github.com/justestif/moodtunes/internal/catalog"
	"github.com/justestif/moodtunes/internal/emotion"
	"github.com/justestif/moodtunes/internal/history"
	"github.com/justestif/moodtunes/internal/mood"
	"github.com/justestif/moodtunes/internal/reply"
	"github.com/justestif/moodtunes/internal/session"
	"github.com/justestif/moodtunes/internal/tracks"
)

// ============================================================================
// Test doubles
// ============================================================================

type mockRefresher struct {
	callCount atomic.Int32
	err       error
}

func (m *mockRefresher) Refresh(context.Context, string) (*oauth2.Token, error) {
	n := m.callCount.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return &oauth2.Token{AccessToken: fmt.Sprintf("access-%d", n), ExpiresIn: 3600}, nil
}

// mockCatalog serves genre searches and records playlist writes. Calls made
// with a rejected token fail with catalog.ErrUnauthorized.
type mockCatalog struct {
	search    map[string][]catalog.Track
	rejected  string
	rejectAll bool

	mu          sync.Mutex
	tokens      []string
	searches    int
	created     []string
	addedURIs   []string
	addedTo     string
	createCalls int
}

type boundCatalog struct {
	*mockCatalog
	token string
}

func (m *mockCatalog) Catalog(accessToken string) catalog.Catalog {
	m.mu.Lock()
	m.tokens = append(m.tokens, accessToken)
	m.mu.Unlock()
	return boundCatalog{mockCatalog: m, token: accessToken}
}

func (b boundCatalog) check() error {
	if b.rejectAll || (b.rejected != "" && b.token == b.rejected) {
		return catalog.ErrUnauthorized
	}
	return nil
}

func (b boundCatalog) SearchTracksByGenre(_ context.Context, genre string, limit int) ([]catalog.Track, error) {
	b.mu.Lock()
	b.searches++
	b.mu.Unlock()
	if err := b.check(); err != nil {
		return nil, err
	}
	ts := b.search[genre]
	return ts[:min(limit, len(ts))], nil
}

func (b boundCatalog) RecentlyPlayed(context.Context, int) ([]catalog.Track, error) {
	return nil, b.check()
}

func (b boundCatalog) TopArtists(context.Context, int, catalog.TimeWindow) ([]catalog.Artist, error) {
	return nil, b.check()
}

func (b boundCatalog) ArtistTopTracks(context.Context, string) ([]catalog.Track, error) {
	return nil, b.check()
}

func (b boundCatalog) UserPlaylists(context.Context, int) ([]catalog.Playlist, error) {
	return nil, b.check()
}

func (b boundCatalog) PlaylistTracks(context.Context, string, int) ([]catalog.Track, error) {
	return nil, b.check()
}

func (b boundCatalog) Featured(context.Context, int) ([]catalog.Playlist, error) {
	return nil, b.check()
}

func (b boundCatalog) NewReleases(context.Context, int) ([]catalog.Track, error) {
	return nil, b.check()
}

func (b boundCatalog) CurrentUser(context.Context) (catalog.User, error) {
	if err := b.check(); err != nil {
		return catalog.User{}, err
	}
	return catalog.User{ID: "u1", DisplayName: "Sam"}, nil
}

func (b boundCatalog) CreatePlaylist(_ context.Context, userID, name, _ string, _ bool) (catalog.Playlist, error) {
	if err := b.check(); err != nil {
		return catalog.Playlist{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.createCalls++
	b.created = append(b.created, name)
	return catalog.Playlist{ID: "pl-" + userID, Name: name}, nil
}

func (b boundCatalog) AddTracks(_ context.Context, playlistID string, uris []string) error {
	if err := b.check(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addedTo = playlistID
	b.addedURIs = append(b.addedURIs, uris...)
	return nil
}

var _ catalog.Catalog = boundCatalog{}

type stubProfiles struct {
	profile   affinity.Profile
	err       error
	cached    bool
	forgotten []string
}

func (s *stubProfiles) Profile(context.Context, string, catalog.Invoker) (affinity.Profile, error) {
	return s.profile, s.err
}

func (s *stubProfiles) Cached(string) (affinity.Profile, bool) {
	return s.profile, s.cached
}

func (s *stubProfiles) Forget(sessionID string) {
	s.forgotten = append(s.forgotten, sessionID)
}

type stubClassifier struct {
	analysis emotion.Analysis
	err      error
	history  []string
	genres   []string
}

func (s *stubClassifier) Classify(_ context.Context, _ string, conv emotion.Conversation) (emotion.Analysis, error) {
	s.history = conv.History
	s.genres = conv.Genres
	return s.analysis, s.err
}

func makeTracks(prefix string, n int) []catalog.Track {
	out := make([]catalog.Track, n)
	for i := range out {
		out[i] = catalog.Track{
			ID:    fmt.Sprintf("%s%d", prefix, i),
			Title: fmt.Sprintf("%s song %d", prefix, i),
			URI:   fmt.Sprintf("spotify:track:%s%d", prefix, i),
		}
	}
	return out
}

type fixture struct {
	svc       *Service
	catalog   *mockCatalog
	store     *session.MemoryStore
	refresher *mockRefresher
	history   *history.MemoryStore
}

func newFixture(t *testing.T, classifier emotion.Classifier, opts ...Option) *fixture {
	t.Helper()
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := session.NewMemoryStore()
	refresher := &mockRefresher{}
	logger := zaptest.NewLogger(t)
	guard := session.NewGuard(store, refresher, session.WithClock(clock), session.WithLogger(logger))
	if err := guard.Open(context.Background(), session.Credential{
		SessionID: "s1", UserID: "u1", AccessToken: "a0", RefreshToken: "r",
		IssuedAt: now, TTL: time.Hour,
	}); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	mc := &mockCatalog{search: map[string][]catalog.Track{
		"pop":  makeTracks("pop", 5),
		"funk": makeTracks("funk", 5),
	}}
	hist := history.NewMemoryStore(0)
	if classifier == nil {
		classifier = emotion.NewLocal(nil)
	}

	opts = append([]Option{WithHistory(hist), WithClock(clock), WithLogger(logger)}, opts...)
	svc := NewService(guard, mc, classifier, tracks.New(tracks.WithLogger(logger)), opts...)
	return &fixture{svc: svc, catalog: mc, store: store, refresher: refresher, history: hist}
}

// ============================================================================
// HandleMessage
// ============================================================================

func TestHandleMessage(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	got, err := f.svc.HandleMessage(ctx, "s1", "  I love this  ")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if got.Mood != mood.Happy.String() || got.Emotion != mood.Romantic.String() {
		t.Errorf("mood = %s/%s, want happy/romantic", got.Mood, got.Emotion)
	}
	wantGenres := []string{"pop", "indie pop", "funk", "r&b", "love songs"}
	if !slices.Equal(got.Genres, wantGenres) {
		t.Errorf("Genres = %v, want %v", got.Genres, wantGenres)
	}
	if len(got.Tracks) != tracks.Target {
		t.Errorf("len(Tracks) = %d, want %d", len(got.Tracks), tracks.Target)
	}
	if got.NoTracks || got.Reply == "" || got.Reply == reply.NoTracks {
		t.Errorf("Reply = %q, NoTracks = %v", got.Reply, got.NoTracks)
	}

	msgs, _ := f.history.Recent(ctx, "s1", 10)
	if len(msgs) != 2 {
		t.Fatalf("history has %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != history.RoleUser || msgs[0].Text != "I love this" || msgs[0].Mood != got.Mood {
		t.Errorf("user message = %+v", msgs[0])
	}
	if msgs[1].Role != history.RoleAssistant || msgs[1].Text != got.Reply {
		t.Errorf("assistant message = %+v", msgs[1])
	}
}

func TestHandleMessage_PassesRecentUserMessages(t *testing.T) {
	sc := &stubClassifier{analysis: emotion.Analysis{Mood: mood.Happy}}
	f := newFixture(t, sc)
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three", "four"} {
		if _, err := f.svc.HandleMessage(ctx, "s1", text); err != nil {
			t.Fatalf("HandleMessage(%q) error = %v", text, err)
		}
	}
	// The final call sees the last ContextSize entries: reply, "three", reply.
	if !slices.Equal(sc.history, []string{"three"}) {
		t.Errorf("history passed to classifier = %v, want [three]", sc.history)
	}
}

func TestHandleMessage_Toxic(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.HandleMessage(ctx, "s1", "I hate you, idiot")

	var toxic *ToxicContentError
	if !errors.As(err, &toxic) {
		t.Fatalf("HandleMessage() error = %v, want *ToxicContentError", err)
	}
	if !errors.Is(err, ErrToxicContent) {
		t.Error("error should match ErrToxicContent")
	}
	if toxic.Reply != reply.Toxic {
		t.Errorf("Reply = %q, want %q", toxic.Reply, reply.Toxic)
	}
	if f.catalog.searches != 0 || len(f.catalog.tokens) != 0 {
		t.Errorf("catalog used %d times for a toxic message", f.catalog.searches)
	}

	msgs, _ := f.history.Recent(ctx, "s1", 10)
	if len(msgs) != 2 || msgs[1].Text != reply.Toxic {
		t.Errorf("history = %+v, want user message and toxic reply", msgs)
	}
}

func TestHandleMessage_Errors(t *testing.T) {
	tests := []struct {
		name       string
		sessionID  string
		text       string
		classifier emotion.Classifier
		wantErr    error
	}{
		{"unknown session", "nope", "hello", nil, session.ErrSessionNotFound},
		{"blank message", "s1", "   ", nil, ErrEmptyMessage},
		{"classifier failure", "s1", "hello", &stubClassifier{err: errors.New("boom")}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.classifier)
			_, err := f.svc.HandleMessage(context.Background(), tt.sessionID, tt.text)
			if err == nil {
				t.Fatal("HandleMessage() should fail")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("HandleMessage() error = %v, want %v", err, tt.wantErr)
			}
			if errors.Is(err, ErrToxicContent) {
				t.Errorf("HandleMessage() error = %v, must not be toxic", err)
			}
		})
	}
}

func TestHandleMessage_NoTracks(t *testing.T) {
	sc := &stubClassifier{analysis: emotion.Analysis{Mood: mood.VerySad}}
	f := newFixture(t, sc)

	got, err := f.svc.HandleMessage(context.Background(), "s1", "everything is awful")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if !got.NoTracks || got.Reply != reply.NoTracks {
		t.Errorf("Result = %+v, want NoTracks reply", got)
	}
	if got.Tracks == nil || len(got.Tracks) != 0 {
		t.Errorf("Tracks = %v, want empty non-nil slice", got.Tracks)
	}
}

func TestHandleMessage_RetriesRejectedToken(t *testing.T) {
	f := newFixture(t, nil)
	f.catalog.rejected = "a0"

	got, err := f.svc.HandleMessage(context.Background(), "s1", "I love this")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if len(got.Tracks) == 0 {
		t.Error("expected tracks after refresh")
	}
	if n := f.refresher.callCount.Load(); n != 1 {
		t.Errorf("refresh called %d times, want 1", n)
	}
	stored, _ := f.store.Get(context.Background(), "s1")
	if stored == nil || stored.AccessToken != "access-1" {
		t.Errorf("stored credential = %+v, want refreshed token", stored)
	}
}

func TestHandleMessage_UnusableSessionStopsAggregation(t *testing.T) {
	tests := []struct {
		name        string
		refreshErr  error
		rejectAll   bool
		wantErr     error
		maxSearches int
	}{
		{"refresh token revoked", errors.New("invalid_grant"), false, session.ErrRefreshFailed, 1},
		{"refreshed token rejected", nil, true, catalog.ErrUnauthorized, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.refresher.err = tt.refreshErr
			f.catalog.rejected = "a0"
			f.catalog.rejectAll = tt.rejectAll

			got, err := f.svc.HandleMessage(context.Background(), "s1", "I love this")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("HandleMessage() = %+v, %v, want %v", got, err, tt.wantErr)
			}
			if got.NoTracks {
				t.Error("an unusable session must not be reported as NoTracks")
			}
			if n := f.refresher.callCount.Load(); n != 1 {
				t.Errorf("refresh called %d times, want 1", n)
			}
			if f.catalog.searches > tt.maxSearches {
				t.Errorf("searched %d times, want at most %d", f.catalog.searches, tt.maxSearches)
			}
			msgs, _ := f.history.Recent(context.Background(), "s1", 10)
			for _, m := range msgs {
				if m.Role == history.RoleAssistant && m.Text == reply.NoTracks {
					t.Errorf("recorded a no-tracks reply for an unusable session")
				}
			}
		})
	}
}

func TestHandleMessage_ProfileSessionFailure(t *testing.T) {
	profiles := &stubProfiles{err: fmt.Errorf("fetching current user: %w", session.ErrRefreshFailed)}
	f := newFixture(t, nil, WithProfiles(profiles))

	_, err := f.svc.HandleMessage(context.Background(), "s1", "I love this")
	if !errors.Is(err, session.ErrRefreshFailed) {
		t.Fatalf("HandleMessage() error = %v, want ErrRefreshFailed", err)
	}
	if f.catalog.searches != 0 {
		t.Errorf("searched %d times after the session failed", f.catalog.searches)
	}
}

func TestHandleMessage_CachedGenresReachClassifier(t *testing.T) {
	tests := []struct {
		name   string
		cached bool
		want   []string
	}{
		{"cached profile", true, []string{"shoegaze", "dream pop"}},
		{"no cached profile", false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profiles := &stubProfiles{
				profile: affinity.Profile{Genres: []string{"shoegaze", "dream pop"}},
				cached:  tt.cached,
			}
			sc := &stubClassifier{analysis: emotion.Analysis{Mood: mood.Happy}}
			f := newFixture(t, sc, WithProfiles(profiles))

			if _, err := f.svc.HandleMessage(context.Background(), "s1", "hmm"); err != nil {
				t.Fatalf("HandleMessage() error = %v", err)
			}
			if !slices.Equal(sc.genres, tt.want) {
				t.Errorf("genres passed to classifier = %v, want %v", sc.genres, tt.want)
			}
		})
	}
}

func TestHandleMessage_Profile(t *testing.T) {
	profiles := &stubProfiles{profile: affinity.Profile{DisplayName: "Sam", Genres: []string{"shoegaze"}}}
	sc := &stubClassifier{analysis: emotion.Analysis{Mood: mood.Neutral}}
	f := newFixture(t, sc, WithProfiles(profiles))

	got, err := f.svc.HandleMessage(context.Background(), "s1", "hmm")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if !slices.Equal(got.Genres, []string{"shoegaze"}) {
		t.Errorf("Genres = %v, want listener genres for a neutral mood", got.Genres)
	}
	// The fixture has no shoegaze results.
	if !got.NoTracks {
		t.Errorf("Result = %+v, want NoTracks", got)
	}
}

func TestHandleMessage_ProfileNameInReply(t *testing.T) {
	profiles := &stubProfiles{profile: affinity.Profile{DisplayName: "Sam"}}
	f := newFixture(t, nil, WithProfiles(profiles))

	got, err := f.svc.HandleMessage(context.Background(), "s1", "I love this")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if !strings.HasPrefix(got.Reply, "Hey Sam! ") {
		t.Errorf("Reply = %q, want greeting", got.Reply)
	}
}

func TestHandleMessage_ProfileFailureDegrades(t *testing.T) {
	profiles := &stubProfiles{err: errors.New("top artists unavailable")}
	f := newFixture(t, nil, WithProfiles(profiles))

	got, err := f.svc.HandleMessage(context.Background(), "s1", "I love this")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if len(got.Tracks) == 0 || strings.HasPrefix(got.Reply, "Hey") {
		t.Errorf("Result = %+v, want anonymous reply with tracks", got)
	}
}

func TestHandleMessage_SuggestedGenresLead(t *testing.T) {
	sc := &stubClassifier{analysis: emotion.Analysis{
		Mood:   mood.Happy,
		Genres: []string{"k-pop", "pop", "city pop"},
	}}
	f := newFixture(t, sc)

	got, err := f.svc.HandleMessage(context.Background(), "s1", "hello")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	want := []string{"k-pop", "pop", "indie pop", "funk"}
	if !slices.Equal(got.Genres, want) {
		t.Errorf("Genres = %v, want %v", got.Genres, want)
	}
}

// ============================================================================
// SavePlaylist
// ============================================================================

func TestSavePlaylist(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantName string
	}{
		{"given name", "Rainy day", "Rainy day"},
		{"default name", "  ", "Moodtunes Mix Mar 14, 2025"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			uris := []string{"spotify:track:a", " ", "spotify:track:b"}

			pl, err := f.svc.SavePlaylist(context.Background(), "s1", tt.input, uris)
			if err != nil {
				t.Fatalf("SavePlaylist() error = %v", err)
			}
			if pl.ID != "pl-u1" || pl.Name != tt.wantName {
				t.Errorf("playlist = %+v, want pl-u1 named %q", pl, tt.wantName)
			}
			if f.catalog.addedTo != "pl-u1" || !slices.Equal(f.catalog.addedURIs, []string{"spotify:track:a", "spotify:track:b"}) {
				t.Errorf("added %v to %q", f.catalog.addedURIs, f.catalog.addedTo)
			}
		})
	}
}

func TestSavePlaylist_Errors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.svc.SavePlaylist(ctx, "s1", "x", []string{" "}); !errors.Is(err, ErrNoTracks) {
		t.Errorf("SavePlaylist(no uris) error = %v, want ErrNoTracks", err)
	}
	if _, err := f.svc.SavePlaylist(ctx, "nope", "x", []string{"spotify:track:a"}); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("SavePlaylist(unknown session) error = %v, want ErrSessionNotFound", err)
	}
	if f.catalog.createCalls != 0 {
		t.Errorf("CreatePlaylist called %d times, want 0", f.catalog.createCalls)
	}
}

func TestSavePlaylist_RetriesRejectedToken(t *testing.T) {
	f := newFixture(t, nil)
	f.catalog.rejected = "a0"

	if _, err := f.svc.SavePlaylist(context.Background(), "s1", "x", []string{"spotify:track:a"}); err != nil {
		t.Fatalf("SavePlaylist() error = %v", err)
	}
	if f.catalog.createCalls != 1 {
		t.Errorf("CreatePlaylist called %d times, want 1", f.catalog.createCalls)
	}
	if n := f.refresher.callCount.Load(); n != 1 {
		t.Errorf("refresh called %d times, want 1", n)
	}
}

// ============================================================================
// History and EndSession
// ============================================================================

func TestHistoryAndEndSession(t *testing.T) {
	profiles := &stubProfiles{}
	f := newFixture(t, nil, WithProfiles(profiles))
	ctx := context.Background()

	if _, err := f.svc.HandleMessage(ctx, "s1", "I love this"); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	msgs, err := f.svc.History(ctx, "s1", 10)
	if err != nil || len(msgs) != 2 {
		t.Fatalf("History() = %d messages, %v; want 2", len(msgs), err)
	}

	if err := f.svc.EndSession(ctx, "s1"); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if _, err := f.svc.History(ctx, "s1", 10); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("History() after EndSession error = %v, want ErrSessionNotFound", err)
	}
	if left, _ := f.history.Recent(ctx, "s1", 10); len(left) != 0 {
		t.Errorf("history has %d messages after EndSession", len(left))
	}
	if !slices.Equal(profiles.forgotten, []string{"s1"}) {
		t.Errorf("forgotten = %v, want [s1]", profiles.forgotten)
	}
}
