package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/justestif/moodtunes/internal/history"
	"github.com/justestif/moodtunes/internal/session"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t).Sessions()

	got, err := store.Get(ctx, "missing")
	if err != nil || got != nil {
		t.Fatalf("Get(missing) = %v, %v; want nil, nil", got, err)
	}

	issued := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	c := session.Credential{
		SessionID:    "s1",
		UserID:       "u1",
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		IssuedAt:     issued,
		TTL:          time.Hour,
	}
	if err := store.Put(ctx, c); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err = store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil {
		t.Fatal("Get() returned nil for stored credential")
	}
	if got.AccessToken != "access-1" || got.RefreshToken != "refresh-1" || got.UserID != "u1" {
		t.Errorf("Get() = %+v", got)
	}
	if !got.IssuedAt.Equal(issued) || got.TTL != time.Hour {
		t.Errorf("Get() window = %v + %v, want %v + %v", got.IssuedAt, got.TTL, issued, time.Hour)
	}

	c.AccessToken = "access-2"
	if err := store.Put(ctx, c); err != nil {
		t.Fatalf("Put() overwrite error = %v", err)
	}
	got, _ = store.Get(ctx, "s1")
	if got.AccessToken != "access-2" {
		t.Errorf("AccessToken after overwrite = %q, want access-2", got.AccessToken)
	}

	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	got, _ = store.Get(ctx, "s1")
	if got != nil {
		t.Errorf("Get() after Delete = %+v, want nil", got)
	}
}

func TestSessions_RequiresID(t *testing.T) {
	store := newTestStore(t).Sessions()
	if err := store.Put(context.Background(), session.Credential{AccessToken: "x"}); err == nil {
		t.Error("Put() without session ID should fail")
	}
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t).History()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	texts := []string{"one", "two", "three", "four"}
	for i, text := range texts {
		m := history.New("s1", history.RoleUser, text, base.Add(time.Duration(i)*time.Minute))
		m.Mood = "happy"
		if err := store.Append(ctx, m); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	_ = store.Append(ctx, history.New("s2", history.RoleUser, "elsewhere", base))

	got, err := store.Recent(ctx, "s1", 3)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	want := []string{"two", "three", "four"}
	if len(got) != len(want) {
		t.Fatalf("Recent() returned %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Text != want[i] {
			t.Errorf("Recent()[%d] = %q, want %q", i, got[i].Text, want[i])
		}
		if got[i].Mood != "happy" {
			t.Errorf("Recent()[%d].Mood = %q, want happy", i, got[i].Mood)
		}
	}

	if err := store.Clear(ctx, "s1"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	got, _ = store.Recent(ctx, "s1", 3)
	if len(got) != 0 {
		t.Errorf("Recent() after Clear = %d messages, want 0", len(got))
	}
	other, _ := store.Recent(ctx, "s2", 3)
	if len(other) != 1 {
		t.Errorf("Recent(s2) = %d messages, want 1", len(other))
	}
}

func TestDeleteSessionRemovesMessages(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := s.Sessions().Put(ctx, session.Credential{
		SessionID: "s1", AccessToken: "a", IssuedAt: now, TTL: time.Hour,
	}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.History().Append(ctx, history.New("s1", history.RoleUser, "hello", now)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if err := s.Sessions().Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if got, _ := s.Sessions().Get(ctx, "s1"); got != nil {
		t.Errorf("Get() after Delete = %+v, want nil", got)
	}
	if msgs, _ := s.History().Recent(ctx, "s1", 10); len(msgs) != 0 {
		t.Errorf("Recent() after Delete = %d messages, want 0", len(msgs))
	}
}
