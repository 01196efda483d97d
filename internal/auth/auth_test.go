package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
)

func TestNew_MissingCredentials(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing ID", Config{ClientSecret: "secret"}},
		{"missing secret", Config{ClientID: "id"}},
		{"both missing", Config{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if !errors.Is(err, ErrMissingCredentials) {
				t.Errorf("New() error = %v, want ErrMissingCredentials", err)
			}
		})
	}
}

func TestAuthURL_IncludesScopesAndState(t *testing.T) {
	a, err := New(Config{ClientID: "id", ClientSecret: "secret", RedirectURL: "http://127.0.0.1:8080/callback"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	u, err := url.Parse(a.AuthURL("xyz"))
	if err != nil {
		t.Fatalf("parsing auth URL: %v", err)
	}
	q := u.Query()
	if q.Get("state") != "xyz" {
		t.Errorf("state = %q, want xyz", q.Get("state"))
	}
	for _, scope := range []string{"user-top-read", "user-read-recently-played", "playlist-modify-private"} {
		if !strings.Contains(q.Get("scope"), scope) {
			t.Errorf("scope %q missing from %q", scope, q.Get("scope"))
		}
	}
}

func TestExchange_StateMismatch(t *testing.T) {
	a, _ := New(Config{ClientID: "id", ClientSecret: "secret"})

	r := httptest.NewRequest(http.MethodGet, "/callback?state=other&code=abc", nil)
	if _, err := a.Exchange(context.Background(), "expected", r); !errors.Is(err, ErrStateMismatch) {
		t.Errorf("Exchange() error = %v, want ErrStateMismatch", err)
	}
}

func TestExchange_ProviderError(t *testing.T) {
	a, _ := New(Config{ClientID: "id", ClientSecret: "secret"})

	r := httptest.NewRequest(http.MethodGet, "/callback?state=s&error=access_denied", nil)
	_, err := a.Exchange(context.Background(), "s", r)
	if err == nil || !strings.Contains(err.Error(), "access_denied") {
		t.Errorf("Exchange() error = %v, want access_denied", err)
	}
}

func TestRefresh(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantErr     bool
		wantAccess  string
		wantRefresh string
	}{
		{
			name:       "refresh token kept",
			status:     http.StatusOK,
			body:       `{"access_token":"new-access","token_type":"Bearer","expires_in":3600}`,
			wantAccess: "new-access",
		},
		{
			name:        "refresh token rotated",
			status:      http.StatusOK,
			body:        `{"access_token":"new-access","token_type":"Bearer","expires_in":3600,"refresh_token":"rotated"}`,
			wantAccess:  "new-access",
			wantRefresh: "rotated",
		},
		{
			name:    "invalid grant",
			status:  http.StatusBadRequest,
			body:    `{"error":"invalid_grant","error_description":"Refresh token revoked"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				if err := r.ParseForm(); err != nil {
					t.Errorf("ParseForm() error = %v", err)
				}
				if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
					t.Errorf("grant_type = %q, want refresh_token", got)
				}
				if got := r.PostForm.Get("refresh_token"); got != "old-refresh" {
					t.Errorf("refresh_token = %q, want old-refresh", got)
				}
				if user, _, ok := r.BasicAuth(); !ok || user != "id" {
					t.Errorf("basic auth user = %q, ok = %v", user, ok)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			a, err := New(Config{ClientID: "id", ClientSecret: "secret"}, WithTokenURL(server.URL))
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			tok, err := a.Refresh(context.Background(), "old-refresh")
			if calls.Load() != 1 {
				t.Errorf("token endpoint called %d times, want 1", calls.Load())
			}
			if tt.wantErr {
				if err == nil {
					t.Fatal("Refresh() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Refresh() error = %v", err)
			}
			if tok.AccessToken != tt.wantAccess {
				t.Errorf("AccessToken = %q, want %q", tok.AccessToken, tt.wantAccess)
			}
			if tok.RefreshToken != tt.wantRefresh {
				t.Errorf("RefreshToken = %q, want %q", tok.RefreshToken, tt.wantRefresh)
			}
			if tok.Expiry.IsZero() {
				t.Error("Expiry should be set from expires_in")
			}
		})
	}
}

func TestRefresh_EmptyToken(t *testing.T) {
	a, _ := New(Config{ClientID: "id", ClientSecret: "secret"})

	if _, err := a.Refresh(context.Background(), ""); !errors.Is(err, ErrNoRefreshToken) {
		t.Errorf("Refresh() error = %v, want ErrNoRefreshToken", err)
	}
}

func TestGenerateState(t *testing.T) {
	state1, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState() error = %v", err)
	}

	state2, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState() error = %v", err)
	}

	// Should be 32 hex characters (16 bytes)
	if len(state1) != 32 {
		t.Errorf("GenerateState() length = %d, want 32", len(state1))
	}

	// Should be unique
	if state1 == state2 {
		t.Error("GenerateState() returned same value twice")
	}
}
