package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func setCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("SPOTIFY_ID", "client-id")
	t.Setenv("SPOTIFY_SECRET", "client-secret")
}

func TestLoad_Defaults(t *testing.T) {
	setCredentials(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Spotify.ClientID != "client-id" || cfg.Spotify.ClientSecret != "client-secret" {
		t.Errorf("Spotify = %+v, want credentials from env", cfg.Spotify)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Storage.Driver != StorageMemory {
		t.Errorf("Storage.Driver = %q, want memory", cfg.Storage.Driver)
	}
	if cfg.Classifier.Kind != ClassifierLexicon || !cfg.Classifier.Fallback {
		t.Errorf("Classifier = %+v, want lexicon with fallback", cfg.Classifier)
	}
	if cfg.Recommend.CallTimeout != 8*time.Second {
		t.Errorf("Recommend.CallTimeout = %v, want 8s", cfg.Recommend.CallTimeout)
	}
	if cfg.Recommend.RefreshMargin != time.Minute {
		t.Errorf("Recommend.RefreshMargin = %v, want 1m", cfg.Recommend.RefreshMargin)
	}
	if !slices.Equal(cfg.Server.AllowedOrigins, []string{"http://localhost:3000"}) {
		t.Errorf("Server.AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	setCredentials(t)
	t.Setenv("MOODTUNES_STORAGE_DRIVER", "sqlite")
	t.Setenv("MOODTUNES_LOG_LEVEL", "debug")
	t.Setenv("MOODTUNES_RECOMMEND_PROFILE_TTL", "2m")
	t.Setenv("PORT", "9090")
	t.Setenv("LASTFM_API_KEY", "lastfm-key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Storage.Driver != StorageSQLite {
		t.Errorf("Storage.Driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Recommend.ProfileTTL != 2*time.Minute {
		t.Errorf("Recommend.ProfileTTL = %v, want 2m", cfg.Recommend.ProfileTTL)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q, want :9090", cfg.Server.Addr)
	}
	if cfg.LastFM.APIKey != "lastfm-key" {
		t.Errorf("LastFM.APIKey = %q, want lastfm-key", cfg.LastFM.APIKey)
	}
}

func TestLoad_PrefixedEnvWinsOverAlias(t *testing.T) {
	setCredentials(t)
	t.Setenv("MOODTUNES_SPOTIFY_CLIENT_ID", "prefixed")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Spotify.ClientID != "prefixed" {
		t.Errorf("Spotify.ClientID = %q, want prefixed", cfg.Spotify.ClientID)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	setCredentials(t)

	path := filepath.Join(t.TempDir(), "moodtunes.yaml")
	content := `
server:
  addr: "127.0.0.1:9000"
classifier:
  kind: analyzer
analyzer:
  url: http://localhost:5000
  timeout: 3s
recommend:
  artist_limit: 10
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Classifier.Kind != ClassifierAnalyzer || cfg.Analyzer.URL != "http://localhost:5000" {
		t.Errorf("classifier = %+v, analyzer = %+v", cfg.Classifier, cfg.Analyzer)
	}
	if cfg.Analyzer.Timeout != 3*time.Second {
		t.Errorf("Analyzer.Timeout = %v, want 3s", cfg.Analyzer.Timeout)
	}
	if cfg.Recommend.ArtistLimit != 10 {
		t.Errorf("Recommend.ArtistLimit = %d, want 10", cfg.Recommend.ArtistLimit)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	setCredentials(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() should fail for a missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Spotify:    SpotifyConfig{ClientID: "id", ClientSecret: "secret"},
			Storage:    StorageConfig{Driver: StorageMemory},
			Classifier: ClassifierConfig{Kind: ClassifierLexicon},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(*Config) {}, nil},
		{"missing spotify secret", func(c *Config) { c.Spotify.ClientSecret = "" }, ErrMissingSpotifyCredentials},
		{"unknown storage", func(c *Config) { c.Storage.Driver = "redis" }, ErrUnknownStorage},
		{"postgres without url", func(c *Config) { c.Storage.Driver = StoragePostgres }, ErrMissingDatabaseURL},
		{"postgres with url", func(c *Config) {
			c.Storage.Driver = StoragePostgres
			c.Storage.DatabaseURL = "postgres://localhost/moodtunes"
		}, nil},
		{"unknown classifier", func(c *Config) { c.Classifier.Kind = "vader" }, ErrUnknownClassifier},
		{"analyzer without url", func(c *Config) { c.Classifier.Kind = ClassifierAnalyzer }, ErrMissingAnalyzerURL},
		{"openai without key", func(c *Config) { c.Classifier.Kind = ClassifierOpenAI }, ErrMissingOpenAIKey},
		{"embedding without key", func(c *Config) { c.Classifier.Kind = ClassifierEmbedding }, ErrMissingOpenAIKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
