// Package config loads moodtunes settings from defaults, an optional config
// file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. MOODTUNES_SERVER_ADDR.
const EnvPrefix = "MOODTUNES"

// Storage drivers.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

// Classifier kinds.
const (
	ClassifierLexicon   = "lexicon"
	ClassifierEmbedding = "embedding"
	ClassifierAnalyzer  = "analyzer"
	ClassifierOpenAI    = "openai"
)

// Validation errors.
var (
	ErrMissingSpotifyCredentials = errors.New("SPOTIFY_ID and SPOTIFY_SECRET must be set")
	ErrUnknownStorage            = errors.New("unknown storage driver")
	ErrMissingDatabaseURL        = errors.New("postgres storage requires DATABASE_URL")
	ErrUnknownClassifier         = errors.New("unknown classifier")
	ErrMissingAnalyzerURL        = errors.New("analyzer classifier requires analyzer.url")
	ErrMissingOpenAIKey          = errors.New("classifier requires OPENAI_API_KEY")
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Spotify    SpotifyConfig    `mapstructure:"spotify"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Analyzer   AnalyzerConfig   `mapstructure:"analyzer"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	LastFM     LastFMConfig     `mapstructure:"lastfm"`
	Recommend  RecommendConfig  `mapstructure:"recommend"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	FrontendURL     string        `mapstructure:"frontend_url"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	IdleSessionTTL  time.Duration `mapstructure:"idle_session_ttl"`
}

type SpotifyConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
	Market       string `mapstructure:"market"`
}

type StorageConfig struct {
	Driver       string `mapstructure:"driver"`
	DatabaseURL  string `mapstructure:"database_url"`
	SQLitePath   string `mapstructure:"sqlite_path"`
	HistoryLimit int    `mapstructure:"history_limit"`
}

type ClassifierConfig struct {
	Kind string `mapstructure:"kind"`
	// Fallback keeps the local lexicon classifier behind remote kinds.
	Fallback bool `mapstructure:"fallback"`
}

type AnalyzerConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type OpenAIConfig struct {
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	EmbeddingModel string  `mapstructure:"embedding_model"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	Temperature    float64 `mapstructure:"temperature"`
}

type LastFMConfig struct {
	APIKey      string `mapstructure:"api_key"`
	Concurrency int    `mapstructure:"concurrency"`
	MaxTags     int    `mapstructure:"max_tags"`
}

type RecommendConfig struct {
	CallTimeout   time.Duration `mapstructure:"call_timeout"`
	ArtistLimit   int           `mapstructure:"artist_limit"`
	ProfileTTL    time.Duration `mapstructure:"profile_ttl"`
	RefreshMargin time.Duration `mapstructure:"refresh_margin"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// envAliases binds keys to the unprefixed variables commonly set in
// deployments. The prefixed form still wins when both are set.
var envAliases = map[string]string{
	"spotify.client_id":     "SPOTIFY_ID",
	"spotify.client_secret": "SPOTIFY_SECRET",
	"spotify.redirect_url":  "SPOTIFY_REDIRECT_URL",
	"storage.database_url":  "DATABASE_URL",
	"openai.api_key":        "OPENAI_API_KEY",
	"lastfm.api_key":        "LASTFM_API_KEY",
	"server.addr":           "PORT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.frontend_url", "http://localhost:3000")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.idle_session_ttl", 24*time.Hour)

	v.SetDefault("spotify.client_id", "")
	v.SetDefault("spotify.client_secret", "")
	v.SetDefault("spotify.redirect_url", "http://127.0.0.1:8080/callback")
	v.SetDefault("spotify.market", "US")

	v.SetDefault("storage.driver", StorageMemory)
	v.SetDefault("storage.database_url", "")
	v.SetDefault("storage.sqlite_path", "moodtunes.db")
	v.SetDefault("storage.history_limit", 200)

	v.SetDefault("classifier.kind", ClassifierLexicon)
	v.SetDefault("classifier.fallback", true)

	v.SetDefault("analyzer.url", "")
	v.SetDefault("analyzer.timeout", 5*time.Second)

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("openai.max_tokens", 150)
	v.SetDefault("openai.temperature", 0.2)

	v.SetDefault("lastfm.api_key", "")
	v.SetDefault("lastfm.concurrency", 5)
	v.SetDefault("lastfm.max_tags", 5)

	v.SetDefault("recommend.call_timeout", 8*time.Second)
	v.SetDefault("recommend.artist_limit", 20)
	v.SetDefault("recommend.profile_ttl", 15*time.Minute)
	v.SetDefault("recommend.refresh_margin", 60*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load builds the configuration. Variables from a .env file in the working
// directory are loaded first without overriding the environment. path names
// a config file; when empty, config.yaml is looked up in the working
// directory and skipped if absent.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, alias := range envAliases {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, alias); err != nil {
			return nil, fmt.Errorf("binding %s: %w", alias, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	// PORT carries a bare port number.
	if cfg.Server.Addr != "" && !strings.Contains(cfg.Server.Addr, ":") {
		cfg.Server.Addr = ":" + cfg.Server.Addr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the selected drivers have what they need.
func (c *Config) Validate() error {
	if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" {
		return ErrMissingSpotifyCredentials
	}

	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite:
	case StoragePostgres:
		if c.Storage.DatabaseURL == "" {
			return ErrMissingDatabaseURL
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStorage, c.Storage.Driver)
	}

	switch c.Classifier.Kind {
	case ClassifierLexicon:
	case ClassifierAnalyzer:
		if c.Analyzer.URL == "" {
			return ErrMissingAnalyzerURL
		}
	case ClassifierEmbedding, ClassifierOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("%w: %s", ErrMissingOpenAIKey, c.Classifier.Kind)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownClassifier, c.Classifier.Kind)
	}
	return nil
}
