// Command moodtunes runs the mood-based music recommender API.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/justestif/moodtunes/internal/affinity"
	"github.com/justestif/moodtunes/internal/auth"
	"github.com/justestif/moodtunes/internal/chat"
	"github.com/justestif/moodtunes/internal/config"
	"github.com/justestif/moodtunes/internal/db"
	"github.com/justestif/moodtunes/internal/emotion"
	"github.com/justestif/moodtunes/internal/history"
	"github.com/justestif/moodtunes/internal/lastfm"
	"github.com/justestif/moodtunes/internal/logging"
	"github.com/justestif/moodtunes/internal/reply"
	"github.com/justestif/moodtunes/internal/sentiment"
	"github.com/justestif/moodtunes/internal/session"
	"github.com/justestif/moodtunes/internal/spotify"
	"github.com/justestif/moodtunes/internal/sqlite"
	"github.com/justestif/moodtunes/internal/tags"
	"github.com/justestif/moodtunes/internal/tracks"
	"github.com/justestif/moodtunes/internal/web"
)

// janitorInterval is how often idle sessions and stale tags are purged.
const janitorInterval = time.Hour

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a config file (default ./config.yaml if present)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	authenticator, err := auth.New(auth.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RedirectURL:  cfg.Spotify.RedirectURL,
	})
	if err != nil {
		return fmt.Errorf("creating authenticator: %w", err)
	}

	providerOpts := []spotify.Option{
		spotify.WithMarket(cfg.Spotify.Market),
		spotify.WithRetry(true),
		spotify.WithLogger(logger),
	}
	if src := newTagSource(cfg, st.db, logger); src != nil {
		providerOpts = append(providerOpts, spotify.WithTagSource(src))
	}
	provider := spotify.NewProvider(providerOpts...)

	classifier, err := newClassifier(ctx, cfg, logger)
	if err != nil {
		return err
	}

	guard := session.NewGuard(st.sessions, authenticator,
		session.WithMargin(cfg.Recommend.RefreshMargin),
		session.WithLogger(logger))

	profiles := affinity.NewSupplier(
		affinity.WithArtistLimit(cfg.Recommend.ArtistLimit),
		affinity.WithCacheTTL(cfg.Recommend.ProfileTTL),
		affinity.WithLogger(logger))

	seed := uint64(time.Now().UnixNano())
	aggregator := tracks.New(
		tracks.WithConfig(tracks.Config{CallTimeout: cfg.Recommend.CallTimeout}),
		tracks.WithShuffle(rand.NewPCG(seed, seed>>1)),
		tracks.WithLogger(logger))

	svc := chat.NewService(guard, provider, classifier, aggregator,
		chat.WithProfiles(profiles),
		chat.WithHistory(st.history),
		chat.WithComposer(reply.New(reply.WithVariety(rand.NewPCG(seed>>1, seed)))),
		chat.WithLogger(logger))

	handlers := web.NewHandlers(web.HandlersConfig{
		Auth:        authenticator,
		Sessions:    guard,
		Provider:    provider,
		Chat:        svc,
		FrontendURL: cfg.Server.FrontendURL,
		Logger:      logger,
	})
	server := web.NewServer(web.ServerConfig{
		Addr:            cfg.Server.Addr,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Logger:          logger,
	}, handlers)

	if st.db != nil {
		go janitor(ctx, st.db, cfg.Server.IdleSessionTTL, logger)
	}

	logger.Info("moodtunes ready",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("classifier", cfg.Classifier.Kind),
		zap.Bool("lastfm", cfg.LastFM.APIKey != ""))

	return server.Run(ctx)
}

// stores holds the credential and history stores for the configured driver.
// db is set only for postgres.
type stores struct {
	sessions session.Store
	history  history.Store
	db       *db.DB
	close    func()
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		database, err := db.New(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		if err := database.Migrate(ctx); err != nil {
			database.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
		return &stores{
			sessions: session.NewDBStore(database),
			history:  history.NewDBStore(database),
			db:       database,
			close:    database.Close,
		}, nil

	case config.StorageSQLite:
		store, err := sqlite.NewStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &stores{
			sessions: store.Sessions(),
			history:  store.History(),
			close: func() {
				if err := store.Close(); err != nil {
					logger.Warn("closing sqlite store", zap.Error(err))
				}
			},
		}, nil

	default:
		return &stores{
			sessions: session.NewMemoryStore(),
			history:  history.NewMemoryStore(cfg.Storage.HistoryLimit),
			close:    func() {},
		}, nil
	}
}

// newTagSource returns the Last.fm tag source, or nil without an API key.
// Tags are persisted when a database is available.
func newTagSource(cfg *config.Config, database *db.DB, logger *zap.Logger) spotify.TagSource {
	lfmCfg, err := lastfm.NewConfig(cfg.LastFM.APIKey)
	if err != nil {
		return nil
	}

	var fetcher tags.TagFetcher = lastfm.NewClient(lfmCfg)
	if database != nil {
		fetcher = tags.NewCachedTagFetcher(database.ArtistTags(), fetcher)
	}
	return tags.NewService(fetcher,
		tags.WithConcurrency(cfg.LastFM.Concurrency),
		tags.WithMaxTags(cfg.LastFM.MaxTags),
		tags.WithLogger(logger))
}

func newClassifier(ctx context.Context, cfg *config.Config, logger *zap.Logger) (emotion.Classifier, error) {
	local := emotion.NewLocal(nil)

	var remote emotion.Classifier
	switch cfg.Classifier.Kind {
	case config.ClassifierLexicon:
		return local, nil

	case config.ClassifierEmbedding:
		scorer := sentiment.LoadEmbeddingScorer(ctx,
			openai.NewClient(cfg.OpenAI.APIKey),
			sentiment.NewLexiconScorer(),
			sentiment.WithModel(cfg.OpenAI.EmbeddingModel),
			sentiment.WithLogger(logger))
		return emotion.NewLocal(scorer), nil

	case config.ClassifierAnalyzer:
		remote = emotion.NewAnalyzer(cfg.Analyzer.URL, local,
			emotion.WithAnalyzerTimeout(cfg.Analyzer.Timeout),
			emotion.WithAnalyzerLogger(logger))

	case config.ClassifierOpenAI:
		remote = emotion.NewOpenAI(openai.NewClient(cfg.OpenAI.APIKey), local,
			emotion.WithChatModel(cfg.OpenAI.Model),
			emotion.WithMaxTokens(cfg.OpenAI.MaxTokens),
			emotion.WithTemperature(cfg.OpenAI.Temperature),
			emotion.WithOpenAILogger(logger))

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownClassifier, cfg.Classifier.Kind)
	}

	if cfg.Classifier.Fallback {
		return emotion.NewFallback(remote, local, logger), nil
	}
	return remote, nil
}

// janitor purges idle sessions (and their messages) and stale artist tags.
func janitor(ctx context.Context, database *db.DB, idleTTL time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := time.Now()
		if idleTTL > 0 {
			n, err := database.Sessions().DeleteIdle(ctx, now.Add(-idleTTL))
			if err != nil {
				logger.Warn("purging idle sessions", zap.Error(err))
			} else if n > 0 {
				logger.Info("purged idle sessions", zap.Int64("count", n))
			}
		}

		n, err := database.ArtistTags().DeleteStale(ctx, now.Add(-tags.CacheTTL))
		if err != nil {
			logger.Warn("purging stale tags", zap.Error(err))
		} else if n > 0 {
			logger.Info("purged stale tags", zap.Int64("count", n))
		}
	}
}
