package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	apihttp "torrentstream/moviesearch/internal/api/http"
	"torrentstream/moviesearch/internal/app"
	"torrentstream/moviesearch/internal/finder"
	"torrentstream/moviesearch/internal/grouping"
	"torrentstream/moviesearch/internal/metrics"
	"torrentstream/moviesearch/internal/providers/common"
	"torrentstream/moviesearch/internal/providers/dht"
	"torrentstream/moviesearch/internal/providers/imdb"
	"torrentstream/moviesearch/internal/providers/kinopoisk"
	"torrentstream/moviesearch/internal/providers/piratebay"
	"torrentstream/moviesearch/internal/providers/tmdb"
	"torrentstream/moviesearch/internal/providers/torrentfile"
	"torrentstream/moviesearch/internal/providers/x1337"
	"torrentstream/moviesearch/internal/providers/yts"
	"torrentstream/moviesearch/internal/release"
	"torrentstream/moviesearch/internal/repository/memory"
	mongorepo "torrentstream/moviesearch/internal/repository/mongo"
	"torrentstream/moviesearch/internal/resolver"
	"torrentstream/moviesearch/internal/search"
	"torrentstream/moviesearch/internal/telemetry"
)

// movieStore is satisfied by both the mongo repository and the in-memory store.
type movieStore interface {
	resolver.Store
	finder.MovieIndex
}

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "moviesearch")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "moviesearch"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Duration("requestTimeout", cfg.RequestTimeout),
		slog.Duration("resolveTimeout", cfg.ResolveTimeout),
		slog.String("category", cfg.SearchCategory),
		slog.Int("maxRetries", cfg.SearchMaxRetries),
		slog.String("piratebayEndpoint", cfg.PirateBayEndpoint),
		slog.String("x1337Endpoint", cfg.X1337Endpoint),
		slog.String("ytsEndpoint", cfg.YTSEndpoint),
		slog.String("dhtEndpoint", cfg.DHTEndpoint),
		slog.Bool("hasMongo", cfg.MongoURI != ""),
		slog.Bool("hasRedis", cfg.RedisURL != ""),
		slog.Bool("hasTMDBKey", cfg.TMDBAPIKey != ""),
		slog.Bool("hasKinopoiskKey", cfg.KinopoiskAPIKey != ""),
		slog.Duration("findCacheTTL", cfg.FindCacheTTL),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := connectRedis(rootCtx, cfg, logger)
	store, closeStore := buildStore(rootCtx, cfg, logger)
	defer closeStore()

	searchService := buildSearchService(cfg, logger)

	resolverOpts := []resolver.Option{
		resolver.WithTimeouts(cfg.RequestTimeout, cfg.ResolveTimeout),
		resolver.WithConcurrency(cfg.ResolveConcurrency),
		resolver.WithTranslationCandidates(cfg.TranslationCandidates),
		resolver.WithLogger(logger),
	}
	imdbClient := imdb.NewClient(imdb.Config{
		SuggestURL: cfg.IMDbSuggestURL,
		TitleURL:   cfg.IMDbTitleURL,
		Client:     common.NewHTTPClient(cfg.RequestTimeout),
		Redis:      redisClient,
		CacheTTL:   cfg.CatalogCacheTTL,
	})
	matchers := resolver.ChainMatchers{imdbClient}
	if tmdbClient := buildTMDBClient(cfg, redisClient, logger); tmdbClient != nil {
		matchers = append(matchers, tmdbClient)
	}
	resolverOpts = append(resolverOpts, resolver.WithNameMatcher(matchers))
	if kp := buildKinopoiskClient(cfg, logger); kp != nil {
		resolverOpts = append(resolverOpts, resolver.WithTranslator(kp))
	}
	movieResolver := resolver.New(store, imdbClient, resolverOpts...)

	finderOpts := []finder.Option{
		finder.WithMovieIndex(store),
		finder.WithLogger(logger),
	}
	if redisClient != nil && !cfg.FindCacheDisabled {
		finderOpts = append(finderOpts, finder.WithRedisCache(finder.NewRedisCacheBackend(redisClient)))
	}
	finderService := finder.NewService(searchService, movieResolver, finder.Config{
		Category:     cfg.SearchCategory,
		InitialLimit: cfg.SearchInitialLimit,
		MaxRetries:   cfg.SearchMaxRetries,
		Grouping: grouping.Options{
			SizeCeilingGB: cfg.GroupSizeCeilingGB,
			SizeStepGB:    cfg.GroupSizeStepGB,
			MaxExpansions: cfg.GroupMaxExpansions,
		},
		StoredFirst:   cfg.FindStoredFirst,
		CacheTTL:      cfg.FindCacheTTL,
		CacheDisabled: cfg.FindCacheDisabled,
	}, finderOpts...)

	handler := apihttp.NewServer(finderService,
		apihttp.WithLogger(logger),
		apihttp.WithTranslator(movieResolver),
		apihttp.WithProviders(searchService),
		apihttp.WithRateLimit(cfg.HTTPRateLimit, cfg.HTTPRateBurst),
	).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// A cold /find resolves every candidate and can run past the resolve timeout.
		WriteTimeout: cfg.ResolveTimeout + cfg.RequestTimeout*time.Duration(cfg.SearchMaxRetries+1),
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("movie search service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Duration("timeout", cfg.RequestTimeout),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("movie search service stopped")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildSearchService(cfg app.Config, logger *slog.Logger) *search.Service {
	providers := []search.Provider{
		piratebay.NewProvider(piratebay.Config{
			Endpoint:  cfg.PirateBayEndpoint,
			UserAgent: cfg.UserAgent,
			Client:    common.NewHTTPClient(cfg.RequestTimeout),
		}),
		x1337.NewProvider(x1337.Config{
			Endpoint:  cfg.X1337Endpoint,
			UserAgent: cfg.UserAgent,
			Client:    common.NewHTTPClient(cfg.RequestTimeout),
		}),
		yts.NewProvider(yts.Config{
			Endpoint:  cfg.YTSEndpoint,
			UserAgent: cfg.UserAgent,
			Client:    common.NewHTTPClient(cfg.RequestTimeout),
		}),
		dht.NewProvider(dht.Config{
			Endpoint:  cfg.DHTEndpoint,
			UserAgent: cfg.UserAgent,
			Client:    common.NewHTTPClient(cfg.RequestTimeout),
		}),
	}

	opts := []search.ServiceOption{
		search.WithFilter(release.NewFilter(release.FilterConfig{
			QualityMarkers: cfg.QualityMarkers,
			AdultMarkers:   cfg.AdultMarkers,
			MaxSizeGB:      cfg.MaxReleaseSizeGB,
		})),
		search.WithLimitIncrement(cfg.SearchLimitIncrement),
		search.WithProviderRateLimit(cfg.ProviderRateLimit, 1),
		search.WithLogger(logger),
	}
	if cfg.FetchDescriptors {
		fetcher := torrentfile.NewFetcher(torrentfile.Config{
			Mirrors:   cfg.TorrentCacheEndpoints,
			UserAgent: cfg.UserAgent,
			Client:    common.NewHTTPClient(cfg.RequestTimeout),
		})
		opts = append(opts,
			search.WithDescriptorFetcher(fetcher),
			search.WithDescriptorLimits(cfg.RequestTimeout, cfg.DescriptorConcurrency),
		)
	}
	return search.NewService(providers, cfg.RequestTimeout, opts...)
}

func connectRedis(ctx context.Context, cfg app.Config, logger *slog.Logger) *redis.Client {
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, using in-memory caches only", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(redisOpts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not reachable, using in-memory caches only", slog.String("error", err.Error()))
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return client
}

// buildStore connects to MongoDB when configured and falls back to the
// in-memory store otherwise.
func buildStore(ctx context.Context, cfg app.Config, logger *slog.Logger) (movieStore, func()) {
	noop := func() {}
	if cfg.MongoURI == "" {
		logger.Info("mongo not configured, using in-memory movie store")
		return memory.NewStore(), noop
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongorepo.Connect(connectCtx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err == nil {
		err = client.Ping(connectCtx, nil)
	}
	if err != nil {
		logger.Warn("mongo not reachable, using in-memory movie store", slog.String("error", err.Error()))
		disconnect(client, logger)
		return memory.NewStore(), noop
	}

	repo := mongorepo.NewRepository(client, cfg.MongoDB)
	if err := repo.EnsureIndexes(connectCtx); err != nil {
		logger.Warn("mongo index setup failed", slog.String("error", err.Error()))
	}
	logger.Info("mongo connected", slog.String("db", cfg.MongoDB))
	return repo, func() { disconnect(client, logger) }
}

func disconnect(client *mongo.Client, logger *slog.Logger) {
	if client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		logger.Warn("mongo disconnect failed", slog.String("error", err.Error()))
	}
}

func buildTMDBClient(cfg app.Config, redisClient *redis.Client, logger *slog.Logger) *tmdb.Client {
	if cfg.TMDBAPIKey == "" {
		logger.Info("tmdb api key not configured, tmdb name fallback disabled")
		return nil
	}
	client := tmdb.NewClient(tmdb.Config{
		APIKey:   cfg.TMDBAPIKey,
		BaseURL:  cfg.TMDBBaseURL,
		Client:   common.NewHTTPClient(cfg.RequestTimeout),
		Redis:    redisClient,
		CacheTTL: cfg.CatalogCacheTTL,
	})
	logger.Info("tmdb client initialized", slog.Bool("enabled", client.Enabled()))
	return client
}

func buildKinopoiskClient(cfg app.Config, logger *slog.Logger) *kinopoisk.Client {
	if cfg.KinopoiskAPIKey == "" {
		logger.Info("kinopoisk api key not configured, translations disabled")
		return nil
	}
	return kinopoisk.NewClient(kinopoisk.Config{
		APIKey:  cfg.KinopoiskAPIKey,
		BaseURL: cfg.KinopoiskBaseURL,
		RPS:     cfg.KinopoiskRPS,
		Client:  common.NewHTTPClient(cfg.RequestTimeout),
	})
}

var (
	_ resolver.Catalog     = (*imdb.Client)(nil)
	_ resolver.NameMatcher = (*tmdb.Client)(nil)
	_ resolver.Translator  = (*kinopoisk.Client)(nil)
)
