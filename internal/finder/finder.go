// Package finder runs the whole movie lookup for a query: provider search,
// grouping, resolution, de-duplication and pagination.
package finder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"torrentstream/moviesearch/internal/domain"
	"torrentstream/moviesearch/internal/grouping"
	"torrentstream/moviesearch/internal/resolver"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	SourceProviders = "providers"
	SourceStore     = "store"
	SourceCache     = "cache"
)

type Searcher interface {
	Search(ctx context.Context, request domain.SearchRequest, maxRetries int) ([]domain.RawSearchResult, error)
}

type MovieResolver interface {
	ResolveAll(ctx context.Context, candidates []domain.TorrentCandidate) []*domain.TranslatedMovie
	Translate(ctx context.Context, movie domain.Movie) domain.TranslatedMovie
}

// MovieIndex lists stored movies by title along with the torrents they were
// resolved from.
type MovieIndex interface {
	SearchMovies(ctx context.Context, query string, limit int) ([]domain.Movie, error)
	TorrentsFor(ctx context.Context, movieID string) ([]domain.TorrentRecord, error)
}

type Config struct {
	Category      string
	InitialLimit  int
	MaxRetries    int
	Grouping      grouping.Options
	StoredFirst   bool
	CacheTTL      time.Duration
	CacheDisabled bool
}

type Option func(*Service)

func WithMovieIndex(index MovieIndex) Option {
	return func(s *Service) {
		s.index = index
	}
}

func WithRedisCache(backend *RedisCacheBackend) Option {
	return func(s *Service) {
		s.redis = backend
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

type Service struct {
	searcher Searcher
	resolver MovieResolver
	index    MovieIndex
	cfg      Config
	redis    *RedisCacheBackend
	cache    *responseCache
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(searcher Searcher, movieResolver MovieResolver, cfg Config, opts ...Option) *Service {
	if cfg.InitialLimit <= 0 {
		cfg.InitialLimit = 20
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Grouping == (grouping.Options{}) {
		cfg.Grouping = grouping.DefaultOptions()
	}
	s := &Service{
		searcher: searcher,
		resolver: movieResolver,
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if !cfg.CacheDisabled {
		s.cache = newResponseCache(cfg.CacheTTL, s.redis)
	}
	return s
}

// Find answers a query with one page of resolved movies. An empty outcome is
// domain.ErrNoResults. Stored movies answer first when StoredFirst is set.
func (s *Service) Find(ctx context.Context, request domain.FindRequest) (domain.FindResponse, error) {
	startedAt := s.now()
	query := strings.TrimSpace(request.Query)
	if query == "" {
		return domain.FindResponse{}, domain.ErrInvalidQuery
	}
	if request.Offset < 0 {
		return domain.FindResponse{}, domain.ErrInvalidOffset
	}
	limit := request.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)
	category := strings.TrimSpace(request.Category)
	if category == "" {
		category = s.cfg.Category
	}

	key := buildCacheKey(query, category)
	if s.cache != nil && !request.NoCache {
		if entry, ok := s.cache.lookup(ctx, key, startedAt); ok {
			return s.page(query, entry.Items, SourceCache, limit, request.Offset, startedAt), nil
		}
	}

	items, source, err := s.collect(ctx, query, category)
	if err != nil {
		return domain.FindResponse{}, err
	}
	if s.cache != nil {
		s.cache.store(ctx, key, cachedFind{Items: items, Source: source, StoredAt: s.now().UTC()}, s.now())
	}
	return s.page(query, items, source, limit, request.Offset, startedAt), nil
}

func (s *Service) collect(ctx context.Context, query, category string) ([]domain.TranslatedMovie, string, error) {
	if s.cfg.StoredFirst && s.index != nil {
		stored, err := s.fromStore(ctx, query)
		if err != nil {
			s.logger.Warn("stored movie lookup failed", slog.String("query", query), slog.String("error", err.Error()))
		} else if len(stored) > 0 {
			return stored, SourceStore, nil
		}
	}

	results, err := s.searcher.Search(ctx, domain.SearchRequest{
		Query:    query,
		Category: category,
		Limit:    s.cfg.InitialLimit,
	}, s.cfg.MaxRetries)
	if err != nil {
		return nil, "", err
	}

	candidates := grouping.Group(results, s.cfg.Grouping)
	resolved := s.resolver.ResolveAll(ctx, candidates)
	items := resolver.Dedupe(resolved)

	s.logger.Info("find pipeline finished",
		slog.String("query", query),
		slog.Int("results", len(results)),
		slog.Int("candidates", len(candidates)),
		slog.Int("movies", len(items)),
	)
	if len(items) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("%w: no movie resolved for %q", domain.ErrNoResults, query)
	}
	return items, SourceProviders, nil
}

func (s *Service) fromStore(ctx context.Context, query string) ([]domain.TranslatedMovie, error) {
	movies, err := s.index.SearchMovies(ctx, query, MaxPageSize)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	items := make([]domain.TranslatedMovie, 0, len(movies))
	for _, movie := range movies {
		item := s.resolver.Translate(ctx, movie)
		item.Torrent = s.storedTorrent(ctx, movie.ID)
		items = append(items, item)
	}
	return items, nil
}

// storedTorrent returns the first stored torrent of a movie, or nil when
// none is recorded.
func (s *Service) storedTorrent(ctx context.Context, movieID string) *domain.TorrentRef {
	records, err := s.index.TorrentsFor(ctx, movieID)
	if err != nil {
		s.logger.Debug("stored torrents unavailable", slog.String("movie", movieID), slog.String("error", err.Error()))
		return nil
	}
	if len(records) == 0 {
		return nil
	}
	return records[0].Ref()
}

func (s *Service) page(query string, items []domain.TranslatedMovie, source string, limit, offset int, startedAt time.Time) domain.FindResponse {
	total := len(items)
	start := min(offset, total)
	end := min(start+limit, total)
	pageItems := make([]domain.TranslatedMovie, 0, end-start)
	pageItems = append(pageItems, items[start:end]...)
	return domain.FindResponse{
		Query:     query,
		Items:     pageItems,
		Total:     total,
		Limit:     limit,
		Offset:    offset,
		HasMore:   end < total,
		Source:    source,
		ElapsedMS: s.now().Sub(startedAt).Milliseconds(),
	}
}
