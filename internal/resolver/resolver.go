// Package resolver maps grouped torrent candidates to canonical movies and
// their translated views.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"torrentstream/moviesearch/internal/domain"
	"torrentstream/moviesearch/internal/metrics"
)

const (
	defaultCallTimeout           = 15 * time.Second
	defaultResolveTimeout        = 45 * time.Second
	defaultConcurrency           = 6
	defaultTranslationCandidates = 5
)

var tracer = otel.Tracer("torrentstream/moviesearch/resolver")

// Store is the persistence the resolver reads through and writes back to.
// Implementations must tolerate concurrent upserts.
type Store interface {
	GetMovie(ctx context.Context, id string) (domain.Movie, error)
	FindMovie(ctx context.Context, title string, year int) (domain.Movie, error)
	UpsertMovie(ctx context.Context, movie domain.Movie) error
	GetTranslation(ctx context.Context, movieID string) (domain.Translation, error)
	UpsertTranslation(ctx context.Context, movieID string, translation domain.Translation) error
	UpsertTorrentRecord(ctx context.Context, candidate domain.TorrentCandidate, movieID string) error
}

// Catalog is the primary movie catalog.
type Catalog interface {
	SearchByTitle(ctx context.Context, title string, year int) ([]domain.Movie, error)
	LookupByID(ctx context.Context, id string) (domain.Movie, error)
}

// NameMatcher returns a best guess for a title. Only id, title, year and
// image are trusted.
type NameMatcher interface {
	FallbackByName(ctx context.Context, title string) (domain.Movie, error)
}

// ChainMatchers tries each matcher in order and returns the first match.
type ChainMatchers []NameMatcher

func (c ChainMatchers) FallbackByName(ctx context.Context, title string) (domain.Movie, error) {
	var errs []error
	for _, matcher := range c {
		if matcher == nil {
			continue
		}
		movie, err := matcher.FallbackByName(ctx, title)
		if err == nil && strings.TrimSpace(movie.ID) != "" {
			return movie, nil
		}
		if ctx.Err() != nil {
			return domain.Movie{}, ctx.Err()
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return domain.Movie{}, domain.ErrNotFound
	}
	return domain.Movie{}, errors.Join(append(errs, domain.ErrNotFound)...)
}

// Translator is the translation catalog. Every record carries the catalog id
// it cross-references.
type Translator interface {
	SearchByKeyword(ctx context.Context, title string) ([]string, error)
	FetchByID(ctx context.Context, id string) (domain.Translation, error)
}

// Outcome tags which stage of the chain identified a movie.
type Outcome int

const (
	NotFound Outcome = iota
	CacheHit
	CatalogHit
	FallbackHit
)

func (o Outcome) String() string {
	switch o {
	case CacheHit:
		return "cache_hit"
	case CatalogHit:
		return "catalog_hit"
	case FallbackHit:
		return "fallback_hit"
	default:
		return "not_found"
	}
}

type Option func(*Resolver)

func WithNameMatcher(matcher NameMatcher) Option {
	return func(r *Resolver) {
		r.matcher = matcher
	}
}

func WithTranslator(translator Translator) Option {
	return func(r *Resolver) {
		r.translator = translator
	}
}

// WithTimeouts bounds each collaborator call and each candidate's whole chain.
func WithTimeouts(call, resolve time.Duration) Option {
	return func(r *Resolver) {
		if call > 0 {
			r.callTimeout = call
		}
		if resolve > 0 {
			r.resolveTimeout = resolve
		}
	}
}

func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func WithTranslationCandidates(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.translationCandidates = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

type Resolver struct {
	store      Store
	catalog    Catalog
	matcher    NameMatcher
	translator Translator

	callTimeout           time.Duration
	resolveTimeout        time.Duration
	concurrency           int
	translationCandidates int

	flight singleflight.Group
	logger *slog.Logger
	now    func() time.Time
}

func New(store Store, catalog Catalog, opts ...Option) *Resolver {
	r := &Resolver{
		store:                 store,
		catalog:               catalog,
		callTimeout:           defaultCallTimeout,
		resolveTimeout:        defaultResolveTimeout,
		concurrency:           defaultConcurrency,
		translationCandidates: defaultTranslationCandidates,
		logger:                slog.Default(),
		now:                   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve runs the chain cache, catalog, fallback, persist, translate for one
// candidate. A candidate no stage can identify yields a *domain.ResolutionError.
// The secondary view is never empty: without a translation it mirrors the
// primary view.
func (r *Resolver) Resolve(ctx context.Context, candidate domain.TorrentCandidate) (domain.TranslatedMovie, error) {
	title := candidateTitle(candidate)
	ctx, span := tracer.Start(ctx, "resolver.Resolve", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	span.SetAttributes(
		attribute.String("movie.title", title),
		attribute.Int("movie.year", candidate.Release.Year),
	)

	key := flightKey(candidate)
	value, err, shared := r.flight.Do(key, func() (any, error) {
		return r.resolveMovie(ctx, candidate)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unresolved")
		return domain.TranslatedMovie{}, err
	}
	span.SetAttributes(attribute.Bool("resolver.shared", shared))

	pair := value.(domain.TranslatedMovie)
	pair.Torrent = candidate.Ref()
	if candidate.Result.HasSource() {
		if err := r.callStore(ctx, "torrent", func(callCtx context.Context) error {
			return r.store.UpsertTorrentRecord(callCtx, candidate, pair.Primary.ID)
		}); err != nil {
			r.logger.Warn("torrent record not stored",
				slog.String("movie", pair.Primary.ID),
				slog.String("torrent", candidate.Result.Title),
				slog.String("error", err.Error()),
			)
		}
	}
	return pair, nil
}

func (r *Resolver) resolveMovie(ctx context.Context, candidate domain.TorrentCandidate) (domain.TranslatedMovie, error) {
	title := candidateTitle(candidate)
	year := candidate.Release.Year

	movie, outcome, err := r.identify(ctx, candidate)
	metrics.ResolverOutcomesTotal.WithLabelValues(outcome.String()).Inc()
	trace.SpanFromContext(ctx).AddEvent("identified", trace.WithAttributes(
		attribute.String("resolver.outcome", outcome.String()),
		attribute.String("movie.id", movie.ID),
	))
	if err != nil {
		return domain.TranslatedMovie{}, &domain.ResolutionError{Title: title, Year: year, Err: err}
	}
	r.logger.Debug("candidate identified",
		slog.String("title", title),
		slog.Int("year", year),
		slog.String("movie", movie.ID),
		slog.String("outcome", outcome.String()),
	)

	r.persist(ctx, movie)
	pair, _ := r.translate(ctx, movie, movie.Title)
	return pair, nil
}

// identify walks the lookup stages in order and stops at the first accepted
// record. Context cancellation ends the walk as NotFound.
func (r *Resolver) identify(ctx context.Context, candidate domain.TorrentCandidate) (domain.Movie, Outcome, error) {
	title := candidateTitle(candidate)
	year := candidate.Release.Year
	knownID := strings.TrimSpace(candidate.Result.IMDbID)

	if movie, ok := r.fromCache(ctx, knownID, title, year); ok {
		return movie, CacheHit, nil
	}
	if err := ctx.Err(); err != nil {
		return domain.Movie{}, NotFound, err
	}
	if movie, ok := r.fromCatalog(ctx, knownID, title, year); ok {
		return movie, CatalogHit, nil
	}
	if err := ctx.Err(); err != nil {
		return domain.Movie{}, NotFound, err
	}
	if movie, ok := r.fromFallback(ctx, title); ok {
		return movie, FallbackHit, nil
	}
	if err := ctx.Err(); err != nil {
		return domain.Movie{}, NotFound, err
	}
	return domain.Movie{}, NotFound, domain.ErrNotFound
}

func (r *Resolver) fromCache(ctx context.Context, knownID, title string, year int) (domain.Movie, bool) {
	defer observeStage("cache", time.Now())

	var (
		movie domain.Movie
		err   error
	)
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	if knownID != "" {
		movie, err = r.store.GetMovie(callCtx, knownID)
	} else {
		movie, err = r.store.FindMovie(callCtx, title, year)
	}
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.Warn("movie cache lookup failed", slog.String("title", title), slog.String("error", err.Error()))
		}
		return domain.Movie{}, false
	}
	return movie, strings.TrimSpace(movie.ID) != ""
}

// fromCatalog accepts only complete records. A partial record is a miss.
func (r *Resolver) fromCatalog(ctx context.Context, knownID, title string, year int) (domain.Movie, bool) {
	if r.catalog == nil {
		return domain.Movie{}, false
	}
	defer observeStage("catalog", time.Now())

	if knownID != "" {
		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		movie, err := r.catalog.LookupByID(callCtx, knownID)
		cancel()
		if err == nil && movie.Complete() {
			return movie, true
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			r.logger.Warn("catalog id lookup failed", slog.String("id", knownID), slog.String("error", err.Error()))
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	movies, err := r.catalog.SearchByTitle(callCtx, title, year)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.Warn("catalog search failed", slog.String("title", title), slog.Int("year", year), slog.String("error", err.Error()))
		}
		return domain.Movie{}, false
	}
	for _, movie := range movies {
		if movie.Complete() {
			return movie, true
		}
		r.logger.Debug("incomplete catalog record skipped", slog.String("id", movie.ID), slog.String("title", title))
	}
	return domain.Movie{}, false
}

// fromFallback keeps only the minimal fields of a name match.
func (r *Resolver) fromFallback(ctx context.Context, title string) (domain.Movie, bool) {
	if r.matcher == nil {
		return domain.Movie{}, false
	}
	defer observeStage("fallback", time.Now())

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	match, err := r.matcher.FallbackByName(callCtx, title)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.Warn("fallback name match failed", slog.String("title", title), slog.String("error", err.Error()))
		}
		return domain.Movie{}, false
	}
	id := strings.TrimSpace(match.ID)
	if id == "" || strings.TrimSpace(match.Title) == "" {
		return domain.Movie{}, false
	}
	return domain.Movie{
		ID:    id,
		Title: match.Title,
		Year:  match.Year,
		Image: match.Image,
	}, true
}

// persist upserts the movie's catalog metadata. Failures are logged and the
// resolved movie is still returned. View and vote counters are owned by the
// store and never written from here.
func (r *Resolver) persist(ctx context.Context, movie domain.Movie) {
	if strings.TrimSpace(movie.ID) == "" {
		return
	}
	movie.Views, movie.Votes, movie.UserRating = 0, 0, 0
	defer observeStage("persist", time.Now())
	if movie.UpdatedAt.IsZero() {
		movie.UpdatedAt = r.now().UTC()
	}
	if err := r.callStore(ctx, "movie", func(callCtx context.Context) error {
		return r.store.UpsertMovie(callCtx, movie)
	}); err != nil {
		r.logger.Warn("movie not stored", slog.String("movie", movie.ID), slog.String("error", err.Error()))
	}
}

func (r *Resolver) callStore(ctx context.Context, op string, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	if err := fn(callCtx); err != nil {
		return domain.Transient("store "+op, err)
	}
	return nil
}

func observeStage(stage string, startedAt time.Time) {
	metrics.ResolverStageDuration.WithLabelValues(stage).Observe(time.Since(startedAt).Seconds())
}

func candidateTitle(candidate domain.TorrentCandidate) string {
	if title := strings.TrimSpace(candidate.Release.MovieTitle); title != "" {
		return title
	}
	return strings.TrimSpace(candidate.Release.CroppedTitle)
}

// flightKey groups concurrent resolutions of the same movie.
func flightKey(candidate domain.TorrentCandidate) string {
	if id := strings.TrimSpace(candidate.Result.IMDbID); id != "" {
		return "id:" + id
	}
	return "title:" + domain.TitleKey(candidateTitle(candidate)) + "|" + strconv.Itoa(candidate.Release.Year)
}
