package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"torrentstream/moviesearch/internal/domain"
	"torrentstream/moviesearch/internal/metrics"
)

// translate pairs the movie with its translated view. A stored translation
// wins. Otherwise keyword candidates are fetched and the first whose
// cross-reference equals the movie id is stored and used. The boolean is
// false when the secondary view mirrors the primary.
func (r *Resolver) translate(ctx context.Context, movie domain.Movie, keyword string) (domain.TranslatedMovie, bool) {
	defer observeStage("translate", time.Now())
	pair := domain.Untranslated(movie)

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	stored, err := r.store.GetTranslation(callCtx, movie.ID)
	cancel()
	if err == nil {
		metrics.TranslationsTotal.WithLabelValues("stored").Inc()
		pair.Secondary = pair.Primary.Localize(stored)
		return pair, true
	}
	if !errors.Is(err, domain.ErrNotFound) {
		r.logger.Warn("stored translation lookup failed", slog.String("movie", movie.ID), slog.String("error", err.Error()))
	}

	translation, err := r.searchTranslation(ctx, movie.ID, keyword)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.Warn("translation search failed", slog.String("movie", movie.ID), slog.String("error", err.Error()))
		}
		metrics.TranslationsTotal.WithLabelValues("untranslated").Inc()
		return pair, false
	}

	if err := r.callStore(ctx, "translation", func(callCtx context.Context) error {
		return r.store.UpsertTranslation(callCtx, movie.ID, translation)
	}); err != nil {
		r.logger.Warn("translation not stored", slog.String("movie", movie.ID), slog.String("error", err.Error()))
	}
	metrics.TranslationsTotal.WithLabelValues("matched").Inc()
	pair.Secondary = pair.Primary.Localize(translation)
	return pair, true
}

func (r *Resolver) searchTranslation(ctx context.Context, movieID, keyword string) (domain.Translation, error) {
	if r.translator == nil {
		return domain.Translation{}, domain.ErrNotFound
	}
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return domain.Translation{}, domain.ErrNotFound
	}

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	ids, err := r.translator.SearchByKeyword(callCtx, keyword)
	cancel()
	if err != nil {
		return domain.Translation{}, err
	}

	for i, id := range ids {
		if i >= r.translationCandidates {
			break
		}
		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		translation, err := r.translator.FetchByID(callCtx, id)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return domain.Translation{}, ctx.Err()
			}
			continue
		}
		if strings.EqualFold(strings.TrimSpace(translation.IMDbID), movieID) {
			return translation, nil
		}
	}
	return domain.Translation{}, fmt.Errorf("translation for %s: %w", movieID, domain.ErrNotFound)
}

// TranslateByID returns the translated pair for a stored or catalog movie.
// It fails with domain.ErrNotFound when no cross-referenced translation
// exists.
func (r *Resolver) TranslateByID(ctx context.Context, id, title string) (domain.TranslatedMovie, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.TranslatedMovie{}, domain.ErrInvalidMovie
	}
	ctx, span := tracer.Start(ctx, "resolver.TranslateByID")
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	movie, err := r.store.GetMovie(callCtx, id)
	cancel()
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.TranslatedMovie{}, err
		}
		movie = r.lookupForTranslation(ctx, id, title)
	}

	keyword := strings.TrimSpace(title)
	if keyword == "" {
		keyword = movie.Title
	}
	pair, translated := r.translate(ctx, movie, keyword)
	if !translated {
		return domain.TranslatedMovie{}, fmt.Errorf("translation for %s: %w", id, domain.ErrNotFound)
	}
	return pair, nil
}

// lookupForTranslation fetches an unstored movie from the catalog and keeps
// it. Without a catalog answer a minimal record carries the id and title.
func (r *Resolver) lookupForTranslation(ctx context.Context, id, title string) domain.Movie {
	if r.catalog != nil {
		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		movie, err := r.catalog.LookupByID(callCtx, id)
		cancel()
		if err == nil && movie.Complete() {
			r.persist(ctx, movie)
			return movie
		}
	}
	return domain.Movie{ID: id, Title: strings.TrimSpace(title)}
}

// Translate pairs an already identified movie with its translated view.
func (r *Resolver) Translate(ctx context.Context, movie domain.Movie) domain.TranslatedMovie {
	pair, _ := r.translate(ctx, movie, movie.Title)
	return pair
}
