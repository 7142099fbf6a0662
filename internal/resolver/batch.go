package resolver

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"torrentstream/moviesearch/internal/domain"
)

// ResolveAll resolves candidates concurrently. Slot i of the result holds the
// movie for candidates[i], or nil when that candidate failed. A failure or
// timeout on one candidate never affects the others.
func (r *Resolver) ResolveAll(ctx context.Context, candidates []domain.TorrentCandidate) []*domain.TranslatedMovie {
	results := make([]*domain.TranslatedMovie, len(candidates))
	if len(candidates) == 0 {
		return results
	}

	sem := semaphore.NewWeighted(int64(r.concurrency))
	var wg sync.WaitGroup
	for i, candidate := range candidates {
		wg.Add(1)
		go func(index int, current domain.TorrentCandidate) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			resolveCtx, cancel := context.WithTimeout(ctx, r.resolveTimeout)
			defer cancel()
			pair, err := r.Resolve(resolveCtx, current)
			if err != nil {
				level := slog.LevelWarn
				if errors.Is(err, context.Canceled) {
					level = slog.LevelDebug
				}
				r.logger.Log(ctx, level, "candidate not resolved",
					slog.String("torrent", current.Result.Title),
					slog.String("title", current.Release.MovieTitle),
					slog.Int("year", current.Release.Year),
					slog.String("error", err.Error()),
				)
				return
			}
			results[index] = &pair
		}(i, candidate)
	}
	wg.Wait()
	return results
}

// Dedupe drops nil entries and keeps the first movie per canonical id, in
// input order.
func Dedupe(movies []*domain.TranslatedMovie) []domain.TranslatedMovie {
	out := make([]domain.TranslatedMovie, 0, len(movies))
	seen := make(map[string]struct{}, len(movies))
	for _, movie := range movies {
		if movie == nil {
			continue
		}
		if _, exists := seen[movie.Primary.ID]; exists {
			continue
		}
		seen[movie.Primary.ID] = struct{}{}
		out = append(out, *movie)
	}
	return out
}
