package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"torrentstream/moviesearch/internal/domain"
	"torrentstream/moviesearch/internal/metrics"
)

// maxConcurrentProviders limits the number of provider queries that can run simultaneously.
const maxConcurrentProviders = 10

// Search queries every provider with the current limit and keeps the results
// the filter accepts. An empty accepted set grows the limit by the configured
// increment and tries again, at most maxRetries more times. Exhaustion yields
// domain.ErrNoResults. Descriptors are fetched for accepted results only.
func (s *Service) Search(ctx context.Context, request domain.SearchRequest, maxRetries int) ([]domain.RawSearchResult, error) {
	query := strings.TrimSpace(request.Query)
	if query == "" {
		return nil, domain.ErrInvalidQuery
	}
	if len(s.order) == 0 {
		return nil, domain.ErrNoProviders
	}

	limit := request.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		startedAt := time.Now()
		results, searchErr := s.searchProviders(ctx, domain.SearchRequest{
			Query:    query,
			Category: request.Category,
			Limit:    limit,
		})
		unique := dedupeByInfoHash(results)
		accepted := s.filter.Apply(unique)
		if len(accepted) == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}

		s.logger.Debug("provider search pass",
			slog.String("query", query),
			slog.Int("attempt", attempt),
			slog.Int("limit", limit),
			slog.Int("received", len(unique)),
			slog.Int("accepted", len(accepted)),
			slog.Duration("elapsed", time.Since(startedAt)),
		)

		if len(accepted) > 0 {
			s.attachDescriptors(ctx, accepted)
			metrics.SearchOutcomesTotal.WithLabelValues("ok").Inc()
			return accepted, nil
		}

		if maxRetries <= 0 {
			metrics.SearchOutcomesTotal.WithLabelValues("exhausted").Inc()
			if searchErr != nil {
				return nil, fmt.Errorf("%w: %q after %d attempts: %v", domain.ErrNoResults, query, attempt, searchErr)
			}
			return nil, fmt.Errorf("%w: %q after %d attempts", domain.ErrNoResults, query, attempt)
		}
		maxRetries--
		limit += s.limitIncrement
		metrics.SearchExpansionsTotal.Inc()
	}
}

// searchProviders fans out to all providers. Results keep provider
// registration order. The error is non-nil only when every provider failed.
func (s *Service) searchProviders(ctx context.Context, request domain.SearchRequest) ([]domain.RawSearchResult, error) {
	perProvider := make([][]domain.RawSearchResult, len(s.order))
	errs := make([]error, len(s.order))

	sem := semaphore.NewWeighted(maxConcurrentProviders)
	var wg sync.WaitGroup
	for i, name := range s.order {
		wg.Add(1)
		go func(index int, current Provider) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				errs[index] = err
				return
			}
			defer sem.Release(1)
			perProvider[index], errs[index] = s.searchProvider(ctx, current, request)
		}(i, s.providers[name])
	}
	wg.Wait()

	merged := make([]domain.RawSearchResult, 0)
	failures := 0
	for i := range s.order {
		if errs[i] != nil {
			failures++
			continue
		}
		merged = append(merged, perProvider[i]...)
	}
	if failures == len(s.order) {
		return merged, errors.Join(errs...)
	}
	return merged, nil
}

func (s *Service) searchProvider(ctx context.Context, provider Provider, request domain.SearchRequest) ([]domain.RawSearchResult, error) {
	name := strings.ToLower(strings.TrimSpace(provider.Name()))

	now := time.Now()
	if blocked, until, lastErr := s.isProviderBlocked(name, now); blocked {
		return nil, fmt.Errorf("provider %s temporarily unhealthy until %s: %s", name, until.UTC().Format(time.RFC3339), lastErr)
	}
	if err := s.waitProviderRateLimit(ctx, name); err != nil {
		return nil, fmt.Errorf("provider %s rate limit wait: %w", name, err)
	}

	startedAt := time.Now()
	var items []domain.RawSearchResult
	err := RetryWithBackoff(ctx, s.retry, func() error {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		var callErr error
		items, callErr = provider.Search(callCtx, request)
		return callErr
	})
	s.recordProviderResult(name, request.Query, err, time.Since(startedAt), time.Now())
	if err != nil {
		s.logger.Warn("provider search failed",
			slog.String("provider", name),
			slog.String("query", request.Query),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	for i := range items {
		if items[i].Provider == "" {
			items[i].Provider = name
		}
	}
	return items, nil
}

// attachDescriptors downloads descriptors with bounded concurrency. A failed
// download leaves the result magnet-only.
func (s *Service) attachDescriptors(ctx context.Context, results []domain.RawSearchResult) {
	if s.descriptors == nil {
		return
	}
	sem := semaphore.NewWeighted(s.descriptorConcurrency)
	var wg sync.WaitGroup
	for i := range results {
		if len(results[i].Descriptor) > 0 || results[i].Magnet == "" {
			continue
		}
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			fetchCtx, cancel := context.WithTimeout(ctx, s.descriptorTimeout)
			defer cancel()
			data, err := s.descriptors.FetchDescriptor(fetchCtx, results[index].Magnet)
			if err != nil || len(data) == 0 {
				metrics.DescriptorFetchTotal.WithLabelValues("magnet_only").Inc()
				attrs := []any{slog.String("title", results[index].Title)}
				if err != nil {
					attrs = append(attrs, slog.String("error", err.Error()))
				}
				s.logger.Debug("descriptor unavailable, keeping magnet", attrs...)
				return
			}
			results[index].Descriptor = data
			metrics.DescriptorFetchTotal.WithLabelValues("ok").Inc()
		}(i)
	}
	wg.Wait()
}

func dedupeByInfoHash(results []domain.RawSearchResult) []domain.RawSearchResult {
	seen := make(map[string]struct{}, len(results))
	unique := make([]domain.RawSearchResult, 0, len(results))
	for _, result := range results {
		key := strings.ToLower(strings.TrimSpace(result.InfoHash))
		if key == "" {
			key = strings.TrimSpace(result.Magnet)
		}
		if key != "" {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
		}
		unique = append(unique, result)
	}
	return unique
}
