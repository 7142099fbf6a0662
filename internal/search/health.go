package search

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"torrentstream/moviesearch/internal/domain"
	"torrentstream/moviesearch/internal/metrics"
)

// A provider that fails providerFailureThreshold times in a row is skipped
// for providerBlockBase, doubling per further failure up to providerBlockMax.
const (
	providerFailureThreshold = 3
	providerBlockBase        = 2 * time.Minute
	providerBlockMax         = 15 * time.Minute
)

type providerHealth struct {
	failures      int
	blockedUntil  time.Time
	lastError     string
	lastSuccessAt time.Time
	lastFailureAt time.Time
	lastLatency   time.Duration
	lastTimeout   bool
	lastQuery     string
	requests      int64
	failed        int64
	timeouts      int64
}

// observe folds one call into the state and reports whether the provider
// just became blocked.
func (h *providerHealth) observe(query string, err error, latency time.Duration, now time.Time) bool {
	h.requests++
	h.lastQuery = strings.TrimSpace(query)
	if latency > 0 {
		h.lastLatency = latency
	}
	h.lastTimeout = isTimeoutLikeError(err)
	if h.lastTimeout {
		h.timeouts++
	}
	if err == nil {
		h.failures = 0
		h.blockedUntil = time.Time{}
		h.lastError = ""
		h.lastSuccessAt = now
		return false
	}
	h.failures++
	h.failed++
	h.lastFailureAt = now
	h.lastError = err.Error()
	if h.failures < providerFailureThreshold {
		return false
	}
	h.blockedUntil = now.Add(exponentialBlockDuration(h.failures))
	return true
}

func (h *providerHealth) blockedAt(now time.Time) bool {
	return !h.blockedUntil.IsZero() && !now.After(h.blockedUntil)
}

func (h *providerHealth) diagnostics(info domain.ProviderInfo) domain.ProviderDiagnostics {
	return domain.ProviderDiagnostics{
		Name:                info.Name,
		Label:               info.Label,
		Kind:                info.Kind,
		Enabled:             info.Enabled,
		ConsecutiveFailures: h.failures,
		LastError:           h.lastError,
		LastLatencyMS:       h.lastLatency.Milliseconds(),
		LastTimeout:         h.lastTimeout,
		LastQuery:           h.lastQuery,
		TotalRequests:       h.requests,
		TotalFailures:       h.failed,
		TimeoutCount:        h.timeouts,
		BlockedUntil:        timeRef(h.blockedUntil),
		LastSuccessAt:       timeRef(h.lastSuccessAt),
		LastFailureAt:       timeRef(h.lastFailureAt),
	}
}

func timeRef(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	return &value
}

func (s *Service) isProviderBlocked(providerName string, now time.Time) (bool, time.Time, string) {
	name := strings.ToLower(strings.TrimSpace(providerName))
	if name == "" {
		return false, time.Time{}, ""
	}
	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	state := s.health[name]
	if state == nil || !state.blockedAt(now) {
		return false, time.Time{}, ""
	}
	return true, state.blockedUntil, state.lastError
}

func (s *Service) recordProviderResult(providerName, query string, err error, latency time.Duration, now time.Time) {
	name := strings.ToLower(strings.TrimSpace(providerName))
	if name == "" {
		return
	}
	if latency > 0 {
		metrics.ProviderRequestDuration.WithLabelValues(name).Observe(latency.Seconds())
	}

	s.healthMu.Lock()
	state := s.health[name]
	if state == nil {
		state = &providerHealth{}
		s.health[name] = state
	}
	blocked := state.observe(query, err, latency, now)
	timedOut := state.lastTimeout
	until := state.blockedUntil
	s.healthMu.Unlock()

	switch {
	case err == nil:
		metrics.ProviderRequestsTotal.WithLabelValues(name, "ok").Inc()
		metrics.ProviderAvailable.WithLabelValues(name).Set(1)
		return
	case timedOut:
		metrics.ProviderRequestsTotal.WithLabelValues(name, "timeout").Inc()
	default:
		metrics.ProviderRequestsTotal.WithLabelValues(name, "error").Inc()
	}
	if blocked {
		metrics.ProviderAvailable.WithLabelValues(name).Set(0)
		s.logger.Warn("provider blocked",
			slog.String("provider", name),
			slog.Time("until", until),
		)
	}
}

func exponentialBlockDuration(consecutiveFailures int) time.Duration {
	block := providerBlockBase
	for i := providerFailureThreshold; i < consecutiveFailures; i++ {
		block *= 2
		if block >= providerBlockMax {
			return providerBlockMax
		}
	}
	return block
}

func isTimeoutLikeError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "timeout") || strings.Contains(value, "deadline exceeded")
}

// ProviderDiagnostics reports breaker state for every registered provider,
// sorted by name. Providers never queried report zero counters.
func (s *Service) ProviderDiagnostics() []domain.ProviderDiagnostics {
	infos := s.Providers()
	if len(infos) == 0 {
		return nil
	}

	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	items := make([]domain.ProviderDiagnostics, 0, len(infos))
	for _, info := range infos {
		state := s.health[strings.ToLower(strings.TrimSpace(info.Name))]
		if state == nil {
			state = &providerHealth{}
		}
		items = append(items, state.diagnostics(info))
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Name < items[j].Name
	})
	return items
}
