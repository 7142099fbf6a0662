package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"torrentstream/moviesearch/internal/domain"
)

const (
	DefaultLimit                 = 20
	DefaultLimitIncrement        = 20
	DefaultMaxRetries            = 3
	defaultDescriptorTimeout     = 4 * time.Second
	defaultDescriptorConcurrency = 5
)

type Provider interface {
	Name() string
	Info() domain.ProviderInfo
	Search(ctx context.Context, request domain.SearchRequest) ([]domain.RawSearchResult, error)
}

// DescriptorFetcher downloads the binary .torrent for a magnet link.
type DescriptorFetcher interface {
	FetchDescriptor(ctx context.Context, magnet string) ([]byte, error)
}

// ResultFilter keeps the results worth grouping, in their original order.
type ResultFilter interface {
	Apply(results []domain.RawSearchResult) []domain.RawSearchResult
}

// acceptAll keeps every result that can be downloaded.
type acceptAll struct{}

func (acceptAll) Apply(results []domain.RawSearchResult) []domain.RawSearchResult {
	kept := make([]domain.RawSearchResult, 0, len(results))
	for _, result := range results {
		if result.HasSource() {
			kept = append(kept, result)
		}
	}
	return kept
}

type Service struct {
	providers             map[string]Provider
	order                 []string
	timeout               time.Duration
	filter                ResultFilter
	descriptors           DescriptorFetcher
	descriptorTimeout     time.Duration
	descriptorConcurrency int64
	limitIncrement        int
	retry                 RetryConfig
	providerRPS           float64
	providerBurst         int
	limiterMu             sync.Mutex
	limiters              map[string]*rate.Limiter
	healthMu              sync.Mutex
	health                map[string]*providerHealth
	logger                *slog.Logger
}

type ServiceOption func(*Service)

func WithFilter(filter ResultFilter) ServiceOption {
	return func(s *Service) {
		if filter != nil {
			s.filter = filter
		}
	}
}

func WithDescriptorFetcher(fetcher DescriptorFetcher) ServiceOption {
	return func(s *Service) {
		s.descriptors = fetcher
	}
}

func WithDescriptorLimits(timeout time.Duration, concurrency int) ServiceOption {
	return func(s *Service) {
		if timeout > 0 {
			s.descriptorTimeout = timeout
		}
		if concurrency > 0 {
			s.descriptorConcurrency = int64(concurrency)
		}
	}
}

// WithLimitIncrement sets how much the fetch limit grows on each retry.
func WithLimitIncrement(step int) ServiceOption {
	return func(s *Service) {
		if step > 0 {
			s.limitIncrement = step
		}
	}
}

func WithRetryConfig(cfg RetryConfig) ServiceOption {
	return func(s *Service) {
		s.retry = cfg
	}
}

func WithProviderRateLimit(rps float64, burst int) ServiceOption {
	return func(s *Service) {
		s.providerRPS = rps
		s.providerBurst = burst
	}
}

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(providers []Provider, timeout time.Duration, opts ...ServiceOption) *Service {
	registry := make(map[string]Provider, len(providers))
	order := make([]string, 0, len(providers))
	for _, provider := range providers {
		if provider == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(provider.Name()))
		if name == "" {
			continue
		}
		if _, exists := registry[name]; exists {
			continue
		}
		registry[name] = provider
		order = append(order, name)
	}

	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	svc := &Service{
		providers:             registry,
		order:                 order,
		timeout:               timeout,
		filter:                acceptAll{},
		descriptorTimeout:     defaultDescriptorTimeout,
		descriptorConcurrency: defaultDescriptorConcurrency,
		limitIncrement:        DefaultLimitIncrement,
		retry:                 DefaultRetryConfig(),
		limiters:              make(map[string]*rate.Limiter),
		health:                make(map[string]*providerHealth),
		logger:                slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (s *Service) Providers() []domain.ProviderInfo {
	if len(s.providers) == 0 {
		return nil
	}
	items := make([]domain.ProviderInfo, 0, len(s.providers))
	for name, provider := range s.providers {
		info := provider.Info()
		info.Name = strings.ToLower(strings.TrimSpace(info.Name))
		if info.Name == "" {
			info.Name = name
		}
		if info.Label == "" {
			info.Label = info.Name
		}
		items = append(items, info)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Name < items[j].Name
	})
	return items
}

// waitProviderRateLimit blocks until the provider's token bucket admits one
// more request.
func (s *Service) waitProviderRateLimit(ctx context.Context, providerName string) error {
	if s.providerRPS <= 0 {
		return nil
	}
	s.limiterMu.Lock()
	limiter := s.limiters[providerName]
	if limiter == nil {
		burst := s.providerBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(s.providerRPS), burst)
		s.limiters[providerName] = limiter
	}
	s.limiterMu.Unlock()
	return limiter.Wait(ctx)
}
