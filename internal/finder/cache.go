package finder

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"torrentstream/moviesearch/internal/domain"
	"torrentstream/moviesearch/internal/metrics"
)

const (
	redisCachePrefix       = "moviesearch:find:"
	defaultCacheTTL        = 6 * time.Hour
	defaultCacheMaxEntries = 400
)

// cachedFind is one resolved query. Pages are cut from Items on read.
type cachedFind struct {
	Items    []domain.TranslatedMovie `json:"items"`
	Source   string                   `json:"source"`
	StoredAt time.Time                `json:"storedAt"`
}

// RedisCacheBackend stores resolved queries in Redis as JSON.
type RedisCacheBackend struct {
	client *redis.Client
}

func NewRedisCacheBackend(client *redis.Client) *RedisCacheBackend {
	return &RedisCacheBackend{client: client}
}

func (r *RedisCacheBackend) Get(ctx context.Context, key string) (cachedFind, bool, error) {
	data, err := r.client.Get(ctx, redisCachePrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return cachedFind{}, false, nil
		}
		return cachedFind{}, false, err
	}
	var entry cachedFind
	if err := json.Unmarshal(data, &entry); err != nil {
		return cachedFind{}, false, err
	}
	return entry, true, nil
}

func (r *RedisCacheBackend) Set(ctx context.Context, key string, entry cachedFind, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisCachePrefix+key, data, ttl).Err()
}

type memoryEntry struct {
	entry     cachedFind
	expiresAt time.Time
}

// responseCache keeps resolved queries in memory and, when configured, in
// Redis. Redis is consulted first so replicas share results.
type responseCache struct {
	ttl        time.Duration
	maxEntries int
	redis      *RedisCacheBackend

	mu      sync.Mutex
	entries map[string]*memoryEntry
}

func newResponseCache(ttl time.Duration, redisCache *RedisCacheBackend) *responseCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &responseCache{
		ttl:        ttl,
		maxEntries: defaultCacheMaxEntries,
		redis:      redisCache,
		entries:    make(map[string]*memoryEntry),
	}
}

func (c *responseCache) lookup(ctx context.Context, key string, now time.Time) (cachedFind, bool) {
	if c.redis != nil {
		entry, found, err := c.redis.Get(ctx, key)
		if err == nil && found {
			metrics.CacheHitsTotal.Inc()
			c.storeMemory(key, entry, now)
			return cloneEntry(entry), true
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	cached, ok := c.entries[key]
	if !ok {
		metrics.CacheMissesTotal.Inc()
		return cachedFind{}, false
	}
	if !now.Before(cached.expiresAt) {
		delete(c.entries, key)
		metrics.CacheMissesTotal.Inc()
		return cachedFind{}, false
	}
	metrics.CacheHitsTotal.Inc()
	return cloneEntry(cached.entry), true
}

func (c *responseCache) store(ctx context.Context, key string, entry cachedFind, now time.Time) {
	if c.redis != nil {
		_ = c.redis.Set(ctx, key, entry, c.ttl)
	}
	c.storeMemory(key, entry, now)
}

func (c *responseCache) storeMemory(key string, entry cachedFind, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &memoryEntry{entry: cloneEntry(entry), expiresAt: now.Add(c.ttl)}
	c.trimLocked(now)
}

func (c *responseCache) trimLocked(now time.Time) {
	for key, cached := range c.entries {
		if !now.Before(cached.expiresAt) {
			delete(c.entries, key)
		}
	}
	if len(c.entries) <= c.maxEntries {
		return
	}

	type pair struct {
		key       string
		expiresAt time.Time
	}
	items := make([]pair, 0, len(c.entries))
	for key, cached := range c.entries {
		items = append(items, pair{key: key, expiresAt: cached.expiresAt})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].expiresAt.Before(items[j].expiresAt)
	})
	for i := 0; i < len(items)-c.maxEntries; i++ {
		delete(c.entries, items[i].key)
	}
}

func cloneEntry(entry cachedFind) cachedFind {
	cloned := entry
	if entry.Items != nil {
		cloned.Items = append([]domain.TranslatedMovie(nil), entry.Items...)
	}
	return cloned
}

// buildCacheKey identifies a query independently of pagination.
func buildCacheKey(query, category string) string {
	return strings.Join([]string{
		"q=" + domain.TitleKey(query),
		"c=" + strings.ToLower(strings.TrimSpace(category)),
	}, "|")
}
