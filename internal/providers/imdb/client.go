// Package imdb is the primary movie catalog. Title search goes through the
// public suggestion API; full records are scraped from the JSON-LD block of
// the title page.
package imdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/redis/go-redis/v9"

	"torrentstream/moviesearch/internal/domain"
	"torrentstream/moviesearch/internal/providers/common"
)

const (
	defaultSuggestURL    = "https://v3.sg.media-imdb.com/suggestion"
	defaultTitleURL      = "https://www.imdb.com/title"
	defaultUserAgent     = "Mozilla/5.0 (X11; Linux x86_64) moviesearch/1.0"
	defaultMaxCandidates = 3
	minFallbackScore     = 0.5
	redisCacheKey        = "moviesearch:imdb:"
)

var movieKinds = map[string]struct{}{
	"movie":   {},
	"tvMovie": {},
	"video":   {},
	"short":   {},
}

type Config struct {
	SuggestURL string
	TitleURL   string
	UserAgent  string
	// MaxCandidates bounds how many title pages SearchByTitle scrapes.
	MaxCandidates int
	Client        *http.Client
	Redis         *redis.Client
	CacheTTL      time.Duration
}

type Client struct {
	suggestURL    string
	titleURL      string
	userAgent     string
	maxCandidates int
	http          *http.Client
	cache         *common.ResponseCache
}

type suggestion struct {
	ID    string `json:"id"`
	Label string `json:"l"`
	Kind  string `json:"qid"`
	Year  int    `json:"y"`
	Image struct {
		URL string `json:"imageUrl"`
	} `json:"i"`
}

type suggestResponse struct {
	Items []suggestion `json:"d"`
}

func NewClient(cfg Config) *Client {
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	suggestURL := strings.TrimRight(strings.TrimSpace(cfg.SuggestURL), "/")
	if suggestURL == "" {
		suggestURL = defaultSuggestURL
	}
	titleURL := strings.TrimRight(strings.TrimSpace(cfg.TitleURL), "/")
	if titleURL == "" {
		titleURL = defaultTitleURL
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	maxCandidates := cfg.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = defaultMaxCandidates
	}
	return &Client{
		suggestURL:    suggestURL,
		titleURL:      titleURL,
		userAgent:     userAgent,
		maxCandidates: maxCandidates,
		http:          httpClient,
		cache:         common.NewResponseCache(cfg.Redis, redisCacheKey, cfg.CacheTTL),
	}
}

// SearchByTitle returns full records for the best suggestions. Suggestions
// released in the requested year come first; year 0 keeps the upstream order.
func (c *Client) SearchByTitle(ctx context.Context, title string, year int) ([]domain.Movie, error) {
	suggestions, err := c.suggest(ctx, title)
	if err != nil {
		return nil, err
	}
	suggestions = rankByYear(suggestions, year)
	if len(suggestions) > c.maxCandidates {
		suggestions = suggestions[:c.maxCandidates]
	}

	movies := make([]domain.Movie, 0, len(suggestions))
	var errs []error
	for _, item := range suggestions {
		movie, err := c.LookupByID(ctx, item.ID)
		if err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if movie.Year == 0 {
			movie.Year = item.Year
		}
		if movie.Image == "" {
			movie.Image = item.Image.URL
		}
		movies = append(movies, movie)
	}
	if len(movies) == 0 {
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return nil, fmt.Errorf("imdb %q: %w", title, domain.ErrNotFound)
	}
	return movies, nil
}

// FallbackByName returns the minimal record of the suggestion whose label is
// closest to title.
func (c *Client) FallbackByName(ctx context.Context, title string) (domain.Movie, error) {
	suggestions, err := c.suggest(ctx, title)
	if err != nil {
		return domain.Movie{}, err
	}
	best, bestScore := -1, 0.0
	for i, item := range suggestions {
		score := common.TitleSimilarity(title, item.Label)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 || bestScore < minFallbackScore {
		return domain.Movie{}, fmt.Errorf("imdb fallback %q: %w", title, domain.ErrNotFound)
	}
	item := suggestions[best]
	return domain.Movie{
		ID:    item.ID,
		Title: item.Label,
		Year:  item.Year,
		Image: item.Image.URL,
	}, nil
}

// LookupByID scrapes the title page of an IMDb id.
func (c *Client) LookupByID(ctx context.Context, id string) (domain.Movie, error) {
	id = strings.TrimSpace(id)
	if !strings.HasPrefix(id, "tt") {
		return domain.Movie{}, fmt.Errorf("imdb id %q: %w", id, domain.ErrNotFound)
	}
	var movie domain.Movie
	if c.cache.Load(ctx, "title:"+id, &movie) {
		return movie, nil
	}

	resp, err := c.get(ctx, c.titleURL+"/"+url.PathEscape(id)+"/", "text/html")
	if err != nil {
		return domain.Movie{}, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, common.DefaultBodyLimit))
	if err != nil {
		return domain.Movie{}, fmt.Errorf("parse imdb page: %w", err)
	}
	movie, err = parseTitlePage(doc, id)
	if err != nil {
		return domain.Movie{}, err
	}
	c.cache.Store(ctx, "title:"+id, movie)
	return movie, nil
}

func (c *Client) suggest(ctx context.Context, title string) ([]suggestion, error) {
	query := strings.ToLower(strings.Join(strings.Fields(title), " "))
	if query == "" {
		return nil, domain.ErrInvalidQuery
	}
	var items []suggestion
	if c.cache.Load(ctx, "suggest:"+query, &items) {
		return items, nil
	}

	target := c.suggestURL + "/" + suggestBucket(query) + "/" + url.PathEscape(query) + ".json"
	resp, err := c.get(ctx, target, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload suggestResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, common.DefaultBodyLimit)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode imdb suggestions: %w", err)
	}
	items = make([]suggestion, 0, len(payload.Items))
	for _, item := range payload.Items {
		if !strings.HasPrefix(item.ID, "tt") {
			continue
		}
		if _, ok := movieKinds[item.Kind]; !ok && item.Kind != "" {
			continue
		}
		items = append(items, item)
	}
	c.cache.Store(ctx, "suggest:"+query, items)
	return items, nil
}

func (c *Client) get(ctx context.Context, target, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.Transient("imdb", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, common.HTTPError("imdb", resp)
	}
	return resp, nil
}

// suggestBucket is the first character of the query when it is an ASCII
// letter or digit; the API files everything else under "x".
func suggestBucket(query string) string {
	first := query[0]
	if (first >= 'a' && first <= 'z') || (first >= '0' && first <= '9') {
		return string(first)
	}
	return "x"
}

func rankByYear(items []suggestion, year int) []suggestion {
	ranked := append([]suggestion(nil), items...)
	if year <= 0 {
		return ranked
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return yearDistance(ranked[i].Year, year) < yearDistance(ranked[j].Year, year)
	})
	return ranked
}

func yearDistance(got, want int) int {
	if got == 0 {
		return 1 << 10
	}
	if got > want {
		return got - want
	}
	return want - got
}
