// Package tmdb is a secondary name-match fallback. Matches are translated to
// IMDb ids through the external ids endpoint so records stay keyed by the
// primary catalog id.
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"torrentstream/moviesearch/internal/domain"
	"torrentstream/moviesearch/internal/providers/common"
)

const (
	defaultBaseURL   = "https://api.themoviedb.org/3"
	posterBaseURL    = "https://image.tmdb.org/t/p/w300"
	defaultLanguage  = "en-US"
	redisCacheKey    = "moviesearch:tmdb:"
	minFallbackScore = 0.5
	maxExternalTries = 3
)

type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	cache   *common.ResponseCache
}

type Config struct {
	APIKey   string
	BaseURL  string
	Client   *http.Client
	Redis    *redis.Client
	CacheTTL time.Duration
}

type SearchResult struct {
	ID          int     `json:"id"`
	Title       string  `json:"title,omitempty"`
	Overview    string  `json:"overview,omitempty"`
	PosterPath  string  `json:"poster_path,omitempty"`
	VoteAverage float64 `json:"vote_average,omitempty"`
	ReleaseDate string  `json:"release_date,omitempty"`
}

func (r SearchResult) Year() int {
	if len(r.ReleaseDate) < 4 {
		return 0
	}
	year, err := strconv.Atoi(r.ReleaseDate[:4])
	if err != nil {
		return 0
	}
	return year
}

func (r SearchResult) PosterURL() string {
	if r.PosterPath == "" {
		return ""
	}
	return posterBaseURL + r.PosterPath
}

type searchResponse struct {
	Results []SearchResult `json:"results"`
}

type externalIDs struct {
	IMDbID string `json:"imdb_id"`
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		cache:   common.NewResponseCache(cfg.Redis, redisCacheKey, cfg.CacheTTL),
	}
}

func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// FallbackByName searches movies by title and returns the closest match that
// has an IMDb id. Only id, title, year and image are filled.
func (c *Client) FallbackByName(ctx context.Context, title string) (domain.Movie, error) {
	if !c.Enabled() {
		return domain.Movie{}, fmt.Errorf("tmdb disabled: %w", domain.ErrNotFound)
	}
	results, err := c.SearchMovies(ctx, title)
	if err != nil {
		return domain.Movie{}, err
	}

	tried := 0
	for _, result := range rankBySimilarity(title, results) {
		if tried >= maxExternalTries {
			break
		}
		tried++
		imdbID, err := c.IMDbID(ctx, result.ID)
		if err != nil || imdbID == "" {
			continue
		}
		return domain.Movie{
			ID:    imdbID,
			Title: result.Title,
			Year:  result.Year(),
			Image: result.PosterURL(),
		}, nil
	}
	return domain.Movie{}, fmt.Errorf("tmdb fallback %q: %w", title, domain.ErrNotFound)
}

func (c *Client) SearchMovies(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrInvalidQuery
	}
	cacheKey := "search:" + strings.ToLower(query)
	var results []SearchResult
	if c.cache.Load(ctx, cacheKey, &results) {
		return results, nil
	}

	params := url.Values{
		"api_key":  {c.apiKey},
		"query":    {query},
		"language": {defaultLanguage},
	}
	var response searchResponse
	if err := c.getJSON(ctx, "/search/movie?"+params.Encode(), &response); err != nil {
		return nil, err
	}
	results = response.Results
	c.cache.Store(ctx, cacheKey, results)
	return results, nil
}

func (c *Client) IMDbID(ctx context.Context, tmdbID int) (string, error) {
	cacheKey := "external:" + strconv.Itoa(tmdbID)
	var ids externalIDs
	if c.cache.Load(ctx, cacheKey, &ids) {
		return ids.IMDbID, nil
	}
	params := url.Values{"api_key": {c.apiKey}}
	if err := c.getJSON(ctx, "/movie/"+strconv.Itoa(tmdbID)+"/external_ids?"+params.Encode(), &ids); err != nil {
		return "", err
	}
	c.cache.Store(ctx, cacheKey, ids)
	return strings.TrimSpace(ids.IMDbID), nil
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Transient("tmdb", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return common.HTTPError("tmdb", resp)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 512*1024)).Decode(dst); err != nil {
		return fmt.Errorf("decode tmdb response: %w", err)
	}
	return nil
}

// rankBySimilarity drops results below the fallback threshold and orders the
// rest by title similarity, keeping upstream order for ties.
func rankBySimilarity(title string, results []SearchResult) []SearchResult {
	type scored struct {
		result SearchResult
		score  float64
	}
	items := make([]scored, 0, len(results))
	for _, result := range results {
		score := common.TitleSimilarity(title, result.Title)
		if score < minFallbackScore {
			continue
		}
		items = append(items, scored{result: result, score: score})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].score > items[j].score })
	ranked := make([]SearchResult, 0, len(items))
	for _, item := range items {
		ranked = append(ranked, item.result)
	}
	return ranked
}
