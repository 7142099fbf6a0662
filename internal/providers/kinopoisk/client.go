// Package kinopoisk is the translation catalog client. Entries carry the IMDb
// id of the film they describe, which callers use to verify a match.
package kinopoisk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"torrentstream/moviesearch/internal/domain"
	"torrentstream/moviesearch/internal/providers/common"
)

const (
	defaultBaseURL     = "https://kinopoiskapiunofficial.tech"
	defaultRPS         = 5
	maxThrottleRetries = 3
	defaultRetryAfter  = time.Second
	maxRetryAfter      = 5 * time.Second
)

type Config struct {
	APIKey  string
	BaseURL string
	RPS     float64
	Client  *http.Client
}

type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// flexInt decodes numbers that the API sometimes sends as strings.
type flexInt int

func (v *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(data) == 0 || string(data) == "null" {
		*v = 0
		return nil
	}
	parsed, err := strconv.Atoi(string(data))
	if err != nil {
		*v = 0
		return nil
	}
	*v = flexInt(parsed)
	return nil
}

type searchResponse struct {
	Keyword string `json:"keyword"`
	Films   []struct {
		FilmID flexInt `json:"filmId"`
	} `json:"films"`
	SearchFilmsCountResult int `json:"searchFilmsCountResult"`
}

type filmResponse struct {
	Data struct {
		FilmID           flexInt `json:"filmId"`
		NameRu           string  `json:"nameRu"`
		NameEn           string  `json:"nameEn"`
		PosterURL        string  `json:"posterUrl"`
		PosterURLPreview string  `json:"posterUrlPreview"`
		Year             flexInt `json:"year"`
		Description      string  `json:"description"`
	} `json:"data"`
	ExternalID struct {
		IMDbID string `json:"imdbId"`
	} `json:"externalId"`
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = defaultRPS
	}
	return &Client{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: baseURL,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// SearchByKeyword returns candidate film ids in relevance order.
func (c *Client) SearchByKeyword(ctx context.Context, title string) ([]string, error) {
	keyword := strings.TrimSpace(title)
	if keyword == "" {
		return nil, domain.ErrInvalidQuery
	}
	params := url.Values{"keyword": {keyword}, "page": {"1"}}
	var payload searchResponse
	if err := c.getJSON(ctx, "/api/v2.1/films/search-by-keyword?"+params.Encode(), &payload); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(payload.Films))
	for _, film := range payload.Films {
		if film.FilmID > 0 {
			ids = append(ids, strconv.Itoa(int(film.FilmID)))
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("kinopoisk %q: %w", keyword, domain.ErrNotFound)
	}
	return ids, nil
}

func (c *Client) FetchByID(ctx context.Context, id string) (domain.Translation, error) {
	id = strings.TrimSpace(id)
	if _, err := strconv.Atoi(id); err != nil {
		return domain.Translation{}, fmt.Errorf("kinopoisk id %q: %w", id, domain.ErrNotFound)
	}
	var payload filmResponse
	if err := c.getJSON(ctx, "/api/v2.1/films/"+id, &payload); err != nil {
		return domain.Translation{}, err
	}
	data := payload.Data
	translation := domain.Translation{
		ID:               id,
		IMDbID:           strings.TrimSpace(payload.ExternalID.IMDbID),
		Title:            strings.TrimSpace(data.NameRu),
		OriginalTitle:    strings.TrimSpace(data.NameEn),
		Description:      strings.TrimSpace(data.Description),
		PosterURL:        strings.TrimSpace(data.PosterURL),
		PosterPreviewURL: strings.TrimSpace(data.PosterURLPreview),
		Year:             int(data.Year),
	}
	if data.FilmID > 0 {
		translation.ID = strconv.Itoa(int(data.FilmID))
	}
	return translation, nil
}

// getJSON waits on the client rate limiter before every attempt and retries
// 429 responses a bounded number of times, honouring Retry-After.
func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	if !c.Enabled() {
		return fmt.Errorf("kinopoisk disabled: %w", domain.ErrNotFound)
	}
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return err
		}
		req.Header.Set("X-API-KEY", c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return domain.Transient("kinopoisk", err)
		}
		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxThrottleRetries {
			wait := retryAfter(resp.Header.Get("Retry-After"))
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			continue
		}
		err = decodeResponse(resp, dst)
		resp.Body.Close()
		return err
	}
}

func decodeResponse(resp *http.Response, dst any) error {
	if resp.StatusCode != http.StatusOK {
		return common.HTTPError("kinopoisk", resp)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, common.DefaultBodyLimit)).Decode(dst); err != nil {
		return fmt.Errorf("decode kinopoisk response: %w", err)
	}
	return nil
}

func retryAfter(raw string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || seconds <= 0 {
		return defaultRetryAfter
	}
	return min(time.Duration(seconds)*time.Second, maxRetryAfter)
}
