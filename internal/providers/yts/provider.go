// Package yts queries the YTS movie API. Every result carries the IMDb id of
// the movie it encodes.
package yts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"torrentstream/moviesearch/internal/domain"
	"torrentstream/moviesearch/internal/providers/common"
)

const (
	defaultEndpoint = "https://yts.mx/api/v2/list_movies.json"
	defaultLimit    = 20
	maxPageSize     = 50
)

type Config struct {
	Endpoint  string
	UserAgent string
	Trackers  []string
	Client    *http.Client
}

type Provider struct {
	http     common.Getter
	endpoint string
	trackers []string
}

type listResponse struct {
	Status        string `json:"status"`
	StatusMessage string `json:"status_message"`
	Data          struct {
		MovieCount int         `json:"movie_count"`
		Movies     []movieItem `json:"movies"`
	} `json:"data"`
}

type movieItem struct {
	ID       int           `json:"id"`
	IMDbCode string        `json:"imdb_code"`
	Title    string        `json:"title"`
	Year     int           `json:"year"`
	Torrents []torrentItem `json:"torrents"`
}

type torrentItem struct {
	Hash      string `json:"hash"`
	Quality   string `json:"quality"`
	Type      string `json:"type"`
	Seeds     int    `json:"seeds"`
	Peers     int    `json:"peers"`
	Size      string `json:"size"`
	SizeBytes int64  `json:"size_bytes"`
}

func NewProvider(cfg Config) *Provider {
	return &Provider{
		http:     common.NewGetter("yts", cfg.Client, cfg.UserAgent),
		endpoint: common.Or(cfg.Endpoint, defaultEndpoint),
		trackers: common.TrackersOr(cfg.Trackers),
	}
}

func (p *Provider) Name() string { return p.http.Source }

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{Name: p.Name(), Label: "YTS", Kind: "api", Enabled: true}
}

// Search ignores the category: YTS only lists movies. Each movie expands into
// one result per encoded torrent, most seeded movies first.
func (p *Provider) Search(ctx context.Context, request domain.SearchRequest) ([]domain.RawSearchResult, error) {
	limit := common.Cap(request.Limit, defaultLimit)
	target, err := common.WithQuery(p.endpoint, map[string]string{
		"query_term": strings.TrimSpace(request.Query),
		"limit":      strconv.Itoa(min(limit, maxPageSize)),
		"sort_by":    "seeds",
	})
	if err != nil {
		return nil, err
	}
	body, err := p.http.Get(ctx, target, common.AcceptJSON)
	if err != nil {
		return nil, err
	}

	var payload listResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode yts response: %w", err)
	}
	if !strings.EqualFold(payload.Status, "ok") {
		return nil, fmt.Errorf("yts status %q: %s", payload.Status, payload.StatusMessage)
	}

	var results []domain.RawSearchResult
	for _, movie := range payload.Data.Movies {
		for _, torrent := range movie.Torrents {
			if len(results) == limit {
				return results, nil
			}
			if result, ok := p.toResult(movie, torrent); ok {
				results = append(results, result)
			}
		}
	}
	if results == nil {
		results = []domain.RawSearchResult{}
	}
	return results, nil
}

func (p *Provider) toResult(movie movieItem, torrent torrentItem) (domain.RawSearchResult, bool) {
	hash := common.NormalizeInfoHash(torrent.Hash)
	title := strings.TrimSpace(movie.Title)
	if hash == "" || title == "" {
		return domain.RawSearchResult{}, false
	}
	name := releaseName(title, movie.Year, torrent.Quality, torrent.Type)

	size := strings.TrimSpace(torrent.Size)
	if torrent.SizeBytes > 0 {
		size = humanize.Bytes(uint64(torrent.SizeBytes))
	}

	return domain.RawSearchResult{
		Title:    name,
		Size:     size,
		Seeds:    max(torrent.Seeds, 0),
		Peers:    max(torrent.Peers, 0),
		Magnet:   common.BuildMagnet(hash, name, p.trackers),
		InfoHash: hash,
		Provider: p.Name(),
		IMDbID:   strings.TrimSpace(movie.IMDbCode),
	}, true
}

// releaseName renders a YTS entry in the spaced release convention, e.g.
// "Inception (2010) 1080p bluray".
func releaseName(title string, year int, quality, kind string) string {
	parts := []string{title}
	if year > 0 {
		parts = append(parts, "("+strconv.Itoa(year)+")")
	}
	for _, value := range []string{quality, kind} {
		if value = strings.TrimSpace(value); value != "" {
			parts = append(parts, value)
		}
	}
	return strings.Join(parts, " ")
}
