// Package dht searches a DHT crawler index. Results carry magnets only; the
// index does not know swarm sizes, so seeds and peers stay zero.
package dht

import (
	"context"
	"html"
	"net/http"
	"regexp"
	"strings"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/dustin/go-humanize"

	"torrentstream/moviesearch/internal/domain"
	"torrentstream/moviesearch/internal/providers/common"
)

const (
	defaultEndpoint = "https://btdig.com/search"
	defaultLimit    = 50
)

var magnetPattern = regexp.MustCompile(`magnet:\?xt=urn:btih:[a-zA-Z0-9]{32,40}[^\s"'<>]*`)

type Config struct {
	Endpoint  string
	UserAgent string
	Client    *http.Client
}

type Provider struct {
	http     common.Getter
	endpoint string
}

func NewProvider(cfg Config) *Provider {
	return &Provider{
		http:     common.NewGetter("dht", cfg.Client, cfg.UserAgent),
		endpoint: common.Or(cfg.Endpoint, defaultEndpoint),
	}
}

func (p *Provider) Name() string { return p.http.Source }

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{Name: p.Name(), Label: "DHT Index", Kind: "dht", Enabled: true}
}

// Search ignores the category; the index has none. The result page is
// scraped for magnet links rather than parsed.
func (p *Provider) Search(ctx context.Context, request domain.SearchRequest) ([]domain.RawSearchResult, error) {
	target, err := common.WithQuery(p.endpoint, map[string]string{
		"q":     strings.TrimSpace(request.Query),
		"order": "0",
	})
	if err != nil {
		return nil, err
	}
	page, err := p.http.Get(ctx, target, common.AcceptHTML)
	if err != nil {
		return nil, err
	}

	limit := common.Cap(request.Limit, defaultLimit)
	byHash := make(map[string]bool)
	results := []domain.RawSearchResult{}
	for _, magnet := range extractMagnets(string(page)) {
		result, ok := p.magnetToResult(magnet)
		if !ok || byHash[result.InfoHash] {
			continue
		}
		byHash[result.InfoHash] = true
		if results = append(results, result); len(results) == limit {
			break
		}
	}
	return results, nil
}

func extractMagnets(payload string) []string {
	matches := magnetPattern.FindAllString(payload, -1)
	out := make([]string, 0, len(matches))
	for _, match := range matches {
		out = append(out, strings.TrimSpace(html.UnescapeString(match)))
	}
	return out
}

// magnetToResult takes the title from dn and the size from xl. Magnets
// without a display name are dropped since nothing downstream can parse them.
func (p *Provider) magnetToResult(magnet string) (domain.RawSearchResult, bool) {
	value := strings.TrimSpace(magnet)
	parsed, err := metainfo.ParseMagnetUri(value)
	if err != nil {
		return domain.RawSearchResult{}, false
	}
	name := strings.TrimSpace(parsed.DisplayName)
	if name == "" {
		return domain.RawSearchResult{}, false
	}
	size := ""
	if raw := strings.TrimSpace(parsed.Params.Get("xl")); raw != "" {
		if bytes, parseErr := humanize.ParseBytes(raw); parseErr == nil && bytes > 0 {
			size = humanize.Bytes(bytes)
		}
	}
	return domain.RawSearchResult{
		Title:    name,
		Size:     size,
		Magnet:   value,
		InfoHash: parsed.InfoHash.HexString(),
		Provider: p.Name(),
	}, true
}
