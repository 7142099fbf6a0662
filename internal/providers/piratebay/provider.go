package piratebay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"torrentstream/moviesearch/internal/domain"
	"torrentstream/moviesearch/internal/providers/common"
)

const (
	defaultEndpoint = "https://apibay.org/q.php"
	emptyResultID   = "0"
	defaultLimit    = 50
)

// apibay category codes.
var categories = map[string]string{
	"":          "",
	"all":       "",
	"video":     "200",
	"movies":    "201",
	"hd movies": "207",
	"4k movies": "211",
}

type Config struct {
	Endpoint  string
	UserAgent string
	Trackers  []string
	Client    *http.Client
}

// Provider reads the apibay JSON mirror of The Pirate Bay. Rows carry bare
// infohashes, so magnets are assembled locally with the configured trackers.
type Provider struct {
	http     common.Getter
	endpoint string
	trackers []string
}

// apibay encodes every field as a string.
type apiRow struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	InfoHash string `json:"info_hash"`
	Size     string `json:"size"`
	Seeders  string `json:"seeders"`
	Leechers string `json:"leechers"`
	IMDb     string `json:"imdb"`
}

func NewProvider(cfg Config) *Provider {
	return &Provider{
		http:     common.NewGetter("piratebay", cfg.Client, cfg.UserAgent),
		endpoint: common.Or(cfg.Endpoint, defaultEndpoint),
		trackers: common.TrackersOr(cfg.Trackers),
	}
}

func (p *Provider) Name() string { return p.http.Source }

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{Name: p.Name(), Label: "The Pirate Bay", Kind: "index", Enabled: true}
}

func (p *Provider) Search(ctx context.Context, request domain.SearchRequest) ([]domain.RawSearchResult, error) {
	target, err := common.WithQuery(p.endpoint, map[string]string{
		"q":   strings.TrimSpace(request.Query),
		"cat": categoryCode(request.Category),
	})
	if err != nil {
		return nil, err
	}
	payload, err := p.http.Get(ctx, target, common.AcceptJSON)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name(), err)
	}

	limit := common.Cap(request.Limit, defaultLimit)
	results := make([]domain.RawSearchResult, 0, min(len(rows), limit))
	for _, row := range rows {
		if len(results) == limit {
			break
		}
		if result, ok := p.toResult(row); ok {
			results = append(results, result)
		}
	}
	return results, nil
}

// categoryCode maps a category label to an apibay code. Unknown labels search
// every category; numeric labels pass through.
func categoryCode(category string) string {
	value := strings.ToLower(strings.TrimSpace(category))
	if code, ok := categories[value]; ok {
		return code
	}
	if _, err := strconv.Atoi(value); err == nil {
		return value
	}
	return ""
}

// decodeRows accepts the usual row array. A lone JSON object is how apibay
// reports an error or an empty search and yields no rows.
func decodeRows(payload []byte) ([]apiRow, error) {
	var rows []apiRow
	arrayErr := json.Unmarshal(payload, &rows)
	if arrayErr == nil {
		return rows, nil
	}
	var object map[string]any
	if json.Unmarshal(payload, &object) == nil {
		return nil, nil
	}
	return nil, fmt.Errorf("decode apibay payload: %w", arrayErr)
}

func (p *Provider) toResult(row apiRow) (domain.RawSearchResult, bool) {
	name := strings.TrimSpace(row.Name)
	hash := common.NormalizeInfoHash(row.InfoHash)
	id := strings.TrimSpace(row.ID)
	switch {
	case name == "" || hash == "" || id == emptyResultID:
		return domain.RawSearchResult{}, false
	case strings.EqualFold(name, "No results returned"):
		return domain.RawSearchResult{}, false
	}

	var size string
	if n, err := strconv.ParseUint(strings.TrimSpace(row.Size), 10, 64); err == nil && n > 0 {
		size = humanize.Bytes(n)
	}
	imdbID := strings.TrimSpace(row.IMDb)
	if !strings.HasPrefix(imdbID, "tt") {
		imdbID = ""
	}

	return domain.RawSearchResult{
		Title:    name,
		Size:     size,
		Seeds:    common.ParseCount(row.Seeders),
		Peers:    common.ParseCount(row.Leechers),
		Magnet:   common.BuildMagnet(hash, name, p.trackers),
		InfoHash: hash,
		Provider: p.Name(),
		PageURL:  p.detailURL(id),
		IMDbID:   imdbID,
	}, true
}

// detailURL points at the apibay detail endpoint on the search host.
func (p *Provider) detailURL(id string) string {
	base, err := url.Parse(p.endpoint)
	if id == "" || err != nil || base.Host == "" {
		return ""
	}
	detail := url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/t.php", RawQuery: url.Values{"id": {id}}.Encode()}
	return detail.String()
}
