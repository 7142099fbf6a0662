package x1337

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"torrentstream/moviesearch/internal/domain"
	"torrentstream/moviesearch/internal/providers/common"
)

const (
	defaultEndpoint = "https://x1337x.ws"
	fallbackMirrors = "https://1337x.to,https://1377x.to"
	defaultLimit    = 50
	maxDetailScans  = 40
)

type Config struct {
	// Endpoint is a comma separated mirror list tried in order.
	Endpoint  string
	UserAgent string
	Client    *http.Client
}

// Provider scrapes 1337x listing pages. Listings lack magnets, so each kept
// row costs one extra detail page fetch.
type Provider struct {
	http    common.Getter
	mirrors []string
}

// listing is one row of a search results table.
type listing struct {
	Name    string
	Path    string
	Size    string
	Seeds   int
	Leeches int
}

func NewProvider(cfg Config) *Provider {
	return &Provider{
		http:    common.NewGetter("1337x", cfg.Client, cfg.UserAgent),
		mirrors: parseEndpoints(cfg.Endpoint),
	}
}

func (p *Provider) Name() string { return p.http.Source }

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{Name: p.Name(), Label: "1337x", Kind: "index", Enabled: true}
}

// Search uses the first mirror that answers, then visits detail pages for the
// magnet links. Rows whose detail page fails are dropped.
func (p *Provider) Search(ctx context.Context, request domain.SearchRequest) ([]domain.RawSearchResult, error) {
	rows, listURL, err := p.firstListing(ctx, request)
	if err != nil {
		return nil, err
	}

	scans := min(len(rows), common.Cap(request.Limit, defaultLimit), maxDetailScans)
	results := make([]domain.RawSearchResult, 0, scans)
	for _, row := range rows[:scans] {
		ref, err := url.Parse(row.Path)
		if err != nil {
			continue
		}
		pageURL := listURL.ResolveReference(ref)
		magnet, detailErr := p.detailMagnet(ctx, pageURL.String())
		if ctx.Err() != nil {
			break
		}
		hash := common.InfoHashFromMagnet(magnet)
		if detailErr != nil || hash == "" {
			continue
		}
		results = append(results, domain.RawSearchResult{
			Title:    row.Name,
			Size:     row.Size,
			Seeds:    row.Seeds,
			Peers:    row.Leeches,
			Magnet:   magnet,
			InfoHash: hash,
			Provider: p.Name(),
			PageURL:  pageURL.String(),
		})
	}
	return results, nil
}

func (p *Provider) firstListing(ctx context.Context, request domain.SearchRequest) ([]listing, *url.URL, error) {
	var lastErr error
	for _, mirror := range p.mirrors {
		base, err := url.Parse(mirror)
		if err != nil {
			lastErr = fmt.Errorf("invalid endpoint %q: %w", mirror, err)
			continue
		}
		listURL := base.ResolveReference(&url.URL{Path: searchPath(request)})
		doc, err := p.document(ctx, listURL.String())
		if err == nil {
			return parseListings(doc), listURL, nil
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, nil, lastErr
}

func searchPath(request domain.SearchRequest) string {
	query := url.PathEscape(strings.TrimSpace(request.Query))
	category := strings.TrimSpace(request.Category)
	if category == "" || strings.EqualFold(category, "all") {
		return "/search/" + query + "/1/"
	}
	return "/category-search/" + query + "/" + url.PathEscape(category) + "/1/"
}

func (p *Provider) detailMagnet(ctx context.Context, pageURL string) (string, error) {
	doc, err := p.document(ctx, pageURL)
	if err != nil {
		return "", err
	}
	href, _ := doc.Find(`a[href^="magnet:"]`).First().Attr("href")
	if href = strings.TrimSpace(href); href == "" {
		return "", fmt.Errorf("%s: no magnet on %s", p.Name(), pageURL)
	}
	return href, nil
}

func (p *Provider) document(ctx context.Context, target string) (*goquery.Document, error) {
	page, err := p.http.Get(ctx, target, common.AcceptHTML)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("%s: parse html: %w", p.Name(), err)
	}
	return doc, nil
}

func parseListings(doc *goquery.Document) []listing {
	var rows []listing
	known := make(map[string]bool)
	doc.Find("table.table-list tbody tr").Each(func(_ int, tr *goquery.Selection) {
		link := tr.Find(`td.name a[href^="/torrent/"]`).First()
		href := strings.TrimSpace(link.AttrOr("href", ""))
		name := common.CleanHTMLText(link.Text())
		if href == "" || name == "" || known[href] {
			return
		}
		known[href] = true

		// The size cell also holds a hidden seeders span.
		size := tr.Find("td.size").First().Clone()
		size.Children().Remove()

		rows = append(rows, listing{
			Name:    name,
			Path:    href,
			Size:    common.CleanHTMLText(size.Text()),
			Seeds:   common.ParseCount(tr.Find("td.seeds").First().Text()),
			Leeches: common.ParseCount(tr.Find("td.leeches").First().Text()),
		})
	})
	return rows
}

// parseEndpoints splits a mirror list, dropping blanks and repeats. An empty
// list means the built-in mirrors.
func parseEndpoints(raw string) []string {
	list := common.Or(raw, defaultEndpoint+","+fallbackMirrors)
	var mirrors []string
	for _, part := range strings.Split(list, ",") {
		mirror := strings.TrimSpace(part)
		if mirror != "" && !slices.Contains(mirrors, mirror) {
			mirrors = append(mirrors, mirror)
		}
	}
	if len(mirrors) == 0 {
		return []string{defaultEndpoint}
	}
	return mirrors
}
