package dht

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"torrentstream/moviesearch/internal/domain"
)

const resultsPage = `<html><body>
<div class="one_result"><a href="magnet:?xt=urn:btih:AAAA1234567890ABCDEF1234567890ABCDEF1234&amp;dn=Inception.2010.720p.BluRay&amp;xl=1100000000">Inception</a></div>
<div class="one_result"><a href="magnet:?xt=urn:btih:aaaa1234567890abcdef1234567890abcdef1234&amp;dn=Inception.mirror">mirror</a></div>
<div class="one_result"><a href="magnet:?xt=urn:btih:bbbb1234567890abcdef1234567890abcdef1234&amp;dn=Inception.2010.1080p">Inception</a></div>
<div class="one_result"><a href="magnet:?xt=urn:btih:cccc1234567890abcdef1234567890abcdef1234">nameless</a></div>
</body></html>`

func TestExtractMagnetsUnescapesEntities(t *testing.T) {
	magnets := extractMagnets(resultsPage)
	if len(magnets) != 4 {
		t.Fatalf("expected 4 magnets, got %d", len(magnets))
	}
	if strings.Contains(magnets[0], "&amp;") {
		t.Fatalf("expected entities to be unescaped: %s", magnets[0])
	}
	if got := extractMagnets("<p>No torrents found</p>"); len(got) != 0 {
		t.Fatalf("expected no magnets, got %v", got)
	}
}

func TestMagnetToResult(t *testing.T) {
	p := NewProvider(Config{})
	result, ok := p.magnetToResult("  magnet:?xt=urn:btih:ABCDEF1234567890ABCDEF1234567890ABCDEF12&dn=Inception.2010.720p&xl=1100000000 ")
	if !ok {
		t.Fatal("expected valid result")
	}
	if result.Title != "Inception.2010.720p" || result.Size != "1.1 GB" {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.InfoHash != "abcdef1234567890abcdef1234567890abcdef12" || result.Provider != "dht" {
		t.Fatalf("unexpected identity %+v", result)
	}
	if result.Seeds != 0 || result.Peers != 0 {
		t.Fatalf("expected zero swarm counters, got %+v", result)
	}

	for _, bad := range []string{"", "magnet:?dn=Test", "http://example.com?xt=urn:btih:abcdef", "magnet:?xt=urn:btih:abcdef1234567890abcdef1234567890abcdef12"} {
		if _, ok := p.magnetToResult(bad); ok {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}

func TestSearchDedupesAndLimits(t *testing.T) {
	var gotQuery, gotOrder, gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotOrder = r.URL.Query().Get("order")
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(resultsPage))
	}))
	defer ts.Close()

	p := NewProvider(Config{Endpoint: ts.URL, UserAgent: "custom-ua/1.0", Client: ts.Client()})
	results, err := p.Search(context.Background(), domain.SearchRequest{Query: "  inception  ", Category: "Movies"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotQuery != "inception" || gotOrder != "0" || gotUA != "custom-ua/1.0" {
		t.Fatalf("unexpected request q=%q order=%q ua=%q", gotQuery, gotOrder, gotUA)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 deduped results, got %+v", results)
	}
	if results[0].Title != "Inception.2010.720p.BluRay" || results[1].Title != "Inception.2010.1080p" {
		t.Fatalf("unexpected order %+v", results)
	}

	limited, err := p.Search(context.Background(), domain.SearchRequest{Query: "inception", Limit: 1})
	if err != nil || len(limited) != 1 {
		t.Fatalf("expected one result under limit, got %d (%v)", len(limited), err)
	}
}

func TestSearchMarksServerErrorsTransient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer ts.Close()

	p := NewProvider(Config{Endpoint: ts.URL, Client: ts.Client()})
	_, err := p.Search(context.Background(), domain.SearchRequest{Query: "test"})
	if !domain.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestNewProviderDefaults(t *testing.T) {
	p := NewProvider(Config{Endpoint: "   "})
	if p.endpoint != defaultEndpoint || p.http.UserAgent != "moviesearch/1.0" || p.http.Client == nil {
		t.Fatalf("unexpected defaults %+v", p)
	}
	if _, err := NewProvider(Config{Endpoint: "://bad"}).Search(context.Background(), domain.SearchRequest{Query: "x"}); err == nil {
		t.Fatal("expected error for invalid endpoint")
	}
}
