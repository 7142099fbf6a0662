package piratebay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"torrentstream/moviesearch/internal/domain"
)

func TestDecodeRows(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		rows    int
		wantErr bool
	}{
		{"row array", `[{"id":"1","name":"Inception.2010.1080p.BluRay.x264","info_hash":"ABCDEF1234567890ABCDEF1234567890ABCDEF12","size":"2147483648","seeders":"1200","leechers":"80","imdb":"tt1375666"}]`, 1, false},
		{"error object", `{"error":"rate limited"}`, 0, false},
		{"garbage", `"nope"`, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rows, err := decodeRows([]byte(tc.payload))
			if (err != nil) != tc.wantErr {
				t.Fatalf("decodeRows error = %v, wantErr %v", err, tc.wantErr)
			}
			if len(rows) != tc.rows {
				t.Fatalf("rows = %d, want %d", len(rows), tc.rows)
			}
		})
	}
}

func TestToResultBuildsMagnetAndHumanSize(t *testing.T) {
	provider := NewProvider(Config{})
	result, ok := provider.toResult(apiRow{
		ID:       "7",
		Name:     "Inception.2010.1080p.BluRay.x264",
		InfoHash: "ABCDEF1234567890ABCDEF1234567890ABCDEF12",
		Size:     "2100000000",
		Seeders:  "1200",
		Leechers: "80",
		IMDb:     "tt1375666",
	})
	if !ok {
		t.Fatal("expected valid result")
	}
	if result.InfoHash != "abcdef1234567890abcdef1234567890abcdef12" || !strings.HasPrefix(result.Magnet, "magnet:?xt=urn:btih:abcdef") {
		t.Fatalf("expected infoHash and magnet, got %#v", result)
	}
	if result.Size != "2.1 GB" {
		t.Fatalf("unexpected size %q", result.Size)
	}
	if result.Seeds != 1200 || result.Peers != 80 {
		t.Fatalf("unexpected counters: %d/%d", result.Seeds, result.Peers)
	}
	if result.IMDbID != "tt1375666" {
		t.Fatalf("unexpected imdb id %q", result.IMDbID)
	}
	if result.PageURL != "https://apibay.org/t.php?id=7" {
		t.Fatalf("unexpected page url %q", result.PageURL)
	}
}

func TestToResultSkipsEmptyMarker(t *testing.T) {
	provider := NewProvider(Config{})
	_, ok := provider.toResult(apiRow{ID: "0", Name: "No results returned", InfoHash: "0000000000000000000000000000000000000000"})
	if ok {
		t.Fatal("expected placeholder row to be skipped")
	}
}

func TestCategoryCode(t *testing.T) {
	cases := map[string]string{
		"Movies":    "201",
		"HD Movies": "207",
		"":          "",
		"207":       "207",
		"anything":  "",
	}
	for input, want := range cases {
		if got := categoryCode(input); got != want {
			t.Errorf("categoryCode(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestSearchAgainstServer(t *testing.T) {
	var gotQuery, gotCat string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotCat = r.URL.Query().Get("cat")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"1","name":"Inception.2010.1080p","info_hash":"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa","size":"1100000000","seeders":"10","leechers":"2"},
			{"id":"2","name":"Inception.2010.720p","info_hash":"bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb","size":"700000000","seeders":"5","leechers":"1"}
		]`))
	}))
	defer server.Close()

	provider := NewProvider(Config{Endpoint: server.URL + "/q.php", Client: server.Client()})
	results, err := provider.Search(context.Background(), domain.SearchRequest{Query: "Inception", Category: "Movies", Limit: 1})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotQuery != "Inception" || gotCat != "201" {
		t.Fatalf("unexpected query params q=%q cat=%q", gotQuery, gotCat)
	}
	if len(results) != 1 {
		t.Fatalf("expected limit to cap results, got %d", len(results))
	}
	if results[0].Provider != "piratebay" {
		t.Fatalf("unexpected provider %q", results[0].Provider)
	}
}

func TestSearchMarksServerErrorsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	provider := NewProvider(Config{Endpoint: server.URL, Client: server.Client()})
	_, err := provider.Search(context.Background(), domain.SearchRequest{Query: "x"})
	if !domain.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}
