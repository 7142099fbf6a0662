package kinopoisk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"torrentstream/moviesearch/internal/domain"
)

func TestSearchByKeywordAndFetchByID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-KEY") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/api/v2.1/films/search-by-keyword":
			if r.URL.Query().Get("keyword") != "Inception" || r.URL.Query().Get("page") != "1" {
				t.Errorf("unexpected query %v", r.URL.Query())
			}
			_, _ = w.Write([]byte(`{"keyword":"Inception","films":[{"filmId":447301},{"filmId":"1000"},{"filmId":null}],"searchFilmsCountResult":3}`))
		case "/api/v2.1/films/447301":
			_, _ = w.Write([]byte(`{"data":{"filmId":447301,"nameRu":"Начало","nameEn":"Inception","posterUrl":"https://kp.example/p.jpg","posterUrlPreview":"https://kp.example/pp.jpg","year":"2010","description":"Кобб"},"externalId":{"imdbId":"tt1375666"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "key", BaseURL: server.URL, RPS: 1000, Client: server.Client()})
	ids, err := client.SearchByKeyword(context.Background(), "Inception")
	if err != nil {
		t.Fatalf("SearchByKeyword: %v", err)
	}
	if len(ids) != 2 || ids[0] != "447301" || ids[1] != "1000" {
		t.Fatalf("unexpected ids %v", ids)
	}

	translation, err := client.FetchByID(context.Background(), "447301")
	if err != nil {
		t.Fatalf("FetchByID: %v", err)
	}
	if translation.IMDbID != "tt1375666" || translation.Title != "Начало" || translation.Year != 2010 {
		t.Fatalf("unexpected translation %+v", translation)
	}
	if translation.PosterPreviewURL != "https://kp.example/pp.jpg" || translation.OriginalTitle != "Inception" {
		t.Fatalf("unexpected translation %+v", translation)
	}

	if _, err := client.FetchByID(context.Background(), "1000"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing film, got %v", err)
	}
}

func TestThrottledRequestsAreRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"films":[{"filmId":1}],"searchFilmsCountResult":1}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "key", BaseURL: server.URL, RPS: 1000, Client: server.Client()})
	start := time.Now()
	ids, err := client.SearchByKeyword(context.Background(), "x")
	if err != nil {
		t.Fatalf("SearchByKeyword: %v", err)
	}
	if len(ids) != 1 || hits.Load() != 2 {
		t.Fatalf("expected one retry, got ids=%v hits=%d", ids, hits.Load())
	}
	if time.Since(start) < defaultRetryAfter/2 {
		t.Fatalf("expected to wait before retrying")
	}
}

func TestThrottlingGivesUpAsTransient(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "key", BaseURL: server.URL, RPS: 1000, Client: server.Client()})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := client.SearchByKeyword(ctx, "x")
	if !domain.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if hits.Load() != maxThrottleRetries+1 {
		t.Fatalf("expected %d attempts, got %d", maxThrottleRetries+1, hits.Load())
	}
}

func TestDisabledClient(t *testing.T) {
	client := NewClient(Config{})
	if client.Enabled() {
		t.Fatal("expected disabled client")
	}
	if _, err := client.SearchByKeyword(context.Background(), "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRetryAfter(t *testing.T) {
	if got := retryAfter("2"); got != 2*time.Second {
		t.Fatalf("unexpected %v", got)
	}
	if got := retryAfter("600"); got != maxRetryAfter {
		t.Fatalf("expected cap, got %v", got)
	}
	if got := retryAfter(""); got != defaultRetryAfter {
		t.Fatalf("expected default, got %v", got)
	}
}
