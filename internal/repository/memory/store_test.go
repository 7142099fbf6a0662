package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"torrentstream/moviesearch/internal/domain"
)

func TestUpsertMovieRejectsEmptyID(t *testing.T) {
	store := NewStore()
	if err := store.UpsertMovie(context.Background(), domain.Movie{Title: "No id"}); !errors.Is(err, domain.ErrInvalidMovie) {
		t.Fatalf("expected ErrInvalidMovie, got %v", err)
	}
	if _, err := store.SearchMovies(context.Background(), "No id", 0); err != nil {
		t.Fatalf("SearchMovies: %v", err)
	}
	if got, _ := store.SearchMovies(context.Background(), "No id", 0); len(got) != 0 {
		t.Fatalf("movie without id must not be stored, got %+v", got)
	}
}

func TestUpsertMovieKeepsCounters(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	if err := store.UpsertMovie(ctx, domain.Movie{ID: "tt1", Title: "Inception", Year: 2010, Views: 12, Votes: 3, Plot: "old"}); err != nil {
		t.Fatalf("UpsertMovie: %v", err)
	}
	if err := store.UpsertMovie(ctx, domain.Movie{ID: "tt1", Title: "Inception", Year: 2010, Plot: "new"}); err != nil {
		t.Fatalf("UpsertMovie: %v", err)
	}
	got, err := store.GetMovie(ctx, "tt1")
	if err != nil {
		t.Fatalf("GetMovie: %v", err)
	}
	if got.Plot != "new" || got.Views != 12 || got.Votes != 3 {
		t.Fatalf("unexpected merged movie %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatal("expected UpdatedAt to be set")
	}
}

func TestFindMovieByFoldedTitleAndYear(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.UpsertMovie(ctx, domain.Movie{ID: "tt2", Title: "Amélie", Year: 2001})
	_ = store.UpsertMovie(ctx, domain.Movie{ID: "tt3", Title: "Amelie", Year: 1999})

	got, err := store.FindMovie(ctx, "amelie", 2001)
	if err != nil || got.ID != "tt2" {
		t.Fatalf("expected tt2, got %+v (%v)", got, err)
	}
	got, err = store.FindMovie(ctx, "AMELIE", 0)
	if err != nil || got.ID != "tt2" {
		t.Fatalf("expected deterministic pick tt2 for unknown year, got %+v (%v)", got, err)
	}
	if _, err := store.FindMovie(ctx, "amelie", 1980); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTranslationsAndTorrents(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	if _, err := store.GetTranslation(ctx, "tt1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_ = store.UpsertTranslation(ctx, "tt1", domain.Translation{ID: "447301", IMDbID: "tt1", Title: "Начало"})
	translation, err := store.GetTranslation(ctx, "tt1")
	if err != nil || translation.Title != "Начало" {
		t.Fatalf("unexpected translation %+v (%v)", translation, err)
	}

	candidate := domain.TorrentCandidate{Result: domain.RawSearchResult{Title: "Inception.2010.720p", InfoHash: "ABC", Magnet: "magnet:?xt=urn:btih:abc"}}
	if err := store.UpsertTorrentRecord(ctx, candidate, ""); !errors.Is(err, domain.ErrInvalidMovie) {
		t.Fatalf("expected ErrInvalidMovie, got %v", err)
	}
	_ = store.UpsertTorrentRecord(ctx, candidate, "tt1")
	_ = store.UpsertTorrentRecord(ctx, candidate, "tt1")
	records, _ := store.TorrentsFor(ctx, "tt1")
	if len(records) != 1 || records[0].Title != "Inception.2010.720p" {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestConcurrentUpserts(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = store.UpsertMovie(ctx, domain.Movie{ID: fmt.Sprintf("tt%d", n%5), Title: "Movie", Year: 2000})
		}(i)
	}
	wg.Wait()
	got, _ := store.SearchMovies(ctx, "movie", 0)
	if len(got) != 5 {
		t.Fatalf("expected 5 distinct movies, got %d", len(got))
	}
}
