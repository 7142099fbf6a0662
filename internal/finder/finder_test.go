package finder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"torrentstream/moviesearch/internal/domain"
)

type fakeSearcher struct {
	results []domain.RawSearchResult
	err     error
	calls   atomic.Int32
	last    domain.SearchRequest
}

func (s *fakeSearcher) Search(ctx context.Context, request domain.SearchRequest, maxRetries int) ([]domain.RawSearchResult, error) {
	s.calls.Add(1)
	s.last = request
	if s.err != nil {
		return nil, s.err
	}
	return append([]domain.RawSearchResult(nil), s.results...), nil
}

// fakeResolver maps each candidate to a movie keyed by its cropped title.
// Titles listed in fail resolve to nil.
type fakeResolver struct {
	mu         sync.Mutex
	candidates []domain.TorrentCandidate
	ids        map[string]string
	fail       map[string]bool
	translated atomic.Int32
}

func (r *fakeResolver) ResolveAll(ctx context.Context, candidates []domain.TorrentCandidate) []*domain.TranslatedMovie {
	r.mu.Lock()
	r.candidates = append(r.candidates, candidates...)
	r.mu.Unlock()

	out := make([]*domain.TranslatedMovie, len(candidates))
	for i, candidate := range candidates {
		title := candidate.Release.CroppedTitle
		if r.fail[title] {
			continue
		}
		id := "id:" + title
		if mapped, ok := r.ids[title]; ok {
			id = mapped
		}
		view := domain.MovieView{ID: id, Title: candidate.Release.MovieTitle, Year: candidate.Release.Year}
		out[i] = &domain.TranslatedMovie{Primary: view, Secondary: view, Torrent: candidate.Ref()}
	}
	return out
}

func (r *fakeResolver) Translate(ctx context.Context, movie domain.Movie) domain.TranslatedMovie {
	r.translated.Add(1)
	return domain.Untranslated(movie)
}

type fakeIndex struct {
	movies   []domain.Movie
	torrents map[string][]domain.TorrentRecord
}

func (i *fakeIndex) SearchMovies(ctx context.Context, query string, limit int) ([]domain.Movie, error) {
	return i.movies, nil
}

func (i *fakeIndex) TorrentsFor(ctx context.Context, movieID string) ([]domain.TorrentRecord, error) {
	return i.torrents[movieID], nil
}

func release(title, size string) domain.RawSearchResult {
	return domain.RawSearchResult{Title: title, Size: size, Magnet: "magnet:?xt=urn:btih:" + title, Provider: "stub"}
}

func TestFindKeepsSmallestReleasePerTitle(t *testing.T) {
	searcher := &fakeSearcher{results: []domain.RawSearchResult{
		release("Inception.2010.1080p.BluRay.x264-GROUP", "2.1 GB"),
		release("Inception.2010.720p.WEBRip.x264-GROUP", "1.1 GB"),
	}}
	res := &fakeResolver{}
	svc := NewService(searcher, res, Config{Category: "Movies", InitialLimit: 20, MaxRetries: 3})

	got, err := svc.Find(context.Background(), domain.FindRequest{Query: "Inception"})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(res.candidates) != 1 {
		t.Fatalf("expected one grouped candidate, got %d", len(res.candidates))
	}
	if res.candidates[0].Result.Size != "1.1 GB" {
		t.Fatalf("expected the 1.1 GB release, got %+v", res.candidates[0].Result)
	}
	if got.Total != 1 || got.Items[0].Torrent.Title != "Inception.2010.720p.WEBRip.x264-GROUP" {
		t.Fatalf("unexpected response %+v", got)
	}
	if searcher.last.Category != "Movies" || searcher.last.Limit != 20 {
		t.Fatalf("unexpected search request %+v", searcher.last)
	}
	if got.Source != SourceProviders {
		t.Fatalf("unexpected source %q", got.Source)
	}
}

func TestFindDedupesAndPaginates(t *testing.T) {
	searcher := &fakeSearcher{results: []domain.RawSearchResult{
		release("Alpha.2001.720p", "1 GB"),
		release("Beta.2002.720p", "1 GB"),
		release("Alpha.Redux.2001.720p", "1 GB"),
		release("Gamma.2003.720p", "1 GB"),
		release("Broken.2004.720p", "1 GB"),
	}}
	res := &fakeResolver{
		ids:  map[string]string{"Alpha Redux": "id:Alpha"},
		fail: map[string]bool{"Broken": true},
	}
	svc := NewService(searcher, res, Config{CacheDisabled: true})

	first, err := svc.Find(context.Background(), domain.FindRequest{Query: "x", Limit: 2})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if first.Total != 3 || !first.HasMore || len(first.Items) != 2 {
		t.Fatalf("unexpected first page %+v", first)
	}
	second, err := svc.Find(context.Background(), domain.FindRequest{Query: "x", Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("Find page 2: %v", err)
	}
	ids := make([]string, 0, 3)
	for _, item := range append(first.Items, second.Items...) {
		ids = append(ids, item.Primary.ID)
	}
	if fmt.Sprint(ids) != "[id:Alpha id:Beta id:Gamma]" {
		t.Fatalf("unexpected order %v", ids)
	}
	if second.HasMore {
		t.Fatal("last page must not report more")
	}

	beyond, err := svc.Find(context.Background(), domain.FindRequest{Query: "x", Offset: 10})
	if err != nil {
		t.Fatalf("Find beyond end: %v", err)
	}
	if beyond.Items == nil || len(beyond.Items) != 0 {
		t.Fatalf("expected empty page, got %+v", beyond.Items)
	}
}

func TestFindCachesResolvedQuery(t *testing.T) {
	searcher := &fakeSearcher{results: []domain.RawSearchResult{release("Heat.1995.720p", "1 GB")}}
	svc := NewService(searcher, &fakeResolver{}, Config{})

	if _, err := svc.Find(context.Background(), domain.FindRequest{Query: "Heat"}); err != nil {
		t.Fatalf("Find: %v", err)
	}
	cached, err := svc.Find(context.Background(), domain.FindRequest{Query: " heat "})
	if err != nil {
		t.Fatalf("cached Find: %v", err)
	}
	if cached.Source != SourceCache || searcher.calls.Load() != 1 {
		t.Fatalf("expected cache hit, source=%q calls=%d", cached.Source, searcher.calls.Load())
	}

	if _, err := svc.Find(context.Background(), domain.FindRequest{Query: "Heat", NoCache: true}); err != nil {
		t.Fatalf("uncached Find: %v", err)
	}
	if searcher.calls.Load() != 2 {
		t.Fatalf("NoCache must bypass the cache")
	}
}

func TestFindPropagatesNoResults(t *testing.T) {
	searcher := &fakeSearcher{err: fmt.Errorf("%w: exhausted", domain.ErrNoResults)}
	svc := NewService(searcher, &fakeResolver{}, Config{})
	if _, err := svc.Find(context.Background(), domain.FindRequest{Query: "nothing"}); !errors.Is(err, domain.ErrNoResults) {
		t.Fatalf("expected ErrNoResults, got %v", err)
	}
}

func TestFindUnresolvedCandidatesYieldNoResults(t *testing.T) {
	searcher := &fakeSearcher{results: []domain.RawSearchResult{release("Broken.2004.720p", "1 GB")}}
	svc := NewService(searcher, &fakeResolver{fail: map[string]bool{"Broken": true}}, Config{})
	if _, err := svc.Find(context.Background(), domain.FindRequest{Query: "broken"}); !errors.Is(err, domain.ErrNoResults) {
		t.Fatalf("expected ErrNoResults, got %v", err)
	}
}

func TestFindStoredFirst(t *testing.T) {
	searcher := &fakeSearcher{}
	res := &fakeResolver{}
	index := &fakeIndex{movies: []domain.Movie{{ID: "tt0113277", Title: "Heat", Year: 1995}}}
	svc := NewService(searcher, res, Config{StoredFirst: true}, WithMovieIndex(index))

	got, err := svc.Find(context.Background(), domain.FindRequest{Query: "heat"})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got.Source != SourceStore || got.Items[0].Primary.ID != "tt0113277" {
		t.Fatalf("unexpected response %+v", got)
	}
	if searcher.calls.Load() != 0 || res.translated.Load() != 1 {
		t.Fatalf("expected store answer without provider search")
	}
}

func TestFindStoredFirstAttachesStoredTorrent(t *testing.T) {
	index := &fakeIndex{
		movies: []domain.Movie{
			{ID: "tt0113277", Title: "Heat", Year: 1995},
			{ID: "tt0000001", Title: "Heat Wave", Year: 1935},
		},
		torrents: map[string][]domain.TorrentRecord{
			"tt0113277": {
				{MovieID: "tt0113277", Title: "Heat.1995.1080p.BluRay", Size: "2.3 GB", Seeds: 40, Magnet: "magnet:?xt=urn:btih:aa", InfoHash: "aa", Provider: "yts", Descriptor: []byte("d8:announce")},
				{MovieID: "tt0113277", Title: "Heat.1995.720p.WEBRip", Size: "1.1 GB", Magnet: "magnet:?xt=urn:btih:bb", InfoHash: "bb", Provider: "piratebay"},
			},
		},
	}
	svc := NewService(&fakeSearcher{}, &fakeResolver{}, Config{StoredFirst: true}, WithMovieIndex(index))

	got, err := svc.Find(context.Background(), domain.FindRequest{Query: "heat"})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(got.Items) != 2 {
		t.Fatalf("expected both stored movies, got %+v", got.Items)
	}
	torrent := got.Items[0].Torrent
	if torrent == nil {
		t.Fatal("expected stored torrent on tt0113277")
	}
	if torrent.Title != "Heat.1995.1080p.BluRay" || torrent.InfoHash != "aa" || torrent.Provider != "yts" || !torrent.HasDescriptor {
		t.Fatalf("unexpected torrent %+v", torrent)
	}
	if got.Items[1].Torrent != nil {
		t.Fatalf("movie without stored torrents should have none, got %+v", got.Items[1].Torrent)
	}
}

func TestFindValidatesRequest(t *testing.T) {
	svc := NewService(&fakeSearcher{}, &fakeResolver{}, Config{})
	if _, err := svc.Find(context.Background(), domain.FindRequest{Query: "  "}); !errors.Is(err, domain.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
	if _, err := svc.Find(context.Background(), domain.FindRequest{Query: "x", Offset: -1}); !errors.Is(err, domain.ErrInvalidOffset) {
		t.Fatalf("expected ErrInvalidOffset, got %v", err)
	}
}
