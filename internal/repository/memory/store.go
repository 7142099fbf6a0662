// Package memory is an in-process store for deployments without MongoDB.
// Writes are last-writer-wins per id.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"torrentstream/moviesearch/internal/domain"
)

type Store struct {
	mu           sync.RWMutex
	movies       map[string]domain.Movie
	translations map[string]domain.Translation
	torrents     map[string]domain.TorrentRecord
	now          func() time.Time
}

func NewStore() *Store {
	return &Store{
		movies:       make(map[string]domain.Movie),
		translations: make(map[string]domain.Translation),
		torrents:     make(map[string]domain.TorrentRecord),
		now:          time.Now,
	}
}

func (s *Store) GetMovie(_ context.Context, id string) (domain.Movie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	movie, ok := s.movies[strings.TrimSpace(id)]
	if !ok {
		return domain.Movie{}, domain.ErrNotFound
	}
	return movie, nil
}

// FindMovie matches on the folded title. A zero year matches any year.
func (s *Store) FindMovie(_ context.Context, title string, year int) (domain.Movie, error) {
	key := domain.TitleKey(title)
	if key == "" {
		return domain.Movie{}, domain.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		best  domain.Movie
		found bool
	)
	for _, movie := range s.movies {
		if domain.TitleKey(movie.Title) != key {
			continue
		}
		if year > 0 && movie.Year != year {
			continue
		}
		// Deterministic pick when several records share a title.
		if !found || movie.ID < best.ID {
			best, found = movie, true
		}
	}
	if !found {
		return domain.Movie{}, domain.ErrNotFound
	}
	return best, nil
}

func (s *Store) UpsertMovie(_ context.Context, movie domain.Movie) error {
	id := strings.TrimSpace(movie.ID)
	if id == "" {
		return domain.ErrInvalidMovie
	}
	movie.ID = id
	if movie.UpdatedAt.IsZero() {
		movie.UpdatedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.movies[id]; ok {
		s.movies[id] = domain.MergeMovie(prev, movie)
		return nil
	}
	s.movies[id] = domain.MergeMovie(domain.Movie{}, movie)
	return nil
}

// SearchMovies returns stored movies whose folded title contains the folded
// query, ordered by title.
func (s *Store) SearchMovies(_ context.Context, query string, limit int) ([]domain.Movie, error) {
	key := domain.TitleKey(query)
	if key == "" {
		return nil, domain.ErrInvalidQuery
	}
	s.mu.RLock()
	matches := make([]domain.Movie, 0)
	for _, movie := range s.movies {
		if strings.Contains(domain.TitleKey(movie.Title), key) {
			matches = append(matches, movie)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Title != matches[j].Title {
			return matches[i].Title < matches[j].Title
		}
		return matches[i].ID < matches[j].ID
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *Store) GetTranslation(_ context.Context, movieID string) (domain.Translation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	translation, ok := s.translations[strings.TrimSpace(movieID)]
	if !ok {
		return domain.Translation{}, domain.ErrNotFound
	}
	return translation, nil
}

func (s *Store) UpsertTranslation(_ context.Context, movieID string, translation domain.Translation) error {
	id := strings.TrimSpace(movieID)
	if id == "" {
		return domain.ErrInvalidMovie
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.translations[id] = translation
	return nil
}

// UpsertTorrentRecord keys records by infohash, falling back to the magnet.
func (s *Store) UpsertTorrentRecord(_ context.Context, candidate domain.TorrentCandidate, movieID string) error {
	id := strings.TrimSpace(movieID)
	if id == "" {
		return domain.ErrInvalidMovie
	}
	record := domain.NewTorrentRecord(candidate, id)
	key := torrentKey(record)
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.torrents[key] = record
	return nil
}

// TorrentsFor lists the stored torrents of a movie ordered by title.
func (s *Store) TorrentsFor(_ context.Context, movieID string) ([]domain.TorrentRecord, error) {
	s.mu.RLock()
	records := make([]domain.TorrentRecord, 0)
	for _, record := range s.torrents {
		if record.MovieID == movieID {
			records = append(records, record)
		}
	}
	s.mu.RUnlock()
	sort.Slice(records, func(i, j int) bool { return records[i].Title < records[j].Title })
	return records, nil
}

func torrentKey(record domain.TorrentRecord) string {
	if hash := strings.ToLower(strings.TrimSpace(record.InfoHash)); hash != "" {
		return hash
	}
	return strings.TrimSpace(record.Magnet)
}
