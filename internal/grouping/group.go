// Package grouping collapses releases of the same movie into one candidate.
package grouping

import (
	"sort"

	"torrentstream/moviesearch/internal/domain"
	"torrentstream/moviesearch/internal/release"
)

const (
	DefaultSizeCeilingGB = 3
	DefaultSizeStepGB    = 1
	DefaultMaxExpansions = 20
)

type Options struct {
	SizeCeilingGB float64
	SizeStepGB    float64
	// MaxExpansions bounds how many times the ceiling is raised when nothing
	// fits under it.
	MaxExpansions int
}

func DefaultOptions() Options {
	return Options{
		SizeCeilingGB: DefaultSizeCeilingGB,
		SizeStepGB:    DefaultSizeStepGB,
		MaxExpansions: DefaultMaxExpansions,
	}
}

// Group keeps one candidate per cropped title. Results are ordered by size
// ascending (unknown sizes last, ties keep input order) and the first release
// seen for a title under the size ceiling wins. When nothing fits, the
// ceiling grows by the step until MaxExpansions is reached.
func Group(results []domain.RawSearchResult, opts Options) []domain.TorrentCandidate {
	if len(results) == 0 {
		return []domain.TorrentCandidate{}
	}

	candidates := make([]domain.TorrentCandidate, 0, len(results))
	for _, result := range results {
		parsed := release.Parse(result.Title)
		if parsed.CroppedTitle == "" {
			continue
		}
		candidates = append(candidates, domain.TorrentCandidate{
			Release: parsed,
			Result:  result,
			SizeGB:  release.ParseSize(result.Size),
		})
	}
	if len(candidates) == 0 {
		return []domain.TorrentCandidate{}
	}
	sortBySize(candidates)

	ceiling := opts.SizeCeilingGB
	expansions := opts.MaxExpansions
	if expansions < 0 {
		expansions = 0
	}
	for attempt := 0; attempt <= expansions; attempt++ {
		grouped := pickFirstPerTitle(candidates, ceiling)
		if len(grouped) > 0 {
			return grouped
		}
		if opts.SizeStepGB <= 0 {
			break
		}
		ceiling += opts.SizeStepGB
	}
	return []domain.TorrentCandidate{}
}

func sortBySize(candidates []domain.TorrentCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		left, right := candidates[i].SizeGB, candidates[j].SizeGB
		if left <= 0 || right <= 0 {
			return left > 0 && right <= 0
		}
		return left < right
	})
}

// pickFirstPerTitle treats a non-positive ceiling as unlimited. Unknown sizes
// always fit.
func pickFirstPerTitle(candidates []domain.TorrentCandidate, ceiling float64) []domain.TorrentCandidate {
	seen := make(map[string]struct{}, len(candidates))
	grouped := make([]domain.TorrentCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		if ceiling > 0 && candidate.SizeGB > ceiling {
			continue
		}
		key := candidate.Release.CroppedTitle
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		grouped = append(grouped, candidate)
	}
	return grouped
}
