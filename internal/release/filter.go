package release

import (
	"regexp"
	"strings"

	"torrentstream/moviesearch/internal/domain"
)

var (
	DefaultQualityMarkers = []string{
		"720p", "1080p", "2160p",
		"brrip", "bdrip", "bluray",
		"dvdrip", "webrip", "web-dl", "hdrip",
	}
	DefaultAdultMarkers = []string{"xxx", "porn"}
)

type FilterConfig struct {
	QualityMarkers []string
	AdultMarkers   []string
	// MaxSizeGB rejects releases larger than the value. Zero disables the check.
	MaxSizeGB float64
}

func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		QualityMarkers: append([]string(nil), DefaultQualityMarkers...),
		AdultMarkers:   append([]string(nil), DefaultAdultMarkers...),
	}
}

// Filter accepts releases that name a quality marker, carry no adult marker
// and have a magnet or descriptor. An empty quality list accepts any quality.
type Filter struct {
	quality   *regexp.Regexp
	adult     *regexp.Regexp
	maxSizeGB float64
}

func NewFilter(cfg FilterConfig) *Filter {
	return &Filter{
		quality:   markerPattern(cfg.QualityMarkers),
		adult:     markerPattern(cfg.AdultMarkers),
		maxSizeGB: cfg.MaxSizeGB,
	}
}

func (f *Filter) Accept(result domain.RawSearchResult) bool {
	title := strings.TrimSpace(result.Title)
	if title == "" || !result.HasSource() {
		return false
	}
	if f.adult != nil && f.adult.MatchString(title) {
		return false
	}
	if f.quality != nil && !f.quality.MatchString(title) {
		return false
	}
	if f.maxSizeGB > 0 && ParseSize(result.Size) > f.maxSizeGB {
		return false
	}
	return true
}

// Apply keeps the accepted results in order.
func (f *Filter) Apply(results []domain.RawSearchResult) []domain.RawSearchResult {
	accepted := make([]domain.RawSearchResult, 0, len(results))
	for _, result := range results {
		if f.Accept(result) {
			accepted = append(accepted, result)
		}
	}
	return accepted
}

// markerPattern matches any marker as a whole token, case-insensitively.
func markerPattern(markers []string) *regexp.Regexp {
	quoted := make([]string, 0, len(markers))
	seen := make(map[string]struct{}, len(markers))
	for _, marker := range markers {
		value := strings.ToLower(strings.TrimSpace(marker))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		quoted = append(quoted, regexp.QuoteMeta(value))
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])(?:` + strings.Join(quoted, "|") + `)(?:$|[^\p{L}\p{N}])`)
}
