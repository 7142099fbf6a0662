package common

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"torrentstream/moviesearch/internal/domain"
)

var tagPattern = regexp.MustCompile(`<[^>]+>`)

func CleanHTMLText(raw string) string {
	value := strings.TrimSpace(raw)
	value = html.UnescapeString(value)
	value = tagPattern.ReplaceAllString(value, " ")
	value = strings.Join(strings.Fields(value), " ")
	return value
}

// ParseCount reads seeder/leecher style counters such as "1,204" or "1 204".
func ParseCount(raw string) int {
	var digits strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	value, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return value
}

// TitleSimilarity compares two titles after folding with domain.TitleKey and returns a score in
// [0, 1] derived from the Levenshtein distance over runes.
func TitleSimilarity(a, b string) float64 {
	left := []rune(domain.TitleKey(a))
	right := []rune(domain.TitleKey(b))
	if string(left) == string(right) {
		return 1
	}
	if len(left) == 0 || len(right) == 0 {
		return 0
	}
	distance := levenshtein(left, right)
	return 1 - float64(distance)/float64(max(len(left), len(right)))
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
