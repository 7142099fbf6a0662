// Package release turns raw release filenames into movie identities and
// decides which search results are worth resolving.
package release

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"torrentstream/moviesearch/internal/domain"
)

var (
	tokenPattern      = regexp.MustCompile(`[\p{L}\p{N}'&-]+`)
	yearPattern       = regexp.MustCompile(`^(?:19|20)\d{2}$`)
	resolutionPattern = regexp.MustCompile(`(?i)^\d{3,4}p$`)
	seasonPattern     = regexp.MustCompile(`(?i)^s\d{1,2}(?:e\d{1,3})?$`)
)

type token struct {
	key   string
	start int
}

// Parse derives the grouping identity of a release. Titles containing a space
// use the spaced convention ("Movie Name (2010) 1080p"), everything else the
// dotted one ("Movie.Name.2010.1080p.x264-GROUP"). The title run ends at the
// first year, resolution or season token that follows at least one title
// word. Year is 0 when no year token ends the run.
func Parse(raw string) domain.ParsedRelease {
	parsed := domain.ParsedRelease{ReleaseTitle: raw}

	value := stripLeadingTags(strings.TrimSpace(raw))
	if value == "" {
		return parsed
	}
	dotted := !strings.ContainsAny(value, " \t")

	end := len(value)
	keys := make([]string, 0, 8)
	for _, tok := range tokenize(value) {
		if len(keys) > 0 {
			if yearPattern.MatchString(tok.key) {
				parsed.Year, _ = strconv.Atoi(tok.key)
				end = tok.start
				break
			}
			if resolutionPattern.MatchString(tok.key) || seasonPattern.MatchString(tok.key) {
				end = tok.start
				break
			}
		}
		keys = append(keys, tok.key)
	}

	parsed.CroppedTitle = strings.Join(keys, " ")
	parsed.MovieTitle = displayTitle(value[:end], dotted)
	if parsed.MovieTitle == "" {
		parsed.MovieTitle = parsed.CroppedTitle
	}
	return parsed
}

// CropTitle returns only the grouping key of a release.
func CropTitle(raw string) string {
	return Parse(raw).CroppedTitle
}

func tokenize(value string) []token {
	matches := tokenPattern.FindAllStringIndex(value, -1)
	tokens := make([]token, 0, len(matches))
	for _, match := range matches {
		raw := value[match[0]:match[1]]
		key := strings.Trim(raw, "-'")
		if !hasLetterOrDigit(key) {
			continue
		}
		tokens = append(tokens, token{key: key, start: match[0]})
	}
	return tokens
}

func stripLeadingTags(value string) string {
	for strings.HasPrefix(value, "[") {
		closing := strings.Index(value, "]")
		if closing < 0 {
			break
		}
		value = strings.TrimSpace(value[closing+1:])
	}
	return value
}

func displayTitle(prefix string, dotted bool) string {
	if dotted {
		prefix = strings.NewReplacer(".", " ", "_", " ").Replace(prefix)
	}
	prefix = strings.Join(strings.Fields(prefix), " ")
	return strings.TrimRight(prefix, " .-_:,;([{")
}

func hasLetterOrDigit(value string) bool {
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
