package imdb

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"torrentstream/moviesearch/internal/domain"
)

var durationPattern = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?`)

type titleLD struct {
	Type          string          `json:"@type"`
	Name          string          `json:"name"`
	Image         string          `json:"image"`
	Description   string          `json:"description"`
	DatePublished string          `json:"datePublished"`
	Duration      string          `json:"duration"`
	ContentRating string          `json:"contentRating"`
	Keywords      string          `json:"keywords"`
	Genre         json.RawMessage `json:"genre"`
	Director      json.RawMessage `json:"director"`
	Actor         json.RawMessage `json:"actor"`
	Rating        struct {
		Value json.Number `json:"ratingValue"`
		Count json.Number `json:"ratingCount"`
	} `json:"aggregateRating"`
}

type personLD struct {
	Name string `json:"name"`
}

func parseTitlePage(doc *goquery.Document, id string) (domain.Movie, error) {
	var (
		ld    titleLD
		found bool
	)
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, node *goquery.Selection) bool {
		var candidate titleLD
		if err := json.Unmarshal([]byte(node.Text()), &candidate); err != nil {
			return true
		}
		if strings.TrimSpace(candidate.Name) == "" {
			return true
		}
		ld, found = candidate, true
		return false
	})
	if !found {
		return domain.Movie{}, fmt.Errorf("imdb %s: no structured data on title page", id)
	}

	movie := domain.Movie{
		ID:            id,
		Title:         html.UnescapeString(strings.TrimSpace(ld.Name)),
		Year:          parseYear(ld.DatePublished),
		Image:         strings.TrimSpace(ld.Image),
		Plot:          html.UnescapeString(strings.TrimSpace(ld.Description)),
		Genres:        stringList(ld.Genre),
		Directors:     personNames(ld.Director),
		Cast:          personNames(ld.Actor),
		Keywords:      splitKeywords(ld.Keywords),
		Rating:        ld.Rating.Value.String(),
		RatingCount:   ld.Rating.Count.String(),
		RuntimeMins:   parseDuration(ld.Duration),
		ContentRating: strings.TrimSpace(ld.ContentRating),
		UpdatedAt:     time.Now().UTC(),
	}
	return movie, nil
}

func parseYear(date string) int {
	date = strings.TrimSpace(date)
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}

// parseDuration reads ISO-8601 durations of the PT#H#M form into minutes.
func parseDuration(raw string) int {
	match := durationPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if match == nil {
		return 0
	}
	hours, _ := strconv.Atoi(match[1])
	minutes, _ := strconv.Atoi(match[2])
	return hours*60 + minutes
}

// stringList accepts either a JSON string or an array of strings.
func stringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single = strings.TrimSpace(single); single != "" {
			return []string{html.UnescapeString(single)}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil
	}
	out := make([]string, 0, len(many))
	for _, value := range many {
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, html.UnescapeString(value))
		}
	}
	return out
}

// personNames accepts a single person object or an array of them.
func personNames(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var people []personLD
	if err := json.Unmarshal(raw, &people); err != nil {
		var single personLD
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil
		}
		people = []personLD{single}
	}
	out := make([]string, 0, len(people))
	for _, person := range people {
		if name := strings.TrimSpace(person.Name); name != "" {
			out = append(out, html.UnescapeString(name))
		}
	}
	return out
}

func splitKeywords(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if value := strings.TrimSpace(part); value != "" {
			out = append(out, value)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
