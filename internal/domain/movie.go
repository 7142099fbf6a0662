package domain

import (
	"strings"
	"time"
)

// Movie is the canonical record keyed by its external catalog id.
// Ratings are kept as the raw strings the catalog returned.
type Movie struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Year          int       `json:"year"`
	Image         string    `json:"image,omitempty"`
	Plot          string    `json:"plot,omitempty"`
	Genres        []string  `json:"genres,omitempty"`
	Directors     []string  `json:"directors,omitempty"`
	Cast          []string  `json:"cast,omitempty"`
	Keywords      []string  `json:"keywords,omitempty"`
	Rating        string    `json:"rating,omitempty"`
	RatingCount   string    `json:"ratingCount,omitempty"`
	RuntimeMins   int       `json:"runtimeMins,omitempty"`
	ContentRating string    `json:"contentRating,omitempty"`
	Views         int64     `json:"views,omitempty"`
	Votes         int64     `json:"votes,omitempty"`
	UserRating    float64   `json:"userRating,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt,omitempty"`
}

// Complete reports whether every field a catalog answer must carry is filled.
func (m Movie) Complete() bool {
	return strings.TrimSpace(m.ID) != "" &&
		strings.TrimSpace(m.Title) != "" &&
		m.Year > 0 &&
		strings.TrimSpace(m.Image) != "" &&
		strings.TrimSpace(m.Plot) != "" &&
		strings.TrimSpace(m.Rating) != "" &&
		len(m.Directors) > 0 &&
		len(m.Cast) > 0
}

// MergeMovie applies a metadata refresh on top of a stored record. Descriptive
// fields are replaced. Optional fields and counters keep their stored values
// unless the refresh carries a value.
func MergeMovie(prev, next Movie) Movie {
	merged := prev
	merged.ID = next.ID
	merged.Title = next.Title
	merged.Year = next.Year
	merged.Image = next.Image
	merged.Plot = next.Plot
	merged.Genres = cloneStrings(next.Genres)
	merged.Rating = next.Rating
	merged.RatingCount = next.RatingCount

	if next.RuntimeMins > 0 {
		merged.RuntimeMins = next.RuntimeMins
	}
	if next.ContentRating != "" {
		merged.ContentRating = next.ContentRating
	}
	if len(next.Directors) > 0 {
		merged.Directors = cloneStrings(next.Directors)
	}
	if len(next.Cast) > 0 {
		merged.Cast = cloneStrings(next.Cast)
	}
	if len(next.Keywords) > 0 {
		merged.Keywords = cloneStrings(next.Keywords)
	}
	if next.Views > 0 {
		merged.Views = next.Views
	}
	if next.Votes > 0 {
		merged.Votes = next.Votes
	}
	if next.UserRating > 0 {
		merged.UserRating = next.UserRating
	}
	if !next.UpdatedAt.IsZero() {
		merged.UpdatedAt = next.UpdatedAt
	}
	return merged
}

// Translation is a localized entry from the translation catalog. IMDbID is
// the cross-reference used to verify the entry belongs to a canonical movie.
type Translation struct {
	ID               string `json:"id"`
	IMDbID           string `json:"imdbId"`
	Title            string `json:"title"`
	OriginalTitle    string `json:"originalTitle,omitempty"`
	Description      string `json:"description,omitempty"`
	PosterURL        string `json:"posterUrl,omitempty"`
	PosterPreviewURL string `json:"posterPreviewUrl,omitempty"`
	Year             int    `json:"year,omitempty"`
}

type MovieView struct {
	ID            string   `json:"id"`
	LocalizedID   string   `json:"localizedId,omitempty"`
	Title         string   `json:"title"`
	Year          int      `json:"year"`
	Image         string   `json:"image,omitempty"`
	Description   string   `json:"description,omitempty"`
	Genres        []string `json:"genres,omitempty"`
	Directors     []string `json:"directors,omitempty"`
	Cast          []string `json:"cast,omitempty"`
	Rating        string   `json:"rating,omitempty"`
	RuntimeMins   int      `json:"runtimeMins,omitempty"`
	ContentRating string   `json:"contentRating,omitempty"`
}

func ViewOf(m Movie) MovieView {
	return MovieView{
		ID:            m.ID,
		Title:         m.Title,
		Year:          m.Year,
		Image:         m.Image,
		Description:   m.Plot,
		Genres:        cloneStrings(m.Genres),
		Directors:     cloneStrings(m.Directors),
		Cast:          cloneStrings(m.Cast),
		Rating:        m.Rating,
		RuntimeMins:   m.RuntimeMins,
		ContentRating: m.ContentRating,
	}
}

// Localize overlays a translation on a primary view. Empty translated fields
// fall back to the primary values.
func (v MovieView) Localize(t Translation) MovieView {
	out := v
	out.Genres = cloneStrings(v.Genres)
	out.Directors = cloneStrings(v.Directors)
	out.Cast = cloneStrings(v.Cast)
	out.LocalizedID = t.ID
	if strings.TrimSpace(t.Title) != "" {
		out.Title = t.Title
	}
	if t.PosterPreviewURL != "" {
		out.Image = t.PosterPreviewURL
	} else if t.PosterURL != "" {
		out.Image = t.PosterURL
	}
	if strings.TrimSpace(t.Description) != "" {
		out.Description = t.Description
	}
	return out
}

type TranslatedMovie struct {
	Primary   MovieView   `json:"primary"`
	Secondary MovieView   `json:"secondary"`
	Torrent   *TorrentRef `json:"torrent,omitempty"`
}

// Untranslated builds a pair whose secondary view is a copy of the primary.
func Untranslated(m Movie) TranslatedMovie {
	primary := ViewOf(m)
	return TranslatedMovie{Primary: primary, Secondary: ViewOf(m)}
}

func cloneStrings(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	return append([]string(nil), items...)
}
