package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
)

func completeMovie() Movie {
	return Movie{
		ID:        "tt1375666",
		Title:     "Inception",
		Year:      2010,
		Image:     "https://img/inception.jpg",
		Plot:      "A thief who steals corporate secrets.",
		Rating:    "8.8",
		Directors: []string{"Christopher Nolan"},
		Cast:      []string{"Leonardo DiCaprio"},
	}
}

func TestMovieComplete(t *testing.T) {
	if !completeMovie().Complete() {
		t.Fatal("expected complete movie")
	}

	cases := map[string]func(*Movie){
		"id":       func(m *Movie) { m.ID = "" },
		"title":    func(m *Movie) { m.Title = " " },
		"year":     func(m *Movie) { m.Year = 0 },
		"image":    func(m *Movie) { m.Image = "" },
		"plot":     func(m *Movie) { m.Plot = "" },
		"rating":   func(m *Movie) { m.Rating = "" },
		"director": func(m *Movie) { m.Directors = nil },
		"cast":     func(m *Movie) { m.Cast = []string{} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			movie := completeMovie()
			mutate(&movie)
			if movie.Complete() {
				t.Fatalf("expected incomplete movie without %s", name)
			}
		})
	}
}

func TestMergeMovieKeepsCountersAndOptionalFields(t *testing.T) {
	prev := completeMovie()
	prev.Views = 42
	prev.Votes = 7
	prev.UserRating = 4.5
	prev.RuntimeMins = 148
	prev.ContentRating = "PG-13"
	prev.Keywords = []string{"dream"}

	next := Movie{
		ID:    prev.ID,
		Title: "Inception (refreshed)",
		Year:  2010,
		Image: "https://img/new.jpg",
	}

	merged := MergeMovie(prev, next)
	if merged.Title != "Inception (refreshed)" || merged.Image != "https://img/new.jpg" {
		t.Fatalf("descriptive fields not replaced: %+v", merged)
	}
	if merged.Plot != "" || merged.Rating != "" {
		t.Fatalf("descriptive fields must be fully replaced, got plot=%q rating=%q", merged.Plot, merged.Rating)
	}
	if merged.Views != 42 || merged.Votes != 7 || merged.UserRating != 4.5 {
		t.Fatalf("counters clobbered: %+v", merged)
	}
	if merged.RuntimeMins != 148 || merged.ContentRating != "PG-13" {
		t.Fatalf("optional fields clobbered: %+v", merged)
	}
	if len(merged.Directors) != 1 || len(merged.Cast) != 1 || len(merged.Keywords) != 1 {
		t.Fatalf("list fields clobbered: %+v", merged)
	}

	next.RuntimeMins = 150
	next.Views = 100
	merged = MergeMovie(prev, next)
	if merged.RuntimeMins != 150 || merged.Views != 100 {
		t.Fatalf("present values must win: %+v", merged)
	}
}

func TestLocalizeFallsBackToPrimary(t *testing.T) {
	primary := ViewOf(completeMovie())
	localized := primary.Localize(Translation{ID: "447301", IMDbID: "tt1375666", Title: "Начало"})
	if localized.Title != "Начало" {
		t.Fatalf("unexpected title %q", localized.Title)
	}
	if localized.Image != primary.Image || localized.Description != primary.Description {
		t.Fatalf("empty translated fields must keep primary values: %+v", localized)
	}
	if localized.ID != primary.ID || localized.LocalizedID != "447301" {
		t.Fatalf("unexpected ids: %+v", localized)
	}

	localized.Cast[0] = "changed"
	if primary.Cast[0] == "changed" {
		t.Fatal("localized view shares slices with primary")
	}
}

func TestUntranslatedSecondaryEqualsPrimary(t *testing.T) {
	pair := Untranslated(completeMovie())
	if pair.Secondary.ID != pair.Primary.ID || pair.Secondary.Title != pair.Primary.Title {
		t.Fatalf("secondary must mirror primary: %+v", pair)
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "wrapped transient", err: fmt.Errorf("call: %w", Transient("kinopoisk", errors.New("HTTP 429"))), want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "eof", err: io.ErrUnexpectedEOF, want: true},
		{name: "reset string", err: errors.New("read: connection reset by peer"), want: true},
		{name: "not found", err: ErrNotFound, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestResolutionErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("batch: %w", &ResolutionError{Title: "Brazil", Err: ErrNotFound})
	if !errors.Is(err, ErrResolution) {
		t.Fatal("expected ErrResolution")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("expected wrapped ErrNotFound")
	}
}

func TestTitleKey(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"Amélie", "amelie"},
		{"  Léon: The Professional ", "leon the professional"},
		{"Fast & Furious", "fast and furious"},
		{"Wall-E!", "wall e"},
		{"Левиафан", "левиафан"},
	}
	for _, tc := range cases {
		if got := TitleKey(tc.input); got != tc.want {
			t.Errorf("TitleKey(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
