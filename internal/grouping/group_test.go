package grouping

import (
	"fmt"
	"testing"

	"torrentstream/moviesearch/internal/domain"
)

func result(title, size string) domain.RawSearchResult {
	return domain.RawSearchResult{Title: title, Size: size, Magnet: "magnet:?xt=urn:btih:" + title}
}

func TestGroupKeepsSmallestReleasePerTitle(t *testing.T) {
	got := Group([]domain.RawSearchResult{
		result("Inception.2010.1080p.BluRay.x264-GROUP", "2.1 GB"),
		result("Inception.2010.720p.WEBRip.x264-GROUP", "1.1 GB"),
	}, DefaultOptions())

	if len(got) != 1 {
		t.Fatalf("expected one candidate, got %d", len(got))
	}
	if got[0].Result.Title != "Inception.2010.720p.WEBRip.x264-GROUP" {
		t.Fatalf("expected the 1.1 GB release, got %q", got[0].Result.Title)
	}
	if got[0].Release.CroppedTitle != "Inception" || got[0].Release.Year != 2010 {
		t.Fatalf("unexpected release %+v", got[0].Release)
	}
	if got[0].SizeGB != 1.1 {
		t.Fatalf("unexpected size %v", got[0].SizeGB)
	}
}

func TestGroupNeverReturnsDuplicateTitles(t *testing.T) {
	inputs := []domain.RawSearchResult{
		result("Movie.A.2010.1080p", "1.5 GB"),
		result("Movie B (2011) 720p", "900 MB"),
		result("Movie.A.2010.720p", "0.9 GB"),
		result("Movie.B.2011.1080p", "2 GB"),
		result("Movie.C.2012.1080p", ""),
		result("Movie.C.2012.720p", "n/a"),
	}
	got := Group(inputs, DefaultOptions())

	seen := map[string]bool{}
	for _, candidate := range got {
		if seen[candidate.Release.CroppedTitle] {
			t.Fatalf("duplicate cropped title %q", candidate.Release.CroppedTitle)
		}
		seen[candidate.Release.CroppedTitle] = true
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d: %+v", len(got), got)
	}
	if got[len(got)-1].Release.CroppedTitle != "Movie C" {
		t.Fatalf("unknown sizes must sort last, got %+v", got)
	}
	if got[len(got)-1].Result.Title != "Movie.C.2012.1080p" {
		t.Fatalf("ties must keep input order, got %q", got[len(got)-1].Result.Title)
	}
}

func TestGroupEmptyInput(t *testing.T) {
	got := Group(nil, DefaultOptions())
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestGroupRaisesCeilingWhenNothingFits(t *testing.T) {
	got := Group([]domain.RawSearchResult{
		result("Big.Movie.2019.2160p", "9.5 GB"),
		result("Big.Movie.2019.1080p", "6 GB"),
	}, Options{SizeCeilingGB: 3, SizeStepGB: 1, MaxExpansions: 10})

	if len(got) != 1 {
		t.Fatalf("expected one candidate, got %d", len(got))
	}
	if got[0].SizeGB != 6 {
		t.Fatalf("expected the 6 GB release, got %v", got[0].SizeGB)
	}
}

func TestGroupCeilingExpansionIsBounded(t *testing.T) {
	got := Group([]domain.RawSearchResult{
		result("Huge.Movie.2019.2160p", "80 GB"),
	}, Options{SizeCeilingGB: 3, SizeStepGB: 1, MaxExpansions: 5})
	if len(got) != 0 {
		t.Fatalf("expected nothing within the bounded ceiling, got %+v", got)
	}

	got = Group([]domain.RawSearchResult{
		result("Huge.Movie.2019.2160p", "80 GB"),
	}, Options{SizeCeilingGB: 3, SizeStepGB: 0, MaxExpansions: 1000})
	if len(got) != 0 {
		t.Fatalf("zero step must not loop, got %+v", got)
	}
}

func TestGroupZeroCeilingIsUnlimited(t *testing.T) {
	got := Group([]domain.RawSearchResult{
		result("Huge.Movie.2019.2160p", "80 GB"),
	}, Options{})
	if len(got) != 1 {
		t.Fatalf("expected one candidate, got %d", len(got))
	}
}

func TestGroupDoesNotMutateInput(t *testing.T) {
	inputs := []domain.RawSearchResult{
		result("B.Movie.2010.1080p", "2 GB"),
		result("A.Movie.2010.1080p", "1 GB"),
	}
	_ = Group(inputs, DefaultOptions())
	if inputs[0].Title != "B.Movie.2010.1080p" {
		t.Fatalf("input reordered: %+v", inputs)
	}
}

func TestGroupManyTitles(t *testing.T) {
	inputs := make([]domain.RawSearchResult, 0, 40)
	for i := 0; i < 20; i++ {
		inputs = append(inputs,
			result(fmt.Sprintf("Title%02d.2000.1080p", i), "1.5 GB"),
			result(fmt.Sprintf("Title%02d.2000.720p", i), "0.8 GB"),
		)
	}
	got := Group(inputs, DefaultOptions())
	if len(got) != 20 {
		t.Fatalf("expected 20 candidates, got %d", len(got))
	}
	for _, candidate := range got {
		if candidate.SizeGB != 0.8 {
			t.Fatalf("expected smallest release per title, got %+v", candidate)
		}
	}
}
