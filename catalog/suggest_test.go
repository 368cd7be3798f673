package catalog

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"watchfront/models"
)

func TestSuggestDedupesAndTags(t *testing.T) {
	got := Suggest(NewCollection(SampleListings()), "SEIKO")
	want := []Suggestion{
		{Text: "Seiko 5 Sports Automatic Diver 7S26", Source: "title", Category: models.CategoryAutomatic},
		{Text: "Seiko", Source: "brand", Category: models.CategoryAutomatic},
		{Text: "Seiko 7T32 Chronograph", Source: "title", Category: models.CategoryQuartz},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Suggest (-want +got):\n%s", diff)
	}
}

func TestSuggestCapsAtFive(t *testing.T) {
	got := Suggest(NewCollection(SampleListings()), "se")
	if len(got) != MaxSuggestions {
		t.Fatalf("got %d suggestions, want %d", len(got), MaxSuggestions)
	}
	seen := map[string]bool{}
	for _, s := range got {
		if seen[s.Text] {
			t.Errorf("duplicate suggestion %q", s.Text)
		}
		seen[s.Text] = true
	}
	if got[1].Text != "Seamaster" || got[1].Source != "model" {
		t.Errorf("second suggestion = %+v, want the Seamaster model", got[1])
	}
}

func TestSuggestShortInput(t *testing.T) {
	c := NewCollection(SampleListings())
	for _, in := range []string{"", "s", "  o  "} {
		if got := Suggest(c, in); len(got) != 0 {
			t.Errorf("Suggest(%q) = %v, want none", in, got)
		}
	}
	if got := Suggest(nil, "seiko"); got != nil {
		t.Errorf("nil collection should yield nothing, got %v", got)
	}
}

func TestSuggestIgnoresOtherAttributes(t *testing.T) {
	c := NewCollection([]models.Listing{{
		ID:    "1",
		Title: "Plain watch",
		Attributes: []models.Attribute{
			{Name: "Movement", Value: "Manual wind"},
			{Name: "year", Value: "Manual 1950"},
		},
	}})
	got := Suggest(c, "manual")
	want := []Suggestion{{Text: "Manual 1950", Source: "year", Category: models.CategoryQuartz}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}
