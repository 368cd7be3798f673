package catalog

import (
	"strings"

	"watchfront/models"
)

const (
	MaxSuggestions   = 5
	MinSuggestLength = 2
)

// Suggestion is an advisory completion for the search box. Picking one just
// fills the search term; it has no matching semantics of its own.
type Suggestion struct {
	Text     string          `json:"text"`
	Source   string          `json:"source"`
	Category models.Category `json:"category"`
}

var suggestAttributes = []string{models.AttrBrand, models.AttrModel, models.AttrYear}

// Suggest returns up to MaxSuggestions distinct titles and Brand/Model/Year
// values containing partial, in collection order.
func Suggest(c *Collection, partial string) []Suggestion {
	term := strings.ToLower(strings.TrimSpace(partial))
	if len([]rune(term)) < MinSuggestLength || c == nil {
		return nil
	}

	seen := make(map[string]bool)
	var out []Suggestion
	add := func(text, source string, category models.Category) bool {
		if text == "" || seen[text] || !strings.Contains(strings.ToLower(text), term) {
			return false
		}
		seen[text] = true
		out = append(out, Suggestion{Text: text, Source: source, Category: category})
		return len(out) >= MaxSuggestions
	}

	for i := range c.listings {
		l := &c.listings[i]
		category := Classify(l)
		if add(l.Title, "title", category) {
			return out
		}
		for _, a := range l.Attributes {
			for _, name := range suggestAttributes {
				if !strings.EqualFold(strings.TrimSpace(a.Name), name) {
					continue
				}
				if add(strings.TrimSpace(a.Value), strings.ToLower(name), category) {
					return out
				}
			}
		}
	}
	return out
}
