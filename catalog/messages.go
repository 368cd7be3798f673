package catalog

import (
	"fmt"
	"strings"
)

// CountMessage is shown above search results.
func CountMessage(n int) string {
	if n == 1 {
		return "1 watch found for your search."
	}
	return fmt.Sprintf("%d watches found for your search.", n)
}

// EmptyMessage names the active search term or category when nothing
// survived selection.
func EmptyMessage(v ViewState) string {
	if v.Searching() {
		return fmt.Sprintf("No watches found matching %q.", strings.TrimSpace(v.Search))
	}
	category := strings.ToLower(strings.TrimSpace(v.Category))
	if category == "" || category == CategoryAll {
		return "No watches available."
	}
	return fmt.Sprintf("No %s watches found.", category)
}

// StatusMessage returns the line shown above the cards: the search count
// while searching, the empty-state text when nothing matched, or "".
func StatusMessage(v ViewState, n int) string {
	if n == 0 {
		return EmptyMessage(v)
	}
	if v.Searching() {
		return CountMessage(n)
	}
	return ""
}
