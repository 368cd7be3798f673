package catalog

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"watchfront/models"
)

// CategoryAll is the category filter value that passes every listing.
const CategoryAll = "all"

type SortMode string

const (
	SortUnsorted        SortMode = "unsorted"
	SortPriceAscending  SortMode = "price-ascending"
	SortPriceDescending SortMode = "price-descending"
	SortAlphaAscending  SortMode = "alphabetical-ascending"
	SortAlphaDescending SortMode = "alphabetical-descending"
	SortNewest          SortMode = "newest"
	SortOldest          SortMode = "oldest"
)

// SortModes lists every sort mode in menu order.
var SortModes = []SortMode{
	SortUnsorted, SortPriceAscending, SortPriceDescending,
	SortAlphaAscending, SortAlphaDescending, SortNewest, SortOldest,
}

func ParseSortMode(s string) (SortMode, bool) {
	m := SortMode(strings.TrimSpace(s))
	if slices.Contains(SortModes, m) {
		return m, true
	}
	return SortUnsorted, false
}

type DisplayMode string

const (
	DisplayGrid DisplayMode = "grid"
	DisplayList DisplayMode = "list"
)

func ParseDisplayMode(s string) (DisplayMode, bool) {
	switch DisplayMode(strings.TrimSpace(s)) {
	case DisplayGrid:
		return DisplayGrid, true
	case DisplayList:
		return DisplayList, true
	}
	return DisplayGrid, false
}

// Toggle returns the other layout.
func (d DisplayMode) Toggle() DisplayMode {
	if d == DisplayList {
		return DisplayGrid
	}
	return DisplayList
}

// ViewState is everything that decides what the storefront shows. It is a
// plain value; callers derive a new one instead of mutating shared state.
type ViewState struct {
	Category string
	Sort     SortMode
	Search   string
	Display  DisplayMode
}

func DefaultViewState() ViewState {
	return ViewState{
		Category: CategoryAll,
		Sort:     SortUnsorted,
		Display:  DisplayGrid,
	}
}

// SearchTerm is the normalized search term; empty means no search.
func (v ViewState) SearchTerm() string {
	return strings.ToLower(strings.TrimSpace(v.Search))
}

// Searching reports whether search takes precedence over the category filter.
func (v ViewState) Searching() bool {
	return v.SearchTerm() != ""
}

// Collection is the full listing set loaded once per session.
type Collection struct {
	listings []models.Listing
}

// NewCollection copies ls so later changes by the caller are not observed.
func NewCollection(ls []models.Listing) *Collection {
	return &Collection{listings: slices.Clone(ls)}
}

func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.listings)
}

// Listings returns a copy of the collection in load order.
func (c *Collection) Listings() []models.Listing {
	if c == nil {
		return nil
	}
	return slices.Clone(c.listings)
}

// ApplyView runs selection then sort and returns a fresh ordered slice.
func ApplyView(c *Collection, v ViewState) []models.Listing {
	if c == nil {
		return []models.Listing{}
	}
	return SortListings(Select(c.listings, v), v.Sort)
}

// Select narrows ls by search term, or by category when no search is active.
func Select(ls []models.Listing, v ViewState) []models.Listing {
	out := make([]models.Listing, 0, len(ls))
	if term := v.SearchTerm(); term != "" {
		for i := range ls {
			if MatchesSearch(&ls[i], term) {
				out = append(out, ls[i])
			}
		}
		return out
	}

	category := strings.ToLower(strings.TrimSpace(v.Category))
	if category == "" || category == CategoryAll {
		return append(out, ls...)
	}
	for i := range ls {
		if string(Classify(&ls[i])) == category {
			out = append(out, ls[i])
		}
	}
	return out
}

// MatchesSearch reports whether the lowercased term occurs in the title,
// either description, or any attribute name or value.
func MatchesSearch(l *models.Listing, term string) bool {
	if term == "" {
		return true
	}
	if containsFold(l.Title, term) ||
		containsFold(l.ShortDescription, term) ||
		containsFold(l.FullDescription, term) {
		return true
	}
	for _, a := range l.Attributes {
		if containsFold(a.Name, term) || containsFold(a.Value, term) {
			return true
		}
	}
	return false
}

func containsFold(s, lowerTerm string) bool {
	return strings.Contains(strings.ToLower(s), lowerTerm)
}

// SortListings returns a sorted copy of ls. Sorting is stable, so equal keys
// keep their selection order.
func SortListings(ls []models.Listing, mode SortMode) []models.Listing {
	switch mode {
	case SortPriceAscending:
		return sortByKey(ls, priceKey, decimal.Decimal.Cmp)
	case SortPriceDescending:
		return sortByKey(ls, priceKey, func(a, b decimal.Decimal) int { return b.Cmp(a) })
	case SortAlphaAscending, SortAlphaDescending:
		col := collate.New(language.English)
		cmp := col.CompareString
		if mode == SortAlphaDescending {
			cmp = func(a, b string) int { return col.CompareString(b, a) }
		}
		return sortByKey(ls, func(l *models.Listing) string { return l.Title }, cmp)
	case SortNewest:
		return sortByKey(ls, ListingDate, func(a, b time.Time) int { return b.Compare(a) })
	case SortOldest:
		return sortByKey(ls, ListingDate, time.Time.Compare)
	default:
		return slices.Clone(ls)
	}
}

func priceKey(l *models.Listing) decimal.Decimal {
	return ParseAmount(l.Price.Amount)
}

func sortByKey[K any](ls []models.Listing, key func(*models.Listing) K, cmp func(a, b K) int) []models.Listing {
	type entry struct {
		idx int
		key K
	}
	entries := make([]entry, len(ls))
	for i := range ls {
		entries[i] = entry{idx: i, key: key(&ls[i])}
	}
	slices.SortStableFunc(entries, func(a, b entry) int { return cmp(a.key, b.key) })

	out := make([]models.Listing, len(ls))
	for i, e := range entries {
		out[i] = ls[e.idx]
	}
	return out
}
