// Package catalog holds the storefront's pure list-processing pipeline:
// classification, selection, sorting, suggestions and the messages shown
// around them. Nothing here performs I/O or mutates its input.
package catalog

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"watchfront/models"
)

// Rule maps one category to the title keywords that indicate it.
type Rule struct {
	Category models.Category
	Keywords []string
}

// Policy is an ordered keyword table. Rules are checked in order and the
// first rule with a matching keyword wins.
type Policy struct {
	Version string
	Rules   []Rule
	Default models.Category
}

// DefaultPolicy checks manual before automatic before digital. A title with
// both a manual-family brand and "automatic" is therefore manual.
var DefaultPolicy = Policy{
	Version: "2024-05",
	Rules: []Rule{
		{
			Category: models.CategoryManual,
			Keywords: []string{
				"manual", "hand-wind", "hand wind", "handwind", "hand-wound", "hand wound",
				"mechanical", "military", "trench",
				"rolex", "omega", "hamilton", "longines", "elgin", "waltham", "gruen",
				"benrus", "wittnauer", "helbros", "ingersoll", "westclox", "smiths",
				"vostok", "poljot", "raketa", "pobeda", "molnija", "hmt",
			},
		},
		{
			Category: models.CategoryAutomatic,
			Keywords: []string{"automatic", "self-winding", "self winding", "autowind"},
		},
		{
			Category: models.CategoryDigital,
			Keywords: []string{
				"digital", "ana-digi", "anadigi", "lcd", "led",
				"casio", "g-shock", "pulsar", "armitron", "calculator",
			},
		},
	},
	Default: models.CategoryQuartz,
}

// Classify assigns a category using DefaultPolicy.
func Classify(l *models.Listing) models.Category {
	return DefaultPolicy.Classify(l)
}

// Classify returns the listing's explicit Type attribute when it names a
// known category, otherwise the first rule whose keyword appears in the title.
func (p Policy) Classify(l *models.Listing) models.Category {
	if c, ok := explicitType(l); ok {
		return c
	}

	title := strings.ToLower(l.Title)
	for _, rule := range p.Rules {
		for _, kw := range rule.Keywords {
			if containsWord(title, kw) {
				return rule.Category
			}
		}
	}
	return p.Default
}

// MatchedKeyword reports which keyword of the winning rule matched, for
// diagnostics. Empty when the Type attribute or the default decided.
func (p Policy) MatchedKeyword(l *models.Listing) string {
	if _, ok := explicitType(l); ok {
		return ""
	}
	title := strings.ToLower(l.Title)
	for _, rule := range p.Rules {
		for _, kw := range rule.Keywords {
			if containsWord(title, kw) {
				return kw
			}
		}
	}
	return ""
}

func explicitType(l *models.Listing) (models.Category, bool) {
	for _, a := range l.Attributes {
		if !strings.EqualFold(strings.TrimSpace(a.Name), models.AttrType) {
			continue
		}
		if c, ok := models.ParseCategory(a.Value); ok {
			return c, true
		}
	}
	return "", false
}

// inflections are the endings a keyword may carry and still count as a
// match, as in "LEDs" or "Mechanically wound".
var inflections = []string{"es", "s", "ally", "ly"}

// containsWord reports whether kw occurs in s as a whole word, optionally
// followed by one of the inflections, so "leds" matches "led" while "led"
// does not fire inside "sealed" or "handled" and "omega" not in "omegaland".
func containsWord(s, kw string) bool {
	for start := 0; start <= len(s)-len(kw); {
		i := strings.Index(s[start:], kw)
		if i < 0 {
			return false
		}
		i += start
		if boundaryBefore(s, i) && inflectedEnd(s, i+len(kw)) {
			return true
		}
		start = i + 1
	}
	return false
}

func inflectedEnd(s string, end int) bool {
	if boundaryAfter(s, end) {
		return true
	}
	for _, suffix := range inflections {
		if strings.HasPrefix(s[end:], suffix) && boundaryAfter(s, end+len(suffix)) {
			return true
		}
	}
	return false
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
