package scraper

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"watchfront/catalog"
	"watchfront/identity"
	"watchfront/logging"
	"watchfront/models"
)

// finalize normalizes the concatenated pages, drops duplicates (same id,
// or same content when the provider gave none) and applies the cutoff.
func finalize(ls []models.Listing, maxItems int) []models.Listing {
	seen := make(map[string]bool, len(ls))
	out := make([]models.Listing, 0, len(ls))
	for _, l := range ls {
		if l.ID == "" {
			l.ID = identity.ItemIDFromURL(l.ExternalURL)
		}
		l = catalog.Normalize(l)
		if logging.Enabled(logging.LevelDebug) {
			if kw := catalog.DefaultPolicy.MatchedKeyword(&l); kw != "" {
				logger.Debugf("%s: %s by keyword %q", l.ID, catalog.Classify(&l), kw)
			}
		}
		key := identity.ListingKey(&l)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, l)
		if maxItems > 0 && len(out) >= maxItems {
			break
		}
	}
	return out
}

var (
	spaceRegex = regexp.MustCompile(`\s+`)
	// line-breaking markup becomes a space so adjacent blocks don't run together
	blockEndRegex = regexp.MustCompile(`(?i)<br\s*/?>|</(?:p|div|li|tr|td|h[1-6])>`)
)

// htmlToText reduces an HTML description to plain text. Plain input passes
// through with whitespace collapsed.
func htmlToText(s string) string {
	if !strings.Contains(s, "<") {
		return strings.TrimSpace(spaceRegex.ReplaceAllString(s, " "))
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(blockEndRegex.ReplaceAllString(s, " ")))
	if err != nil {
		return strings.TrimSpace(spaceRegex.ReplaceAllString(s, " "))
	}
	doc.Find("script, style").Remove()
	return strings.TrimSpace(spaceRegex.ReplaceAllString(doc.Text(), " "))
}

// summarize cuts text to at most n runes on a word boundary.
func summarize(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	cut := string(r[:n])
	if i := strings.LastIndex(cut, " "); i > n/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:-") + "..."
}

var displayPriceRegex = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

var currencySymbols = map[string]string{
	"$": "USD", "US $": "USD", "£": "GBP", "€": "EUR", "C $": "CAD", "AU $": "AUD",
}

// parseDisplayPrice reads a price as shown on a store page ("$1,299.00",
// "GBP 45.50", "$20.00 to $35.00"). Ranges use the lower bound.
func parseDisplayPrice(s string) models.Price {
	s = strings.TrimSpace(s)
	m := displayPriceRegex.FindString(s)
	if m == "" {
		return models.Price{Amount: "0"}
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(m, ",", ""))
	if err != nil {
		return models.Price{Amount: "0"}
	}

	prefix := strings.TrimSpace(s[:strings.Index(s, m)])
	currency := currencySymbols[prefix]
	if currency == "" && len(prefix) == 3 && strings.ToUpper(prefix) == prefix {
		currency = prefix
	}
	return models.Price{Amount: d.StringFixed(2), Currency: currency}
}
