package catalog

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"watchfront/models"
)

// ParseAmount parses a price amount. Anything that is not a plain decimal
// number counts as zero.
func ParseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// NormalizeAmount returns s trimmed when it is a valid decimal, "0" otherwise.
func NormalizeAmount(s string) string {
	s = strings.TrimSpace(s)
	if _, err := decimal.NewFromString(s); err != nil {
		return "0"
	}
	return s
}

// FormatPrice renders a price as "899.99 USD".
func FormatPrice(p models.Price) string {
	amount := ParseAmount(p.Amount).StringFixed(2)
	if p.Currency == "" {
		return amount
	}
	return amount + " " + p.Currency
}

var listingDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"Jan 2, 2006",
	"January 2, 2006",
	"01/02/2006",
	"02-01-2006",
}

var epoch = time.Unix(0, 0).UTC()

// ListingDate parses the Listing Date attribute. Missing or unparseable
// dates sort as the Unix epoch.
func ListingDate(l *models.Listing) time.Time {
	v, ok := l.Attribute(models.AttrListingDate)
	if !ok {
		return epoch
	}
	v = strings.TrimSpace(v)
	for _, layout := range listingDateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return epoch
}
