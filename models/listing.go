package models

import (
	"strings"
	"time"
)

// Category is the movement family a watch listing is classified into.
type Category string

const (
	CategoryManual    Category = "manual"
	CategoryAutomatic Category = "automatic"
	CategoryDigital   Category = "digital"
	CategoryQuartz    Category = "quartz"
)

// Categories lists every classifier output in display order.
var Categories = []Category{CategoryManual, CategoryAutomatic, CategoryDigital, CategoryQuartz}

// ParseCategory returns the category named by s (case-insensitive).
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// Attribute names with special meaning
const (
	AttrType        = "Type"
	AttrListingDate = "Listing Date"
	AttrBrand       = "Brand"
	AttrModel       = "Model"
	AttrYear        = "Year"
)

// Listing is the canonical, provider-independent marketplace item.
type Listing struct {
	ID               string      `json:"id"`
	Title            string      `json:"title"`
	ImageURL         string      `json:"imageUrl,omitempty"`
	Price            Price       `json:"price"`
	ExternalURL      string      `json:"externalUrl"`
	ShortDescription string      `json:"shortDescription"`
	FullDescription  string      `json:"fullDescription"`
	Attributes       []Attribute `json:"attributes"`
}

type Price struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// Attribute is one item specific. Names are not unique.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Attribute returns the value of the first attribute whose name matches
// (case-insensitive).
func (l *Listing) Attribute(name string) (string, bool) {
	for _, a := range l.Attributes {
		if strings.EqualFold(strings.TrimSpace(a.Name), name) {
			return a.Value, true
		}
	}
	return "", false
}

// Description returns the full description, falling back to the short one.
func (l *Listing) Description() string {
	if l.FullDescription != "" {
		return l.FullDescription
	}
	return l.ShortDescription
}

// DisplayAttributes returns attributes in original order minus the ones
// used only for classification and sorting.
func (l *Listing) DisplayAttributes() []Attribute {
	var out []Attribute
	for _, a := range l.Attributes {
		if IsSuppressedAttribute(a.Name) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func IsSuppressedAttribute(name string) bool {
	name = strings.TrimSpace(name)
	return strings.EqualFold(name, AttrType) || strings.EqualFold(name, AttrListingDate)
}

// Document is the JSON file written by acquisition and read by the storefront.
type Document struct {
	ItemSummaries []Listing  `json:"itemSummaries"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
	Source        string     `json:"source,omitempty"`
}
