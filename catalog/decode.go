package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"watchfront/models"
)

const DefaultCurrency = "USD"

// Normalize fills every defaulted field of the canonical schema: trimmed
// strings, a valid price amount, a currency, the full description falling
// back to the short one, and a category placeholder image.
func Normalize(l models.Listing) models.Listing {
	l.ID = strings.TrimSpace(l.ID)
	l.Title = strings.TrimSpace(l.Title)
	l.ShortDescription = strings.TrimSpace(l.ShortDescription)
	l.FullDescription = strings.TrimSpace(l.FullDescription)
	if l.FullDescription == "" {
		l.FullDescription = l.ShortDescription
	}
	l.Price.Amount = NormalizeAmount(l.Price.Amount)
	l.Price.Currency = strings.ToUpper(strings.TrimSpace(l.Price.Currency))
	if l.Price.Currency == "" {
		l.Price.Currency = DefaultCurrency
	}
	if l.Attributes == nil {
		l.Attributes = []models.Attribute{}
	}
	if strings.TrimSpace(l.ImageURL) == "" {
		l.ImageURL = PlaceholderImage(Classify(&l))
	}
	return l
}

// wireListing accepts both the canonical field names and the raw
// marketplace summary shape (itemId, image.imageUrl, price.value, ...).
type wireListing struct {
	ID     string `json:"id"`
	ItemID string `json:"itemId"`
	Title  string `json:"title"`

	ImageURL string `json:"imageUrl"`
	Image    *struct {
		ImageURL string `json:"imageUrl"`
	} `json:"image"`

	Price *struct {
		Amount   looseString `json:"amount"`
		Value    looseString `json:"value"`
		Currency string      `json:"currency"`
	} `json:"price"`

	ExternalURL string `json:"externalUrl"`
	ItemWebURL  string `json:"itemWebUrl"`

	ShortDescription string `json:"shortDescription"`
	FullDescription  string `json:"fullDescription"`
	Description      string `json:"description"`

	Attributes       []models.Attribute `json:"attributes"`
	Specifics        []models.Attribute `json:"specifics"`
	LocalizedAspects []models.Attribute `json:"localizedAspects"`

	ItemCreationDate string `json:"itemCreationDate"`
}

func (w wireListing) listing() models.Listing {
	l := models.Listing{
		ID:               firstNonEmpty(w.ID, w.ItemID),
		Title:            w.Title,
		ImageURL:         w.ImageURL,
		ExternalURL:      firstNonEmpty(w.ExternalURL, w.ItemWebURL),
		ShortDescription: w.ShortDescription,
		FullDescription:  firstNonEmpty(w.FullDescription, w.Description),
	}
	if l.ImageURL == "" && w.Image != nil {
		l.ImageURL = w.Image.ImageURL
	}
	if w.Price != nil {
		l.Price.Amount = firstNonEmpty(string(w.Price.Amount), string(w.Price.Value))
		l.Price.Currency = w.Price.Currency
	}
	switch {
	case len(w.Attributes) > 0:
		l.Attributes = w.Attributes
	case len(w.Specifics) > 0:
		l.Attributes = w.Specifics
	default:
		l.Attributes = w.LocalizedAspects
	}
	if w.ItemCreationDate != "" {
		if _, ok := l.Attribute(models.AttrListingDate); !ok {
			l.Attributes = append(l.Attributes, models.Attribute{Name: models.AttrListingDate, Value: w.ItemCreationDate})
		}
	}
	return Normalize(l)
}

// DecodeDocument parses a listings document. It accepts the canonical
// {"itemSummaries": [...]} object or a bare top-level array, with records in
// either canonical or raw marketplace shape.
func DecodeDocument(data []byte) (models.Document, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return models.Document{}, fmt.Errorf("decode listings: empty input")
	}

	var doc struct {
		ItemSummaries []json.RawMessage `json:"itemSummaries"`
		Items         []json.RawMessage `json:"items"`
		models.Document
	}
	var records []json.RawMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &records); err != nil {
			return models.Document{}, fmt.Errorf("decode listings: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, &doc); err != nil {
			return models.Document{}, fmt.Errorf("decode listings: %w", err)
		}
		records = doc.ItemSummaries
		if records == nil {
			records = doc.Items
		}
		if records == nil {
			return models.Document{}, fmt.Errorf("decode listings: missing itemSummaries")
		}
	}

	out := models.Document{
		ItemSummaries: make([]models.Listing, 0, len(records)),
		UpdatedAt:     doc.UpdatedAt,
		Source:        doc.Source,
	}
	for i, raw := range records {
		var w wireListing
		if err := json.Unmarshal(raw, &w); err != nil {
			return models.Document{}, fmt.Errorf("decode listing %d: %w", i, err)
		}
		out.ItemSummaries = append(out.ItemSummaries, w.listing())
	}
	return out, nil
}

// looseString takes a JSON string or number verbatim; anything else is kept
// raw and later fails amount validation.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	*s = looseString(b)
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
