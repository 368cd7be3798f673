package catalog

import (
	"fmt"
	"strings"

	"watchfront/models"
)

var placeholderTints = map[models.Category]string{
	models.CategoryManual:    "gold",
	models.CategoryAutomatic: "navy",
	models.CategoryDigital:   "teal",
	models.CategoryQuartz:    "silver",
}

// PlaceholderImage returns a placeholder tinted for the category.
func PlaceholderImage(c models.Category) string {
	tint, ok := placeholderTints[c]
	if !ok {
		tint = "gray"
	}
	label := "Watch"
	if c != "" {
		label = strings.ToUpper(string(c[:1])) + string(c[1:]) + "+Watch"
	}
	return fmt.Sprintf("https://placehold.co/600x400/%s/white?text=%s", tint, label)
}

// ImageFor returns the listing image or the placeholder for its category.
func ImageFor(l *models.Listing) string {
	if strings.TrimSpace(l.ImageURL) != "" {
		return l.ImageURL
	}
	return PlaceholderImage(Classify(l))
}

// SampleListings is the built-in collection used whenever no real data can
// be obtained. Each call returns a fresh copy.
func SampleListings() []models.Listing {
	return []models.Listing{
		{
			ID:               "123456789",
			Title:            "Vintage Omega Seamaster Automatic Watch - 1960s",
			ImageURL:         "https://placehold.co/600x400/gold/white?text=Omega+Watch",
			Price:            models.Price{Amount: "899.99", Currency: "USD"},
			ExternalURL:      "https://www.ebay.com/itm/123456789",
			ShortDescription: "Beautiful Omega Seamaster from the 1960s in excellent condition. Automatic movement.",
			FullDescription:  "Beautiful Omega Seamaster from the 1960s in excellent condition. Automatic movement, recently serviced, keeps excellent time. Original crown and dial.",
			Attributes: []models.Attribute{
				{Name: models.AttrBrand, Value: "Omega"},
				{Name: models.AttrModel, Value: "Seamaster"},
				{Name: models.AttrYear, Value: "1960s"},
				{Name: "Movement", Value: "Automatic"},
				{Name: models.AttrType, Value: "automatic"},
				{Name: models.AttrListingDate, Value: "2024-03-02"},
			},
		},
		{
			ID:               "223456789",
			Title:            "Hamilton Khaki Field Mechanical Military Watch",
			Price:            models.Price{Amount: "495.00", Currency: "USD"},
			ExternalURL:      "https://www.ebay.com/itm/223456789",
			ShortDescription: "Hand-wound field watch with 80 hour power reserve.",
			Attributes: []models.Attribute{
				{Name: models.AttrBrand, Value: "Hamilton"},
				{Name: models.AttrModel, Value: "Khaki Field"},
				{Name: "Movement", Value: "Manual"},
				{Name: models.AttrListingDate, Value: "2024-02-18"},
			},
		},
		{
			ID:               "323456789",
			Title:            "Seiko 5 Sports Automatic Diver 7S26",
			Price:            models.Price{Amount: "189.50", Currency: "USD"},
			ExternalURL:      "https://www.ebay.com/itm/323456789",
			ShortDescription: "Classic Seiko 5 diver on the original jubilee bracelet.",
			Attributes: []models.Attribute{
				{Name: models.AttrBrand, Value: "Seiko"},
				{Name: models.AttrModel, Value: "SKX007"},
				{Name: models.AttrYear, Value: "1998"},
				{Name: models.AttrListingDate, Value: "2024-03-10"},
			},
		},
		{
			ID:               "423456789",
			Title:            "Casio F-91W Digital Alarm Chronograph",
			Price:            models.Price{Amount: "24.99", Currency: "USD"},
			ExternalURL:      "https://www.ebay.com/itm/423456789",
			ShortDescription: "The iconic resin digital watch. New battery fitted.",
			Attributes: []models.Attribute{
				{Name: models.AttrBrand, Value: "Casio"},
				{Name: models.AttrModel, Value: "F-91W"},
				{Name: models.AttrListingDate, Value: "2024-01-05"},
			},
		},
		{
			ID:               "523456789",
			Title:            "Citizen Eco-Drive Dress Watch",
			Price:            models.Price{Amount: "129.00", Currency: "USD"},
			ExternalURL:      "https://www.ebay.com/itm/523456789",
			ShortDescription: "Solar powered quartz dress watch with sapphire crystal.",
			Attributes: []models.Attribute{
				{Name: models.AttrBrand, Value: "Citizen"},
				{Name: models.AttrModel, Value: "Eco-Drive"},
			},
		},
		{
			ID:               "623456789",
			Title:            "Seiko 7T32 Chronograph",
			Price:            models.Price{Amount: "149.00", Currency: "USD"},
			ExternalURL:      "https://www.ebay.com/itm/623456789",
			ShortDescription: "Nineties quartz chronograph with alarm complication.",
			Attributes: []models.Attribute{
				{Name: models.AttrBrand, Value: "Seiko"},
				{Name: models.AttrModel, Value: "7T32"},
				{Name: models.AttrType, Value: "Quartz"},
				{Name: models.AttrListingDate, Value: "2023-11-20"},
			},
		},
	}
}
