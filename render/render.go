// Package render is the HTML adapter over the catalog pipeline. It only
// consumes ordered listings and never decides what is shown.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"strings"
	"time"

	"watchfront/catalog"
	"watchfront/logging"
	"watchfront/models"
)

//go:embed templates/*.html
var templateFS embed.FS

var logger = logging.New("render")

// Renderer holds the parsed templates. Safe for concurrent use.
type Renderer struct {
	page *template.Template
	card *template.Template
}

func New() (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{page: tmpl, card: tmpl}, nil
}

// Card is the view model of one listing. Text fields are already escaped
// and highlighted.
type Card struct {
	ID          string
	Category    models.Category
	ImageURL    string
	PlainTitle  string
	Title       template.HTML
	Price       string
	Short       template.HTML
	Full        template.HTML
	HasMore     bool
	Attributes  []CardAttribute
	ExternalURL string
}

type CardAttribute struct {
	Name  template.HTML
	Value template.HTML
}

// NewCard builds the card for l, highlighting term when non-empty.
func NewCard(l *models.Listing, term string) Card {
	c := Card{
		ID:          l.ID,
		Category:    catalog.Classify(l),
		ImageURL:    catalog.ImageFor(l),
		PlainTitle:  l.Title,
		Title:       Highlight(l.Title, term),
		Price:       catalog.FormatPrice(l.Price),
		Short:       Highlight(l.ShortDescription, term),
		ExternalURL: l.ExternalURL,
	}
	full := l.Description()
	c.Full = Highlight(full, term)
	c.HasMore = full != "" && full != l.ShortDescription
	for _, a := range l.DisplayAttributes() {
		c.Attributes = append(c.Attributes, CardAttribute{
			Name:  Highlight(a.Name, term),
			Value: Highlight(a.Value, term),
		})
	}
	return c
}

// Cards renders one fragment per listing in order. A listing whose card
// fails to render is logged and skipped.
func (r *Renderer) Cards(ls []models.Listing, term string) []template.HTML {
	out := make([]template.HTML, 0, len(ls))
	for i := range ls {
		html, err := r.renderCard(&ls[i], term)
		if err != nil {
			logger.Warnf("skipping listing %q: %v", ls[i].ID, err)
			continue
		}
		out = append(out, html)
	}
	return out
}

func (r *Renderer) renderCard(l *models.Listing, term string) (html template.HTML, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("render card: panic: %v", p)
		}
	}()

	var buf bytes.Buffer
	if err := r.card.ExecuteTemplate(&buf, "card", NewCard(l, term)); err != nil {
		return "", fmt.Errorf("render card: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// Page is everything the full storefront page shows.
type Page struct {
	Title      string
	View       catalog.ViewState
	Categories []string
	SortModes  []catalog.SortMode
	Status     string
	Banner     string
	UpdatedAt  *time.Time
	Cards      []template.HTML
}

// ToggleURL links to the same view with the other display layout.
func (p Page) ToggleURL() string {
	q := url.Values{}
	if p.View.Search != "" {
		q.Set("q", p.View.Search)
	}
	q.Set("category", p.View.Category)
	q.Set("sort", string(p.View.Sort))
	q.Set("view", string(p.View.Display.Toggle()))
	return "/?" + q.Encode()
}

func (p Page) ToggleLabel() string {
	return strings.ToUpper(string(p.View.Display.Toggle())[:1]) + string(p.View.Display.Toggle())[1:] + " view"
}

// NewPage assembles the page for an already ordered result.
func (r *Renderer) NewPage(v catalog.ViewState, listings []models.Listing, updatedAt *time.Time) Page {
	categories := []string{catalog.CategoryAll}
	for _, c := range models.Categories {
		categories = append(categories, string(c))
	}
	return Page{
		Title:      "Vintage Watch Storefront",
		View:       v,
		Categories: categories,
		SortModes:  catalog.SortModes,
		Status:     catalog.StatusMessage(v, len(listings)),
		UpdatedAt:  updatedAt,
		Cards:      r.Cards(listings, v.SearchTerm()),
	}
}

func (r *Renderer) WritePage(w io.Writer, p Page) error {
	if err := r.page.ExecuteTemplate(w, "page", p); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	return nil
}
