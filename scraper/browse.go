package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"watchfront/config"
	"watchfront/httputil"
	"watchfront/models"
)

// shortDescriptionLen bounds summaries derived from a full description.
const shortDescriptionLen = 200

// BrowseProvider reads a seller's listings through the Browse REST API:
// paginated item summaries, then per-item detail for the newest ones.
type BrowseProvider struct {
	cfg     *config.ProviderConfig
	acq     config.AcquireConfig
	client  *http.Client
	tokens  TokenSource
	retrier *Retrier
	pages   *rate.Limiter
}

func NewBrowseProvider(pc *config.ProviderConfig, acq config.AcquireConfig, clients *httputil.Clients, retrier *Retrier) *BrowseProvider {
	tokens := newTokenSource(pc, clients)
	return &BrowseProvider{
		cfg:     pc,
		acq:     acq,
		client:  clients.API,
		tokens:  tokens,
		retrier: retrier.WithUnauthorized(tokens.Invalidate),
		pages:   pacer(pageInterval(pc, acq)),
	}
}

func (p *BrowseProvider) ID() string {
	return p.cfg.ID
}

type browseSearchResponse struct {
	Total         int             `json:"total"`
	Offset        int             `json:"offset"`
	Limit         int             `json:"limit"`
	Next          string          `json:"next"`
	ItemSummaries []browseItem    `json:"itemSummaries"`
	Warnings      []browseMessage `json:"warnings"`
}

type browseMessage struct {
	ErrorID int    `json:"errorId"`
	Message string `json:"message"`
}

// browseItem covers both the summary and the detail shape.
type browseItem struct {
	ItemID string `json:"itemId"`
	Title  string `json:"title"`
	Image  struct {
		ImageURL string `json:"imageUrl"`
	} `json:"image"`
	Price struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	} `json:"price"`
	ItemWebURL       string `json:"itemWebUrl"`
	ShortDescription string `json:"shortDescription"`
	Description      string `json:"description"`
	Condition        string `json:"condition"`
	ItemCreationDate string `json:"itemCreationDate"`
	LocalizedAspects []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"localizedAspects"`
}

func (it browseItem) listing() models.Listing {
	full := htmlToText(it.Description)
	short := htmlToText(it.ShortDescription)
	if short == "" && full != "" {
		short = summarize(full, shortDescriptionLen)
	}

	l := models.Listing{
		ID:               it.ItemID,
		Title:            it.Title,
		ImageURL:         it.Image.ImageURL,
		Price:            models.Price{Amount: it.Price.Value, Currency: it.Price.Currency},
		ExternalURL:      it.ItemWebURL,
		ShortDescription: short,
		FullDescription:  full,
	}
	for _, a := range it.LocalizedAspects {
		l.Attributes = append(l.Attributes, models.Attribute{Name: a.Name, Value: a.Value})
	}
	if it.Condition != "" {
		if _, ok := l.Attribute("Condition"); !ok {
			l.Attributes = append(l.Attributes, models.Attribute{Name: "Condition", Value: it.Condition})
		}
	}
	if it.ItemCreationDate != "" {
		l.Attributes = append(l.Attributes, models.Attribute{Name: models.AttrListingDate, Value: it.ItemCreationDate})
	}
	return l
}

func (p *BrowseProvider) Fetch(ctx context.Context, req FetchRequest) ([]models.Listing, error) {
	if req.SellerID == "" {
		return nil, fmt.Errorf("%s: seller id not configured", p.cfg.ID)
	}

	items, err := p.search(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		logger.Infof("%s: seller %s has no active listings", p.cfg.ID, req.SellerID)
		return []models.Listing{}, nil
	}

	listings := make([]models.Listing, len(items))
	for i, it := range items {
		listings[i] = it.listing()
	}
	p.enrich(ctx, items, listings)

	return finalize(listings, req.MaxItems), nil
}

func (p *BrowseProvider) search(ctx context.Context, req FetchRequest) ([]browseItem, error) {
	pageSize := p.acq.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	var all []browseItem
	for offset := 0; ; {
		limit := pageSize
		if req.MaxItems > 0 && req.MaxItems-len(all) < limit {
			limit = req.MaxItems - len(all)
		}
		if err := p.pages.Wait(ctx); err != nil {
			return nil, err
		}

		var page browseSearchResponse
		op := fmt.Sprintf("%s search offset %d", p.cfg.ID, offset)
		err := p.retrier.Do(ctx, op, func(ctx context.Context) error {
			var err error
			page, err = p.searchPage(ctx, req.SellerID, offset, limit)
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, w := range page.Warnings {
			logger.Warnf("%s: %d %s", p.cfg.ID, w.ErrorID, w.Message)
		}

		all = append(all, page.ItemSummaries...)
		logger.Infof("%s: offset %d: %d items (total: %d of %d)", p.cfg.ID, offset, len(page.ItemSummaries), len(all), page.Total)

		if req.reached(len(all)) {
			return all[:req.MaxItems], nil
		}
		offset += len(page.ItemSummaries)
		if len(page.ItemSummaries) == 0 || page.Next == "" || (page.Total > 0 && offset >= page.Total) {
			return all, nil
		}
	}
}

func (p *BrowseProvider) searchPage(ctx context.Context, sellerID string, offset, limit int) (browseSearchResponse, error) {
	var out browseSearchResponse

	q := url.Values{}
	q.Set("q", "seller:"+sellerID)
	q.Set("limit", strconv.Itoa(limit))
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	if p.cfg.Condition != "" {
		q.Set("filter", "conditions:{"+p.cfg.Condition+"}")
	}
	if p.cfg.Sort != "" {
		q.Set("sort", p.cfg.Sort)
	}

	body, err := p.get(ctx, p.cfg.Endpoint("search")+"?"+q.Encode())
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("decode search page: %w", err)
	}
	return out, nil
}

// enrich replaces the newest summaries with item detail, a batch at a time.
// A failed detail call keeps the summary.
func (p *BrowseProvider) enrich(ctx context.Context, items []browseItem, listings []models.Listing) {
	limit := p.acq.DetailLimit
	if limit <= 0 || p.cfg.Endpoint("item") == "" {
		return
	}
	if limit > len(items) {
		limit = len(items)
	}
	batch := p.acq.DetailBatch
	if batch <= 0 {
		batch = 1
	}

	enriched := 0
	for start := 0; start < limit; start += batch {
		if start > 0 {
			if err := sleepContext(ctx, p.acq.DetailDelay); err != nil {
				return
			}
		}
		end := start + batch
		if end > limit {
			end = limit
		}

		// a failed detail is logged and skipped; only cancellation ends the batch early
		results := make([]*browseItem, end-start)
		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				detail, err := p.item(gctx, items[i].ItemID)
				if err != nil {
					if ctxErr := gctx.Err(); ctxErr != nil {
						return ctxErr
					}
					logger.Warnf("%s: detail for %s: %v", p.cfg.ID, items[i].ItemID, err)
					return nil
				}
				results[i-start] = detail
				return nil
			})
		}
		err := g.Wait()

		for j, d := range results {
			if d == nil {
				continue
			}
			listings[start+j] = mergeDetail(listings[start+j], d.listing())
			enriched++
		}
		if err != nil {
			logger.Warnf("%s: enrichment stopped after %d of %d items: %v", p.cfg.ID, enriched, limit, err)
			return
		}
	}
	logger.Infof("%s: enriched %d of %d items", p.cfg.ID, enriched, limit)
}

func (p *BrowseProvider) item(ctx context.Context, itemID string) (*browseItem, error) {
	if itemID == "" {
		return nil, fmt.Errorf("missing item id")
	}
	var out browseItem
	err := p.retrier.Do(ctx, p.cfg.ID+" item "+itemID, func(ctx context.Context) error {
		body, err := p.get(ctx, strings.TrimRight(p.cfg.Endpoint("item"), "/")+"/"+url.PathEscape(itemID))
		if err != nil {
			return err
		}
		return json.Unmarshal(body, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *BrowseProvider) get(ctx context.Context, endpoint string) ([]byte, error) {
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if p.cfg.Marketplace != "" {
		req.Header.Set("X-EBAY-C-MARKETPLACE-ID", p.cfg.Marketplace)
	}

	start := time.Now()
	body, err := doRequest(p.client, req)
	logger.Debugf("%s: GET %s (%v)", p.cfg.ID, endpointOf(req), time.Since(start))
	return body, err
}

// mergeDetail overlays detail fields on the summary, keeping summary values
// the detail response left empty.
func mergeDetail(base, detail models.Listing) models.Listing {
	if detail.Title != "" {
		base.Title = detail.Title
	}
	if detail.ImageURL != "" {
		base.ImageURL = detail.ImageURL
	}
	if detail.Price.Amount != "" {
		base.Price = detail.Price
	}
	if detail.ShortDescription != "" {
		base.ShortDescription = detail.ShortDescription
	}
	if detail.FullDescription != "" {
		base.FullDescription = detail.FullDescription
	}
	if len(detail.Attributes) > 0 {
		base.Attributes = detail.Attributes
	}
	return base
}
