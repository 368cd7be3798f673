package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"watchfront/config"
	"watchfront/httputil"
	"watchfront/models"
)

// FindingProvider uses the legacy Finding service, keyed by application id
// alone. It has no detail call; subtitles stand in for descriptions.
type FindingProvider struct {
	cfg     *config.ProviderConfig
	acq     config.AcquireConfig
	client  *http.Client
	retrier *Retrier
	pages   *rate.Limiter
}

func NewFindingProvider(pc *config.ProviderConfig, acq config.AcquireConfig, clients *httputil.Clients, retrier *Retrier) *FindingProvider {
	return &FindingProvider{
		cfg:     pc,
		acq:     acq,
		client:  clients.API,
		retrier: retrier,
		pages:   pacer(pageInterval(pc, acq)),
	}
}

func (p *FindingProvider) ID() string {
	return p.cfg.ID
}

// Every Finding field arrives wrapped in an array.
type findingResponse struct {
	Response []struct {
		Ack          []string `json:"ack"`
		ErrorMessage []struct {
			Error []struct {
				Message []string `json:"message"`
			} `json:"error"`
		} `json:"errorMessage"`
		SearchResult []struct {
			Item []findingItem `json:"item"`
		} `json:"searchResult"`
		PaginationOutput []struct {
			PageNumber []string `json:"pageNumber"`
			TotalPages []string `json:"totalPages"`
		} `json:"paginationOutput"`
	} `json:"findItemsAdvancedResponse"`
}

type findingItem struct {
	ItemID        []string `json:"itemId"`
	Title         []string `json:"title"`
	Subtitle      []string `json:"subtitle"`
	ViewItemURL   []string `json:"viewItemURL"`
	GalleryURL    []string `json:"galleryURL"`
	SellingStatus []struct {
		CurrentPrice []struct {
			CurrencyID string `json:"@currencyId"`
			Value      string `json:"__value__"`
		} `json:"currentPrice"`
	} `json:"sellingStatus"`
	ListingInfo []struct {
		StartTime []string `json:"startTime"`
	} `json:"listingInfo"`
	Condition []struct {
		DisplayName []string `json:"conditionDisplayName"`
	} `json:"condition"`
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func (it findingItem) listing() models.Listing {
	l := models.Listing{
		ID:               first(it.ItemID),
		Title:            first(it.Title),
		ImageURL:         first(it.GalleryURL),
		ExternalURL:      first(it.ViewItemURL),
		ShortDescription: first(it.Subtitle),
	}
	if len(it.SellingStatus) > 0 && len(it.SellingStatus[0].CurrentPrice) > 0 {
		cp := it.SellingStatus[0].CurrentPrice[0]
		l.Price = models.Price{Amount: cp.Value, Currency: cp.CurrencyID}
	}
	if len(it.Condition) > 0 {
		if c := first(it.Condition[0].DisplayName); c != "" {
			l.Attributes = append(l.Attributes, models.Attribute{Name: "Condition", Value: c})
		}
	}
	if len(it.ListingInfo) > 0 {
		if start := first(it.ListingInfo[0].StartTime); start != "" {
			l.Attributes = append(l.Attributes, models.Attribute{Name: models.AttrListingDate, Value: start})
		}
	}
	return l
}

func (p *FindingProvider) Fetch(ctx context.Context, req FetchRequest) ([]models.Listing, error) {
	if req.SellerID == "" {
		return nil, fmt.Errorf("%s: seller id not configured", p.cfg.ID)
	}
	if p.cfg.Credentials.AppID == "" {
		return nil, fmt.Errorf("%s: application id not configured", p.cfg.ID)
	}

	var listings []models.Listing
	for page := 1; ; page++ {
		if err := p.pages.Wait(ctx); err != nil {
			return nil, err
		}

		var items []findingItem
		var totalPages int
		err := p.retrier.Do(ctx, fmt.Sprintf("%s page %d", p.cfg.ID, page), func(ctx context.Context) error {
			var err error
			items, totalPages, err = p.fetchPage(ctx, req.SellerID, page)
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, it := range items {
			listings = append(listings, it.listing())
		}
		logger.Infof("%s: page %d/%d: %d items (total: %d)", p.cfg.ID, page, totalPages, len(items), len(listings))

		if req.reached(len(listings)) || len(items) == 0 || page >= totalPages {
			break
		}
	}

	return finalize(listings, req.MaxItems), nil
}

func (p *FindingProvider) fetchPage(ctx context.Context, sellerID string, page int) ([]findingItem, int, error) {
	pageSize := p.acq.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}

	q := url.Values{}
	q.Set("OPERATION-NAME", "findItemsAdvanced")
	q.Set("SERVICE-VERSION", "1.13.0")
	q.Set("SECURITY-APPNAME", p.cfg.Credentials.AppID)
	q.Set("RESPONSE-DATA-FORMAT", "JSON")
	q.Set("itemFilter(0).name", "Seller")
	q.Set("itemFilter(0).value", sellerID)
	q.Set("paginationInput.entriesPerPage", strconv.Itoa(pageSize))
	q.Set("paginationInput.pageNumber", strconv.Itoa(page))
	q.Set("sortOrder", "StartTimeNewest")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.Endpoint("search")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, 0, err
	}
	if p.cfg.Marketplace != "" {
		req.Header.Set("X-EBAY-SOA-GLOBAL-ID", p.cfg.Marketplace)
	}

	body, err := doRequest(p.client, req)
	if err != nil {
		return nil, 0, err
	}

	var resp findingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, 0, fmt.Errorf("decode finding page: %w", err)
	}
	if len(resp.Response) == 0 {
		return nil, 0, fmt.Errorf("finding: empty response envelope")
	}
	r := resp.Response[0]
	if ack := first(r.Ack); ack != "Success" && ack != "Warning" {
		var msgs []string
		for _, em := range r.ErrorMessage {
			for _, e := range em.Error {
				msgs = append(msgs, first(e.Message))
			}
		}
		return nil, 0, fmt.Errorf("finding: ack %q: %s", ack, strings.Join(msgs, "; "))
	}

	var items []findingItem
	if len(r.SearchResult) > 0 {
		items = r.SearchResult[0].Item
	}
	totalPages := 1
	if len(r.PaginationOutput) > 0 {
		if n, err := strconv.Atoi(first(r.PaginationOutput[0].TotalPages)); err == nil {
			totalPages = n
		}
	}
	return items, totalPages, nil
}
