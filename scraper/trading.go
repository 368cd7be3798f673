package scraper

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"watchfront/config"
	"watchfront/httputil"
	"watchfront/models"
)

const (
	tradingCompatLevel = "1193"
	// GetSellerList rejects start-time windows longer than 120 days.
	tradingWindow = 119 * 24 * time.Hour
)

// TradingProvider calls the XML GetSellerList operation. It returns full
// descriptions and item specifics in the listing pages themselves.
type TradingProvider struct {
	cfg     *config.ProviderConfig
	acq     config.AcquireConfig
	client  *http.Client
	tokens  TokenSource
	retrier *Retrier
	pages   *rate.Limiter
	now     func() time.Time
}

func NewTradingProvider(pc *config.ProviderConfig, acq config.AcquireConfig, clients *httputil.Clients, retrier *Retrier) *TradingProvider {
	tokens := newTokenSource(pc, clients)
	return &TradingProvider{
		cfg:     pc,
		acq:     acq,
		client:  clients.API,
		tokens:  tokens,
		retrier: retrier.WithUnauthorized(tokens.Invalidate),
		pages:   pacer(pageInterval(pc, acq)),
		now:     time.Now,
	}
}

func (p *TradingProvider) ID() string {
	return p.cfg.ID
}

type getSellerListRequest struct {
	XMLName       xml.Name `xml:"urn:ebay:apis:eBLBaseComponents GetSellerListRequest"`
	UserID        string   `xml:"UserID"`
	StartTimeFrom string   `xml:"StartTimeFrom"`
	StartTimeTo   string   `xml:"StartTimeTo"`
	DetailLevel   string   `xml:"DetailLevel"`
	Pagination    struct {
		EntriesPerPage int `xml:"EntriesPerPage"`
		PageNumber     int `xml:"PageNumber"`
	} `xml:"Pagination"`
}

type getSellerListResponse struct {
	Ack    string `xml:"Ack"`
	Errors []struct {
		ShortMessage string `xml:"ShortMessage"`
		LongMessage  string `xml:"LongMessage"`
		SeverityCode string `xml:"SeverityCode"`
	} `xml:"Errors"`
	HasMoreItems bool          `xml:"HasMoreItems"`
	Items        []tradingItem `xml:"ItemArray>Item"`
}

type tradingItem struct {
	ItemID         string `xml:"ItemID"`
	Title          string `xml:"Title"`
	SubTitle       string `xml:"SubTitle"`
	Description    string `xml:"Description"`
	ViewItemURL    string `xml:"ListingDetails>ViewItemURL"`
	StartTime      string `xml:"ListingDetails>StartTime"`
	ConditionName  string `xml:"ConditionDisplayName"`
	ListingStatus  string `xml:"SellingStatus>ListingStatus"`
	CurrentPrice   struct {
		Currency string `xml:"currencyID,attr"`
		Value    string `xml:",chardata"`
	} `xml:"SellingStatus>CurrentPrice"`
	GalleryURL  string   `xml:"PictureDetails>GalleryURL"`
	PictureURLs []string `xml:"PictureDetails>PictureURL"`
	Specifics   []struct {
		Name   string   `xml:"Name"`
		Values []string `xml:"Value"`
	} `xml:"ItemSpecifics>NameValueList"`
}

func (it tradingItem) listing() models.Listing {
	full := htmlToText(it.Description)
	short := strings.TrimSpace(it.SubTitle)
	if short == "" && full != "" {
		short = summarize(full, shortDescriptionLen)
	}
	image := it.GalleryURL
	if len(it.PictureURLs) > 0 {
		image = it.PictureURLs[0]
	}

	l := models.Listing{
		ID:               it.ItemID,
		Title:            it.Title,
		ImageURL:         image,
		Price:            models.Price{Amount: strings.TrimSpace(it.CurrentPrice.Value), Currency: it.CurrentPrice.Currency},
		ExternalURL:      it.ViewItemURL,
		ShortDescription: short,
		FullDescription:  full,
	}
	for _, s := range it.Specifics {
		l.Attributes = append(l.Attributes, models.Attribute{Name: s.Name, Value: strings.Join(s.Values, ", ")})
	}
	if it.ConditionName != "" {
		l.Attributes = append(l.Attributes, models.Attribute{Name: "Condition", Value: it.ConditionName})
	}
	if it.StartTime != "" {
		l.Attributes = append(l.Attributes, models.Attribute{Name: models.AttrListingDate, Value: it.StartTime})
	}
	return l
}

func (p *TradingProvider) Fetch(ctx context.Context, req FetchRequest) ([]models.Listing, error) {
	if req.SellerID == "" {
		return nil, fmt.Errorf("%s: seller id not configured", p.cfg.ID)
	}

	to := p.now().UTC()
	from := to.Add(-tradingWindow)

	var listings []models.Listing
	for page := 1; ; page++ {
		if err := p.pages.Wait(ctx); err != nil {
			return nil, err
		}

		var resp getSellerListResponse
		err := p.retrier.Do(ctx, fmt.Sprintf("%s page %d", p.cfg.ID, page), func(ctx context.Context) error {
			var err error
			resp, err = p.fetchPage(ctx, req.SellerID, from, to, page)
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, it := range resp.Items {
			// GetSellerList also returns ended listings inside the window
			if it.ListingStatus != "" && it.ListingStatus != "Active" {
				continue
			}
			listings = append(listings, it.listing())
		}
		logger.Infof("%s: page %d: %d items (total: %d)", p.cfg.ID, page, len(resp.Items), len(listings))

		if req.reached(len(listings)) || !resp.HasMoreItems || len(resp.Items) == 0 {
			break
		}
	}

	return finalize(listings, req.MaxItems), nil
}

func (p *TradingProvider) fetchPage(ctx context.Context, sellerID string, from, to time.Time, page int) (getSellerListResponse, error) {
	var out getSellerListResponse

	token, err := p.tokens.Token(ctx)
	if err != nil {
		return out, err
	}

	pageSize := p.acq.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 200
	}
	body := getSellerListRequest{
		UserID:        sellerID,
		StartTimeFrom: from.Format(time.RFC3339),
		StartTimeTo:   to.Format(time.RFC3339),
		DetailLevel:   "ReturnAll",
	}
	body.Pagination.EntriesPerPage = pageSize
	body.Pagination.PageNumber = page

	payload, err := xml.Marshal(body)
	if err != nil {
		return out, err
	}
	payload = append([]byte(xml.Header), payload...)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint("api"), bytes.NewReader(payload))
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", "text/xml")
	req.Header.Set("X-EBAY-API-CALL-NAME", "GetSellerList")
	req.Header.Set("X-EBAY-API-SITEID", siteID(p.cfg.Marketplace))
	req.Header.Set("X-EBAY-API-COMPATIBILITY-LEVEL", tradingCompatLevel)
	req.Header.Set("X-EBAY-API-IAF-TOKEN", token)
	if c := p.cfg.Credentials; c.AppID != "" {
		req.Header.Set("X-EBAY-API-APP-NAME", c.AppID)
		req.Header.Set("X-EBAY-API-DEV-NAME", c.DevID)
		req.Header.Set("X-EBAY-API-CERT-NAME", c.CertID)
	}

	data, err := doRequest(p.client, req)
	if err != nil {
		return out, err
	}
	if err := xml.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode seller list: %w", err)
	}
	if out.Ack == "Failure" || out.Ack == "PartialFailure" {
		var msgs []string
		for _, e := range out.Errors {
			if e.SeverityCode == "Error" || e.SeverityCode == "" {
				msgs = append(msgs, firstSet(e.LongMessage, e.ShortMessage))
			}
		}
		return out, fmt.Errorf("GetSellerList: ack %s: %s", out.Ack, strings.Join(msgs, "; "))
	}
	return out, nil
}

// siteID maps a marketplace id to the numeric Trading site id.
func siteID(marketplace string) string {
	switch marketplace {
	case "EBAY_GB":
		return "3"
	case "EBAY_DE":
		return "77"
	case "EBAY_AU":
		return "15"
	case "EBAY_CA":
		return "2"
	}
	return "0"
}
