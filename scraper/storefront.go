package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/playwright-community/playwright-go"
	"golang.org/x/time/rate"

	"watchfront/config"
	"watchfront/httputil"
	"watchfront/models"
)

// pageLoader returns the rendered HTML of a page.
type pageLoader interface {
	Load(ctx context.Context, pageURL string) (string, error)
	Close() error
}

// StorefrontProvider reads the seller's public store search pages in a
// headless browser. It needs no credentials and is the last resort before
// the sample collection.
type StorefrontProvider struct {
	cfg    *config.ProviderConfig
	acq    config.AcquireConfig
	loader pageLoader
	pages  *rate.Limiter
}

func NewStorefrontProvider(pc *config.ProviderConfig, acq config.AcquireConfig, clients *httputil.Clients) *StorefrontProvider {
	var proxy *url.URL
	if clients != nil {
		proxy = clients.Proxy
	}
	return &StorefrontProvider{
		cfg:    pc,
		acq:    acq,
		loader: &playwrightLoader{proxy: proxy},
		pages:  pacer(pageInterval(pc, acq)),
	}
}

func (p *StorefrontProvider) ID() string {
	return p.cfg.ID
}

func (p *StorefrontProvider) Close() error {
	return p.loader.Close()
}

func (p *StorefrontProvider) Fetch(ctx context.Context, req FetchRequest) ([]models.Listing, error) {
	if req.SellerID == "" {
		return nil, fmt.Errorf("%s: seller id not configured", p.cfg.ID)
	}

	var listings []models.Listing
	next := p.storeURL(req.SellerID)
	for page := 1; next != ""; page++ {
		if err := p.pages.Wait(ctx); err != nil {
			return nil, err
		}

		html, err := p.loader.Load(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("%s page %d: %w", p.cfg.ID, page, err)
		}
		items, nextURL, err := parseStorefrontPage(html, next)
		if err != nil {
			return nil, fmt.Errorf("%s page %d: %w", p.cfg.ID, page, err)
		}

		listings = append(listings, items...)
		logger.Infof("%s: page %d: %d items (total: %d)", p.cfg.ID, page, len(items), len(listings))

		if req.reached(len(listings)) || len(items) == 0 {
			break
		}
		next = nextURL
	}

	return finalize(listings, req.MaxItems), nil
}

func (p *StorefrontProvider) storeURL(sellerID string) string {
	q := url.Values{}
	q.Set("_ssn", sellerID)
	q.Set("_sop", "10") // newly listed first
	if p.acq.PageSize > 0 {
		q.Set("_ipg", strconv.Itoa(p.acq.PageSize))
	}
	return p.cfg.Endpoint("store") + "?" + q.Encode()
}

// parseStorefrontPage extracts listing cards and the next-page link from a
// store search results page. Relative links resolve against pageURL.
func parseStorefrontPage(html, pageURL string) ([]models.Listing, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, "", fmt.Errorf("parse store page: %w", err)
	}
	base, _ := url.Parse(pageURL)

	var listings []models.Listing
	doc.Find("li.s-item").Each(func(_ int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Find(".s-item__title").First().Text())
		title = strings.TrimPrefix(title, "New Listing")
		title = strings.TrimSpace(title)
		link, _ := s.Find("a.s-item__link").First().Attr("href")
		// placeholder card the results page renders before the real ones
		if title == "" || strings.EqualFold(title, "Shop on eBay") || link == "" {
			return
		}
		link = resolve(base, link)

		img := s.Find("img.s-item__image-img, .s-item__image img").First()
		src, _ := img.Attr("src")
		if dataSrc, ok := img.Attr("data-src"); ok && dataSrc != "" {
			src = dataSrc
		}

		l := models.Listing{
			Title:            title,
			ImageURL:         src,
			Price:            parseDisplayPrice(s.Find(".s-item__price").First().Text()),
			ExternalURL:      stripTracking(link),
			ShortDescription: strings.TrimSpace(s.Find(".s-item__subtitle").First().Text()),
		}
		if cond := strings.TrimSpace(s.Find(".SECONDARY_INFO").First().Text()); cond != "" {
			l.Attributes = append(l.Attributes, models.Attribute{Name: "Condition", Value: cond})
		}
		listings = append(listings, l)
	})

	next := ""
	if href, ok := doc.Find("a.pagination__next").First().Attr("href"); ok && href != "" && href != "#" {
		next = resolve(base, href)
	}
	return listings, next, nil
}

func resolve(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}

// stripTracking drops the query string from item links.
func stripTracking(link string) string {
	u, err := url.Parse(link)
	if err != nil || !strings.Contains(u.Path, "/itm/") {
		return link
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// playwrightLoader starts a headless Chromium on first use and reuses it.
type playwrightLoader struct {
	mu      sync.Mutex
	proxy   *url.URL
	pw      *playwright.Playwright
	browser playwright.Browser
}

func (l *playwrightLoader) launchOptions() playwright.BrowserTypeLaunchOptions {
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	}
	if l.proxy != nil {
		// chromium takes credentials separately from the server address
		proxy := &playwright.Proxy{Server: l.proxy.Scheme + "://" + l.proxy.Host}
		if user := l.proxy.User; user != nil {
			proxy.Username = playwright.String(user.Username())
			if pass, ok := user.Password(); ok {
				proxy.Password = playwright.String(pass)
			}
		}
		opts.Proxy = proxy
	}
	return opts
}

func (l *playwrightLoader) ensure() error {
	if l.browser != nil {
		return nil
	}
	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(l.launchOptions())
	if err != nil {
		pw.Stop()
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	l.pw = pw
	l.browser = browser
	return nil
}

func (l *playwrightLoader) Load(ctx context.Context, pageURL string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := l.ensure(); err != nil {
		return "", err
	}

	page, err := l.browser.NewPage()
	if err != nil {
		return "", fmt.Errorf("new page: %w", err)
	}
	defer page.Close()

	if _, err := page.Goto(pageURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(30000),
	}); err != nil {
		return "", fmt.Errorf("goto: %w", err)
	}
	return page.Content()
}

func (l *playwrightLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.browser != nil {
		l.browser.Close()
		l.browser = nil
	}
	if l.pw != nil {
		err := l.pw.Stop()
		l.pw = nil
		return err
	}
	return nil
}
