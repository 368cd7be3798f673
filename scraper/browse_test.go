package scraper

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"watchfront/config"
	"watchfront/httputil"
	"watchfront/logging"
	"watchfront/models"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return data
}

func testAcquire() config.AcquireConfig {
	return config.AcquireConfig{
		PageSize:    2,
		DetailLimit: 20,
		DetailBatch: 2,
		MaxRetries:  3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}
}

func testRetrier(acq config.AcquireConfig) *Retrier {
	return &Retrier{MaxRetries: acq.MaxRetries, BaseBackoff: acq.BaseBackoff, MaxBackoff: acq.MaxBackoff}
}

func browseConfig(baseURL string) *config.ProviderConfig {
	return &config.ProviderConfig{
		ID:          "browse",
		Handler:     "browse",
		Condition:   "USED",
		Sort:        "newlyListed",
		Marketplace: "EBAY_US",
		Endpoints: map[string]string{
			"search": baseURL + "/search",
			"item":   baseURL + "/item",
			"token":  baseURL + "/token",
		},
		Credentials: config.Credentials{Token: "tok-123"},
	}
}

type browseServer struct {
	*httptest.Server
	searches  int32
	details   int32
	lastLimit atomic.Value
}

func newBrowseServer(t *testing.T) *browseServer {
	t.Helper()
	page1 := loadFixture(t, "browse_search_page1.json")
	page2 := loadFixture(t, "browse_search_page2.json")
	item := loadFixture(t, "browse_item.json")

	bs := &browseServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&bs.searches, 1)
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("X-EBAY-C-MARKETPLACE-ID"); got != "EBAY_US" {
			t.Errorf("marketplace header = %q", got)
		}
		q := r.URL.Query()
		if q.Get("q") != "seller:watchdealer" || q.Get("filter") != "conditions:{USED}" || q.Get("sort") != "newlyListed" {
			t.Errorf("query = %v", q)
		}
		bs.lastLimit.Store(q.Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		if q.Get("offset") == "2" {
			w.Write(page2)
			return
		}
		w.Write(page1)
	})
	mux.HandleFunc("/item/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&bs.details, 1)
		if strings.TrimPrefix(r.URL.Path, "/item/") != "110000000001" {
			http.Error(w, `{"errors":[{"errorId":11001}]}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(item)
	})
	bs.Server = httptest.NewServer(mux)
	t.Cleanup(bs.Close)
	return bs
}

func TestBrowseFetchPaginatesAndEnriches(t *testing.T) {
	srv := newBrowseServer(t)
	acq := testAcquire()
	p := NewBrowseProvider(browseConfig(srv.URL), acq, httputil.NewClients(nil), testRetrier(acq))

	listings, err := p.Fetch(context.Background(), FetchRequest{SellerID: "watchdealer"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if n := atomic.LoadInt32(&srv.searches); n != 2 {
		t.Fatalf("search requests = %d, want 2", n)
	}
	var ids []string
	for _, l := range listings {
		ids = append(ids, l.ID)
	}
	if strings.Join(ids, ",") != "110000000001,110000000002,110000000003" {
		t.Fatalf("ids = %v, want duplicates dropped in page order", ids)
	}

	seiko := listings[0]
	if seiko.FullDescription != "Classic automatic field watch. Runs well." {
		t.Errorf("full description = %q", seiko.FullDescription)
	}
	if seiko.ShortDescription != seiko.FullDescription {
		t.Errorf("short description should be derived from the full one, got %q", seiko.ShortDescription)
	}
	if seiko.ImageURL != "https://i.ebayimg.com/images/g/seiko/s-l1600.jpg" {
		t.Errorf("detail image not used: %q", seiko.ImageURL)
	}
	if v, _ := seiko.Attribute("Movement"); v != "Automatic" {
		t.Errorf("Movement = %q", v)
	}
	if v, _ := seiko.Attribute(models.AttrListingDate); v != "2024-03-01T10:00:00.000Z" {
		t.Errorf("Listing Date = %q", v)
	}

	casio := listings[1]
	if casio.ShortDescription != "Square case, resin strap." || casio.FullDescription != casio.ShortDescription {
		t.Errorf("failed detail should keep the summary: %+v", casio)
	}
	if v, _ := casio.Attribute("Condition"); v != "Used" {
		t.Errorf("Condition = %q", v)
	}
	if casio.Price.Amount != "49.00" || casio.Price.Currency != "USD" {
		t.Errorf("price = %+v", casio.Price)
	}

	if listings[2].ImageURL == "" {
		t.Error("missing image should get a placeholder")
	}
}

func TestBrowseFetchStopsAtMaxItems(t *testing.T) {
	srv := newBrowseServer(t)
	acq := testAcquire()
	p := NewBrowseProvider(browseConfig(srv.URL), acq, httputil.NewClients(nil), testRetrier(acq))

	listings, err := p.Fetch(context.Background(), FetchRequest{SellerID: "watchdealer", MaxItems: 1})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("got %d listings, want 1", len(listings))
	}
	if n := atomic.LoadInt32(&srv.searches); n != 1 {
		t.Fatalf("search requests = %d, want 1", n)
	}
	if got := srv.lastLimit.Load(); got != "1" {
		t.Fatalf("limit = %v, want the remaining count", got)
	}
	if n := atomic.LoadInt32(&srv.details); n != 1 {
		t.Fatalf("detail requests = %d, want 1", n)
	}
}

func TestBrowseEnrichStopsWhenCancelled(t *testing.T) {
	srv := newBrowseServer(t)
	acq := testAcquire()
	acq.DetailBatch = 1
	p := NewBrowseProvider(browseConfig(srv.URL), acq, httputil.NewClients(nil), testRetrier(acq))

	var buf bytes.Buffer
	saved := logger
	logger = logging.New("scraper").WithOutput(&buf)
	t.Cleanup(func() { logger = saved })

	items := []browseItem{{ItemID: "110000000001"}, {ItemID: "110000000002"}, {ItemID: "110000000003"}}
	listings := []models.Listing{{ID: "110000000001", Title: "a"}, {ID: "110000000002", Title: "b"}, {ID: "110000000003", Title: "c"}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.enrich(ctx, items, listings)

	if n := atomic.LoadInt32(&srv.details); n != 0 {
		t.Fatalf("detail requests after cancel = %d", n)
	}
	if !strings.Contains(buf.String(), "enrichment stopped after 0 of 3 items") {
		t.Fatalf("cancellation not reported:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), "detail for") {
		t.Fatalf("cancellation logged as a per-item failure:\n%s", buf.String())
	}
	if listings[0].Title != "a" || listings[0].FullDescription != "" {
		t.Fatalf("listing changed: %+v", listings[0])
	}
}

func TestBrowseRefreshesRejectedToken(t *testing.T) {
	page := loadFixture(t, "browse_search_page2.json")
	var tokens, searches int32

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&tokens, 1)
		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			w.Write([]byte(`{"access_token":"stale","expires_in":7200}`))
			return
		}
		w.Write([]byte(`{"access_token":"fresh","expires_in":7200}`))
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&searches, 1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			http.Error(w, `{"errors":[{"errorId":1001,"message":"Invalid access token"}]}`, http.StatusUnauthorized)
			return
		}
		w.Write(page)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	pc := browseConfig(srv.URL)
	delete(pc.Endpoints, "item")
	pc.Credentials = config.Credentials{ClientID: "app-id", CertID: "cert-id"}
	acq := testAcquire()
	p := NewBrowseProvider(pc, acq, httputil.NewClients(nil), testRetrier(acq))

	listings, err := p.Fetch(context.Background(), FetchRequest{SellerID: "watchdealer"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("got %d listings, want 2", len(listings))
	}
	if atomic.LoadInt32(&tokens) != 2 || atomic.LoadInt32(&searches) != 2 {
		t.Fatalf("tokens = %d, searches = %d; want one refresh after the 401", tokens, searches)
	}
}

func TestBrowseRequiresSeller(t *testing.T) {
	acq := testAcquire()
	p := NewBrowseProvider(browseConfig("http://127.0.0.1:0"), acq, httputil.NewClients(nil), testRetrier(acq))
	if _, err := p.Fetch(context.Background(), FetchRequest{}); err == nil {
		t.Fatal("expected error without a seller id")
	}
}
