package scraper

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"watchfront/config"
	"watchfront/httputil"
	"watchfront/logging"
	"watchfront/models"
)

var logger = logging.New("scraper")

// Provider is one acquisition strategy. Each maps its own wire format into
// canonical listings; the orchestrator owns retries across providers,
// fallback and persistence.
type Provider interface {
	ID() string
	Fetch(ctx context.Context, req FetchRequest) ([]models.Listing, error)
}

type FetchRequest struct {
	SellerID string
	MaxItems int // 0 means no cutoff
}

// reached reports whether n items satisfy the cutoff.
func (r FetchRequest) reached(n int) bool {
	return r.MaxItems > 0 && n >= r.MaxItems
}

func NewProvider(pc *config.ProviderConfig, acq config.AcquireConfig, clients *httputil.Clients) (Provider, error) {
	retrier := &Retrier{
		MaxRetries:  acq.MaxRetries,
		BaseBackoff: acq.BaseBackoff,
		MaxBackoff:  acq.MaxBackoff,
	}

	switch pc.Handler {
	case "browse":
		return NewBrowseProvider(pc, acq, clients, retrier), nil
	case "finding":
		return NewFindingProvider(pc, acq, clients, retrier), nil
	case "trading":
		return NewTradingProvider(pc, acq, clients, retrier), nil
	case "storefront":
		return NewStorefrontProvider(pc, acq, clients), nil
	default:
		return nil, fmt.Errorf("provider %s: unknown handler %q", pc.ID, pc.Handler)
	}
}

// newTokenSource prefers a pre-issued token and falls back to the
// client-credentials grant.
func newTokenSource(pc *config.ProviderConfig, client *httputil.Clients) TokenSource {
	if pc.Credentials.Token != "" {
		return StaticToken(pc.Credentials.Token)
	}
	return &ClientCredentials{
		ClientID:     pc.Credentials.ClientID,
		ClientSecret: firstSet(pc.Credentials.ClientSecret, pc.Credentials.CertID),
		TokenURL:     pc.Endpoint("token"),
		Client:       client.API,
	}
}

// pacer spaces successive requests. A zero interval disables it; the first
// call never waits.
func pacer(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

func pageInterval(pc *config.ProviderConfig, acq config.AcquireConfig) time.Duration {
	if d := time.Duration(pc.RateLimitMS) * time.Millisecond; d > acq.PageDelay {
		return d
	}
	return acq.PageDelay
}

func firstSet(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
