package httputil

import (
	"net/http"
	"net/url"
	"time"

	"watchfront/config"
	"watchfront/logging"
)

const userAgent = "watchfront/1.0 (+listing acquisition)"

var logger = logging.New("httputil")

type Clients struct {
	API   *http.Client // marketplace APIs and token exchange
	Proxy *url.URL     // nil means direct; also handed to the headless browser
}

// NewClients builds the shared clients. HTTP_PROXY_URL, when set, routes
// every request through that proxy; otherwise the environment decides.
func NewClients(proxyCfg *config.ProxyConfig) *Clients {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	var proxy *url.URL
	if proxyCfg != nil && proxyCfg.URL != "" {
		u, err := url.Parse(proxyCfg.URL)
		if err != nil || u.Host == "" {
			logger.Warnf("ignoring invalid HTTP_PROXY_URL")
		} else {
			proxy = u
			transport.Proxy = http.ProxyURL(u)
		}
	}

	return &Clients{
		API: &http.Client{
			Timeout:   30 * time.Second,
			Transport: userAgentTransport{base: transport},
		},
		Proxy: proxy,
	}
}

type userAgentTransport struct {
	base http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", userAgent)
	}
	return t.base.RoundTrip(req)
}
