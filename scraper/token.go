package scraper

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const browseScope = "https://api.ebay.com/oauth/api_scope"

// TokenSource supplies bearer tokens. Invalidate drops any cached token
// after the API rejected it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// StaticToken is a pre-issued token from the environment.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", fmt.Errorf("no marketplace token configured")
	}
	return string(t), nil
}

func (StaticToken) Invalidate() {}

// ClientCredentials obtains application tokens with the client-credentials
// grant and caches them until shortly before they expire.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
	Client       *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
	now    func() time.Time
}

// expiryMargin renews tokens this long before the advertised expiry.
const expiryMargin = time.Minute

func (c *ClientCredentials) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now
	if c.now != nil {
		now = c.now
	}
	if c.token != "" && now().Before(c.expiry) {
		return c.token, nil
	}

	if c.ClientID == "" || c.ClientSecret == "" {
		return "", fmt.Errorf("client credentials not configured")
	}

	scopes := c.Scopes
	if len(scopes) == 0 {
		scopes = []string{browseScope}
	}
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", strings.Join(scopes, " "))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.ClientID+":"+c.ClientSecret)))

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	body, err := doRequest(client, req)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token exchange: empty access_token")
	}

	c.token = tok.AccessToken
	c.expiry = now().Add(time.Duration(tok.ExpiresIn)*time.Second - expiryMargin)
	return c.token, nil
}

func (c *ClientCredentials) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiry = time.Time{}
}
