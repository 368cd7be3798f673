package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Seller    SellerConfig
	Acquire   AcquireConfig
	Scheduler SchedulerConfig
	Server    ServerConfig
	Postgres  PostgresConfig
	S3        S3Config
	Proxy     ProxyConfig
	DBPath    string
	LogPath   string
	LogLevel  string
	Providers map[string]*ProviderConfig
}

type SellerConfig struct {
	ID          string
	Marketplace string
}

// AcquireConfig holds the knobs shared by every provider.
type AcquireConfig struct {
	Providers   []string // chain order
	OutputPath  string
	MaxItems    int
	PageSize    int
	PageDelay   time.Duration
	DetailLimit int
	DetailBatch int
	DetailDelay time.Duration
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

type ServerConfig struct {
	Addr     string
	DataPath string
	GinMode  string
}

type PostgresConfig struct {
	URL string
}

type S3Config struct {
	Bucket    string
	Key       string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

type ProxyConfig struct {
	URL string
}

// Credentials for the marketplace APIs. Which ones are needed depends on
// the provider handler.
type Credentials struct {
	Token        string
	AppID        string
	ClientID     string
	ClientSecret string
	DevID        string
	CertID       string
}

// ProviderConfig describes one acquisition strategy. Files live under
// config/providers, one per provider.
type ProviderConfig struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Handler     string            `yaml:"handler"`
	RateLimitMS int               `yaml:"rate_limit_ms"`
	Endpoints   map[string]string `yaml:"endpoints"`
	Condition   string            `yaml:"condition"`
	Sort        string            `yaml:"sort"`
	Marketplace string            `yaml:"marketplace"`
	Credentials Credentials       `yaml:"-"`
}

// Endpoint returns the named endpoint or "".
func (p *ProviderConfig) Endpoint(name string) string {
	if p == nil || p.Endpoints == nil {
		return ""
	}
	return p.Endpoints[name]
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Seller: SellerConfig{
			ID:          os.Getenv("SELLER_ID"),
			Marketplace: getEnv("MARKETPLACE_ID", "EBAY_US"),
		},
		Acquire: AcquireConfig{
			Providers:   splitList(getEnv("ACQUIRE_PROVIDERS", "browse")),
			OutputPath:  getEnv("OUTPUT_PATH", "listings.json"),
			MaxItems:    getEnvInt("MAX_ITEMS", 200),
			PageSize:    getEnvInt("PAGE_SIZE", 50),
			PageDelay:   getEnvDuration("PAGE_DELAY", time.Second),
			DetailLimit: getEnvInt("DETAIL_LIMIT", 20),
			DetailBatch: getEnvInt("DETAIL_BATCH", 5),
			DetailDelay: getEnvDuration("DETAIL_DELAY", time.Second),
			MaxRetries:  getEnvInt("MAX_RETRIES", 3),
			BaseBackoff: getEnvDuration("BASE_BACKOFF", time.Second),
			MaxBackoff:  getEnvDuration("MAX_BACKOFF", 30*time.Second),
		},
		Scheduler: SchedulerConfig{
			Cron:     os.Getenv("FETCH_CRON"),
			Interval: getEnvDuration("FETCH_INTERVAL", 0),
		},
		Server: ServerConfig{
			Addr:     getEnv("SERVER_ADDR", ":8080"),
			DataPath: getEnv("DATA_PATH", ""),
			GinMode:  getEnv("GIN_MODE", "release"),
		},
		Postgres: PostgresConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		S3: S3Config{
			Bucket:    os.Getenv("S3_BUCKET"),
			Key:       getEnv("S3_KEY", "listings.json"),
			Region:    getEnv("AWS_REGION", "us-east-1"),
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			AccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		},
		Proxy: ProxyConfig{
			URL: os.Getenv("HTTP_PROXY_URL"),
		},
		DBPath:    getEnv("DB_PATH", "watchfront.db"),
		LogPath:   getEnv("LOG_PATH", "watchfront.log"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		Providers: make(map[string]*ProviderConfig),
	}
	if cfg.Server.DataPath == "" {
		cfg.Server.DataPath = cfg.Acquire.OutputPath
	}

	if err := cfg.loadProviderConfigs(getEnv("PROVIDERS_DIR", "config/providers")); err != nil {
		return nil, err
	}

	creds := Credentials{
		Token:        os.Getenv("EBAY_TOKEN"),
		AppID:        os.Getenv("EBAY_APP_ID"),
		ClientID:     getEnv("EBAY_CLIENT_ID", os.Getenv("EBAY_APP_ID")),
		ClientSecret: os.Getenv("EBAY_CLIENT_SECRET"),
		DevID:        os.Getenv("EBAY_DEV_ID"),
		CertID:       os.Getenv("EBAY_CERT_ID"),
	}
	for _, p := range cfg.Providers {
		p.Credentials = creds
		if p.Marketplace == "" {
			p.Marketplace = cfg.Seller.Marketplace
		}
	}

	return cfg, nil
}

// Validate checks what the acquisition service cannot run without.
func (c *Config) Validate() error {
	if len(c.Acquire.Providers) == 0 {
		return fmt.Errorf("ACQUIRE_PROVIDERS is empty")
	}
	for _, id := range c.Acquire.Providers {
		if _, ok := c.Providers[id]; !ok {
			return fmt.Errorf("provider %q has no configuration (known: %s)", id, strings.Join(c.ProviderIDs(), ", "))
		}
	}
	if c.Acquire.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1, got %d", c.Acquire.MaxRetries)
	}
	return nil
}

// ProviderIDs returns the configured provider ids, sorted.
func (c *Config) ProviderIDs() []string {
	ids := make([]string, 0, len(c.Providers))
	for id := range c.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// loadProviderConfigs starts from the built-in providers and lets YAML files
// in dir override or add to them.
func (c *Config) loadProviderConfigs(dir string) error {
	for _, p := range defaultProviders() {
		c.Providers[p.ID] = p
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var p ProviderConfig
		if err := yaml.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if p.ID == "" {
			return fmt.Errorf("parse %s: missing id", path)
		}
		if p.Handler == "" {
			p.Handler = p.ID
		}

		c.Providers[p.ID] = &p
	}

	return nil
}

func defaultProviders() []*ProviderConfig {
	return []*ProviderConfig{
		{
			ID:          "browse",
			Name:        "Browse API",
			Handler:     "browse",
			RateLimitMS: 1000,
			Condition:   "NEW|USED|EXCELLENT|VERY_GOOD|GOOD|ACCEPTABLE",
			Sort:        "newlyListed",
			Endpoints: map[string]string{
				"search": "https://api.ebay.com/buy/browse/v1/item_summary/search",
				"item":   "https://api.ebay.com/buy/browse/v1/item",
				"token":  "https://api.ebay.com/identity/v1/oauth2/token",
			},
		},
		{
			ID:          "finding",
			Name:        "Finding API",
			Handler:     "finding",
			RateLimitMS: 1000,
			Endpoints: map[string]string{
				"search": "https://svcs.ebay.com/services/search/FindingService/v1",
			},
		},
		{
			ID:          "trading",
			Name:        "Trading API",
			Handler:     "trading",
			RateLimitMS: 1000,
			Endpoints: map[string]string{
				"api": "https://api.ebay.com/ws/api.dll",
			},
		},
		{
			ID:          "storefront",
			Name:        "Seller storefront",
			Handler:     "storefront",
			RateLimitMS: 2000,
			Endpoints: map[string]string{
				"store": "https://www.ebay.com/sch/i.html",
			},
		},
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
