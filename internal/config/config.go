package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"marketplace-scraper/internal/crawler"
	"marketplace-scraper/pkg/models"
)

const (
	SinkJSONL    = "jsonl"
	SinkCSV      = "csv"
	SinkPostgres = "postgres"
	SinkKafka    = "kafka"
)

type Config struct {
	// Search
	Query     string           `envconfig:"SEARCH_QUERY"`
	Location  string           `envconfig:"LOCATION"`
	MaxItems  int              `envconfig:"MAX_LISTINGS" default:"50"`
	MinPrice  *int             `envconfig:"MIN_PRICE"`
	MaxPrice  *int             `envconfig:"MAX_PRICE"`
	Condition models.Condition `envconfig:"CONDITION" default:"all"`
	SortBy    models.SortOrder `envconfig:"SORT_BY" default:"best_match"`

	// Browser
	ProxyURL       string `envconfig:"PROXY_URL"`
	Headless       bool   `envconfig:"HEADLESS" default:"true"`
	UserAgent      string `envconfig:"USER_AGENT"`
	ViewportWidth  int    `envconfig:"VIEWPORT_WIDTH" default:"1920"`
	ViewportHeight int    `envconfig:"VIEWPORT_HEIGHT" default:"1080"`

	// Page loading
	NavigationTimeout time.Duration `envconfig:"NAVIGATION_TIMEOUT" default:"60s"`
	RenderSelector    string        `envconfig:"RENDER_SELECTOR" default:"div[role=\"main\"]"`
	RenderTimeout     time.Duration `envconfig:"RENDER_TIMEOUT" default:"30s"`
	SettleDelay       time.Duration `envconfig:"SETTLE_DELAY" default:"5s"`
	ScrollStep        int           `envconfig:"SCROLL_STEP" default:"500"`
	ScrollInterval    time.Duration `envconfig:"SCROLL_INTERVAL" default:"200ms"`
	ScrollCeiling     int           `envconfig:"SCROLL_CEILING" default:"5000"`
	MaxAttempts       int           `envconfig:"MAX_ATTEMPTS" default:"2"`

	// Politeness. RateLimit is the minimum spacing between loads of one host.
	RateLimit     time.Duration `envconfig:"RATE_LIMIT" default:"2s"`
	RespectRobots bool          `envconfig:"RESPECT_ROBOTS" default:"false"`

	// Output
	Sink        string `envconfig:"SINK" default:"jsonl"`
	OutputFile  string `envconfig:"OUTPUT_FILE" default:"output/listings.jsonl"`
	DatabaseURL string `envconfig:"DB_URL"`
	KafkaBroker string `envconfig:"KAFKA_BROKER"`
	KafkaTopic  string `envconfig:"KAFKA_TOPIC" default:"marketplace.listings"`

	// Status and observability
	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	RedisStatusTTL time.Duration `envconfig:"REDIS_STATUS_TTL" default:"24h"`
	MetricsAddr    string        `envconfig:"METRICS_ADDR"`
	LogLevel       slog.Level    `envconfig:"LOG_LEVEL" default:"info"`
}

// Load processes environment variables and populates the Config struct.
// It does not validate: callers apply their overrides first, then call Validate.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil {
		if _, statErr := os.Stat(".env"); statErr == nil {
			slog.Warn(".env file found but could not be loaded", "error", err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.MaxItems <= 0 {
		return fmt.Errorf("max listings must be positive")
	}
	if c.MinPrice != nil && *c.MinPrice < 0 {
		return fmt.Errorf("min price cannot be negative")
	}
	if c.MaxPrice != nil && *c.MaxPrice < 0 {
		return fmt.Errorf("max price cannot be negative")
	}
	if c.MinPrice != nil && c.MaxPrice != nil && *c.MinPrice > *c.MaxPrice {
		return fmt.Errorf("min price (%d) cannot exceed max price (%d)", *c.MinPrice, *c.MaxPrice)
	}
	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		return fmt.Errorf("viewport must be positive")
	}
	if c.NavigationTimeout <= 0 {
		return fmt.Errorf("navigation timeout must be positive")
	}
	if c.RenderTimeout <= 0 {
		return fmt.Errorf("render timeout must be positive")
	}
	if c.RenderSelector == "" {
		return fmt.Errorf("render selector cannot be empty")
	}
	if c.SettleDelay < 0 || c.ScrollInterval < 0 {
		return fmt.Errorf("settle delay and scroll interval cannot be negative")
	}
	if c.ScrollStep <= 0 {
		return fmt.Errorf("scroll step must be positive")
	}
	if c.ScrollCeiling < c.ScrollStep {
		return fmt.Errorf("scroll ceiling (%d) cannot be below scroll step (%d)", c.ScrollCeiling, c.ScrollStep)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}

	switch c.Sink {
	case SinkJSONL, SinkCSV:
		if c.OutputFile == "" {
			return fmt.Errorf("output file cannot be empty for sink %s", c.Sink)
		}
	case SinkPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DB_URL is required for sink postgres")
		}
	case SinkKafka:
		if c.KafkaBroker == "" || c.KafkaTopic == "" {
			return fmt.Errorf("KAFKA_BROKER and KAFKA_TOPIC are required for sink kafka")
		}
	default:
		return fmt.Errorf("sink must be jsonl, csv, postgres or kafka, got %q", c.Sink)
	}
	return nil
}

// Search returns the session input described by this config.
func (c *Config) Search() models.SearchConfig {
	userAgent := c.UserAgent
	if userAgent == "" {
		userAgent = crawler.DefaultUserAgent
	}
	return models.SearchConfig{
		Query:     c.Query,
		Location:  c.Location,
		MinPrice:  copyInt(c.MinPrice),
		MaxPrice:  copyInt(c.MaxPrice),
		Condition: c.Condition,
		SortBy:    c.SortBy,
		ResultCap: c.MaxItems,
		Browser: models.BrowserOptions{
			ProxyServer:    c.ProxyURL,
			Headless:       c.Headless,
			UserAgent:      userAgent,
			ViewportWidth:  c.ViewportWidth,
			ViewportHeight: c.ViewportHeight,
		},
	}
}

func (c *Config) Navigation() crawler.NavigatorConfig {
	nav := crawler.NavigatorConfig{
		ViewportWidth:     c.ViewportWidth,
		ViewportHeight:    c.ViewportHeight,
		UserAgent:         c.UserAgent,
		NavigationTimeout: c.NavigationTimeout,
		RenderSelector:    c.RenderSelector,
		RenderTimeout:     c.RenderTimeout,
		SettleDelay:       c.SettleDelay,
		ScrollStep:        c.ScrollStep,
		ScrollInterval:    c.ScrollInterval,
		ScrollCeiling:     c.ScrollCeiling,
	}
	if nav.UserAgent == "" {
		nav.UserAgent = crawler.DefaultUserAgent
	}
	return nav
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
