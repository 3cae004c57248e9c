// Package config loads the crawler and recommender configuration from a YAML
// file, then overlays environment variables so deployments can inject
// credentials without editing the file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config captures everything required to run the crawl batch and the read API.
type Config struct {
	DB        SQLConfig       `yaml:"db"`
	Crawler   CrawlerConfig   `yaml:"crawler"`
	Robots    RobotsConfig    `yaml:"robots"`
	Rendering RenderingConfig `yaml:"rendering"`
	Worker    WorkerConfig    `yaml:"worker"`
	Recommend RecommendConfig `yaml:"recommend"`
	API       APIConfig       `yaml:"api"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SQLConfig describes the relational database used for persistence.
type SQLConfig struct {
	Driver          string   `yaml:"driver" env:"DB_DRIVER"`
	DSN             string   `yaml:"dsn" env:"DATABASE_URL"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool     `yaml:"auto_migrate"`
}

// CrawlerConfig controls politeness, retries, and which banks run.
type CrawlerConfig struct {
	Banks          []string          `yaml:"banks"`
	DelayMin       Duration          `yaml:"delay_min"`
	DelayMax       Duration          `yaml:"delay_max"`
	MaxRetries     int               `yaml:"max_retries"`
	RetryBackoff   Duration          `yaml:"retry_backoff"`
	RequestTimeout Duration          `yaml:"request_timeout"`
	UserAgents     []string          `yaml:"user_agents"`
	Headers        map[string]string `yaml:"headers"`
	ProxyURL       string            `yaml:"proxy_url" env:"CRAWLER_PROXY_URL"`
	PerHostDelay   Duration          `yaml:"per_host_delay"`
	RateLimit      RateLimitConfig   `yaml:"rate_limit_per_host"`
	MaxBodyBytes   int64             `yaml:"max_body_bytes"`
}

// RateLimitConfig applies a token bucket per host.
type RateLimitConfig struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
}

// Enabled reports whether per-host rate limiting is active.
func (r RateLimitConfig) Enabled() bool {
	return r.Requests > 0 && !r.Window.IsZero()
}

// RobotsConfig configures robots.txt handling for bank sites.
type RobotsConfig struct {
	Respect   bool     `yaml:"respect"`
	UserAgent string   `yaml:"user_agent"`
	CacheTTL  Duration `yaml:"cache_ttl"`
	Overrides []string `yaml:"overrides"`
}

// RenderingConfig controls optional JavaScript rendering for minisite pages.
type RenderingConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Timeout            Duration `yaml:"timeout"`
	WaitForSelector    string   `yaml:"wait_for_selector"`
	ConcurrentSessions int      `yaml:"concurrent_sessions"`
	DisableHeadless    bool     `yaml:"disable_headless"`
}

// WorkerConfig sizes the per-bank crawl pool.
type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// RecommendConfig tunes the scoring engine.
type RecommendConfig struct {
	RewardWeight    float64 `yaml:"reward_weight"`
	FeatureWeight   float64 `yaml:"feature_weight"`
	PromotionWeight float64 `yaml:"promotion_weight"`
	Strategy        string  `yaml:"strategy"`
	DefaultLimit    int     `yaml:"default_limit"`
}

// APIConfig configures the read API server.
type APIConfig struct {
	Addr string `yaml:"addr" env:"API_ADDR"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`
	Structured bool   `yaml:"structured"`
}

// Default returns a Config populated with the crawl-politeness and scoring
// defaults the rest of the system assumes.
func Default() Config {
	return Config{
		DB: SQLConfig{
			Driver:       "postgres",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			AutoMigrate:  true,
		},
		Crawler: CrawlerConfig{
			DelayMin:       DurationFrom(2 * time.Second),
			DelayMax:       DurationFrom(5 * time.Second),
			MaxRetries:     3,
			RetryBackoff:   DurationFrom(1 * time.Second),
			RequestTimeout: DurationFrom(30 * time.Second),
			Headers:        map[string]string{},
			PerHostDelay:   DurationFrom(1 * time.Second),
			MaxBodyBytes:   6 * 1024 * 1024,
		},
		Robots: RobotsConfig{
			Respect:   true,
			UserAgent: "card-crawler/1.0",
			CacheTTL:  DurationFrom(6 * time.Hour),
		},
		Rendering: RenderingConfig{
			Enabled:            false,
			Timeout:            DurationFrom(20 * time.Second),
			ConcurrentSessions: 1,
		},
		Worker: WorkerConfig{
			Concurrency: 2,
		},
		Recommend: RecommendConfig{
			RewardWeight:    0.5,
			FeatureWeight:   0.3,
			PromotionWeight: 0.2,
			Strategy:        "weighted",
			DefaultLimit:    5,
		},
		API: APIConfig{
			Addr: ":8000",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Structured: true,
		},
	}
}

// Load reads, merges, and validates configuration from a YAML file, then
// applies environment overrides.
func Load(path string) (*Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()
	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces required invariants on the configuration.
func (c Config) Validate() error {
	if c.DB.Driver == "" {
		return errors.New("db.driver must be set")
	}
	if c.Crawler.MaxRetries < 0 {
		return fmt.Errorf("crawler.max_retries must be >= 0 (got %d)", c.Crawler.MaxRetries)
	}
	if c.Crawler.DelayMin.Duration < 0 || c.Crawler.DelayMax.Duration < 0 {
		return errors.New("crawler delays must be >= 0")
	}
	if c.Crawler.DelayMax.Duration < c.Crawler.DelayMin.Duration {
		return fmt.Errorf("crawler.delay_max %s is below crawler.delay_min %s",
			c.Crawler.DelayMax, c.Crawler.DelayMin)
	}
	if c.Crawler.MaxBodyBytes <= 0 {
		return fmt.Errorf("crawler.max_body_bytes must be > 0 (got %d)", c.Crawler.MaxBodyBytes)
	}
	if rl := c.Crawler.RateLimit; rl.Requests < 0 {
		return fmt.Errorf("crawler.rate_limit_per_host.requests must be >= 0 (got %d)", rl.Requests)
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0 (got %d)", c.Worker.Concurrency)
	}
	if c.Robots.Respect && strings.TrimSpace(c.Robots.UserAgent) == "" {
		return errors.New("robots.user_agent must be set when robots.respect is true")
	}

	sum := c.Recommend.RewardWeight + c.Recommend.FeatureWeight + c.Recommend.PromotionWeight
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("recommend weights must sum to 1.0 (got %.4f)", sum)
	}
	switch c.Recommend.Strategy {
	case "weighted", "roi":
	default:
		return fmt.Errorf("unsupported recommend.strategy %q", c.Recommend.Strategy)
	}
	if c.Recommend.DefaultLimit <= 0 {
		return fmt.Errorf("recommend.default_limit must be > 0 (got %d)", c.Recommend.DefaultLimit)
	}
	return nil
}

func (c *Config) normalise() {
	c.DB.Driver = strings.TrimSpace(c.DB.Driver)
	c.Robots.UserAgent = strings.TrimSpace(c.Robots.UserAgent)
	c.Recommend.Strategy = strings.ToLower(strings.TrimSpace(c.Recommend.Strategy))
	if len(c.Crawler.Banks) > 0 {
		c.Crawler.Banks = dedupeLower(c.Crawler.Banks)
	}
	if len(c.Robots.Overrides) > 0 {
		c.Robots.Overrides = dedupeLower(c.Robots.Overrides)
	}
	agents := make([]string, 0, len(c.Crawler.UserAgents))
	for _, ua := range c.Crawler.UserAgents {
		if trimmed := strings.TrimSpace(ua); trimmed != "" {
			agents = append(agents, trimmed)
		}
	}
	c.Crawler.UserAgents = agents
}

func dedupeLower(values []string) []string {
	unique := make(map[string]struct{}, len(values))
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := unique[v]; ok {
			continue
		}
		unique[v] = struct{}{}
		cleaned = append(cleaned, v)
	}
	sort.Strings(cleaned)
	return cleaned
}

// NewLogger builds the process logger from logging configuration.
func NewLogger(cfg LoggingConfig) (*slog.Logger, error) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unsupported log level %q", cfg.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Structured {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler), nil
}
