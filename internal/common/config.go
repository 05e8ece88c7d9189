package common

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration. Defaults are applied
// first; a TOML file overlays them. Unknown keys in the file are rejected.
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Fetch       FetchConfig     `toml:"fetch"`
	RateLimit   RateLimitConfig `toml:"rate_limit"`
	Cache       CacheConfig     `toml:"cache"`
	Crawl       CrawlConfig     `toml:"crawl"`
	SSRF        SSRFConfig      `toml:"ssrf"`
	Robots      RobotsConfig    `toml:"robots"`
	Webhook     WebhookConfig   `toml:"webhook"`
	Jobs        JobsConfig      `toml:"jobs"`
	Research    ResearchConfig  `toml:"research"`
	Changes     ChangesConfig   `toml:"changes"`
	Credits     CreditsConfig   `toml:"credits"`
	Workers     WorkersConfig   `toml:"workers"`
	Metrics     MetricsConfig   `toml:"metrics"`
}

type StorageConfig struct {
	Root   string       `toml:"root"` // parent of jobs/, snapshots/, cache/, webhooks/
	Badger BadgerConfig `toml:"badger"`
}

type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output     []string `toml:"output"` // "stdout", "file"
	TimeFormat string   `toml:"time_format"`
}

type FetchConfig struct {
	TimeoutMs      int    `toml:"timeout_ms"`     // per-fetch attempt
	TotalTimeoutMs int    `toml:"total_timeout"`  // across retries
	MaxBytes       int64  `toml:"max_bytes"`      // response body cap
	MaxRedirects   int    `toml:"max_redirects"`  //
	UserAgent      string `toml:"user_agent"`     //
	MaxAttempts    int    `toml:"max_attempts"`   // retry budget
	PerHostIdle    int    `toml:"per_host_idle"`  // keep-alive pool per origin
	GlobalIdle     int    `toml:"global_idle"`    // keep-alive pool total
	BreakerResetMs int    `toml:"breaker_reset"`  // half-open after this many ms
	BreakerTrips   int    `toml:"breaker_trips"`  // consecutive failures to open
	BreakerProbes  int    `toml:"breaker_probes"` // half-open probe budget
}

type RateLimitConfig struct {
	RPS            float64 `toml:"rps"`
	Burst          int     `toml:"burst"`
	GlobalInflight int64   `toml:"global_inflight"`
}

type CacheConfig struct {
	L1Items int64  `toml:"l1_items"`
	L1Bytes int64  `toml:"l1_bytes"`
	TTLMs   int    `toml:"ttl_ms"`
	L2Path  string `toml:"l2_path"` // defaults to {storage.root}/cache
}

type CrawlConfig struct {
	MaxDepth      int  `toml:"max_depth"`
	MaxPages      int  `toml:"max_pages"`
	RespectRobots bool `toml:"respect_robots"`
	Concurrency   int  `toml:"concurrency"`
}

type SSRFConfig struct {
	BlockPrivate      bool     `toml:"block_private"`
	ExtraBlockedHosts []string `toml:"extra_blocked_hosts"`
	BlockedPorts      []int    `toml:"blocked_ports"`
}

type RobotsConfig struct {
	TTLMs      int  `toml:"ttl_ms"`
	FailClosed bool `toml:"fail_closed"` // treat fetch failure as disallow
}

type WebhookConfig struct {
	MaxAttempts   int    `toml:"max_attempts"`
	QueueSize     int    `toml:"queue_size"`
	SigningSecret string `toml:"signing_secret"`
	TimeoutMs     int    `toml:"timeout_ms"`
}

type JobsConfig struct {
	RetentionMs int `toml:"retention_ms"`
	Workers     int `toml:"workers"`
}

type ResearchConfig struct {
	DefaultTimeLimitMs int `toml:"default_time_limit_ms"`
	MaxURLs            int `toml:"max_urls"`
}

// ChangesConfig exposes the significance weights and thresholds. The source
// material disagrees on the exact weight semantics, so they are configuration
// rather than constants.
type ChangesConfig struct {
	WeightText        float64   `toml:"weight_text"`
	WeightStructural  float64   `toml:"weight_structural"`
	WeightMetadata    float64   `toml:"weight_metadata"`
	WeightVisual      float64   `toml:"weight_visual"`
	Thresholds        []float64 `toml:"thresholds"` // minor, moderate, major, critical lower bounds
	MinNotifyMs       int       `toml:"min_notify_ms"`
	NotifySignificant string    `toml:"notification_threshold"` // minimum significance to emit events
}

// CreditsConfig carries the per-tool credit cost table. Costs are read from
// configuration, never hard-coded.
type CreditsConfig struct {
	Balance int            `toml:"balance"`
	Costs   map[string]int `toml:"costs"`
}

type WorkersConfig struct {
	PoolSize      int `toml:"pool_size"`
	QueueSize     int `toml:"queue_size"`
	TaskTimeoutMs int `toml:"task_timeout_ms"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"` // e.g. "127.0.0.1:9090"
}

// DefaultConfig returns the configuration with all documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Environment: "production",
		Storage: StorageConfig{
			Root:   "./data",
			Badger: BadgerConfig{Path: "./data/db"},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
		Fetch: FetchConfig{
			TimeoutMs:      30000,
			TotalTimeoutMs: 60000,
			MaxBytes:       100 << 20,
			MaxRedirects:   5,
			UserAgent:      "venator/" + Version,
			MaxAttempts:    3,
			PerHostIdle:    10,
			GlobalIdle:     100,
			BreakerResetMs: 60000,
			BreakerTrips:   5,
			BreakerProbes:  3,
		},
		RateLimit: RateLimitConfig{
			RPS:            10,
			Burst:          20,
			GlobalInflight: 100,
		},
		Cache: CacheConfig{
			L1Items: 1000,
			L1Bytes: 64 << 20,
			TTLMs:   3_600_000,
		},
		Crawl: CrawlConfig{
			MaxDepth:      5,
			MaxPages:      100,
			RespectRobots: true,
			Concurrency:   8,
		},
		SSRF: SSRFConfig{
			BlockPrivate: true,
			BlockedPorts: []int{22, 23, 25, 53, 135, 139, 445, 1433, 3306, 5432, 6379, 27017},
		},
		Robots: RobotsConfig{
			TTLMs: 3_600_000,
		},
		Webhook: WebhookConfig{
			MaxAttempts: 3,
			QueueSize:   10000,
			TimeoutMs:   10000,
		},
		Jobs: JobsConfig{
			RetentionMs: 86_400_000,
			Workers:     4,
		},
		Research: ResearchConfig{
			DefaultTimeLimitMs: 180_000,
			MaxURLs:            1000,
		},
		Changes: ChangesConfig{
			WeightText:        0.4,
			WeightStructural:  0.2,
			WeightMetadata:    0.2,
			WeightVisual:      0.2,
			Thresholds:        []float64{0.1, 0.4, 0.7, 0.9},
			MinNotifyMs:       60_000,
			NotifySignificant: "moderate",
		},
		Credits: CreditsConfig{
			Balance: 1_000_000,
			Costs:   map[string]int{},
		},
		Workers: WorkersConfig{
			PoolSize:      8,
			QueueSize:     256,
			TaskTimeoutMs: 30000,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9090",
		},
	}
}

// LoadFromFile loads configuration from a TOML file over the defaults.
// A missing file is not an error; unknown keys are.
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()

	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath.Base(path), err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.Fetch.MaxRedirects < 0 {
		return fmt.Errorf("fetch.max_redirects must be >= 0")
	}
	if c.Fetch.MaxBytes <= 0 {
		return fmt.Errorf("fetch.max_bytes must be > 0")
	}
	if c.RateLimit.RPS <= 0 {
		return fmt.Errorf("rate_limit.rps must be > 0")
	}
	if c.Crawl.MaxDepth < 1 || c.Crawl.MaxDepth > 10 {
		return fmt.Errorf("crawl.max_depth must be in [1,10]")
	}
	if c.Webhook.QueueSize < 1 {
		return fmt.Errorf("webhook.queue_size must be >= 1")
	}
	if len(c.Changes.Thresholds) != 4 {
		return fmt.Errorf("changes.thresholds must have exactly 4 bounds")
	}
	return nil
}

// FetchTimeout returns the per-attempt fetch timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutMs) * time.Millisecond
}

// CacheTTL returns the default cache entry TTL.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLMs) * time.Millisecond
}

// CacheL2Path returns the L2 cache directory, defaulting under storage root.
func (c *Config) CacheL2Path() string {
	if c.Cache.L2Path != "" {
		return c.Cache.L2Path
	}
	return filepath.Join(c.Storage.Root, "cache")
}

// JobRetention returns the job retention window.
func (c *Config) JobRetention() time.Duration {
	return time.Duration(c.Jobs.RetentionMs) * time.Millisecond
}
