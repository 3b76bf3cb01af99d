// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/paid-chapter-feed/internal/feed"
	"github.com/JakeFAU/paid-chapter-feed/internal/modified"
)

// Catalog backends.
const (
	CatalogFile     = "file"
	CatalogSQLite   = "sqlite"
	CatalogPostgres = "postgres"
)

// Output backends.
const (
	OutputLocal  = "local"
	OutputMemory = "memory"
	OutputGCS    = "gcs"
)

// Notification backends.
const (
	PublisherNone   = "none"
	PublisherMemory = "memory"
	PublisherPubSub = "pubsub"
)

// MaxWorkers mirrors the dispatcher's hard ceiling.
const MaxWorkers = 100

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Source   SourceConfig   `mapstructure:"source"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Output   OutputConfig   `mapstructure:"output"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SourceConfig describes the site being monitored.
type SourceConfig struct {
	// BaseURL is joined with a title slug when a novel has no URL override.
	BaseURL string `mapstructure:"base_url"`
	// FeedURL is the site's own chapter feed rewritten by build --modified.
	FeedURL string `mapstructure:"feed_url"`
}

// CrawlerConfig governs the worker pool and page pacing.
type CrawlerConfig struct {
	Workers           int           `mapstructure:"workers"`
	UserAgent         string        `mapstructure:"user_agent"`
	RespectRobots     bool          `mapstructure:"respect_robots"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	StalenessWindow   time.Duration `mapstructure:"staleness_window"`
	RunTimeout        time.Duration `mapstructure:"run_timeout"`
}

// HTTPConfig configures HTTP client retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	MaxParallel      int  `mapstructure:"max_parallel"`
	NavTimeoutSec    int  `mapstructure:"nav_timeout_seconds"`
	SettleTimeoutSec int  `mapstructure:"settle_timeout_seconds"`
	PromotionThresh  int  `mapstructure:"promotion_threshold"`
}

// CatalogConfig selects where the tracked-novel catalog lives.
type CatalogConfig struct {
	Backend     string `mapstructure:"backend"`
	Path        string `mapstructure:"path"`
	DSN         string `mapstructure:"dsn"`
	NovelsTable string `mapstructure:"novels_table"`
	RolesTable  string `mapstructure:"roles_table"`
}

// FeedConfig sets the channel metadata of the generated feed.
type FeedConfig struct {
	Title       string `mapstructure:"title"`
	Link        string `mapstructure:"link"`
	Description string `mapstructure:"description"`
	AdultRole   string `mapstructure:"adult_role"`
}

// OutputConfig selects where the rendered feed is written.
type OutputConfig struct {
	Backend      string `mapstructure:"backend"`
	Dir          string `mapstructure:"dir"`
	ObjectName   string `mapstructure:"object_name"`
	ModifiedName string `mapstructure:"modified_object_name"`
	Bucket       string `mapstructure:"bucket"`
	Prefix       string `mapstructure:"prefix"`
	CacheControl string `mapstructure:"cache_control"`
}

// PubSubConfig holds metadata for feed-built notifications.
type PubSubConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ScheduleConfig controls periodic rebuilds in serve mode.
type ScheduleConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Cron    string `mapstructure:"cron"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CHAPTERFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("source.base_url", "https://dragonholic.com/novel/")
	v.SetDefault("source.feed_url", modified.DefaultFeedURL)
	v.SetDefault("crawler.workers", MaxWorkers)
	v.SetDefault("crawler.user_agent", "chapterfeed/0.1")
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.requests_per_second", 0)
	v.SetDefault("crawler.burst", 10)
	v.SetDefault("crawler.staleness_window", "168h")
	v.SetDefault("crawler.run_timeout", "0s")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 2000)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.settle_timeout_seconds", 10)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("catalog.backend", CatalogFile)
	v.SetDefault("catalog.path", "catalog.yaml")
	v.SetDefault("feed.title", feed.DefaultTitle)
	v.SetDefault("feed.link", feed.DefaultLink)
	v.SetDefault("feed.description", feed.DefaultDescription)
	v.SetDefault("feed.adult_role", "<@&1304077473998442506>")
	v.SetDefault("output.backend", OutputLocal)
	v.SetDefault("output.dir", ".")
	v.SetDefault("output.object_name", feed.DefaultObjectName)
	v.SetDefault("output.modified_object_name", modified.DefaultObjectName)
	v.SetDefault("output.cache_control", "no-cache, max-age=0")
	v.SetDefault("pubsub.backend", PublisherNone)
	v.SetDefault("schedule.enabled", true)
	v.SetDefault("schedule.cron", "*/30 * * * *")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Workers <= 0 || c.Crawler.Workers > MaxWorkers {
		return fmt.Errorf("crawler.workers must be between 1 and %d", MaxWorkers)
	}
	if c.Crawler.RequestsPerSecond < 0 {
		return fmt.Errorf("crawler.requests_per_second must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Catalog.Backend {
	case CatalogFile, CatalogSQLite:
		if c.Catalog.Path == "" {
			return fmt.Errorf("catalog.path is required for the %s backend", c.Catalog.Backend)
		}
	case CatalogPostgres:
		if c.Catalog.DSN == "" {
			return fmt.Errorf("catalog.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown catalog.backend %q", c.Catalog.Backend)
	}
	switch c.Output.Backend {
	case OutputLocal, OutputMemory:
	case OutputGCS:
		if c.Output.Bucket == "" {
			return fmt.Errorf("output.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown output.backend %q", c.Output.Backend)
	}
	if c.Output.ObjectName == "" {
		return fmt.Errorf("output.object_name is required")
	}
	if c.Output.ModifiedName == c.Output.ObjectName {
		return fmt.Errorf("output.modified_object_name must differ from output.object_name")
	}
	switch c.PubSub.Backend {
	case PublisherNone, PublisherMemory:
	case PublisherPubSub:
		if c.PubSub.ProjectID == "" || c.PubSub.Topic == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic are required for the pubsub backend")
		}
	default:
		return fmt.Errorf("unknown pubsub.backend %q", c.PubSub.Backend)
	}
	return nil
}

// FetchTimeout converts the HTTP timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// BackoffBounds returns the initial and maximum retry delay.
func (c Config) BackoffBounds() (time.Duration, time.Duration) {
	return time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond,
		time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond
}
