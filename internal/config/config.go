// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Site      SiteConfig      `mapstructure:"site"`
	Harvest   HarvestConfig   `mapstructure:"harvest"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Dedup     DedupConfig     `mapstructure:"dedup"`
	Render    RenderConfig    `mapstructure:"render"`
	DB        DBConfig        `mapstructure:"db"`
	Storage   StorageConfig   `mapstructure:"storage"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SiteConfig identifies the portal deployment being harvested.
type SiteConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// HarvestConfig governs the scheduler and fetch pipeline.
type HarvestConfig struct {
	Workers          int    `mapstructure:"workers"`
	QueueDepth       int    `mapstructure:"queue_depth"`
	MaxDepth         int    `mapstructure:"max_depth"`
	VisitedCacheSize int    `mapstructure:"visited_cache_size"`
	UserAgent        string `mapstructure:"user_agent"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxBodyBytes     int    `mapstructure:"max_body_bytes"`
	SnapshotPrefix   string `mapstructure:"snapshot_prefix"`
}

// BreakerConfig tunes the per-site circuit breaker.
type BreakerConfig struct {
	FailureThreshold       int `mapstructure:"failure_threshold"`
	RecoveryTimeoutSeconds int `mapstructure:"recovery_timeout_seconds"`
	HalfOpenProbes         int `mapstructure:"half_open_probes"`
}

// RateLimitConfig tunes the windowed request limiter.
type RateLimitConfig struct {
	Ceiling       int `mapstructure:"ceiling"`
	APICeiling    int `mapstructure:"api_ceiling"`
	WindowSeconds int `mapstructure:"window_seconds"`
}

// DedupConfig tunes content-hash deduplication.
type DedupConfig struct {
	TTLHours int `mapstructure:"ttl_hours"`
}

// RenderConfig configures the headless rendering subsystem.
type RenderConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	MaxParallel   int     `mapstructure:"max_parallel"`
	NavTimeoutSec int     `mapstructure:"nav_timeout_seconds"`
	DomainQPS     float64 `mapstructure:"domain_qps"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN                string `mapstructure:"dsn"`
	RecordsTable       string `mapstructure:"records_table"`
	RelationshipsTable string `mapstructure:"relationships_table"`
	MaxConns           int32  `mapstructure:"max_conns"`
	MinConns           int32  `mapstructure:"min_conns"`
}

// StorageConfig selects and configures the snapshot blob store.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	BaseDir   string `mapstructure:"base_dir"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
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
	v.SetDefault("site.base_url", "https://conocer.gob.mx")
	v.SetDefault("harvest.workers", 8)
	v.SetDefault("harvest.queue_depth", 4096)
	v.SetDefault("harvest.max_depth", 6)
	v.SetDefault("harvest.visited_cache_size", 65536)
	v.SetDefault("harvest.user_agent", "renec-harvester/0.1")
	v.SetDefault("harvest.timeout_seconds", 20)
	v.SetDefault("harvest.max_body_bytes", 4<<20)
	v.SetDefault("harvest.snapshot_prefix", "sitemaps")
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.recovery_timeout_seconds", 60)
	v.SetDefault("breaker.half_open_probes", 1)
	v.SetDefault("ratelimit.ceiling", 30)
	v.SetDefault("ratelimit.api_ceiling", 120)
	v.SetDefault("ratelimit.window_seconds", 60)
	v.SetDefault("dedup.ttl_hours", 24)
	v.SetDefault("render.enabled", false)
	v.SetDefault("render.max_parallel", 2)
	v.SetDefault("render.nav_timeout_seconds", 25)
	v.SetDefault("render.domain_qps", 1.0)
	v.SetDefault("db.records_table", "registry_entities")
	v.SetDefault("db.relationships_table", "registry_relationships")
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.topic", "harvest-events")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	u, err := url.Parse(c.Site.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("site.base_url must be an absolute URL")
	}
	if c.Harvest.Workers <= 0 {
		return fmt.Errorf("harvest.workers must be > 0")
	}
	if c.Harvest.TimeoutSeconds <= 0 {
		return fmt.Errorf("harvest.timeout_seconds must be > 0")
	}
	if c.RateLimit.Ceiling <= 0 || c.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("ratelimit.ceiling and ratelimit.window_seconds must be > 0")
	}
	if c.Render.Enabled && c.Render.MaxParallel <= 0 {
		return fmt.Errorf("render.max_parallel must be > 0 when rendering is enabled")
	}
	switch c.Storage.Provider {
	case "memory":
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set for the local provider")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs provider")
		}
	default:
		return fmt.Errorf("storage.provider must be one of memory, local, gcs")
	}
	if c.PubSub.Enabled && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub is enabled")
	}
	return nil
}

// FetchTimeout converts the configured timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Harvest.TimeoutSeconds) * time.Second
}

// RecoveryTimeout converts the breaker recovery window into a duration.
func (c Config) RecoveryTimeout() time.Duration {
	return time.Duration(c.Breaker.RecoveryTimeoutSeconds) * time.Second
}

// RateWindow converts the limiter window into a duration.
func (c Config) RateWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSeconds) * time.Second
}

// RenderTimeout converts the navigation timeout into a duration.
func (c Config) RenderTimeout() time.Duration {
	return time.Duration(c.Render.NavTimeoutSec) * time.Second
}

// DedupTTL converts the dedup retention into a duration.
func (c Config) DedupTTL() time.Duration {
	return time.Duration(c.Dedup.TTLHours) * time.Hour
}
