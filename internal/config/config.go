// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	DataDir   string          `mapstructure:"data_dir"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Local     LocalConfig     `mapstructure:"local"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Heat      HeatConfig      `mapstructure:"heat"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// RemoteConfig locates the hour-bucketed snapshot resource.
type RemoteConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// LocalConfig governs the live-ranking fallback scraper.
type LocalConfig struct {
	APIURL         string `mapstructure:"api_url"`
	SummaryURL     string `mapstructure:"summary_url"`
	DetailURL      string `mapstructure:"detail_url"`
	Limit          int    `mapstructure:"limit"`
	EnrichDetails  bool   `mapstructure:"enrich_details"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
}

// CrawlConfig governs the post search engine.
type CrawlConfig struct {
	BaseURL          string  `mapstructure:"base_url"`
	DetailSearchURL  string  `mapstructure:"detail_search_url"`
	UserAgent        string  `mapstructure:"user_agent"`
	TopN             int     `mapstructure:"top_n"`
	MaxPages         int     `mapstructure:"max_pages"`
	MinScore         float64 `mapstructure:"min_score"`
	MaxRetries       int     `mapstructure:"max_retries"`
	BackoffInitialMs int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int     `mapstructure:"backoff_max_ms"`
	PageDelayMinMs   int     `mapstructure:"page_delay_min_ms"`
	PageDelayMaxMs   int     `mapstructure:"page_delay_max_ms"`
	RequestsPerSec   float64 `mapstructure:"requests_per_sec"`
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	LikeWeight       float64 `mapstructure:"like_weight"`
	CommentWeight    float64 `mapstructure:"comment_weight"`
	RepostWeight     float64 `mapstructure:"repost_weight"`
}

// SchedulerConfig governs the hourly backfill loop. EscalationMinutes
// must stay above the remote source's typical publish latency or the
// local fallback fires for hours that are merely still in flight.
type SchedulerConfig struct {
	LookbackDays           int `mapstructure:"lookback_days"`
	PollIntervalSeconds    int `mapstructure:"poll_interval_seconds"`
	CatchupIntervalSeconds int `mapstructure:"catchup_interval_seconds"`
	EscalationMinutes      int `mapstructure:"escalation_minutes"`
	MaxTopicsPerRun        int `mapstructure:"max_topics_per_run"`
	HourlyPostLimit        int `mapstructure:"hourly_post_limit"`
	HourlyCacheTTLSeconds  int `mapstructure:"hourly_cache_ttl_seconds"`
}

// HeatConfig bounds the rolling daily heat summary.
type HeatConfig struct {
	MaxDays int `mapstructure:"max_days"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HOTARCHIVE")
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
	v.SetDefault("data_dir", "data")
	v.SetDefault("logging.development", true)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9190")

	v.SetDefault("remote.base_url",
		"https://raw.githubusercontent.com/lxw15337674/weibo-trending-hot-history/refs/heads/master/api")
	v.SetDefault("remote.timeout_seconds", 10)

	v.SetDefault("local.api_url", "https://weibo.com/ajax/side/hotSearch")
	v.SetDefault("local.summary_url", "https://s.weibo.com/top/summary")
	v.SetDefault("local.detail_url", "https://m.s.weibo.com/topic/detail?q=%s")
	v.SetDefault("local.limit", 50)
	v.SetDefault("local.enrich_details", true)
	v.SetDefault("local.timeout_seconds", 10)
	v.SetDefault("local.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	v.SetDefault("crawl.base_url", "https://m.weibo.cn/api/container/getIndex")
	v.SetDefault("crawl.detail_search_url", "https://s.weibo.com/weibo?q=%s")
	v.SetDefault("crawl.user_agent",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1")
	v.SetDefault("crawl.top_n", 30)
	v.SetDefault("crawl.max_pages", 5)
	v.SetDefault("crawl.min_score", 0.0)
	v.SetDefault("crawl.max_retries", 3)
	v.SetDefault("crawl.backoff_initial_ms", 1000)
	v.SetDefault("crawl.backoff_max_ms", 8000)
	v.SetDefault("crawl.page_delay_min_ms", 600)
	v.SetDefault("crawl.page_delay_max_ms", 1200)
	v.SetDefault("crawl.requests_per_sec", 2.0)
	v.SetDefault("crawl.timeout_seconds", 10)
	v.SetDefault("crawl.like_weight", 0.6)
	v.SetDefault("crawl.comment_weight", 0.3)
	v.SetDefault("crawl.repost_weight", 0.1)

	v.SetDefault("scheduler.lookback_days", 1)
	v.SetDefault("scheduler.poll_interval_seconds", 600)
	v.SetDefault("scheduler.catchup_interval_seconds", 60)
	v.SetDefault("scheduler.escalation_minutes", 45)
	v.SetDefault("scheduler.max_topics_per_run", 10)
	v.SetDefault("scheduler.hourly_post_limit", 20)
	v.SetDefault("scheduler.hourly_cache_ttl_seconds", 3600)

	v.SetDefault("heat.max_days", 120)
}

// Validate enforces required values and the relative ordering the
// escalation and polling logic depends on.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must be set")
	}
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url must be set")
	}
	if c.Crawl.TopN <= 0 {
		return fmt.Errorf("crawl.top_n must be > 0")
	}
	if c.Crawl.MaxPages <= 0 {
		return fmt.Errorf("crawl.max_pages must be > 0")
	}
	if c.Crawl.MaxRetries <= 0 {
		return fmt.Errorf("crawl.max_retries must be > 0")
	}
	if c.Crawl.BackoffInitialMs > c.Crawl.BackoffMaxMs {
		return fmt.Errorf("crawl.backoff_initial_ms must not exceed crawl.backoff_max_ms")
	}
	if c.Scheduler.LookbackDays < 0 {
		return fmt.Errorf("scheduler.lookback_days must be >= 0")
	}
	if c.Scheduler.EscalationMinutes <= 0 {
		return fmt.Errorf("scheduler.escalation_minutes must be > 0")
	}
	if c.Scheduler.CatchupIntervalSeconds > c.Scheduler.PollIntervalSeconds {
		return fmt.Errorf("scheduler.catchup_interval_seconds must not exceed poll_interval_seconds")
	}
	if c.Heat.MaxDays <= 0 {
		return fmt.Errorf("heat.max_days must be > 0")
	}
	return nil
}

// RemoteTimeout converts the remote timeout knob into a duration.
func (c Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSeconds) * time.Second
}

// PollInterval is the steady-state sleep between scheduler cycles.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Scheduler.PollIntervalSeconds) * time.Second
}

// CatchupInterval is the short sleep used while slots are being drained.
func (c Config) CatchupInterval() time.Duration {
	return time.Duration(c.Scheduler.CatchupIntervalSeconds) * time.Second
}

// EscalationThreshold is the staleness gate before the local fallback fires.
func (c Config) EscalationThreshold() time.Duration {
	return time.Duration(c.Scheduler.EscalationMinutes) * time.Minute
}

// HourlyCacheTTL bounds reuse of per-hour post cache files.
func (c Config) HourlyCacheTTL() time.Duration {
	return time.Duration(c.Scheduler.HourlyCacheTTLSeconds) * time.Second
}
