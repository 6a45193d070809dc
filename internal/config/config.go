// Package config loads and validates newswatch configuration via Viper.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	DB         DBConfig         `mapstructure:"db"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Analysis   AnalysisConfig   `mapstructure:"analysis"`
	Report     ReportConfig     `mapstructure:"report"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	RetentionDay int    `mapstructure:"retention_days"`
}

// CrawlerConfig governs the per-run fetch fan-out.
type CrawlerConfig struct {
	MaxWorkers       int    `mapstructure:"max_workers"`
	MaxResults       int    `mapstructure:"max_results"`
	UserAgent        string `mapstructure:"user_agent"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	ContentMaxRunes  int    `mapstructure:"content_max_runes"`
	PerDomainDelayMs int    `mapstructure:"per_domain_delay_ms"`
}

// ProvidersConfig toggles and parameterizes each news source.
type ProvidersConfig struct {
	Baidu   EngineProviderConfig `mapstructure:"baidu"`
	Bing    EngineProviderConfig `mapstructure:"bing"`
	Yahoo   EngineProviderConfig `mapstructure:"yahoo"`
	Google  GoogleConfig         `mapstructure:"google"`
	Tavily  TavilyConfig         `mapstructure:"tavily"`
	Toutiao ToutiaoConfig        `mapstructure:"toutiao"`
	Kr36    FeedProviderConfig   `mapstructure:"kr36"`
	Huxiu   FeedProviderConfig   `mapstructure:"huxiu"`
}

// EngineProviderConfig configures a scraped search engine.
type EngineProviderConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// GoogleConfig configures the Custom Search JSON API provider.
type GoogleConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	APIKey         string `mapstructure:"api_key"`
	SearchEngineID string `mapstructure:"search_engine_id"`
}

// TavilyConfig configures the Tavily search API provider.
type TavilyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ToutiaoConfig configures the browser-rendered provider.
type ToutiaoConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// FeedProviderConfig configures an RSS/Atom provider.
type FeedProviderConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	FeedURL string `mapstructure:"feed_url"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	MaxParallel   int    `mapstructure:"max_parallel"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	ChromePath    string `mapstructure:"chrome_path"`
}

// ResilienceConfig configures retry and redirect-resolution behavior.
type ResilienceConfig struct {
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
	MaxRedirectHops  int `mapstructure:"max_redirect_hops"`
}

// ScoringConfig holds the ranking formula parameters.
type ScoringConfig struct {
	QualityWeight   float64 `mapstructure:"quality_weight"`
	FreshnessWeight float64 `mapstructure:"freshness_weight"`
	DecayLambda     float64 `mapstructure:"decay_lambda"`
	Adaptive        bool    `mapstructure:"adaptive"`
}

// SchedulerConfig governs the daily crawl trigger.
type SchedulerConfig struct {
	DefaultTime    string `mapstructure:"default_time"`
	StopTimeoutSec int    `mapstructure:"stop_timeout_seconds"`
}

// LLMConfig points the classifier and ranker at an OpenAI-compatible endpoint.
type LLMConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// AnalysisConfig sizes the async classification pipeline.
type AnalysisConfig struct {
	Workers    int `mapstructure:"workers"`
	QueueDepth int `mapstructure:"queue_depth"`
}

// ReportConfig controls daily report generation.
type ReportConfig struct {
	TargetCount int    `mapstructure:"target_count"`
	OutputDir   string `mapstructure:"output_dir"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NEWSWATCH")
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
	v.SetDefault("logging.development", true)
	v.SetDefault("db.max_open_conns", 8)
	v.SetDefault("db.retention_days", 0)
	v.SetDefault("crawler.max_workers", 8)
	v.SetDefault("crawler.max_results", 20)
	v.SetDefault("crawler.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	v.SetDefault("crawler.timeout_seconds", 20)
	v.SetDefault("crawler.content_max_runes", 500)
	v.SetDefault("crawler.per_domain_delay_ms", 500)
	v.SetDefault("providers.baidu.enabled", true)
	v.SetDefault("providers.bing.enabled", true)
	v.SetDefault("providers.yahoo.enabled", true)
	v.SetDefault("providers.google.enabled", false)
	v.SetDefault("providers.tavily.enabled", false)
	v.SetDefault("providers.toutiao.enabled", false)
	v.SetDefault("providers.kr36.enabled", true)
	v.SetDefault("providers.kr36.feed_url", "https://36kr.com/feed")
	v.SetDefault("providers.huxiu.enabled", true)
	v.SetDefault("providers.huxiu.feed_url", "https://www.huxiu.com/rss/0.xml")
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("resilience.max_retries", 2)
	v.SetDefault("resilience.backoff_initial_ms", 250)
	v.SetDefault("resilience.backoff_max_ms", 2000)
	v.SetDefault("resilience.max_redirect_hops", 5)
	v.SetDefault("scoring.quality_weight", 0.6)
	v.SetDefault("scoring.freshness_weight", 0.4)
	v.SetDefault("scoring.decay_lambda", 0.1)
	v.SetDefault("scoring.adaptive", false)
	v.SetDefault("scheduler.default_time", "08:00")
	v.SetDefault("scheduler.stop_timeout_seconds", 2)
	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.base_url", "https://api.deepseek.com/v1")
	v.SetDefault("llm.model", "deepseek-chat")
	v.SetDefault("analysis.workers", 2)
	v.SetDefault("analysis.queue_depth", 256)
	v.SetDefault("report.target_count", 7)
	v.SetDefault("report.output_dir", "reports")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set")
	}
	if c.Crawler.MaxWorkers <= 0 {
		return fmt.Errorf("crawler.max_workers must be > 0")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Scoring.QualityWeight < 0 || c.Scoring.FreshnessWeight < 0 {
		return fmt.Errorf("scoring weights must be >= 0")
	}
	if c.Scoring.QualityWeight+c.Scoring.FreshnessWeight == 0 {
		return fmt.Errorf("scoring weights must not both be zero")
	}
	if c.Scoring.DecayLambda <= 0 {
		return fmt.Errorf("scoring.decay_lambda must be > 0")
	}
	if _, err := ParseClockTime(c.Scheduler.DefaultTime); err != nil {
		return fmt.Errorf("scheduler.default_time: %w", err)
	}
	if c.Providers.Google.Enabled && (c.Providers.Google.APIKey == "" || c.Providers.Google.SearchEngineID == "") {
		return fmt.Errorf("providers.google requires api_key and search_engine_id when enabled")
	}
	if c.Providers.Tavily.Enabled && c.Providers.Tavily.APIKey == "" {
		return fmt.Errorf("providers.tavily requires api_key when enabled")
	}
	if c.Providers.Toutiao.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when toutiao is enabled")
	}
	if c.LLM.Enabled && c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key must be set when llm is enabled")
	}
	if c.Analysis.Workers <= 0 {
		return fmt.Errorf("analysis.workers must be > 0")
	}
	if c.Report.TargetCount <= 0 {
		return fmt.Errorf("report.target_count must be > 0")
	}
	return nil
}

// FetchBudget converts the crawler timeout into a duration.
func (c Config) FetchBudget() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// StopBudget is how long Stop waits for an in-flight run before giving up.
func (c Config) StopBudget() time.Duration {
	return time.Duration(c.Scheduler.StopTimeoutSec) * time.Second
}

// ParseClockTime validates an "HH:MM" wall-clock string and returns the
// hour and minute components.
func ParseClockTime(s string) (hm [2]int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return hm, fmt.Errorf("time %q is not in HH:MM form", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return hm, fmt.Errorf("time %q is not in HH:MM form", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return hm, fmt.Errorf("time %q is not in HH:MM form", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return hm, fmt.Errorf("time %q is outside the 00:00-23:59 range", s)
	}
	return [2]int{hour, minute}, nil
}
