package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Source    SourceConfig    `mapstructure:"source"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Portfolio PortfolioConfig `mapstructure:"portfolio"`
	Notify    NotifyConfig    `mapstructure:"notify"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CacheConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	OverviewTTL time.Duration `mapstructure:"overview_ttl"`
	RankingTTL  time.Duration `mapstructure:"ranking_ttl"`
	HistoryTTL  time.Duration `mapstructure:"history_ttl"`
}

type SourceConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Currency    string        `mapstructure:"currency"`
	Country     string        `mapstructure:"country"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Concurrency int           `mapstructure:"concurrency"`
	RetryCount  int           `mapstructure:"retry_count"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

type SchedulerConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	IngestPeriodMin  int  `mapstructure:"ingest_period_min"`
	AlertPeriodMin   int  `mapstructure:"alert_period_min"`
	RetentionDays    int  `mapstructure:"retention_days"`
	DailySummaryHour int  `mapstructure:"daily_summary_hour"`
}

type AnalyticsConfig struct {
	SentimentMargin      int           `mapstructure:"sentiment_margin"`
	SentimentWindowHours int           `mapstructure:"sentiment_window_hours"`
	TrendEpsilonPct      float64       `mapstructure:"trend_epsilon_pct"`
	CorrelationMaxGap    time.Duration `mapstructure:"correlation_max_gap"`
}

type AlertsConfig struct {
	LowPct      float64 `mapstructure:"low_pct"`
	MediumPct   float64 `mapstructure:"medium_pct"`
	HighPct     float64 `mapstructure:"high_pct"`
	WindowHours int     `mapstructure:"window_hours"`
}

type PortfolioConfig struct {
	// StaleAfter marks a valuation figure stale when the freshest usable
	// price is older than this.
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

type NotifyConfig struct {
	QueueSize int `mapstructure:"queue_size"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("IW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.overview_ttl", "5m")
	v.SetDefault("cache.ranking_ttl", "10m")
	v.SetDefault("cache.history_ttl", "30m")
	v.SetDefault("source.base_url", "https://steamcommunity.com/market/priceoverview/")
	v.SetDefault("source.currency", "5")
	v.SetDefault("source.country", "RU")
	v.SetDefault("source.timeout", "30s")
	v.SetDefault("source.concurrency", 5)
	v.SetDefault("source.retry_count", 3)
	v.SetDefault("source.retry_delay", "1200ms")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.ingest_period_min", 5)
	v.SetDefault("scheduler.alert_period_min", 30)
	v.SetDefault("scheduler.retention_days", 90)
	v.SetDefault("scheduler.daily_summary_hour", 0)
	v.SetDefault("analytics.sentiment_margin", 1)
	v.SetDefault("analytics.sentiment_window_hours", 24)
	v.SetDefault("analytics.trend_epsilon_pct", 0.1)
	v.SetDefault("analytics.correlation_max_gap", "12h")
	v.SetDefault("alerts.low_pct", 2.0)
	v.SetDefault("alerts.medium_pct", 5.0)
	v.SetDefault("alerts.high_pct", 10.0)
	v.SetDefault("alerts.window_hours", 24)
	v.SetDefault("portfolio.stale_after", "30m")
	v.SetDefault("notify.queue_size", 256)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate runs once at startup; components receive the config by value and
// trust it afterwards.
func (c Config) Validate() error {
	if c.Source.Concurrency <= 0 {
		return fmt.Errorf("source.concurrency must be positive, got %d", c.Source.Concurrency)
	}
	if c.Source.RetryCount <= 0 {
		return fmt.Errorf("source.retry_count must be positive, got %d", c.Source.RetryCount)
	}
	if c.Scheduler.IngestPeriodMin <= 0 {
		return fmt.Errorf("scheduler.ingest_period_min must be positive, got %d", c.Scheduler.IngestPeriodMin)
	}
	if c.Scheduler.AlertPeriodMin <= 0 {
		return fmt.Errorf("scheduler.alert_period_min must be positive, got %d", c.Scheduler.AlertPeriodMin)
	}
	if !(c.Alerts.LowPct > 0 && c.Alerts.LowPct < c.Alerts.MediumPct && c.Alerts.MediumPct < c.Alerts.HighPct) {
		return fmt.Errorf("alert thresholds must be ordered 0 < low < medium < high, got %.2f/%.2f/%.2f",
			c.Alerts.LowPct, c.Alerts.MediumPct, c.Alerts.HighPct)
	}
	if c.Alerts.WindowHours <= 0 {
		return fmt.Errorf("alerts.window_hours must be positive, got %d", c.Alerts.WindowHours)
	}
	if c.Analytics.SentimentWindowHours <= 0 {
		return fmt.Errorf("analytics.sentiment_window_hours must be positive, got %d", c.Analytics.SentimentWindowHours)
	}
	return nil
}
