package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/coinlens/coinlens/internal/alerts"
	"github.com/coinlens/coinlens/internal/rebalance"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	API        APIConfig        `mapstructure:"api"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Market     MarketConfig     `mapstructure:"market"`
	Analysis   AnalysisConfig   `mapstructure:"analysis"`
	Narrative  NarrativeConfig  `mapstructure:"narrative"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
}

// APIConfig contains REST API settings.
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// RedisConfig contains Redis settings for the market data cache. Redis is
// optional; without it the in-process cache is used.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MarketConfig contains market data provider settings.
type MarketConfig struct {
	Provider          string        `mapstructure:"provider"` // "coingecko" or "fixture"
	CoinGeckoURL      string        `mapstructure:"coingecko_url"`
	APIKey            string        `mapstructure:"api_key"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

// AnalysisConfig contains the defaults applied to analysis requests.
type AnalysisConfig struct {
	WindowDays  int                   `mapstructure:"window_days"`
	Benchmark   string                `mapstructure:"benchmark"`
	Parallelism int                   `mapstructure:"parallelism"`
	PlansDir    string                `mapstructure:"plans_dir"`
	Policy      alerts.Policy         `mapstructure:"policy"`
	Constraints rebalance.Constraints `mapstructure:"constraints"`
}

// NarrativeConfig contains LLM narrative settings.
type NarrativeConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Endpoint    string        `mapstructure:"endpoint"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// AlertingConfig contains alert delivery settings.
type AlertingConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig contains Telegram alert channel settings.
type TelegramConfig struct {
	Enabled  bool    `mapstructure:"enabled"`
	BotToken string  `mapstructure:"bot_token"`
	ChatIDs  []int64 `mapstructure:"chat_ids"`
}

// MonitoringConfig contains monitoring settings.
type MonitoringConfig struct {
	EnableMetrics bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("COINLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults and environment apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "coinlens")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8090)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// Market data defaults
	v.SetDefault("market.provider", "coingecko")
	v.SetDefault("market.coingecko_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("market.cache_ttl", "60s")
	v.SetDefault("market.requests_per_minute", 30)

	// Analysis defaults
	v.SetDefault("analysis.window_days", 90)
	v.SetDefault("analysis.benchmark", "BTC")
	v.SetDefault("analysis.parallelism", 4)
	v.SetDefault("analysis.plans_dir", "./configs/plans")
	v.SetDefault("analysis.policy.max_weight", 0.35)
	v.SetDefault("analysis.policy.min_stable_pct", 0.10)
	v.SetDefault("analysis.policy.max_vol_pct", 80.0)
	v.SetDefault("analysis.policy.max_drawdown_day_pct", 25.0)
	v.SetDefault("analysis.constraints.min_trade_usd", 50.0)
	v.SetDefault("analysis.constraints.max_turnover_pct", 25.0)

	// Narrative defaults
	v.SetDefault("narrative.enabled", false)
	v.SetDefault("narrative.endpoint", "http://localhost:8080/v1/chat/completions")
	v.SetDefault("narrative.model", "gpt-4o-mini")
	v.SetDefault("narrative.temperature", 0.4)
	v.SetDefault("narrative.max_tokens", 600)
	v.SetDefault("narrative.timeout", "30s")

	// Alerting defaults
	v.SetDefault("alerting.telegram.enabled", false)

	// Monitoring defaults
	v.SetDefault("monitoring.enable_metrics", true)
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	switch c.Market.Provider {
	case "coingecko", "fixture":
	default:
		return fmt.Errorf("unknown market provider %q", c.Market.Provider)
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("invalid api port %d", c.API.Port)
	}
	if c.Analysis.WindowDays < 2 {
		return fmt.Errorf("analysis window must be at least 2 days, got %d", c.Analysis.WindowDays)
	}
	if c.Analysis.Parallelism < 1 {
		return fmt.Errorf("analysis parallelism must be at least 1, got %d", c.Analysis.Parallelism)
	}
	if c.Analysis.Policy.MaxWeight <= 0 || c.Analysis.Policy.MaxWeight > 1 {
		return fmt.Errorf("policy max_weight must be in (0,1], got %f", c.Analysis.Policy.MaxWeight)
	}
	if c.Alerting.Telegram.Enabled && c.Alerting.Telegram.BotToken == "" {
		return fmt.Errorf("telegram alerting enabled without a bot token")
	}
	return nil
}
