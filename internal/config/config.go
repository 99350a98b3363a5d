package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Email      EmailConfig      `yaml:"email" mapstructure:"email"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CacheConfig selects where completed results are cached.
type CacheConfig struct {
	Driver   string      `yaml:"driver" mapstructure:"driver"`
	TTLHours int         `yaml:"ttl_hours" mapstructure:"ttl_hours"`
	Redis    RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// JinaConfig holds Jina AI credentials.
type JinaConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string  `yaml:"search_base_url" mapstructure:"search_base_url"`
	SearchRPS     float64 `yaml:"search_rps" mapstructure:"search_rps"`
}

// FirecrawlConfig holds Firecrawl credentials.
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic credentials and model selection.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// EmailConfig configures outreach notifications through Resend.
type EmailConfig struct {
	ResendKey       string   `yaml:"resend_key" mapstructure:"resend_key"`
	BaseURL         string   `yaml:"base_url" mapstructure:"base_url"`
	From            string   `yaml:"from" mapstructure:"from"`
	To              []string `yaml:"to" mapstructure:"to"`
	ReplyTo         string   `yaml:"reply_to" mapstructure:"reply_to"`
	NotifyOnPersist bool     `yaml:"notify_on_persist" mapstructure:"notify_on_persist"`
}

// PipelineConfig configures the discovery pipeline.
type PipelineConfig struct {
	ExchangeRate       float64 `yaml:"exchange_rate" mapstructure:"exchange_rate"`
	PriceThresholdEUR  float64 `yaml:"price_threshold_eur" mapstructure:"price_threshold_eur"`
	MaxStores          int     `yaml:"max_stores" mapstructure:"max_stores"`
	MaxQueries         int     `yaml:"max_queries" mapstructure:"max_queries"`
	MaxCandidates      int     `yaml:"max_candidates" mapstructure:"max_candidates"`
	ExtractConcurrency int     `yaml:"extract_concurrency" mapstructure:"extract_concurrency"`
	DiscoveryGate      bool    `yaml:"discovery_gate" mapstructure:"discovery_gate"`
	PersistenceGate    bool    `yaml:"persistence_gate" mapstructure:"persistence_gate"`
	StreamBuffer       int     `yaml:"stream_buffer" mapstructure:"stream_buffer"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures the background checker.
type MonitoringConfig struct {
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	ThreadTTLHours       int     `yaml:"thread_ttl_hours" mapstructure:"thread_ttl_hours"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and the environment, in
// increasing order of precedence.
func Load() (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BRANDS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "brands.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("cache.driver", "store")
	v.SetDefault("cache.ttl_hours", 0)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("jina.key", "")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("jina.search_rps", 2.0)
	v.SetDefault("firecrawl.key", "")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v1")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("email.resend_key", "")
	v.SetDefault("email.base_url", "https://api.resend.com")
	v.SetDefault("email.from", "Brands AI <onboarding@resend.dev>")
	v.SetDefault("email.to", []string{})
	v.SetDefault("email.reply_to", "")
	v.SetDefault("email.notify_on_persist", false)
	v.SetDefault("pipeline.exchange_rate", 1.08)
	v.SetDefault("pipeline.price_threshold_eur", 500.0)
	v.SetDefault("pipeline.max_stores", 20)
	v.SetDefault("pipeline.max_queries", 3)
	v.SetDefault("pipeline.max_candidates", 20)
	v.SetDefault("pipeline.extract_concurrency", 3)
	v.SetDefault("pipeline.discovery_gate", true)
	v.SetDefault("pipeline.persistence_gate", true)
	v.SetDefault("pipeline.stream_buffer", 16)
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.thread_ttl_hours", 72)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs before it starts. mode is
// one of "serve", "search" or "store"; every problem found is reported.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of sqlite, postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "store":
	case "serve", "search":
		switch c.Cache.Driver {
		case "store", "redis":
		default:
			errs = append(errs, fmt.Sprintf("cache.driver %q is not one of store, redis", c.Cache.Driver))
		}
		if c.Cache.Driver == "redis" && c.Cache.Redis.Addr == "" {
			errs = append(errs, "cache.redis.addr is required for the redis cache")
		}
		if c.Pipeline.ExchangeRate <= 0 {
			errs = append(errs, "pipeline.exchange_rate must be > 0")
		}
		if c.Pipeline.PriceThresholdEUR < 0 {
			errs = append(errs, "pipeline.price_threshold_eur must be >= 0")
		}
		if c.Pipeline.ExtractConcurrency < 1 || c.Pipeline.ExtractConcurrency > 20 {
			errs = append(errs, "pipeline.extract_concurrency must be between 1 and 20")
		}
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
