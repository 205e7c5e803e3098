package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration. A single *Config is
// constructed at process start and passed into each component; no package
// carries its own mutable settings.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Exa       ExaConfig       `yaml:"exa" mapstructure:"exa"`
	AutoDev   AutoDevConfig   `yaml:"autodev" mapstructure:"autodev"`
	NHTSA     NHTSAConfig     `yaml:"nhtsa" mapstructure:"nhtsa"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Market    MarketConfig    `yaml:"market" mapstructure:"market"`
	Research  ResearchConfig  `yaml:"research" mapstructure:"research"`
	Sections  SectionsConfig  `yaml:"sections" mapstructure:"sections"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`

	// DefaultZip anchors market searches when the listing has no location.
	DefaultZip string `yaml:"default_zip" mapstructure:"default_zip"`
}

// StoreConfig configures the trace store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ExaConfig holds content-retrieval and web-search API settings.
type ExaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxImageLinks int    `yaml:"max_image_links" mapstructure:"max_image_links"`
}

// AutoDevConfig holds market-listing provider settings.
type AutoDevConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// NHTSAConfig holds vehicle-safety database settings.
type NHTSAConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	VPICBaseURL string  `yaml:"vpic_base_url" mapstructure:"vpic_base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// AnthropicConfig holds generation service settings.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// MarketConfig configures the market position engine.
type MarketConfig struct {
	RadiusMiles    int `yaml:"radius_miles" mapstructure:"radius_miles"`
	PageSize       int `yaml:"page_size" mapstructure:"page_size"`
	MileageWindow  int `yaml:"mileage_window" mapstructure:"mileage_window"`
	MinBucketWidth int `yaml:"min_bucket_width" mapstructure:"min_bucket_width"`
	MaxBuckets     int `yaml:"max_buckets" mapstructure:"max_buckets"`
}

// ResearchConfig configures the research fan-out.
type ResearchConfig struct {
	QueriesPerTopic  int `yaml:"queries_per_topic" mapstructure:"queries_per_topic"`
	ResultsPerQuery  int `yaml:"results_per_query" mapstructure:"results_per_query"`
	MaxItemsPerTopic int `yaml:"max_items_per_topic" mapstructure:"max_items_per_topic"`
	SnippetMaxChars  int `yaml:"snippet_max_chars" mapstructure:"snippet_max_chars"`
	TimeoutSecs      int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// SectionsConfig configures section generation.
type SectionsConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`

	// BudgetSchedule is the per-attempt max output token budget; its length
	// bounds the retry count. Attempt N uses BudgetSchedule[N].
	BudgetSchedule []int64 `yaml:"budget_schedule" mapstructure:"budget_schedule"`

	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CARBUDDY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "carbuddy.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("default_zip", "48309")
	v.SetDefault("exa.base_url", "https://api.exa.ai")
	v.SetDefault("exa.timeout_secs", 15)
	v.SetDefault("exa.max_image_links", 5)
	v.SetDefault("autodev.base_url", "https://auto.dev/api")
	v.SetDefault("autodev.timeout_secs", 10)
	v.SetDefault("autodev.rate_per_sec", 5)
	v.SetDefault("nhtsa.base_url", "https://api.nhtsa.gov")
	v.SetDefault("nhtsa.vpic_base_url", "https://vpic.nhtsa.dot.gov/api")
	v.SetDefault("nhtsa.timeout_secs", 10)
	v.SetDefault("nhtsa.rate_per_sec", 5)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.temperature", 0.3)
	v.SetDefault("market.radius_miles", 100)
	v.SetDefault("market.page_size", 50)
	v.SetDefault("market.mileage_window", 15000)
	v.SetDefault("market.min_bucket_width", 500)
	v.SetDefault("market.max_buckets", 15)
	v.SetDefault("research.queries_per_topic", 2)
	v.SetDefault("research.results_per_query", 3)
	v.SetDefault("research.max_items_per_topic", 4)
	v.SetDefault("research.snippet_max_chars", 1200)
	v.SetDefault("research.timeout_secs", 15)
	v.SetDefault("sections.max_concurrent", 5)
	v.SetDefault("sections.budget_schedule", []int64{1024, 2048})
	v.SetDefault("sections.timeout_secs", 45)

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
