// Package config loads application configuration from file and
// environment and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Auth       AuthConfig       `yaml:"auth" mapstructure:"auth"`
	Scrape     ScrapeConfig     `yaml:"scrape" mapstructure:"scrape"`
	Enrichment EnrichmentConfig `yaml:"enrichment" mapstructure:"enrichment"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AuthConfig configures API key auth and rate limiting.
type AuthConfig struct {
	APIKeys            string `yaml:"api_keys" mapstructure:"api_keys"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
}

// APIKeyList splits the comma-separated key string into its entries.
func (a AuthConfig) APIKeyList() []string {
	var keys []string
	for _, k := range strings.Split(a.APIKeys, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// ScrapeConfig configures the ingestion fetcher.
type ScrapeConfig struct {
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxHTMLBytes     int64   `yaml:"max_html_bytes" mapstructure:"max_html_bytes"`
	Allowlist        string  `yaml:"allowlist" mapstructure:"allowlist"`
	UserAgent        string  `yaml:"user_agent" mapstructure:"user_agent"`
	PerHostRate      float64 `yaml:"per_host_rate" mapstructure:"per_host_rate"`
	PerHostBurst     int     `yaml:"per_host_burst" mapstructure:"per_host_burst"`
	MaxFetchAttempts int     `yaml:"max_fetch_attempts" mapstructure:"max_fetch_attempts"`
}

// AllowedDomains splits the comma-separated allowlist into hostnames.
func (s ScrapeConfig) AllowedDomains() []string {
	var domains []string
	for _, d := range strings.Split(s.Allowlist, ",") {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			domains = append(domains, d)
		}
	}
	return domains
}

// EnrichmentConfig configures optional LLM enrichment of parsed vendors.
type EnrichmentConfig struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`
	AnthropicKey string `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	Model        string `yaml:"model" mapstructure:"model"`
	MaxInputLen  int    `yaml:"max_input_len" mapstructure:"max_input_len"`
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
	v.SetEnvPrefix("MANUID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bare env names documented for deployments, in addition to the
	// MANUID_* forms produced by AutomaticEnv.
	for key, env := range map[string]string{
		"server.host":        "API_HOST",
		"server.port":        "API_PORT",
		"store.database_url": "DATABASE_URL",
		"auth.api_keys":      "API_KEYS",
		"scrape.allowlist":   "SCRAPE_ALLOWLIST",
		"enrichment.enabled": "ENABLE_ENRICHMENT",
	} {
		if err := v.BindEnv(key, "MANUID_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8000)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "manuid.db")
	v.SetDefault("auth.api_keys", "dev-key-change-me")
	v.SetDefault("auth.rate_limit_per_minute", 60)
	v.SetDefault("scrape.timeout_secs", 20)
	v.SetDefault("scrape.max_html_bytes", 1_500_000)
	v.SetDefault("scrape.user_agent", "ManuIDBot/1.0 (+procurement-intelligence)")
	v.SetDefault("scrape.per_host_rate", 1.0)
	v.SetDefault("scrape.per_host_burst", 2)
	v.SetDefault("scrape.max_fetch_attempts", 3)
	v.SetDefault("enrichment.model", "claude-haiku-4-5-20251001")
	v.SetDefault("enrichment.max_input_len", 4000)
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
