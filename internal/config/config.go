// Package config loads violation-cli settings from config.yaml and
// VIOLATIONS_* environment variables, and initializes the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Artifacts ArtifactsConfig `yaml:"artifacts" mapstructure:"artifacts"`
	OpenData  OpenDataConfig  `yaml:"opendata" mapstructure:"opendata"`
	Captcha   CaptchaConfig   `yaml:"captcha" mapstructure:"captcha"`
	Browser   BrowserConfig   `yaml:"browser" mapstructure:"browser"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Circuit   CircuitConfig   `yaml:"circuit" mapstructure:"circuit"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures the record store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ArtifactsConfig bounds summons artifact downloads.
type ArtifactsConfig struct {
	Dir           string `yaml:"dir" mapstructure:"dir"`
	MaxPerRequest int    `yaml:"max_per_request" mapstructure:"max_per_request"`
	Concurrency   int    `yaml:"concurrency" mapstructure:"concurrency"`
	MaxBytes      int64  `yaml:"max_bytes" mapstructure:"max_bytes"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// OpenDataConfig holds the Socrata dataset settings.
type OpenDataConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Dataset     string `yaml:"dataset" mapstructure:"dataset"`
	AppToken    string `yaml:"app_token" mapstructure:"app_token"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// CaptchaConfig holds solving-service settings.
type CaptchaConfig struct {
	Key              string `yaml:"key" mapstructure:"key"`
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	PollIntervalSecs int    `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	JSONMode         bool   `yaml:"json_mode" mapstructure:"json_mode"`
}

// BrowserConfig configures the headless browser path.
type BrowserConfig struct {
	Enabled        bool     `yaml:"enabled" mapstructure:"enabled"`
	Headless       bool     `yaml:"headless" mapstructure:"headless"`
	ExecutablePath string   `yaml:"executable_path" mapstructure:"executable_path"`
	Proxies        []string `yaml:"proxies" mapstructure:"proxies"`
	Profile        string   `yaml:"profile" mapstructure:"profile"`
	TimeoutSecs    int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout bounds one browser session, from launch to the settled result page.
func (c BrowserConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// CacheConfig configures the Redis cache for structured lookups.
type CacheConfig struct {
	RedisAddr  string `yaml:"redis_addr" mapstructure:"redis_addr"`
	TTLMinutes int    `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
}

// RetryConfig configures retries of structured lookups and downloads.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// CircuitConfig configures per-upstream circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ServerConfig configures the health and metrics server.
type ServerConfig struct {
	Port              int `yaml:"port" mapstructure:"port"`
	HealthIntervalSec int `yaml:"health_interval_secs" mapstructure:"health_interval_secs"`
}

// CaptchaTimeout returns the solve deadline.
func (c CaptchaConfig) CaptchaTimeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// CacheTTL returns the structured cache entry lifetime.
func (c CacheConfig) CacheTTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("VIOLATIONS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "violations.db")
	v.SetDefault("artifacts.dir", "./artifacts")
	v.SetDefault("artifacts.max_per_request", 10)
	v.SetDefault("artifacts.concurrency", 3)
	v.SetDefault("artifacts.max_bytes", 20<<20)
	v.SetDefault("artifacts.timeout_secs", 60)
	v.SetDefault("opendata.base_url", "https://data.cityofnewyork.us")
	v.SetDefault("opendata.dataset", "nc67-uf89")
	v.SetDefault("opendata.app_token", "")
	v.SetDefault("opendata.timeout_secs", 30)
	v.SetDefault("captcha.key", "")
	v.SetDefault("captcha.base_url", "http://2captcha.com")
	v.SetDefault("captcha.poll_interval_secs", 5)
	v.SetDefault("captcha.timeout_secs", 300)
	v.SetDefault("captcha.json_mode", true)
	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.executable_path", "")
	v.SetDefault("browser.proxies", []string{})
	v.SetDefault("browser.profile", "")
	v.SetDefault("browser.timeout_secs", 600)
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.ttl_minutes", 60)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.health_interval_secs", 300)

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

// Validate checks the settings a command mode needs: "lookup", "serve",
// "captcha" or "history".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "lookup":
		if c.Artifacts.MaxPerRequest < 0 {
			errs = append(errs, "artifacts.max_per_request must be >= 0")
		}
		if c.Artifacts.Concurrency < 1 || c.Artifacts.Concurrency > 20 {
			errs = append(errs, "artifacts.concurrency must be between 1 and 20")
		}
		if c.OpenData.BaseURL == "" {
			errs = append(errs, "opendata.base_url is required")
		}
		if c.Captcha.TimeoutSecs <= 0 {
			errs = append(errs, "captcha.timeout_secs must be > 0")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	case "captcha":
		if c.Captcha.Key == "" {
			errs = append(errs, "captcha.key is required")
		}
	case "history":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode != "captcha" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
