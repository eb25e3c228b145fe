package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "violations.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "./artifacts", cfg.Artifacts.Dir)
	assert.Equal(t, 10, cfg.Artifacts.MaxPerRequest)
	assert.Equal(t, 3, cfg.Artifacts.Concurrency)
	assert.Equal(t, "https://data.cityofnewyork.us", cfg.OpenData.BaseURL)
	assert.Equal(t, "nc67-uf89", cfg.OpenData.Dataset)
	assert.Equal(t, "http://2captcha.com", cfg.Captcha.BaseURL)
	assert.Equal(t, 5, cfg.Captcha.PollIntervalSecs)
	assert.Equal(t, 5*time.Minute, cfg.Captcha.CaptchaTimeout())
	assert.True(t, cfg.Captcha.JSONMode)
	assert.True(t, cfg.Browser.Enabled)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 10*time.Minute, cfg.Browser.Timeout())
	assert.Empty(t, cfg.Cache.RedisAddr)
	assert.Equal(t, time.Hour, cfg.Cache.CacheTTL())
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500, cfg.Retry.InitialBackoffMs)
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/violations
log:
  level: debug
  format: console
browser:
  enabled: false
  timeout_secs: 90
  proxies:
    - http://proxy-a:8080
    - http://proxy-b:8080
artifacts:
  concurrency: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.False(t, cfg.Browser.Enabled)
	assert.Equal(t, 90*time.Second, cfg.Browser.Timeout())
	assert.Equal(t, []string{"http://proxy-a:8080", "http://proxy-b:8080"}, cfg.Browser.Proxies)
	assert.Equal(t, 5, cfg.Artifacts.Concurrency)
	// Defaults still apply for unset values
	assert.Equal(t, 10, cfg.Artifacts.MaxPerRequest)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("VIOLATIONS_STORE_DRIVER", "sqlite")
	t.Setenv("VIOLATIONS_LOG_LEVEL", "warn")
	t.Setenv("VIOLATIONS_CAPTCHA_KEY", "abc123")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "abc123", cfg.Captcha.Key)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [unclosed"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "invalid", Format: "json"}))
}

func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.DatabaseURL = "violations.db"
	cfg.Artifacts.MaxPerRequest = 10
	cfg.Artifacts.Concurrency = 3
	cfg.OpenData.BaseURL = "https://data.cityofnewyork.us"
	cfg.Captcha.TimeoutSecs = 300
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "lookup ok", mode: "lookup"},
		{name: "serve ok", mode: "serve"},
		{name: "history ok", mode: "history"},
		{name: "captcha ok", mode: "captcha", mutate: func(c *Config) { c.Captcha.Key = "k"; c.Store.DatabaseURL = "" }},
		{name: "captcha needs key", mode: "captcha", wantErr: "captcha.key is required"},
		{name: "bad port", mode: "serve", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "server.port must be > 0"},
		{name: "concurrency bounds", mode: "lookup", mutate: func(c *Config) { c.Artifacts.Concurrency = 0 }, wantErr: "artifacts.concurrency must be between 1 and 20"},
		{name: "no database", mode: "history", mutate: func(c *Config) { c.Store.DatabaseURL = "" }, wantErr: "store.database_url is required"},
		{name: "unknown mode", mode: "sync", wantErr: "unknown mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate(tt.mode)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
