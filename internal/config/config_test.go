package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/orgenrich/internal/cache"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no orgenrich.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Input.Validate)
	assert.Equal(t, []string{"name", "organization", "company"}, cfg.Input.NameFields)
	assert.Equal(t, "ein", cfg.Input.EINField)
	assert.Equal(t, "website", cfg.Input.WebsiteField)
	assert.Equal(t, "enrichment", cfg.Output.EnrichmentKey)
	assert.Equal(t, 50, cfg.Batch.FlushEvery)
	assert.Equal(t, 30*time.Second, cfg.Batch.FlushInterval())
	assert.Equal(t, cache.DriverFile, cfg.Cache.Driver)
	assert.Equal(t, ".orgenrich-cache.json", cfg.Cache.Path)
	assert.Equal(t, time.Duration(0), cfg.Cache.TTL())
	assert.Equal(t, "https://projects.propublica.org/nonprofits/api/v2", cfg.ProPublica.BaseURL)
	assert.InDelta(t, 1.0, cfg.ProPublica.RequestsPerSecond, 0.001)
	assert.Equal(t, 15, cfg.ProPublica.TimeoutSecs)
	assert.Equal(t, "direct", cfg.Web.Fetcher)
	assert.Equal(t, int64(2<<20), cfg.Web.MaxBodyBytes)
	assert.Equal(t, "https://r.jina.ai", cfg.Jina.BaseURL)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, int64(2048), cfg.Anthropic.MaxTokens)
	assert.True(t, cfg.Staff.Enabled)
	assert.Equal(t, []string{"", "/about", "/staff", "/team", "/leadership"}, cfg.Staff.Paths)
	assert.Equal(t, 3, cfg.Retry.RateLimitAttempts)
	assert.Equal(t, 2, cfg.Retry.NetworkRetries)
	assert.Equal(t, 1000, cfg.Retry.NetworkDelayMs)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
cache:
  driver: sqlite
  path: cache.db
  ttl_hours: 72
batch:
  flush_every: 10
staff:
  enabled: false
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orgenrich.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, cache.DriverSQLite, cfg.Cache.Driver)
	assert.Equal(t, "cache.db", cfg.Cache.Path)
	assert.Equal(t, 72*time.Hour, cfg.Cache.TTL())
	assert.Equal(t, 10, cfg.Batch.FlushEvery)
	assert.False(t, cfg.Staff.Enabled)
	// Defaults still apply for unset values
	assert.Equal(t, 30, cfg.Batch.FlushIntervalSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "orgenrich.yaml"), []byte("log:\n  level: debug\n"), 0644))
	t.Setenv("ORGENRICH_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvSetsKeysWithoutDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("ORGENRICH_ANTHROPIC_KEY", "sk-ant-test")
	t.Setenv("ORGENRICH_CACHE_REDIS_ADDR", "localhost:6379")
	t.Setenv("ORGENRICH_OUTPUT_PATH", "out.json")
	t.Setenv("ORGENRICH_BATCH_FLUSH_EVERY", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-test", cfg.Anthropic.Key)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, "out.json", cfg.Output.Path)
	assert.Equal(t, 5, cfg.Batch.FlushEvery)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orgenrich.yaml"), []byte("log: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with enrich-ready settings for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Input.Path = "in.csv"
	cfg.Input.NameFields = []string{"name"}
	cfg.Output.Path = "out.json"
	cfg.Batch.FlushEvery = 50
	cfg.Batch.FlushIntervalSecs = 30
	cfg.Cache.Driver = cache.DriverFile
	cfg.Cache.Path = "cache.json"
	cfg.Retry.RateLimitAttempts = 3
	cfg.Retry.NetworkRetries = 2
	cfg.Staff.Enabled = true
	cfg.Web.Fetcher = "direct"
	cfg.Anthropic.Key = "sk-ant-key"
	return cfg
}

func TestValidateEnrich_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("enrich"))
}

func TestValidateEnrich_MissingFields(t *testing.T) {
	cfg := &Config{}
	cfg.Staff.Enabled = true
	cfg.Cache.Driver = "memcached"

	err := cfg.Validate("enrich")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input.path is required")
	assert.Contains(t, err.Error(), "output.path is required")
	assert.Contains(t, err.Error(), "batch.flush_every must be > 0")
	assert.Contains(t, err.Error(), "anthropic.key is required")
	assert.Contains(t, err.Error(), "web.fetcher must be direct or jina")
	assert.Contains(t, err.Error(), "cache.driver must be")
}

func TestValidateEnrich_StaffDisabledNeedsNoKeys(t *testing.T) {
	cfg := validDefaults()
	cfg.Staff.Enabled = false
	cfg.Anthropic.Key = ""
	cfg.Web.Fetcher = ""
	assert.NoError(t, cfg.Validate("enrich"))
}

func TestValidateEnrich_JinaNeedsKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Web.Fetcher = "jina"
	err := cfg.Validate("enrich")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jina.key is required")

	cfg.Jina.Key = "jina_key"
	assert.NoError(t, cfg.Validate("enrich"))
}

func TestValidateCacheDrivers(t *testing.T) {
	tests := []struct {
		name    string
		cache   CacheConfig
		wantErr string
	}{
		{name: "file", cache: CacheConfig{Driver: "file", Path: "c.json"}},
		{name: "sqlite", cache: CacheConfig{Driver: "sqlite", Path: "c.db"}},
		{name: "postgres", cache: CacheConfig{Driver: "postgres", DatabaseURL: "postgres://localhost/c"}},
		{name: "redis", cache: CacheConfig{Driver: "redis", RedisAddr: "localhost:6379"}},
		{name: "file without path", cache: CacheConfig{Driver: "file"}, wantErr: "cache.path is required"},
		{name: "postgres without url", cache: CacheConfig{Driver: "postgres"}, wantErr: "cache.database_url is required"},
		{name: "redis without addr", cache: CacheConfig{Driver: "redis"}, wantErr: "cache.redis_addr is required"},
		{name: "negative ttl", cache: CacheConfig{Driver: "file", Path: "c.json", TTLHours: -1}, wantErr: "cache.ttl_hours"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Cache: tt.cache}
			err := cfg.Validate("cache")
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateStatus(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Validate("status"))
	cfg.Output.Path = "out.json"
	assert.NoError(t, cfg.Validate("status"))
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestRetryPolicy(t *testing.T) {
	r := RetryConfig{
		RateLimitAttempts:     4,
		RateLimitBackoffMs:    500,
		RateLimitMaxBackoffMs: 8000,
		NetworkRetries:        1,
		NetworkDelayMs:        250,
		JitterFraction:        0.2,
	}
	p := r.Policy("propublica", 1.5, 15)
	assert.Equal(t, "propublica", p.Service)
	assert.InDelta(t, 1.5, p.RequestsPerSecond, 0.001)
	assert.Equal(t, 15*time.Second, p.Timeout)
	assert.Equal(t, 4, p.RateLimitAttempts)
	assert.Equal(t, 500*time.Millisecond, p.RateLimitBackoff)
	assert.Equal(t, 8*time.Second, p.RateLimitMaxBackoff)
	assert.Equal(t, 1, p.NetworkRetries)
	assert.Equal(t, 250*time.Millisecond, p.NetworkDelay)
}

func TestConversions(t *testing.T) {
	cfg := validDefaults()
	cfg.Input.EINField = "tax_id"
	cfg.Cache.KeyPrefix = "x:"
	cfg.Staff.MaxChars = 1000
	cfg.Anthropic.Model = "claude-haiku-4-5-20251001"

	assert.Equal(t, "tax_id", cfg.Input.Fields().EINField)
	assert.Equal(t, "x:", cfg.Cache.StoreConfig().KeyPrefix)
	ec := cfg.ExtractorConfig()
	assert.Equal(t, 1000, ec.MaxChars)
	assert.Equal(t, "claude-haiku-4-5-20251001", ec.Model)
}
