package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/orgenrich/internal/cache"
	"github.com/sells-group/orgenrich/internal/match"
	"github.com/sells-group/orgenrich/internal/resilience"
	"github.com/sells-group/orgenrich/internal/staff"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Input      InputConfig      `yaml:"input" mapstructure:"input"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	ProPublica ProPublicaConfig `yaml:"propublica" mapstructure:"propublica"`
	Web        WebConfig        `yaml:"web" mapstructure:"web"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Staff      StaffConfig      `yaml:"staff" mapstructure:"staff"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// InputConfig names the input file and the record keys that identify an
// organization.
type InputConfig struct {
	Path         string   `yaml:"path" mapstructure:"path"`
	Mapping      string   `yaml:"mapping" mapstructure:"mapping"`
	Limit        int      `yaml:"limit" mapstructure:"limit"`
	Validate     bool     `yaml:"validate" mapstructure:"validate"`
	NameFields   []string `yaml:"name_fields" mapstructure:"name_fields"`
	EINField     string   `yaml:"ein_field" mapstructure:"ein_field"`
	CityField    string   `yaml:"city_field" mapstructure:"city_field"`
	StateField   string   `yaml:"state_field" mapstructure:"state_field"`
	WebsiteField string   `yaml:"website_field" mapstructure:"website_field"`
}

// Fields returns the record keys as match fields.
func (c InputConfig) Fields() match.Fields {
	return match.Fields{
		NameFields:   c.NameFields,
		EINField:     c.EINField,
		CityField:    c.CityField,
		StateField:   c.StateField,
		WebsiteField: c.WebsiteField,
	}
}

// OutputConfig configures the snapshot and checkpoint files.
type OutputConfig struct {
	Path           string `yaml:"path" mapstructure:"path"`
	CheckpointPath string `yaml:"checkpoint_path" mapstructure:"checkpoint_path"`
	EnrichmentKey  string `yaml:"enrichment_key" mapstructure:"enrichment_key"`
}

// BatchConfig controls flush cadence.
type BatchConfig struct {
	FlushEvery        int  `yaml:"flush_every" mapstructure:"flush_every"`
	FlushIntervalSecs int  `yaml:"flush_interval_secs" mapstructure:"flush_interval_secs"`
	Resume            bool `yaml:"resume" mapstructure:"resume"`
}

// FlushInterval returns the time-based flush cadence.
func (c BatchConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSecs) * time.Second
}

// CacheConfig selects the lookup cache backend.
type CacheConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"`
	Path          string `yaml:"path" mapstructure:"path"`
	DatabaseURL   string `yaml:"database_url" mapstructure:"database_url"`
	RedisAddr     string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `yaml:"redis_db" mapstructure:"redis_db"`
	KeyPrefix     string `yaml:"key_prefix" mapstructure:"key_prefix"`
	TTLHours      int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// StoreConfig converts c for cache.OpenStore.
func (c CacheConfig) StoreConfig() cache.StoreConfig {
	return cache.StoreConfig{
		Driver:        c.Driver,
		Path:          c.Path,
		DatabaseURL:   c.DatabaseURL,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
		KeyPrefix:     c.KeyPrefix,
	}
}

// TTL returns the entry lifetime, zero meaning forever.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// ProPublicaConfig configures the Nonprofit Explorer client.
type ProPublicaConfig struct {
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// WebConfig configures website fetching for staff extraction.
type WebConfig struct {
	Fetcher           string  `yaml:"fetcher" mapstructure:"fetcher"` // "direct" or "jina"
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes      int64   `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// JinaConfig holds Jina Reader settings.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// StaffConfig controls website staff extraction.
type StaffConfig struct {
	Enabled  bool     `yaml:"enabled" mapstructure:"enabled"`
	Paths    []string `yaml:"paths" mapstructure:"paths"`
	MaxChars int      `yaml:"max_chars" mapstructure:"max_chars"`
}

// ExtractorConfig combines staff and model settings.
func (c *Config) ExtractorConfig() staff.Config {
	return staff.Config{
		Paths:     c.Staff.Paths,
		MaxChars:  c.Staff.MaxChars,
		Model:     c.Anthropic.Model,
		MaxTokens: c.Anthropic.MaxTokens,
	}
}

// RetryConfig is shared by every external service policy.
type RetryConfig struct {
	RateLimitAttempts     int     `yaml:"rate_limit_attempts" mapstructure:"rate_limit_attempts"`
	RateLimitBackoffMs    int     `yaml:"rate_limit_backoff_ms" mapstructure:"rate_limit_backoff_ms"`
	RateLimitMaxBackoffMs int     `yaml:"rate_limit_max_backoff_ms" mapstructure:"rate_limit_max_backoff_ms"`
	NetworkRetries        int     `yaml:"network_retries" mapstructure:"network_retries"`
	NetworkDelayMs        int     `yaml:"network_delay_ms" mapstructure:"network_delay_ms"`
	JitterFraction        float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// Policy builds the policy config for one service.
func (c RetryConfig) Policy(service string, requestsPerSecond float64, timeoutSecs int) resilience.PolicyConfig {
	return resilience.PolicyConfig{
		Service:             service,
		RequestsPerSecond:   requestsPerSecond,
		Timeout:             time.Duration(timeoutSecs) * time.Second,
		RateLimitAttempts:   c.RateLimitAttempts,
		RateLimitBackoff:    time.Duration(c.RateLimitBackoffMs) * time.Millisecond,
		RateLimitMaxBackoff: time.Duration(c.RateLimitMaxBackoffMs) * time.Millisecond,
		NetworkRetries:      c.NetworkRetries,
		NetworkDelay:        time.Duration(c.NetworkDelayMs) * time.Millisecond,
		JitterFraction:      c.JitterFraction,
	}
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// Load reads configuration from orgenrich.yaml, environment variables and
// defaults.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("orgenrich")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ORGENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without a default still need registering for env lookup.
	for _, key := range []string{
		"input.path", "input.mapping", "input.limit",
		"output.path", "output.checkpoint_path",
		"batch.resume",
		"cache.database_url", "cache.redis_addr", "cache.redis_password", "cache.redis_db", "cache.ttl_hours",
		"jina.key", "anthropic.key", "anthropic.base_url",
		"metrics.textfile",
	} {
		_ = v.BindEnv(key)
	}

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("input.validate", true)
	v.SetDefault("input.name_fields", []string{"name", "organization", "company"})
	v.SetDefault("input.ein_field", "ein")
	v.SetDefault("input.city_field", "city")
	v.SetDefault("input.state_field", "state")
	v.SetDefault("input.website_field", "website")
	v.SetDefault("output.enrichment_key", "enrichment")
	v.SetDefault("batch.flush_every", 50)
	v.SetDefault("batch.flush_interval_secs", 30)
	v.SetDefault("cache.driver", cache.DriverFile)
	v.SetDefault("cache.path", ".orgenrich-cache.json")
	v.SetDefault("cache.key_prefix", "orgenrich:cache:")
	v.SetDefault("propublica.base_url", "https://projects.propublica.org/nonprofits/api/v2")
	v.SetDefault("propublica.user_agent", "orgenrich/1.0")
	v.SetDefault("propublica.requests_per_second", 1.0)
	v.SetDefault("propublica.timeout_secs", 15)
	v.SetDefault("web.fetcher", "direct")
	v.SetDefault("web.user_agent", "Mozilla/5.0 (compatible; orgenrich/1.0)")
	v.SetDefault("web.max_body_bytes", 2<<20)
	v.SetDefault("web.requests_per_second", 2.0)
	v.SetDefault("web.timeout_secs", 15)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.requests_per_second", 1.0)
	v.SetDefault("anthropic.timeout_secs", 60)
	v.SetDefault("staff.enabled", true)
	v.SetDefault("staff.paths", []string{"", "/about", "/staff", "/team", "/leadership"})
	v.SetDefault("staff.max_chars", 40000)
	v.SetDefault("retry.rate_limit_attempts", 3)
	v.SetDefault("retry.rate_limit_backoff_ms", 2000)
	v.SetDefault("retry.rate_limit_max_backoff_ms", 60000)
	v.SetDefault("retry.network_retries", 2)
	v.SetDefault("retry.network_delay_ms", 1000)
	v.SetDefault("retry.jitter_fraction", 0.1)

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

// Validate checks the settings a command needs. mode is "enrich", "status"
// or "cache".
func (c *Config) Validate(mode string) error {
	var errs []string
	switch mode {
	case "enrich":
		errs = append(errs, c.validateCache()...)
		if c.Input.Path == "" {
			errs = append(errs, "input.path is required")
		}
		if c.Output.Path == "" {
			errs = append(errs, "output.path is required")
		}
		if len(c.Input.NameFields) == 0 && c.Input.EINField == "" {
			errs = append(errs, "input.name_fields or input.ein_field is required")
		}
		if c.Batch.FlushEvery <= 0 {
			errs = append(errs, "batch.flush_every must be > 0")
		}
		if c.Batch.FlushIntervalSecs <= 0 {
			errs = append(errs, "batch.flush_interval_secs must be > 0")
		}
		if c.Retry.RateLimitAttempts < 1 {
			errs = append(errs, "retry.rate_limit_attempts must be >= 1")
		}
		if c.Retry.NetworkRetries < 0 {
			errs = append(errs, "retry.network_retries must be >= 0")
		}
		if c.Staff.Enabled {
			if c.Anthropic.Key == "" {
				errs = append(errs, "anthropic.key is required when staff.enabled")
			}
			switch c.Web.Fetcher {
			case "direct":
			case "jina":
				if c.Jina.Key == "" {
					errs = append(errs, "jina.key is required when web.fetcher is jina")
				}
			default:
				errs = append(errs, "web.fetcher must be direct or jina")
			}
		}
	case "status":
		if c.Output.Path == "" {
			errs = append(errs, "output.path is required")
		}
	case "cache":
		errs = append(errs, c.validateCache()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateCache() []string {
	var errs []string
	switch strings.ToLower(c.Cache.Driver) {
	case cache.DriverFile, cache.DriverSQLite:
		if c.Cache.Path == "" {
			errs = append(errs, "cache.path is required for the "+c.Cache.Driver+" driver")
		}
	case cache.DriverPostgres:
		if c.Cache.DatabaseURL == "" {
			errs = append(errs, "cache.database_url is required for the postgres driver")
		}
	case cache.DriverRedis:
		if c.Cache.RedisAddr == "" {
			errs = append(errs, "cache.redis_addr is required for the redis driver")
		}
	default:
		errs = append(errs, "cache.driver must be file, sqlite, postgres or redis")
	}
	if c.Cache.TTLHours < 0 {
		errs = append(errs, "cache.ttl_hours must be >= 0")
	}
	return errs
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
