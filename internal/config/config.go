// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type AppConfig struct {
	Name      string `yaml:"name"`
	BaseURL   string `yaml:"base_url" env:"APP_BASE_URL"` // used for provider return/cancel URLs
	BrandName string `yaml:"brand_name"`
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL"` // trace|debug|info|warn|error
	Format   string `yaml:"format"`                // json|console
	Sampling bool   `yaml:"sampling"`              // enable sampling in prod
}

type HTTPConfig struct {
	Addr           string        `yaml:"addr" env:"HTTP_ADDR"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type AdminConfig struct {
	Port int `yaml:"port" env:"ADMIN_PORT"`
}

type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	Issuer     string        `yaml:"issuer"`
	CookieName string        `yaml:"cookie_name"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
}

type DatabaseConfig struct {
	Driver      string `yaml:"driver"` // postgres|mongo
	URL         string `yaml:"url" env:"DATABASE_URL"`
	Name        string `yaml:"name"` // mongo database name
	AutoMigrate bool   `yaml:"auto_migrate"`
	MaxConns    int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	URL      string        `yaml:"url" env:"REDIS_URL"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type CacheConfig struct {
	Driver string `yaml:"driver"` // redis|memory|none
	Size   int    `yaml:"size"`
}

type PayPalConfig struct {
	ClientID     string        `yaml:"client_id" env:"PAYPAL_CLIENT_ID"`
	ClientSecret string        `yaml:"client_secret" env:"PAYPAL_CLIENT_SECRET"`
	Mode         string        `yaml:"mode" env:"PAYPAL_MODE"` // sandbox|live
	BaseURL      string        `yaml:"base_url"`               // overrides the mode's API host
	Timeout      time.Duration `yaml:"timeout"`
	ReadRetries  int           `yaml:"read_retries"`
}

type PaymentConfig struct {
	Provider string       `yaml:"provider"` // paypal|noop
	PayPal   PayPalConfig `yaml:"paypal"`
}

type BillingConfig struct {
	PlanCacheTTL   time.Duration `yaml:"plan_cache_ttl"`
	PendingTTL     time.Duration `yaml:"pending_ttl"`
	LockTTL        time.Duration `yaml:"lock_ttl"`
	InvoiceRetries int           `yaml:"invoice_retries"`
}

type QuotaConfig struct {
	FreeLimit  float64       `yaml:"free_limit"`
	FreeWindow time.Duration `yaml:"free_window"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key" env:"OPENAI_API_KEY"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type GeminiConfig struct {
	APIKey  string `yaml:"api_key" env:"GEMINI_API_KEY"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type AIConfig struct {
	Providers       []string      `yaml:"providers"` // ordered fallback chain: openai|gemini|noop
	OpenAI          OpenAIConfig  `yaml:"openai"`
	Gemini          GeminiConfig  `yaml:"gemini"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	MaxInputTokens  int           `yaml:"max_input_tokens"`
	ConcurrentLimit int           `yaml:"concurrent_limit"` // max concurrent AI calls
	Timeout         time.Duration `yaml:"timeout"`
}

type RateRule struct {
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

type RateLimitConfig struct {
	Enabled  bool     `yaml:"enabled"`
	API      RateRule `yaml:"api"`
	Analysis RateRule `yaml:"analysis"`
}

type SyncConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Schedule  string `yaml:"schedule"` // cron spec, e.g. "@every 15m"
	Workers   int    `yaml:"workers"`
	BatchSize int    `yaml:"batch_size"`
}

type Config struct {
	App       AppConfig       `yaml:"app"`
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Admin     AdminConfig     `yaml:"admin"`
	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Cache     CacheConfig     `yaml:"cache"`
	Payment   PaymentConfig   `yaml:"payment"`
	Billing   BillingConfig   `yaml:"billing"`
	Quota     QuotaConfig     `yaml:"quota"`
	AI        AIConfig        `yaml:"ai"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Sync      SyncConfig      `yaml:"sync"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, overlays environment variables,
// applies defaults and validates. In dev mode a local .env file is loaded first.
func LoadConfig(path string, dev bool) (*Config, error) {
	if dev {
		// a missing .env is fine
		_ = godotenv.Load()
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse decodes YAML, overlays env and validates.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "IdeaForge"
	}
	if cfg.App.BrandName == "" {
		cfg.App.BrandName = cfg.App.Name
	}
	if cfg.App.BaseURL == "" {
		cfg.App.BaseURL = "http://localhost:8080"
	}
	cfg.App.BaseURL = strings.TrimRight(cfg.App.BaseURL, "/")

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	cfg.HTTP.ReadTimeout = normalizeDuration(cfg.HTTP.ReadTimeout, 10*time.Second)
	cfg.HTTP.WriteTimeout = normalizeDuration(cfg.HTTP.WriteTimeout, 60*time.Second)
	cfg.HTTP.RequestTimeout = normalizeDuration(cfg.HTTP.RequestTimeout, 45*time.Second)

	if cfg.Admin.Port <= 0 {
		cfg.Admin.Port = 9090
	}

	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "ideaforge"
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "session"
	}
	cfg.Auth.TokenTTL = normalizeDuration(cfg.Auth.TokenTTL, 7*24*time.Hour)

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = "ideaforge"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}

	cfg.Redis.TTL = normalizeDuration(cfg.Redis.TTL, time.Hour)

	if cfg.Cache.Driver == "" {
		if cfg.Redis.Enabled {
			cfg.Cache.Driver = "redis"
		} else {
			cfg.Cache.Driver = "memory"
		}
	}
	if cfg.Cache.Size <= 0 {
		cfg.Cache.Size = 10000
	}

	if cfg.Payment.Provider == "" {
		cfg.Payment.Provider = "paypal"
	}
	if cfg.Payment.PayPal.Mode == "" {
		cfg.Payment.PayPal.Mode = "sandbox"
	}
	cfg.Payment.PayPal.Timeout = normalizeDuration(cfg.Payment.PayPal.Timeout, 15*time.Second)
	if cfg.Payment.PayPal.ReadRetries <= 0 {
		cfg.Payment.PayPal.ReadRetries = 3
	}

	cfg.Billing.PlanCacheTTL = normalizeDuration(cfg.Billing.PlanCacheTTL, 24*time.Hour)
	cfg.Billing.PendingTTL = normalizeDuration(cfg.Billing.PendingTTL, 24*time.Hour)
	cfg.Billing.LockTTL = normalizeDuration(cfg.Billing.LockTTL, 30*time.Second)
	if cfg.Billing.InvoiceRetries <= 0 {
		cfg.Billing.InvoiceRetries = 5
	}

	if cfg.Quota.FreeLimit <= 0 {
		cfg.Quota.FreeLimit = 1
	}
	cfg.Quota.FreeWindow = normalizeDuration(cfg.Quota.FreeWindow, 48*time.Hour)

	if len(cfg.AI.Providers) == 0 {
		cfg.AI.Providers = []string{"noop"}
	}
	if cfg.AI.OpenAI.Model == "" {
		cfg.AI.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.AI.Gemini.Model == "" {
		cfg.AI.Gemini.Model = "gemini-2.0-flash"
	}
	if cfg.AI.MaxOutputTokens <= 0 {
		cfg.AI.MaxOutputTokens = 2048
	}
	if cfg.AI.MaxInputTokens <= 0 {
		cfg.AI.MaxInputTokens = 2000
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	cfg.AI.Timeout = normalizeDuration(cfg.AI.Timeout, 30*time.Second)

	if cfg.RateLimit.API.Max <= 0 {
		cfg.RateLimit.API = RateRule{Max: 100, Window: 15 * time.Minute}
	}
	if cfg.RateLimit.Analysis.Max <= 0 {
		cfg.RateLimit.Analysis = RateRule{Max: 10, Window: time.Hour}
	}
	cfg.RateLimit.API.Window = normalizeDuration(cfg.RateLimit.API.Window, 15*time.Minute)
	cfg.RateLimit.Analysis.Window = normalizeDuration(cfg.RateLimit.Analysis.Window, time.Hour)

	if cfg.Sync.Schedule == "" {
		cfg.Sync.Schedule = "@every 15m"
	}
	if cfg.Sync.Workers <= 0 {
		cfg.Sync.Workers = 4
	}
	if cfg.Sync.BatchSize <= 0 {
		cfg.Sync.BatchSize = 100
	}
}

// Validate checks required fields and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	switch c.Database.Driver {
	case "postgres", "mongo":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	switch c.Cache.Driver {
	case "redis":
		if !c.Redis.Enabled || c.Redis.URL == "" {
			errs = append(errs, errors.New("cache.driver redis needs redis.enabled and redis.url"))
		}
	case "memory", "none":
	default:
		errs = append(errs, fmt.Errorf("cache.driver %q is not supported", c.Cache.Driver))
	}
	switch c.Payment.Provider {
	case "paypal":
		if c.Payment.PayPal.ClientID == "" || c.Payment.PayPal.ClientSecret == "" {
			errs = append(errs, errors.New("payment.paypal.client_id and client_secret are required"))
		}
		if c.Payment.PayPal.Mode != "sandbox" && c.Payment.PayPal.Mode != "live" {
			errs = append(errs, fmt.Errorf("payment.paypal.mode %q must be sandbox or live", c.Payment.PayPal.Mode))
		}
	case "noop":
	default:
		errs = append(errs, fmt.Errorf("payment.provider %q is not supported", c.Payment.Provider))
	}
	for _, p := range c.AI.Providers {
		switch p {
		case "openai":
			if c.AI.OpenAI.APIKey == "" {
				errs = append(errs, errors.New("ai.openai.api_key is required"))
			}
		case "gemini":
			if c.AI.Gemini.APIKey == "" {
				errs = append(errs, errors.New("ai.gemini.api_key is required"))
			}
		case "noop":
		default:
			errs = append(errs, fmt.Errorf("ai provider %q is not supported", p))
		}
	}
	return errors.Join(errs...)
}

func normalizeDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
