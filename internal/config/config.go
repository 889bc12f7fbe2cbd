package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string

	CurrencyCode string
	// TaxRateBps is the sales tax applied to the subtotal, in basis
	// points. 1000 bps is the default 10% rate.
	TaxRateBps int

	SessionTTL     time.Duration
	SettleLockTTL  time.Duration
	IdempotencyTTL time.Duration

	CatalogCacheTTL     time.Duration
	CatalogDefaultLimit int
	CatalogMaxLimit     int
	LowStockThreshold   int

	RateLimitWindow time.Duration
	RateLimitMax    int

	WebhookURLs        []string
	WebhookSecret      string
	WebhookMaxAttempts int
	WebhookTimeout     time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		CurrencyCode: valueOrDefault(k.String("CURRENCY_CODE"), "USD"),
		TaxRateBps:   parseInt(k.String("PRICING_TAX_RATE_BPS"), 1000),

		SessionTTL:     parseDuration(k.String("SESSION_TTL"), "12h"),
		SettleLockTTL:  parseDuration(k.String("SETTLE_LOCK_TTL"), "10s"),
		IdempotencyTTL: parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		CatalogCacheTTL:     parseDuration(k.String("CATALOG_CACHE_TTL"), "30s"),
		CatalogDefaultLimit: parseInt(k.String("CATALOG_DEFAULT_LIMIT"), 20),
		CatalogMaxLimit:     parseInt(k.String("CATALOG_MAX_LIMIT"), 100),
		LowStockThreshold:   parseInt(k.String("LOW_STOCK_DEFAULT_THRESHOLD"), 5),

		RateLimitWindow: parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:    parseInt(k.String("RATE_LIMIT_MAX"), 600),

		WebhookURLs:        splitAndTrim(k.String("WEBHOOK_URLS")),
		WebhookSecret:      k.String("WEBHOOK_SECRET"),
		WebhookMaxAttempts: parseInt(k.String("WEBHOOK_MAX_ATTEMPTS"), 6),
		WebhookTimeout:     parseDuration(k.String("WEBHOOK_TIMEOUT"), "5s"),
	}

	if cfg.TaxRateBps < 0 {
		return nil, fmt.Errorf("PRICING_TAX_RATE_BPS must not be negative")
	}

	return cfg, nil
}

// EmbeddedRedis reports whether the server should boot its in-process
// store instead of connecting to an external Redis.
func (c *Config) EmbeddedRedis() bool {
	return c.RedisURL == ""
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
