package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	AutoMigrate        bool
	CORSAllowedOrigins []string

	LogFormat string
	LogLevel  string

	MetricsNamespace string
	MetricsEnabled   bool
	PprofEnabled     bool

	TracingExporter string
	TracingEndpoint string
	TracingRatio    float64

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	RazorpayKeyID     string
	RazorpayKeySecret string
	RazorpayBaseURL   string
	Currency          string

	FreeShippingThreshold decimal.Decimal
	ShippingFee           decimal.Decimal

	SessionTTL        time.Duration
	SessionLockTTL    time.Duration
	CatalogCacheTTL   time.Duration
	AnalyticsCacheTTL time.Duration
	IdempotencyTTL    time.Duration

	CouponRateLimit  int
	CouponRateWindow time.Duration

	WorkerConcurrency int

	BreakerFailureThreshold int
	BreakerOpenTimeout      time.Duration
	ExternalTimeout         time.Duration
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
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		AutoMigrate:        parseBool(k.String("AUTO_MIGRATE")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		LogFormat: valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:  valueOrDefault(k.String("LOG_LEVEL"), "info"),

		MetricsNamespace: valueOrDefault(k.String("METRICS_NAMESPACE"), "storefront"),
		MetricsEnabled:   parseBoolDefault(k.String("METRICS_ENABLED"), true),
		PprofEnabled:     parseBool(k.String("PPROF_ENABLED")),

		TracingExporter: valueOrDefault(k.String("OTEL_TRACES_EXPORTER"), "none"),
		TracingEndpoint: k.String("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TracingRatio:    parseFloat(k.String("OTEL_TRACES_SAMPLER_RATIO"), 1),

		JWTSecret:   k.String("JWT_SECRET"),
		JWTIssuer:   k.String("JWT_ISSUER"),
		JWTAudience: k.String("JWT_AUDIENCE"),

		RazorpayKeyID:     k.String("RAZORPAY_KEY_ID"),
		RazorpayKeySecret: k.String("RAZORPAY_KEY_SECRET"),
		RazorpayBaseURL:   valueOrDefault(k.String("RAZORPAY_BASE_URL"), "https://api.razorpay.com"),
		Currency:          strings.ToUpper(valueOrDefault(k.String("CURRENCY"), "INR")),

		FreeShippingThreshold: parseDecimal(k.String("FREE_SHIPPING_THRESHOLD"), "999"),
		ShippingFee:           parseDecimal(k.String("SHIPPING_FEE"), "99"),

		SessionTTL:        parseDuration(k.String("SESSION_TTL"), "720h"),
		SessionLockTTL:    parseDuration(k.String("SESSION_LOCK_TTL"), "10s"),
		CatalogCacheTTL:   parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		AnalyticsCacheTTL: parseDuration(k.String("ANALYTICS_CACHE_TTL"), "10m"),
		IdempotencyTTL:    parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		CouponRateLimit:  parseInt(k.String("COUPON_RATE_LIMIT"), 10),
		CouponRateWindow: parseDuration(k.String("COUPON_RATE_WINDOW"), "1m"),

		WorkerConcurrency: parseInt(k.String("WORKER_CONCURRENCY"), 10),

		BreakerFailureThreshold: parseInt(k.String("BREAKER_FAILURE_THRESHOLD"), 5),
		BreakerOpenTimeout:      parseDuration(k.String("BREAKER_OPEN_TIMEOUT"), "30s"),
		ExternalTimeout:         parseDuration(k.String("EXTERNAL_TIMEOUT"), "8s"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.FreeShippingThreshold.IsNegative() || cfg.ShippingFee.IsNegative() {
		return nil, errors.New("shipping amounts must not be negative")
	}

	return cfg, nil
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

// RazorpayEnabled reports whether online payments are configured.
func (c *Config) RazorpayEnabled() bool {
	return strings.TrimSpace(c.RazorpayKeyID) != "" && strings.TrimSpace(c.RazorpayKeySecret) != ""
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
		return strings.TrimSpace(value)
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

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseDecimal(value, fallback string) decimal.Decimal {
	if d, err := decimal.NewFromString(strings.TrimSpace(value)); err == nil {
		return d
	}
	return decimal.RequireFromString(fallback)
}

// MustLoad behaves like Load but panics on error. Useful for command entrypoints.
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
