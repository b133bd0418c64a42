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
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	UpstreamBaseURL    string
	UpstreamToken      string
	UpstreamTimeout    time.Duration
	UploadTimeout      time.Duration
	RedisURL           string
	DatabaseURL        string
	SessionTTL         time.Duration
	LockTTL            time.Duration
	SearchDebounce     time.Duration
	SearchRateLimit    int
	SearchRateWindow   time.Duration
	RateLimitBackend   string
	RequestRateLimit   int
	RequestRateWindow  time.Duration
	ChargeCacheTTL     time.Duration
	IdempotencyTTL     time.Duration
	CurrencySymbol     string
	CurrencyLocale     string
	CurrencyDecimals   int
	CurrencySymbolPost bool
	CORSAllowedOrigins []string
	BodyLimitBytes     int64
	RetryMaxAttempts   int
	RetryBase          time.Duration
	BreakerMinRequests int
	BreakerFailRatio   float64
	BreakerOpenFor     time.Duration
	NotifyQueue        string
	NotifyMaxRetry     int
	WorkerConcurrency  int
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
		UpstreamBaseURL:    strings.TrimSpace(k.String("UPSTREAM_BASE_URL")),
		UpstreamToken:      strings.TrimSpace(k.String("UPSTREAM_TOKEN")),
		UpstreamTimeout:    parseDuration(k.String("UPSTREAM_TIMEOUT"), "15s"),
		UploadTimeout:      parseDuration(k.String("UPLOAD_TIMEOUT"), "15m"),
		RedisURL:           k.String("REDIS_URL"),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		SessionTTL:         parseDuration(k.String("SESSION_TTL"), "12h"),
		LockTTL:            parseDuration(k.String("LOCK_TTL"), "10s"),
		SearchDebounce:     parseDuration(k.String("SEARCH_DEBOUNCE"), "350ms"),
		SearchRateLimit:    parseInt(k.String("SEARCH_RATE_LIMIT"), 20),
		SearchRateWindow:   parseDuration(k.String("SEARCH_RATE_WINDOW"), "1s"),
		RateLimitBackend:   strings.ToLower(valueOrDefault(k.String("RATE_LIMIT_BACKEND"), "sliding")),
		RequestRateLimit:   parseInt(k.String("REQUEST_RATE_LIMIT"), 120),
		RequestRateWindow:  parseDuration(k.String("REQUEST_RATE_WINDOW"), "1m"),
		ChargeCacheTTL:     parseDuration(k.String("CHARGE_CACHE_TTL"), "5m"),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		CurrencySymbol:     valueOrDefault(k.String("CURRENCY_SYMBOL"), "$"),
		CurrencyLocale:     valueOrDefault(k.String("CURRENCY_LOCALE"), "en-US"),
		CurrencyDecimals:   parseInt(k.String("CURRENCY_DECIMALS"), 2),
		CurrencySymbolPost: parseBool(k.String("CURRENCY_SYMBOL_AFTER")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		BodyLimitBytes:     int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),
		RetryMaxAttempts:   parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryBase:          parseDuration(k.String("RETRY_BASE"), "200ms"),
		BreakerMinRequests: parseInt(k.String("BREAKER_MIN_REQUESTS"), 10),
		BreakerFailRatio:   parseFloat(k.String("BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:     parseDuration(k.String("BREAKER_OPEN_FOR"), "30s"),
		NotifyQueue:        valueOrDefault(k.String("NOTIFY_QUEUE"), "notifications"),
		NotifyMaxRetry:     parseInt(k.String("NOTIFY_MAX_RETRY"), 5),
		WorkerConcurrency:  parseInt(k.String("WORKER_CONCURRENCY"), 4),
	}

	if cfg.UpstreamBaseURL == "" {
		return nil, errors.New("UPSTREAM_BASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	switch cfg.RateLimitBackend {
	case "sliding", "fixed":
	default:
		return nil, fmt.Errorf("RATE_LIMIT_BACKEND must be sliding or fixed, got %q", cfg.RateLimitBackend)
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

// JournalEnabled reports whether submissions are recorded in Postgres.
func (c *Config) JournalEnabled() bool {
	return c.DatabaseURL != ""
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

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
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
