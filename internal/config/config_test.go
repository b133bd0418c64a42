package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasir-desk/internal/config"
)

func baseEnv() map[string]string {
	return map[string]string{
		"UPSTREAM_BASE_URL":    "http://backend.local",
		"REDIS_URL":            "redis://localhost:6379/0",
		"DATABASE_URL":         "",
		"SEARCH_DEBOUNCE":      "",
		"RATE_LIMIT_BACKEND":   "",
		"UPLOAD_TIMEOUT":       "",
		"CORS_ALLOWED_ORIGINS": "",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(baseEnv())
	require.NoError(t, err)
	require.Equal(t, 350*time.Millisecond, cfg.SearchDebounce)
	require.Equal(t, 15*time.Minute, cfg.UploadTimeout)
	require.Equal(t, "sliding", cfg.RateLimitBackend)
	require.False(t, cfg.JournalEnabled())
	require.Empty(t, cfg.CORSAllowedOrigins)
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["DATABASE_URL"] = "postgres://pos@localhost/pos"
	env["SEARCH_DEBOUNCE"] = "0s"
	env["RATE_LIMIT_BACKEND"] = "FIXED"
	env["CORS_ALLOWED_ORIGINS"] = "http://a.local, http://b.local"
	cfg, err := config.LoadForTests(env)
	require.NoError(t, err)
	require.True(t, cfg.JournalEnabled())
	require.Zero(t, cfg.SearchDebounce)
	require.Equal(t, "fixed", cfg.RateLimitBackend)
	require.Equal(t, []string{"http://a.local", "http://b.local"}, cfg.CORSAllowedOrigins)
}

func TestLoadRequiresUpstream(t *testing.T) {
	env := baseEnv()
	env["UPSTREAM_BASE_URL"] = ""
	_, err := config.LoadForTests(env)
	require.Error(t, err)
}

func TestLoadRejectsUnknownRateLimitBackend(t *testing.T) {
	env := baseEnv()
	env["RATE_LIMIT_BACKEND"] = "token-bucket"
	_, err := config.LoadForTests(env)
	require.Error(t, err)
}

func TestHTTPAddr(t *testing.T) {
	cfg := &config.Config{Port: "9090"}
	require.Equal(t, ":9090", cfg.HTTPAddr())
	cfg.Port = ":7000"
	require.Equal(t, ":7000", cfg.HTTPAddr())
}
