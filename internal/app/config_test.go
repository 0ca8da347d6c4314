package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "dev-secret")
	t.Setenv("APP_ENV", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, "ledger", cfg.NATSSubjectPrefix)
	require.Equal(t, 2*time.Minute, cfg.CloseLockTTL)
	require.Equal(t, 120, cfg.RateLimitPerMinute)
	require.Equal(t, "5 0 * * *", cfg.RecurringCron)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestProductionSecretLength(t *testing.T) {
	cfg := &Config{AppEnv: "production", JWTSecret: "short", RateLimitPerMinute: 10}
	require.Error(t, cfg.Validate())

	cfg.JWTSecret = "0123456789abcdef0123456789abcdef"
	require.NoError(t, cfg.Validate())
}
