package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("CACHE_TTL", "")
	t.Setenv("JWT_TTL", "")
	t.Setenv("AUTO_MIGRATE", "")
	t.Setenv("REDIS_URL", "")
	require.NoError(t, os.Unsetenv("REDIS_URL"))

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.True(t, cfg.AutoMigrate)
	assert.NotEmpty(t, cfg.JWTSecret)
}

func TestLoadConfigRequiresSecretInProduction(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("CACHE_TTL", "30s")
	t.Setenv("JWT_TTL", "1h")
	t.Setenv("AUTO_MIGRATE", "false")
	t.Setenv("REDIS_URL", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, time.Hour, cfg.JWTTTL)
	assert.False(t, cfg.AutoMigrate)
	assert.Empty(t, cfg.RedisURL)
}

func TestGetEnvDurationRejectsGarbage(t *testing.T) {
	t.Setenv("SOME_TTL", "soon")

	_, err := GetEnvDuration("SOME_TTL", time.Second)
	require.Error(t, err)
}
