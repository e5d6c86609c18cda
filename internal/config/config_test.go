package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://localhost/artistry")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 5*time.Minute, cfg.OTPTTL)
	assert.Equal(t, 2*time.Second, cfg.GenAITextDelay)
	assert.True(t, cfg.CookieSecure)
	assert.False(t, cfg.GoogleEnabled())
	assert.False(t, cfg.KeycloakEnabled())
}

func TestLoadRequiresDSN(t *testing.T) {
	t.Setenv("DATABASE_DSN", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadClampsIdleTTL(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://localhost/artistry")
	t.Setenv("SESSION_TTL", "1h")
	t.Setenv("SESSION_IDLE_TTL", "3h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.SessionIdle)
}
