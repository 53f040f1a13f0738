package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PORT", "")
	t.Setenv("APP_ENV", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CATALOG_TIMEOUT", "")
	t.Setenv("SHUTDOWN_TIMEOUT", "")
	t.Setenv("CATALOG_SEED", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "4000", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.CatalogSeed)
	assert.Equal(t, 5*time.Second, cfg.CatalogTimeout)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "production")
	t.Setenv("CATALOG_TIMEOUT", "250ms")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("CATALOG_SEED", "products.json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 250*time.Millisecond, cfg.CatalogTimeout)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "products.json", cfg.CatalogSeed)
}

func TestLoad_InvalidDurations(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"malformed catalog timeout", "CATALOG_TIMEOUT", "five seconds"},
		{"malformed shutdown timeout", "SHUTDOWN_TIMEOUT", "not-a-duration"},
		{"negative shutdown timeout", "SHUTDOWN_TIMEOUT", "-1s"},
		{"zero catalog timeout", "CATALOG_TIMEOUT", "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "secret")
			t.Setenv("CATALOG_TIMEOUT", "")
			t.Setenv("SHUTDOWN_TIMEOUT", "")
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	cfg := &Config{LogLevel: "debug"}
	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	cfg.LogLevel = "loud"
	_, err = cfg.NewLogger()
	assert.Error(t, err)
}
