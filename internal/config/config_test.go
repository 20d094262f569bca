package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LEDGER_TIMEZONE", "UTC")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("MEILISEARCH_HOST", "meili")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, "http://meili:7700", cfg.MeiliSearchHost)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, "5 0 * * 1", cfg.CronWeeklyGoals)
	assert.Equal(t, 10*time.Minute, cfg.SchedulerLockTTL)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("LEDGER_TIMEZONE", "Mars/Olympus")
	_, err := Load()
	assert.ErrorContains(t, err, "LEDGER_TIMEZONE")

	t.Setenv("LEDGER_TIMEZONE", "UTC")
	t.Setenv("STORE_TIMEOUT", "soon")
	_, err = Load()
	assert.ErrorContains(t, err, "STORE_TIMEOUT")
}

func TestLoadRequiresSecretInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}
