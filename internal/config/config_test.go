package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "conciliacion-service", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8084", cfg.App.Port)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.False(t, cfg.Redis.Enabled)
		assert.Equal(t, 24*time.Hour, cfg.Redis.TTL)
		assert.Equal(t, int64(10<<20), cfg.Upload.MaxBytes)
		assert.InDelta(t, 0.01, cfg.Reconciliation.AmountTolerance, 1e-12)
		assert.Equal(t, 15, cfg.Reconciliation.EarlyDays)
		assert.Equal(t, 2, cfg.Reconciliation.GraceDays)
		assert.False(t, cfg.IsProduction())
	})

	t.Run("environment overrides defaults", func(t *testing.T) {
		t.Setenv("CONCILIACION_APP_PORT", "9090")
		t.Setenv("CONCILIACION_APP_ENV", "production")
		t.Setenv("CONCILIACION_DATABASE_DRIVER", "POSTGRES")
		t.Setenv("CONCILIACION_DATABASE_DSN", "host=db user=app dbname=conciliacion")
		t.Setenv("CONCILIACION_REDIS_ENABLED", "true")
		t.Setenv("CONCILIACION_REDIS_TTL", "30m")
		t.Setenv("CONCILIACION_RECONCILIATION_GRACE_DAYS", "3")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9090", cfg.App.Port)
		assert.True(t, cfg.IsProduction())
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, "host=db user=app dbname=conciliacion", cfg.Database.DSN)
		assert.True(t, cfg.Redis.Enabled)
		assert.Equal(t, 30*time.Minute, cfg.Redis.TTL)
		assert.Equal(t, 3, cfg.Reconciliation.GraceDays)
	})

	t.Run("rejects unknown database driver", func(t *testing.T) {
		t.Setenv("CONCILIACION_DATABASE_DRIVER", "mysql")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.driver")
	})
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
app:
  port: "7000"
log:
  level: debug
  format: console
reconciliation:
  amount_tolerance: 0.05
  early_days: 10
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.App.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.InDelta(t, 0.05, cfg.Reconciliation.AmountTolerance, 1e-12)
	assert.Equal(t, 10, cfg.Reconciliation.EarlyDays)
	assert.Equal(t, 2, cfg.Reconciliation.GraceDays, "unset keys keep their defaults")
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
