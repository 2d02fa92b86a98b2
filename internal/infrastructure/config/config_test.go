package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable the tests touch; viper ignores empty values.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"MIGRATOR_APP_ENV",
		"MIGRATOR_DATABASE_DRIVER",
		"MIGRATOR_DATABASE_PASSWORD",
		"MIGRATOR_DATABASE_SSLMODE",
		"MIGRATOR_DATABASE_MAX_OPEN_CONNS",
		"MIGRATOR_DATABASE_MAX_IDLE_CONNS",
		"MIGRATOR_CACHE_BACKEND",
		"MIGRATOR_CACHE_TTL",
		"MIGRATOR_RETRY_ATTEMPTS",
		"MIGRATOR_RETRY_BASE_DELAY",
		"MIGRATOR_RETRY_MAX_DELAY",
		"MIGRATOR_MIGRATION_MAPPING_FILE",
		"MIGRATOR_STORAGE_S3_ENABLED",
		"MIGRATOR_STORAGE_BUCKET",
		"MIGRATOR_TELEMETRY_SAMPLING_RATIO",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "migrator", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Equal(t, "migrator.db", cfg.Database.Path)
		assert.Equal(t, 10, cfg.Database.MaxOpenConns)
		assert.Equal(t, 2, cfg.Database.MaxIdleConns)
		assert.Equal(t, "memory", cfg.Cache.Backend)
		assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
		assert.Equal(t, "migration:", cfg.Cache.KeyPrefix)
		assert.Equal(t, 3, cfg.Retry.Attempts)
		assert.Equal(t, 200*time.Millisecond, cfg.Retry.BaseDelay)
		assert.Equal(t, "reports", cfg.Migration.ReportDir)
		assert.Equal(t, 1.0, cfg.Telemetry.SamplingRatio)
		assert.False(t, cfg.Telemetry.Enabled)
	})

	t.Run("loads values from environment variables with MIGRATOR prefix", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MIGRATOR_DATABASE_DRIVER", "postgres")
		t.Setenv("MIGRATOR_CACHE_BACKEND", "redis")
		t.Setenv("MIGRATOR_CACHE_TTL", "2h")
		t.Setenv("MIGRATOR_RETRY_ATTEMPTS", "5")
		t.Setenv("MIGRATOR_MIGRATION_MAPPING_FILE", "/etc/mappings/qb.json")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, "redis", cfg.Cache.Backend)
		assert.Equal(t, 2*time.Hour, cfg.Cache.TTL)
		assert.Equal(t, 5, cfg.Retry.Attempts)
		assert.Equal(t, "/etc/mappings/qb.json", cfg.Migration.MappingFile)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MIGRATOR_DATABASE_MAX_OPEN_CONNS", "3")
		t.Setenv("MIGRATOR_DATABASE_MAX_IDLE_CONNS", "5")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("rejects unknown driver", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MIGRATOR_DATABASE_DRIVER", "mysql")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.driver")
	})

	t.Run("rejects unknown cache backend", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MIGRATOR_CACHE_BACKEND", "memcached")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cache.backend")
	})

	t.Run("rejects max delay shorter than base delay", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MIGRATOR_RETRY_BASE_DELAY", "10s")
		t.Setenv("MIGRATOR_RETRY_MAX_DELAY", "1s")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "retry.max_delay")
	})

	t.Run("requires bucket when s3 enabled", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MIGRATOR_STORAGE_S3_ENABLED", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage.bucket")
	})

	t.Run("rejects sampling ratio out of range", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MIGRATOR_TELEMETRY_SAMPLING_RATIO", "1.5")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sampling_ratio")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	t.Run("requires database.password for postgres in production", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MIGRATOR_APP_ENV", "production")
		t.Setenv("MIGRATOR_DATABASE_DRIVER", "postgres")
		t.Setenv("MIGRATOR_DATABASE_SSLMODE", "require")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("rejects disabled sslmode in production", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MIGRATOR_APP_ENV", "production")
		t.Setenv("MIGRATOR_DATABASE_DRIVER", "postgres")
		t.Setenv("MIGRATOR_DATABASE_PASSWORD", "secret")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sslmode")
	})

	t.Run("sqlite needs no credentials in production", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MIGRATOR_APP_ENV", "production")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})
}

func TestLoadFrom(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "migrator.toml")
	content := `
[database]
driver = "sqlite"
path = "/var/lib/migrator/history.db"

[cache]
backend = "redis"
ttl = "30m"

[migration]
mapping_file = "mappings/quickbooks_odoo.json"
source_file = "exports/quickbooks.json"
tenant_id = "6f1c1d2e-8a40-4a4e-9d2f-0c2b4f1e9a11"

[storage]
s3_enabled = true
bucket = "migration-reports"
region = "eu-west-1"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/migrator/history.db", cfg.Database.Path)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "mappings/quickbooks_odoo.json", cfg.Migration.MappingFile)
	assert.Equal(t, "exports/quickbooks.json", cfg.Migration.SourceFile)
	assert.True(t, cfg.Storage.S3Enabled)
	assert.Equal(t, "migration-reports", cfg.Storage.Bucket)

	t.Run("env overrides file", func(t *testing.T) {
		t.Setenv("MIGRATOR_CACHE_BACKEND", "memory")
		cfg, err := LoadFrom(path)
		require.NoError(t, err)
		assert.Equal(t, "memory", cfg.Cache.Backend)
	})

	t.Run("missing explicit file is an error", func(t *testing.T) {
		_, err := LoadFrom(filepath.Join(dir, "nope.toml"))
		assert.Error(t, err)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	sqlite := DatabaseConfig{Driver: "sqlite", Path: "history.db"}
	assert.Equal(t, "history.db", sqlite.DSN())

	pg := DatabaseConfig{
		Driver: "postgres", Host: "db", Port: 5432, User: "mig",
		Password: "s3cret", DBName: "migrator", SSLMode: "require",
	}
	assert.Equal(t, "postgres://mig:s3cret@db:5432/migrator?sslmode=require", pg.DSN())
}
