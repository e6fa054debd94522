package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "mesh-registryd", cfg.App.Name)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "mesh.", cfg.NATS.Prefix)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "http://localhost:8402", cfg.Payment.FacilitatorURL)
	assert.Equal(t, 10000, cfg.Payment.TimeoutMS)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registryd.yaml")
	content := []byte(`
app:
  name: mesh-test
  log_level: debug
store:
  backend: postgres
database:
  host: db.internal
  database: mesh_test
nats:
  prefix: "test."
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mesh-test", cfg.App.Name)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "test.", cfg.NATS.Prefix)
	// Untouched keys keep their defaults.
	assert.Equal(t, 5432, cfg.Database.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Store.Backend = "sqlite" },
			wantErr: "store.backend",
		},
		{
			name: "postgres without database name",
			mutate: func(c *Config) {
				c.Store.Backend = "postgres"
				c.Database.Database = ""
			},
			wantErr: "database.database",
		},
		{
			name:    "negative settlement rate",
			mutate:  func(c *Config) { c.Payment.RatePerSecond = -1 },
			wantErr: "rate_per_second",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestGetDSN(t *testing.T) {
	c := DatabaseConfig{
		Host: "localhost", Port: 5432, User: "postgres", Password: "secret",
		Database: "mesh", SSLMode: "disable", PoolSize: 10,
	}
	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=secret dbname=mesh sslmode=disable pool_max_conns=10",
		c.GetDSN())
}

func TestGetRedisAddr(t *testing.T) {
	c := RedisConfig{Host: "cache.internal", Port: 6380}
	assert.Equal(t, "cache.internal:6380", c.GetRedisAddr())
}
