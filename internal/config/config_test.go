package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://conocer.gob.mx", cfg.Site.BaseURL)
	assert.Equal(t, 8, cfg.Harvest.Workers)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 30, cfg.RateLimit.Ceiling)
	assert.Equal(t, 120, cfg.RateLimit.APICeiling)
	assert.Equal(t, "memory", cfg.Storage.Provider)
	assert.Equal(t, 24*time.Hour, cfg.DedupTTL())
	assert.Equal(t, time.Minute, cfg.RateWindow())
	assert.Equal(t, time.Minute, cfg.RecoveryTimeout())
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
site:
  base_url: https://registro.example.mx
harvest:
  workers: 16
  queue_depth: 512
  user_agent: registry-bot/1.0
  timeout_seconds: 45
breaker:
  failure_threshold: 3
  recovery_timeout_seconds: 120
ratelimit:
  ceiling: 10
  api_ceiling: 40
  window_seconds: 30
render:
  enabled: true
  max_parallel: 4
storage:
  provider: local
  base_dir: /tmp/harvester
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "https://registro.example.mx", cfg.Site.BaseURL)
	assert.Equal(t, 16, cfg.Harvest.Workers)
	assert.Equal(t, "registry-bot/1.0", cfg.Harvest.UserAgent)
	assert.Equal(t, 45*time.Second, cfg.FetchTimeout())
	assert.Equal(t, 3, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 2*time.Minute, cfg.RecoveryTimeout())
	assert.Equal(t, 10, cfg.RateLimit.Ceiling)
	assert.Equal(t, "local", cfg.Storage.Provider)
	assert.False(t, cfg.Logging.Development)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"relative base url", func(c *Config) { c.Site.BaseURL = "conocer.gob.mx" }},
		{"zero workers", func(c *Config) { c.Harvest.Workers = 0 }},
		{"zero rate ceiling", func(c *Config) { c.RateLimit.Ceiling = 0 }},
		{"render enabled without parallelism", func(c *Config) {
			c.Render.Enabled = true
			c.Render.MaxParallel = 0
		}},
		{"local storage without dir", func(c *Config) {
			c.Storage.Provider = "local"
			c.Storage.BaseDir = ""
		}},
		{"gcs storage without bucket", func(c *Config) {
			c.Storage.Provider = "gcs"
			c.Storage.GCSBucket = ""
		}},
		{"unknown storage provider", func(c *Config) { c.Storage.Provider = "s3" }},
		{"pubsub enabled without project", func(c *Config) {
			c.PubSub.Enabled = true
			c.PubSub.ProjectID = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
