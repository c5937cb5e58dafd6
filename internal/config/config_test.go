package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "APP", cfg.Verification.ApplicationPrefix)
	assert.Equal(t, "COST", cfg.Verification.CostRequestPrefix)
	assert.Equal(t, "local", cfg.Signatures.Backend)
	assert.Equal(t, "none", cfg.Cache.Backend)
	assert.Equal(t, "gochannel", cfg.Events.Backend)
	assert.Equal(t, "approval.events", cfg.Events.Topic)
	assert.Equal(t, 5*time.Second, cfg.Database.BusyTimeout)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  path: /var/lib/approvals/engine.db
signatures:
  backend: minio
  endpoint: minio:9000
  bucket: sigs
  presign_ttl: 2h
cache:
  backend: redis
  addr: redis:6379
  ttl: 30m
events:
  backend: kafka
`)
	t.Setenv("APPROVAL_SERVER_PORT", "9191")
	t.Setenv("MINIO_ACCESS_KEY", "minio-access")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "/var/lib/approvals/engine.db", cfg.Database.Path)
	assert.Equal(t, "minio-access", cfg.Signatures.AccessKey)
	assert.Equal(t, 2*time.Hour, cfg.Signatures.PresignTTL)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.Brokers)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"identical prefixes", func(c *Config) { c.Verification.CostRequestPrefix = "APP" }},
		{"lower case prefix", func(c *Config) { c.Verification.ApplicationPrefix = "app" }},
		{"prefix starting with digit", func(c *Config) { c.Verification.ApplicationPrefix = "1APP" }},
		{"unknown signature backend", func(c *Config) { c.Signatures.Backend = "s3" }},
		{"minio without endpoint", func(c *Config) { c.Signatures.Backend = "minio" }},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "memcached" }},
		{"kafka without brokers", func(c *Config) { c.Events.Backend = "kafka"; c.Events.Brokers = nil }},
		{"cache outlives presigned urls", func(c *Config) {
			c.Signatures.Backend = "minio"
			c.Signatures.Endpoint = "minio:9000"
			c.Signatures.PresignTTL = time.Hour
			c.Cache.Backend = "redis"
			c.Cache.TTL = 2 * time.Hour
		}},
		{"tracing without endpoint", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Endpoint = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, valid().Validate())
}

func TestToContainerConfig(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Events.Brokers = []string{"kafka-1:9092"}
	cfg.Cache.Backend = "redis"

	cc := cfg.ToContainerConfig()
	require.NoError(t, cc.Validate())

	assert.Equal(t, cfg.Database.Path, cc.Database.Path)
	assert.True(t, cc.Database.AutoMigrate)
	assert.Equal(t, "APP", cc.Verification.ApplicationPrefix)
	assert.Equal(t, "redis", cc.Cache.Backend)
	assert.Equal(t, []string{"kafka-1:9092"}, cc.Events.Brokers)
	assert.Equal(t, 24*time.Hour, cc.Signatures.PresignTTL)
}
