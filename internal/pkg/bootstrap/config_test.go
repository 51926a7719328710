package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  store_id: store-file
  port: 9000
payment:
  base_url: http://pay.internal
  timeout: 3s
checkout:
  lock_backend: zookeeper
  policy: "items <= 10"
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("STORE_ID", "store-env")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "store-env", cfg.App.StoreID)
	assert.Equal(t, 9000, cfg.App.Port)
	assert.Equal(t, "http://pay.internal", cfg.Payment.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Payment.Timeout)
	assert.Equal(t, "zookeeper", cfg.Checkout.LockBackend)
	assert.Equal(t, "items <= 10", cfg.Checkout.Policy)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Infra.Kafka.Brokers)
	// 未覆盖的字段保留默认值
	assert.Equal(t, "order-notifications", cfg.Infra.Kafka.NotificationTopic)
	assert.Same(t, cfg, GetCurrentConfig())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"missing store", func(c *Config) { c.App.StoreID = "" }, false},
		{"unknown lock backend", func(c *Config) { c.Checkout.LockBackend = "etcd" }, false},
		{"zero payment timeout", func(c *Config) { c.Payment.Timeout = 0 }, false},
		{"redis lock ttl shorter than payment calls", func(c *Config) { c.Checkout.LockTTL = 30 * time.Second }, false},
		{"redis lock ttl covers payment calls", func(c *Config) { c.Payment.Timeout = 5 * time.Second; c.Checkout.LockTTL = 20 * time.Second }, true},
		{"zookeeper lock ignores ttl", func(c *Config) { c.Checkout.LockBackend = "zookeeper"; c.Checkout.LockTTL = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLoadConfig_TimeoutEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PAYMENT_TIMEOUT", "4s")
	t.Setenv("CHECKOUT_LOCK_TTL", "20s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 4*time.Second, cfg.Payment.Timeout)
	assert.Equal(t, 20*time.Second, cfg.Checkout.LockTTL)

	t.Setenv("CHECKOUT_LOCK_TTL", "10s")
	_, err = LoadConfig()
	assert.ErrorContains(t, err, "checkout.lock_ttl")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := LoadConfig()
	assert.Error(t, err)
}
