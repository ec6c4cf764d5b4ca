package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/config/configloader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
server:
  port: 8080
  timeout:
    read: 1s
    write: 1s
    idle: 1s
    readHeader: 1s
grpc:
  port: "9090"
persistence:
  backend: file
file:
  productsPath: p.json
  cartsPath: c.json
websocket:
  path: /ws
  sendBuffer: 4
  writeTimeout: 1s
  pongTimeout: 10s
  maxMessageSize: 1024
catalog:
  defaultLimit: 10
  maxLimit: 50
shutdown:
  timeout: 5s
`

func load(t *testing.T, yaml string, env map[string]string) (*Config, error) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	for k, v := range env {
		t.Setenv(k, v)
	}
	return configloader.LoadFrom[*Config]("storefront", path, filepath.Join(dir, ".env"))
}

func Test_Config_Load(t *testing.T) {
	testCases := []struct {
		name      string
		env       map[string]string
		expectErr bool
		check     func(t *testing.T, cfg *Config)
	}{
		{
			name: "file backend",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, config.BackendFile, cfg.Persistence.Backend)
				assert.Equal(t, "p.json", cfg.File.ProductsPath)
				assert.Equal(t, 5*time.Second, cfg.GRPC.HealthInterval)
				assert.Equal(t, cfg.File, cfg.Backends().File)
				assert.Contains(t, cfg.String(), "--- File Store ---")
			},
		},
		{
			name:      "unconfigured mongo is only checked when selected",
			env:       map[string]string{"STOREFRONT_PERSISTENCE_BACKEND": "mongo"},
			expectErr: true,
		},
		{
			name: "mongo from env",
			env: map[string]string{
				"STOREFRONT_PERSISTENCE_BACKEND": "mongo",
				"STOREFRONT_MONGO_URI":           "mongodb://localhost:27017",
				"STOREFRONT_MONGO_DATABASE":      "shop",
				"STOREFRONT_MONGO_TIMEOUT":       "2s",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "shop", cfg.Mongo.Database)
				assert.Equal(t, 2*time.Second, cfg.Mongo.Timeout)
			},
		},
		{
			name:      "nats enabled without url",
			env:       map[string]string{"STOREFRONT_NATS_ENABLED": "true"},
			expectErr: true,
		},
		{
			name:      "short auth token",
			env:       map[string]string{"STOREFRONT_AUTH_TOKEN": "abc"},
			expectErr: true,
		},
		{
			name:      "unknown backend",
			env:       map[string]string{"STOREFRONT_PERSISTENCE_BACKEND": "redis"},
			expectErr: true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// when
			cfg, err := load(t, baseYAML, tc.env)

			// then
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tc.check(t, cfg)
		})
	}
}

func Test_Config_StringMasksCredentials(t *testing.T) {
	// given
	cfg := &Config{
		Persistence: config.PersistenceConfig{Backend: config.BackendPostgres},
		Database:    config.DatabaseConfig{URL: "postgres://user:secret@db:5432/shop"},
		Auth:        config.AuthConfig{Token: "supersecret"},
	}

	// when
	out := cfg.String()

	// then
	assert.NotContains(t, out, "secret")
	assert.Contains(t, out, "postgres://****@db:5432/shop")
}

func Test_NotifierConfig_Validate(t *testing.T) {
	valid := func() *NotifierConfig {
		return &NotifierConfig{
			Shutdown: config.ShutdownConfig{Timeout: time.Second},
			Nats:     config.NATSConfig{Enabled: true, Url: "nats://localhost:4222", Timeout: time.Second, Stream: "STOREFRONT"},
			Subscriber: config.SubscriberConfig{
				Stream: "STOREFRONT", Subject: "storefront.orders.placed", Consumer: "order-notifier",
				Batch: 1, Timeout: time.Second, Interval: time.Second, Workers: 1,
			},
		}
	}
	testCases := []struct {
		name      string
		mutate    func(c *NotifierConfig)
		expectErr bool
	}{
		{name: "valid", mutate: func(*NotifierConfig) {}},
		{name: "nats disabled", mutate: func(c *NotifierConfig) { c.Nats.Enabled = false }, expectErr: true},
		{name: "no workers", mutate: func(c *NotifierConfig) { c.Subscriber.Workers = 0 }, expectErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			cfg := valid()
			tc.mutate(cfg)

			// when
			err := cfg.Validate()

			// then
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, cfg.Probes.ReadinessFileName)
		})
	}
}
