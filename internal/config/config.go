// Package config holds the configuration of the storefront and order-notifier binaries.
package config

import (
	"fmt"
	"strings"

	"github.com/abgdnv/storefront/internal/store"
	"github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/config/configloader"
)

var (
	_ configloader.Validator = (*Config)(nil)
	_ configloader.Validator = (*NotifierConfig)(nil)
)

// Config is the configuration of the storefront server.
type Config struct {
	HTTPServer  config.HTTPConfig        `koanf:"server"`
	GRPC        config.GrpcServerConfig  `koanf:"grpc"`
	Log         config.LogConfig         `koanf:"log"`
	PProf       config.PProfConfig       `koanf:"pprof"`
	Shutdown    config.ShutdownConfig    `koanf:"shutdown"`
	Persistence config.PersistenceConfig `koanf:"persistence"`
	File        config.FileStoreConfig   `koanf:"file"`
	Mongo       config.MongoConfig       `koanf:"mongo"`
	Database    config.DatabaseConfig    `koanf:"database"`
	Nats        config.NATSConfig        `koanf:"nats"`
	Auth        config.AuthConfig        `koanf:"auth"`
	WebSocket   config.WebSocketConfig   `koanf:"websocket"`
	Catalog     config.CatalogConfig     `koanf:"catalog"`
	Telemetry   config.TelemetryConfig   `koanf:"telemetry"`
}

// Backends returns the persistence sections in the shape store.Open expects.
func (c *Config) Backends() store.Backends {
	return store.Backends{
		Persistence: c.Persistence,
		File:        c.File,
		Mongo:       c.Mongo,
		Database:    c.Database,
	}
}

func (c *Config) String() string {
	var b strings.Builder
	b.WriteString(c.HTTPServer.String())
	b.WriteString(c.GRPC.String())
	b.WriteString(c.Persistence.String())
	switch c.Persistence.Backend {
	case config.BackendFile:
		b.WriteString(c.File.String())
	case config.BackendMongo:
		b.WriteString(c.Mongo.String())
	case config.BackendPostgres:
		b.WriteString(c.Database.String())
	}
	b.WriteString(c.Nats.String())
	b.WriteString(c.Auth.String())
	b.WriteString(c.WebSocket.String())
	b.WriteString(c.Catalog.String())
	b.WriteString(c.Telemetry.String())
	b.WriteString(c.Log.String())
	b.WriteString(c.PProf.String())
	b.WriteString(c.Shutdown.String())
	return b.String()
}

// Validate checks every section. Only the selected persistence backend is validated.
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		&c.HTTPServer,
		&c.GRPC,
		&c.Log,
		&c.PProf,
		&c.Shutdown,
		&c.Persistence,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}

	var backend interface{ Validate() error }
	switch c.Persistence.Backend {
	case config.BackendFile:
		backend = &c.File
	case config.BackendMongo:
		backend = &c.Mongo
	case config.BackendPostgres:
		backend = &c.Database
	}
	if err := backend.Validate(); err != nil {
		return err
	}

	for _, v := range []interface{ Validate() error }{&c.Nats, &c.Auth, &c.WebSocket, &c.Catalog, &c.Telemetry} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// NotifierConfig is the configuration of the order-notifier worker.
type NotifierConfig struct {
	Log        config.LogConfig        `koanf:"log"`
	PProf      config.PProfConfig      `koanf:"pprof"`
	Shutdown   config.ShutdownConfig   `koanf:"shutdown"`
	Nats       config.NATSConfig       `koanf:"nats"`
	Subscriber config.SubscriberConfig `koanf:"subscriber"`
	Probes     config.ProbesConfig     `koanf:"probes"`
}

func (c *NotifierConfig) String() string {
	var b strings.Builder
	b.WriteString(c.Nats.String())
	b.WriteString(c.Subscriber.String())
	b.WriteString(c.Probes.String())
	b.WriteString(c.Log.String())
	b.WriteString(c.PProf.String())
	b.WriteString(c.Shutdown.String())
	return b.String()
}

// Validate checks every section. The worker cannot run without NATS.
func (c *NotifierConfig) Validate() error {
	if !c.Nats.Enabled {
		return fmt.Errorf("order-notifier requires nats.enabled")
	}
	for _, v := range []interface{ Validate() error }{&c.Log, &c.PProf, &c.Shutdown, &c.Nats, &c.Subscriber, &c.Probes} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}
