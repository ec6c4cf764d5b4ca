package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/abgdnv/storefront/pkg/bootstrap"
	"github.com/abgdnv/storefront/pkg/config"
)

// Backends carries the configuration of every persistence backend.
// Only the section named by Persistence.Backend is used.
type Backends struct {
	Persistence config.PersistenceConfig
	File        config.FileStoreConfig
	Mongo       config.MongoConfig
	Database    config.DatabaseConfig
}

// Open creates the store selected by cfg.Persistence.Backend. The choice is fixed for the
// lifetime of the returned Store.
func Open(ctx context.Context, cfg Backends, logger *slog.Logger) (Store, error) {
	switch cfg.Persistence.Backend {
	case config.BackendFile:
		logger.Info("using file store", "products", cfg.File.ProductsPath, "carts", cfg.File.CartsPath)
		return NewFileStore(cfg.File.ProductsPath, cfg.File.CartsPath), nil

	case config.BackendMongo:
		client, err := bootstrap.NewMongoClient(ctx, cfg.Mongo.URI, cfg.Mongo.Timeout)
		if err != nil {
			return nil, err
		}
		s, err := NewMongoStore(ctx, client, cfg.Mongo.Database)
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		logger.Info("using mongo store", "uri", config.MaskURL(cfg.Mongo.URI), "database", cfg.Mongo.Database)
		return s, nil

	case config.BackendPostgres:
		if err := Migrate(cfg.Database.URL); err != nil {
			return nil, err
		}
		pool, err := bootstrap.NewDbPool(ctx, cfg.Database.URL, cfg.Database.Timeout)
		if err != nil {
			return nil, err
		}
		logger.Info("using postgres store", "url", config.MaskURL(cfg.Database.URL))
		return NewPgStore(pool), nil

	default:
		return nil, fmt.Errorf("unknown persistence backend %q", cfg.Persistence.Backend)
	}
}
