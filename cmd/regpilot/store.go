package main

import (
	"context"
	"fmt"

	"github.com/entrhq/regpilot/pkg/config"
	"github.com/entrhq/regpilot/pkg/license"
)

// openStore opens the business store selected by cfg.Driver.
func openStore(ctx context.Context, cfg config.StoreConfig) (license.Store, error) {
	switch cfg.Driver {
	case config.StoreMemory:
		return license.NewMemoryStore(), nil
	case config.StoreSQLite:
		return license.OpenSQLite(cfg.SQLitePath)
	case config.StoreMongo:
		return license.OpenMongo(ctx, license.MongoOptions{
			URI:      cfg.MongoURI,
			Database: cfg.MongoDatabase,
			Timeout:  cfg.OpTimeout.Std(),
		})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
