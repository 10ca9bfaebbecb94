// Package stores opens the storage backend selected by configuration.
package stores

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cx-tal-miterani/bus-booking-system/internal/config"
	"github.com/cx-tal-miterani/bus-booking-system/internal/storage"
	"github.com/cx-tal-miterani/bus-booking-system/internal/storage/badgerstore"
	"github.com/cx-tal-miterani/bus-booking-system/internal/storage/mongostore"
	"github.com/cx-tal-miterani/bus-booking-system/internal/storage/pgstore"
)

// Open returns the store named by cfg.StoreDriver
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.Store, error) {
	var (
		s   storage.Store
		err error
	)
	switch cfg.StoreDriver {
	case config.DriverBadger:
		s, err = badgerstore.Open(badgerstore.Options{
			Path:         cfg.BadgerPath,
			Transactions: cfg.BadgerTransactions,
			Logger:       logger.Named("badger"),
		})
	case config.DriverMongo:
		s, err = mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDatabase, logger.Named("mongo"))
	case config.DriverPostgres:
		s, err = pgstore.Open(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("store opened", zap.String("driver", cfg.StoreDriver))
	return s, nil
}
