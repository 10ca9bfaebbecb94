package main

import (
	"context"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/cx-tal-miterani/bus-booking-system/internal/activities"
	"github.com/cx-tal-miterani/bus-booking-system/internal/config"
	"github.com/cx-tal-miterani/bus-booking-system/internal/inventory"
	"github.com/cx-tal-miterani/bus-booking-system/internal/logger"
	"github.com/cx-tal-miterani/bus-booking-system/internal/storage/stores"
	"github.com/cx-tal-miterani/bus-booking-system/internal/workflows"
)

func main() {
	ctx := context.Background()
	cfg := config.Load()
	log := logger.Must("temporal-worker", cfg.IsDevelopment())
	defer log.Sync()

	if cfg.StoreDriver == config.DriverBadger {
		log.Fatal("The badger store is embedded in the API server; run it with TEMPORAL_EMBEDDED_WORKER=true instead")
	}

	// Connect to storage
	log.Info("Connecting to store...", zap.String("driver", cfg.StoreDriver))
	store, err := stores.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to open store", zap.Error(err))
	}
	defer store.Close(ctx)
	log.Info("Connected to store")

	// Connect to Temporal
	log.Info("Connecting to Temporal...", zap.String("host", cfg.TemporalHost))
	c, err := client.Dial(client.Options{
		HostPort: cfg.TemporalHost,
	})
	if err != nil {
		log.Fatal("Failed to connect to Temporal", zap.Error(err))
	}
	defer c.Close()
	log.Info("Connected to Temporal")

	// Create worker
	w := worker.New(c, cfg.TaskQueue, worker.Options{})
	workflows.Register(w, activities.New(inventory.NewManager(store, log.Named("inventory"))))

	if err := workflows.ScheduleCron(ctx, c, cfg.TaskQueue, cfg.ReconcileCron); err != nil {
		log.Fatal("Failed to schedule reconciliation", zap.Error(err))
	}
	log.Info("Reconciliation scheduled", zap.String("cron", cfg.ReconcileCron))

	// Start worker
	log.Info("Starting Temporal worker...", zap.String("taskQueue", cfg.TaskQueue))
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal("Worker failed", zap.Error(err))
	}
}
