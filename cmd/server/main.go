package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/cx-tal-miterani/bus-booking-system/internal/activities"
	"github.com/cx-tal-miterani/bus-booking-system/internal/booking"
	"github.com/cx-tal-miterani/bus-booking-system/internal/config"
	"github.com/cx-tal-miterani/bus-booking-system/internal/events"
	"github.com/cx-tal-miterani/bus-booking-system/internal/handlers"
	"github.com/cx-tal-miterani/bus-booking-system/internal/inventory"
	"github.com/cx-tal-miterani/bus-booking-system/internal/logger"
	"github.com/cx-tal-miterani/bus-booking-system/internal/router"
	"github.com/cx-tal-miterani/bus-booking-system/internal/service"
	"github.com/cx-tal-miterani/bus-booking-system/internal/storage/stores"
	"github.com/cx-tal-miterani/bus-booking-system/internal/websocket"
	"github.com/cx-tal-miterani/bus-booking-system/internal/workflows"
)

func main() {
	cfg := config.Load()
	log := logger.Must("api-server", cfg.IsDevelopment())
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	store, err := stores.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			log.Warn("Failed to close store", zap.Error(err))
		}
	}()
	log.Info("Store opened", zap.String("driver", cfg.StoreDriver))

	// Live seat updates and booking events
	hub := websocket.NewHub(log.Named("ws"))
	go hub.Run(ctx)

	publisher := events.NewMulti(log).Add("websocket", hub)
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.EventsTopic)
		defer kafkaPublisher.Close()
		publisher.Add("kafka", kafkaPublisher)
		log.Info("Publishing booking events to Kafka",
			zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.EventsTopic))
	}

	inv := inventory.NewManager(store, log.Named("inventory"))
	coord := booking.NewCoordinator(store, inv, publisher, log.Named("booking"))

	// Temporal is optional for the API server; reconciliation runs inline
	// without it
	var temporalClient client.Client
	if cfg.TemporalHost != "" {
		temporalClient, err = client.Dial(client.Options{HostPort: cfg.TemporalHost})
		if err != nil {
			log.Warn("Temporal unavailable, reconciliation will run inline",
				zap.String("host", cfg.TemporalHost), zap.Error(err))
			temporalClient = nil
		} else {
			defer temporalClient.Close()
			log.Info("Connected to Temporal server", zap.String("host", cfg.TemporalHost))
		}
	}

	if temporalClient != nil && cfg.EmbeddedWorker {
		w := worker.New(temporalClient, cfg.TaskQueue, worker.Options{})
		workflows.Register(w, activities.New(inv))
		if err := w.Start(); err != nil {
			log.Fatal("Failed to start embedded worker", zap.Error(err))
		}
		defer w.Stop()
		if err := workflows.ScheduleCron(ctx, temporalClient, cfg.TaskQueue, cfg.ReconcileCron); err != nil {
			log.Warn("Failed to schedule reconciliation", zap.Error(err))
		}
		log.Info("Embedded reconciliation worker started", zap.String("taskQueue", cfg.TaskQueue))
	}

	bookingService := service.NewBookingService(service.Deps{
		Store:       store,
		Inventory:   inv,
		Coordinator: coord,
		Publisher:   publisher,
		Temporal:    temporalClient,
		TaskQueue:   cfg.TaskQueue,
		Logger:      log.Named("service"),
	})

	h := handlers.NewHandler(bookingService, log.Named("http"), cfg.IsDevelopment())
	r := router.SetupRouter(h, hub, router.Options{
		JWTSecret:   cfg.JWTSecret,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      log.Named("http"),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("API server starting", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		os.Exit(1)
	}

	log.Info("Server stopped")
}
