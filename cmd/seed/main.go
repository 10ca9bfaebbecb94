// Command seed loads sample trips into the configured store and prints
// bearer tokens for local testing.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cx-tal-miterani/bus-booking-system/internal/auth"
	"github.com/cx-tal-miterani/bus-booking-system/internal/config"
	"github.com/cx-tal-miterani/bus-booking-system/internal/inventory"
	"github.com/cx-tal-miterani/bus-booking-system/internal/logger"
	"github.com/cx-tal-miterani/bus-booking-system/internal/models"
	"github.com/cx-tal-miterani/bus-booking-system/internal/storage/stores"
)

type sampleTrip struct {
	source, destination string
	daysAhead           int
	clock               string
	price               float64
	seats               int
}

var sampleTrips = []sampleTrip{
	{"New York", "Boston", 2, "08:00", 45, 40},
	{"Boston", "New York", 3, "10:30", 45, 40},
	{"Chicago", "Los Angeles", 5, "06:00", 120, 50},
	{"Atlanta", "Miami", 4, "09:15", 75, 45},
	{"New York", "Boston", 7, "14:00", 45, 40},
	{"Boston", "New York", 8, "16:30", 45, 40},
	{"Chicago", "Los Angeles", 10, "08:00", 120, 50},
	{"Atlanta", "Miami", 12, "11:45", 75, 45},
}

func main() {
	reset := flag.Bool("clear", false, "delete existing trips before seeding")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the printed tokens")
	flag.Parse()

	ctx := context.Background()
	cfg := config.Load()
	log := logger.Must("seed", true)
	defer log.Sync()

	store, err := stores.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to open store", zap.Error(err))
	}
	defer store.Close(ctx)

	inv := inventory.NewManager(store, log)

	if *reset {
		trips, err := inv.ListAndRepair(ctx, models.TripFilter{})
		if err != nil {
			log.Fatal("Failed to list trips", zap.Error(err))
		}
		for _, t := range trips {
			if err := inv.DeleteTrip(ctx, t.ID); err != nil {
				log.Fatal("Failed to delete trip", zap.String("tripId", t.ID), zap.Error(err))
			}
		}
		log.Info("Cleared trips", zap.Int("count", len(trips)))
	}

	today := time.Now().UTC()
	for _, s := range sampleTrips {
		trip, err := inv.CreateTrip(ctx, models.CreateTripRequest{
			Source:      s.source,
			Destination: s.destination,
			Date:        today.AddDate(0, 0, s.daysAhead).Format(models.DateLayout),
			Time:        s.clock,
			Price:       s.price,
			TotalSeats:  s.seats,
		})
		if err != nil {
			log.Fatal("Failed to create trip", zap.String("route", s.source+" -> "+s.destination), zap.Error(err))
		}
		log.Info("Created trip",
			zap.String("tripId", trip.ID),
			zap.String("route", trip.Source+" -> "+trip.Destination),
			zap.String("date", trip.Date.Format(models.DateLayout)),
			zap.String("time", trip.Time),
		)
	}

	for _, actor := range []models.Actor{
		{UserID: "admin", Name: "Admin User", Email: "admin@busbooking.com", Role: models.RoleAdmin},
		{UserID: "demo-user", Name: "Demo User", Email: "user@busbooking.com", Role: models.RoleUser},
	} {
		token, err := auth.GenerateToken(actor, cfg.JWTSecret, *tokenTTL)
		if err != nil {
			log.Fatal("Failed to sign token", zap.Error(err))
		}
		fmt.Printf("%s (%s): Bearer %s\n", actor.Email, actor.Role, token)
	}
}
