// Package activities holds the Temporal activities run by the reconciliation
// worker.
package activities

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/cx-tal-miterani/bus-booking-system/internal/apperror"
	"github.com/cx-tal-miterani/bus-booking-system/internal/inventory"
	"github.com/cx-tal-miterani/bus-booking-system/internal/models"
)

// Reconciler is the slice of the inventory manager the activities need
type Reconciler interface {
	RepairTrip(ctx context.Context, tripID string) (*models.Trip, bool, error)
	ReconcileAll(ctx context.Context) (inventory.ReconcileReport, error)
}

// Activities binds activity methods to the inventory manager
type Activities struct {
	inventory Reconciler
}

// New creates the activity set
func New(inv Reconciler) *Activities {
	return &Activities{inventory: inv}
}

// RepairTripResult is the outcome of RepairTrip
type RepairTripResult struct {
	TripID         string `json:"tripId"`
	Found          bool   `json:"found"`
	Repaired       bool   `json:"repaired"`
	TotalSeats     int    `json:"totalSeats"`
	AvailableSeats int    `json:"availableSeats"`
}

// ReconcileTrips repairs every stored trip
func (a *Activities) ReconcileTrips(ctx context.Context) (*inventory.ReconcileReport, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Reconciling trip inventory")

	report, err := a.inventory.ReconcileAll(ctx)
	if err != nil {
		return nil, err
	}

	logger.Info("Reconciliation finished",
		"scanned", report.Scanned, "repaired", report.Repaired, "failed", len(report.Failed))
	return &report, nil
}

// RepairTrip repairs a single trip. A missing trip is not an error.
func (a *Activities) RepairTrip(ctx context.Context, tripID string) (*RepairTripResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Repairing trip", "tripID", tripID)

	trip, repaired, err := a.inventory.RepairTrip(ctx, tripID)
	if errors.Is(err, apperror.ErrNotFound) {
		return &RepairTripResult{TripID: tripID}, nil
	}
	if errors.Is(err, apperror.ErrInvalidRequest) {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), "InvalidRequest", err)
	}
	if err != nil {
		return nil, err
	}

	return &RepairTripResult{
		TripID:         trip.ID,
		Found:          true,
		Repaired:       repaired,
		TotalSeats:     trip.TotalSeats,
		AvailableSeats: trip.AvailableSeats,
	}, nil
}
