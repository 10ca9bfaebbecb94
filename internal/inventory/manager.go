// Package inventory owns the Trip aggregate: seat-array repair, the single
// seat mutation path and admin trip management.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cx-tal-miterani/bus-booking-system/internal/apperror"
	"github.com/cx-tal-miterani/bus-booking-system/internal/metrics"
	"github.com/cx-tal-miterani/bus-booking-system/internal/models"
	"github.com/cx-tal-miterani/bus-booking-system/internal/storage"
)

// MaxWriteAttempts bounds retries of a conditional trip write that lost a race
const MaxWriteAttempts = 3

// Manager handles trip inventory reads, repairs and admin edits
type Manager struct {
	store  storage.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewManager creates a new inventory manager
func NewManager(store storage.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ApplySeatMutation is the only path that changes seat booking state
func (m *Manager) ApplySeatMutation(trip *models.Trip, mut SeatMutation) []int {
	return applySeatMutation(trip, mut)
}

// LoadAndRepair fetches a trip, repairing and persisting its seat array if needed
func (m *Manager) LoadAndRepair(ctx context.Context, tripID string) (*models.Trip, error) {
	trip, _, err := m.RepairTrip(ctx, tripID)
	return trip, err
}

// RepairTrip is LoadAndRepair that also reports whether a repair was written
func (m *Manager) RepairTrip(ctx context.Context, tripID string) (*models.Trip, bool, error) {
	var (
		trip     *models.Trip
		repaired bool
	)
	err := m.inUnit(ctx, func(tx storage.Tx) error {
		var err error
		trip, repaired, err = m.loadAndRepairTx(ctx, tx, tripID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return trip, repaired, nil
}

// LoadAndRepairTx is LoadAndRepair inside a caller-owned unit of work. The
// repaired trip is written only if something changed, then re-read so the
// caller sees the stored state.
func (m *Manager) LoadAndRepairTx(ctx context.Context, tx storage.Tx, tripID string) (*models.Trip, error) {
	trip, _, err := m.loadAndRepairTx(ctx, tx, tripID)
	return trip, err
}

func (m *Manager) loadAndRepairTx(ctx context.Context, tx storage.Tx, tripID string) (*models.Trip, bool, error) {
	for attempt := 1; ; attempt++ {
		trip, err := tx.GetTrip(ctx, tripID)
		if err != nil {
			return nil, false, apperror.FromStorage(err, "Trip")
		}
		if !Repair(trip) {
			return trip, false, nil
		}

		err = tx.SaveTrip(ctx, trip)
		if errors.Is(err, storage.ErrStaleWrite) && attempt < MaxWriteAttempts {
			continue
		}
		if err != nil {
			return nil, false, apperror.FromStorage(err, "Trip")
		}

		metrics.InventoryRepairs.Inc()
		m.logger.Info("repaired trip seat inventory",
			zap.String("tripId", tripID),
			zap.Int("totalSeats", trip.TotalSeats),
			zap.Int("availableSeats", trip.AvailableSeats),
		)

		stored, err := tx.GetTrip(ctx, tripID)
		if err != nil {
			return nil, false, apperror.FromStorage(err, "Trip")
		}
		return stored, true, nil
	}
}

// ListAndRepair lists trips matching filter ordered by date and time. Each
// trip needing repair is repaired in its own unit, so one contended trip
// never fails the listing.
func (m *Manager) ListAndRepair(ctx context.Context, filter models.TripFilter) ([]models.Trip, error) {
	filter.Source = strings.TrimSpace(filter.Source)
	filter.Destination = strings.TrimSpace(filter.Destination)

	var trips []models.Trip
	err := m.inUnit(ctx, func(tx storage.Tx) error {
		var err error
		trips, err = tx.ListTrips(ctx, filter)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.Trip, 0, len(trips))
	for i := range trips {
		trip := &trips[i]
		if !NeedsRepair(trip) {
			out = append(out, *trip)
			continue
		}

		repaired, err := m.LoadAndRepair(ctx, trip.ID)
		switch {
		case err == nil:
			out = append(out, *repaired)
		case errors.Is(err, apperror.ErrNotFound):
			// deleted since the listing was read
		default:
			m.logger.Warn("failed to persist trip repair during listing",
				zap.String("tripId", trip.ID), zap.Error(err))
			Repair(trip)
			out = append(out, *trip)
		}
	}
	return out, nil
}

// CreateTrip validates req and stores a trip with a fresh seat map
func (m *Manager) CreateTrip(ctx context.Context, req models.CreateTripRequest) (*models.Trip, error) {
	date, err := validateTrip(req.Source, req.Destination, req.Date, req.Time, req.Price, req.TotalSeats)
	if err != nil {
		return nil, err
	}

	now := m.now()
	trip := &models.Trip{
		ID:             uuid.New().String(),
		Source:         strings.TrimSpace(req.Source),
		Destination:    strings.TrimSpace(req.Destination),
		Date:           date,
		Time:           req.Time,
		Price:          req.Price,
		TotalSeats:     req.TotalSeats,
		Seats:          NewSeats(req.TotalSeats),
		AvailableSeats: req.TotalSeats,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = m.inUnit(ctx, func(tx storage.Tx) error {
		return tx.InsertTrip(ctx, trip)
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("trip created",
		zap.String("tripId", trip.ID),
		zap.String("source", trip.Source),
		zap.String("destination", trip.Destination),
	)
	return trip, nil
}

// UpdateTrip patches trip fields. Seat state is never patched directly;
// a TotalSeats change resizes the seat map and is refused when it would
// drop a booked seat.
func (m *Manager) UpdateTrip(ctx context.Context, tripID string, req models.UpdateTripRequest) (*models.Trip, error) {
	var trip *models.Trip
	err := m.inUnit(ctx, func(tx storage.Tx) error {
		for attempt := 1; ; attempt++ {
			current, err := m.LoadAndRepairTx(ctx, tx, tripID)
			if err != nil {
				return err
			}
			if err := applyPatch(current, req); err != nil {
				return err
			}

			err = tx.SaveTrip(ctx, current)
			if errors.Is(err, storage.ErrStaleWrite) && attempt < MaxWriteAttempts {
				continue
			}
			if err != nil {
				return apperror.FromStorage(err, "Trip")
			}
			trip = current
			return nil
		}
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("trip updated", zap.String("tripId", tripID))
	return trip, nil
}

func applyPatch(trip *models.Trip, req models.UpdateTripRequest) error {
	source, destination, date, clock := trip.Source, trip.Destination, trip.Date.Format(models.DateLayout), trip.Time
	price, total := trip.Price, trip.TotalSeats
	if req.Source != nil {
		source = *req.Source
	}
	if req.Destination != nil {
		destination = *req.Destination
	}
	if req.Date != nil {
		date = *req.Date
	}
	if req.Time != nil {
		clock = *req.Time
	}
	if req.Price != nil {
		price = *req.Price
	}
	if req.TotalSeats != nil {
		total = *req.TotalSeats
	}

	parsed, err := validateTrip(source, destination, date, clock, price, total)
	if err != nil {
		return err
	}
	if err := resize(trip, total); err != nil {
		return err
	}

	trip.Source = strings.TrimSpace(source)
	trip.Destination = strings.TrimSpace(destination)
	trip.Date = parsed
	trip.Time = clock
	trip.Price = price
	return nil
}

// resize changes the seat map to total seats, keeping existing seat state
func resize(trip *models.Trip, total int) error {
	if total == trip.TotalSeats {
		return nil
	}
	if total < trip.TotalSeats {
		var blocked []int
		for _, s := range trip.Seats {
			if s.Number > total && s.IsBooked {
				blocked = append(blocked, s.Number)
			}
		}
		if len(blocked) > 0 {
			labels, nums := models.FormatSeatLabels(blocked)
			return apperror.InvalidRequest(
				"Cannot reduce total seats to %d: seat(s) %s (%s) are booked", total, labels, nums)
		}
	}
	trip.TotalSeats = total
	Repair(trip)
	return nil
}

// DeleteTrip removes a trip. Existing bookings keep their trip snapshot.
func (m *Manager) DeleteTrip(ctx context.Context, tripID string) error {
	err := m.inUnit(ctx, func(tx storage.Tx) error {
		return apperror.FromStorage(tx.DeleteTrip(ctx, tripID), "Trip")
	})
	if err != nil {
		return err
	}
	m.logger.Info("trip deleted", zap.String("tripId", tripID))
	return nil
}

// ReconcileReport summarizes a full inventory reconciliation pass
type ReconcileReport struct {
	Scanned  int      `json:"scanned"`
	Repaired int      `json:"repaired"`
	Failed   []string `json:"failed,omitempty"`
}

// ReconcileAll repairs every stored trip
func (m *Manager) ReconcileAll(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	var trips []models.Trip
	err := m.inUnit(ctx, func(tx storage.Tx) error {
		var err error
		trips, err = tx.ListTrips(ctx, models.TripFilter{})
		return err
	})
	if err != nil {
		return report, err
	}

	for i := range trips {
		report.Scanned++
		if !NeedsRepair(&trips[i]) {
			continue
		}
		_, repaired, err := m.RepairTrip(ctx, trips[i].ID)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				continue
			}
			report.Failed = append(report.Failed, trips[i].ID)
			m.logger.Warn("reconcile failed", zap.String("tripId", trips[i].ID), zap.Error(err))
			continue
		}
		if repaired {
			report.Repaired++
		}
	}
	return report, nil
}

// inUnit runs fn in one unit of work, committing on success and rolling back
// otherwise. A commit-time conflict reruns the whole unit.
func (m *Manager) inUnit(ctx context.Context, fn func(tx storage.Tx) error) error {
	for attempt := 1; ; attempt++ {
		tx, err := m.store.Begin(ctx)
		if err != nil {
			return apperror.Storage(err)
		}

		if err := fn(tx); err != nil {
			_ = tx.Rollback(ctx)
			return apperror.FromStorage(err, "Trip")
		}

		err = tx.Commit(ctx)
		if err == nil {
			return nil
		}
		_ = tx.Rollback(ctx)
		if errors.Is(err, storage.ErrTxConflict) && attempt < MaxWriteAttempts {
			continue
		}
		return apperror.FromStorage(err, "Trip")
	}
}

func validateTrip(source, destination, date, clock string, price float64, total int) (time.Time, error) {
	var problems []string
	if strings.TrimSpace(source) == "" {
		problems = append(problems, "source is required")
	}
	if strings.TrimSpace(destination) == "" {
		problems = append(problems, "destination is required")
	}
	parsed, err := time.Parse(models.DateLayout, date)
	if err != nil {
		problems = append(problems, fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", date))
	}
	if _, err := time.Parse("15:04", clock); err != nil {
		problems = append(problems, fmt.Sprintf("invalid time %q, expected HH:MM", clock))
	}
	if price < 0 {
		problems = append(problems, "price must not be negative")
	}
	if total < 1 {
		problems = append(problems, "totalSeats must be at least 1")
	}
	if total > models.MaxSeats {
		problems = append(problems, fmt.Sprintf("totalSeats must be at most %d", models.MaxSeats))
	}
	if len(problems) > 0 {
		return time.Time{}, apperror.InvalidRequest("%s", strings.Join(problems, "; "))
	}
	return parsed, nil
}
