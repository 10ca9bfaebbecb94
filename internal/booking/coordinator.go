// Package booking coordinates seat reservation and cancellation as one
// all-or-nothing unit of work over trips and bookings.
package booking

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cx-tal-miterani/bus-booking-system/internal/apperror"
	"github.com/cx-tal-miterani/bus-booking-system/internal/events"
	"github.com/cx-tal-miterani/bus-booking-system/internal/inventory"
	"github.com/cx-tal-miterani/bus-booking-system/internal/metrics"
	"github.com/cx-tal-miterani/bus-booking-system/internal/models"
	"github.com/cx-tal-miterani/bus-booking-system/internal/storage"
)

const publishTimeout = 5 * time.Second

// Coordinator creates, cancels and lists bookings
type Coordinator struct {
	store     storage.Store
	inventory *inventory.Manager
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewCoordinator creates a booking coordinator. A nil publisher discards events.
func NewCoordinator(store storage.Store, inv *inventory.Manager, publisher events.Publisher, logger *zap.Logger) *Coordinator {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:     store,
		inventory: inv,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateBooking reserves req.Seats on a trip for actor and records the booking.
// Either the seats are booked and the booking exists, or nothing changed.
func (c *Coordinator) CreateBooking(ctx context.Context, actor models.Actor, req models.CreateBookingRequest) (*models.Booking, error) {
	if actor.UserID == "" {
		return nil, apperror.Unauthorized("Authentication required")
	}
	tripID := strings.TrimSpace(req.TripID)
	if tripID == "" {
		return nil, apperror.InvalidRequest("Trip ID is required")
	}
	seats, err := NormalizeSeats(req.Seats)
	if err != nil {
		return nil, err
	}
	if !req.PaymentMethod.Valid() {
		return nil, apperror.InvalidRequest(
			"Invalid payment method %q: expected card, cash, upi or razorpay", req.PaymentMethod)
	}

	tx, err := c.store.Begin(ctx)
	if err != nil {
		return nil, apperror.Storage(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	trip, err := c.inventory.LoadAndRepairTx(ctx, tx, tripID)
	if err != nil {
		return nil, err
	}
	if err := checkRange(trip, seats); err != nil {
		return nil, err
	}
	if taken := alreadyBooked(trip, seats); len(taken) > 0 {
		metrics.BookingConflicts.WithLabelValues(metrics.StageInitialCheck).Inc()
		return nil, apperror.SeatsBooked(taken)
	}
	if trip.AvailableSeats < len(seats) {
		return nil, apperror.InsufficientInventory(trip.AvailableSeats)
	}

	booked, err := c.reserve(ctx, tx, tripID, seats, actor.UserID)
	if err != nil {
		return nil, err
	}

	now := c.now()
	booking := &models.Booking{
		ID:            uuid.New().String(),
		User:          models.UserRef{ID: actor.UserID, Name: actor.Name, Email: actor.Email},
		Trip:          booked.Summary(),
		Seats:         seats,
		TotalAmount:   math.Round(booked.Price*float64(len(seats))*100) / 100,
		PaymentMethod: req.PaymentMethod,
		Status:        models.BookingStatusConfirmed,
		BookingDate:   now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := tx.InsertBooking(ctx, booking); err != nil {
		if tx.Mode() == storage.BestEffort {
			c.releaseAfterFailedInsert(ctx, tx, tripID, seats, actor.UserID)
		}
		return nil, apperror.FromStorage(err, "Booking")
	}

	if err := tx.Commit(ctx); err != nil {
		if errors.Is(err, storage.ErrTxConflict) {
			metrics.BookingConflicts.WithLabelValues(metrics.StageCommit).Inc()
		}
		return nil, apperror.FromStorage(err, "Booking")
	}
	committed = true

	metrics.BookingsTotal.WithLabelValues("created").Inc()
	c.logger.Info("booking confirmed",
		zap.String("bookingId", booking.ID),
		zap.String("tripId", tripID),
		zap.String("userId", actor.UserID),
		zap.Ints("seats", seats),
		zap.Stringer("mode", tx.Mode()),
	)
	c.publish(ctx, events.FromBooking(events.BookingCreated, booking, booked, now))
	return booking, nil
}

// reserve re-reads the trip right before writing, re-checks the seats and
// books them with a conditional write. A lost write race re-reads and
// re-checks again, so a seat taken meanwhile surfaces as a conflict.
func (c *Coordinator) reserve(ctx context.Context, tx storage.Tx, tripID string, seats []int, userID string) (*models.Trip, error) {
	for attempt := 1; ; attempt++ {
		current, err := tx.GetTrip(ctx, tripID)
		if err != nil {
			return nil, apperror.FromStorage(err, "Trip")
		}
		inventory.Repair(current)

		if err := checkRange(current, seats); err != nil {
			return nil, err
		}
		if taken := alreadyBooked(current, seats); len(taken) > 0 {
			metrics.BookingConflicts.WithLabelValues(metrics.StageRecheck).Inc()
			return nil, apperror.SeatsTaken(taken)
		}
		if current.AvailableSeats < len(seats) {
			return nil, apperror.InsufficientInventory(current.AvailableSeats)
		}

		c.inventory.ApplySeatMutation(current, inventory.SeatMutation{Numbers: seats, Book: true, UserID: userID})

		err = tx.SaveTrip(ctx, current)
		if errors.Is(err, storage.ErrStaleWrite) {
			metrics.BookingConflicts.WithLabelValues(metrics.StageStaleWrite).Inc()
			if attempt < inventory.MaxWriteAttempts {
				continue
			}
		}
		if err != nil {
			return nil, apperror.FromStorage(err, "Trip")
		}
		return current, nil
	}
}

// releaseAfterFailedInsert undoes a seat reservation whose booking record
// could not be written. Only needed when writes are not transactional.
func (c *Coordinator) releaseAfterFailedInsert(ctx context.Context, tx storage.Tx, tripID string, seats []int, userID string) {
	ctx = context.WithoutCancel(ctx)
	if _, _, err := c.release(ctx, tx, tripID, seats, userID); err != nil {
		c.logger.Error("failed to release seats after booking insert failure",
			zap.String("tripId", tripID),
			zap.Ints("seats", seats),
			zap.Error(err),
		)
	}
}

// release frees seats held by userID on a trip and persists it. A missing
// trip is not an error; it returns a nil trip.
func (c *Coordinator) release(ctx context.Context, tx storage.Tx, tripID string, seats []int, userID string) (*models.Trip, []int, error) {
	for attempt := 1; ; attempt++ {
		trip, err := tx.GetTrip(ctx, tripID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, nil
		}
		if err != nil {
			return nil, nil, apperror.FromStorage(err, "Trip")
		}
		inventory.Repair(trip)

		released := c.inventory.ApplySeatMutation(trip, inventory.SeatMutation{Numbers: seats, UserID: userID})

		err = tx.SaveTrip(ctx, trip)
		if errors.Is(err, storage.ErrStaleWrite) && attempt < inventory.MaxWriteAttempts {
			continue
		}
		if err != nil {
			return nil, nil, apperror.FromStorage(err, "Trip")
		}
		return trip, released, nil
	}
}

// CancelBooking cancels actor's booking and frees its seats. If the trip no
// longer exists the booking is still cancelled.
func (c *Coordinator) CancelBooking(ctx context.Context, actor models.Actor, bookingID string) (*models.Booking, error) {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return nil, apperror.Storage(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	b, err := tx.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, apperror.FromStorage(err, "Booking")
	}
	if b.User.ID != actor.UserID {
		return nil, apperror.Forbidden("Not authorized to cancel this booking")
	}
	if b.Status == models.BookingStatusCancelled {
		return nil, apperror.AlreadyCancelled()
	}

	now := c.now()
	err = tx.SetBookingStatus(ctx, b.ID, models.BookingStatusConfirmed, models.BookingStatusCancelled, now)
	if errors.Is(err, storage.ErrStaleWrite) {
		return nil, apperror.AlreadyCancelled()
	}
	if err != nil {
		return nil, apperror.FromStorage(err, "Booking")
	}
	b.Status = models.BookingStatusCancelled
	b.UpdatedAt = now

	trip, released, err := c.release(ctx, tx, b.Trip.ID, b.Seats, b.User.ID)
	if err != nil {
		if tx.Mode() == storage.BestEffort {
			revertErr := tx.SetBookingStatus(context.WithoutCancel(ctx), b.ID,
				models.BookingStatusCancelled, models.BookingStatusConfirmed, c.now())
			if revertErr != nil {
				c.logger.Error("failed to revert cancellation after seat release failure",
					zap.String("bookingId", b.ID), zap.Error(revertErr))
			}
		}
		return nil, err
	}
	if trip == nil {
		c.logger.Warn("cancelled booking for a trip that no longer exists",
			zap.String("bookingId", b.ID), zap.String("tripId", b.Trip.ID))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.FromStorage(err, "Booking")
	}
	committed = true

	metrics.BookingsTotal.WithLabelValues("cancelled").Inc()
	c.logger.Info("booking cancelled",
		zap.String("bookingId", b.ID),
		zap.String("tripId", b.Trip.ID),
		zap.Ints("released", released),
	)
	evt := events.FromBooking(events.BookingCancelled, b, trip, now)
	evt.Seats = released
	c.publish(ctx, evt)
	return b, nil
}

// ListBookingsForUser groups actor's bookings into upcoming, past and all.
// Upcoming bookings are confirmed and depart at or after now; everything
// else is past. All is newest first.
func (c *Coordinator) ListBookingsForUser(ctx context.Context, actor models.Actor) (*models.UserBookings, error) {
	if actor.UserID == "" {
		return nil, apperror.Unauthorized("Authentication required")
	}
	bookings, err := c.listBookings(ctx, models.BookingFilter{UserID: actor.UserID})
	if err != nil {
		return nil, err
	}

	now := c.now()
	out := &models.UserBookings{
		Upcoming: []models.Booking{},
		Past:     []models.Booking{},
		All:      bookings,
	}
	for _, b := range bookings {
		if b.Status == models.BookingStatusConfirmed && !Departure(b.Trip).Before(now) {
			out.Upcoming = append(out.Upcoming, b)
		} else {
			out.Past = append(out.Past, b)
		}
	}
	return out, nil
}

// ListAllBookings returns every booking, newest first. Admin only.
func (c *Coordinator) ListAllBookings(ctx context.Context, actor models.Actor) ([]models.Booking, error) {
	if !actor.IsAdmin() {
		return nil, apperror.Forbidden("Admin access required")
	}
	return c.listBookings(ctx, models.BookingFilter{})
}

// GetBooking returns a booking to its owner or an admin
func (c *Coordinator) GetBooking(ctx context.Context, actor models.Actor, bookingID string) (*models.Booking, error) {
	var b *models.Booking
	err := c.read(ctx, func(tx storage.Tx) error {
		var err error
		b, err = tx.GetBooking(ctx, bookingID)
		if err != nil {
			return apperror.FromStorage(err, "Booking")
		}
		refreshTrips(ctx, tx, []*models.Booking{b})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if b.User.ID != actor.UserID && !actor.IsAdmin() {
		return nil, apperror.Forbidden("Not authorized to access this booking")
	}
	return b, nil
}

func (c *Coordinator) listBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := c.read(ctx, func(tx storage.Tx) error {
		found, err := tx.ListBookings(ctx, filter)
		if err != nil {
			return apperror.FromStorage(err, "Booking")
		}
		ptrs := make([]*models.Booking, len(found))
		for i := range found {
			ptrs[i] = &found[i]
		}
		refreshTrips(ctx, tx, ptrs)
		bookings = append(bookings, found...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	storage.SortBookings(bookings)
	return bookings, nil
}

// refreshTrips replaces trip snapshots with the live trip where it still exists
func refreshTrips(ctx context.Context, tx storage.Tx, bookings []*models.Booking) {
	cache := make(map[string]*models.Trip)
	for _, b := range bookings {
		trip, ok := cache[b.Trip.ID]
		if !ok {
			trip, _ = tx.GetTrip(ctx, b.Trip.ID)
			cache[b.Trip.ID] = trip
		}
		if trip != nil {
			b.Trip = trip.Summary()
		}
	}
}

// read runs fn in a unit that is always rolled back
func (c *Coordinator) read(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return apperror.Storage(err)
	}
	defer tx.Rollback(context.WithoutCancel(ctx))
	return fn(tx)
}

func (c *Coordinator) publish(ctx context.Context, evt events.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := c.publisher.Publish(ctx, evt); err != nil {
		c.logger.Warn("booking event not fully delivered",
			zap.String("type", string(evt.Type)),
			zap.String("bookingId", evt.BookingID),
			zap.Error(err),
		)
	}
}

// Departure combines a trip's calendar date and HH:MM time in UTC
func Departure(t models.TripSummary) time.Time {
	d := time.Date(t.Date.Year(), t.Date.Month(), t.Date.Day(), 0, 0, 0, 0, time.UTC)
	if clock, err := time.Parse("15:04", t.Time); err == nil {
		d = d.Add(time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute)
	}
	return d
}
