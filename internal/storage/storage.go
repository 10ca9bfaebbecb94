// Package storage defines the explicit store handle shared by the inventory
// manager and the booking coordinator, and the unit-of-work contract every
// backend implements.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/cx-tal-miterani/bus-booking-system/internal/models"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrStaleWrite = errors.New("document changed since it was read")
	ErrTxConflict = errors.New("transaction conflict")
)

// IsolationMode describes what a unit of work guarantees
type IsolationMode int

const (
	// Transactional units commit or abort all their writes together
	Transactional IsolationMode = iota
	// BestEffort units apply each write on its own; only single-document
	// conditional writes are atomic
	BestEffort
)

func (m IsolationMode) String() string {
	switch m {
	case Transactional:
		return "transactional"
	case BestEffort:
		return "best_effort"
	}
	return "unknown"
}

// Store is a long-lived handle opened once per process
type Store interface {
	// Begin opens a unit of work. The isolation mode is decided here, once,
	// and never fails because transactions are unsupported.
	Begin(ctx context.Context) (Tx, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Tx is a unit of work over trips and bookings.
//
// SaveTrip is conditional: it succeeds only if the stored trip still carries
// trip.Version, then bumps the version on both the stored document and trip.
// A mismatch returns ErrStaleWrite.
type Tx interface {
	Mode() IsolationMode

	GetTrip(ctx context.Context, id string) (*models.Trip, error)
	ListTrips(ctx context.Context, filter models.TripFilter) ([]models.Trip, error)
	InsertTrip(ctx context.Context, trip *models.Trip) error
	SaveTrip(ctx context.Context, trip *models.Trip) error
	DeleteTrip(ctx context.Context, id string) error

	InsertBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	// SetBookingStatus flips status from -> to, returning ErrStaleWrite if the
	// stored status is no longer from.
	SetBookingStatus(ctx context.Context, id string, from, to models.BookingStatus, at time.Time) error
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error)

	Commit(ctx context.Context) error
	// Rollback is safe to call after Commit and more than once
	Rollback(ctx context.Context) error
}
