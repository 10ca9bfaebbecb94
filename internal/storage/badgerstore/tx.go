package badgerstore

import (
	"context"
	"errors"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/cx-tal-miterani/bus-booking-system/internal/models"
	"github.com/cx-tal-miterani/bus-booking-system/internal/storage"
)

// txnTx runs the whole unit inside one badger read-write transaction.
// Badger detects read-write conflicts at commit time.
type txnTx struct {
	txn *badger.Txn
}

func (t *txnTx) Mode() storage.IsolationMode { return storage.Transactional }

func (t *txnTx) GetTrip(ctx context.Context, id string) (*models.Trip, error) {
	return getTrip(t.txn, id)
}

func (t *txnTx) ListTrips(ctx context.Context, filter models.TripFilter) ([]models.Trip, error) {
	return listTrips(t.txn, filter)
}

func (t *txnTx) InsertTrip(ctx context.Context, trip *models.Trip) error {
	return insertTrip(t.txn, trip)
}

func (t *txnTx) SaveTrip(ctx context.Context, trip *models.Trip) error {
	return saveTrip(t.txn, trip, time.Now().UTC())
}

func (t *txnTx) DeleteTrip(ctx context.Context, id string) error {
	return deleteTrip(t.txn, id)
}

func (t *txnTx) InsertBooking(ctx context.Context, booking *models.Booking) error {
	return putDoc(t.txn, bookingKey(booking.ID), booking)
}

func (t *txnTx) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return getBooking(t.txn, id)
}

func (t *txnTx) SetBookingStatus(ctx context.Context, id string, from, to models.BookingStatus, at time.Time) error {
	return setBookingStatus(t.txn, id, from, to, at)
}

func (t *txnTx) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	return listBookings(t.txn, filter)
}

func (t *txnTx) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		t.Rollback(ctx)
		return err
	}
	if err := t.txn.Commit(); err != nil {
		if errors.Is(err, badger.ErrConflict) {
			return storage.ErrTxConflict
		}
		return err
	}
	return nil
}

func (t *txnTx) Rollback(ctx context.Context) error {
	t.txn.Discard()
	return nil
}

// bestEffortTx applies every operation in its own short badger transaction.
type bestEffortTx struct {
	db *badger.DB
}

func (t *bestEffortTx) Mode() storage.IsolationMode { return storage.BestEffort }

func (t *bestEffortTx) update(fn func(txn *badger.Txn) error) error {
	err := t.db.Update(fn)
	if errors.Is(err, badger.ErrConflict) {
		return storage.ErrStaleWrite
	}
	return err
}

func (t *bestEffortTx) GetTrip(ctx context.Context, id string) (*models.Trip, error) {
	var trip *models.Trip
	err := t.db.View(func(txn *badger.Txn) error {
		var err error
		trip, err = getTrip(txn, id)
		return err
	})
	return trip, err
}

func (t *bestEffortTx) ListTrips(ctx context.Context, filter models.TripFilter) ([]models.Trip, error) {
	var trips []models.Trip
	err := t.db.View(func(txn *badger.Txn) error {
		var err error
		trips, err = listTrips(txn, filter)
		return err
	})
	return trips, err
}

func (t *bestEffortTx) InsertTrip(ctx context.Context, trip *models.Trip) error {
	return t.update(func(txn *badger.Txn) error { return insertTrip(txn, trip) })
}

func (t *bestEffortTx) SaveTrip(ctx context.Context, trip *models.Trip) error {
	// saveTrip mutates trip only after a successful put; a commit conflict
	// must not leave the caller with a bumped version.
	staged := trip.Clone()
	err := t.update(func(txn *badger.Txn) error {
		staged = trip.Clone()
		return saveTrip(txn, staged, time.Now().UTC())
	})
	if err != nil {
		return err
	}
	trip.Version = staged.Version
	trip.UpdatedAt = staged.UpdatedAt
	return nil
}

func (t *bestEffortTx) DeleteTrip(ctx context.Context, id string) error {
	return t.update(func(txn *badger.Txn) error { return deleteTrip(txn, id) })
}

func (t *bestEffortTx) InsertBooking(ctx context.Context, booking *models.Booking) error {
	return t.update(func(txn *badger.Txn) error {
		return putDoc(txn, bookingKey(booking.ID), booking)
	})
}

func (t *bestEffortTx) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var b *models.Booking
	err := t.db.View(func(txn *badger.Txn) error {
		var err error
		b, err = getBooking(txn, id)
		return err
	})
	return b, err
}

func (t *bestEffortTx) SetBookingStatus(ctx context.Context, id string, from, to models.BookingStatus, at time.Time) error {
	return t.update(func(txn *badger.Txn) error {
		return setBookingStatus(txn, id, from, to, at)
	})
}

func (t *bestEffortTx) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	var bookings []models.Booking
	err := t.db.View(func(txn *badger.Txn) error {
		var err error
		bookings, err = listBookings(txn, filter)
		return err
	})
	return bookings, err
}

func (t *bestEffortTx) Commit(ctx context.Context) error   { return nil }
func (t *bestEffortTx) Rollback(ctx context.Context) error { return nil }
