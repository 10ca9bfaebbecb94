// Package badgerstore is the embedded storage backend. Trips and bookings are
// JSON documents keyed by "trip:<id>" and "booking:<id>".
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/cx-tal-miterani/bus-booking-system/internal/models"
	"github.com/cx-tal-miterani/bus-booking-system/internal/storage"
)

const (
	tripPrefix    = "trip:"
	bookingPrefix = "booking:"
)

// Options configures the embedded store
type Options struct {
	// Path is the data directory; empty runs fully in memory
	Path string
	// Transactions selects Transactional units; false gives BestEffort units
	Transactions bool
	Logger       *zap.Logger
}

// Store is a badger-backed storage.Store
type Store struct {
	db   *badger.DB
	mode storage.IsolationMode
}

// Open opens (or creates) the badger database
func Open(opts Options) (*Store, error) {
	bopts := badger.DefaultOptions(opts.Path)
	if opts.Path == "" {
		bopts = bopts.WithInMemory(true)
	}
	if opts.Logger != nil {
		bopts = bopts.WithLogger(badgerLogger{opts.Logger.Sugar()})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	mode := storage.BestEffort
	if opts.Transactions {
		mode = storage.Transactional
	}
	return &Store{db: db, mode: mode}, nil
}

// OpenInMemory opens a throwaway store, mainly for tests
func OpenInMemory(mode storage.IsolationMode) (*Store, error) {
	return Open(Options{Transactions: mode == storage.Transactional})
}

func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.db.IsClosed() {
		return nil, errors.New("badger store is closed")
	}
	if s.mode == storage.Transactional {
		return &txnTx{txn: s.db.NewTransaction(true)}, nil
	}
	return &bestEffortTx{db: s.db}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger store is closed")
	}
	return s.db.View(func(txn *badger.Txn) error { return nil })
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.Warnf(format, args...)
}

func tripKey(id string) []byte    { return []byte(tripPrefix + id) }
func bookingKey(id string) []byte { return []byte(bookingPrefix + id) }

// --- document operations shared by both unit kinds ---

func getDoc(txn *badger.Txn, key []byte, dst interface{}) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, dst)
	})
}

func putDoc(txn *badger.Txn, key []byte, doc interface{}) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return txn.Set(key, data)
}

func scan(txn *badger.Txn, prefix string, fn func(val []byte) error) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	p := []byte(prefix)
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}

func getTrip(txn *badger.Txn, id string) (*models.Trip, error) {
	var t models.Trip
	if err := getDoc(txn, tripKey(id), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func listTrips(txn *badger.Txn, filter models.TripFilter) ([]models.Trip, error) {
	var trips []models.Trip
	err := scan(txn, tripPrefix, func(val []byte) error {
		var t models.Trip
		if err := json.Unmarshal(val, &t); err != nil {
			return fmt.Errorf("failed to decode trip: %w", err)
		}
		if storage.MatchTrip(&t, filter) {
			trips = append(trips, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	storage.SortTrips(trips)
	return trips, nil
}

func insertTrip(txn *badger.Txn, trip *models.Trip) error {
	if _, err := txn.Get(tripKey(trip.ID)); err == nil {
		return fmt.Errorf("trip %s already exists", trip.ID)
	}
	return putDoc(txn, tripKey(trip.ID), trip)
}

func saveTrip(txn *badger.Txn, trip *models.Trip, now time.Time) error {
	current, err := getTrip(txn, trip.ID)
	if err != nil {
		return err
	}
	if current.Version != trip.Version {
		return storage.ErrStaleWrite
	}
	next := trip.Clone()
	next.Version++
	next.UpdatedAt = now
	if err := putDoc(txn, tripKey(trip.ID), next); err != nil {
		return err
	}
	trip.Version = next.Version
	trip.UpdatedAt = now
	return nil
}

func deleteTrip(txn *badger.Txn, id string) error {
	if _, err := txn.Get(tripKey(id)); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		return err
	}
	return txn.Delete(tripKey(id))
}

func getBooking(txn *badger.Txn, id string) (*models.Booking, error) {
	var b models.Booking
	if err := getDoc(txn, bookingKey(id), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func setBookingStatus(txn *badger.Txn, id string, from, to models.BookingStatus, at time.Time) error {
	b, err := getBooking(txn, id)
	if err != nil {
		return err
	}
	if b.Status != from {
		return storage.ErrStaleWrite
	}
	b.Status = to
	b.UpdatedAt = at
	return putDoc(txn, bookingKey(id), b)
}

func listBookings(txn *badger.Txn, filter models.BookingFilter) ([]models.Booking, error) {
	var bookings []models.Booking
	err := scan(txn, bookingPrefix, func(val []byte) error {
		var b models.Booking
		if err := json.Unmarshal(val, &b); err != nil {
			return fmt.Errorf("failed to decode booking: %w", err)
		}
		if filter.UserID == "" || b.User.ID == filter.UserID {
			bookings = append(bookings, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	storage.SortBookings(bookings)
	return bookings, nil
}
