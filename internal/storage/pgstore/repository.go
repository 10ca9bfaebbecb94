// Package pgstore is the PostgreSQL storage backend. Every unit of work is a
// real database transaction.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cx-tal-miterani/bus-booking-system/internal/models"
	"github.com/cx-tal-miterani/bus-booking-system/internal/storage"
)

// Store handles all database operations
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL and applies the schema
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStore wraps an existing pool
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

// Tx is one database transaction
type Tx struct {
	tx pgx.Tx
}

func (t *Tx) Mode() storage.IsolationMode { return storage.Transactional }

const tripColumns = `id, source, destination, date, time, price, total_seats,
	seats, available_seats, version, created_at, updated_at`

func scanTrip(row pgx.Row) (*models.Trip, error) {
	var tr models.Trip
	var seats []byte
	err := row.Scan(
		&tr.ID, &tr.Source, &tr.Destination, &tr.Date, &tr.Time, &tr.Price,
		&tr.TotalSeats, &seats, &tr.AvailableSeats, &tr.Version,
		&tr.CreatedAt, &tr.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(seats, &tr.Seats); err != nil {
		return nil, fmt.Errorf("failed to decode seats: %w", err)
	}
	tr.Date = tr.Date.UTC()
	return &tr, nil
}

// --- Trip Operations ---

func (t *Tx) GetTrip(ctx context.Context, id string) (*models.Trip, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1`, id)
	tr, err := scanTrip(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, wrap(err, "get trip")
	}
	return tr, nil
}

// likePattern escapes LIKE metacharacters so user input matches literally
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// buildTripQuery renders the filtered, ordered trip listing query
func buildTripQuery(f models.TripFilter) (string, []interface{}) {
	var where []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}

	if f.Source != "" {
		add("source ILIKE ?", likePattern(f.Source))
	}
	if f.Destination != "" {
		add("destination ILIKE ?", likePattern(f.Destination))
	}
	if f.Date != nil {
		start, end := storage.DayRange(*f.Date)
		add("date >= ?", start)
		add("date < ?", end)
	}

	query := `SELECT ` + tripColumns + ` FROM trips`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date ASC, time ASC"
	return query, args
}

func (t *Tx) ListTrips(ctx context.Context, filter models.TripFilter) ([]models.Trip, error) {
	query, args := buildTripQuery(filter)
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap(err, "query trips")
	}
	defer rows.Close()

	var trips []models.Trip
	for rows.Next() {
		tr, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trip: %w", err)
		}
		trips = append(trips, *tr)
	}
	return trips, wrap(rows.Err(), "iterate trips")
}

func (t *Tx) InsertTrip(ctx context.Context, tr *models.Trip) error {
	seats, err := json.Marshal(tr.Seats)
	if err != nil {
		return fmt.Errorf("failed to encode seats: %w", err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO trips (id, source, destination, date, time, price, total_seats,
		                   seats, available_seats, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, tr.ID, tr.Source, tr.Destination, tr.Date, tr.Time, tr.Price, tr.TotalSeats,
		seats, tr.AvailableSeats, tr.Version, tr.CreatedAt, tr.UpdatedAt)
	return wrap(err, "insert trip")
}

// SaveTrip writes the trip only if its version is unchanged since it was read
func (t *Tx) SaveTrip(ctx context.Context, tr *models.Trip) error {
	seats, err := json.Marshal(tr.Seats)
	if err != nil {
		return fmt.Errorf("failed to encode seats: %w", err)
	}
	now := time.Now().UTC()

	result, err := t.tx.Exec(ctx, `
		UPDATE trips
		SET source = $1, destination = $2, date = $3, time = $4, price = $5,
		    total_seats = $6, seats = $7, available_seats = $8,
		    version = version + 1, updated_at = $9
		WHERE id = $10 AND version = $11
	`, tr.Source, tr.Destination, tr.Date, tr.Time, tr.Price,
		tr.TotalSeats, seats, tr.AvailableSeats, now, tr.ID, tr.Version)
	if err != nil {
		return wrap(err, "save trip")
	}
	if result.RowsAffected() == 0 {
		return storage.ErrStaleWrite
	}
	tr.Version++
	tr.UpdatedAt = now
	return nil
}

func (t *Tx) DeleteTrip(ctx context.Context, id string) error {
	result, err := t.tx.Exec(ctx, `DELETE FROM trips WHERE id = $1`, id)
	if err != nil {
		return wrap(err, "delete trip")
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- Booking Operations ---

const bookingColumns = `id, user_id, user_name, user_email, trip, seats, total_amount,
	payment_method, status, booking_date, created_at, updated_at`

func scanBooking(row pgx.Row) (*models.Booking, error) {
	var b models.Booking
	var trip, seats []byte
	err := row.Scan(
		&b.ID, &b.User.ID, &b.User.Name, &b.User.Email, &trip, &seats,
		&b.TotalAmount, &b.PaymentMethod, &b.Status, &b.BookingDate,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(trip, &b.Trip); err != nil {
		return nil, fmt.Errorf("failed to decode trip snapshot: %w", err)
	}
	if err := json.Unmarshal(seats, &b.Seats); err != nil {
		return nil, fmt.Errorf("failed to decode booking seats: %w", err)
	}
	return &b, nil
}

func (t *Tx) InsertBooking(ctx context.Context, b *models.Booking) error {
	trip, err := json.Marshal(b.Trip)
	if err != nil {
		return fmt.Errorf("failed to encode trip snapshot: %w", err)
	}
	seats, err := json.Marshal(b.Seats)
	if err != nil {
		return fmt.Errorf("failed to encode booking seats: %w", err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO bookings (id, user_id, user_name, user_email, trip, seats, total_amount,
		                      payment_method, status, booking_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, b.ID, b.User.ID, b.User.Name, b.User.Email, trip, seats, b.TotalAmount,
		string(b.PaymentMethod), string(b.Status), b.BookingDate, b.CreatedAt, b.UpdatedAt)
	return wrap(err, "insert booking")
}

func (t *Tx) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, wrap(err, "get booking")
	}
	return b, nil
}

func (t *Tx) SetBookingStatus(ctx context.Context, id string, from, to models.BookingStatus, at time.Time) error {
	result, err := t.tx.Exec(ctx, `
		UPDATE bookings SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`, string(to), at, id, string(from))
	if err != nil {
		return wrap(err, "update booking status")
	}
	if result.RowsAffected() == 0 {
		if _, err := t.GetBooking(ctx, id); err != nil {
			return err
		}
		return storage.ErrStaleWrite
	}
	return nil
}

func (t *Tx) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings`
	var args []interface{}
	if filter.UserID != "" {
		query += ` WHERE user_id = $1`
		args = append(args, filter.UserID)
	}
	query += ` ORDER BY booking_date DESC`

	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap(err, "query bookings")
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	return bookings, wrap(rows.Err(), "iterate bookings")
}

func (t *Tx) Commit(ctx context.Context) error {
	return wrap(t.tx.Commit(ctx), "commit transaction")
}

func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// wrap maps serialization failures and deadlocks to storage.ErrTxConflict
func wrap(err error, action string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return storage.ErrTxConflict
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}
