package booking

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cx-tal-miterani/bus-booking-system/internal/apperror"
	"github.com/cx-tal-miterani/bus-booking-system/internal/events"
	"github.com/cx-tal-miterani/bus-booking-system/internal/inventory"
	"github.com/cx-tal-miterani/bus-booking-system/internal/models"
	"github.com/cx-tal-miterani/bus-booking-system/internal/storage"
	"github.com/cx-tal-miterani/bus-booking-system/internal/storage/badgerstore"
)

var (
	alice = models.Actor{UserID: "user-a", Name: "Alice", Email: "alice@example.com", Role: models.RoleUser}
	bob   = models.Actor{UserID: "user-b", Name: "Bob", Email: "bob@example.com", Role: models.RoleUser}
	admin = models.Actor{UserID: "admin-1", Role: models.RoleAdmin}
)

var modes = []storage.IsolationMode{storage.Transactional, storage.BestEffort}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(ctx context.Context, evt events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

type fixture struct {
	store     storage.Store
	inventory *inventory.Manager
	coord     *Coordinator
	events    *recorder
}

func newFixture(t *testing.T, mode storage.IsolationMode) *fixture {
	t.Helper()
	s, err := badgerstore.OpenInMemory(mode)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })
	return newFixtureWithStore(s)
}

func newFixtureWithStore(s storage.Store) *fixture {
	inv := inventory.NewManager(s, nil)
	rec := &recorder{}
	return &fixture{store: s, inventory: inv, coord: NewCoordinator(s, inv, rec, nil), events: rec}
}

func (f *fixture) createTrip(t *testing.T, date string, seats int, price float64) *models.Trip {
	t.Helper()
	trip, err := f.inventory.CreateTrip(context.Background(), models.CreateTripRequest{
		Source: "New York", Destination: "Boston", Date: date, Time: "09:00", Price: price, TotalSeats: seats,
	})
	require.NoError(t, err)
	return trip
}

func (f *fixture) trip(t *testing.T, id string) *models.Trip {
	t.Helper()
	trip, err := f.inventory.LoadAndRepair(context.Background(), id)
	require.NoError(t, err)
	return trip
}

func seatsOf(nums ...interface{}) []models.SeatInput {
	out := make([]models.SeatInput, len(nums))
	for i, n := range nums {
		switch v := n.(type) {
		case int:
			out[i] = models.SeatInput(strconv.Itoa(v))
		case string:
			out[i] = models.SeatInput(v)
		}
	}
	return out
}

func book(t *testing.T, f *fixture, actor models.Actor, tripID string, seats ...interface{}) (*models.Booking, error) {
	t.Helper()
	return f.coord.CreateBooking(context.Background(), actor, models.CreateBookingRequest{
		TripID:        tripID,
		Seats:         seatsOf(seats...),
		PaymentMethod: models.PaymentMethodCard,
	})
}

func TestCoordinator_EndToEnd(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.String(), func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, mode)
			trip := f.createTrip(t, "2030-06-01", 40, 45.00)

			b, err := book(t, f, alice, trip.ID, 1, 2)
			require.NoError(t, err)
			assert.Equal(t, 90.00, b.TotalAmount)
			assert.Equal(t, models.BookingStatusConfirmed, b.Status)
			assert.Equal(t, []int{1, 2}, b.Seats)
			assert.Equal(t, "Alice", b.User.Name)
			assert.Equal(t, "Boston", b.Trip.Destination)

			after := f.trip(t, trip.ID)
			assert.Equal(t, 38, after.AvailableSeats)
			for _, n := range []int{1, 2} {
				s, _ := after.SeatByNumber(n)
				assert.True(t, s.IsBooked)
				require.NotNil(t, s.BookedBy)
				assert.Equal(t, alice.UserID, *s.BookedBy)
			}

			_, err = book(t, f, bob, trip.ID, 1)
			require.ErrorIs(t, err, apperror.ErrSeatConflict)
			assert.Contains(t, err.Error(), "A1")
			assert.Contains(t, err.Error(), "(1)")
			assert.Contains(t, err.Error(), "is already booked")
			appErr, _ := apperror.As(err)
			assert.Equal(t, []apperror.SeatRef{{Number: 1, Label: "A1"}}, appErr.Seats)

			cancelled, err := f.coord.CancelBooking(ctx, alice, b.ID)
			require.NoError(t, err)
			assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)

			restored := f.trip(t, trip.ID)
			assert.Equal(t, 40, restored.AvailableSeats)
			for _, n := range []int{1, 2} {
				s, _ := restored.SeatByNumber(n)
				assert.False(t, s.IsBooked)
				assert.Nil(t, s.BookedBy)
			}

			require.Len(t, f.events.events, 2)
			assert.Equal(t, events.BookingCreated, f.events.events[0].Type)
			assert.Equal(t, events.BookingCancelled, f.events.events[1].Type)
			assert.Equal(t, []int{1, 2}, f.events.events[1].Seats)
		})
	}
}

func TestCoordinator_AllOrNothing(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.String(), func(t *testing.T) {
			f := newFixture(t, mode)
			trip := f.createTrip(t, "2030-06-01", 10, 20)

			_, err := book(t, f, alice, trip.ID, 2, 3, 30, 41)
			require.ErrorIs(t, err, apperror.ErrInvalidRequest)
			assert.Contains(t, err.Error(), "Invalid seat numbers: 30, 41")

			after := f.trip(t, trip.ID)
			assert.Equal(t, 10, after.AvailableSeats)
			assert.Equal(t, trip.Version, after.Version, "nothing was written")

			_, err = book(t, f, alice, trip.ID, 4)
			require.NoError(t, err)
			_, err = book(t, f, bob, trip.ID, 3, 4, 5)
			require.ErrorIs(t, err, apperror.ErrSeatConflict)

			after = f.trip(t, trip.ID)
			assert.Equal(t, 9, after.AvailableSeats)
			s3, _ := after.SeatByNumber(3)
			assert.False(t, s3.IsBooked, "seat 3 must not be booked by a failed request")
		})
	}
}

func TestCoordinator_NoDoubleBooking(t *testing.T) {
	f := newFixture(t, storage.Transactional)
	trip := f.createTrip(t, "2030-06-01", 10, 20)

	_, err := book(t, f, alice, trip.ID, 3)
	require.NoError(t, err)

	_, err = book(t, f, bob, trip.ID, 3)
	require.ErrorIs(t, err, apperror.ErrSeatConflict)

	s, _ := f.trip(t, trip.ID).SeatByNumber(3)
	assert.Equal(t, alice.UserID, *s.BookedBy)
}

func TestCoordinator_PluralConflictMessage(t *testing.T) {
	f := newFixture(t, storage.BestEffort)
	trip := f.createTrip(t, "2030-06-01", 12, 20)

	_, err := book(t, f, alice, trip.ID, 1, 7)
	require.NoError(t, err)

	_, err = book(t, f, bob, trip.ID, 7, 1, 2)
	require.ErrorIs(t, err, apperror.ErrSeatConflict)
	assert.Contains(t, err.Error(), "Seat(s) A1, B1 (1, 7) are already booked")
}

func TestCoordinator_AcceptsSeatLabels(t *testing.T) {
	f := newFixture(t, storage.Transactional)
	trip := f.createTrip(t, "2030-06-01", 12, 10)

	b, err := book(t, f, alice, trip.ID, "B1", "a2", "12")
	require.NoError(t, err)
	assert.Equal(t, []int{7, 2, 12}, b.Seats)
	assert.Equal(t, 30.0, b.TotalAmount)
}

func TestCoordinator_RejectsBadRequests(t *testing.T) {
	f := newFixture(t, storage.Transactional)
	trip := f.createTrip(t, "2030-06-01", 12, 10)

	tests := []struct {
		name    string
		actor   models.Actor
		req     models.CreateBookingRequest
		kind    *apperror.Error
		message string
	}{
		{
			name:    "no seats",
			actor:   alice,
			req:     models.CreateBookingRequest{TripID: trip.ID, PaymentMethod: models.PaymentMethodCash},
			kind:    apperror.ErrInvalidRequest,
			message: "Please select at least one seat",
		},
		{
			name:    "unparsable seats",
			actor:   alice,
			req:     models.CreateBookingRequest{TripID: trip.ID, Seats: seatsOf("x9", 2, "Z7"), PaymentMethod: models.PaymentMethodCash},
			kind:    apperror.ErrInvalidRequest,
			message: `Invalid seat numbers provided: "x9", "Z7"`,
		},
		{
			name:    "duplicate seats",
			actor:   alice,
			req:     models.CreateBookingRequest{TripID: trip.ID, Seats: seatsOf(1, "A1"), PaymentMethod: models.PaymentMethodCash},
			kind:    apperror.ErrInvalidRequest,
			message: "Duplicate seats requested: 1",
		},
		{
			name:    "unknown payment method",
			actor:   alice,
			req:     models.CreateBookingRequest{TripID: trip.ID, Seats: seatsOf(1), PaymentMethod: "bitcoin"},
			kind:    apperror.ErrInvalidRequest,
			message: "Invalid payment method",
		},
		{
			name:    "unknown trip",
			actor:   alice,
			req:     models.CreateBookingRequest{TripID: "nope", Seats: seatsOf(1), PaymentMethod: models.PaymentMethodUPI},
			kind:    apperror.ErrNotFound,
			message: "Trip not found",
		},
		{
			name:  "anonymous caller",
			actor: models.Actor{},
			req:   models.CreateBookingRequest{TripID: trip.ID, Seats: seatsOf(1), PaymentMethod: models.PaymentMethodUPI},
			kind:  apperror.ErrUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.coord.CreateBooking(context.Background(), tt.actor, tt.req)
			require.ErrorIs(t, err, tt.kind)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
	assert.Equal(t, 12, f.trip(t, trip.ID).AvailableSeats)
}

func TestInsufficientInventoryMessage(t *testing.T) {
	err := apperror.InsufficientInventory(1)
	assert.ErrorIs(t, err, apperror.ErrInsufficientInventory)
	assert.Equal(t, "Not enough seats available. Only 1 seat(s) remaining.", err.Error())
}

func TestCoordinator_CancelRules(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.String(), func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, mode)
			trip := f.createTrip(t, "2030-06-01", 10, 20)

			b, err := book(t, f, alice, trip.ID, 5)
			require.NoError(t, err)

			_, err = f.coord.CancelBooking(ctx, bob, b.ID)
			assert.ErrorIs(t, err, apperror.ErrForbidden)

			_, err = f.coord.CancelBooking(ctx, alice, "missing")
			assert.ErrorIs(t, err, apperror.ErrNotFound)

			_, err = f.coord.CancelBooking(ctx, alice, b.ID)
			require.NoError(t, err)

			_, err = f.coord.CancelBooking(ctx, alice, b.ID)
			assert.ErrorIs(t, err, apperror.ErrAlreadyCancelled)
			assert.Equal(t, 10, f.trip(t, trip.ID).AvailableSeats)
		})
	}
}

func TestCoordinator_CancelWhenTripIsGone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, storage.Transactional)
	trip := f.createTrip(t, "2030-06-01", 10, 20)

	b, err := book(t, f, alice, trip.ID, 1)
	require.NoError(t, err)
	require.NoError(t, f.inventory.DeleteTrip(ctx, trip.ID))

	cancelled, err := f.coord.CancelBooking(ctx, alice, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)
	assert.Equal(t, "Boston", cancelled.Trip.Destination, "snapshot survives trip deletion")
}

func TestCoordinator_ListBookingsForUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, storage.Transactional)
	now := time.Date(2030, 6, 15, 12, 0, 0, 0, time.UTC)
	tick := now.Add(-time.Hour)
	f.coord.now = func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}

	future := f.createTrip(t, "2030-07-01", 10, 20)
	past := f.createTrip(t, "2030-06-01", 10, 20)

	upcoming, err := book(t, f, alice, future.ID, 1)
	require.NoError(t, err)
	old, err := book(t, f, alice, past.ID, 1)
	require.NoError(t, err)
	cancelled, err := book(t, f, alice, future.ID, 2)
	require.NoError(t, err)
	_, err = f.coord.CancelBooking(ctx, alice, cancelled.ID)
	require.NoError(t, err)
	_, err = book(t, f, bob, future.ID, 3)
	require.NoError(t, err)

	f.coord.now = func() time.Time { return now }
	got, err := f.coord.ListBookingsForUser(ctx, alice)
	require.NoError(t, err)

	ids := func(bs []models.Booking) []string {
		out := make([]string, len(bs))
		for i, b := range bs {
			out[i] = b.ID
		}
		return out
	}
	assert.Equal(t, []string{upcoming.ID}, ids(got.Upcoming))
	assert.ElementsMatch(t, []string{old.ID, cancelled.ID}, ids(got.Past))
	assert.Equal(t, []string{cancelled.ID, old.ID, upcoming.ID}, ids(got.All), "newest first")

	price := 25.0
	_, err = f.inventory.UpdateTrip(ctx, future.ID, models.UpdateTripRequest{Price: &price})
	require.NoError(t, err)
	got, err = f.coord.ListBookingsForUser(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 25.0, got.Upcoming[0].Trip.Price, "trip summary is refreshed from the live trip")
	assert.Equal(t, 20.0, got.Upcoming[0].TotalAmount, "amount stays frozen")
}

func TestCoordinator_GetAndListAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, storage.BestEffort)
	trip := f.createTrip(t, "2030-06-01", 10, 20)

	b, err := book(t, f, alice, trip.ID, 1)
	require.NoError(t, err)
	_, err = book(t, f, bob, trip.ID, 2)
	require.NoError(t, err)

	got, err := f.coord.GetBooking(ctx, alice, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	_, err = f.coord.GetBooking(ctx, bob, b.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = f.coord.GetBooking(ctx, admin, b.ID)
	assert.NoError(t, err)

	_, err = f.coord.ListAllBookings(ctx, alice)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	all, err := f.coord.ListAllBookings(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCoordinator_ConcurrentBookingsOfOneSeat(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.String(), func(t *testing.T) {
			f := newFixture(t, mode)
			trip := f.createTrip(t, "2030-06-01", 20, 15)

			const workers = 12
			var wg sync.WaitGroup
			results := make(chan error, workers)
			for i := 0; i < workers; i++ {
				actor := models.Actor{UserID: "user-" + string(rune('a'+i)), Role: models.RoleUser}
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := book(t, f, actor, trip.ID, 5)
					results <- err
				}()
			}
			wg.Wait()
			close(results)

			successes := 0
			for err := range results {
				if err == nil {
					successes++
					continue
				}
				assert.True(t,
					errors.Is(err, apperror.ErrSeatConflict) || errors.Is(err, apperror.ErrTransactionConflict),
					"unexpected error: %v", err)
			}
			assert.Equal(t, 1, successes)

			after := f.trip(t, trip.ID)
			assert.Equal(t, 19, after.AvailableSeats)

			all, err := f.coord.ListAllBookings(context.Background(), admin)
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

// failingInsertStore fails every booking insert
type failingInsertStore struct {
	storage.Store
}

func (s failingInsertStore) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return failingInsertTx{tx}, nil
}

type failingInsertTx struct {
	storage.Tx
}

func (failingInsertTx) InsertBooking(ctx context.Context, b *models.Booking) error {
	return errors.New("disk full")
}

func TestCoordinator_FailedInsertLeavesSeatsFree(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.String(), func(t *testing.T) {
			s, err := badgerstore.OpenInMemory(mode)
			require.NoError(t, err)
			t.Cleanup(func() { s.Close(context.Background()) })

			f := newFixtureWithStore(failingInsertStore{s})
			trip := f.createTrip(t, "2030-06-01", 10, 20)

			_, err = book(t, f, alice, trip.ID, 1, 2)
			require.ErrorIs(t, err, apperror.ErrStorage)

			after := f.trip(t, trip.ID)
			assert.Equal(t, 10, after.AvailableSeats)
			assert.Empty(t, f.events.events)
		})
	}
}
