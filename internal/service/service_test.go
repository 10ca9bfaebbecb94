package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	temporalmocks "go.temporal.io/sdk/mocks"
	"go.uber.org/zap"

	"github.com/cx-tal-miterani/bus-booking-system/internal/apperror"
	"github.com/cx-tal-miterani/bus-booking-system/internal/booking"
	"github.com/cx-tal-miterani/bus-booking-system/internal/events"
	"github.com/cx-tal-miterani/bus-booking-system/internal/inventory"
	"github.com/cx-tal-miterani/bus-booking-system/internal/models"
	"github.com/cx-tal-miterani/bus-booking-system/internal/storage"
	"github.com/cx-tal-miterani/bus-booking-system/internal/storage/badgerstore"
	"github.com/cx-tal-miterani/bus-booking-system/internal/workflows"
)

var (
	user  = models.Actor{UserID: "u1", Name: "Alice", Role: models.RoleUser}
	admin = models.Actor{UserID: "a1", Name: "Root", Role: models.RoleAdmin}
)

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

func newService(t *testing.T, temporal client.Client) (BookingService, *recorder) {
	t.Helper()
	store, err := badgerstore.OpenInMemory(storage.Transactional)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	rec := &recorder{}
	inv := inventory.NewManager(store, zap.NewNop())
	svc := NewBookingService(Deps{
		Store:       store,
		Inventory:   inv,
		Coordinator: booking.NewCoordinator(store, inv, rec, zap.NewNop()),
		Publisher:   rec,
		Temporal:    temporal,
		TaskQueue:   "test-queue",
	})
	return svc, rec
}

func tripRequest() models.CreateTripRequest {
	return models.CreateTripRequest{
		Source: "New York", Destination: "Boston",
		Date: "2030-06-01", Time: "09:00", Price: 45, TotalSeats: 12,
	}
}

func TestTripAdminRequiresRole(t *testing.T) {
	svc, rec := newService(t, nil)
	ctx := context.Background()

	_, err := svc.CreateTrip(ctx, user, tripRequest())
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = svc.CreateTrip(ctx, models.Actor{}, tripRequest())
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	assert.ErrorIs(t, svc.DeleteTrip(ctx, user, "any"), apperror.ErrForbidden)
	assert.Empty(t, rec.events)
}

func TestTripLifecycleAnnouncesChanges(t *testing.T) {
	svc, rec := newService(t, nil)
	ctx := context.Background()

	trip, err := svc.CreateTrip(ctx, admin, tripRequest())
	require.NoError(t, err)
	assert.Equal(t, 12, trip.AvailableSeats)

	total := 18
	trip, err = svc.UpdateTrip(ctx, admin, trip.ID, models.UpdateTripRequest{TotalSeats: &total})
	require.NoError(t, err)
	assert.Equal(t, 18, trip.AvailableSeats)

	got, err := svc.GetTrip(ctx, trip.ID)
	require.NoError(t, err)
	assert.Len(t, got.Seats, 18)

	require.NoError(t, svc.DeleteTrip(ctx, admin, trip.ID))
	_, err = svc.GetTrip(ctx, trip.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	require.Len(t, rec.events, 3)
	for _, evt := range rec.events {
		assert.Equal(t, events.TripUpdated, evt.Type)
		assert.Equal(t, trip.ID, evt.TripID)
	}
	assert.NotNil(t, rec.events[1].Trip)
	assert.Nil(t, rec.events[2].Trip)
}

func TestTicket(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	trip, err := svc.CreateTrip(ctx, admin, tripRequest())
	require.NoError(t, err)
	b, err := svc.CreateBooking(ctx, user, models.CreateBookingRequest{
		TripID: trip.ID, Seats: []models.SeatInput{"1"}, PaymentMethod: models.PaymentMethodCash,
	})
	require.NoError(t, err)

	got, pdf, err := svc.Ticket(ctx, user, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, "%PDF-", string(pdf[:5]))

	_, _, err = svc.Ticket(ctx, models.Actor{UserID: "stranger", Role: models.RoleUser}, b.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestReconcileInline(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	_, err := svc.CreateTrip(ctx, admin, tripRequest())
	require.NoError(t, err)

	status, err := svc.Reconcile(ctx, admin, nil)
	require.NoError(t, err)
	require.NotNil(t, status.Report)
	assert.Equal(t, 1, status.Report.Scanned)
	assert.Equal(t, 0, status.Report.Repaired)

	_, err = svc.Reconcile(ctx, user, nil)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestReconcileStartsWorkflow(t *testing.T) {
	temporal := &temporalmocks.Client{}
	run := &temporalmocks.WorkflowRun{}
	run.On("GetID").Return("inventory-reconcile-1")
	run.On("GetRunID").Return("run-1")

	temporal.On("ExecuteWorkflow", mock.Anything,
		mock.MatchedBy(func(o client.StartWorkflowOptions) bool { return o.TaskQueue == "test-queue" }),
		workflows.ReconcileWorkflowName,
		workflows.ReconcileInput{TripIDs: []string{"t1"}},
	).Return(run, nil).Once()

	svc, _ := newService(t, temporal)
	status, err := svc.Reconcile(context.Background(), admin, []string{"t1"})
	require.NoError(t, err)
	assert.Equal(t, "inventory-reconcile-1", status.WorkflowID)
	assert.Equal(t, "run-1", status.RunID)
	assert.Nil(t, status.Report)

	temporal.AssertExpectations(t)
}

func TestHealth(t *testing.T) {
	svc, _ := newService(t, nil)
	status, err := svc.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "up", status.Store)
}
