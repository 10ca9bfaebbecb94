// Package service is the single facade the HTTP layer talks to. It applies
// role checks for admin operations and announces trip changes.
package service

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/cx-tal-miterani/bus-booking-system/internal/apperror"
	"github.com/cx-tal-miterani/bus-booking-system/internal/booking"
	"github.com/cx-tal-miterani/bus-booking-system/internal/events"
	"github.com/cx-tal-miterani/bus-booking-system/internal/inventory"
	"github.com/cx-tal-miterani/bus-booking-system/internal/models"
	"github.com/cx-tal-miterani/bus-booking-system/internal/storage"
	"github.com/cx-tal-miterani/bus-booking-system/internal/ticket"
	"github.com/cx-tal-miterani/bus-booking-system/internal/workflows"
)

const healthTimeout = 2 * time.Second

// BookingService defines the operations exposed over HTTP
type BookingService interface {
	ListTrips(ctx context.Context, filter models.TripFilter) ([]models.Trip, error)
	GetTrip(ctx context.Context, tripID string) (*models.Trip, error)
	CreateTrip(ctx context.Context, actor models.Actor, req models.CreateTripRequest) (*models.Trip, error)
	UpdateTrip(ctx context.Context, actor models.Actor, tripID string, req models.UpdateTripRequest) (*models.Trip, error)
	DeleteTrip(ctx context.Context, actor models.Actor, tripID string) error

	CreateBooking(ctx context.Context, actor models.Actor, req models.CreateBookingRequest) (*models.Booking, error)
	CancelBooking(ctx context.Context, actor models.Actor, bookingID string) (*models.Booking, error)
	ListUserBookings(ctx context.Context, actor models.Actor) (*models.UserBookings, error)
	ListAllBookings(ctx context.Context, actor models.Actor) ([]models.Booking, error)
	GetBooking(ctx context.Context, actor models.Actor, bookingID string) (*models.Booking, error)
	Ticket(ctx context.Context, actor models.Actor, bookingID string) (*models.Booking, []byte, error)

	Reconcile(ctx context.Context, actor models.Actor, tripIDs []string) (*ReconcileStatus, error)
	Health(ctx context.Context) (*HealthStatus, error)
}

// ReconcileStatus reports an inventory reconciliation request. With a
// Temporal client the run is asynchronous and only the workflow IDs are set.
type ReconcileStatus struct {
	WorkflowID string                     `json:"workflowId,omitempty"`
	RunID      string                     `json:"runId,omitempty"`
	Report     *inventory.ReconcileReport `json:"report,omitempty"`
}

// HealthStatus is the payload of the health endpoint
type HealthStatus struct {
	Status string    `json:"status"`
	Store  string    `json:"store"`
	Time   time.Time `json:"timestamp"`
}

// Deps gathers the collaborators of the service
type Deps struct {
	Store       storage.Store
	Inventory   *inventory.Manager
	Coordinator *booking.Coordinator
	Publisher   events.Publisher
	// Temporal is optional; without it reconciliation runs inline
	Temporal  client.Client
	TaskQueue string
	Logger    *zap.Logger
}

// bookingServiceImpl implements BookingService
type bookingServiceImpl struct {
	store          storage.Store
	inventory      *inventory.Manager
	bookings       *booking.Coordinator
	publisher      events.Publisher
	temporalClient client.Client
	taskQueue      string
	logger         *zap.Logger
}

// NewBookingService creates a new BookingService
func NewBookingService(d Deps) BookingService {
	if d.Publisher == nil {
		d.Publisher = events.Nop{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &bookingServiceImpl{
		store:          d.Store,
		inventory:      d.Inventory,
		bookings:       d.Coordinator,
		publisher:      d.Publisher,
		temporalClient: d.Temporal,
		taskQueue:      d.TaskQueue,
		logger:         d.Logger,
	}
}

func (s *bookingServiceImpl) ListTrips(ctx context.Context, filter models.TripFilter) ([]models.Trip, error) {
	return s.inventory.ListAndRepair(ctx, filter)
}

func (s *bookingServiceImpl) GetTrip(ctx context.Context, tripID string) (*models.Trip, error) {
	return s.inventory.LoadAndRepair(ctx, tripID)
}

func (s *bookingServiceImpl) CreateTrip(ctx context.Context, actor models.Actor, req models.CreateTripRequest) (*models.Trip, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	trip, err := s.inventory.CreateTrip(ctx, req)
	if err != nil {
		return nil, err
	}
	s.announce(ctx, trip.ID, trip)
	return trip, nil
}

func (s *bookingServiceImpl) UpdateTrip(ctx context.Context, actor models.Actor, tripID string, req models.UpdateTripRequest) (*models.Trip, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	trip, err := s.inventory.UpdateTrip(ctx, tripID, req)
	if err != nil {
		return nil, err
	}
	s.announce(ctx, trip.ID, trip)
	return trip, nil
}

func (s *bookingServiceImpl) DeleteTrip(ctx context.Context, actor models.Actor, tripID string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := s.inventory.DeleteTrip(ctx, tripID); err != nil {
		return err
	}
	s.announce(ctx, tripID, nil)
	return nil
}

func (s *bookingServiceImpl) CreateBooking(ctx context.Context, actor models.Actor, req models.CreateBookingRequest) (*models.Booking, error) {
	return s.bookings.CreateBooking(ctx, actor, req)
}

func (s *bookingServiceImpl) CancelBooking(ctx context.Context, actor models.Actor, bookingID string) (*models.Booking, error) {
	return s.bookings.CancelBooking(ctx, actor, bookingID)
}

func (s *bookingServiceImpl) ListUserBookings(ctx context.Context, actor models.Actor) (*models.UserBookings, error) {
	return s.bookings.ListBookingsForUser(ctx, actor)
}

func (s *bookingServiceImpl) ListAllBookings(ctx context.Context, actor models.Actor) ([]models.Booking, error) {
	return s.bookings.ListAllBookings(ctx, actor)
}

func (s *bookingServiceImpl) GetBooking(ctx context.Context, actor models.Actor, bookingID string) (*models.Booking, error) {
	return s.bookings.GetBooking(ctx, actor, bookingID)
}

func (s *bookingServiceImpl) Ticket(ctx context.Context, actor models.Actor, bookingID string) (*models.Booking, []byte, error) {
	b, err := s.bookings.GetBooking(ctx, actor, bookingID)
	if err != nil {
		return nil, nil, err
	}
	pdf, err := ticket.Render(b)
	if err != nil {
		s.logger.Error("failed to render ticket", zap.String("bookingId", bookingID), zap.Error(err))
		return nil, nil, apperror.Storage(err)
	}
	return b, pdf, nil
}

func (s *bookingServiceImpl) Reconcile(ctx context.Context, actor models.Actor, tripIDs []string) (*ReconcileStatus, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	if s.temporalClient == nil {
		report, err := s.inventory.ReconcileAll(ctx)
		if err != nil {
			return nil, err
		}
		return &ReconcileStatus{Report: &report}, nil
	}

	workflowOptions := client.StartWorkflowOptions{
		ID:        fmt.Sprintf("%s-%d", workflows.ReconcileWorkflowID, time.Now().UnixNano()),
		TaskQueue: s.taskQueue,
	}
	run, err := s.temporalClient.ExecuteWorkflow(ctx, workflowOptions, workflows.ReconcileWorkflowName,
		workflows.ReconcileInput{TripIDs: tripIDs})
	if err != nil {
		return nil, apperror.Storage(fmt.Errorf("failed to start workflow: %w", err))
	}

	s.logger.Info("reconcile workflow started",
		zap.String("workflowId", run.GetID()), zap.String("runId", run.GetRunID()))
	return &ReconcileStatus{WorkflowID: run.GetID(), RunID: run.GetRunID()}, nil
}

func (s *bookingServiceImpl) Health(ctx context.Context) (*HealthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	status := &HealthStatus{Status: "healthy", Store: "up", Time: time.Now().UTC()}
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("store health check failed", zap.Error(err))
		status.Status = "unhealthy"
		status.Store = "down"
		return status, apperror.Storage(err)
	}
	return status, nil
}

func (s *bookingServiceImpl) announce(ctx context.Context, tripID string, trip *models.Trip) {
	evt := events.Event{
		Type:       events.TripUpdated,
		TripID:     tripID,
		OccurredAt: time.Now().UTC(),
		Trip:       trip,
	}
	if trip != nil {
		evt.Trip = trip.Clone()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("failed to announce trip change", zap.String("tripId", tripID), zap.Error(err))
	}
}

func requireAdmin(actor models.Actor) error {
	if actor.UserID == "" {
		return apperror.Unauthorized("Authentication required")
	}
	if !actor.IsAdmin() {
		return apperror.Forbidden("Admin access required")
	}
	return nil
}
