package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/cx-tal-miterani/bus-booking-system/internal/models"
	"github.com/cx-tal-miterani/bus-booking-system/internal/service"
)

// MockBookingService is a mock implementation of BookingService
type MockBookingService struct {
	mock.Mock
}

var _ service.BookingService = (*MockBookingService)(nil)

func (m *MockBookingService) ListTrips(ctx context.Context, filter models.TripFilter) ([]models.Trip, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Trip), args.Error(1)
}

func (m *MockBookingService) GetTrip(ctx context.Context, tripID string) (*models.Trip, error) {
	args := m.Called(ctx, tripID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Trip), args.Error(1)
}

func (m *MockBookingService) CreateTrip(ctx context.Context, actor models.Actor, req models.CreateTripRequest) (*models.Trip, error) {
	args := m.Called(ctx, actor, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Trip), args.Error(1)
}

func (m *MockBookingService) UpdateTrip(ctx context.Context, actor models.Actor, tripID string, req models.UpdateTripRequest) (*models.Trip, error) {
	args := m.Called(ctx, actor, tripID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Trip), args.Error(1)
}

func (m *MockBookingService) DeleteTrip(ctx context.Context, actor models.Actor, tripID string) error {
	args := m.Called(ctx, actor, tripID)
	return args.Error(0)
}

func (m *MockBookingService) CreateBooking(ctx context.Context, actor models.Actor, req models.CreateBookingRequest) (*models.Booking, error) {
	args := m.Called(ctx, actor, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockBookingService) CancelBooking(ctx context.Context, actor models.Actor, bookingID string) (*models.Booking, error) {
	args := m.Called(ctx, actor, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockBookingService) ListUserBookings(ctx context.Context, actor models.Actor) (*models.UserBookings, error) {
	args := m.Called(ctx, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserBookings), args.Error(1)
}

func (m *MockBookingService) ListAllBookings(ctx context.Context, actor models.Actor) ([]models.Booking, error) {
	args := m.Called(ctx, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *MockBookingService) GetBooking(ctx context.Context, actor models.Actor, bookingID string) (*models.Booking, error) {
	args := m.Called(ctx, actor, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockBookingService) Ticket(ctx context.Context, actor models.Actor, bookingID string) (*models.Booking, []byte, error) {
	args := m.Called(ctx, actor, bookingID)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*models.Booking), args.Get(1).([]byte), args.Error(2)
}

func (m *MockBookingService) Reconcile(ctx context.Context, actor models.Actor, tripIDs []string) (*service.ReconcileStatus, error) {
	args := m.Called(ctx, actor, tripIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ReconcileStatus), args.Error(1)
}

func (m *MockBookingService) Health(ctx context.Context) (*service.HealthStatus, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.HealthStatus), args.Error(1)
}
