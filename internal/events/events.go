// Package events publishes booking domain events after a unit of work commits.
package events

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/cx-tal-miterani/bus-booking-system/internal/metrics"
	"github.com/cx-tal-miterani/bus-booking-system/internal/models"
)

type Type string

const (
	BookingCreated   Type = "booking.created"
	BookingCancelled Type = "booking.cancelled"
	TripUpdated      Type = "trip.updated"
)

// Event describes a committed change to bookings or seat inventory
type Event struct {
	Type        Type      `json:"type"`
	BookingID   string    `json:"bookingId,omitempty"`
	TripID      string    `json:"tripId"`
	UserID      string    `json:"userId,omitempty"`
	Seats       []int     `json:"seats,omitempty"`
	TotalAmount float64   `json:"totalAmount,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`

	// Trip is the post-commit seat map, for live seat views
	Trip *models.Trip `json:"-"`
}

// Publisher delivers events somewhere. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Nop discards every event
type Nop struct{}

func (Nop) Publish(ctx context.Context, evt Event) error { return nil }

// Multi fans an event out to several publishers, attempting all of them
type Multi struct {
	publishers map[string]Publisher
	order      []string
	logger     *zap.Logger
}

// NewMulti creates an empty fan-out publisher
func NewMulti(logger *zap.Logger) *Multi {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Multi{publishers: make(map[string]Publisher), logger: logger}
}

// Add registers p under name, used in logs and metrics
func (m *Multi) Add(name string, p Publisher) *Multi {
	if _, ok := m.publishers[name]; !ok {
		m.order = append(m.order, name)
	}
	m.publishers[name] = p
	return m
}

func (m *Multi) Publish(ctx context.Context, evt Event) error {
	var errs []error
	for _, name := range m.order {
		if err := m.publishers[name].Publish(ctx, evt); err != nil {
			metrics.EventPublishFailures.WithLabelValues(name).Inc()
			m.logger.Warn("failed to publish event",
				zap.String("publisher", name),
				zap.String("type", string(evt.Type)),
				zap.String("tripId", evt.TripID),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FromBooking builds an event for booking b with the trip's current seat map
func FromBooking(t Type, b *models.Booking, trip *models.Trip, at time.Time) Event {
	return Event{
		Type:        t,
		BookingID:   b.ID,
		TripID:      b.Trip.ID,
		UserID:      b.User.ID,
		Seats:       append([]int(nil), b.Seats...),
		TotalAmount: b.TotalAmount,
		OccurredAt:  at,
		Trip:        trip,
	}
}
