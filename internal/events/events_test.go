package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cx-tal-miterani/bus-booking-system/internal/models"
)

type recordingPublisher struct {
	events []Event
	err    error
}

func (r *recordingPublisher) Publish(ctx context.Context, evt Event) error {
	r.events = append(r.events, evt)
	return r.err
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestMulti_PublishesToAllAndJoinsErrors(t *testing.T) {
	ok := &recordingPublisher{}
	failing := &recordingPublisher{err: errors.New("broker down")}

	m := NewMulti(nil).Add("failing", failing).Add("ok", ok)
	err := m.Publish(context.Background(), Event{Type: BookingCreated, TripID: "trip-1"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Len(t, failing.events, 1)
	assert.Len(t, ok.events, 1, "a failing publisher must not stop the others")
}

func TestKafkaPublisher_KeysByTrip(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	b := &models.Booking{
		ID:          "booking-1",
		User:        models.UserRef{ID: "user-a"},
		Trip:        models.TripSummary{ID: "trip-1"},
		Seats:       []int{1, 2},
		TotalAmount: 90,
	}
	require.NoError(t, p.Publish(context.Background(), FromBooking(BookingCreated, b, &models.Trip{ID: "trip-1"}, at)))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "trip-1", string(msg.Key))
	assert.Equal(t, at, msg.Time)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "booking.created", decoded["type"])
	assert.Equal(t, "booking-1", decoded["bookingId"])
	assert.NotContains(t, decoded, "Trip")

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}
