package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cx-tal-miterani/bus-booking-system/internal/models"
	"github.com/cx-tal-miterani/bus-booking-system/internal/storage"
)

type tx struct {
	store *Store
	mode  storage.IsolationMode
	sess  mongo.Session
	ended bool
}

func (t *tx) Mode() storage.IsolationMode { return t.mode }

// opCtx binds ctx to the session when the unit is transactional
func (t *tx) opCtx(ctx context.Context) context.Context {
	if t.sess != nil {
		return mongo.NewSessionContext(ctx, t.sess)
	}
	return ctx
}

func (t *tx) wrap(err error, action string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return storage.ErrNotFound
	}
	if isTxConflict(err) {
		return storage.ErrTxConflict
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

func (t *tx) GetTrip(ctx context.Context, id string) (*models.Trip, error) {
	var trip models.Trip
	err := t.store.trips.FindOne(t.opCtx(ctx), bson.M{"_id": id}).Decode(&trip)
	if err != nil {
		return nil, t.wrap(err, "get trip")
	}
	return &trip, nil
}

// tripQuery translates a TripFilter into a mongo filter document
func tripQuery(f models.TripFilter) bson.M {
	q := bson.M{}
	if f.Source != "" {
		q["source"] = bson.M{"$regex": regexp.QuoteMeta(f.Source), "$options": "i"}
	}
	if f.Destination != "" {
		q["destination"] = bson.M{"$regex": regexp.QuoteMeta(f.Destination), "$options": "i"}
	}
	if f.Date != nil {
		start, end := storage.DayRange(*f.Date)
		q["date"] = bson.M{"$gte": start, "$lt": end}
	}
	return q
}

// tripSort orders listings by departure date then time
var tripSort = bson.D{{Key: "date", Value: 1}, {Key: "time", Value: 1}}

func (t *tx) ListTrips(ctx context.Context, filter models.TripFilter) ([]models.Trip, error) {
	opts := options.Find().SetSort(tripSort)
	cur, err := t.store.trips.Find(t.opCtx(ctx), tripQuery(filter), opts)
	if err != nil {
		return nil, t.wrap(err, "query trips")
	}
	var trips []models.Trip
	if err := cur.All(t.opCtx(ctx), &trips); err != nil {
		return nil, t.wrap(err, "decode trips")
	}
	return trips, nil
}

func (t *tx) InsertTrip(ctx context.Context, trip *models.Trip) error {
	_, err := t.store.trips.InsertOne(t.opCtx(ctx), trip)
	return t.wrap(err, "insert trip")
}

func (t *tx) SaveTrip(ctx context.Context, trip *models.Trip) error {
	next := trip.Clone()
	next.Version = trip.Version + 1
	next.UpdatedAt = time.Now().UTC()

	res, err := t.store.trips.ReplaceOne(t.opCtx(ctx),
		bson.M{"_id": trip.ID, "version": trip.Version},
		next,
	)
	if err != nil {
		return t.wrap(err, "save trip")
	}
	if res.MatchedCount == 0 {
		return storage.ErrStaleWrite
	}
	trip.Version = next.Version
	trip.UpdatedAt = next.UpdatedAt
	return nil
}

func (t *tx) DeleteTrip(ctx context.Context, id string) error {
	res, err := t.store.trips.DeleteOne(t.opCtx(ctx), bson.M{"_id": id})
	if err != nil {
		return t.wrap(err, "delete trip")
	}
	if res.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *tx) InsertBooking(ctx context.Context, booking *models.Booking) error {
	_, err := t.store.bookings.InsertOne(t.opCtx(ctx), booking)
	return t.wrap(err, "insert booking")
}

func (t *tx) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	err := t.store.bookings.FindOne(t.opCtx(ctx), bson.M{"_id": id}).Decode(&b)
	if err != nil {
		return nil, t.wrap(err, "get booking")
	}
	return &b, nil
}

func (t *tx) SetBookingStatus(ctx context.Context, id string, from, to models.BookingStatus, at time.Time) error {
	res, err := t.store.bookings.UpdateOne(t.opCtx(ctx),
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "updatedAt": at}},
	)
	if err != nil {
		return t.wrap(err, "update booking status")
	}
	if res.MatchedCount == 0 {
		if _, err := t.GetBooking(ctx, id); err != nil {
			return err
		}
		return storage.ErrStaleWrite
	}
	return nil
}

func (t *tx) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	q := bson.M{}
	if filter.UserID != "" {
		q["user.id"] = filter.UserID
	}
	opts := options.Find().SetSort(bson.D{{Key: "bookingDate", Value: -1}})
	cur, err := t.store.bookings.Find(t.opCtx(ctx), q, opts)
	if err != nil {
		return nil, t.wrap(err, "query bookings")
	}
	var bookings []models.Booking
	if err := cur.All(t.opCtx(ctx), &bookings); err != nil {
		return nil, t.wrap(err, "decode bookings")
	}
	return bookings, nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.sess == nil || t.ended {
		return nil
	}
	t.ended = true
	defer t.sess.EndSession(ctx)
	if err := t.sess.CommitTransaction(ctx); err != nil {
		if isTxConflict(err) {
			return storage.ErrTxConflict
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.sess == nil || t.ended {
		return nil
	}
	t.ended = true
	defer t.sess.EndSession(ctx)
	return t.sess.AbortTransaction(ctx)
}
