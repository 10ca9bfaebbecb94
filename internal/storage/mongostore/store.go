// Package mongostore stores trips and bookings as MongoDB documents. Units of
// work run inside a multi-document transaction when the deployment supports
// one (replica set or sharded cluster) and fall back to best-effort otherwise.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/cx-tal-miterani/bus-booking-system/internal/storage"
)

const (
	tripsCollection    = "trips"
	bookingsCollection = "bookings"
)

// Store is a mongo-backed storage.Store
type Store struct {
	client      *mongo.Client
	trips       *mongo.Collection
	bookings    *mongo.Collection
	supportsTxn bool
	logger      *zap.Logger
}

// NewMongoClient connects to the deployment at uri
func NewMongoClient(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx2, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx2, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx2, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return client, nil
}

// Open connects, probes transaction support and ensures indexes
func Open(ctx context.Context, uri, database string, logger *zap.Logger) (*Store, error) {
	client, err := NewMongoClient(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:   client,
		trips:    db.Collection(tripsCollection),
		bookings: db.Collection(bookingsCollection),
		logger:   logger,
	}

	s.supportsTxn, err = supportsTransactions(ctx, db)
	if err != nil {
		logger.Warn("could not probe mongo topology, using best-effort units", zap.Error(err))
	}
	logger.Info("mongo store ready",
		zap.String("database", database),
		zap.Bool("transactions", s.supportsTxn),
	)

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

type helloReply struct {
	SetName string `bson:"setName"`
	Msg     string `bson:"msg"`
}

// supportsTransactions reports whether the server is a replica set member or mongos
func supportsTransactions(ctx context.Context, db *mongo.Database) (bool, error) {
	var reply helloReply
	if err := db.RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&reply); err != nil {
		return false, err
	}
	return reply.SetName != "" || reply.Msg == "isdbgrid", nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.trips.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "date", Value: 1}, {Key: "time", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create trip index: %w", err)
	}
	_, err = s.bookings.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user.id", Value: 1}, {Key: "bookingDate", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create booking index: %w", err)
	}
	return nil
}

func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	if !s.supportsTxn {
		return &tx{store: s, mode: storage.BestEffort}, nil
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	if err := sess.StartTransaction(); err != nil {
		sess.EndSession(ctx)
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return &tx{store: s, mode: storage.Transactional, sess: sess}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// isTxConflict reports errors the server labels as safe to retry as a whole
func isTxConflict(err error) bool {
	var se mongo.ServerError
	if errors.As(err, &se) {
		return se.HasErrorLabel("TransientTransactionError") ||
			se.HasErrorLabel("UnknownTransactionCommitResult") ||
			se.HasErrorCode(112)
	}
	return false
}
