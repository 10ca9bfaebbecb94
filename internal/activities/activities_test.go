package activities

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
	"go.uber.org/zap"

	"github.com/cx-tal-miterani/bus-booking-system/internal/inventory"
	"github.com/cx-tal-miterani/bus-booking-system/internal/models"
	"github.com/cx-tal-miterani/bus-booking-system/internal/storage"
	"github.com/cx-tal-miterani/bus-booking-system/internal/storage/badgerstore"
)

func setupActivities(t *testing.T) (*testsuite.TestActivityEnvironment, *Activities, storage.Store) {
	t.Helper()
	store, err := badgerstore.OpenInMemory(storage.Transactional)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	acts := New(inventory.NewManager(store, zap.NewNop()))
	env.RegisterActivity(acts)
	return env, acts, store
}

func insertBroken(t *testing.T, store storage.Store, id string) {
	t.Helper()
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertTrip(ctx, &models.Trip{
		ID:          id,
		Source:      "Pune",
		Destination: "Mumbai",
		Date:        time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC),
		Time:        "08:30",
		Price:       10,
		TotalSeats:  4,
		Seats:       []models.Seat{{Number: 2, IsBooked: true}},
	}))
	require.NoError(t, tx.Commit(ctx))
}

func TestReconcileTrips(t *testing.T) {
	env, acts, store := setupActivities(t)
	insertBroken(t, store, "t1")
	insertBroken(t, store, "t2")

	val, err := env.ExecuteActivity(acts.ReconcileTrips)
	require.NoError(t, err)

	var report inventory.ReconcileReport
	require.NoError(t, val.Get(&report))
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 2, report.Repaired)
	assert.Empty(t, report.Failed)

	val, err = env.ExecuteActivity(acts.ReconcileTrips)
	require.NoError(t, err)
	require.NoError(t, val.Get(&report))
	assert.Equal(t, 0, report.Repaired)
}

func TestRepairTrip(t *testing.T) {
	env, acts, store := setupActivities(t)
	insertBroken(t, store, "t1")

	val, err := env.ExecuteActivity(acts.RepairTrip, "t1")
	require.NoError(t, err)
	var res RepairTripResult
	require.NoError(t, val.Get(&res))
	assert.True(t, res.Found)
	assert.True(t, res.Repaired)
	assert.Equal(t, 4, res.TotalSeats)
	assert.Equal(t, 3, res.AvailableSeats)

	val, err = env.ExecuteActivity(acts.RepairTrip, "t1")
	require.NoError(t, err)
	res = RepairTripResult{}
	require.NoError(t, val.Get(&res))
	assert.True(t, res.Found)
	assert.False(t, res.Repaired)

	val, err = env.ExecuteActivity(acts.RepairTrip, "missing")
	require.NoError(t, err)
	res = RepairTripResult{}
	require.NoError(t, val.Get(&res))
	assert.False(t, res.Found)
	assert.Equal(t, "missing", res.TripID)
}
