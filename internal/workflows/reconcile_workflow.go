package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/cx-tal-miterani/bus-booking-system/internal/activities"
	"github.com/cx-tal-miterani/bus-booking-system/internal/inventory"
)

const (
	// ReconcileWorkflowName is the registered name of InventoryReconcileWorkflow
	ReconcileWorkflowName = "InventoryReconcileWorkflow"
	// ReconcileWorkflowID is used for the cron schedule and ad-hoc runs
	ReconcileWorkflowID = "inventory-reconcile"

	ReconcileTimeout = 5 * time.Minute
	RepairTimeout    = 30 * time.Second
)

// ReconcileInput selects the trips to repair. No trip IDs means all trips.
type ReconcileInput struct {
	TripIDs []string `json:"tripIds,omitempty"`
}

// ReconcileResult summarizes a workflow run
type ReconcileResult struct {
	Scanned  int      `json:"scanned"`
	Repaired int      `json:"repaired"`
	Missing  []string `json:"missing,omitempty"`
	Failed   []string `json:"failed,omitempty"`
}

// InventoryReconcileWorkflow repairs stored seat inventory, either for the
// whole catalogue or for the listed trips
func InventoryReconcileWorkflow(ctx workflow.Context, input ReconcileInput) (*ReconcileResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Reconcile workflow started", "trips", len(input.TripIDs))

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: ReconcileTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	})

	var a *activities.Activities
	result := &ReconcileResult{}

	if len(input.TripIDs) == 0 {
		var report inventory.ReconcileReport
		if err := workflow.ExecuteActivity(ctx, a.ReconcileTrips).Get(ctx, &report); err != nil {
			logger.Error("Reconcile failed", "error", err)
			return nil, err
		}
		result.Scanned = report.Scanned
		result.Repaired = report.Repaired
		result.Failed = report.Failed
		logger.Info("Reconcile workflow finished", "scanned", result.Scanned, "repaired", result.Repaired)
		return result, nil
	}

	repairCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: RepairTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 3,
		},
	})

	futures := make([]workflow.Future, len(input.TripIDs))
	for i, id := range input.TripIDs {
		futures[i] = workflow.ExecuteActivity(repairCtx, a.RepairTrip, id)
	}
	for i, f := range futures {
		result.Scanned++
		var res activities.RepairTripResult
		if err := f.Get(ctx, &res); err != nil {
			logger.Warn("Trip repair failed", "tripID", input.TripIDs[i], "error", err)
			result.Failed = append(result.Failed, input.TripIDs[i])
			continue
		}
		if !res.Found {
			result.Missing = append(result.Missing, res.TripID)
			continue
		}
		if res.Repaired {
			result.Repaired++
		}
	}

	logger.Info("Reconcile workflow finished",
		"scanned", result.Scanned, "repaired", result.Repaired, "failed", len(result.Failed))
	return result, nil
}
