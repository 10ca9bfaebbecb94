package workflows

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/cx-tal-miterani/bus-booking-system/internal/activities"
)

// Register adds the reconciliation workflow and its activities to w
func Register(w worker.Registry, acts *activities.Activities) {
	w.RegisterWorkflowWithOptions(InventoryReconcileWorkflow, workflow.RegisterOptions{Name: ReconcileWorkflowName})
	w.RegisterActivityWithOptions(acts.ReconcileTrips, activity.RegisterOptions{Name: "ReconcileTrips"})
	w.RegisterActivityWithOptions(acts.RepairTrip, activity.RegisterOptions{Name: "RepairTrip"})
}

// ScheduleCron starts the periodic full reconciliation. An already running
// schedule is left as is.
func ScheduleCron(ctx context.Context, c client.Client, taskQueue, cron string) error {
	if cron == "" {
		return nil
	}
	_, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:           ReconcileWorkflowID,
		TaskQueue:    taskQueue,
		CronSchedule: cron,
	}, ReconcileWorkflowName, ReconcileInput{})
	if err != nil && !temporal.IsWorkflowExecutionAlreadyStartedError(err) {
		return fmt.Errorf("failed to schedule reconciliation: %w", err)
	}
	return nil
}
