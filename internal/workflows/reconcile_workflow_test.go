package workflows

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"

	"github.com/cx-tal-miterani/bus-booking-system/internal/activities"
	"github.com/cx-tal-miterani/bus-booking-system/internal/inventory"
)

type ReconcileWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *ReconcileWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	s.env.RegisterActivity(&activities.Activities{})
}

func (s *ReconcileWorkflowTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func TestReconcileWorkflowTestSuite(t *testing.T) {
	suite.Run(t, new(ReconcileWorkflowTestSuite))
}

func (s *ReconcileWorkflowTestSuite) TestAllTrips() {
	s.env.OnActivity("ReconcileTrips", mock.Anything).
		Return(&inventory.ReconcileReport{Scanned: 5, Repaired: 2, Failed: []string{"t9"}}, nil).Once()

	s.env.ExecuteWorkflow(InventoryReconcileWorkflow, ReconcileInput{})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var result ReconcileResult
	s.NoError(s.env.GetWorkflowResult(&result))
	s.Equal(5, result.Scanned)
	s.Equal(2, result.Repaired)
	s.Equal([]string{"t9"}, result.Failed)
}

func (s *ReconcileWorkflowTestSuite) TestSelectedTrips() {
	s.env.OnActivity("RepairTrip", mock.Anything, "t1").
		Return(&activities.RepairTripResult{TripID: "t1", Found: true, Repaired: true, TotalSeats: 40, AvailableSeats: 38}, nil)
	s.env.OnActivity("RepairTrip", mock.Anything, "t4").
		Return(&activities.RepairTripResult{TripID: "t4", Found: true, TotalSeats: 10, AvailableSeats: 10}, nil)
	s.env.OnActivity("RepairTrip", mock.Anything, "t2").
		Return(&activities.RepairTripResult{TripID: "t2"}, nil)
	s.env.OnActivity("RepairTrip", mock.Anything, "t3").
		Return(nil, errors.New("store unavailable"))

	s.env.ExecuteWorkflow(InventoryReconcileWorkflow, ReconcileInput{TripIDs: []string{"t1", "t2", "t3", "t4"}})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var result ReconcileResult
	s.NoError(s.env.GetWorkflowResult(&result))
	s.Equal(4, result.Scanned)
	s.Equal(1, result.Repaired, "a consistent trip is not counted as repaired")
	s.Equal([]string{"t2"}, result.Missing)
	s.Equal([]string{"t3"}, result.Failed)
}

func (s *ReconcileWorkflowTestSuite) TestReconcileError() {
	s.env.OnActivity("ReconcileTrips", mock.Anything).Return(nil, errors.New("boom"))

	s.env.ExecuteWorkflow(InventoryReconcileWorkflow, ReconcileInput{})

	s.True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
}
