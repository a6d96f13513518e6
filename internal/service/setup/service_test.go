package setup

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonhq/halcyon/internal/model"
	"github.com/halcyonhq/halcyon/internal/storage"
	"github.com/halcyonhq/halcyon/internal/testutil"
)

var (
	testDB  *storage.DB
	testSvc *Service
)

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()
	defer tc.Terminate()

	var err error
	testDB, err = tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create test DB: %v\n", err)
		os.Exit(1)
	}
	defer testDB.Close()

	testSvc = New(testDB, testutil.TestLogger())

	os.Exit(m.Run())
}

func createTestUser(t *testing.T) model.User {
	t.Helper()
	user, err := testDB.CreateUser(context.Background(), model.User{
		Email: fmt.Sprintf("user-%s@example.com", uuid.New()),
		Name:  "Test User",
	})
	require.NoError(t, err)
	return user
}

// fullDraft builds a draft exercising every entity type and both reference
// styles (ephemeral id and operation title).
func fullDraft() model.DraftSystem {
	target := 8.0
	initial := 6.0
	return model.DraftSystem{
		Operations: []model.DraftOperation{
			{ID: "op-1", Title: "Health", Description: "Body and mind"},
			{ID: "op-2", Title: "Career"},
		},
		Metrics: []model.DraftMetric{
			{ID: "m-1", Name: "Sleep", Unit: "hours", OptimalValue: 8, MinimumValue: 6,
				Comparator: model.CompareAtLeast, OperationID: "op-1"},
			{ID: "m-2", Name: "Deep work", Unit: "hours", OptimalValue: 4, MinimumValue: 2,
				Comparator: model.CompareAtLeast, OperationName: "Career"},
		},
		Habits: []model.DraftHabit{
			{ID: "h-1", Name: "Meditate", OperationID: "op-1"},
			{ID: "h-2", Name: "Read", OperationName: "Career"},
			{ID: "h-3", Name: "Journal"},
		},
		Goals: []model.DraftGoal{
			{ID: "g-1", Title: "Sleep 8 hours", Type: model.GoalTypeMetric,
				MetricName: "Sleep", TargetValue: &target, InitialValue: &initial, OperationID: "op-1"},
			{ID: "g-2", Title: "Launch project", Type: model.GoalTypeSubgoal,
				Subgoals: []string{"Write plan", "Build MVP", "Ship"}},
		},
		Schedule: &model.DraftSchedule{WakeHour: 7, SleepHour: 23},
	}
}

func TestFinalize(t *testing.T) {
	ctx := context.Background()
	user := createTestUser(t)

	res, err := testSvc.Finalize(ctx, user.ID, fullDraft(), Params{})
	require.NoError(t, err)
	assert.Equal(t, Result{Operations: 2, Goals: 2, Habits: 3, Metrics: 2}, res)

	ops, err := testDB.GetOperationsByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, "Health", ops[0].Title)
	assert.Equal(t, "Career", ops[1].Title)

	// Habits occupy positions 0..H-1, numeric metrics continue at H.
	habits, err := testDB.GetMetricsByUser(ctx, user.ID, model.MetricKindBoolean)
	require.NoError(t, err)
	require.Len(t, habits, 3)
	for i, h := range habits {
		assert.Equal(t, i, h.Position)
	}
	metrics, err := testDB.GetMetricsByUser(ctx, user.ID, model.MetricKindNumeric)
	require.NoError(t, err)
	require.Len(t, metrics, 2)
	assert.Equal(t, 3, metrics[0].Position)
	assert.Equal(t, 4, metrics[1].Position)

	// Metric → operation links, including the title-based one.
	require.NotNil(t, ops[0].MetricID)
	assert.Equal(t, metrics[0].ID, *ops[0].MetricID)
	require.NotNil(t, ops[1].MetricID)
	assert.Equal(t, metrics[1].ID, *ops[1].MetricID)

	// Habit links: h-1 → Health, h-2 → Career, h-3 unlinked.
	healthHabits, err := testDB.GetOperationHabits(ctx, ops[0].ID)
	require.NoError(t, err)
	require.Len(t, healthHabits, 1)
	assert.Equal(t, habits[0].ID, healthHabits[0].MetricID)

	careerHabits, err := testDB.GetOperationHabits(ctx, ops[1].ID)
	require.NoError(t, err)
	require.Len(t, careerHabits, 1)
	assert.Equal(t, habits[1].ID, careerHabits[0].MetricID)

	// Goals: metric goal linked by name, subgoal goal with its checklist.
	goals, err := testDB.GetGoalsByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, goals, 2)
	var metricGoal, subgoalGoal model.Goal
	for _, g := range goals {
		switch g.Type {
		case model.GoalTypeMetric:
			metricGoal = g
		case model.GoalTypeSubgoal:
			subgoalGoal = g
		}
	}
	require.NotNil(t, metricGoal.MetricID)
	assert.Equal(t, metrics[0].ID, *metricGoal.MetricID)
	require.NotNil(t, metricGoal.OperationID)
	assert.Equal(t, ops[0].ID, *metricGoal.OperationID)
	require.NotNil(t, metricGoal.TargetValue)
	assert.Equal(t, 8.0, *metricGoal.TargetValue)

	subs, err := testDB.GetSubgoalsByGoal(ctx, subgoalGoal.ID)
	require.NoError(t, err)
	require.Len(t, subs, 3)
	assert.Equal(t, "Write plan", subs[0].Title)
	assert.Equal(t, "Ship", subs[2].Title)

	// Schedule and onboarding phase landed on the user.
	got, err := testDB.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got.WakeHour)
	assert.Equal(t, 7, *got.WakeHour)
	phase, err := testDB.GetOnboardingPhase(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OnboardingPhaseComplete, phase)

	// Terminal analytics event with the run's counts.
	events, err := testDB.GetSetupEventsByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.SetupEventFinalized, events[0].EventType)
	assert.True(t, events[0].Success)
	assert.Equal(t, float64(2), events[0].Payload["operations"])
	assert.Equal(t, float64(3), events[0].Payload["habits"])
}

func TestFinalize_InvalidDraftWritesNothing(t *testing.T) {
	ctx := context.Background()
	user := createTestUser(t)

	draft := fullDraft()
	draft.Metrics[0].Comparator = "roughly"

	_, err := testSvc.Finalize(ctx, user.ID, draft, Params{})
	require.ErrorIs(t, err, ErrInvalidDraft)

	ops, err := testDB.GetOperationsByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, ops)

	events, err := testDB.GetSetupEventsByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestFinalize_DanglingRefsDegradeSoftly(t *testing.T) {
	ctx := context.Background()
	user := createTestUser(t)

	target := 10.0
	draft := model.DraftSystem{
		Operations: []model.DraftOperation{{ID: "op-1", Title: "Health"}},
		Habits: []model.DraftHabit{
			{ID: "h-1", Name: "Run", OperationID: "op-missing"},
		},
		Goals: []model.DraftGoal{
			{ID: "g-1", Title: "Mystery goal", Type: model.GoalTypeMetric,
				MetricName: "No Such Metric", TargetValue: &target},
		},
	}

	res, err := testSvc.Finalize(ctx, user.ID, draft, Params{})
	require.NoError(t, err)
	assert.Equal(t, Result{Operations: 1, Goals: 1, Habits: 1, Metrics: 0}, res)

	// The habit row exists but the dangling link was skipped.
	habits, err := testDB.GetMetricsByUser(ctx, user.ID, model.MetricKindBoolean)
	require.NoError(t, err)
	require.Len(t, habits, 1)
	ops, err := testDB.GetOperationsByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	links, err := testDB.GetOperationHabits(ctx, ops[0].ID)
	require.NoError(t, err)
	assert.Empty(t, links)

	// The goal persisted unlinked.
	goals, err := testDB.GetGoalsByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Nil(t, goals[0].MetricID)
	require.NotNil(t, goals[0].TargetValue)
	assert.Equal(t, 10.0, *goals[0].TargetValue)
}

// breakMetricInserts installs a unique index that makes duplicate metric names
// fail, simulating a mid-run load-bearing write failure.
func breakMetricInserts(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := testDB.Pool().Exec(ctx,
		`CREATE UNIQUE INDEX uq_metrics_user_name ON metrics (user_id, name)`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = testDB.Pool().Exec(context.Background(), `DROP INDEX IF EXISTS uq_metrics_user_name`)
	})
}

func TestFinalize_LoadBearingFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	user := createTestUser(t)
	breakMetricInserts(t)

	draft := fullDraft()
	// Duplicate numeric metric names trip the injected constraint during the
	// metrics pass, after operations were already written.
	draft.Metrics[1].Name = draft.Metrics[0].Name

	_, err := testSvc.Finalize(ctx, user.ID, draft, Params{})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidDraft)

	// Compensation removed the operations created before the failure.
	ops, err := testDB.GetOperationsByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, ops)
	metrics, err := testDB.GetMetricsByUser(ctx, user.ID, model.MetricKindNumeric)
	require.NoError(t, err)
	assert.Empty(t, metrics)
	goals, err := testDB.GetGoalsByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, goals)

	// The failure event was recorded.
	events, err := testDB.GetSetupEventsByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Success)
	assert.NotEmpty(t, events[0].Payload["error"])
}

func TestFinalize_LateFailureRollsBackGoals(t *testing.T) {
	ctx := context.Background()
	user := createTestUser(t)
	breakMetricInserts(t)

	draft := fullDraft()
	// Duplicate habit names fail the habit pass, after operations, numeric
	// metrics, and goals all succeeded.
	draft.Habits[2].Name = draft.Habits[0].Name

	_, err := testSvc.Finalize(ctx, user.ID, draft, Params{})
	require.Error(t, err)

	ops, err := testDB.GetOperationsByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, ops)
	metrics, err := testDB.GetMetricsByUser(ctx, user.ID, model.MetricKindNumeric)
	require.NoError(t, err)
	assert.Empty(t, metrics)
	habits, err := testDB.GetMetricsByUser(ctx, user.ID, model.MetricKindBoolean)
	require.NoError(t, err)
	assert.Empty(t, habits)
	goals, err := testDB.GetGoalsByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, goals)
}

func TestFinalize_ClaimPath(t *testing.T) {
	ctx := context.Background()
	user := createTestUser(t)
	draftID := "draft-" + uuid.New().String()

	res, err := testSvc.Finalize(ctx, user.ID, fullDraft(), Params{DraftID: draftID, RequireClaim: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Operations)

	done, err := testDB.HasCompletedClaim(ctx, draftID)
	require.NoError(t, err)
	assert.True(t, done)

	// The terminal event carries the draft id on the claim path.
	events, err := testDB.GetSetupEventsByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.SetupEventClaimed, events[0].EventType)
	require.NotNil(t, events[0].DraftID)
	assert.Equal(t, draftID, *events[0].DraftID)

	// The same draft cannot be materialized twice, even by the same user.
	other := createTestUser(t)
	_, err = testSvc.Finalize(ctx, other.ID, fullDraft(), Params{DraftID: draftID, RequireClaim: true})
	require.ErrorIs(t, err, ErrAlreadyClaimed)

	ops, err := testDB.GetOperationsByUser(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestFinalize_ClaimReleasedOnAbort(t *testing.T) {
	ctx := context.Background()
	user := createTestUser(t)
	draftID := "draft-" + uuid.New().String()
	breakMetricInserts(t)

	bad := fullDraft()
	bad.Metrics[1].Name = bad.Metrics[0].Name

	_, err := testSvc.Finalize(ctx, user.ID, bad, Params{DraftID: draftID, RequireClaim: true})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrAlreadyClaimed)

	// The hard failure released the claim, so a corrected retry succeeds.
	_, err = testSvc.Finalize(ctx, user.ID, fullDraft(), Params{DraftID: draftID, RequireClaim: true})
	require.NoError(t, err)
}
