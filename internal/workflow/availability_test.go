package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	evalerrors "github.com/evalflow/evalflow/internal/errors"
	"github.com/evalflow/evalflow/internal/types"
)

func TestAvailabilityNothingAssigned(t *testing.T) {
	e := newTestEnv(t, 2, 2, 2)

	av, err := e.svc.Availability(context.Background(), e.admin.ID, e.evaluation.ID)
	require.NoError(t, err)
	assert.Len(t, av.Dimensions, 3)
	assert.Len(t, av.Available, 3)
	assert.Empty(t, av.Assigned)
}

func TestAvailabilityHolders(t *testing.T) {
	e := newTestEnv(t, 2, 2, 2)
	ctx := context.Background()

	held := e.create(t, e.dims[0], e.u1.ID, false)
	_, err := e.svc.EditAnswer(ctx, e.u1.ID, held.ID, e.questions[e.dims[0].ID][0].ID, "2")
	require.NoError(t, err)

	rejected := e.answerAll(t, e.create(t, e.dims[1], e.u2.ID, true))
	_, err = e.svc.Review(ctx, e.admin.ID, rejected.ID, types.ReviewDecision{Action: types.ActionReject, Comments: "no"})
	require.NoError(t, err)

	e.now = e.now.Add(10 * 24 * time.Hour)

	av, err := e.svc.Availability(ctx, e.admin.ID, e.evaluation.ID)
	require.NoError(t, err)
	require.Len(t, av.Assigned, 1)
	holder := av.Assigned[0]
	assert.Equal(t, e.dims[0].ID, holder.Dimension.ID)
	assert.Equal(t, "Ursula Uno", holder.AssigneeName)
	assert.Equal(t, types.StateInProgress, holder.State)
	assert.InDelta(t, 50.0, holder.Progress, 0.0001)
	assert.True(t, holder.Overdue, "deadline passed while in progress")

	var available []string
	for _, d := range av.Available {
		available = append(available, d.ID)
	}
	assert.ElementsMatch(t, []string{e.dims[1].ID, e.dims[2].ID}, available,
		"a rejected assignment does not hold its dimension")

	_, err = e.svc.Availability(ctx, e.u1.ID, e.evaluation.ID)
	assert.ErrorIs(t, err, evalerrors.ErrPermissionDenied)
}

func TestCurrentHoldersPicksMostRecent(t *testing.T) {
	e := newTestEnv(t, 1)
	dim := e.dims[0].ID
	older := &types.Assignment{ID: "a", DimensionID: &dim, Active: true, State: types.StatePending, CreatedAt: e.now}
	newer := &types.Assignment{ID: "b", DimensionID: &dim, Active: true, State: types.StatePending, CreatedAt: e.now.Add(time.Second)}
	inactive := &types.Assignment{ID: "c", DimensionID: &dim, Active: false, State: types.StatePending, CreatedAt: e.now.Add(2 * time.Second)}

	holders := currentHolders([]*types.Assignment{newer, older, inactive})
	require.Contains(t, holders, dim)
	assert.Equal(t, "b", holders[dim].ID)
}

func TestBulkAssignPartialSuccess(t *testing.T) {
	e := newTestEnv(t, 2, 2)
	ctx := context.Background()

	existing := e.create(t, e.dims[0], e.u2.ID, false)

	res, err := e.svc.BulkAssign(ctx, e.admin.ID, types.BulkAssignRequest{
		EvaluationID: e.evaluation.ID,
		DimensionIDs: []string{e.dims[0].ID, e.dims[1].ID},
		AssigneeID:   e.u1.ID,
		Deadline:     e.now.Add(72 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, e.dims[0].ID, res.Errors[0].DimensionID)
	assert.Equal(t, string(evalerrors.CodeDimensionAlreadyAssigned), res.Errors[0].Code)
	require.Len(t, res.Created, 1)
	assert.Equal(t, e.dims[1].ID, res.Created[0].DimensionKey())

	untouched, err := e.store.GetAssignment(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, e.u2.ID, untouched.AssigneeID)
	assert.True(t, untouched.Active)

	assert.Equal(t, 2, e.evaluationNow(t).AssignedDimensions)
}

func TestBulkAssignRejectsWholeRequest(t *testing.T) {
	e := newTestEnv(t, 1)
	ctx := context.Background()

	empty := &types.Survey{Name: "Vacia"}
	require.NoError(t, e.store.CreateSurvey(ctx, empty))
	emptyEval := e.newEvaluation(t, empty.ID)

	req := types.BulkAssignRequest{
		EvaluationID: emptyEval.ID,
		DimensionIDs: []string{"d1"},
		AssigneeID:   e.u1.ID,
		Deadline:     e.now.Add(time.Hour),
	}
	_, err := e.svc.BulkAssign(ctx, e.admin.ID, req)
	assert.ErrorIs(t, err, evalerrors.ErrEmptySurvey)

	_, err = e.svc.Create(ctx, e.admin.ID, types.CreateAssignmentRequest{
		EvaluationID: emptyEval.ID, AssigneeID: e.u1.ID, Deadline: req.Deadline,
	})
	assert.ErrorIs(t, err, evalerrors.ErrEmptySurvey, "whole-survey work needs dimensions too")

	av, err := e.svc.Availability(ctx, e.admin.ID, emptyEval.ID)
	require.NoError(t, err)
	assert.Empty(t, av.Dimensions)
	assert.Empty(t, av.Available)

	req.EvaluationID = e.evaluation.ID
	req.DimensionIDs = nil
	_, err = e.svc.BulkAssign(ctx, e.admin.ID, req)
	assert.ErrorIs(t, err, evalerrors.ErrValidation)

	req.DimensionIDs = []string{e.dims[0].ID}
	_, err = e.svc.BulkAssign(ctx, e.u1.ID, req)
	assert.ErrorIs(t, err, evalerrors.ErrPermissionDenied)
}

func TestBulkAssignReportsEveryFailure(t *testing.T) {
	e := newTestEnv(t, 1, 1)
	ctx := context.Background()

	res, err := e.svc.BulkAssign(ctx, e.admin.ID, types.BulkAssignRequest{
		EvaluationID: e.evaluation.ID,
		DimensionIDs: []string{e.dims[0].ID, "nope", e.dims[0].ID},
		AssigneeID:   e.stranger.ID,
		Deadline:     e.now.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Succeeded)
	assert.Equal(t, 3, res.Failed)
	require.Len(t, res.Errors, 3)
	for _, be := range res.Errors {
		assert.Equal(t, string(evalerrors.CodeValidation), be.Code)
	}
	assert.Contains(t, res.Errors[2].Message, "more than once")
}

func TestBulkAssignReportsDuplicates(t *testing.T) {
	e := newTestEnv(t, 1, 1)
	ctx := context.Background()

	ids := []string{e.dims[0].ID, e.dims[1].ID, e.dims[0].ID}
	res, err := e.svc.BulkAssign(ctx, e.admin.ID, types.BulkAssignRequest{
		EvaluationID: e.evaluation.ID,
		DimensionIDs: ids,
		AssigneeID:   e.u1.ID,
		Deadline:     e.now.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, len(ids), res.Succeeded+res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, e.dims[0].ID, res.Errors[0].DimensionID)
	assert.Equal(t, string(evalerrors.CodeValidation), res.Errors[0].Code)
	assert.Equal(t, 2, e.evaluationNow(t).AssignedDimensions)
}
