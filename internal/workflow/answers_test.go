package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	evalerrors "github.com/evalflow/evalflow/internal/errors"
	"github.com/evalflow/evalflow/internal/types"
)

func TestReviewerEditsDoNotChangeState(t *testing.T) {
	e := newTestEnv(t, 2)
	ctx := context.Background()
	q := e.questions[e.dims[0].ID][0]

	a := e.create(t, e.dims[0], e.u1.ID, true)
	_, err := e.svc.EditAnswer(ctx, e.admin.ID, a.ID, q.ID, "4")
	assert.ErrorIs(t, err, evalerrors.ErrInvalidState, "reviewers edit only work under review")

	a = e.answerAll(t, a)
	require.Equal(t, types.StatePendingReview, a.State)

	edited, err := e.svc.EditAnswer(ctx, e.admin.ID, a.ID, q.ID, "5")
	require.NoError(t, err)
	assert.Equal(t, types.StatePendingReview, edited.State)

	answers, err := e.store.ListAnswers(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, answers, 2)
	assert.Equal(t, "5", answers[0].Value)
	assert.Equal(t, e.admin.ID, answers[0].AnsweredBy)

	_, err = e.svc.RetractAnswer(ctx, e.admin.ID, a.ID, q.ID)
	assert.ErrorIs(t, err, evalerrors.ErrPermissionDenied)
}

func TestAssigneeEditsAreLockedDuringReview(t *testing.T) {
	e := newTestEnv(t, 1)
	ctx := context.Background()
	q := e.questions[e.dims[0].ID][0]

	a := e.answerAll(t, e.create(t, e.dims[0], e.u1.ID, true))
	_, err := e.svc.EditAnswer(ctx, e.u1.ID, a.ID, q.ID, "1")
	assert.ErrorIs(t, err, evalerrors.ErrInvalidState)

	_, err = e.svc.Review(ctx, e.admin.ID, a.ID, types.ReviewDecision{Action: types.ActionApprove})
	require.NoError(t, err)
	_, err = e.svc.RetractAnswer(ctx, e.u1.ID, a.ID, q.ID)
	assert.ErrorIs(t, err, evalerrors.ErrInvalidState, "approved work is final")
}

func TestRetractMovesStateBackWithoutReview(t *testing.T) {
	e := newTestEnv(t, 2)
	ctx := context.Background()
	qs := e.questions[e.dims[0].ID]

	a := e.answerAll(t, e.create(t, e.dims[0], e.u1.ID, false))
	require.Equal(t, types.StateCompleted, a.State)
	require.Equal(t, 1, e.evaluationNow(t).CompletedDimensions)

	a, err := e.svc.RetractAnswer(ctx, e.u1.ID, a.ID, qs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateInProgress, a.State)
	assert.Equal(t, 1, a.AnsweredQuestions)
	assert.Equal(t, 0, e.evaluationNow(t).CompletedDimensions)

	_, err = e.svc.RetractAnswer(ctx, e.u1.ID, a.ID, qs[1].ID)
	assert.ErrorIs(t, err, evalerrors.ErrNotFound)
}

func TestEditAnswerValidation(t *testing.T) {
	e := newTestEnv(t, 1, 1)
	ctx := context.Background()
	a := e.create(t, e.dims[0], e.u1.ID, false)
	other := e.questions[e.dims[1].ID][0]

	_, err := e.svc.EditAnswer(ctx, e.u1.ID, a.ID, other.ID, "3")
	assert.ErrorIs(t, err, evalerrors.ErrValidation, "question of another dimension")
	_, err = e.svc.EditAnswer(ctx, e.u1.ID, a.ID, "missing", "3")
	assert.ErrorIs(t, err, evalerrors.ErrNotFound)
	_, err = e.svc.EditAnswer(ctx, e.u1.ID, a.ID, other.ID, " ")
	assert.ErrorIs(t, err, evalerrors.ErrValidation)
	_, err = e.svc.EditAnswer(ctx, e.u1.ID, a.ID, "", "3")
	assert.ErrorIs(t, err, evalerrors.ErrValidation)
	_, err = e.svc.EditAnswer(ctx, e.u2.ID, a.ID, e.questions[e.dims[0].ID][0].ID, "3")
	assert.ErrorIs(t, err, evalerrors.ErrPermissionDenied)

	got, err := e.store.GetAssignment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatePending, got.State)
}
