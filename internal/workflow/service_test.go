package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	evalerrors "github.com/evalflow/evalflow/internal/errors"
	"github.com/evalflow/evalflow/internal/events"
	"github.com/evalflow/evalflow/internal/storage"
	"github.com/evalflow/evalflow/internal/storage/sqlite"
	"github.com/evalflow/evalflow/internal/types"
)

// testEnv is a service over a temp-file SQLite store with one survey, one
// company and one evaluation.
type testEnv struct {
	svc   *Service
	store *sqlite.SQLiteStorage
	rec   *events.Recorder
	now   time.Time

	survey     *types.Survey
	dims       []*types.Dimension
	questions  map[string][]*types.Question
	company    *types.Company
	admin      *types.User // administrator, member
	super      *types.User // superadmin, not a member
	outsider   *types.User // administrator of another company
	u1, u2     *types.User // members
	stranger   *types.User // plain user, not a member
	evaluation *types.Evaluation
}

func newTestEnv(t *testing.T, questionsPerDim ...int) *testEnv {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "evalflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	e := &testEnv{
		store:     store,
		rec:       &events.Recorder{},
		now:       time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		questions: map[string][]*types.Question{},
	}
	e.svc, err = New(&Config{
		Store:     store,
		Publisher: e.rec,
		Clock:     func() time.Time { return e.now },
	})
	require.NoError(t, err)

	e.survey = &types.Survey{Name: "Madurez digital"}
	require.NoError(t, store.CreateSurvey(ctx, e.survey))
	for i, n := range questionsPerDim {
		dim := &types.Dimension{SurveyID: e.survey.ID, Name: fmt.Sprintf("D%d", i+1), Position: i}
		require.NoError(t, store.CreateDimension(ctx, dim))
		for j := 0; j < n; j++ {
			q := &types.Question{DimensionID: dim.ID, Text: fmt.Sprintf("Q%d.%d", i+1, j+1), Position: j}
			require.NoError(t, store.CreateQuestion(ctx, q))
			e.questions[dim.ID] = append(e.questions[dim.ID], q)
		}
		dim.TotalQuestions = n
		e.dims = append(e.dims, dim)
	}

	e.company = &types.Company{Name: "Acme"}
	require.NoError(t, store.CreateCompany(ctx, e.company))
	other := &types.Company{Name: "Globex"}
	require.NoError(t, store.CreateCompany(ctx, other))

	e.admin = e.user(t, "Ana Admin", types.RoleAdmin, e.company.ID)
	e.super = e.user(t, "Sara Super", types.RoleSuperAdmin)
	e.outsider = e.user(t, "Oscar Otro", types.RoleAdmin, other.ID)
	e.u1 = e.user(t, "Ursula Uno", types.RoleUser, e.company.ID)
	e.u2 = e.user(t, "Ugo Dos", types.RoleUser, e.company.ID)
	e.stranger = e.user(t, "Esteban Extra", types.RoleUser, other.ID)

	e.evaluation = e.newEvaluation(t, e.survey.ID)
	return e
}

func (e *testEnv) user(t *testing.T, name string, role types.Role, companies ...string) *types.User {
	t.Helper()
	ctx := context.Background()
	u := &types.User{Name: name, Role: role}
	require.NoError(t, e.store.CreateUser(ctx, u))
	for _, c := range companies {
		require.NoError(t, e.store.AddCompanyMember(ctx, c, u.ID))
	}
	return u
}

func (e *testEnv) newEvaluation(t *testing.T, surveyID string) *types.Evaluation {
	t.Helper()
	ctx := context.Background()
	dims, err := e.store.ListDimensions(ctx, surveyID)
	require.NoError(t, err)
	ev := &types.Evaluation{
		SurveyID:        surveyID,
		CompanyID:       e.company.ID,
		OwnerID:         e.admin.ID,
		Deadline:        e.now.Add(30 * 24 * time.Hour),
		TotalDimensions: len(dims),
	}
	require.NoError(t, e.store.CreateEvaluation(ctx, ev))
	return ev
}

func (e *testEnv) request(dim *types.Dimension, assignee string, review bool) types.CreateAssignmentRequest {
	req := types.CreateAssignmentRequest{
		EvaluationID:   e.evaluation.ID,
		AssigneeID:     assignee,
		Deadline:       e.now.Add(7 * 24 * time.Hour),
		RequiresReview: review,
	}
	if dim != nil {
		id := dim.ID
		req.DimensionID = &id
	}
	return req
}

func (e *testEnv) create(t *testing.T, dim *types.Dimension, assignee string, review bool) *types.Assignment {
	t.Helper()
	a, err := e.svc.Create(context.Background(), e.admin.ID, e.request(dim, assignee, review))
	require.NoError(t, err)
	return a
}

// answerAll answers every question of the assignment's dimension as its assignee.
func (e *testEnv) answerAll(t *testing.T, a *types.Assignment) *types.Assignment {
	t.Helper()
	var err error
	for _, q := range e.questions[*a.DimensionID] {
		a, err = e.svc.EditAnswer(context.Background(), a.AssigneeID, a.ID, q.ID, "3")
		require.NoError(t, err)
	}
	return a
}

func (e *testEnv) evaluationNow(t *testing.T) *types.Evaluation {
	t.Helper()
	ev, err := e.store.GetEvaluation(context.Background(), e.evaluation.ID)
	require.NoError(t, err)
	return ev
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(&Config{})
	require.Error(t, err)
	_, err = New(nil)
	require.Error(t, err)
}

func TestPermissions(t *testing.T) {
	e := newTestEnv(t, 2)
	ctx := context.Background()
	req := e.request(e.dims[0], e.u1.ID, false)

	tests := []struct {
		name  string
		actor string
		want  *evalerrors.Error
	}{
		{"anonymous", "", evalerrors.ErrValidation},
		{"plain user", e.u2.ID, evalerrors.ErrPermissionDenied},
		{"admin of another company", e.outsider.ID, evalerrors.ErrPermissionDenied},
		{"unknown actor", "ghost", evalerrors.ErrPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.Create(ctx, tt.actor, req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	a, err := e.svc.Create(ctx, e.super.ID, req)
	require.NoError(t, err, "superadmins act on any company")
	assert.Equal(t, e.super.ID, a.AssignedBy)

	_, err = e.svc.Assignment(ctx, e.u1.ID, a.ID)
	assert.NoError(t, err, "assignees read their own work")
	_, err = e.svc.Assignment(ctx, e.u2.ID, a.ID)
	assert.ErrorIs(t, err, evalerrors.ErrPermissionDenied)
}

func TestUserAssignments(t *testing.T) {
	e := newTestEnv(t, 1, 1)
	ctx := context.Background()
	e.create(t, e.dims[0], e.u1.ID, false)
	e.create(t, e.dims[1], e.u2.ID, false)

	mine, err := e.svc.UserAssignments(ctx, e.u1.ID, e.u1.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, e.dims[0].ID, mine[0].DimensionKey())

	_, err = e.svc.UserAssignments(ctx, e.u2.ID, e.u1.ID)
	assert.ErrorIs(t, err, evalerrors.ErrPermissionDenied)

	theirs, err := e.svc.UserAssignments(ctx, e.super.ID, e.u2.ID)
	require.NoError(t, err)
	assert.Len(t, theirs, 1)
}

func TestNotificationsOnlyAfterCommit(t *testing.T) {
	e := newTestEnv(t, 1)
	ctx := context.Background()
	e.create(t, e.dims[0], e.u1.ID, false)
	require.Len(t, e.rec.Notifications(), 1)

	_, err := e.svc.Create(ctx, e.admin.ID, e.request(e.dims[0], e.u2.ID, false))
	require.ErrorIs(t, err, evalerrors.ErrDimensionAlreadyAssign)
	assert.Len(t, e.rec.Notifications(), 1)

	n := e.rec.OfType(events.EventTypeAssignmentCreated)[0]
	assert.Equal(t, e.u1.ID, n.TargetUserID)
	assert.Equal(t, e.admin.ID, n.ActorID)
	assert.Equal(t, e.evaluation.ID, n.EvaluationID)
}

func TestHistoryAndAnswers(t *testing.T) {
	e := newTestEnv(t, 2)
	ctx := context.Background()
	a := e.create(t, e.dims[0], e.u1.ID, false)
	e.answerAll(t, a)

	history, err := e.svc.History(ctx, e.admin.ID, a.ID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, types.EventCreated, history[0].EventType)

	last, err := e.svc.History(ctx, e.u1.ID, a.ID, 1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, history[len(history)-1].ID, last[0].ID)

	answers, err := e.svc.Answers(ctx, e.u1.ID, a.ID)
	require.NoError(t, err)
	assert.Len(t, answers, 2)

	_, err = e.svc.History(ctx, e.u2.ID, a.ID, 0)
	assert.ErrorIs(t, err, evalerrors.ErrPermissionDenied)
}

// storeTx runs fn against the store directly, for tests that play the
// question/answer collaborator.
func (e *testEnv) storeTx(t *testing.T, fn func(tx storage.Tx) error) {
	t.Helper()
	require.NoError(t, e.store.InTx(context.Background(), fn))
}
