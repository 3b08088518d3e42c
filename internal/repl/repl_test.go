package repl

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalflow/evalflow/internal/fixtures"
	"github.com/evalflow/evalflow/internal/storage/sqlite"
	"github.com/evalflow/evalflow/internal/types"
	"github.com/evalflow/evalflow/internal/workflow"
)

const seed = `
surveys:
  - id: madurez
    name: Madurez digital
    dimensions:
      - id: procesos
        name: Procesos
        questions:
          - {id: q1, text: Procesos documentados}
      - id: cultura
        name: Cultura
        questions: [Formacion]
companies:
  - {id: acme, name: Acme}
users:
  - {id: ana, name: Ana Admin, role: administrador, companies: [acme]}
  - {id: ursula, name: Ursula Uno, role: usuario, companies: [acme]}
evaluations:
  - {id: eval-acme, survey: madurez, company: acme, owner: ana, deadline_in: 720h}
`

func init() {
	color.NoColor = true
}

// newConsole returns a console signed in as ana, and an assignment of
// "procesos" to ursula that is already waiting for review.
func newConsole(t *testing.T) (*REPL, *bytes.Buffer, *types.Assignment) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	store, err := sqlite.New(filepath.Join(t.TempDir(), "repl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	fx, err := fixtures.Parse([]byte(seed))
	require.NoError(t, err)
	_, err = fx.Apply(ctx, store, now)
	require.NoError(t, err)

	svc, err := workflow.New(&workflow.Config{Store: store, Clock: func() time.Time { return now }})
	require.NoError(t, err)

	dim := "procesos"
	a, err := svc.Create(ctx, "ana", types.CreateAssignmentRequest{
		EvaluationID:   "eval-acme",
		DimensionID:    &dim,
		AssigneeID:     "ursula",
		Deadline:       now.Add(7 * 24 * time.Hour),
		RequiresReview: true,
	})
	require.NoError(t, err)
	a, err = svc.EditAnswer(ctx, "ursula", a.ID, "q1", "no")
	require.NoError(t, err)
	require.Equal(t, types.StatePendingReview, a.State)

	var out bytes.Buffer
	r, err := New(&Config{Service: svc, Actor: "ana", Out: &out})
	require.NoError(t, err)
	return r, &out, a
}

func TestNewRequiresServiceAndActor(t *testing.T) {
	_, err := New(&Config{Actor: "ana"})
	assert.Error(t, err)

	r, _, _ := newConsole(t)
	_, err = New(&Config{Service: r.svc})
	assert.Error(t, err)
}

func TestReviewSession(t *testing.T) {
	r, out, a := newConsole(t)
	ctx := context.Background()

	require.NoError(t, r.Exec(ctx, "pending eval-acme"))
	assert.Contains(t, out.String(), "Waiting for review (1)")
	assert.Contains(t, out.String(), a.ID)

	out.Reset()
	require.NoError(t, r.Exec(ctx, "edit "+a.ID+" q1 si, con manual"))
	assert.Contains(t, out.String(), "Answer q1 updated")
	assert.Contains(t, out.String(), "pendiente_revision")

	out.Reset()
	require.NoError(t, r.Exec(ctx, "answers "+a.ID))
	assert.Contains(t, out.String(), "si, con manual")

	out.Reset()
	require.NoError(t, r.Exec(ctx, "approve "+a.ID+" buen trabajo"))
	assert.Contains(t, out.String(), "is now completado")

	out.Reset()
	require.NoError(t, r.Exec(ctx, "pending eval-acme"))
	assert.Contains(t, out.String(), "Nothing waiting for review")

	out.Reset()
	require.NoError(t, r.Exec(ctx, "show "+a.ID))
	assert.Contains(t, out.String(), "State:      completado")
	assert.Contains(t, out.String(), "Comments:   buen trabajo")

	out.Reset()
	require.NoError(t, r.Exec(ctx, "history "+a.ID+" 1"))
	assert.Contains(t, out.String(), "approved")
	assert.NotContains(t, out.String(), "created")
}

func TestRejectNeedsComments(t *testing.T) {
	r, out, a := newConsole(t)
	ctx := context.Background()

	err := r.Exec(ctx, "reject "+a.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usage: reject")

	require.NoError(t, r.Exec(ctx, "reject "+a.ID+" falta evidencia"))
	assert.Contains(t, out.String(), "is now rechazado")
}

func TestProgressAndAvailability(t *testing.T) {
	r, out, _ := newConsole(t)
	ctx := context.Background()

	require.NoError(t, r.Exec(ctx, "progress eval-acme"))
	assert.Contains(t, out.String(), "Dimensions: 1 assigned, 0 completed of 2")
	assert.Contains(t, out.String(), "Use 'pending eval-acme'")

	out.Reset()
	require.NoError(t, r.Exec(ctx, "availability eval-acme"))
	assert.Contains(t, out.String(), "Assigned (1)")
	assert.Contains(t, out.String(), "Ursula Uno")
	assert.Contains(t, out.String(), "Available (1)")
	assert.Contains(t, out.String(), "Cultura")
}

func TestCommandErrors(t *testing.T) {
	r, out, _ := newConsole(t)
	ctx := context.Background()

	assert.NoError(t, r.Exec(ctx, "   "))
	assert.ErrorContains(t, r.Exec(ctx, "launch"), `unknown command "launch"`)
	assert.ErrorContains(t, r.Exec(ctx, "show"), "usage: show <assignment>")
	assert.ErrorContains(t, r.Exec(ctx, "history x -1"), "usage: history")
	assert.Error(t, r.Exec(ctx, "show missing-id"))

	require.NoError(t, r.Exec(ctx, "help"))
	assert.Contains(t, out.String(), "reject <assignment> <comments...>")

	assert.ErrorIs(t, r.Exec(ctx, "exit"), errExit)
	assert.ErrorIs(t, r.Exec(ctx, "quit"), errExit)
}
