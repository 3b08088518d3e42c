package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalflow/evalflow/internal/types"
)

func init() {
	color.NoColor = true
}

// run executes the CLI in-process with fresh flag values.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	actorID = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		_ = closeService()
	}
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func seededDB(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "cli.db")
	out, err := run(t, "--db", db, "seed", filepath.Join("..", "..", "examples", "seed.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "1 surveys, 3 dimensions, 5 questions")
	return db
}

func TestInitCreatesDatabase(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("EVALFLOW_DB_PATH", "")

	out, err := run(t, "init", "acme")
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized evalflow database")
	assert.Contains(t, out, "Schema:   v")

	_, err = os.Stat(filepath.Join(".evalflow", "acme.db"))
	assert.NoError(t, err)

	// Discovery finds the new database without --db.
	_, err = run(t, "--actor", "nobody", "recompute", "--all")
	assert.NoError(t, err)
}

func TestMissingDatabase(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("EVALFLOW_DB_PATH", "")

	_, err := run(t, "--actor", "ana", "progress", "eval-acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evalflow init")
}

func TestReviewWorkflowThroughCLI(t *testing.T) {
	db := seededDB(t)

	out, err := run(t, "--db", db, "--actor", "ana", "--json",
		"assign", "eval-acme", "ursula", "--dimension", "dim-procesos", "--in", "168h", "--review")
	require.NoError(t, err)
	var a types.Assignment
	require.NoError(t, json.Unmarshal([]byte(out), &a))
	assert.Equal(t, types.StatePending, a.State)
	assert.True(t, a.RequiresReview)

	out, err = run(t, "--db", db, "--actor", "ursula", "answer", a.ID, "q-pro-1", "si,", "documentados")
	require.NoError(t, err)
	assert.Contains(t, out, "pendiente_revision")

	_, err = run(t, "--db", db, "--actor", "ana", "review", a.ID, "rechazar")
	require.Error(t, err)

	out, err = run(t, "--db", db, "--actor", "ana", "review", a.ID, "reject", "--comments", "Falta evidencia")
	require.NoError(t, err)
	assert.Contains(t, out, "rechazado")
	assert.Contains(t, out, "Comments: Falta evidencia")

	out, err = run(t, "--db", db, "--actor", "ana", "history", a.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "created")
	assert.Contains(t, out, "rejected")

	out, err = run(t, "--db", db, "--actor", "ursula", "list", "--user", "ursula")
	require.NoError(t, err)
	assert.Contains(t, out, a.ID)

	// The rejected holder is superseded by a new assignment.
	out, err = run(t, "--db", db, "--actor", "ana", "assign", "eval-acme", "ugo",
		"--dimension", "dim-procesos", "--in", "72h")
	require.NoError(t, err)
	assert.Contains(t, out, "Created assignment")

	out, err = run(t, "--db", db, "--actor", "ana", "availability", "eval-acme")
	require.NoError(t, err)
	assert.Contains(t, out, "Assigned (1)")
	assert.Contains(t, out, "Ugo Dos")
	assert.Contains(t, out, "Available (2)")
}

func TestBulkAndProgress(t *testing.T) {
	db := seededDB(t)

	out, err := run(t, "--db", db, "--actor", "ana", "bulk", "eval-acme", "ugo",
		"dim-estrategia", "dim-cultura", "dim-nope", "--in", "240h")
	require.NoError(t, err)
	assert.Contains(t, out, "2 assigned, 1 failed")
	assert.Contains(t, out, "dim-nope")

	out, err = run(t, "--db", db, "--actor", "ana", "--json", "progress", "eval-acme")
	require.NoError(t, err)
	var p types.EvaluationProgress
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, 3, p.Evaluation.TotalDimensions)
	assert.Equal(t, 2, p.Evaluation.AssignedDimensions)
	assert.Equal(t, 2, p.Stats.Pending)

	out, err = run(t, "--db", db, "recompute", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "Replayed 1 evaluations")

	out, err = run(t, "--db", db, "--actor", "ana", "cancel", "eval-acme")
	require.NoError(t, err)
	assert.Contains(t, out, "cancelada")

	_, err = run(t, "--db", db, "--actor", "ana", "assign", "eval-acme", "ursula", "--in", "24h")
	assert.Error(t, err)
}

func TestCommandValidation(t *testing.T) {
	db := seededDB(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no actor", []string{"progress", "eval-acme"}, "no actor"},
		{"no deadline", []string{"--actor", "ana", "assign", "eval-acme", "ugo"}, "a deadline is required"},
		{"two deadlines", []string{"--actor", "ana", "assign", "eval-acme", "ugo", "--in", "1h", "--deadline", "2030-01-01T00:00:00Z"}, "either --deadline or --in"},
		{"bad deadline", []string{"--actor", "ana", "assign", "eval-acme", "ugo", "--deadline", "tomorrow"}, "expected RFC 3339"},
		{"answer without value", []string{"--actor", "ursula", "answer", "a", "q"}, "a value is required"},
		{"list without filter", []string{"--actor", "ana", "list"}, "exactly one of"},
		{"recompute without target", []string{"--actor", "ana", "recompute"}, "pass an evaluation id or --all"},
		{"not an admin", []string{"--actor", "ursula", "progress", "eval-acme"}, "may not manage assignments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, append([]string{"--db", db}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseAction(t *testing.T) {
	assert.Equal(t, types.ActionApprove, parseAction("approve"))
	assert.Equal(t, types.ActionApprove, parseAction("APROBAR"))
	assert.Equal(t, types.ActionReject, parseAction("reject"))
	assert.Equal(t, types.ReviewAction("maybe"), parseAction("maybe"))
}
