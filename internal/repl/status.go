package repl

import (
	"context"
	"fmt"

	"github.com/fatih/color"

	"github.com/evalflow/evalflow/internal/types"
)

// cmdProgress shows the evaluation rollup
func (r *REPL) cmdProgress(ctx context.Context, args []string) error {
	if err := need(args, 1, r.commands["progress"].usage); err != nil {
		return err
	}
	p, err := r.svc.Progress(ctx, r.actor, args[0])
	if err != nil {
		return err
	}

	ev := p.Evaluation
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Fprintf(r.out, "\n%s %s\n\n", cyan("Evaluation"), ev.ID)
	fmt.Fprintf(r.out, "  State:      %s\n", stateColor(string(ev.State)))
	fmt.Fprintf(r.out, "  Progress:   %.1f%%\n", ev.Progress)
	fmt.Fprintf(r.out, "  Dimensions: %d assigned, %d completed of %d\n",
		ev.AssignedDimensions, ev.CompletedDimensions, ev.TotalDimensions)
	fmt.Fprintf(r.out, "  Deadline:   %s\n\n", ev.Deadline.Format("2006-01-02"))

	s := p.Stats
	fmt.Fprintf(r.out, "  %s  %d\n", green("✓ Completed"), s.Completed)
	fmt.Fprintf(r.out, "  %s  %d\n", yellow("⚡ Pending review"), s.PendingReview)
	fmt.Fprintf(r.out, "  %s  %d\n", yellow("… In progress"), s.InProgress)
	fmt.Fprintf(r.out, "  %s  %d\n", "○ Pending", s.Pending)
	fmt.Fprintf(r.out, "  %s  %d\n", red("⊗ Rejected"), s.Rejected)
	if s.Overdue > 0 {
		fmt.Fprintf(r.out, "  %s  %d\n", red("! Overdue"), s.Overdue)
	}
	fmt.Fprintln(r.out)
	if s.PendingReview > 0 {
		fmt.Fprintf(r.out, "Use 'pending %s' to see work waiting for review\n\n", ev.ID)
	}
	return nil
}

// cmdAvailability shows which dimensions are held and which are free
func (r *REPL) cmdAvailability(ctx context.Context, args []string) error {
	if err := need(args, 1, r.commands["availability"].usage); err != nil {
		return err
	}
	report, err := r.svc.Availability(ctx, r.actor, args[0])
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(r.out, "\n%s (%d)\n", cyan("Assigned"), len(report.Assigned))
	for _, h := range report.Assigned {
		overdue := ""
		if h.Overdue {
			overdue = color.New(color.FgRed).Sprint(" overdue")
		}
		fmt.Fprintf(r.out, "  %-24s %-20s %s %5.1f%%%s\n",
			h.Dimension.Name, h.AssigneeName, stateColor(string(h.State)), h.Progress, overdue)
	}
	fmt.Fprintf(r.out, "\n%s (%d)\n", cyan("Available"), len(report.Available))
	for _, d := range report.Available {
		fmt.Fprintf(r.out, "  %-24s %d questions\n", d.Name, d.TotalQuestions)
	}
	fmt.Fprintln(r.out)
	return nil
}

// stateColor renders assignment and evaluation states.
func stateColor(state string) string {
	switch state {
	case string(types.StateCompleted), string(types.EvaluationCompleted):
		return color.GreenString(state)
	case string(types.StatePendingReview), string(types.StateInProgress):
		return color.YellowString(state)
	case string(types.StateRejected), types.StateOverdueLabel,
		string(types.EvaluationOverdue), string(types.EvaluationCancelled):
		return color.RedString(state)
	default:
		return state
	}
}
