package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/evalflow/evalflow/internal/types"
)

var assignCmd = &cobra.Command{
	Use:   "assign <evaluation> <user>",
	Short: "Assign a dimension (or the whole survey) of an evaluation to a user",
	Long: `Assign one dimension of an evaluation to a member of the evaluated company.
Without --dimension the whole survey is assigned.

Example:
  evalflow assign eval-acme ursula --dimension estrategia --deadline 2026-12-01T00:00:00Z
  evalflow assign eval-acme ugo --in 168h --review`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := requireActor()
		if err != nil {
			return err
		}
		deadline, err := deadlineFlag(cmd)
		if err != nil {
			return err
		}
		dimension, _ := cmd.Flags().GetString("dimension")
		review, _ := cmd.Flags().GetBool("review")
		notes, _ := cmd.Flags().GetString("notes")

		req := types.CreateAssignmentRequest{
			EvaluationID:   args[0],
			AssigneeID:     args[1],
			Deadline:       deadline,
			RequiresReview: review,
			Notes:          notes,
		}
		if dimension != "" {
			req.DimensionID = &dimension
		}
		a, err := svc.Create(cmd.Context(), actor, req)
		if err != nil {
			return err
		}
		return printAssignment(cmd.OutOrStdout(), "Created", a)
	},
}

var bulkCmd = &cobra.Command{
	Use:   "bulk <evaluation> <user> <dimension>...",
	Short: "Assign several dimensions to one user, reporting each failure",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := requireActor()
		if err != nil {
			return err
		}
		deadline, err := deadlineFlag(cmd)
		if err != nil {
			return err
		}
		review, _ := cmd.Flags().GetBool("review")
		notes, _ := cmd.Flags().GetString("notes")

		result, err := svc.BulkAssign(cmd.Context(), actor, types.BulkAssignRequest{
			EvaluationID:   args[0],
			AssigneeID:     args[1],
			DimensionIDs:   args[2:],
			Deadline:       deadline,
			RequiresReview: review,
			Notes:          notes,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, result)
		}
		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		for _, a := range result.Created {
			fmt.Fprintf(out, "%s %s → %s\n", green("✓"), claimLabel(a), a.ID)
		}
		for _, e := range result.Errors {
			fmt.Fprintf(out, "%s %s: %s (%s)\n", red("✗"), e.DimensionID, e.Message, e.Code)
		}
		fmt.Fprintf(out, "\n%d assigned, %d failed\n", result.Succeeded, result.Failed)
		return nil
	},
}

var reassignCmd = &cobra.Command{
	Use:   "reassign <assignment> <new-user>",
	Short: "Move pending or rejected work to another member",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := requireActor()
		if err != nil {
			return err
		}
		reason, _ := cmd.Flags().GetString("reason")
		req := types.ReassignRequest{NewAssigneeID: args[1], Reason: reason}
		if cmd.Flags().Changed("deadline") || cmd.Flags().Changed("in") {
			deadline, err := deadlineFlag(cmd)
			if err != nil {
				return err
			}
			req.NewDeadline = &deadline
		}
		a, err := svc.Reassign(cmd.Context(), actor, args[0], req)
		if err != nil {
			return err
		}
		return printAssignment(cmd.OutOrStdout(), "Reassigned", a)
	},
}

var deactivateCmd = &cobra.Command{
	Use:   "deactivate <assignment>",
	Short: "Withdraw an assignment and free its dimension",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := requireActor()
		if err != nil {
			return err
		}
		reason, _ := cmd.Flags().GetString("reason")
		a, err := svc.Deactivate(cmd.Context(), actor, args[0], reason)
		if err != nil {
			return err
		}
		return printAssignment(cmd.OutOrStdout(), "Deactivated", a)
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <evaluation>",
	Short: "Cancel an evaluation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := requireActor()
		if err != nil {
			return err
		}
		ev, err := svc.CancelEvaluation(cmd.Context(), actor, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, ev)
		}
		fmt.Fprintf(out, "%s Evaluation %s is %s\n", color.New(color.FgGreen).Sprint("✓"), ev.ID, stateLabel(string(ev.State)))
		return nil
	},
}

// deadlineFlag reads --deadline (RFC 3339) or --in (duration from now).
func deadlineFlag(cmd *cobra.Command) (time.Time, error) {
	raw, _ := cmd.Flags().GetString("deadline")
	in, _ := cmd.Flags().GetDuration("in")
	switch {
	case raw != "" && in != 0:
		return time.Time{}, fmt.Errorf("use either --deadline or --in, not both")
	case raw != "":
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --deadline %q: expected RFC 3339", raw)
		}
		return t, nil
	case in > 0:
		return time.Now().Add(in), nil
	default:
		return time.Time{}, fmt.Errorf("a deadline is required: pass --deadline or --in")
	}
}

func addDeadlineFlags(cmd *cobra.Command) {
	cmd.Flags().String("deadline", "", "Deadline in RFC 3339 (e.g. 2026-12-01T00:00:00Z)")
	cmd.Flags().Duration("in", 0, "Deadline relative to now (e.g. 168h)")
}

func init() {
	for _, cmd := range []*cobra.Command{assignCmd, bulkCmd} {
		addDeadlineFlags(cmd)
		cmd.Flags().Bool("review", false, "Require review before the work counts as completed")
		cmd.Flags().String("notes", "", "Notes for the assignee")
	}
	assignCmd.Flags().String("dimension", "", "Dimension to assign (default: whole survey)")

	addDeadlineFlags(reassignCmd)
	reassignCmd.Flags().String("reason", "", "Why the work is moving")
	deactivateCmd.Flags().String("reason", "", "Why the assignment is withdrawn")

	rootCmd.AddCommand(assignCmd, bulkCmd, reassignCmd, deactivateCmd, cancelCmd)
}
