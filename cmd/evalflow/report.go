package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/evalflow/evalflow/internal/types"
)

var progressCmd = &cobra.Command{
	Use:   "progress <evaluation>",
	Short: "Show the progress rollup of an evaluation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := requireActor()
		if err != nil {
			return err
		}
		p, err := svc.Progress(cmd.Context(), actor, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, p)
		}

		ev, s := p.Evaluation, p.Stats
		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Fprintf(out, "\n%s %s\n\n", cyan("Evaluation"), ev.ID)
		fmt.Fprintf(out, "  State:      %s\n", stateLabel(string(ev.State)))
		fmt.Fprintf(out, "  Progress:   %.1f%%\n", ev.Progress)
		fmt.Fprintf(out, "  Dimensions: %d/%d assigned, %d completed\n",
			ev.AssignedDimensions, ev.TotalDimensions, ev.CompletedDimensions)
		fmt.Fprintf(out, "  Deadline:   %s\n\n", ev.Deadline.Format("2006-01-02"))
		fmt.Fprintf(out, "  Assignments: %d (pendiente %d, en_progreso %d, pendiente_revision %d, completado %d, rechazado %d, vencido %d)\n\n",
			s.Total, s.Pending, s.InProgress, s.PendingReview, s.Completed, s.Rejected, s.Overdue)
		return nil
	},
}

var availabilityCmd = &cobra.Command{
	Use:   "availability <evaluation>",
	Short: "Show which dimensions are assigned and which are free",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := requireActor()
		if err != nil {
			return err
		}
		report, err := svc.Availability(cmd.Context(), actor, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, report)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Fprintf(out, "%s (%d)\n", cyan("Assigned"), len(report.Assigned))
		for _, h := range report.Assigned {
			state := string(h.State)
			if h.Overdue {
				state = types.StateOverdueLabel
			}
			fmt.Fprintf(out, "  %-24s %-20s %s\n", h.Dimension.Name, h.AssigneeName, stateLabel(state))
		}
		fmt.Fprintf(out, "%s (%d)\n", cyan("Available"), len(report.Available))
		for _, d := range report.Available {
			fmt.Fprintf(out, "  %-24s %d questions\n", d.Name, d.TotalQuestions)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <assignment>",
	Short: "Show the audit trail of an assignment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := requireActor()
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		history, err := svc.History(cmd.Context(), actor, args[0], limit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, history)
		}
		gray := color.New(color.FgHiBlack).SprintFunc()
		for _, e := range history {
			line := fmt.Sprintf("%s  %-22s %s", e.CreatedAt.Format("2006-01-02 15:04:05"), e.EventType, e.Actor)
			if e.NewValue != nil {
				old := "-"
				if e.OldValue != nil {
					old = *e.OldValue
				}
				line += fmt.Sprintf("  %s → %s", old, *e.NewValue)
			}
			if e.Comment != nil {
				line += "  " + gray(*e.Comment)
			}
			fmt.Fprintln(out, line)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the assignments of an evaluation or a user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := requireActor()
		if err != nil {
			return err
		}
		evaluation, _ := cmd.Flags().GetString("evaluation")
		user, _ := cmd.Flags().GetString("user")
		if (evaluation == "") == (user == "") {
			return fmt.Errorf("pass exactly one of --evaluation and --user")
		}
		if evaluation != "" {
			list, err := svc.EvaluationAssignments(cmd.Context(), actor, evaluation)
			if err != nil {
				return err
			}
			return printAssignmentList(cmd.OutOrStdout(), list)
		}
		list, err := svc.UserAssignments(cmd.Context(), actor, user)
		if err != nil {
			return err
		}
		return printAssignmentList(cmd.OutOrStdout(), list)
	},
}

func init() {
	historyCmd.Flags().Int("limit", 0, "Only show the most recent entries")
	listCmd.Flags().String("evaluation", "", "Evaluation id")
	listCmd.Flags().String("user", "", "User id")
	rootCmd.AddCommand(progressCmd, availabilityCmd, historyCmd, listCmd)
}
