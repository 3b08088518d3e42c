package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evalflow/evalflow/internal/types"
)

var reviewCmd = &cobra.Command{
	Use:   "review <assignment> <aprobar|rechazar>",
	Short: "Approve or reject work waiting for review",
	Long: `Approve or reject an assignment in pendiente_revision.
Rejecting requires --comments.

Example:
  evalflow review 3f1c... aprobar
  evalflow review 3f1c... rechazar --comments "Falta evidencia en 2.3"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := requireActor()
		if err != nil {
			return err
		}
		comments, _ := cmd.Flags().GetString("comments")
		a, err := svc.Review(cmd.Context(), actor, args[0], types.ReviewDecision{
			Action:   parseAction(args[1]),
			Comments: comments,
		})
		if err != nil {
			return err
		}
		return printAssignment(cmd.OutOrStdout(), "Reviewed", a)
	},
}

// parseAction accepts the English verbs as aliases.
func parseAction(s string) types.ReviewAction {
	switch strings.ToLower(s) {
	case "approve":
		return types.ActionApprove
	case "reject":
		return types.ActionReject
	}
	return types.ReviewAction(strings.ToLower(s))
}

var submitCmd = &cobra.Command{
	Use:   "submit <assignment>",
	Short: "Send reopened work back to review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := requireActor()
		if err != nil {
			return err
		}
		a, err := svc.SubmitForReview(cmd.Context(), actor, args[0])
		if err != nil {
			return err
		}
		return printAssignment(cmd.OutOrStdout(), "Submitted", a)
	},
}

var answerCmd = &cobra.Command{
	Use:   "answer <assignment> <question> [value...]",
	Short: "Record, correct or retract an answer",
	Long: `Record an answer as the assignee, or correct one as a reviewer while the
work is in review. With --retract the answer is removed instead.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := requireActor()
		if err != nil {
			return err
		}
		retract, _ := cmd.Flags().GetBool("retract")

		var a *types.Assignment
		if retract {
			if len(args) > 2 {
				return fmt.Errorf("--retract takes no value")
			}
			a, err = svc.RetractAnswer(cmd.Context(), actor, args[0], args[1])
		} else {
			if len(args) < 3 {
				return fmt.Errorf("a value is required (or pass --retract)")
			}
			a, err = svc.EditAnswer(cmd.Context(), actor, args[0], args[1], strings.Join(args[2:], " "))
		}
		if err != nil {
			return err
		}
		return printAssignment(cmd.OutOrStdout(), "Updated", a)
	},
}

var recountCmd = &cobra.Command{
	Use:   "recount <assignment> [question]",
	Short: "Re-read the answered count after answers were recorded elsewhere",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := requireActor()
		if err != nil {
			return err
		}
		question := ""
		if len(args) > 1 {
			question = args[1]
		}
		a, err := svc.RecordAnswer(cmd.Context(), actor, args[0], question)
		if err != nil {
			return err
		}
		return printAssignment(cmd.OutOrStdout(), "Recounted", a)
	},
}

func init() {
	reviewCmd.Flags().String("comments", "", "Reviewer comments (required to reject)")
	answerCmd.Flags().Bool("retract", false, "Remove the answer instead of setting it")
	rootCmd.AddCommand(reviewCmd, submitCmd, answerCmd, recountCmd)
}
