package repl

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/evalflow/evalflow/internal/types"
)

// cmdPending lists the assignments of an evaluation waiting for review
func (r *REPL) cmdPending(ctx context.Context, args []string) error {
	if err := need(args, 1, r.commands["pending"].usage); err != nil {
		return err
	}
	list, err := r.svc.EvaluationAssignments(ctx, r.actor, args[0])
	if err != nil {
		return err
	}

	var pending []*types.Assignment
	for _, a := range list {
		if a.State == types.StatePendingReview {
			pending = append(pending, a)
		}
	}
	if len(pending) == 0 {
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(r.out, "\n%s Nothing waiting for review\n\n", green("✓"))
		return nil
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(r.out, "\n%s (%d)\n\n", cyan("Waiting for review"), len(pending))
	for _, a := range pending {
		submitted := "-"
		if a.SubmittedForReviewAt != nil {
			submitted = a.SubmittedForReviewAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(r.out, "  %s  %-16s %-14s %d/%d  submitted %s\n",
			a.ID, a.AssigneeID, claim(a), a.AnsweredQuestions, a.TotalQuestions, submitted)
	}
	fmt.Fprintln(r.out)
	return nil
}

// cmdShow prints one assignment
func (r *REPL) cmdShow(ctx context.Context, args []string) error {
	if err := need(args, 1, r.commands["show"].usage); err != nil {
		return err
	}
	a, err := r.svc.Assignment(ctx, r.actor, args[0])
	if err != nil {
		return err
	}
	r.printAssignment(a)
	return nil
}

func (r *REPL) printAssignment(a *types.Assignment) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(r.out, "\n%s %s\n", cyan("Assignment"), a.ID)
	fmt.Fprintf(r.out, "  Evaluation: %s\n", a.EvaluationID)
	fmt.Fprintf(r.out, "  Claim:      %s\n", claim(a))
	fmt.Fprintf(r.out, "  Assignee:   %s\n", a.AssigneeID)
	fmt.Fprintf(r.out, "  State:      %s\n", stateColor(string(a.State)))
	fmt.Fprintf(r.out, "  Answered:   %d/%d (%.1f%%)\n", a.AnsweredQuestions, a.TotalQuestions, a.Progress)
	fmt.Fprintf(r.out, "  Deadline:   %s\n", a.Deadline.Format("2006-01-02"))
	if a.RequiresReview {
		fmt.Fprintf(r.out, "  Review:     %s\n", a.ReviewPhase)
	}
	if a.ReviewComments != nil {
		fmt.Fprintf(r.out, "  Comments:   %s\n", *a.ReviewComments)
	}
	if !a.Active {
		fmt.Fprintf(r.out, "  %s\n", color.RedString("inactive"))
	}
	fmt.Fprintln(r.out)
}

// cmdAnswers lists the answers recorded under an assignment
func (r *REPL) cmdAnswers(ctx context.Context, args []string) error {
	if err := need(args, 1, r.commands["answers"].usage); err != nil {
		return err
	}
	answers, err := r.svc.Answers(ctx, r.actor, args[0])
	if err != nil {
		return err
	}
	if len(answers) == 0 {
		fmt.Fprintln(r.out, "No answers yet")
		return nil
	}
	for _, ans := range answers {
		fmt.Fprintf(r.out, "  %-20s %s  (%s)\n", ans.QuestionID, ans.Value, ans.AnsweredBy)
	}
	return nil
}

// cmdHistory prints the audit trail, optionally only the last entries
func (r *REPL) cmdHistory(ctx context.Context, args []string) error {
	usage := r.commands["history"].usage
	if err := need(args, 1, usage); err != nil {
		return err
	}
	limit := 0
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 0 {
			return fmt.Errorf("usage: %s", usage)
		}
		limit = n
	}
	history, err := r.svc.History(ctx, r.actor, args[0], limit)
	if err != nil {
		return err
	}
	for _, e := range history {
		line := fmt.Sprintf("  %s  %-22s %-12s", e.CreatedAt.Format("2006-01-02 15:04"), e.EventType, e.Actor)
		if e.OldValue != nil || e.NewValue != nil {
			line += fmt.Sprintf(" %s → %s", deref(e.OldValue), deref(e.NewValue))
		}
		if e.Comment != nil {
			line += "  " + color.New(color.Faint).Sprint(*e.Comment)
		}
		fmt.Fprintln(r.out, line)
	}
	return nil
}

// cmdEdit corrects an answer in review mode
func (r *REPL) cmdEdit(ctx context.Context, args []string) error {
	if err := need(args, 3, r.commands["edit"].usage); err != nil {
		return err
	}
	a, err := r.svc.EditAnswer(ctx, r.actor, args[0], args[1], strings.Join(args[2:], " "))
	if err != nil {
		return err
	}
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "%s Answer %s updated (assignment %s)\n", green("✓"), args[1], stateColor(string(a.State)))
	return nil
}

func (r *REPL) cmdApprove(ctx context.Context, args []string) error {
	if err := need(args, 1, r.commands["approve"].usage); err != nil {
		return err
	}
	return r.review(ctx, args[0], types.ActionApprove, strings.Join(args[1:], " "))
}

func (r *REPL) cmdReject(ctx context.Context, args []string) error {
	if err := need(args, 2, r.commands["reject"].usage); err != nil {
		return err
	}
	return r.review(ctx, args[0], types.ActionReject, strings.Join(args[1:], " "))
}

func (r *REPL) review(ctx context.Context, id string, action types.ReviewAction, comments string) error {
	a, err := r.svc.Review(ctx, r.actor, id, types.ReviewDecision{Action: action, Comments: comments})
	if err != nil {
		return err
	}
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "%s Assignment %s is now %s\n", green("✓"), a.ID, stateColor(string(a.State)))
	return nil
}

func claim(a *types.Assignment) string {
	if a.DimensionID == nil {
		return "(whole survey)"
	}
	return *a.DimensionID
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
