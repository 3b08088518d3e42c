package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/evalflow/evalflow/internal/types"
)

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printAssignment prints one assignment, as JSON with --json.
func printAssignment(out io.Writer, verb string, a *types.Assignment) error {
	if jsonOutput {
		return printJSON(out, a)
	}
	green := color.New(color.FgGreen).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	fmt.Fprintf(out, "%s %s assignment %s\n", green("✓"), verb, cyan(a.ID))
	fmt.Fprintf(out, "  Claim:    %s\n", claimLabel(a))
	fmt.Fprintf(out, "  Assignee: %s\n", a.AssigneeID)
	fmt.Fprintf(out, "  State:    %s\n", stateLabel(a.DisplayState(time.Now())))
	fmt.Fprintf(out, "  Answered: %d/%d (%.1f%%)\n", a.AnsweredQuestions, a.TotalQuestions, a.Progress)
	fmt.Fprintf(out, "  Deadline: %s\n", a.Deadline.Format(time.RFC3339))
	if a.ReviewComments != nil {
		fmt.Fprintf(out, "  Comments: %s\n", *a.ReviewComments)
	}
	return nil
}

// printAssignmentList prints one line per assignment.
func printAssignmentList(out io.Writer, list []*types.Assignment) error {
	if jsonOutput {
		if list == nil {
			list = []*types.Assignment{}
		}
		return printJSON(out, list)
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "No assignments")
		return nil
	}
	now := time.Now()
	for _, a := range list {
		fmt.Fprintf(out, "%s  %-16s %-20s %-20s %5.1f%%  %s\n",
			a.ID, a.AssigneeID, claimLabel(a), stateLabel(a.DisplayState(now)), a.Progress,
			a.Deadline.Format("2006-01-02"))
	}
	return nil
}

func claimLabel(a *types.Assignment) string {
	if a.DimensionID == nil {
		return "(whole survey)"
	}
	return *a.DimensionID
}

func stateLabel(state string) string {
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
