package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var recomputeCmd = &cobra.Command{
	Use:   "recompute [evaluation]",
	Short: "Replay the progress rollup of one or every evaluation",
	Long: `Recompute evaluation counters, progress and state from their assignments.

With an evaluation id the caller must be an administrator of its company.
With --all every active evaluation is replayed, in parallel up to
replay.max_concurrency; only evaluations whose stored rollup drifted are
written.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		out := cmd.OutOrStdout()
		green := color.New(color.FgGreen).SprintFunc()

		if all {
			if len(args) > 0 {
				return fmt.Errorf("--all takes no evaluation id")
			}
			report, err := svc.RecomputeAll(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(out, report)
			}
			fmt.Fprintf(out, "%s Replayed %d evaluations, %d updated\n", green("✓"), report.Evaluations, report.Changed)
			return nil
		}

		if len(args) == 0 {
			return fmt.Errorf("pass an evaluation id or --all")
		}
		actor, err := requireActor()
		if err != nil {
			return err
		}
		ev, err := svc.Recompute(cmd.Context(), actor, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(out, ev)
		}
		fmt.Fprintf(out, "%s Evaluation %s: %s, %.1f%%, %d/%d assigned, %d completed\n",
			green("✓"), ev.ID, stateLabel(string(ev.State)), ev.Progress,
			ev.AssignedDimensions, ev.TotalDimensions, ev.CompletedDimensions)
		return nil
	},
}

func init() {
	recomputeCmd.Flags().Bool("all", false, "Replay every active evaluation")
	rootCmd.AddCommand(recomputeCmd)
}
