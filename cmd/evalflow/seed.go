package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/evalflow/evalflow/internal/fixtures"
)

var seedCmd = &cobra.Command{
	Use:   "seed <fixture.yaml>",
	Short: "Load surveys, companies, users and evaluations from YAML",
	Long: `Load reference data from a YAML fixture. The whole file is validated
before anything is written. See examples/seed.yaml for the format.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fx, err := fixtures.Load(args[0])
		if err != nil {
			return err
		}
		sum, err := fx.Apply(cmd.Context(), store, time.Now())
		if err != nil {
			return fmt.Errorf("seed stopped after partial load: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, sum)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(out, "%s Seeded %s\n", green("✓"), dbPath)
		fmt.Fprintf(out, "  %d surveys, %d dimensions, %d questions\n", sum.Surveys, sum.Dimensions, sum.Questions)
		fmt.Fprintf(out, "  %d companies, %d users, %d evaluations\n", sum.Companies, sum.Users, sum.Evaluations)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
