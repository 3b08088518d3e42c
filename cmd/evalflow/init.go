package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/evalflow/evalflow/internal/storage"
	"github.com/evalflow/evalflow/internal/storage/sqlite"
)

var initCmd = &cobra.Command{
	Use:   "init [name]",
	Short: "Create an evalflow database in the current directory",
	Long: `Create a .evalflow/ directory with a SQLite database and apply the schema.

If no name is provided, the database is called evalflow.db.

Example:
  evalflow init                      # Creates .evalflow/evalflow.db
  evalflow init acme                 # Creates .evalflow/acme.db
  evalflow seed examples/seed.yaml   # Then load reference data`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) > 0 {
			name = args[0]
		}

		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		path, err := storage.InitProject(cwd, name)
		if err != nil {
			return err
		}

		// Opening the store applies every migration.
		db, err := sqlite.New(path)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		version, err := db.SchemaVersion(cmd.Context())
		_ = db.Close()
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "\n%s Initialized evalflow database\n\n", green("✓"))
		fmt.Fprintf(out, "  Database: %s\n", cyan(path))
		fmt.Fprintf(out, "  Schema:   v%d\n\n", version)
		fmt.Fprintf(out, "%s Next steps:\n", gray("→"))
		fmt.Fprintf(out, "  %s\n", gray("evalflow seed fixture.yaml"))
		fmt.Fprintf(out, "  %s\n\n", gray("evalflow serve"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
