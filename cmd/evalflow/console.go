package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/evalflow/evalflow/internal/repl"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Start the interactive reviewer console",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := requireActor()
		if err != nil {
			return err
		}
		history := ""
		if home, err := os.UserHomeDir(); err == nil {
			history = filepath.Join(home, ".evalflow_history")
		}
		r, err := repl.New(&repl.Config{
			Service:     svc,
			Actor:       actor,
			HistoryFile: history,
			Out:         cmd.OutOrStdout(),
		})
		if err != nil {
			return err
		}
		return r.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}
