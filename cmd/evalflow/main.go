// Command evalflow runs and administers the evaluation assignment workflow:
// the HTTP API server, the reviewer console and one-shot admin commands.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/evalflow/evalflow/internal/config"
	"github.com/evalflow/evalflow/internal/events"
	"github.com/evalflow/evalflow/internal/storage"
	"github.com/evalflow/evalflow/internal/workflow"
)

var (
	// Set by the persistent flags
	dbPath     string
	configPath string
	actorID    string
	jsonOutput bool

	// Set up by PersistentPreRunE for commands that need a store
	cfg        *config.Config
	logger     *slog.Logger
	store      storage.Storage
	dispatcher *events.Dispatcher
	svc        *workflow.Service
)

// commands that manage their own store
var noStore = map[string]bool{
	"init":       true,
	"help":       true,
	"completion": true,
	"version":    true,
}

var rootCmd = &cobra.Command{
	Use:   "evalflow",
	Short: "Evaluation assignment and review workflow",
	Long: `evalflow assigns survey dimensions of a company evaluation to its members,
tracks their answering progress, routes finished work through review, and rolls
progress up to the evaluation.

Configuration is read from --config (YAML), a .env file, and EVALFLOW_*
environment variables, in increasing order of precedence.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(".env"); err != nil {
			return err
		}
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger = cfg.Log.NewLogger(cmd.ErrOrStderr())
		slog.SetDefault(logger)

		if actorID == "" {
			actorID = os.Getenv("EVALFLOW_ACTOR")
		}
		if noStore[cmd.Name()] {
			return nil
		}
		return openService(cmd.Context())
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeService()
	},
}

// openService opens the configured store and builds the workflow service.
// Notifications go to the log, and to the webhook when one is configured.
func openService(ctx context.Context) error {
	if store != nil {
		return nil
	}
	s, path, err := openStore(ctx, cfg, dbPath)
	if err != nil {
		return err
	}
	store, dbPath = s, path

	sinks := []events.Sink{&events.LogSink{Logger: logger}}
	if cfg.Events.WebhookURL != "" {
		sinks = append(sinks, events.NewWebhookSink(cfg.Events.WebhookURL, cfg.Events.DeliveryTimeout).
			WithRateLimit(cfg.Events.WebhookRate, cfg.Events.WebhookBurst))
	}
	dispatcher = events.NewDispatcher(&events.DispatcherConfig{
		BufferSize:      cfg.Events.BufferSize,
		DeliveryTimeout: cfg.Events.DeliveryTimeout,
		Sinks:           sinks,
		Logger:          logger,
	})

	svc, err = workflow.New(&workflow.Config{
		Store:             store,
		Publisher:         dispatcher,
		Logger:            logger,
		ReplayConcurrency: cfg.Replay.MaxConcurrency,
	})
	return err
}

// closeService drains pending notifications and closes the store.
func closeService() error {
	if dispatcher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := dispatcher.Close(ctx); err != nil {
			logger.Warn("notifications not delivered", "error", err)
		}
		dispatcher = nil
	}
	svc = nil
	if store == nil {
		return nil
	}
	err := store.Close()
	store = nil
	return err
}

// requireActor returns the acting user id or explains how to set one.
func requireActor() (string, error) {
	if actorID == "" {
		return "", fmt.Errorf("no actor: pass --actor or set EVALFLOW_ACTOR")
	}
	return actorID, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default: auto-discover .evalflow/*.db)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&actorID, "actor", "", "User id performing the command (default: $EVALFLOW_ACTOR)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		red := color.New(color.FgRed).SprintFunc()
		fmt.Fprintf(os.Stderr, "%s %v\n", red("Error:"), err)
		_ = closeService()
		os.Exit(1)
	}
}
