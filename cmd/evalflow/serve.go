package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/evalflow/evalflow/internal/api"
	"github.com/evalflow/evalflow/internal/storage"
	"github.com/evalflow/evalflow/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API until interrupted.

With the SQLite driver the server takes a lock file next to the database, so
two servers never share one file. Tracing is exported over OTLP when
telemetry.enabled is set. Notifications go to the log and, when
events.webhook_url is set, to the webhook.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.Server.Addr
		}
		recompute, _ := cmd.Flags().GetBool("recompute")

		if cfg.Storage.Driver == "sqlite" {
			lockPath, err := storage.AcquireServerLock(dbPath, addr)
			if err != nil {
				return err
			}
			defer func() {
				if err := storage.ReleaseServerLock(lockPath); err != nil {
					fmt.Fprintf(os.Stderr, "warning: %v\n", err)
				}
			}()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(flushCtx); err != nil {
				logger.Warn("failed to flush traces", "error", err)
			}
		}()

		// Repair rollups that drifted while no server was running.
		if recompute {
			report, err := svc.RecomputeAll(ctx)
			if err != nil {
				return fmt.Errorf("startup recompute failed: %w", err)
			}
			logger.Info("startup recompute finished", "evaluations", report.Evaluations, "changed", report.Changed)
		}

		srv, err := api.New(api.Config{
			Service:      svc,
			Logger:       logger,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			BodyLimit:    cfg.Server.BodyLimit,
			AccessLog:    cmd.ErrOrStderr(),
			Health: func() map[string]any {
				return map[string]any{
					"driver":        cfg.Storage.Driver,
					"notifications": dispatcher.Stats(),
				}
			},
		})
		if err != nil {
			return err
		}

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Listen(addr) }()

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s evalflow API listening on %s\n", green("✓"), cyan(addr))
		fmt.Fprintf(out, "  Store: %s (%s)\n", dbPath, cfg.Storage.Driver)
		if cfg.Telemetry.Enabled {
			fmt.Fprintf(out, "  Tracing: %s\n", cfg.Telemetry.Endpoint)
		}
		fmt.Fprintf(out, "  Press Ctrl+C to stop\n\n")

		select {
		case err := <-errCh:
			return fmt.Errorf("http server stopped: %w", err)
		case <-ctx.Done():
		}

		fmt.Fprintln(out, "\nShutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: error during shutdown: %v\n", err)
		}
		fmt.Fprintf(out, "%s Server stopped\n", green("✓"))
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default: server.addr)")
	serveCmd.Flags().Bool("recompute", true, "Replay every evaluation rollup before serving")
	rootCmd.AddCommand(serveCmd)
}
