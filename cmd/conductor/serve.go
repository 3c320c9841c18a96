package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskforge/conductor/pkg/admission"
	"github.com/taskforge/conductor/pkg/api"
	"github.com/taskforge/conductor/pkg/concurrency"
	"github.com/taskforge/conductor/pkg/config"
	"github.com/taskforge/conductor/pkg/container"
	"github.com/taskforge/conductor/pkg/interrupted"
	"github.com/taskforge/conductor/pkg/queue"
	"github.com/taskforge/conductor/pkg/retention"
	"github.com/taskforge/conductor/pkg/session"
	"github.com/taskforge/conductor/pkg/workspace"
)

var httpAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Queue Processor and the admission HTTP surface",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&httpAddr, "http-addr", getEnv("CONDUCTOR_HTTP_ADDR", ":8080"), "address the admission HTTP surface listens on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, client, err := loadConfigAndDB(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			slog.Error("failed to close database client", "error", err)
		}
	}()
	db := client.DB()

	configStore := config.NewStore(cfg)
	watcher := config.NewWatcher(configDir, configStore, nil)
	if err := watcher.Start(ctx); err != nil {
		return err
	}

	stats := concurrency.NewStatsSource(db)
	queueStore := queue.NewStore(db)
	queueSvc := queue.NewService(queueStore)
	interruptedStore := interrupted.NewStore(db)

	var processor *queue.Processor
	containers := container.NewSQLService(db, nil, func(executionProcessID string, failErr error) {
		processor.OnExecutionComplete(executionProcessID, failErr)
	})

	sessions := session.NewStore(db)
	workspaces := workspace.NewStore(db)

	entryPoint := admission.NewEntryPoint(configStore, stats, containers, queueSvc)
	processor = queue.NewProcessor(queueSvc, stats, containers, configStore, sessions, workspaces, nil)

	// Any entry still marked processing survived a crash mid-claim;
	// bounce every one back to pending before resuming anything else
	// (spec §5).
	if n, err := queueSvc.ResetOrphanedProcessing(ctx); err != nil {
		return err
	} else if n > 0 {
		slog.Info("reset orphaned processing entries", "count", n)
	}

	recovery := interrupted.NewRecovery(interruptedStore, configStore, entryPoint, nil)
	if err := recovery.Run(ctx); err != nil {
		slog.Error("startup recovery failed", "error", err)
	}

	scheduler := retention.NewScheduler(configStore, queueSvc, interruptedStore, nil)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	go processor.Run(ctx)

	server := api.NewServer(db, entryPoint, queueSvc, configStore)
	httpServer := &http.Server{Addr: httpAddr, Handler: server.Handler()}

	serverErrs := make(chan error, 1)
	go func() {
		slog.Info("admission HTTP surface listening", "addr", httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrs <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-serverErrs:
		slog.Error("admission HTTP surface failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shut down HTTP server cleanly", "error", err)
	}

	processor.Stop()

	snapshotter := interrupted.NewSnapshotter(interruptedStore, containers, nil)
	if err := snapshotter.Run(shutdownCtx); err != nil {
		slog.Error("failed to snapshot running executions before shutdown", "error", err)
	}

	return nil
}
