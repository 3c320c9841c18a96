package main

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskforge/conductor/pkg/interrupted"
	"github.com/taskforge/conductor/pkg/queue"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Run one retention sweep over terminal queue entries and resumed interrupted executions, then exit",
	RunE:  runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

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

	queueSvc := queue.NewService(queue.NewStore(db))
	interruptedStore := interrupted.NewStore(db)

	n, err := queueSvc.CleanupOldEntries(ctx, cfg.Retention.QueueEntryDays)
	if err != nil {
		return err
	}
	slog.Info("cleaned up terminal queue entries", "count", n)

	cutoff := time.Now().UTC().AddDate(0, 0, -cfg.Retention.InterruptedExecutionDays)
	m, err := interruptedStore.CleanupOld(ctx, cutoff)
	if err != nil {
		return err
	}
	slog.Info("cleaned up resumed interrupted executions", "count", m)

	return nil
}
