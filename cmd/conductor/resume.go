package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/taskforge/conductor/pkg/admission"
	"github.com/taskforge/conductor/pkg/concurrency"
	"github.com/taskforge/conductor/pkg/config"
	"github.com/taskforge/conductor/pkg/container"
	"github.com/taskforge/conductor/pkg/interrupted"
	"github.com/taskforge/conductor/pkg/queue"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resubmit interrupted executions through the admission entry point, then exit",
	RunE:  runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
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

	configStore := config.NewStore(cfg)
	stats := concurrency.NewStatsSource(db)
	queueSvc := queue.NewService(queue.NewStore(db))
	interruptedStore := interrupted.NewStore(db)
	containers := container.NewSQLService(db, nil, nil)
	entryPoint := admission.NewEntryPoint(configStore, stats, containers, queueSvc)

	recovery := interrupted.NewRecovery(interruptedStore, configStore, entryPoint, slog.Default())
	return recovery.Run(ctx)
}
