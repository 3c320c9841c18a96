// Package retention schedules the periodic cleanup sweep that deletes
// terminal task_queue rows and resumed interrupted_executions rows
// older than their configured retention window (spec §4.2, §4.5, §6).
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/taskforge/conductor/pkg/config"
	"github.com/taskforge/conductor/pkg/interrupted"
	"github.com/taskforge/conductor/pkg/queue"
)

// Scheduler runs sweep on the schedule in cfg.Retention.Schedule,
// re-reading the config store on every tick so a hot-reloaded
// retention window takes effect without a restart. The schedule itself
// is read once, in Start; a reloaded schedule is not picked up.
type Scheduler struct {
	configs     *config.Store
	queueSvc    *queue.Service
	interrupted *interrupted.Store
	logger      *slog.Logger

	cron *cronlib.Cron
}

// NewScheduler wires a Scheduler.
func NewScheduler(configs *config.Store, queueSvc *queue.Service, interruptedStore *interrupted.Store, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{configs: configs, queueSvc: queueSvc, interrupted: interruptedStore, logger: logger}
}

// Start registers the sweep against the currently configured schedule
// and begins running it in the background. Stop must be called to
// release the underlying cron goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	schedule := s.configs.Get().Retention.Schedule
	c := cronlib.New()
	if _, err := c.AddFunc(schedule, func() { s.sweep(ctx) }); err != nil {
		return fmt.Errorf("retention: schedule %q: %w", schedule, err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("retention scheduler started", "schedule", schedule)
	return nil
}

// Stop halts the cron loop, waiting for any sweep in progress to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// sweep runs one cleanup pass over both stores, using the retention
// window current at the moment it fires.
func (s *Scheduler) sweep(ctx context.Context) {
	cfg := s.configs.Get().Retention

	n, err := s.queueSvc.CleanupOldEntries(ctx, cfg.QueueEntryDays)
	if err != nil {
		s.logger.Error("retention sweep: queue cleanup failed", "error", err)
	} else if n > 0 {
		s.logger.Info("retention sweep: cleaned up terminal queue entries", "count", n)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -cfg.InterruptedExecutionDays)
	m, err := s.interrupted.CleanupOld(ctx, cutoff)
	if err != nil {
		s.logger.Error("retention sweep: interrupted execution cleanup failed", "error", err)
	} else if m > 0 {
		s.logger.Info("retention sweep: cleaned up resumed interrupted executions", "count", m)
	}
}
