package concurrency

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/taskforge/conductor/pkg/models"
)

// StatsSource reads the current ConcurrencyStats snapshot from the
// execution_process table.
type StatsSource struct {
	db *sql.DB
}

// NewStatsSource wraps a database connection.
func NewStatsSource(db *sql.DB) *StatsSource {
	return &StatsSource{db: db}
}

// Snapshot returns the running counts, overall and by executor type.
// It reads outside any transaction, so the counts are not protected
// against a concurrent start; the Queue Processor re-checks the
// per-agent limit against the same snapshot after each claim.
func (s *StatsSource) Snapshot(ctx context.Context) (models.ConcurrencyStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT executor_type, COUNT(*) FROM execution_process WHERE status = ? GROUP BY executor_type`,
		string(models.ExecutionProcessRunning))
	if err != nil {
		return models.ConcurrencyStats{}, fmt.Errorf("concurrency: snapshot: %w", err)
	}
	defer rows.Close()

	stats := models.ConcurrencyStats{ByExecutor: make(map[string]int)}
	for rows.Next() {
		var executorType string
		var count int
		if err := rows.Scan(&executorType, &count); err != nil {
			return models.ConcurrencyStats{}, fmt.Errorf("concurrency: snapshot scan: %w", err)
		}
		stats.ByExecutor[executorType] = count
		stats.GlobalRunning += count
	}
	if err := rows.Err(); err != nil {
		return models.ConcurrencyStats{}, fmt.Errorf("concurrency: snapshot iterate: %w", err)
	}

	return stats, nil
}

// ForExecutor returns a Stats view narrowed to one executor type,
// ready to hand to CheckCanStartExecution.
func ForExecutor(stats models.ConcurrencyStats, executorType string) Stats {
	return Stats{
		GlobalRunning: stats.GlobalRunning,
		ForExecutor:   stats.ByExecutor[executorType],
	}
}
