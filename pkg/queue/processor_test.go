package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/conductor/pkg/concurrency"
	"github.com/taskforge/conductor/pkg/config"
	"github.com/taskforge/conductor/pkg/container"
	"github.com/taskforge/conductor/pkg/database"
	"github.com/taskforge/conductor/pkg/models"
	"github.com/taskforge/conductor/pkg/session"
	"github.com/taskforge/conductor/pkg/workspace"
)

func newProcessorTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db))

	_, err = db.Exec(`INSERT INTO sessions (id, title) VALUES ('s1', '')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO workspaces (id, session_id, path) VALUES ('ws1', 's1', '/tmp/ws1')`)
	require.NoError(t, err)
	return db
}

func waitForDrain(t *testing.T, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for processor to drain")
}

// TestProcessorClaimsInPriorityThenQueuedAtOrder reproduces spec §8 end-to-end
// scenario 2 ("priority ordering").
func TestProcessorClaimsInPriorityThenQueuedAtOrder(t *testing.T) {
	db := newProcessorTestDB(t)
	store := NewStore(db)
	svc := NewService(store)
	stats := concurrency.NewStatsSource(db)

	cfg := config.Default()
	cfg.Processor.FallbackPollInterval = 20 * time.Millisecond
	configStore := config.NewStore(cfg)

	var startOrder []string
	containers := container.NewInMemoryService(nil)
	containers.SetRunDelay(time.Hour)
	require.NoError(t, containers.EnsureContainerExists(context.Background(), "ws1"))

	proc := NewProcessor(svc, stats, recordingContainer{containers, &startOrder}, configStore, nil, nil, nil)

	_, err := store.Create(context.Background(), "s1", "ws1", "claude", json.RawMessage(`{}`), 1000, nil)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = store.Create(context.Background(), "s2", "ws1", "claude", json.RawMessage(`{}`), 500, nil)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = store.Create(context.Background(), "s3", "ws1", "claude", json.RawMessage(`{}`), 1000, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go proc.Run(ctx)
	defer proc.Stop()

	waitForDrain(t, func() bool { return len(startOrder) == 3 })

	require.Equal(t, []string{"s2", "s1", "s3"}, startOrder)
}

// TestProcessorBouncesEntryWhenPerAgentLimitExhausted reproduces spec §8
// end-to-end scenario 3 ("per-agent cap").
func TestProcessorBouncesEntryWhenPerAgentLimitExhausted(t *testing.T) {
	db := newProcessorTestDB(t)
	store := NewStore(db)
	svc := NewService(store)
	stats := concurrency.NewStatsSource(db)

	cfg := config.Default()
	cfg.Concurrency.GlobalLimit = config.Limited(5)
	cfg.Concurrency.AgentLimits = map[string]config.Limit{"claude": config.Limited(1)}
	cfg.Processor.FallbackPollInterval = time.Hour
	configStore := config.NewStore(cfg)

	_, err := db.Exec(`INSERT INTO execution_process (id, session_id, executor_type, status, started_at) VALUES ('p1', 's1', 'claude', 'running', ?)`, time.Now().UTC())
	require.NoError(t, err)

	entry, err := store.Create(context.Background(), "s1", "ws1", "claude", json.RawMessage(`{}`), 0, nil)
	require.NoError(t, err)

	containers := container.NewInMemoryService(nil)
	proc := NewProcessor(svc, stats, containers, configStore, nil, nil, nil)

	progressed, err := proc.tryProcessNext(context.Background())
	require.NoError(t, err)
	require.False(t, progressed)

	found, err := store.FindPendingForSession(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, entry.ID, found.ID)
	require.Equal(t, "pending", string(found.Status))
	require.Nil(t, found.StartedAt)
}

// TestProcessorFailsEntryForUnresolvableSession reproduces spec §7's
// SessionNotFound error kind: a claimed entry whose session_id doesn't
// resolve against the Session Resolver is marked failed rather than
// started, and the loop keeps draining.
func TestProcessorFailsEntryForUnresolvableSession(t *testing.T) {
	db := newProcessorTestDB(t)
	store := NewStore(db)
	svc := NewService(store)
	stats := concurrency.NewStatsSource(db)
	sessions := session.NewStore(db)
	workspaces := workspace.NewStore(db)

	configStore := config.NewStore(config.Default())
	containers := container.NewInMemoryService(nil)
	require.NoError(t, containers.EnsureContainerExists(context.Background(), "ws1"))

	proc := NewProcessor(svc, stats, containers, configStore, sessions, workspaces, nil)

	entry, err := store.Create(context.Background(), "missing-session", "ws1", "claude", json.RawMessage(`{}`), 0, nil)
	require.NoError(t, err)

	progressed, err := proc.tryProcessNext(context.Background())
	require.NoError(t, err)
	require.True(t, progressed)

	failed, err := store.FindByID(context.Background(), entry.ID)
	require.NoError(t, err)
	require.Equal(t, "failed", string(failed.Status))
	require.NotNil(t, failed.Error)
	require.Contains(t, *failed.Error, "session not found")
}

// TestProcessorMarksEntryCompletedImmediatelyOnDispatch reproduces
// spec §4.4 step 9: a queue entry is marked completed the moment
// admission hands the execution off, not when the (possibly
// long-running) execution itself finishes.
func TestProcessorMarksEntryCompletedImmediatelyOnDispatch(t *testing.T) {
	db := newProcessorTestDB(t)
	store := NewStore(db)
	svc := NewService(store)
	stats := concurrency.NewStatsSource(db)
	configStore := config.NewStore(config.Default())

	containers := container.NewInMemoryService(nil)
	containers.SetRunDelay(time.Hour)
	require.NoError(t, containers.EnsureContainerExists(context.Background(), "ws1"))

	proc := NewProcessor(svc, stats, containers, configStore, nil, nil, nil)

	entry, err := store.Create(context.Background(), "s1", "ws1", "claude", json.RawMessage(`{}`), 0, nil)
	require.NoError(t, err)

	progressed, err := proc.tryProcessNext(context.Background())
	require.NoError(t, err)
	require.True(t, progressed)

	found, err := store.FindByID(context.Background(), entry.ID)
	require.NoError(t, err)
	require.Equal(t, "completed", string(found.Status))
	require.NotNil(t, found.CompletedAt)
}

// recordingContainer wraps container.Service to capture the order
// sessions were started in, since InMemoryService alone doesn't expose it.
type recordingContainer struct {
	*container.InMemoryService
	order *[]string
}

func (r recordingContainer) StartExecution(ctx context.Context, sessionID, workspaceID, executorType string, action json.RawMessage) (*models.ExecutionProcess, error) {
	*r.order = append(*r.order, sessionID)
	return r.InMemoryService.StartExecution(ctx, sessionID, workspaceID, executorType, action)
}
