package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/conductor/pkg/admission"
	"github.com/taskforge/conductor/pkg/concurrency"
	"github.com/taskforge/conductor/pkg/config"
	"github.com/taskforge/conductor/pkg/container"
	"github.com/taskforge/conductor/pkg/database"
	"github.com/taskforge/conductor/pkg/queue"
)

type testEnv struct {
	db     *sql.DB
	server *Server
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db))

	_, err = db.Exec(`INSERT INTO sessions (id, title) VALUES ('s1', '')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO workspaces (id, session_id, path) VALUES ('ws1', 's1', '/tmp/ws1')`)
	require.NoError(t, err)

	configStore := config.NewStore(cfg)
	stats := concurrency.NewStatsSource(db)
	containers := container.NewInMemoryService(nil)
	require.NoError(t, containers.EnsureContainerExists(context.Background(), "ws1"))
	containers.SetRunDelay(time.Hour) // keep executions "running" for the duration of a test

	queueStore := queue.NewStore(db)
	queueSvc := queue.NewService(queueStore)
	entryPoint := admission.NewEntryPoint(configStore, stats, containers, queueSvc)

	return &testEnv{db: db, server: NewServer(db, entryPoint, queueSvc, configStore)}
}

// seedRunning inserts a running execution_process row directly, simulating
// an execution already in flight without going through the Container
// Service fake (spec §3: ConcurrencyStats is derived from this table).
func (e *testEnv) seedRunning(t *testing.T, executorType string) {
	t.Helper()
	_, err := e.db.Exec(
		`INSERT INTO execution_process (id, session_id, executor_type, status, started_at) VALUES (?, 's1', ?, 'running', ?)`,
		"proc-"+executorType+"-"+time.Now().Format(time.RFC3339Nano), executorType, time.Now().UTC())
	require.NoError(t, err)
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.server.engine.ServeHTTP(rec, req)
	return rec
}

func TestSubmitExecutionAdmitsWhenUnderLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Concurrency.GlobalLimit = config.Limited(2)
	env := newTestEnv(t, cfg)

	rec := env.do(t, http.MethodPost, "/executions", SubmitExecutionRequest{
		SessionID: "s1", WorkspaceID: "ws1", ExecutorType: "claude", ExecutorAction: json.RawMessage(`{}`),
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp SubmitExecutionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "started", resp.Status)
	require.NotNil(t, resp.ExecutionProcess)
}

// TestSubmitExecutionQueuesWhenLimitExhausted reproduces spec §8 end-to-end
// scenario 1 ("admit-then-queue") against the HTTP surface.
func TestSubmitExecutionQueuesWhenLimitExhausted(t *testing.T) {
	cfg := config.Default()
	cfg.Concurrency.GlobalLimit = config.Limited(2)
	env := newTestEnv(t, cfg)
	env.seedRunning(t, "claude")
	env.seedRunning(t, "claude")

	rec := env.do(t, http.MethodPost, "/executions", SubmitExecutionRequest{
		SessionID: "s1", WorkspaceID: "ws1", ExecutorType: "claude", ExecutorAction: json.RawMessage(`{}`),
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp SubmitExecutionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "queued", resp.Status)
	require.NotNil(t, resp.Position)
	require.Equal(t, 1, resp.Position.Position)
}

func TestSubmitExecutionRejectsSecondQueueEntryForSameSession(t *testing.T) {
	cfg := config.Default()
	cfg.Concurrency.GlobalLimit = config.Limited(1)
	env := newTestEnv(t, cfg)
	env.seedRunning(t, "claude")

	first := env.do(t, http.MethodPost, "/executions", SubmitExecutionRequest{
		SessionID: "s1", WorkspaceID: "ws1", ExecutorType: "claude", ExecutorAction: json.RawMessage(`{}`),
	})
	require.Equal(t, http.StatusAccepted, first.Code)

	second := env.do(t, http.MethodPost, "/executions", SubmitExecutionRequest{
		SessionID: "s1", WorkspaceID: "ws1", ExecutorType: "claude", ExecutorAction: json.RawMessage(`{}`),
	})
	require.Equal(t, http.StatusConflict, second.Code)
}

func TestQueueStatsReflectsPendingEntries(t *testing.T) {
	cfg := config.Default()
	cfg.Concurrency.GlobalLimit = config.Limited(1)
	env := newTestEnv(t, cfg)
	env.seedRunning(t, "claude")

	env.do(t, http.MethodPost, "/executions", SubmitExecutionRequest{
		SessionID: "s1", WorkspaceID: "ws1", ExecutorType: "claude", ExecutorAction: json.RawMessage(`{}`),
	})

	rec := env.do(t, http.MethodGet, "/queue/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats QueueStatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, 1, stats.TotalPending)
	require.Equal(t, 1, stats.ByExecutorType["claude"].Pending)
	require.NotNil(t, stats.ByExecutorType["claude"].Limit)
	require.EqualValues(t, 1, *stats.ByExecutorType["claude"].Limit)
}

func TestHealthzReportsDatabaseReachability(t *testing.T) {
	env := newTestEnv(t, config.Default())
	rec := env.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCancelForSessionRemovesQueueEntry(t *testing.T) {
	cfg := config.Default()
	cfg.Concurrency.GlobalLimit = config.Limited(1)
	env := newTestEnv(t, cfg)
	env.seedRunning(t, "claude")

	env.do(t, http.MethodPost, "/executions", SubmitExecutionRequest{
		SessionID: "s1", WorkspaceID: "ws1", ExecutorType: "claude", ExecutorAction: json.RawMessage(`{}`),
	})

	rec := env.do(t, http.MethodDelete, "/sessions/s1/queue", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	status := env.do(t, http.MethodGet, "/sessions/s1/queue", nil)
	require.Equal(t, http.StatusOK, status.Code)
	var body SessionQueueStatusResponse
	require.NoError(t, json.Unmarshal(status.Body.Bytes(), &body))
	require.False(t, body.IsQueued)
}
