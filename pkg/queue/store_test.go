package queue

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/conductor/pkg/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
		CREATE TABLE task_queue (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			workspace_id TEXT NOT NULL,
			executor_type TEXT NOT NULL,
			action BLOB NOT NULL,
			prompt TEXT,
			status TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0,
			queued_at TIMESTAMP NOT NULL,
			started_at TIMESTAMP,
			completed_at TIMESTAMP,
			error TEXT,
			updated_at TIMESTAMP NOT NULL
		)`)
	require.NoError(t, err)

	return NewStore(db)
}

func TestStoreCreateAndFindPendingForSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	entry, err := store.Create(ctx, "session-1", "ws-1", "claude", []byte(`{"prompt":"fix bug"}`), 0, nil)
	require.NoError(t, err)
	require.Equal(t, "session-1", entry.SessionID)

	found, err := store.FindPendingForSession(ctx, "session-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, entry.ID, found.ID)

	none, err := store.FindPendingForSession(ctx, "session-2")
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestStoreClaimNextOrdersByPriorityThenQueuedAt(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	low, err := store.Create(ctx, "s1", "ws1", "claude", []byte(`{}`), 10, nil)
	require.NoError(t, err)

	high, err := store.Create(ctx, "s2", "ws2", "claude", []byte(`{}`), 1, nil)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	lowLater, err := store.Create(ctx, "s3", "ws3", "claude", []byte(`{}`), 10, nil)
	require.NoError(t, err)

	claimed, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	require.Equal(t, high.ID, claimed.ID, "lower priority value should claim first")
	require.NotNil(t, claimed.StartedAt)

	claimed, err = store.ClaimNext(ctx)
	require.NoError(t, err)
	require.Equal(t, low.ID, claimed.ID, "equal priority should claim the earlier queued_at first")

	claimed, err = store.ClaimNext(ctx)
	require.NoError(t, err)
	require.Equal(t, lowLater.ID, claimed.ID)
}

func TestStoreClaimNextEmptyQueue(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.ClaimNext(ctx)
	require.ErrorIs(t, err, ErrNoEntriesAvailable)
}

func TestStoreBounceToPendingRestoresEntry(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	entry, err := store.Create(ctx, "s1", "ws1", "claude", []byte(`{}`), 0, nil)
	require.NoError(t, err)

	claimed, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	require.Equal(t, entry.ID, claimed.ID)

	require.NoError(t, store.BounceToPending(ctx, claimed.ID))

	reclaimed, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	require.Equal(t, entry.ID, reclaimed.ID)
}

func TestStoreCancel(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	entry, err := store.Create(ctx, "s1", "ws1", "claude", []byte(`{}`), 0, nil)
	require.NoError(t, err)

	require.NoError(t, store.Cancel(ctx, entry.ID))

	err = store.Cancel(ctx, entry.ID)
	require.ErrorIs(t, err, ErrNotPending)
}

func TestStoreGetPositionOrdersAheadEntries(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first, err := store.Create(ctx, "s1", "ws1", "claude", []byte(`{}`), 0, nil)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := store.Create(ctx, "s2", "ws2", "claude", []byte(`{}`), 0, nil)
	require.NoError(t, err)

	pos1, err := store.GetPosition(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, 1, pos1.Position)

	pos2, err := store.GetPosition(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, 2, pos2.Position)
}

func TestStoreCreateStoresOptionalPrompt(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	prompt := "fix the flaky test"
	entry, err := store.Create(ctx, "s1", "ws1", "claude", []byte(`{}`), 0, &prompt)
	require.NoError(t, err)
	require.NotNil(t, entry.Prompt)
	require.Equal(t, prompt, *entry.Prompt)

	found, err := store.FindPendingForSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, found.Prompt)
	require.Equal(t, prompt, *found.Prompt)
}

func TestStoreCleanupOldDeletesOnlyTerminalEntries(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	entry, err := store.Create(ctx, "s1", "ws1", "claude", []byte(`{}`), 0, nil)
	require.NoError(t, err)
	require.NoError(t, store.Cancel(ctx, entry.ID))

	pending, err := store.Create(ctx, "s2", "ws2", "claude", []byte(`{}`), 0, nil)
	require.NoError(t, err)

	n, err := store.CleanupOld(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = store.FindByID(ctx, entry.ID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.FindByID(ctx, pending.ID)
	require.NoError(t, err)
}

// TestStoreFindPendingForSessionStopsOnClaim reproduces spec §8's
// round-trip law: enqueue(x) then find_pending_for_session(x.session)
// returns the same row until claim or cancel, not after.
func TestStoreFindPendingForSessionStopsOnClaim(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	entry, err := store.Create(ctx, "s1", "ws1", "claude", []byte(`{}`), 0, nil)
	require.NoError(t, err)

	found, err := store.FindPendingForSession(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, entry.ID, found.ID)

	claimed, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	require.Equal(t, entry.ID, claimed.ID)

	none, err := store.FindPendingForSession(ctx, "s1")
	require.NoError(t, err)
	require.Nil(t, none, "a claimed (processing) entry is no longer the session's pending entry")
}

func TestStoreGetQueueDepthPopulatesPerExecutorLimit(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Create(ctx, "s1", "ws1", "claude", []byte(`{}`), 0, nil)
	require.NoError(t, err)
	_, err = store.Create(ctx, "s2", "ws2", "codex", []byte(`{}`), 0, nil)
	require.NoError(t, err)

	cfg := config.ConcurrencyConfig{
		GlobalLimit: config.Limited(10),
		AgentLimits: map[string]config.Limit{"claude": config.Limited(3)},
	}

	stats, err := store.GetQueueDepth(ctx, cfg)
	require.NoError(t, err)

	require.NotNil(t, stats.ByExecutorType["claude"].Limit)
	require.EqualValues(t, 3, *stats.ByExecutorType["claude"].Limit)

	// codex has no entry in AgentLimits, so it falls back to GlobalLimit.
	require.NotNil(t, stats.ByExecutorType["codex"].Limit)
	require.EqualValues(t, 10, *stats.ByExecutorType["codex"].Limit)
}

func TestStoreGetQueueDepthOmitsLimitWhenUnlimited(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Create(ctx, "s1", "ws1", "claude", []byte(`{}`), 0, nil)
	require.NoError(t, err)

	cfg := config.ConcurrencyConfig{GlobalLimit: config.Unlimited, AgentLimits: map[string]config.Limit{}}

	stats, err := store.GetQueueDepth(ctx, cfg)
	require.NoError(t, err)
	require.Nil(t, stats.ByExecutorType["claude"].Limit)
}
