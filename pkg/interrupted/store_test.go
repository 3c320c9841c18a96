package interrupted

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/conductor/pkg/database"
	"github.com/taskforge/conductor/pkg/models"
)

func newStoreTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

func TestStoreCreateAndFindByID(t *testing.T) {
	store := NewStore(newStoreTestDB(t))

	rec, err := store.Create(context.Background(), "proc-1", "s1", "ws1", "claude",
		json.RawMessage(`{"prompt":"fix it"}`), models.RunReasonCodingAgent, nil)
	require.NoError(t, err)
	require.False(t, rec.Resumed)
	require.Nil(t, rec.ResumedAt)

	found, err := store.FindByID(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec.ID, found.ID)
	require.Equal(t, "proc-1", found.ExecutionProcessID)
	require.JSONEq(t, `{"prompt":"fix it"}`, string(found.OriginalAction))
}

func TestStoreFindByIDReturnsNotFound(t *testing.T) {
	store := NewStore(newStoreTestDB(t))

	_, err := store.FindByID(context.Background(), "does-not-exist")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreFindByExecutionProcessID(t *testing.T) {
	store := NewStore(newStoreTestDB(t))

	rec, err := store.Create(context.Background(), "proc-2", "s1", "ws1", "codex",
		json.RawMessage(`{}`), models.RunReasonCodingAgent, nil)
	require.NoError(t, err)

	found, err := store.FindByExecutionProcessID(context.Background(), "proc-2")
	require.NoError(t, err)
	require.Equal(t, rec.ID, found.ID)
}

// TestStoreFindNotResumedOrdersOldestFirst matches spec §5's startup
// recovery walk order.
func TestStoreFindNotResumedOrdersOldestFirst(t *testing.T) {
	store := NewStore(newStoreTestDB(t))

	first, err := store.Create(context.Background(), "proc-a", "s1", "ws1", "claude", json.RawMessage(`{}`), models.RunReasonCodingAgent, nil)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := store.Create(context.Background(), "proc-b", "s2", "ws2", "claude", json.RawMessage(`{}`), models.RunReasonCodingAgent, nil)
	require.NoError(t, err)

	records, err := store.FindNotResumed(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, first.ID, records[0].ID)
	require.Equal(t, second.ID, records[1].ID)
}

// TestMarkResumedIsMonotonic reproduces spec §8 invariant 7:
// InterruptedExecution.resumed only transitions false -> true.
func TestMarkResumedIsMonotonic(t *testing.T) {
	store := NewStore(newStoreTestDB(t))

	rec, err := store.Create(context.Background(), "proc-1", "s1", "ws1", "claude", json.RawMessage(`{}`), models.RunReasonCodingAgent, nil)
	require.NoError(t, err)

	require.NoError(t, store.MarkResumed(context.Background(), rec.ID))

	found, err := store.FindByID(context.Background(), rec.ID)
	require.NoError(t, err)
	require.True(t, found.Resumed)
	require.NotNil(t, found.ResumedAt)

	err = store.MarkResumed(context.Background(), rec.ID)
	require.ErrorIs(t, err, ErrAlreadyResumed)

	// Still resumed, not reverted, by the rejected second call.
	found, err = store.FindByID(context.Background(), rec.ID)
	require.NoError(t, err)
	require.True(t, found.Resumed)
}

func TestMarkResumedForSessionResumesOnlyThatSession(t *testing.T) {
	store := NewStore(newStoreTestDB(t))

	_, err := store.Create(context.Background(), "proc-1", "s1", "ws1", "claude", json.RawMessage(`{}`), models.RunReasonCodingAgent, nil)
	require.NoError(t, err)
	_, err = store.Create(context.Background(), "proc-2", "s1", "ws1", "codex", json.RawMessage(`{}`), models.RunReasonCodingAgent, nil)
	require.NoError(t, err)
	other, err := store.Create(context.Background(), "proc-3", "s2", "ws2", "claude", json.RawMessage(`{}`), models.RunReasonCodingAgent, nil)
	require.NoError(t, err)

	n, err := store.MarkResumedForSession(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	remaining, err := store.FindNotResumed(context.Background())
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, other.ID, remaining[0].ID)
}

func TestStoreCleanupOldDeletesOnlyResumedPastRetention(t *testing.T) {
	db := newStoreTestDB(t)
	store := NewStore(db)

	old, err := store.Create(context.Background(), "proc-old", "s1", "ws1", "claude", json.RawMessage(`{}`), models.RunReasonCodingAgent, nil)
	require.NoError(t, err)
	require.NoError(t, store.MarkResumed(context.Background(), old.ID))
	// Backdate created_at past the retention window directly; Create
	// always stamps "now", which cleanup must not match.
	past := time.Now().UTC().AddDate(0, 0, -31)
	_, err = db.Exec(`UPDATE interrupted_executions SET created_at = ? WHERE id = ?`, past, old.ID)
	require.NoError(t, err)

	recent, err := store.Create(context.Background(), "proc-recent", "s2", "ws2", "claude", json.RawMessage(`{}`), models.RunReasonCodingAgent, nil)
	require.NoError(t, err)
	require.NoError(t, store.MarkResumed(context.Background(), recent.ID))

	unresumed, err := store.Create(context.Background(), "proc-unresumed", "s3", "ws3", "claude", json.RawMessage(`{}`), models.RunReasonCodingAgent, nil)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE interrupted_executions SET created_at = ? WHERE id = ?`, past, unresumed.ID)
	require.NoError(t, err)

	cutoff := time.Now().UTC().AddDate(0, 0, -30)
	n, err := store.CleanupOld(context.Background(), cutoff)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = store.FindByID(context.Background(), old.ID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.FindByID(context.Background(), recent.ID)
	require.NoError(t, err)

	// Old enough but never resumed: cleanup never reaps an
	// interrupted execution recovery hasn't processed yet.
	_, err = store.FindByID(context.Background(), unresumed.ID)
	require.NoError(t, err)
}
