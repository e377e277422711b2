package sync

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), testLogger(t))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func testNote(id string, revision, lastSynced int64, dirty bool) *Entity {
	return &Entity{
		AccountID:          "acct",
		WorkspaceID:        "ws",
		ID:                 id,
		Kind:               KindNote,
		Title:              "Note " + id,
		Content:            []byte("body of " + id),
		Revision:           revision,
		LastSyncedRevision: lastSynced,
		IsDirty:            dirty,
		UpdatedAt:          NowMilli(),
		CreatedAt:          NowMilli(),
	}
}

// --- Entity CRUD ---

func TestStore_GetEntityMissing(t *testing.T) {
	store := newTestStore(t)

	e, err := store.GetEntity(context.Background(), "acct", "ws", "nope")
	require.NoError(t, err)
	assert.Nil(t, e, "missing entity must be (nil, nil)")
}

func TestStore_UpsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := testNote("n1", 3, 2, true)
	require.NoError(t, store.UpsertEntity(ctx, in))

	out, err := store.GetEntity(ctx, "acct", "ws", "n1")
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.Equal(t, in.Title, out.Title)
	assert.Equal(t, in.Content, out.Content)
	assert.Equal(t, int64(3), out.Revision)
	assert.Equal(t, int64(2), out.LastSyncedRevision)
	assert.True(t, out.IsDirty)
	assert.Equal(t, KindNote, out.Kind)
}

func TestStore_UpsertPreservesCreatedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := testNote("n1", 1, 0, true)
	in.CreatedAt = 1111
	require.NoError(t, store.UpsertEntity(ctx, in))

	update := testNote("n1", 2, 0, true)
	update.CreatedAt = 9999
	require.NoError(t, store.UpsertEntity(ctx, update))

	out, err := store.GetEntity(ctx, "acct", "ws", "n1")
	require.NoError(t, err)
	assert.Equal(t, int64(1111), out.CreatedAt, "update must not change created_at")
	assert.Equal(t, int64(2), out.Revision)
}

func TestStore_WorkspaceScoping(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := testNote("n1", 1, 0, true)
	b := testNote("n1", 5, 5, false)
	b.WorkspaceID = "other"

	require.NoError(t, store.UpsertEntity(ctx, a))
	require.NoError(t, store.UpsertEntity(ctx, b))

	out, err := store.GetEntity(ctx, "acct", "ws", "n1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Revision)

	other, err := store.GetEntity(ctx, "acct", "other", "n1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), other.Revision)
}

func TestStore_ListDirtyOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	newest := testNote("a-newest", 2, 1, true)
	newest.UpdatedAt = 3000
	oldest := testNote("z-oldest", 2, 1, true)
	oldest.UpdatedAt = 1000
	clean := testNote("clean", 2, 2, false)

	for _, e := range []*Entity{newest, oldest, clean} {
		require.NoError(t, store.UpsertEntity(ctx, e))
	}

	dirty, err := store.ListDirty(ctx, "acct", "ws")
	require.NoError(t, err)
	require.Len(t, dirty, 2)

	// Oldest modification first, regardless of id ordering.
	assert.Equal(t, "z-oldest", dirty[0].ID)
	assert.Equal(t, "a-newest", dirty[1].ID)
}

func TestStore_MarkSynced(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertEntity(ctx, testNote("n1", 3, 2, true)))
	require.NoError(t, store.MarkSynced(ctx, "acct", "ws", "n1", 4))

	out, err := store.GetEntity(ctx, "acct", "ws", "n1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), out.Revision)
	assert.Equal(t, int64(4), out.LastSyncedRevision)
	assert.False(t, out.IsDirty)
}

func TestStore_PurgeSyncedTombstones(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	acked := testNote("acked", 2, 2, false)
	acked.IsDeleted = true
	pending := testNote("pending", 3, 2, true)
	pending.IsDeleted = true
	alive := testNote("alive", 2, 2, false)

	for _, e := range []*Entity{acked, pending, alive} {
		require.NoError(t, store.UpsertEntity(ctx, e))
	}

	purged, err := store.PurgeSyncedTombstones(ctx, "acct", "ws")
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	// The acknowledged tombstone is gone.
	e, err := store.GetEntity(ctx, "acct", "ws", "acked")
	require.NoError(t, err)
	assert.Nil(t, e)

	// The unpushed tombstone survives for the next cycle.
	e, err = store.GetEntity(ctx, "acct", "ws", "pending")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.True(t, e.IsDeleted)

	// Live entities are untouched.
	e, err = store.GetEntity(ctx, "acct", "ws", "alive")
	require.NoError(t, err)
	assert.NotNil(t, e)
}

func TestStore_PendingCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertEntity(ctx, testNote("d1", 2, 1, true)))
	require.NoError(t, store.UpsertEntity(ctx, testNote("d2", 2, 1, true)))
	require.NoError(t, store.UpsertEntity(ctx, testNote("c1", 2, 2, false)))

	count, err := store.PendingCount(ctx, "acct", "ws")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// --- Cursor and bookkeeping ---

func TestStore_CursorRoundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cursor, err := store.GetCursor(ctx, "acct", "ws")
	require.NoError(t, err)
	assert.Equal(t, int64(0), cursor, "first sync starts at 0")

	require.NoError(t, store.SaveCursor(ctx, "acct", "ws", 42))
	require.NoError(t, store.SaveCursor(ctx, "acct", "ws", 99))

	cursor, err = store.GetCursor(ctx, "acct", "ws")
	require.NoError(t, err)
	assert.Equal(t, int64(99), cursor)
}

func TestStore_LastSyncAtRoundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	at, err := store.GetLastSyncAt(ctx, "acct", "ws")
	require.NoError(t, err)
	assert.Equal(t, int64(0), at)

	require.NoError(t, store.SaveLastSyncAt(ctx, "acct", "ws", 123456))

	at, err = store.GetLastSyncAt(ctx, "acct", "ws")
	require.NoError(t, err)
	assert.Equal(t, int64(123456), at)
}

// --- History ---

func TestStore_HistoryAppendAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entries := []*HistoryEntry{
		{ID: "h1", SyncType: SyncTypeFull, PushedCount: 1, CreatedAt: 1000},
		{ID: "h2", SyncType: SyncTypePull, PulledCount: 3, CreatedAt: 2000},
		{ID: "h3", SyncType: SyncTypeFull, Error: "network unreachable", CreatedAt: 3000},
	}
	for _, e := range entries {
		require.NoError(t, store.AppendHistory(ctx, e))
	}

	got, err := store.ListHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Newest first.
	assert.Equal(t, "h3", got[0].ID)
	assert.Equal(t, "network unreachable", got[0].Error)
	assert.Equal(t, "h2", got[1].ID)
	assert.Equal(t, "", got[1].Error)
	assert.Equal(t, "h1", got[2].ID)
}

func TestStore_HistoryLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.AppendHistory(ctx, &HistoryEntry{
			ID:        string(rune('a' + i)),
			SyncType:  SyncTypeFull,
			CreatedAt: int64(1000 + i),
		}))
	}

	got, err := store.ListHistory(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "e", got[0].ID)
}

func TestStore_HistoryClear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendHistory(ctx, &HistoryEntry{ID: "h1", SyncType: SyncTypeFull, CreatedAt: 1}))
	require.NoError(t, store.ClearHistory(ctx))

	got, err := store.ListHistory(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_Checkpoint(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpsertEntity(context.Background(), testNote("n1", 1, 0, true)))
	assert.NoError(t, store.Checkpoint())
}
