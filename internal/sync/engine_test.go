package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillnotes/quillsync/internal/api"
)

// fakeRemote is an in-memory note server. It models the real server's
// revision semantics: a push is accepted when it advances past the server's
// current revision, otherwise rejected with the server's copy.
type fakeRemote struct {
	mu stdsync.Mutex

	entities       map[string]api.Entity
	changedAt      map[string]int64 // entity id -> server revision at last change
	serverRevision int64

	fetchErr   error            // returned by FetchChangedSince
	pushErrs   map[string]error // per-entity push failures
	pushedIDs  []string         // accepted pushes in order
	fetchGate  chan struct{}    // when non-nil, FetchChangedSince blocks until closed
	fetchCalls int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		entities:  make(map[string]api.Entity),
		changedAt: make(map[string]int64),
		pushErrs:  make(map[string]error),
	}
}

// put simulates a server-side change from another device.
func (f *fakeRemote) put(e api.Entity) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.serverRevision++
	f.entities[e.ID] = e
	f.changedAt[e.ID] = f.serverRevision
}

func (f *fakeRemote) FetchChangedSince(ctx context.Context, workspaceID string, since int64) (*api.ChangeSet, error) {
	if f.fetchGate != nil {
		select {
		case <-f.fetchGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetchCalls++

	if f.fetchErr != nil {
		return nil, f.fetchErr
	}

	cs := &api.ChangeSet{ServerRevision: f.serverRevision}

	for id, at := range f.changedAt {
		if at > since {
			cs.Entities = append(cs.Entities, f.entities[id])
		}
	}

	return cs, nil
}

func (f *fakeRemote) FetchEntity(ctx context.Context, workspaceID, id string) (*api.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.entities[id]
	if !ok {
		return nil, nil
	}

	return &e, nil
}

func (f *fakeRemote) PushEntity(ctx context.Context, workspaceID string, e *api.Entity) (*api.PushOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.pushErrs[e.ID]; err != nil {
		return nil, err
	}

	if current, ok := f.entities[e.ID]; ok && e.Revision <= current.Revision {
		rejected := current

		return &api.PushOutcome{Rejected: true, ServerEntity: &rejected}, nil
	}

	f.serverRevision++
	f.entities[e.ID] = *e
	f.changedAt[e.ID] = f.serverRevision
	f.pushedIDs = append(f.pushedIDs, e.ID)

	return &api.PushOutcome{AcceptedRevision: e.Revision}, nil
}

var _ RemoteClient = (*fakeRemote)(nil)

func newTestEngine(t *testing.T, remote RemoteClient, policy ConflictPolicy) (*Engine, *SQLiteStore) {
	t.Helper()

	store := newTestStore(t)
	engine := NewEngine(&EngineConfig{
		Store:     store,
		Remote:    remote,
		AccountID: "acct",
		Policy:    policy,
		Logger:    testLogger(t),
	})

	return engine, store
}

// --- Full cycle scenarios ---

func TestEngine_CleanPush(t *testing.T) {
	remote := newFakeRemote()
	engine, store := newTestEngine(t, remote, PolicyPrompt)
	ctx := context.Background()

	require.NoError(t, store.UpsertEntity(ctx, testNote("n1", 1, 0, true)))

	res, err := engine.SyncNow(ctx, "ws")
	require.NoError(t, err)

	assert.Equal(t, StatusIdle, res.Status)
	assert.Equal(t, 1, res.Pushed)
	assert.Equal(t, 0, res.Pulled)
	assert.NoError(t, res.Err)

	// Server received the entity.
	assert.Equal(t, []string{"n1"}, remote.pushedIDs)

	// Local bookkeeping advanced and cleared.
	e, err := store.GetEntity(ctx, "acct", "ws", "n1")
	require.NoError(t, err)
	assert.False(t, e.IsDirty)
	assert.Equal(t, e.Revision, e.LastSyncedRevision)

	// The cycle was recorded.
	history, err := store.ListHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 1, history[0].PushedCount)
	assert.Empty(t, history[0].Error)
}

func TestEngine_CleanPull(t *testing.T) {
	remote := newFakeRemote()
	remote.put(api.Entity{ID: "n1", Kind: "note", Title: "From server", Content: []byte("body"), Revision: 3})

	engine, store := newTestEngine(t, remote, PolicyPrompt)
	ctx := context.Background()

	res, err := engine.SyncNow(ctx, "ws")
	require.NoError(t, err)

	assert.Equal(t, StatusIdle, res.Status)
	assert.Equal(t, 1, res.Pulled)
	assert.Equal(t, 0, res.Pushed)

	e, err := store.GetEntity(ctx, "acct", "ws", "n1")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "From server", e.Title)
	assert.False(t, e.IsDirty)
	assert.Equal(t, int64(3), e.Revision)
	assert.Equal(t, int64(3), e.LastSyncedRevision)

	// Cursor advanced to the server revision.
	cursor, err := store.GetCursor(ctx, "acct", "ws")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cursor)
}

func TestEngine_RepeatCycleIsIdempotent(t *testing.T) {
	remote := newFakeRemote()
	remote.put(api.Entity{ID: "n1", Kind: "note", Revision: 2})

	engine, store := newTestEngine(t, remote, PolicyPrompt)
	ctx := context.Background()

	require.NoError(t, store.UpsertEntity(ctx, testNote("n2", 1, 0, true)))

	first, err := engine.SyncNow(ctx, "ws")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Pulled)
	assert.Equal(t, 1, first.Pushed)

	// The second cycle sees the push echo in the change feed but recognizes
	// agreement; nothing moves.
	second, err := engine.SyncNow(ctx, "ws")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Pulled)
	assert.Equal(t, 0, second.Pushed)
	assert.Equal(t, StatusIdle, second.Status)

	third, err := engine.SyncNow(ctx, "ws")
	require.NoError(t, err)
	assert.Equal(t, 0, third.Pulled)
	assert.Equal(t, 0, third.Pushed)
}

func TestEngine_NetworkErrorAbortsBeforeLocalWrites(t *testing.T) {
	remote := newFakeRemote()
	remote.fetchErr = fmt.Errorf("dial tcp: connection refused")

	engine, store := newTestEngine(t, remote, PolicyPrompt)
	ctx := context.Background()

	require.NoError(t, store.UpsertEntity(ctx, testNote("n1", 1, 0, true)))

	res, err := engine.SyncNow(ctx, "ws")
	require.NoError(t, err)

	assert.Equal(t, StatusError, res.Status)
	require.Error(t, res.Err)
	assert.Equal(t, 0, res.Pushed)

	// The dirty entity is untouched and retried next time.
	e, err := store.GetEntity(ctx, "acct", "ws", "n1")
	require.NoError(t, err)
	assert.True(t, e.IsDirty)

	// The failed cycle is still recorded with its error.
	history, err := store.ListHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Contains(t, history[0].Error, "connection refused")
}

func TestEngine_PartialPushFailureIsolation(t *testing.T) {
	remote := newFakeRemote()
	remote.pushErrs["n2"] = &api.APIError{StatusCode: 422, Message: "title too long", Err: api.ErrValidation}

	engine, store := newTestEngine(t, remote, PolicyPrompt)
	ctx := context.Background()

	for i, id := range []string{"n1", "n2", "n3"} {
		e := testNote(id, 1, 0, true)
		e.UpdatedAt = int64(1000 + i)
		require.NoError(t, store.UpsertEntity(ctx, e))
	}

	res, err := engine.SyncNow(ctx, "ws")
	require.NoError(t, err)

	// The failing entity does not poison the batch.
	assert.Equal(t, 2, res.Pushed)
	require.Len(t, res.EntityErrors, 1)
	assert.Equal(t, "n2", res.EntityErrors[0].EntityID)
	assert.ErrorIs(t, res.EntityErrors[0].Err, api.ErrValidation)
	assert.Equal(t, StatusError, res.Status)

	// n1 and n3 are synced; n2 stays dirty for retry.
	for id, wantDirty := range map[string]bool{"n1": false, "n2": true, "n3": false} {
		e, getErr := store.GetEntity(ctx, "acct", "ws", id)
		require.NoError(t, getErr)
		assert.Equal(t, wantDirty, e.IsDirty, "entity %s", id)
	}
}

func TestEngine_AuthErrorAbortsPushBatch(t *testing.T) {
	remote := newFakeRemote()
	remote.pushErrs["n1"] = &api.APIError{StatusCode: 401, Err: api.ErrUnauthorized}

	engine, store := newTestEngine(t, remote, PolicyPrompt)
	ctx := context.Background()

	first := testNote("n1", 1, 0, true)
	first.UpdatedAt = 1000
	second := testNote("n2", 1, 0, true)
	second.UpdatedAt = 2000

	require.NoError(t, store.UpsertEntity(ctx, first))
	require.NoError(t, store.UpsertEntity(ctx, second))

	res, err := engine.SyncNow(ctx, "ws")
	require.NoError(t, err)

	// A dead credential fails everything after it too; nothing was pushed.
	assert.Equal(t, StatusError, res.Status)
	assert.ErrorIs(t, res.Err, api.ErrUnauthorized)
	assert.Equal(t, 0, res.Pushed)
	assert.Empty(t, remote.pushedIDs)
}

// --- Conflicts ---

func seedDivergence(t *testing.T, store *SQLiteStore, remote *fakeRemote) {
	t.Helper()

	local := testNote("n1", 5, 4, true)
	local.Content = []byte("local body")
	require.NoError(t, store.UpsertEntity(context.Background(), local))

	remote.put(api.Entity{
		ID: "n1", Kind: "note", Title: "Note n1",
		Content: []byte("remote body"), Revision: 6,
	})
}

func TestEngine_PromptPolicyPausesOnConflict(t *testing.T) {
	remote := newFakeRemote()
	engine, store := newTestEngine(t, remote, PolicyPrompt)
	ctx := context.Background()

	seedDivergence(t, store, remote)

	res, err := engine.SyncNow(ctx, "ws")
	require.NoError(t, err)

	assert.Equal(t, StatusConflict, res.Status)
	assert.Equal(t, 1, res.Conflicts)
	assert.Equal(t, []string{"n1"}, res.ConflictIDs)
	assert.Equal(t, 0, res.Pushed)
	assert.Equal(t, 0, res.Pulled)

	// The local entity is untouched - no data was overwritten.
	e, err := store.GetEntity(ctx, "acct", "ws", "n1")
	require.NoError(t, err)
	assert.Equal(t, []byte("local body"), e.Content)
	assert.True(t, e.IsDirty)

	// The cursor is pinned so the diverged remote is re-fetched next cycle.
	cursor, err := store.GetCursor(ctx, "acct", "ws")
	require.NoError(t, err)
	assert.Equal(t, int64(0), cursor)

	// The conflict is queryable.
	pending := engine.PendingConflicts("ws")
	require.Len(t, pending, 1)
	assert.Equal(t, "n1", pending[0].Local.ID)
}

func TestEngine_KeepRemotePolicyAutoResolves(t *testing.T) {
	remote := newFakeRemote()
	engine, store := newTestEngine(t, remote, PolicyKeepRemote)
	ctx := context.Background()

	seedDivergence(t, store, remote)

	res, err := engine.SyncNow(ctx, "ws")
	require.NoError(t, err)

	assert.Equal(t, StatusIdle, res.Status)
	assert.Equal(t, 1, res.Conflicts)
	assert.Empty(t, engine.PendingConflicts("ws"))

	e, err := store.GetEntity(ctx, "acct", "ws", "n1")
	require.NoError(t, err)
	assert.Equal(t, []byte("remote body"), e.Content)
	assert.False(t, e.IsDirty)
	assert.Equal(t, int64(6), e.Revision)

	// Cursor advances: nothing is pending.
	cursor, err := store.GetCursor(ctx, "acct", "ws")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cursor)
}

func TestEngine_KeepBothPolicyLosesNothing(t *testing.T) {
	remote := newFakeRemote()
	engine, store := newTestEngine(t, remote, PolicyKeepBoth)
	ctx := context.Background()

	seedDivergence(t, store, remote)

	res, err := engine.SyncNow(ctx, "ws")
	require.NoError(t, err)

	assert.Equal(t, StatusIdle, res.Status)
	assert.Equal(t, 1, res.Conflicts)
	assert.Equal(t, 1, res.Pushed, "the duplicate carrying local edits is uploaded")

	// Original id holds the remote content.
	original, err := store.GetEntity(ctx, "acct", "ws", "n1")
	require.NoError(t, err)
	assert.Equal(t, []byte("remote body"), original.Content)
	assert.False(t, original.IsDirty)

	// The local edits live on under a new id, synced to the server.
	dirty, err := store.ListDirty(ctx, "acct", "ws")
	require.NoError(t, err)
	assert.Empty(t, dirty, "duplicate was pushed and acknowledged")

	require.Len(t, remote.pushedIDs, 1)
	dup, ok := remote.entities[remote.pushedIDs[0]]
	require.True(t, ok)
	assert.Equal(t, []byte("local body"), dup.Content)
	assert.Contains(t, dup.Title, "(local copy)")
}

func TestEngine_RejectedPushParkedUnderPromptPolicy(t *testing.T) {
	remote := newFakeRemote()
	engine, store := newTestEngine(t, remote, PolicyPrompt)
	ctx := context.Background()

	// Server is ahead, but the change feed is already consumed: the
	// divergence is only discovered when the push bounces.
	remote.put(api.Entity{ID: "n1", Kind: "note", Content: []byte("remote body"), Revision: 8})
	require.NoError(t, store.SaveCursor(ctx, "acct", "ws", remote.serverRevision))

	local := testNote("n1", 5, 4, true)
	require.NoError(t, store.UpsertEntity(ctx, local))

	res, err := engine.SyncNow(ctx, "ws")
	require.NoError(t, err)

	assert.Equal(t, StatusConflict, res.Status)
	assert.Equal(t, 1, res.Conflicts)
	assert.Equal(t, 0, res.Pushed)

	pending := engine.PendingConflicts("ws")
	require.Len(t, pending, 1)
	assert.Equal(t, int64(8), pending[0].Remote.Revision)
}

func TestEngine_RejectedPushAutoResolvedUnderKeepBoth(t *testing.T) {
	remote := newFakeRemote()
	engine, store := newTestEngine(t, remote, PolicyKeepBoth)
	ctx := context.Background()

	remote.put(api.Entity{ID: "n1", Kind: "note", Content: []byte("remote body"), Revision: 8})
	require.NoError(t, store.SaveCursor(ctx, "acct", "ws", remote.serverRevision))

	local := testNote("n1", 5, 4, true)
	local.Content = []byte("local body")
	require.NoError(t, store.UpsertEntity(ctx, local))

	res, err := engine.SyncNow(ctx, "ws")
	require.NoError(t, err)

	assert.Equal(t, StatusIdle, res.Status)
	assert.Equal(t, 1, res.Conflicts)
	assert.Equal(t, 1, res.Pushed, "the duplicate is pushed in the same cycle")
	assert.Empty(t, engine.PendingConflicts("ws"))

	// Original takes the server content; local edits survive as the copy.
	original, err := store.GetEntity(ctx, "acct", "ws", "n1")
	require.NoError(t, err)
	assert.Equal(t, []byte("remote body"), original.Content)
}

// --- Single flight ---

func TestEngine_BackgroundTriggerRejectedWhileCycleRuns(t *testing.T) {
	remote := newFakeRemote()
	remote.fetchGate = make(chan struct{})

	engine, _ := newTestEngine(t, remote, PolicyPrompt)
	ctx := context.Background()

	done := make(chan *SyncResult, 1)
	go func() {
		res, err := engine.SyncNow(ctx, "ws")
		require.NoError(t, err)
		done <- res
	}()

	// Wait for the cycle to be visibly in flight.
	require.Eventually(t, func() bool {
		st, err := engine.GetStatus(ctx, "ws")
		require.NoError(t, err)

		return st.Status == StatusSyncing
	}, time.Second, 5*time.Millisecond)

	_, err := engine.SyncBackground(ctx, "ws")
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(remote.fetchGate)
	<-done
}

func TestEngine_ConcurrentManualTriggersCoalesce(t *testing.T) {
	remote := newFakeRemote()
	remote.fetchGate = make(chan struct{})

	engine, _ := newTestEngine(t, remote, PolicyPrompt)
	ctx := context.Background()

	results := make(chan *SyncResult, 2)
	go func() {
		res, err := engine.SyncNow(ctx, "ws")
		require.NoError(t, err)
		results <- res
	}()

	// First caller is in flight and blocked inside the fetch.
	require.Eventually(t, func() bool {
		st, err := engine.GetStatus(ctx, "ws")
		require.NoError(t, err)

		return st.Status == StatusSyncing
	}, time.Second, 5*time.Millisecond)

	go func() {
		res, err := engine.SyncNow(ctx, "ws")
		require.NoError(t, err)
		results <- res
	}()

	// Give the second caller time to join the in-flight cycle.
	time.Sleep(50 * time.Millisecond)
	close(remote.fetchGate)

	a, b := <-results, <-results
	assert.Same(t, a, b, "coalesced callers share one cycle's result")

	remote.mu.Lock()
	defer remote.mu.Unlock()
	assert.Equal(t, 1, remote.fetchCalls, "only one cycle actually ran")
}

// --- Tombstones ---

func TestEngine_DeletionPushedThenPurged(t *testing.T) {
	remote := newFakeRemote()
	engine, store := newTestEngine(t, remote, PolicyPrompt)
	ctx := context.Background()

	tomb := testNote("n1", 3, 2, true)
	tomb.IsDeleted = true
	require.NoError(t, store.UpsertEntity(ctx, tomb))

	res, err := engine.SyncNow(ctx, "ws")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pushed)

	// Server saw the tombstone.
	pushed, ok := remote.entities["n1"]
	require.True(t, ok)
	assert.True(t, pushed.Deleted)

	// The acknowledged tombstone is purged from the local store.
	e, err := store.GetEntity(ctx, "acct", "ws", "n1")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestEngine_RemoteDeletionAppliesLocally(t *testing.T) {
	remote := newFakeRemote()
	engine, store := newTestEngine(t, remote, PolicyPrompt)
	ctx := context.Background()

	// In-sync entity deleted on another device.
	require.NoError(t, store.UpsertEntity(ctx, testNote("n1", 2, 2, false)))
	remote.put(api.Entity{ID: "n1", Kind: "note", Revision: 3, Deleted: true})

	res, err := engine.SyncNow(ctx, "ws")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pulled)

	// The pull lands as an acknowledged tombstone and is purged at finalize.
	e, err := store.GetEntity(ctx, "acct", "ws", "n1")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestEngine_TombstoneForUnknownEntityIgnored(t *testing.T) {
	remote := newFakeRemote()
	engine, store := newTestEngine(t, remote, PolicyPrompt)
	ctx := context.Background()

	remote.put(api.Entity{ID: "ghost", Kind: "note", Revision: 4, Deleted: true})

	res, err := engine.SyncNow(ctx, "ws")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Pulled)

	e, err := store.GetEntity(ctx, "acct", "ws", "ghost")
	require.NoError(t, err)
	assert.Nil(t, e)
}

// --- Targeted sync and resolution ---

func TestEngine_SyncEntityKeepsBothOnDivergence(t *testing.T) {
	remote := newFakeRemote()
	engine, store := newTestEngine(t, remote, PolicyPrompt)
	ctx := context.Background()

	seedDivergence(t, store, remote)

	res, err := engine.SyncEntity(ctx, "ws", "n1")
	require.NoError(t, err)

	assert.Equal(t, StatusIdle, res.Status)
	assert.Equal(t, 1, res.Conflicts)
	assert.Equal(t, 1, res.Pushed)

	original, err := store.GetEntity(ctx, "acct", "ws", "n1")
	require.NoError(t, err)
	assert.Equal(t, []byte("remote body"), original.Content)

	dirty, err := store.ListDirty(ctx, "acct", "ws")
	require.NoError(t, err)
	assert.Empty(t, dirty)
}

func TestEngine_SyncEntityNotFoundAnywhere(t *testing.T) {
	remote := newFakeRemote()
	engine, _ := newTestEngine(t, remote, PolicyPrompt)

	res, err := engine.SyncEntity(context.Background(), "ws", "ghost")
	require.NoError(t, err)
	assert.Equal(t, StatusError, res.Status)
	assert.Error(t, res.Err)
}

func TestEngine_ResolveConflictKeepLocal(t *testing.T) {
	remote := newFakeRemote()
	engine, store := newTestEngine(t, remote, PolicyPrompt)
	ctx := context.Background()

	seedDivergence(t, store, remote)

	res, err := engine.SyncNow(ctx, "ws")
	require.NoError(t, err)
	require.Equal(t, StatusConflict, res.Status)

	require.NoError(t, engine.ResolveConflict(ctx, "ws", "n1", KeepLocal))

	// Local edits won and reached the server.
	assert.Empty(t, engine.PendingConflicts("ws"))

	server := remote.entities["n1"]
	assert.Equal(t, []byte("local body"), server.Content)
	assert.Equal(t, int64(7), server.Revision, "past both sides' revisions")

	e, err := store.GetEntity(ctx, "acct", "ws", "n1")
	require.NoError(t, err)
	assert.False(t, e.IsDirty)
	assert.Equal(t, int64(7), e.LastSyncedRevision)
}

func TestEngine_ResolveConflictUnknownEntity(t *testing.T) {
	remote := newFakeRemote()
	engine, _ := newTestEngine(t, remote, PolicyPrompt)

	err := engine.ResolveConflict(context.Background(), "ws", "ghost", KeepLocal)
	assert.ErrorIs(t, err, ErrUnknownConflict)
}

func TestEngine_DetectConflictsSurvivesRestart(t *testing.T) {
	remote := newFakeRemote()
	engine, store := newTestEngine(t, remote, PolicyPrompt)
	ctx := context.Background()

	seedDivergence(t, store, remote)

	// A fresh engine (new process) has no parked conflicts, but detection
	// rediscovers them from the store and the server.
	conflicts, err := engine.DetectConflicts(ctx, "ws")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "n1", conflicts[0].Local.ID)

	// And resolution works directly off the detected state.
	require.NoError(t, engine.ResolveConflict(ctx, "ws", "n1", KeepRemote))

	e, err := store.GetEntity(ctx, "acct", "ws", "n1")
	require.NoError(t, err)
	assert.Equal(t, []byte("remote body"), e.Content)
}

// --- Status ---

func TestEngine_GetStatus(t *testing.T) {
	remote := newFakeRemote()
	engine, store := newTestEngine(t, remote, PolicyPrompt)
	ctx := context.Background()

	require.NoError(t, store.UpsertEntity(ctx, testNote("n1", 1, 0, true)))

	st, err := engine.GetStatus(ctx, "ws")
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, st.Status)
	assert.Equal(t, 1, st.PendingCount)
	assert.Equal(t, int64(0), st.LastSyncAt)

	_, err = engine.SyncNow(ctx, "ws")
	require.NoError(t, err)

	st, err = engine.GetStatus(ctx, "ws")
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, st.Status)
	assert.Equal(t, 0, st.PendingCount)
	assert.NotZero(t, st.LastSyncAt)
	assert.Empty(t, st.LastError)
}

func TestEngine_GetStatusReportsConflictsAndErrors(t *testing.T) {
	remote := newFakeRemote()
	engine, store := newTestEngine(t, remote, PolicyPrompt)
	ctx := context.Background()

	seedDivergence(t, store, remote)

	_, err := engine.SyncNow(ctx, "ws")
	require.NoError(t, err)

	st, err := engine.GetStatus(ctx, "ws")
	require.NoError(t, err)
	assert.Equal(t, StatusConflict, st.Status)
	assert.Equal(t, 1, st.ConflictCount)
}

func TestEngine_HistoryAccumulatesAcrossCycles(t *testing.T) {
	remote := newFakeRemote()
	engine, store := newTestEngine(t, remote, PolicyPrompt)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := engine.SyncNow(ctx, "ws")
		require.NoError(t, err)
	}

	history, err := store.ListHistory(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestEngine_ContextCancellationStopsPushBatch(t *testing.T) {
	remote := newFakeRemote()
	engine, store := newTestEngine(t, remote, PolicyPrompt)

	require.NoError(t, store.UpsertEntity(context.Background(), testNote("n1", 1, 0, true)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := engine.SyncNow(ctx, "ws")
	require.NoError(t, err)

	assert.Equal(t, StatusError, res.Status)
	assert.Error(t, res.Err)

	// Finalization still ran: the canceled cycle left a history entry.
	history, hErr := store.ListHistory(context.Background(), 10)
	require.NoError(t, hErr)
	assert.Len(t, history, 1)
}

func TestEngine_PolicyStrategyMapping(t *testing.T) {
	s, ok := PolicyKeepBoth.Strategy()
	assert.True(t, ok)
	assert.Equal(t, KeepBoth, s)

	_, ok = PolicyPrompt.Strategy()
	assert.False(t, ok)

	var unknownPolicy ConflictPolicy = "weird"
	_, ok = unknownPolicy.Strategy()
	assert.False(t, ok)
}
