package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/quillnotes/quillsync/internal/api"
)

// ErrSyncInProgress is returned to background triggers when a cycle is
// already running for the same workspace. Manual triggers coalesce instead.
var ErrSyncInProgress = errors.New("sync: cycle already in progress")

// ErrUnknownConflict is returned by ResolveConflict for an entity that has
// no pending conflict.
var ErrUnknownConflict = errors.New("sync: no pending conflict for entity")

// maxPushRejections bounds how many times a single entity's push may be
// rejected as stale within one cycle before it is reported as an error.
// One rejection is normal (newly-discovered divergence); two means the
// server is advancing faster than we can resolve.
const maxPushRejections = 2

// ConflictPolicy selects what happens when a cycle detects diverged
// entities and no explicit strategy was supplied.
type ConflictPolicy string

// Conflict policies. PolicyPrompt pauses the cycle and surfaces conflicts;
// the others resolve automatically with the corresponding strategy.
const (
	PolicyPrompt     ConflictPolicy = "prompt"
	PolicyKeepBoth   ConflictPolicy = "keep-both"
	PolicyKeepLocal  ConflictPolicy = "keep-local"
	PolicyKeepRemote ConflictPolicy = "keep-remote"
)

// Strategy returns the resolution strategy for an auto-resolving policy,
// or ok=false for PolicyPrompt.
func (p ConflictPolicy) Strategy() (Strategy, bool) {
	switch p {
	case PolicyKeepBoth:
		return KeepBoth, true
	case PolicyKeepLocal:
		return KeepLocal, true
	case PolicyKeepRemote:
		return KeepRemote, true
	default:
		return "", false
	}
}

// EngineConfig holds the dependencies for NewEngine. Store and remote are
// explicit, injected collaborators - the engine holds no ambient state.
type EngineConfig struct {
	Store     Store
	Remote    RemoteClient
	AccountID string
	Policy    ConflictPolicy
	Logger    *slog.Logger
}

// Engine drives sync cycles for one account. It enforces at most one
// in-flight cycle per workspace, tracks unresolved conflicts between
// cycles, and records every cycle in the history log.
type Engine struct {
	store     Store
	remote    RemoteClient
	accountID string
	policy    ConflictPolicy
	logger    *slog.Logger

	// group coalesces concurrent manual triggers for the same workspace
	// into one underlying cycle.
	group singleflight.Group

	mu       stdsync.Mutex
	inflight map[string]bool                 // workspace -> cycle running
	pending  map[string]map[string]*Conflict // workspace -> entity id -> conflict
	lastErr  map[string]string               // workspace -> last cycle error
}

// NewEngine creates an Engine. The store and remote client are owned by the
// caller; the engine does not close them.
func NewEngine(cfg *EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	policy := cfg.Policy
	if policy == "" {
		policy = PolicyPrompt
	}

	return &Engine{
		store:     cfg.Store,
		remote:    cfg.Remote,
		accountID: cfg.AccountID,
		policy:    policy,
		logger:    logger,
		inflight:  make(map[string]bool),
		pending:   make(map[string]map[string]*Conflict),
		lastErr:   make(map[string]string),
	}
}

// SyncNow runs a full sync cycle for the workspace. Concurrent manual calls
// for the same workspace coalesce: they all receive the outcome of the one
// cycle that actually runs.
func (e *Engine) SyncNow(ctx context.Context, workspaceID string) (*SyncResult, error) {
	v, err, _ := e.group.Do(workspaceID, func() (any, error) {
		return e.guardedCycle(ctx, workspaceID, SyncTypeFull)
	})
	if err != nil {
		return nil, err
	}

	return v.(*SyncResult), nil
}

// SyncBackground runs a full cycle for a background trigger (timer, change
// feed). Unlike manual triggers it does not coalesce: if a cycle is already
// running it returns ErrSyncInProgress and the caller moves on.
func (e *Engine) SyncBackground(ctx context.Context, workspaceID string) (*SyncResult, error) {
	if e.isInflight(workspaceID) {
		return nil, ErrSyncInProgress
	}

	v, err, _ := e.group.Do(workspaceID, func() (any, error) {
		return e.guardedCycle(ctx, workspaceID, SyncTypeFull)
	})
	if err != nil {
		return nil, err
	}

	return v.(*SyncResult), nil
}

// guardedCycle marks the workspace in flight, runs the cycle, and releases
// the mark. Runs inside the singleflight group, so at most one instance per
// workspace executes at a time.
func (e *Engine) guardedCycle(ctx context.Context, workspaceID string, syncType SyncType) (*SyncResult, error) {
	e.setInflight(workspaceID, true)
	defer e.setInflight(workspaceID, false)

	res := e.runCycle(ctx, workspaceID, syncType)

	e.recordOutcome(workspaceID, res)

	return res, nil
}

func (e *Engine) isInflight(workspaceID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.inflight[workspaceID]
}

func (e *Engine) setInflight(workspaceID string, v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.inflight[workspaceID] = v
}

// recordOutcome stores the last error string for the status surface.
func (e *Engine) recordOutcome(workspaceID string, res *SyncResult) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if res.Err != nil {
		e.lastErr[workspaceID] = res.Err.Error()
	} else {
		e.lastErr[workspaceID] = ""
	}
}

// cycleState accumulates the partitioned work of one cycle between phases.
type cycleState struct {
	workspaceID string
	start       time.Time
	res         *SyncResult

	toPull    []*Entity // remote entities to apply locally
	toPush    []*Entity // local entities to push, in deterministic order
	conflicts []*Conflict

	serverRevision int64
	cursorOK       bool // cursor may advance: pull fully applied, no pending conflicts
}

// runCycle executes one full sync cycle:
//
//	Pulling     - incremental fetch from the server
//	Reconciling - classify every remote change and dirty local entity
//	Conflicted  - pause if diverged entities remain and policy is prompt
//	Pushing     - apply pulls, push local changes entity by entity
//	Finalizing  - cursor, tombstone purge, history entry
//
// The cycle is not atomic end to end: each entity write is its own
// transaction, and completed writes survive a mid-cycle failure. That makes
// an interrupted cycle safely resumable by the next one.
func (e *Engine) runCycle(ctx context.Context, workspaceID string, syncType SyncType) *SyncResult {
	cs := &cycleState{
		workspaceID: workspaceID,
		start:       time.Now(),
		res:         &SyncResult{Status: StatusSyncing, SyncType: syncType},
	}

	e.logger.Info("sync cycle starting",
		slog.String("workspace", workspaceID),
		slog.String("type", string(syncType)),
	)

	if e.pull(ctx, cs) && e.reconcile(ctx, cs) {
		if e.surfaceOrResolveConflicts(cs) {
			e.applyPulls(ctx, cs)
			e.push(ctx, cs)
		}
	}

	e.finalize(ctx, cs)

	e.logger.Info("sync cycle complete",
		slog.String("workspace", workspaceID),
		slog.String("status", string(cs.res.Status)),
		slog.Int("pushed", cs.res.Pushed),
		slog.Int("pulled", cs.res.Pulled),
		slog.Int("conflicts", cs.res.Conflicts),
		slog.Duration("duration", cs.res.Duration),
	)

	return cs.res
}

// pull fetches the server's changes since the last agreed cursor. A network
// failure here aborts the cycle before any local state is touched.
func (e *Engine) pull(ctx context.Context, cs *cycleState) bool {
	cursor, err := e.store.GetCursor(ctx, e.accountID, cs.workspaceID)
	if err != nil {
		cs.res.Err = err
		cs.res.Status = StatusError

		return false
	}

	changes, err := e.remote.FetchChangedSince(ctx, cs.workspaceID, cursor)
	if err != nil {
		cs.res.Err = fmt.Errorf("sync: pulling changes: %w", err)
		cs.res.Status = StatusError

		return false
	}

	cs.serverRevision = changes.ServerRevision
	cs.cursorOK = true

	// Pre-compute the classification inputs: remote changes stay as wire
	// entities until reconcile scopes them.
	cs.toPull = make([]*Entity, 0, len(changes.Entities))
	for i := range changes.Entities {
		cs.toPull = append(cs.toPull, entityFromWire(e.accountID, cs.workspaceID, &changes.Entities[i]))
	}

	return true
}

// reconcile classifies every fetched remote entity against its local copy
// and every remaining dirty local entity against an unchanged remote,
// partitioning the work into pulls, pushes, and conflicts.
func (e *Engine) reconcile(ctx context.Context, cs *cycleState) bool {
	dirty, err := ComputeDirtySet(ctx, e.store, e.accountID, cs.workspaceID)
	if err != nil {
		cs.res.Err = err
		cs.res.Status = StatusError

		return false
	}

	remoteChanged := cs.toPull
	cs.toPull = nil

	handled := make(map[string]bool, len(remoteChanged))

	for _, remote := range remoteChanged {
		handled[remote.ID] = true

		local, getErr := e.store.GetEntity(ctx, e.accountID, cs.workspaceID, remote.ID)
		if getErr != nil {
			cs.res.Err = getErr
			cs.res.Status = StatusError

			return false
		}

		if local == nil {
			// New from the server. A tombstone for an entity we never had
			// is a no-op.
			if !remote.IsDeleted {
				cs.toPull = append(cs.toPull, remote)
			}

			continue
		}

		switch rel := Classify(local, remote); rel {
		case RelationInSync:
			// Both sides agree; make sure the bookkeeping does too.
			if local.IsDirty || local.LastSyncedRevision != local.Revision {
				cs.toPush = append(cs.toPush, local)
			}
		case RelationRemoteAhead:
			cs.toPull = append(cs.toPull, remote)
		case RelationDiverged:
			cs.conflicts = append(cs.conflicts, &Conflict{Local: local, Remote: remote})
		case RelationLocalAhead, RelationLocalOnly, RelationAbsent:
			cs.toPush = append(cs.toPush, local)
		default:
			e.logger.Warn("unexpected relation during reconcile",
				slog.String("id", local.ID),
				slog.String("relation", rel.String()),
			)
		}
	}

	// Dirty entities the server did not report as changed: the remote side
	// is still at the last agreement, so these are safe pushes.
	for _, local := range dirty.All() {
		if !handled[local.ID] {
			cs.toPush = append(cs.toPush, local)
		}
	}

	e.logger.Debug("reconcile complete",
		slog.String("workspace", cs.workspaceID),
		slog.Int("to_pull", len(cs.toPull)),
		slog.Int("to_push", len(cs.toPush)),
		slog.Int("conflicts", len(cs.conflicts)),
	)

	return true
}

// surfaceOrResolveConflicts handles the Conflicted sub-state. Under the
// prompt policy the cycle pauses: conflicts are parked for ResolveConflict,
// nothing is pulled or pushed, and the cursor stays put so the diverged
// remote copies are re-fetched by the next cycle. Auto-resolving policies
// convert each conflict into writes and pushes and let the cycle continue.
func (e *Engine) surfaceOrResolveConflicts(cs *cycleState) bool {
	if len(cs.conflicts) == 0 {
		return true
	}

	strategy, auto := e.policy.Strategy()
	if !auto {
		e.parkConflicts(cs.workspaceID, cs.conflicts)

		cs.res.Conflicts = len(cs.conflicts)
		cs.res.Status = StatusConflict
		cs.res.ConflictIDs = conflictIDs(cs.conflicts)
		cs.cursorOK = false

		e.logger.Info("cycle paused on unresolved conflicts",
			slog.String("workspace", cs.workspaceID),
			slog.Int("conflicts", len(cs.conflicts)),
		)

		return false
	}

	for _, c := range cs.conflicts {
		resolution, err := Resolve(c, strategy)
		if err != nil {
			// Unresolvable under the configured strategy - park it.
			e.parkConflicts(cs.workspaceID, []*Conflict{c})
			continue
		}

		cs.res.Conflicts++
		cs.toPush = append(cs.toPush, resolution.Pushes...)

		// Resolution writes are applied alongside pulls.
		cs.toPull = append(cs.toPull, resolution.Writes...)
	}

	cs.conflicts = nil

	return true
}

// parkConflicts records conflicts for later ResolveConflict calls.
func (e *Engine) parkConflicts(workspaceID string, conflicts []*Conflict) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m := e.pending[workspaceID]
	if m == nil {
		m = make(map[string]*Conflict)
		e.pending[workspaceID] = m
	}

	for _, c := range conflicts {
		m[c.Local.ID] = c
	}
}

func conflictIDs(conflicts []*Conflict) []string {
	ids := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		ids = append(ids, c.Local.ID)
	}

	return ids
}

// applyPulls writes remote-ahead entities (and auto-resolution writes) to
// the store, one atomic transaction each. A storage failure stops the pull
// application and pins the cursor, but already-applied writes remain.
func (e *Engine) applyPulls(ctx context.Context, cs *cycleState) {
	for _, entity := range cs.toPull {
		if ctx.Err() != nil {
			e.noteCancellation(cs, ctx.Err())
			return
		}

		write := entity
		if !write.IsDirty && write.LastSyncedRevision != write.Revision {
			write = pulledEntity(entity)
		}

		if err := e.store.UpsertEntity(ctx, write); err != nil {
			cs.res.Err = firstErr(cs.res.Err, err)
			cs.res.Status = StatusError
			cs.cursorOK = false

			e.logger.Error("pull write failed",
				slog.String("id", write.ID),
				slog.String("error", err.Error()),
			)

			return
		}

		cs.res.Pulled++
	}
}

// push uploads local changes one entity at a time in the change tracker's
// deterministic order. Per-entity failures are accumulated without aborting
// the batch; an auth failure is terminal for the cycle. A stale-push
// rejection from the server is a newly-discovered divergence and is fed
// back through the conflict machinery.
func (e *Engine) push(ctx context.Context, cs *cycleState) {
	rejections := make(map[string]int)

	for i := 0; i < len(cs.toPush); i++ {
		local := cs.toPush[i]

		if ctx.Err() != nil {
			e.noteCancellation(cs, ctx.Err())
			return
		}

		outcome, err := e.remote.PushEntity(ctx, cs.workspaceID, wireFromEntity(local))
		if err != nil {
			if errors.Is(err, api.ErrUnauthorized) {
				// Credential dead beyond refresh - abort the rest of the batch.
				cs.res.Err = firstErr(cs.res.Err, err)
				cs.res.Status = StatusError

				return
			}

			// Validation or transient failure for this entity only: it
			// stays dirty and is retried by a later cycle.
			cs.res.EntityErrors = append(cs.res.EntityErrors, EntityError{EntityID: local.ID, Err: err})
			cs.res.Err = firstErr(cs.res.Err, fmt.Errorf("sync: pushing %s: %w", local.ID, err))

			e.logger.Warn("entity push failed, continuing batch",
				slog.String("id", local.ID),
				slog.String("error", err.Error()),
			)

			continue
		}

		if outcome.Rejected {
			e.handleRejectedPush(ctx, cs, local, outcome.ServerEntity, rejections)
			continue
		}

		if err := e.store.MarkSynced(ctx, e.accountID, cs.workspaceID, local.ID, outcome.AcceptedRevision); err != nil {
			cs.res.Err = firstErr(cs.res.Err, err)
			cs.res.Status = StatusError

			return
		}

		cs.res.Pushed++
	}
}

// handleRejectedPush feeds a server-side staleness rejection back into
// conflict detection. Under an auto policy the conflict is resolved in
// place and the resulting pushes are appended to the current batch.
func (e *Engine) handleRejectedPush(ctx context.Context, cs *cycleState, local *Entity, server *api.Entity, rejections map[string]int) {
	rejections[local.ID]++

	remote := entityFromWire(e.accountID, cs.workspaceID, server)
	conflict := &Conflict{Local: local, Remote: remote}

	e.logger.Info("push rejected as stale, reclassifying as conflict",
		slog.String("id", local.ID),
		slog.Int64("server_revision", remote.Revision),
	)

	strategy, auto := e.policy.Strategy()
	if !auto || rejections[local.ID] >= maxPushRejections {
		e.parkConflicts(cs.workspaceID, []*Conflict{conflict})

		cs.res.Conflicts++
		cs.res.ConflictIDs = append(cs.res.ConflictIDs, local.ID)
		cs.cursorOK = false

		return
	}

	resolution, err := Resolve(conflict, strategy)
	if err != nil {
		cs.res.EntityErrors = append(cs.res.EntityErrors, EntityError{EntityID: local.ID, Err: err})
		return
	}

	cs.res.Conflicts++

	// Apply the resolution writes immediately, then retry the pushes as
	// part of this batch.
	for _, w := range resolution.Writes {
		if upErr := e.store.UpsertEntity(ctx, w); upErr != nil {
			cs.res.Err = firstErr(cs.res.Err, upErr)
			cs.res.Status = StatusError

			return
		}
	}

	cs.toPush = append(cs.toPush, resolution.Pushes...)
}

// noteCancellation records a user-triggered cancellation. Already-committed
// writes are not rolled back; the cycle finalizes with partial counts.
func (e *Engine) noteCancellation(cs *cycleState, err error) {
	cs.res.Err = firstErr(cs.res.Err, err)
	cs.res.Status = StatusError
	cs.cursorOK = false

	e.logger.Info("sync cycle canceled",
		slog.String("workspace", cs.workspaceID),
		slog.Int("pushed", cs.res.Pushed),
		slog.Int("pulled", cs.res.Pulled),
	)
}

// finalize advances the cursor when safe, purges acknowledged tombstones,
// stamps the last-sync time, and appends the history entry. A history write
// failure is logged and swallowed - it must never turn a successful sync
// into a failed one.
func (e *Engine) finalize(ctx context.Context, cs *cycleState) {
	// Finalization must proceed even when the cycle was canceled, so it
	// uses a fresh context for its local writes.
	fctx := context.WithoutCancel(ctx)

	if cs.cursorOK && cs.serverRevision > 0 {
		if err := e.store.SaveCursor(fctx, e.accountID, cs.workspaceID, cs.serverRevision); err != nil {
			e.logger.Error("failed to save cursor", slog.String("error", err.Error()))
			cs.res.Err = firstErr(cs.res.Err, err)
		}
	}

	if _, err := e.store.PurgeSyncedTombstones(fctx, e.accountID, cs.workspaceID); err != nil {
		e.logger.Warn("tombstone purge failed", slog.String("error", err.Error()))
	}

	now := NowMilli()
	if err := e.store.SaveLastSyncAt(fctx, e.accountID, cs.workspaceID, now); err != nil {
		e.logger.Warn("failed to stamp last sync time", slog.String("error", err.Error()))
	}

	cs.res.Duration = time.Since(cs.start)
	settleStatus(cs.res)

	entry := &HistoryEntry{
		ID:            uuid.NewString(),
		SyncType:      cs.res.SyncType,
		PushedCount:   cs.res.Pushed,
		PulledCount:   cs.res.Pulled,
		ConflictCount: cs.res.Conflicts,
		DurationMs:    cs.res.Duration.Milliseconds(),
		CreatedAt:     now,
	}
	if cs.res.Err != nil {
		entry.Error = cs.res.Err.Error()
	}

	if err := e.store.AppendHistory(fctx, entry); err != nil {
		// Never propagated: logging failure must not fail the cycle.
		e.logger.Warn("failed to append history entry", slog.String("error", err.Error()))
	}
}

// SyncEntity synchronizes a single entity by id, bypassing the change feed:
// the server's copy is fetched directly and reconciled against the local
// one. A divergence is resolved automatically with keep-both, since a
// targeted sync is an explicit user action that must not stall on a prompt.
// The workspace cursor is never advanced.
func (e *Engine) SyncEntity(ctx context.Context, workspaceID, entityID string) (*SyncResult, error) {
	v, err, _ := e.group.Do(workspaceID, func() (any, error) {
		e.setInflight(workspaceID, true)
		defer e.setInflight(workspaceID, false)

		res := e.runEntityCycle(ctx, workspaceID, entityID)

		e.recordOutcome(workspaceID, res)

		return res, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*SyncResult), nil
}

func (e *Engine) runEntityCycle(ctx context.Context, workspaceID, entityID string) *SyncResult {
	cs := &cycleState{
		workspaceID: workspaceID,
		start:       time.Now(),
		res:         &SyncResult{Status: StatusSyncing, SyncType: SyncTypeFull},
	}

	e.logger.Info("entity sync starting",
		slog.String("workspace", workspaceID),
		slog.String("id", entityID),
	)

	if e.planEntitySync(ctx, cs, entityID) {
		e.applyPulls(ctx, cs)
		e.push(ctx, cs)
	}

	e.finalizeEntity(ctx, cs)

	return cs.res
}

// planEntitySync classifies one entity against the server's current copy
// and fills the cycle state with the resulting pull/push work.
func (e *Engine) planEntitySync(ctx context.Context, cs *cycleState, entityID string) bool {
	local, err := e.store.GetEntity(ctx, e.accountID, cs.workspaceID, entityID)
	if err != nil {
		cs.res.Err = err
		cs.res.Status = StatusError

		return false
	}

	wire, err := e.remote.FetchEntity(ctx, cs.workspaceID, entityID)
	if err != nil {
		cs.res.Err = fmt.Errorf("sync: fetching entity %s: %w", entityID, err)
		cs.res.Status = StatusError

		return false
	}

	var remote *Entity
	if wire != nil {
		remote = entityFromWire(e.accountID, cs.workspaceID, wire)
	}

	if local == nil {
		if remote == nil {
			cs.res.Err = fmt.Errorf("sync: entity %s not found locally or remotely", entityID)
			cs.res.Status = StatusError

			return false
		}

		if !remote.IsDeleted {
			cs.toPull = append(cs.toPull, remote)
		}

		return true
	}

	switch Classify(local, remote) {
	case RelationInSync:
		if local.IsDirty || local.LastSyncedRevision != local.Revision {
			cs.toPush = append(cs.toPush, local)
		}
	case RelationRemoteAhead:
		cs.toPull = append(cs.toPull, remote)
	case RelationDiverged:
		resolution, resErr := Resolve(&Conflict{Local: local, Remote: remote}, KeepBoth)
		if resErr != nil {
			cs.res.Err = resErr
			cs.res.Status = StatusError

			return false
		}

		cs.res.Conflicts = 1
		cs.toPull = append(cs.toPull, resolution.Writes...)
		cs.toPush = append(cs.toPush, resolution.Pushes...)
	default:
		cs.toPush = append(cs.toPush, local)
	}

	return true
}

// finalizeEntity closes out a targeted sync: no cursor movement, no
// last-sync stamp, but still a history record. The recorded type reflects
// what actually moved.
func (e *Engine) finalizeEntity(ctx context.Context, cs *cycleState) {
	cs.res.Duration = time.Since(cs.start)
	settleStatus(cs.res)

	switch {
	case cs.res.Pushed > 0 && cs.res.Pulled == 0:
		cs.res.SyncType = SyncTypePush
	case cs.res.Pulled > 0 && cs.res.Pushed == 0:
		cs.res.SyncType = SyncTypePull
	}

	entry := &HistoryEntry{
		ID:            uuid.NewString(),
		SyncType:      cs.res.SyncType,
		PushedCount:   cs.res.Pushed,
		PulledCount:   cs.res.Pulled,
		ConflictCount: cs.res.Conflicts,
		DurationMs:    cs.res.Duration.Milliseconds(),
		CreatedAt:     NowMilli(),
	}
	if cs.res.Err != nil {
		entry.Error = cs.res.Err.Error()
	}

	if err := e.store.AppendHistory(context.WithoutCancel(ctx), entry); err != nil {
		e.logger.Warn("failed to append history entry", slog.String("error", err.Error()))
	}
}

// GetStatus returns a snapshot of the engine's state for one workspace.
// Display precedence: a running cycle beats everything, then unresolved
// conflicts, then the last cycle's error.
func (e *Engine) GetStatus(ctx context.Context, workspaceID string) (*Status, error) {
	pending, err := e.store.PendingCount(ctx, e.accountID, workspaceID)
	if err != nil {
		return nil, err
	}

	lastSyncAt, err := e.store.GetLastSyncAt(ctx, e.accountID, workspaceID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	inflight := e.inflight[workspaceID]
	conflicts := len(e.pending[workspaceID])
	lastErr := e.lastErr[workspaceID]
	e.mu.Unlock()

	status := StatusIdle

	switch {
	case inflight:
		status = StatusSyncing
	case conflicts > 0:
		status = StatusConflict
	case lastErr != "":
		status = StatusError
	}

	return &Status{
		Status:        status,
		LastSyncAt:    lastSyncAt,
		PendingCount:  pending,
		ConflictCount: conflicts,
		LastError:     lastErr,
	}, nil
}

// settleStatus resolves the cycle's final status with display precedence
// conflict > error > idle. Phases that already settled the status (a prompt
// pause, an aborting failure) are left alone.
func settleStatus(res *SyncResult) {
	if res.Status != StatusSyncing {
		if res.Status == StatusError && len(res.ConflictIDs) > 0 {
			res.Status = StatusConflict
		}

		return
	}

	switch {
	case len(res.ConflictIDs) > 0:
		res.Status = StatusConflict
	case res.Err != nil || len(res.EntityErrors) > 0:
		res.Status = StatusError
	default:
		res.Status = StatusIdle
	}
}

// firstErr keeps the first error encountered in a cycle - history entries
// record the first error even when later entities succeed.
func firstErr(current, candidate error) error {
	if current != nil {
		return current
	}

	return candidate
}
