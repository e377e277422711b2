package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// PendingConflicts returns the unresolved conflicts for a workspace, sorted
// by entity id for stable display. The returned conflicts are snapshots;
// resolving one goes through ResolveConflict.
func (e *Engine) PendingConflicts(workspaceID string) []*Conflict {
	e.mu.Lock()
	defer e.mu.Unlock()

	m := e.pending[workspaceID]
	if len(m) == 0 {
		return nil
	}

	out := make([]*Conflict, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Local.ID < out[j].Local.ID
	})

	return out
}

// DetectConflicts runs the pull and reconcile phases without applying any
// changes, parks every diverged entity it finds, and returns the full set
// of unresolved conflicts for the workspace. This is how a fresh process
// rediscovers conflicts a previous run left behind: divergence is derived
// from the store and the server, never persisted on its own.
func (e *Engine) DetectConflicts(ctx context.Context, workspaceID string) ([]*Conflict, error) {
	cs := &cycleState{
		workspaceID: workspaceID,
		res:         &SyncResult{Status: StatusSyncing, SyncType: SyncTypePull},
	}

	if !e.pull(ctx, cs) || !e.reconcile(ctx, cs) {
		return nil, cs.res.Err
	}

	e.parkConflicts(workspaceID, cs.conflicts)

	return e.PendingConflicts(workspaceID), nil
}

// ResolveConflict resolves one conflict with the given strategy, applies
// the resulting writes to the store, and pushes what the strategy requires.
// If the conflict is not parked in memory (a fresh process), both sides are
// fetched and the divergence re-verified before resolving. The conflict is
// cleared as soon as its writes land: the local divergence is settled even
// if the push fails, and any still-dirty result is retried by the next
// cycle (which also records the history entry).
func (e *Engine) ResolveConflict(ctx context.Context, workspaceID, entityID string, strategy Strategy) error {
	e.mu.Lock()
	conflict := e.pending[workspaceID][entityID]
	e.mu.Unlock()

	if conflict == nil {
		loaded, err := e.loadConflict(ctx, workspaceID, entityID)
		if err != nil {
			return err
		}

		conflict = loaded
	}

	resolution, err := Resolve(conflict, strategy)
	if err != nil {
		return err
	}

	for _, w := range resolution.Writes {
		if upErr := e.store.UpsertEntity(ctx, w); upErr != nil {
			return fmt.Errorf("sync: applying resolution for %s: %w", entityID, upErr)
		}
	}

	e.clearConflict(workspaceID, entityID)

	e.logger.Info("conflict resolved",
		slog.String("workspace", workspaceID),
		slog.String("id", entityID),
		slog.String("strategy", string(strategy)),
	)

	for _, p := range resolution.Pushes {
		outcome, pushErr := e.remote.PushEntity(ctx, workspaceID, wireFromEntity(p))
		if pushErr != nil {
			// The resolution is already durable locally; the entity stays
			// dirty and the next cycle retries the upload.
			return fmt.Errorf("sync: pushing resolved entity %s: %w", p.ID, pushErr)
		}

		if outcome.Rejected {
			// The server moved again while the conflict sat unresolved.
			// Park the fresh divergence instead of looping here.
			remote := entityFromWire(e.accountID, workspaceID, outcome.ServerEntity)
			e.parkConflicts(workspaceID, []*Conflict{{Local: p, Remote: remote}})

			return fmt.Errorf("sync: entity %s diverged again during resolution", p.ID)
		}

		if msErr := e.store.MarkSynced(ctx, e.accountID, workspaceID, p.ID, outcome.AcceptedRevision); msErr != nil {
			return fmt.Errorf("sync: acknowledging resolved entity %s: %w", p.ID, msErr)
		}
	}

	return nil
}

// loadConflict fetches both sides of an entity and verifies they have
// actually diverged.
func (e *Engine) loadConflict(ctx context.Context, workspaceID, entityID string) (*Conflict, error) {
	local, err := e.store.GetEntity(ctx, e.accountID, workspaceID, entityID)
	if err != nil {
		return nil, err
	}

	if local == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConflict, entityID)
	}

	wire, err := e.remote.FetchEntity(ctx, workspaceID, entityID)
	if err != nil {
		return nil, fmt.Errorf("sync: fetching entity %s: %w", entityID, err)
	}

	if wire == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConflict, entityID)
	}

	remote := entityFromWire(e.accountID, workspaceID, wire)

	if rel := Classify(local, remote); rel != RelationDiverged {
		return nil, fmt.Errorf("%w: %s is %s, not diverged", ErrUnknownConflict, entityID, rel)
	}

	return &Conflict{Local: local, Remote: remote}, nil
}

func (e *Engine) clearConflict(workspaceID, entityID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if m := e.pending[workspaceID]; m != nil {
		delete(m, entityID)

		if len(m) == 0 {
			delete(e.pending, workspaceID)
		}
	}
}
