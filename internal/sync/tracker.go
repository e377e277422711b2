package sync

import (
	"context"
	"fmt"
)

// DirtySet is the unit of work for a push: every locally-dirty entity in a
// workspace, partitioned by kind. Within each slice the store's ordering is
// preserved (oldest-dirty-first, id tiebreak).
type DirtySet struct {
	Notes   []*Entity
	Folders []*Entity
	Tags    []*Entity
}

// Total returns the number of dirty entities across all kinds.
func (d *DirtySet) Total() int {
	return len(d.Notes) + len(d.Folders) + len(d.Tags)
}

// All returns the dirty entities as one slice in push order: folders first
// (so parents exist before their children arrive server-side), then notes,
// then tags. Ordering within each kind is the store's deterministic order.
func (d *DirtySet) All() []*Entity {
	all := make([]*Entity, 0, d.Total())
	all = append(all, d.Folders...)
	all = append(all, d.Notes...)
	all = append(all, d.Tags...)

	return all
}

// ComputeDirtySet reads the store and returns all entities with unsynced
// local changes, scoped to the given account and workspace. Pure read: no
// side effects, consistent with a concurrently-running sync through the
// store's snapshot isolation.
func ComputeDirtySet(ctx context.Context, store Store, accountID, workspaceID string) (*DirtySet, error) {
	dirty, err := store.ListDirty(ctx, accountID, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("sync: computing dirty set: %w", err)
	}

	set := &DirtySet{}

	for _, e := range dirty {
		switch e.Kind {
		case KindNote:
			set.Notes = append(set.Notes, e)
		case KindFolder:
			set.Folders = append(set.Folders, e)
		case KindTag:
			set.Tags = append(set.Tags, e)
		default:
			return nil, fmt.Errorf("sync: dirty entity %s has unknown kind %q", e.ID, e.Kind)
		}
	}

	return set, nil
}
