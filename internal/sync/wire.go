package sync

import "github.com/quillnotes/quillsync/internal/api"

// entityFromWire converts a server wire entity into the local model,
// attaching the account/workspace scope the wire format omits.
func entityFromWire(accountID, workspaceID string, w *api.Entity) *Entity {
	return &Entity{
		AccountID:   accountID,
		WorkspaceID: workspaceID,
		ID:          w.ID,
		Kind:        Kind(w.Kind),
		Title:       w.Title,
		ParentID:    w.ParentID,
		Content:     w.Content,
		Revision:    w.Revision,
		IsDeleted:   w.Deleted,
		UpdatedAt:   w.UpdatedAt,
		CreatedAt:   w.CreatedAt,
	}
}

// wireFromEntity converts a local entity into its wire representation.
// Sync bookkeeping (dirty flag, last synced revision) never crosses the
// wire - it is purely local state.
func wireFromEntity(e *Entity) *api.Entity {
	return &api.Entity{
		ID:        e.ID,
		Kind:      string(e.Kind),
		Title:     e.Title,
		ParentID:  e.ParentID,
		Content:   e.Content,
		Revision:  e.Revision,
		Deleted:   e.IsDeleted,
		UpdatedAt: e.UpdatedAt,
		CreatedAt: e.CreatedAt,
	}
}

// pulledEntity prepares a remote entity for an in-sync local write:
// both revision counters agree and the dirty flag is clear.
func pulledEntity(remote *Entity) *Entity {
	e := remote.Clone()
	e.LastSyncedRevision = remote.Revision
	e.IsDirty = false

	return e
}
