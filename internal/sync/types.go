// Package sync implements the offline-first synchronization engine for
// quillsync. It provides the entity store, dirty-change tracking, conflict
// detection and resolution, the sync cycle state machine, and the
// append-only sync history log.
package sync

import (
	"context"
	"time"

	"github.com/quillnotes/quillsync/internal/api"
)

// Kind represents the type of synced entity.
type Kind string

// Entity kinds as stored in the database kind column.
const (
	KindNote   Kind = "note"
	KindFolder Kind = "folder"
	KindTag    Kind = "tag"
)

// Entity is the unit of sync: a note, folder, or tag with its revision
// bookkeeping. Content is an opaque serialized blob - the sync engine never
// inspects its internal structure, which keeps the conflict unit at
// whole-entity granularity.
type Entity struct {
	// Identity and scoping. Every entity belongs to exactly one
	// (account, workspace) pair; sync never crosses workspace boundaries.
	AccountID   string
	WorkspaceID string
	ID          string
	Kind        Kind

	// Payload. Title is display metadata; Content is opaque to the engine.
	Title    string
	ParentID string // containing folder for notes/folders, empty for tags
	Content  []byte

	// Revision bookkeeping. Revision is the sole ordering signal for
	// conflict detection; UpdatedAt is display-only (device clocks are
	// not trusted to be synchronized).
	Revision           int64
	LastSyncedRevision int64
	IsDirty            bool
	IsDeleted          bool // tombstone, retained until the server acknowledges

	UpdatedAt int64 // epoch milliseconds of last mutation
	CreatedAt int64 // epoch milliseconds of creation
}

// Clone returns a deep copy of the entity. Content is copied so callers can
// mutate the clone without aliasing the original blob.
func (e *Entity) Clone() *Entity {
	c := *e
	if e.Content != nil {
		c.Content = make([]byte, len(e.Content))
		copy(c.Content, e.Content)
	}

	return &c
}

// Relation classifies a (local, remote) pair of revisions of the same entity
// relative to their last mutually agreed revision.
type Relation int

// Relations produced by Classify.
const (
	// RelationLocalOnly: created locally, never synced - pure push.
	RelationLocalOnly Relation = iota
	// RelationAbsent: previously synced but the remote has no record - push.
	RelationAbsent
	// RelationInSync: both sides at the same revision, nothing to do.
	RelationInSync
	// RelationLocalAhead: only the local side changed since last agreement.
	RelationLocalAhead
	// RelationRemoteAhead: only the remote side changed since last agreement.
	RelationRemoteAhead
	// RelationDiverged: both sides changed since last agreement - true conflict.
	RelationDiverged
)

// String returns the relation name for logging.
func (r Relation) String() string {
	switch r {
	case RelationLocalOnly:
		return "local-only"
	case RelationAbsent:
		return "absent"
	case RelationInSync:
		return "in-sync"
	case RelationLocalAhead:
		return "local-ahead"
	case RelationRemoteAhead:
		return "remote-ahead"
	case RelationDiverged:
		return "diverged"
	default:
		return "unknown"
	}
}

// Strategy selects how a diverged conflict is resolved.
type Strategy string

// Resolution strategies.
const (
	KeepLocal  Strategy = "keep-local"
	KeepRemote Strategy = "keep-remote"
	KeepBoth   Strategy = "keep-both"
)

// Conflict is a transient pair of diverged copies of the same entity.
// It is never persisted; resolution consumes it and produces writes.
type Conflict struct {
	Local  *Entity
	Remote *Entity
}

// Resolution is the output of resolving a conflict: entities to write to the
// store and entities that must additionally be pushed to the server. The
// resolver never writes - the engine applies these inside its cycle so a
// crash mid-resolution cannot leave a half-applied conflict.
type Resolution struct {
	Writes []*Entity
	Pushes []*Entity
}

// SyncType identifies what kind of cycle a history entry records.
type SyncType string

// Cycle types as stored in the sync_history table.
const (
	SyncTypePush SyncType = "push"
	SyncTypePull SyncType = "pull"
	SyncTypeFull SyncType = "full"
)

// HistoryEntry is one immutable record of a sync cycle's outcome.
// Entries are append-only: never mutated after creation, only cleared in bulk.
type HistoryEntry struct {
	ID            string
	SyncType      SyncType
	PushedCount   int
	PulledCount   int
	ConflictCount int
	DurationMs    int64
	Error         string // empty when the cycle succeeded
	CreatedAt     int64  // epoch milliseconds
}

// CycleStatus is the user-facing status of the sync engine.
type CycleStatus string

// Engine statuses surfaced by GetStatus. Conflict takes display priority
// over error when both apply at cycle end.
const (
	StatusIdle     CycleStatus = "idle"
	StatusSyncing  CycleStatus = "syncing"
	StatusError    CycleStatus = "error"
	StatusConflict CycleStatus = "conflict"
)

// EntityError records a per-entity push failure that did not abort the cycle.
type EntityError struct {
	EntityID string
	Err      error
}

// SyncResult summarizes a completed (or paused) sync cycle.
type SyncResult struct {
	Status       CycleStatus
	SyncType     SyncType
	Pushed       int
	Pulled       int
	Conflicts    int
	Duration     time.Duration
	Err          error         // first cycle-level error, nil on success
	EntityErrors []EntityError // accumulated per-entity failures
	ConflictIDs  []string      // entity IDs awaiting resolution
}

// Status is the snapshot returned by Engine.GetStatus.
type Status struct {
	Status        CycleStatus
	LastSyncAt    int64 // epoch milliseconds, 0 if never synced
	PendingCount  int   // locally dirty entities
	ConflictCount int   // unresolved conflicts
	LastError     string
}

// Store is the interface for the local entity and history database. All sync
// components operate against this interface rather than the concrete SQLite
// implementation. Every write is a single-entity atomic transaction.
type Store interface {
	// Entities
	GetEntity(ctx context.Context, accountID, workspaceID, id string) (*Entity, error)
	UpsertEntity(ctx context.Context, e *Entity) error
	ListDirty(ctx context.Context, accountID, workspaceID string) ([]*Entity, error)
	MarkSynced(ctx context.Context, accountID, workspaceID, id string, revision int64) error
	DeleteEntity(ctx context.Context, accountID, workspaceID, id string) error
	PurgeSyncedTombstones(ctx context.Context, accountID, workspaceID string) (int64, error)
	PendingCount(ctx context.Context, accountID, workspaceID string) (int, error)

	// Sync cursor and bookkeeping, keyed by (account, workspace).
	GetCursor(ctx context.Context, accountID, workspaceID string) (int64, error)
	SaveCursor(ctx context.Context, accountID, workspaceID string, cursor int64) error
	GetLastSyncAt(ctx context.Context, accountID, workspaceID string) (int64, error)
	SaveLastSyncAt(ctx context.Context, accountID, workspaceID string, at int64) error

	// History
	AppendHistory(ctx context.Context, entry *HistoryEntry) error
	ListHistory(ctx context.Context, limit int) ([]*HistoryEntry, error)
	ClearHistory(ctx context.Context) error

	// Maintenance
	Checkpoint() error
	Close() error
}

// RemoteClient is the narrow interface to the note server, satisfied by
// *api.Client. Defined at the consumer per the "accept interfaces, return
// structs" convention.
type RemoteClient interface {
	// FetchChangedSince returns all entities changed after the given server
	// revision cursor, following pagination to completion.
	FetchChangedSince(ctx context.Context, workspaceID string, since int64) (*api.ChangeSet, error)

	// FetchEntity returns the server's current copy of one entity, or
	// (nil, nil) if the server has no record of it.
	FetchEntity(ctx context.Context, workspaceID, id string) (*api.Entity, error)

	// PushEntity uploads one entity. A stale push is reported via
	// PushOutcome.Rejected with the server's current copy, not an error.
	PushEntity(ctx context.Context, workspaceID string, e *api.Entity) (*api.PushOutcome, error)
}

// NowMilli returns the current time as epoch milliseconds. All persisted
// timestamps use millisecond precision; conversion to time.Time happens at
// display boundaries only.
func NowMilli() int64 {
	return time.Now().UnixMilli()
}
