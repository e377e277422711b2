package sync

import (
	"fmt"

	"github.com/google/uuid"
)

// copyTitleSuffix is appended to the duplicated entity's title under the
// keep-both strategy so the user can tell the copies apart.
const copyTitleSuffix = " (local copy)"

// Resolve applies a resolution strategy to a diverged conflict and returns
// the entities to persist and push. It is a pure function: no store writes,
// no network calls - the engine applies the result so a crash mid-resolution
// cannot leave a half-applied conflict.
//
//   - KeepLocal: the local content wins. Its revision is advanced past the
//     remote's so the server accepts it as newer on the next push.
//   - KeepRemote: the remote copy replaces the local entirely; local edits
//     are discarded.
//   - KeepBoth: the local edits are preserved as a new, independent entity
//     (fresh id, title suffixed), and the original id resolves as KeepRemote.
func Resolve(conflict *Conflict, strategy Strategy) (*Resolution, error) {
	if conflict.Local == nil || conflict.Remote == nil {
		return nil, fmt.Errorf("sync: resolve requires both sides of the conflict")
	}

	switch strategy {
	case KeepLocal:
		return resolveKeepLocal(conflict), nil
	case KeepRemote:
		return resolveKeepRemote(conflict), nil
	case KeepBoth:
		return resolveKeepBoth(conflict), nil
	default:
		return nil, fmt.Errorf("sync: unknown resolution strategy %q", strategy)
	}
}

func resolveKeepLocal(c *Conflict) *Resolution {
	winner := c.Local.Clone()

	// Advance past the remote revision so the server accepts the push as
	// newer. lastSyncedRevision stays put until the push is acknowledged.
	winner.Revision = max(c.Local.Revision, c.Remote.Revision) + 1
	winner.IsDirty = true
	winner.UpdatedAt = NowMilli()

	return &Resolution{
		Writes: []*Entity{winner},
		Pushes: []*Entity{winner},
	}
}

func resolveKeepRemote(c *Conflict) *Resolution {
	replacement := c.Remote.Clone()
	replacement.AccountID = c.Local.AccountID
	replacement.WorkspaceID = c.Local.WorkspaceID
	replacement.LastSyncedRevision = c.Remote.Revision
	replacement.IsDirty = false

	if replacement.CreatedAt == 0 {
		replacement.CreatedAt = c.Local.CreatedAt
	}

	return &Resolution{
		Writes: []*Entity{replacement},
	}
}

func resolveKeepBoth(c *Conflict) *Resolution {
	now := NowMilli()

	// The divergent local edits become a new, independent entity. It has
	// never been synced, so it starts its own revision history.
	duplicate := c.Local.Clone()
	duplicate.ID = uuid.NewString()
	duplicate.Title = c.Local.Title + copyTitleSuffix
	duplicate.Revision = 1
	duplicate.LastSyncedRevision = 0
	duplicate.IsDirty = true
	duplicate.UpdatedAt = now
	duplicate.CreatedAt = now

	// The original id resolves as keep-remote.
	remote := resolveKeepRemote(c)

	return &Resolution{
		Writes: append(remote.Writes, duplicate),
		Pushes: []*Entity{duplicate},
	}
}
