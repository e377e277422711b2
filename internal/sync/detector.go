package sync

// Classify determines the relationship between a local entity and the
// server's copy of the same entity (nil when the server has no record).
//
// Classification never compares content: each side's revision is compared
// against the last mutually agreed revision. This needs no clock
// synchronization and produces no false conflicts when only one side
// changed.
func Classify(local, remote *Entity) Relation {
	if remote == nil {
		if local.LastSyncedRevision == 0 {
			return RelationLocalOnly
		}

		// Previously synced, but the server no longer has a record.
		// Treated as a pure push so the entity is restored remotely.
		return RelationAbsent
	}

	// First sync after a reinstall: no local record of the last agreement.
	// The remote copy is authoritative - unless there are unsynced local
	// edits, in which case we surface a conflict rather than silently
	// discarding data.
	if local.LastSyncedRevision == 0 {
		if local.IsDirty {
			return RelationDiverged
		}

		return RelationRemoteAhead
	}

	if local.Revision == remote.Revision {
		return RelationInSync
	}

	localAdvanced := local.Revision > local.LastSyncedRevision
	remoteAdvanced := remote.Revision > local.LastSyncedRevision

	switch {
	case localAdvanced && remoteAdvanced:
		return RelationDiverged
	case localAdvanced:
		return RelationLocalAhead
	case remoteAdvanced:
		return RelationRemoteAhead
	default:
		// Neither side moved past the agreement but revisions differ -
		// the remote regressed (restored backup, server rollback). Treat
		// the remote as authoritative.
		return RelationRemoteAhead
	}
}
