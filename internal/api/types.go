package api

// Entity is the wire representation of a synced note, folder, or tag.
// Content is an opaque serialized blob (base64 in JSON via []byte); the
// client never inspects its structure.
type Entity struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"` // note | folder | tag
	Title     string `json:"title"`
	ParentID  string `json:"parent_id,omitempty"`
	Content   []byte `json:"content,omitempty"`
	Revision  int64  `json:"revision"`
	Deleted   bool   `json:"deleted,omitempty"`
	UpdatedAt int64  `json:"updated_at"` // epoch milliseconds
	CreatedAt int64  `json:"created_at"` // epoch milliseconds
}

// ChangeSet is the result of an incremental pull: every entity changed after
// the requested cursor, plus the server revision watermark to resume from.
type ChangeSet struct {
	Entities       []Entity
	ServerRevision int64
}

// changesPage is one page of the changes endpoint response.
type changesPage struct {
	Entities       []Entity `json:"entities"`
	ServerRevision int64    `json:"server_revision"`
	NextCursor     int64    `json:"next_cursor,omitempty"`
	HasMore        bool     `json:"has_more,omitempty"`
}

// PushOutcome is the result of pushing one entity. A stale push is reported
// via Rejected with the server's current copy - the server performs its own
// staleness check as defense in depth beyond client-side conflict detection.
type PushOutcome struct {
	AcceptedRevision int64
	Rejected         bool
	ServerEntity     *Entity // populated when Rejected
}

// pushAccepted is the response body for an accepted push.
type pushAccepted struct {
	AcceptedRevision int64 `json:"accepted_revision"`
}

// pushRejected is the 409 response body for a stale push: the server's
// current copy of the entity.
type pushRejected struct {
	Current Entity `json:"current"`
}

// Notification is one message from the server change feed: a hint that the
// workspace advanced past the given revision. Carries no entity data - the
// client reacts by running a normal incremental pull.
type Notification struct {
	WorkspaceID    string `json:"workspace_id"`
	ServerRevision int64  `json:"server_revision"`
}
