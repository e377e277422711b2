package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// walJournalSizeLimit caps the WAL journal at 64 MiB.
const walJournalSizeLimit = 67108864

// SQLiteStore implements the Store interface using an embedded SQLite
// database with WAL mode. All local state (entities, sync cursors, history)
// is persisted here. Each entity write is its own transaction, which is what
// makes an interrupted sync cycle safely resumable.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	// Prepared statements for repeated queries, grouped by domain.
	entityStmts  entityStatements
	stateStmts   stateStatements
	historyStmts historyStatements
}

type entityStatements struct {
	get, upsert, listDirty, markSynced, deleteByKey, purgeTombstones, pendingCount *sql.Stmt
}

type stateStatements struct {
	getCursor, saveCursor, getLastSync, saveLastSync *sql.Stmt
}

type historyStatements struct {
	append, list, clear *sql.Stmt
}

// NewStore creates a SQLiteStore, opening the database at dbPath, applying
// migrations, and preparing all repeated statements. Use ":memory:" for tests.
func NewStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	logger.Info("opening local state database", "path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := setPragmas(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.prepareAllStatements(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	logger.Info("local state database ready", "path", dbPath)

	return s, nil
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	pragmas := []struct {
		sql  string
		desc string
	}{
		{"PRAGMA journal_mode = WAL", "WAL mode"},
		{"PRAGMA synchronous = FULL", "synchronous FULL"},
		{"PRAGMA foreign_keys = ON", "foreign keys"},
		{fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit), "journal size limit"},
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.sql); err != nil {
			return fmt.Errorf("set pragma %s: %w", p.desc, err)
		}

		logger.Debug("pragma set", "pragma", p.desc)
	}

	return nil
}

// --- SQL query constants ---

// Entity queries.
const (
	sqlEntityColumns = `account_id, workspace_id, id, kind, title, parent_id,
		content, revision, last_synced_revision, is_dirty, is_deleted,
		updated_at, created_at`

	sqlGetEntity = `SELECT ` + sqlEntityColumns +
		` FROM entities WHERE account_id = ? AND workspace_id = ? AND id = ?`

	sqlUpsertEntity = `INSERT INTO entities (` + sqlEntityColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, workspace_id, id) DO UPDATE SET
			kind                 = excluded.kind,
			title                = excluded.title,
			parent_id            = excluded.parent_id,
			content              = excluded.content,
			revision             = excluded.revision,
			last_synced_revision = excluded.last_synced_revision,
			is_dirty             = excluded.is_dirty,
			is_deleted           = excluded.is_deleted,
			updated_at           = excluded.updated_at`

	// Oldest-dirty-first with id tiebreak: deterministic push batch ordering.
	sqlListDirty = `SELECT ` + sqlEntityColumns +
		` FROM entities
		WHERE account_id = ? AND workspace_id = ? AND is_dirty = 1
		ORDER BY updated_at ASC, id ASC`

	sqlMarkSynced = `UPDATE entities
		SET revision = ?, last_synced_revision = ?, is_dirty = 0
		WHERE account_id = ? AND workspace_id = ? AND id = ?`

	sqlDeleteEntity = `DELETE FROM entities
		WHERE account_id = ? AND workspace_id = ? AND id = ?`

	sqlPurgeTombstones = `DELETE FROM entities
		WHERE account_id = ? AND workspace_id = ?
		  AND is_deleted = 1 AND is_dirty = 0`

	sqlPendingCount = `SELECT COUNT(*) FROM entities
		WHERE account_id = ? AND workspace_id = ? AND is_dirty = 1`
)

// Sync state queries.
const (
	sqlGetCursor = `SELECT cursor FROM sync_state
		WHERE account_id = ? AND workspace_id = ?`

	sqlSaveCursor = `INSERT INTO sync_state (account_id, workspace_id, cursor)
		VALUES (?, ?, ?)
		ON CONFLICT(account_id, workspace_id) DO UPDATE
		SET cursor = excluded.cursor`

	sqlGetLastSync = `SELECT last_sync_at FROM sync_state
		WHERE account_id = ? AND workspace_id = ?`

	sqlSaveLastSync = `INSERT INTO sync_state (account_id, workspace_id, last_sync_at)
		VALUES (?, ?, ?)
		ON CONFLICT(account_id, workspace_id) DO UPDATE
		SET last_sync_at = excluded.last_sync_at`
)

// History queries.
const (
	sqlAppendHistory = `INSERT INTO sync_history
		(id, sync_type, pushed_count, pulled_count, conflict_count,
		 duration_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	sqlListHistory = `SELECT id, sync_type, pushed_count, pulled_count,
		conflict_count, duration_ms, error, created_at
		FROM sync_history ORDER BY created_at DESC, id DESC LIMIT ?`

	sqlClearHistory = `DELETE FROM sync_history`
)

// stmtDef maps a SQL string to the prepared statement pointer it should
// populate. Used by the prepare helper to eliminate repetitive error handling.
type stmtDef struct {
	dest **sql.Stmt
	sql  string
	name string
}

// prepareAll prepares a batch of statements, returning on first error.
func prepareAll(ctx context.Context, db *sql.DB, defs []stmtDef) error {
	for i := range defs {
		stmt, err := db.PrepareContext(ctx, defs[i].sql)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", defs[i].name, err)
		}

		*defs[i].dest = stmt
	}

	return nil
}

// prepareAllStatements creates all prepared statements grouped by domain.
func (s *SQLiteStore) prepareAllStatements(ctx context.Context) error {
	if err := prepareAll(ctx, s.db, []stmtDef{
		{&s.entityStmts.get, sqlGetEntity, "getEntity"},
		{&s.entityStmts.upsert, sqlUpsertEntity, "upsertEntity"},
		{&s.entityStmts.listDirty, sqlListDirty, "listDirty"},
		{&s.entityStmts.markSynced, sqlMarkSynced, "markSynced"},
		{&s.entityStmts.deleteByKey, sqlDeleteEntity, "deleteEntity"},
		{&s.entityStmts.purgeTombstones, sqlPurgeTombstones, "purgeTombstones"},
		{&s.entityStmts.pendingCount, sqlPendingCount, "pendingCount"},
	}); err != nil {
		return err
	}

	if err := prepareAll(ctx, s.db, []stmtDef{
		{&s.stateStmts.getCursor, sqlGetCursor, "getCursor"},
		{&s.stateStmts.saveCursor, sqlSaveCursor, "saveCursor"},
		{&s.stateStmts.getLastSync, sqlGetLastSync, "getLastSyncAt"},
		{&s.stateStmts.saveLastSync, sqlSaveLastSync, "saveLastSyncAt"},
	}); err != nil {
		return err
	}

	return prepareAll(ctx, s.db, []stmtDef{
		{&s.historyStmts.append, sqlAppendHistory, "appendHistory"},
		{&s.historyStmts.list, sqlListHistory, "listHistory"},
		{&s.historyStmts.clear, sqlClearHistory, "clearHistory"},
	})
}

// --- Entity scanning helpers ---

// scanEntity scans a full entity row into an Entity struct. Used by all
// entity-returning queries to avoid duplicated column scanning.
func scanEntity(row interface{ Scan(...any) error }) (*Entity, error) {
	e := &Entity{}

	var kind string

	err := row.Scan(
		&e.AccountID, &e.WorkspaceID, &e.ID, &kind, &e.Title, &e.ParentID,
		&e.Content, &e.Revision, &e.LastSyncedRevision,
		&e.IsDirty, &e.IsDeleted, &e.UpdatedAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Kind = Kind(kind)

	return e, nil
}

// --- Entity methods ---

// GetEntity retrieves a single entity by key. Returns (nil, nil) if no
// entity exists - callers use the nil entity to distinguish "new" from
// "known".
func (s *SQLiteStore) GetEntity(ctx context.Context, accountID, workspaceID, id string) (*Entity, error) {
	s.logger.Debug("getting entity", "workspace", workspaceID, "id", id)

	e, err := scanEntity(s.entityStmts.get.QueryRowContext(ctx, accountID, workspaceID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("get entity %s: %w", id, err)
	}

	return e, nil
}

// UpsertEntity inserts or updates an entity as a single atomic write.
// created_at is preserved on update by the ON CONFLICT clause omitting it.
func (s *SQLiteStore) UpsertEntity(ctx context.Context, e *Entity) error {
	s.logger.Debug("upserting entity",
		"workspace", e.WorkspaceID, "id", e.ID, "kind", string(e.Kind),
		"revision", e.Revision, "dirty", e.IsDirty)

	_, err := s.entityStmts.upsert.ExecContext(ctx,
		e.AccountID, e.WorkspaceID, e.ID, string(e.Kind), e.Title, e.ParentID,
		e.Content, e.Revision, e.LastSyncedRevision,
		e.IsDirty, e.IsDeleted, e.UpdatedAt, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert entity %s: %w", e.ID, err)
	}

	return nil
}

// ListDirty returns all locally-dirty entities for the workspace, ordered
// oldest-dirty-first with id tiebreak for deterministic push batches.
func (s *SQLiteStore) ListDirty(ctx context.Context, accountID, workspaceID string) ([]*Entity, error) {
	s.logger.Debug("listing dirty entities", "workspace", workspaceID)

	rows, err := s.entityStmts.listDirty.QueryContext(ctx, accountID, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list dirty: %w", err)
	}
	defer rows.Close()

	var entities []*Entity

	for rows.Next() {
		e, scanErr := scanEntity(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan dirty entity: %w", scanErr)
		}

		entities = append(entities, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dirty entities: %w", err)
	}

	return entities, nil
}

// MarkSynced advances an entity to the server-acknowledged revision and
// clears the dirty flag. Revision and last_synced_revision move together,
// preserving the isDirty ⇔ revision > lastSyncedRevision invariant.
func (s *SQLiteStore) MarkSynced(ctx context.Context, accountID, workspaceID, id string, revision int64) error {
	s.logger.Debug("marking entity synced",
		"workspace", workspaceID, "id", id, "revision", revision)

	_, err := s.entityStmts.markSynced.ExecContext(ctx,
		revision, revision, accountID, workspaceID, id)
	if err != nil {
		return fmt.Errorf("mark synced %s: %w", id, err)
	}

	return nil
}

// DeleteEntity physically removes an entity. Used for never-pushed local
// deletions, where no server trace exists to reconcile against.
func (s *SQLiteStore) DeleteEntity(ctx context.Context, accountID, workspaceID, id string) error {
	s.logger.Debug("deleting entity", "workspace", workspaceID, "id", id)

	_, err := s.entityStmts.deleteByKey.ExecContext(ctx, accountID, workspaceID, id)
	if err != nil {
		return fmt.Errorf("delete entity %s: %w", id, err)
	}

	return nil
}

// PurgeSyncedTombstones removes soft-deleted entities whose deletion the
// server has acknowledged (tombstone, not dirty). Unacknowledged tombstones
// are retained so a failed push can be recovered. Returns rows deleted.
func (s *SQLiteStore) PurgeSyncedTombstones(ctx context.Context, accountID, workspaceID string) (int64, error) {
	result, err := s.entityStmts.purgeTombstones.ExecContext(ctx, accountID, workspaceID)
	if err != nil {
		return 0, fmt.Errorf("purge tombstones: %w", err)
	}

	affected, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		s.logger.Warn("could not read rows affected", "error", rowsErr)
	}

	if affected > 0 {
		s.logger.Info("purged acknowledged tombstones",
			"workspace", workspaceID, "count", affected)
	}

	return affected, nil
}

// PendingCount returns the number of locally-dirty entities.
func (s *SQLiteStore) PendingCount(ctx context.Context, accountID, workspaceID string) (int, error) {
	var count int

	err := s.entityStmts.pendingCount.QueryRowContext(ctx, accountID, workspaceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("pending count: %w", err)
	}

	return count, nil
}

// --- Sync state methods ---

// GetCursor retrieves the server revision watermark for incremental pulls.
// Returns 0 if no cursor exists (first sync).
func (s *SQLiteStore) GetCursor(ctx context.Context, accountID, workspaceID string) (int64, error) {
	var cursor int64

	err := s.stateStmts.getCursor.QueryRowContext(ctx, accountID, workspaceID).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("get cursor: %w", err)
	}

	return cursor, nil
}

// SaveCursor persists the server revision watermark.
func (s *SQLiteStore) SaveCursor(ctx context.Context, accountID, workspaceID string, cursor int64) error {
	s.logger.Debug("saving cursor", "workspace", workspaceID, "cursor", cursor)

	_, err := s.stateStmts.saveCursor.ExecContext(ctx, accountID, workspaceID, cursor)
	if err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}

	return nil
}

// GetLastSyncAt returns the timestamp of the last completed cycle, 0 if none.
func (s *SQLiteStore) GetLastSyncAt(ctx context.Context, accountID, workspaceID string) (int64, error) {
	var at int64

	err := s.stateStmts.getLastSync.QueryRowContext(ctx, accountID, workspaceID).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("get last sync: %w", err)
	}

	return at, nil
}

// SaveLastSyncAt persists the timestamp of the last completed cycle.
func (s *SQLiteStore) SaveLastSyncAt(ctx context.Context, accountID, workspaceID string, at int64) error {
	_, err := s.stateStmts.saveLastSync.ExecContext(ctx, accountID, workspaceID, at)
	if err != nil {
		return fmt.Errorf("save last sync: %w", err)
	}

	return nil
}

// --- History methods ---

// AppendHistory inserts one immutable history entry. Entries are never
// updated after insertion.
func (s *SQLiteStore) AppendHistory(ctx context.Context, entry *HistoryEntry) error {
	s.logger.Debug("appending history entry",
		"id", entry.ID, "type", string(entry.SyncType))

	var errVal any
	if entry.Error != "" {
		errVal = entry.Error
	}

	_, err := s.historyStmts.append.ExecContext(ctx,
		entry.ID, string(entry.SyncType),
		entry.PushedCount, entry.PulledCount, entry.ConflictCount,
		entry.DurationMs, errVal, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append history %s: %w", entry.ID, err)
	}

	return nil
}

// ListHistory returns up to limit entries, newest first.
func (s *SQLiteStore) ListHistory(ctx context.Context, limit int) ([]*HistoryEntry, error) {
	rows, err := s.historyStmts.list.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []*HistoryEntry

	for rows.Next() {
		entry := &HistoryEntry{}

		var syncType string
		var errStr sql.NullString

		err := rows.Scan(
			&entry.ID, &syncType,
			&entry.PushedCount, &entry.PulledCount, &entry.ConflictCount,
			&entry.DurationMs, &errStr, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}

		entry.SyncType = SyncType(syncType)
		entry.Error = errStr.String

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}

	return entries, nil
}

// ClearHistory wipes the full history. There is no partial deletion -
// individual entries are immutable.
func (s *SQLiteStore) ClearHistory(ctx context.Context) error {
	s.logger.Info("clearing sync history")

	_, err := s.historyStmts.clear.ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("clear history: %w", err)
	}

	return nil
}

// --- Maintenance methods ---

// Checkpoint forces a WAL checkpoint to consolidate the WAL file into the
// main database.
func (s *SQLiteStore) Checkpoint() error {
	s.logger.Debug("running WAL checkpoint")

	_, err := s.db.ExecContext(context.Background(), "PRAGMA wal_checkpoint(TRUNCATE)")
	if err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}

	return nil
}

// Close closes all prepared statements and the database connection.
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing local state database")

	if err := s.closeStatements(); err != nil {
		s.logger.Error("error closing statements", "error", err)
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}

	return nil
}

// closeStatements closes all prepared statements, collecting errors.
func (s *SQLiteStore) closeStatements() error {
	stmts := []*sql.Stmt{
		s.entityStmts.get, s.entityStmts.upsert, s.entityStmts.listDirty,
		s.entityStmts.markSynced, s.entityStmts.deleteByKey,
		s.entityStmts.purgeTombstones, s.entityStmts.pendingCount,
		s.stateStmts.getCursor, s.stateStmts.saveCursor,
		s.stateStmts.getLastSync, s.stateStmts.saveLastSync,
		s.historyStmts.append, s.historyStmts.list, s.historyStmts.clear,
	}

	var errs []string

	for _, stmt := range stmts {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close statements: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)
