// Package store provides the local persistent record store for tidemark.
//
// The store is an embedded SQLite database (ncruces/go-sqlite3) opened in WAL
// mode so UI reads stay concurrent with sync writes. It is the only shared
// mutable resource of the engine: the sync coordinator writes version/status
// transitions, local edits write payload/status transitions, and the two
// target disjoint field sets per the merge policy.
//
// Tasks are soft-deleted, never physically removed, so a delete can itself be
// synchronized. The high-water mark (highest server version fully applied
// locally) is persisted as a monotonic checkpoint row in sync_meta in addition
// to the per-record versions, because the server may hard-purge tail records
// and MAX(version) alone would then regress the mark.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tidemark/tidemark/internal/record"
	"github.com/tidemark/tidemark/internal/sortkey"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const metaLastSyncedVersion = "last_synced_version"
const metaLastSyncAt = "last_sync_at"

// Store wraps the SQLite connection with record-store operations.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a store at the given path, creating the parent directory and
// the schema if needed. The caller must Close it.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := s.InitSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	s.conn = nil
	return nil
}

// InitSchema creates tables and indexes. Idempotent.
func (s *Store) InitSchema() error {
	return s.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (s *Store) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		task_key    TEXT PRIMARY KEY,
		server_id   INTEGER,
		content     TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		completed   INTEGER NOT NULL DEFAULT 0,
		category_id INTEGER NOT NULL DEFAULT 0,
		reminder    TEXT,
		items       TEXT,  -- JSON array
		attachments TEXT,  -- JSON array
		sort_key    TEXT NOT NULL,
		version     INTEGER NOT NULL DEFAULT 0,
		status      TEXT NOT NULL DEFAULT 'created'
		            CHECK (status IN ('created','updated','deleted','synced')),
		deleted     INTEGER NOT NULL DEFAULT 0,
		create_time TEXT NOT NULL,
		sync_time   TEXT
	);

	CREATE TABLE IF NOT EXISTS categories (
		id         INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		color      TEXT NOT NULL DEFAULT '',
		is_folder  INTEGER NOT NULL DEFAULT 0,
		folder_id  INTEGER NOT NULL DEFAULT 0,
		sort_order INTEGER NOT NULL DEFAULT 0,
		deleted    INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS sync_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_version ON tasks(version);
	CREATE INDEX IF NOT EXISTS idx_tasks_category ON tasks(category_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_server_id
	    ON tasks(server_id) WHERE server_id IS NOT NULL;
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// UpsertTask inserts or replaces a full task row. This is the raw write used
// by the pull merge; local edits go through InsertLocal/UpdateLocal instead so
// status transitions stay in one place.
func (s *Store) UpsertTask(ctx context.Context, t *record.Task) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}
	if err := upsertTaskExec(ctx, s.conn, t); err != nil {
		return err
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func upsertTaskExec(ctx context.Context, db execer, t *record.Task) error {
	items, err := marshalJSON(t.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal items for %s: %w", t.Key, err)
	}
	attachments, err := marshalJSON(t.Attachments)
	if err != nil {
		return fmt.Errorf("failed to marshal attachments for %s: %w", t.Key, err)
	}

	query := `
	INSERT INTO tasks (
		task_key, server_id, content, description, completed, category_id,
		reminder, items, attachments, sort_key, version, status, deleted,
		create_time, sync_time
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(task_key) DO UPDATE SET
		server_id = excluded.server_id,
		content = excluded.content,
		description = excluded.description,
		completed = excluded.completed,
		category_id = excluded.category_id,
		reminder = excluded.reminder,
		items = excluded.items,
		attachments = excluded.attachments,
		sort_key = excluded.sort_key,
		version = excluded.version,
		status = excluded.status,
		deleted = excluded.deleted,
		create_time = excluded.create_time,
		sync_time = excluded.sync_time
	`

	_, err = db.ExecContext(ctx, query,
		t.Key,
		int64ToNull(t.ServerID),
		t.Content,
		t.Description,
		boolToInt(t.Completed),
		t.CategoryID,
		timeToNullString(t.Reminder),
		items,
		attachments,
		t.SortKey.String(),
		t.Version,
		string(t.Status),
		boolToInt(t.Deleted),
		t.CreateTime.Format(time.RFC3339Nano),
		timeToNullString(t.SyncTime),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task %s: %w", t.Key, err)
	}
	return nil
}

// InsertLocal stores a brand-new locally created task with status created.
func (s *Store) InsertLocal(ctx context.Context, t *record.Task) error {
	t.Status = record.StatusCreated
	t.Version = 0
	t.SyncTime = nil
	if t.CreateTime.IsZero() {
		t.CreateTime = time.Now()
	}
	return s.UpsertTask(ctx, t)
}

// UpdateLocal rewrites a task's payload fields after a user edit, escalating
// its mutation status. Version and sync_time are left untouched: those belong
// to the server-response code path.
func (s *Store) UpdateLocal(ctx context.Context, t *record.Task) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}
	items, err := marshalJSON(t.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal items for %s: %w", t.Key, err)
	}
	attachments, err := marshalJSON(t.Attachments)
	if err != nil {
		return fmt.Errorf("failed to marshal attachments for %s: %w", t.Key, err)
	}

	query := `
	UPDATE tasks SET
		content = ?, description = ?, completed = ?, category_id = ?,
		reminder = ?, items = ?, attachments = ?, sort_key = ?,
		status = CASE status
			WHEN 'created' THEN 'created'
			WHEN 'deleted' THEN 'deleted'
			ELSE 'updated'
		END
	WHERE task_key = ?
	`
	res, err := s.conn.ExecContext(ctx, query,
		t.Content, t.Description, boolToInt(t.Completed), t.CategoryID,
		timeToNullString(t.Reminder), items, attachments, t.SortKey.String(),
		t.Key,
	)
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", t.Key, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("task %s not found", t.Key)
	}
	return nil
}

// SoftDelete marks a task as deleted and queues the delete for upload. The
// row stays in place. Idempotent.
func (s *Store) SoftDelete(ctx context.Context, key string) error {
	query := `UPDATE tasks SET deleted = 1, status = 'deleted' WHERE task_key = ?`
	if _, err := s.conn.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to soft-delete task %s: %w", key, err)
	}
	return nil
}

// Reorder moves a task to a new sort key, escalating its status.
func (s *Store) Reorder(ctx context.Context, key string, sk decimal.Decimal) error {
	query := `
	UPDATE tasks SET
		sort_key = ?,
		status = CASE status
			WHEN 'created' THEN 'created'
			WHEN 'deleted' THEN 'deleted'
			ELSE 'updated'
		END
	WHERE task_key = ?
	`
	res, err := s.conn.ExecContext(ctx, query, sk.String(), key)
	if err != nil {
		return fmt.Errorf("failed to reorder task %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("task %s not found", key)
	}
	return nil
}

// GetTask returns the task with the given client key, or nil if no such task
// exists.
func (s *Store) GetTask(ctx context.Context, key string) (*record.Task, error) {
	rows, err := s.conn.QueryContext(ctx, taskSelect+` WHERE task_key = ?`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query task %s: %w", key, err)
	}
	defer rows.Close()

	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return tasks[0], nil
}

// GetTaskByServerID returns the task with the given server id, or nil.
func (s *Store) GetTaskByServerID(ctx context.Context, id int64) (*record.Task, error) {
	rows, err := s.conn.QueryContext(ctx, taskSelect+` WHERE server_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query task by server id %d: %w", id, err)
	}
	defer rows.Close()

	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return tasks[0], nil
}

// DirtyTasks returns every record whose mutation status is not synced, in a
// stable order so pushes serialize deterministically.
func (s *Store) DirtyTasks(ctx context.Context) ([]*record.Task, error) {
	query := taskSelect + `
	WHERE status != 'synced'
	ORDER BY status ASC, create_time ASC, task_key ASC
	`
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query dirty tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// MarkSynced applies a push acknowledgment list: the acked records get their
// server id, version and sync time filled in and their status cleared to
// synced, and the high-water mark advances to the highest acked version.
//
// Applied in one transaction. Idempotent: re-applying the same list yields the
// same end state. An ack for a key not present locally is a no-op, not an
// error. Records absent from the list keep their dirty status untouched.
func (s *Store) MarkSynced(ctx context.Context, acks []record.Ack) error {
	if len(acks) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var maxVersion int64
	for _, ack := range acks {
		_, err := tx.ExecContext(ctx, `
			UPDATE tasks SET
				server_id = ?, version = ?, sync_time = ?, status = 'synced'
			WHERE task_key = ?
		`, ack.ServerID, ack.Version, ack.SyncTime.Format(time.RFC3339Nano), ack.Key)
		if err != nil {
			return fmt.Errorf("failed to mark task %s synced: %w", ack.Key, err)
		}
		if ack.Version > maxVersion {
			maxVersion = ack.Version
		}
	}

	if err := bumpVersionTx(ctx, tx, maxVersion); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ApplyPullBatch writes a merged pull batch and advances the high-water mark
// in a single transaction, so a concurrent reader never observes a
// half-merged batch and a torn-down process resumes cleanly from whatever was
// committed.
func (s *Store) ApplyPullBatch(ctx context.Context, tasks []*record.Task, upTo int64) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, t := range tasks {
		if err := upsertTaskExec(ctx, tx, t); err != nil {
			return err
		}
	}

	if err := bumpVersionTx(ctx, tx, upTo); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// MaxSyncedVersion returns the local high-water mark: the highest server
// version known to be fully applied. Records never yet pushed do not count.
// The value is non-decreasing across runs.
func (s *Store) MaxSyncedVersion(ctx context.Context) (int64, error) {
	checkpoint, err := s.getMetaInt(ctx, metaLastSyncedVersion)
	if err != nil {
		return 0, err
	}

	var recordMax sql.NullInt64
	err = s.conn.QueryRowContext(ctx,
		`SELECT MAX(version) FROM tasks WHERE status = 'synced'`).Scan(&recordMax)
	if err != nil {
		return 0, fmt.Errorf("failed to query max synced version: %w", err)
	}

	if recordMax.Valid && recordMax.Int64 > checkpoint {
		return recordMax.Int64, nil
	}
	return checkpoint, nil
}

// SetLastSyncAt records the wall-clock time of the last completed run, for
// status display only.
func (s *Store) SetLastSyncAt(ctx context.Context, at time.Time) error {
	return s.setMeta(ctx, metaLastSyncAt, at.Format(time.RFC3339))
}

// LastSyncAt returns the time of the last completed run, zero if never.
func (s *Store) LastSyncAt(ctx context.Context) (time.Time, error) {
	v, err := s.getMeta(ctx, metaLastSyncAt)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse last sync time: %w", err)
	}
	return t, nil
}

// CountTasks returns the number of live (not soft-deleted) tasks.
func (s *Store) CountTasks(ctx context.Context) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE deleted = 0`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

// CountDirty returns the number of records pending upload.
func (s *Store) CountDirty(ctx context.Context) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE status != 'synced'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count dirty tasks: %w", err)
	}
	return count, nil
}

// ListFilter configures ListTasks.
type ListFilter struct {
	// CategoryID filters to one category (-1 = all).
	CategoryID int64
	// IncludeCompleted includes completed tasks.
	IncludeCompleted bool
	// IncludeDeleted includes soft-deleted tasks.
	IncludeDeleted bool
}

// ListTasks returns tasks matching the filter, ordered by sort key ascending
// with creation time breaking ties. Ordering is done on the decimal values,
// not on their text encoding.
func (s *Store) ListTasks(ctx context.Context, filter ListFilter) ([]*record.Task, error) {
	var conditions []string
	var args []interface{}

	if filter.CategoryID >= 0 {
		conditions = append(conditions, "category_id = ?")
		args = append(args, filter.CategoryID)
	}
	if !filter.IncludeCompleted {
		conditions = append(conditions, "completed = 0")
	}
	if !filter.IncludeDeleted {
		conditions = append(conditions, "deleted = 0")
	}

	query := taskSelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		if c := tasks[i].SortKey.Cmp(tasks[j].SortKey); c != 0 {
			return c < 0
		}
		return tasks[i].CreateTime.Before(tasks[j].CreateTime)
	})
	return tasks, nil
}

// RenumberCategory rewrites the sort keys of all live tasks in a category to
// an evenly spaced sequence, preserving their current order. This is the
// explicit fallback for sortkey.ErrRenumberRequired; each rewritten task is
// escalated to a dirty status so the new keys sync.
func (s *Store) RenumberCategory(ctx context.Context, categoryID int64) (int, error) {
	tasks, err := s.ListTasks(ctx, ListFilter{CategoryID: categoryID, IncludeCompleted: true})
	if err != nil {
		return 0, err
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	keys := sortkey.Sequence(len(tasks))

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, t := range tasks {
		_, err := tx.ExecContext(ctx, `
			UPDATE tasks SET
				sort_key = ?,
				status = CASE status
					WHEN 'created' THEN 'created'
					WHEN 'deleted' THEN 'deleted'
					ELSE 'updated'
				END
			WHERE task_key = ?
		`, keys[i].String(), t.Key)
		if err != nil {
			return 0, fmt.Errorf("failed to renumber task %s: %w", t.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(tasks), nil
}

// AllCategories returns the flat category list, folders included, ordered by
// sort order then id.
func (s *Store) AllCategories(ctx context.Context) ([]record.Category, error) {
	query := `
	SELECT id, name, color, is_folder, folder_id, sort_order, deleted
	FROM categories
	ORDER BY sort_order ASC, id ASC
	`
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var cats []record.Category
	for rows.Next() {
		var c record.Category
		var isFolder, deleted int
		if err := rows.Scan(&c.ID, &c.Name, &c.Color, &isFolder, &c.FolderID, &c.SortOrder, &deleted); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		c.IsFolder = isFolder != 0
		c.Deleted = deleted != 0
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}
	return cats, nil
}

// ReplaceCategories atomically swaps the whole category table for the
// server's list. Categories are server-authoritative: there is no per-field
// merge, the remote list wins.
func (s *Store) ReplaceCategories(ctx context.Context, cats []record.Category) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM categories"); err != nil {
		return fmt.Errorf("failed to clear categories: %w", err)
	}

	for _, c := range cats {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO categories (id, name, color, is_folder, folder_id, sort_order, deleted)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, c.ID, c.Name, c.Color, boolToInt(c.IsFolder), c.FolderID, c.SortOrder, boolToInt(c.Deleted))
		if err != nil {
			return fmt.Errorf("failed to insert category %d: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// HasCategory reports whether a live category with the given id exists.
func (s *Store) HasCategory(ctx context.Context, id int64) (bool, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM categories WHERE id = ? AND deleted = 0`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check category %d: %w", id, err)
	}
	return count > 0, nil
}

const taskSelect = `
	SELECT task_key, server_id, content, description, completed, category_id,
	       reminder, items, attachments, sort_key, version, status, deleted,
	       create_time, sync_time
	FROM tasks
`

func scanTasks(rows *sql.Rows) ([]*record.Task, error) {
	var tasks []*record.Task

	for rows.Next() {
		var t record.Task
		var serverID sql.NullInt64
		var reminder, items, attachments, syncTime sql.NullString
		var completed, deleted int
		var sortKey, status, createTime string

		err := rows.Scan(
			&t.Key,
			&serverID,
			&t.Content,
			&t.Description,
			&completed,
			&t.CategoryID,
			&reminder,
			&items,
			&attachments,
			&sortKey,
			&t.Version,
			&status,
			&deleted,
			&createTime,
			&syncTime,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}

		if serverID.Valid {
			t.ServerID = serverID.Int64
		}
		t.Completed = completed != 0
		t.Deleted = deleted != 0

		t.SortKey, err = decimal.NewFromString(sortKey)
		if err != nil {
			return nil, fmt.Errorf("failed to parse sort key for %s: %w", t.Key, err)
		}
		t.Status, err = record.ParseStatus(status)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", t.Key, err)
		}
		if t.CreateTime, err = time.Parse(time.RFC3339Nano, createTime); err != nil {
			return nil, fmt.Errorf("failed to parse create time for %s: %w", t.Key, err)
		}
		t.Reminder = nullStringToTime(reminder)
		t.SyncTime = nullStringToTime(syncTime)

		if items.Valid && items.String != "" && items.String != "null" {
			if err := json.Unmarshal([]byte(items.String), &t.Items); err != nil {
				return nil, fmt.Errorf("failed to unmarshal items for %s: %w", t.Key, err)
			}
		}
		if attachments.Valid && attachments.String != "" && attachments.String != "null" {
			if err := json.Unmarshal([]byte(attachments.String), &t.Attachments); err != nil {
				return nil, fmt.Errorf("failed to unmarshal attachments for %s: %w", t.Key, err)
			}
		}

		tasks = append(tasks, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// bumpVersionTx advances the persisted high-water mark inside tx. The mark is
// monotonic: a lower value is ignored, never written.
func bumpVersionTx(ctx context.Context, tx *sql.Tx, version int64) error {
	if version <= 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sync_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
			WHERE CAST(excluded.value AS INTEGER) > CAST(sync_meta.value AS INTEGER)
	`, metaLastSyncedVersion, strconv.FormatInt(version, 10))
	if err != nil {
		return fmt.Errorf("failed to advance high-water mark: %w", err)
	}
	return nil
}

func (s *Store) getMeta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.conn.QueryRowContext(ctx,
		`SELECT value FROM sync_meta WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read meta %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) getMetaInt(ctx context.Context, key string) (int64, error) {
	v, err := s.getMeta(ctx, key)
	if err != nil || v == "" {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse meta %s: %w", key, err)
	}
	return n, nil
}

func (s *Store) setMeta(ctx context.Context, key, value string) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO sync_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write meta %s: %w", key, err)
	}
	return nil
}

func marshalJSON(v interface{}) (sql.NullString, error) {
	switch x := v.(type) {
	case []record.Item:
		if len(x) == 0 {
			return sql.NullString{}, nil
		}
	case []record.Attachment:
		if len(x) == 0 {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func int64ToNull(v int64) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
