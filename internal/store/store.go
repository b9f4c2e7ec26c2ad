// Package store provides the durable local record store for stockroom.
//
// Records live in an embedded SQLite database (ncruces/go-sqlite3, WASM
// build, no cgo) opened in WAL mode so the sync engine can read while the
// mutation service writes.
//
// Architecture:
//   - Database file: .stockroom/stockroom.db
//   - Table items: one row per record id (point-in-time snapshot)
//   - Index on synced: enumerates unsynced records without a scan
//   - Table id_remaps: temp id -> canonical id, written with each remap
//
// Every write runs in its own transaction scoped to a single record (or a
// single remap), so a failed write never leaves a partial row behind.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/mschirtzinger/stockroom/internal/types"
)

// Store wraps the SQLite connection pool holding inventory records.
type Store struct {
	conn *sql.DB
	path string
}

// Open opens (creating if needed) the store at path and initializes the
// schema.
//
// The caller MUST call Close() when done so the WAL is checkpointed.
//
// Example:
//
//	st, err := store.Open(".stockroom/stockroom.db")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_txlock=immediate", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	if err := s.InitSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the connection pool.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the tables and indexes if they don't exist.
// It is idempotent.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 0,
		category TEXT NOT NULL DEFAULT '',
		synced INTEGER NOT NULL DEFAULT 0,
		pending TEXT NOT NULL DEFAULT 'create',
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS id_remaps (
		temp_id TEXT PRIMARY KEY,
		canonical_id TEXT NOT NULL,
		remapped_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS deleted_ids (
		id TEXT PRIMARY KEY,
		deleted_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_items_synced ON items(synced);
	CREATE INDEX IF NOT EXISTS idx_items_pending ON items(pending);
	CREATE INDEX IF NOT EXISTS idx_remaps_canonical ON id_remaps(canonical_id);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: failed to initialize schema: %v", types.ErrLocalStore, err)
	}
	return nil
}

const upsertItem = `
	INSERT INTO items (id, name, quantity, category, synced, pending, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
` + onConflictUpdate

// upsertSnapshotItem inserts a snapshot record unless its id was deleted
// at or after the cutoff, and overwrites only synced rows older than it.
// Args: item columns, id, cutoff, cutoff.
const upsertSnapshotItem = `
	INSERT INTO items (id, name, quantity, category, synced, pending, updated_at)
	SELECT ?, ?, ?, ?, ?, ?, ?
	WHERE NOT EXISTS (SELECT 1 FROM deleted_ids WHERE id = ? AND deleted_at >= ?)
` + onConflictUpdate + ` WHERE items.pending = 'none' AND items.updated_at < ?`

const onConflictUpdate = `
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		quantity = excluded.quantity,
		category = excluded.category,
		synced = excluded.synced,
		pending = excluded.pending,
		updated_at = excluded.updated_at
`

const selectItem = `SELECT id, name, quantity, category, synced, pending, updated_at FROM items`

// timeFormat is fixed width so updated_at sorts and compares as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Put inserts or replaces the record with item.ID. Applying the same item
// twice leaves the store as applying it once.
func (s *Store) Put(ctx context.Context, item *types.Item) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid item: %w", err)
	}

	if _, err := s.conn.ExecContext(ctx, upsertItem, itemArgs(item)...); err != nil {
		return fmt.Errorf("%w: failed to put item %s: %v", types.ErrLocalStore, item.ID, err)
	}
	return nil
}

// Get returns the record with the given id, or an error wrapping
// types.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*types.Item, error) {
	row := s.conn.QueryRowContext(ctx, selectItem+` WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get item %s: %v", types.ErrLocalStore, id, err)
	}
	return item, nil
}

// GetAll returns every record, tombstones included. Order is unspecified;
// callers sort and filter themselves.
func (s *Store) GetAll(ctx context.Context) ([]*types.Item, error) {
	return s.query(ctx, selectItem)
}

// ListUnsynced returns every record owing an operation to the remote store.
func (s *Store) ListUnsynced(ctx context.Context) ([]*types.Item, error) {
	return s.query(ctx, selectItem+` WHERE synced = 0 ORDER BY updated_at ASC`)
}

// Delete removes the record. Deleting an absent id is a no-op.
//
// The deletion time is kept until a later ReplaceSynced, so a remote
// snapshot listed before the delete cannot bring the record back.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", types.ErrLocalStore, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%w: failed to delete item %s: %v", types.ErrLocalStore, id, err)
	}

	now := time.Now().UTC().Format(timeFormat)
	recordQuery := `
	INSERT INTO deleted_ids (id, deleted_at) VALUES (?, ?)
	ON CONFLICT(id) DO UPDATE SET deleted_at = excluded.deleted_at
	`
	if _, err := tx.ExecContext(ctx, recordQuery, id, now); err != nil {
		return fmt.Errorf("%w: failed to record deletion of %s: %v", types.ErrLocalStore, id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit delete of %s: %v", types.ErrLocalStore, id, err)
	}
	return nil
}

// Remap atomically replaces the record stored under oldID with item (which
// carries the canonical id) and records the alias oldID -> item.ID.
func (s *Store) Remap(ctx context.Context, oldID string, item *types.Item) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid item: %w", err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", types.ErrLocalStore, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, oldID); err != nil {
		return fmt.Errorf("%w: failed to remove %s: %v", types.ErrLocalStore, oldID, err)
	}

	if _, err := tx.ExecContext(ctx, upsertItem, itemArgs(item)...); err != nil {
		return fmt.Errorf("%w: failed to insert %s: %v", types.ErrLocalStore, item.ID, err)
	}

	if oldID != item.ID {
		remapQuery := `
		INSERT INTO id_remaps (temp_id, canonical_id, remapped_at)
		VALUES (?, ?, ?)
		ON CONFLICT(temp_id) DO UPDATE SET
			canonical_id = excluded.canonical_id,
			remapped_at = excluded.remapped_at
		`
		now := time.Now().UTC().Format(timeFormat)
		if _, err := tx.ExecContext(ctx, remapQuery, oldID, item.ID, now); err != nil {
			return fmt.Errorf("%w: failed to record remap %s -> %s: %v", types.ErrLocalStore, oldID, item.ID, err)
		}
		// Earlier aliases that pointed at oldID follow it.
		if _, err := tx.ExecContext(ctx, `UPDATE id_remaps SET canonical_id = ? WHERE canonical_id = ?`, item.ID, oldID); err != nil {
			return fmt.Errorf("%w: failed to forward remaps of %s: %v", types.ErrLocalStore, oldID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit remap %s -> %s: %v", types.ErrLocalStore, oldID, item.ID, err)
	}
	return nil
}

// ResolveID returns the canonical id recorded for a remapped temp id, or
// id itself when no remap exists.
func (s *Store) ResolveID(ctx context.Context, id string) (string, error) {
	var canonical string
	err := s.conn.QueryRowContext(ctx, `SELECT canonical_id FROM id_remaps WHERE temp_id = ?`, id).Scan(&canonical)
	if errors.Is(err, sql.ErrNoRows) {
		return id, nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: failed to resolve id %s: %v", types.ErrLocalStore, id, err)
	}
	return canonical, nil
}

// ReplaceStats reports what ReplaceSynced changed.
type ReplaceStats struct {
	Upserted int
	Pruned   int
	Skipped  int // snapshot records the store kept its own version of, or left deleted
}

// ReplaceSynced applies an authoritative remote snapshot in one
// transaction: every snapshot record is upserted as synced, synced rows
// absent from the snapshot are pruned, and rows with a pending op are
// never overwritten or removed.
//
// asOf is when the snapshot was listed. Rows written at or after asOf are
// newer than the snapshot and are left alone, and ids deleted at or after
// asOf are not re-inserted. Deletions older than asOf are forgotten. A zero
// asOf disables the cutoff.
func (s *Store) ReplaceSynced(ctx context.Context, items []*types.Item, asOf time.Time) (ReplaceStats, error) {
	var stats ReplaceStats

	cutoff := "9999-12-31T23:59:59.999999999Z"
	if !asOf.IsZero() {
		cutoff = asOf.UTC().Format(timeFormat)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("%w: failed to begin transaction: %v", types.ErrLocalStore, err)
	}
	defer tx.Rollback()

	keep := make(map[string]bool, len(items))
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return stats, fmt.Errorf("invalid snapshot item: %w", err)
		}
		keep[item.ID] = true

		args := append(itemArgs(item), item.ID, cutoff, cutoff)
		res, err := tx.ExecContext(ctx, upsertSnapshotItem, args...)
		if err != nil {
			return stats, fmt.Errorf("%w: failed to upsert %s: %v", types.ErrLocalStore, item.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			stats.Upserted++
		} else {
			stats.Skipped++
		}
	}

	rows, err := tx.QueryContext(ctx, `SELECT id FROM items WHERE pending = 'none' AND updated_at < ?`, cutoff)
	if err != nil {
		return stats, fmt.Errorf("%w: failed to list synced items: %v", types.ErrLocalStore, err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return stats, fmt.Errorf("%w: failed to scan id: %v", types.ErrLocalStore, err)
		}
		if !keep[id] {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return stats, fmt.Errorf("%w: error iterating ids: %v", types.ErrLocalStore, err)
	}
	rows.Close()

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ? AND pending = 'none' AND updated_at < ?`, id, cutoff); err != nil {
			return stats, fmt.Errorf("%w: failed to prune %s: %v", types.ErrLocalStore, id, err)
		}
		stats.Pruned++
	}

	if !asOf.IsZero() {
		if _, err := tx.ExecContext(ctx, `DELETE FROM deleted_ids WHERE deleted_at < ?`, cutoff); err != nil {
			return stats, fmt.Errorf("%w: failed to forget old deletions: %v", types.ErrLocalStore, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("%w: failed to commit snapshot: %v", types.ErrLocalStore, err)
	}
	return stats, nil
}

// Counts summarizes the store contents.
type Counts struct {
	Total    int
	Unsynced int
	ByOp     map[types.PendingOp]int
}

// Count returns record totals grouped by pending op.
func (s *Store) Count(ctx context.Context) (Counts, error) {
	counts := Counts{ByOp: make(map[types.PendingOp]int)}

	rows, err := s.conn.QueryContext(ctx, `SELECT pending, COUNT(*) FROM items GROUP BY pending`)
	if err != nil {
		return counts, fmt.Errorf("%w: failed to count items: %v", types.ErrLocalStore, err)
	}
	defer rows.Close()

	for rows.Next() {
		var op string
		var n int
		if err := rows.Scan(&op, &n); err != nil {
			return counts, fmt.Errorf("%w: failed to scan count: %v", types.ErrLocalStore, err)
		}
		counts.ByOp[types.PendingOp(op)] = n
		counts.Total += n
		if types.PendingOp(op) != types.PendingNone {
			counts.Unsynced += n
		}
	}
	if err := rows.Err(); err != nil {
		return counts, fmt.Errorf("%w: error iterating counts: %v", types.ErrLocalStore, err)
	}
	return counts, nil
}

// SizeBytes returns the on-disk size of the database and its WAL.
func (s *Store) SizeBytes() (int64, error) {
	var total int64
	for _, p := range []string{s.path, s.path + "-wal"} {
		info, err := os.Stat(p)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		total += info.Size()
	}
	return total, nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*types.Item, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query items: %v", types.ErrLocalStore, err)
	}
	defer rows.Close()

	var items []*types.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan item: %v", types.ErrLocalStore, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating items: %v", types.ErrLocalStore, err)
	}
	return items, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (*types.Item, error) {
	var item types.Item
	var synced int
	var pending, updatedAt string

	if err := row.Scan(&item.ID, &item.Name, &item.Quantity, &item.Category, &synced, &pending, &updatedAt); err != nil {
		return nil, err
	}

	item.Synced = synced != 0
	item.Pending = types.PendingOp(pending)
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		item.UpdatedAt = t
	}
	return &item, nil
}

func itemArgs(item *types.Item) []any {
	updatedAt := item.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	synced := 0
	if item.Synced {
		synced = 1
	}
	return []any{
		item.ID,
		item.Name,
		item.Quantity,
		item.Category,
		synced,
		string(item.Pending),
		updatedAt.UTC().Format(timeFormat),
	}
}
