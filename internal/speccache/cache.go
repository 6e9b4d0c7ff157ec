// Package speccache persists the block heights at which a chain's runtime
// spec version changed, and the metadata bytes for each spec version, in a
// local SQLite file so repeated runs avoid re-bisecting and re-downloading.
package speccache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// ErrNotFound is returned when a spec version has no cached metadata.
var ErrNotFound = errors.New("speccache: not found")

// Change is the first block running a new spec version.
type Change struct {
	Block       uint64 `json:"block"`
	SpecVersion uint32 `json:"spec_version"`
}

// Cache is a SQLite-backed store. It is safe for concurrent use.
type Cache struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS spec_changes (
	block_number INTEGER PRIMARY KEY,
	spec_version INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS metadata (
	spec_version INTEGER PRIMARY KEY,
	bytes        BLOB NOT NULL
);`

// Open opens or creates the cache at path. ":memory:" gives a private
// in-memory cache.
func Open(ctx context.Context, path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("speccache: open %s: %w", path, err)
	}
	// One writer at a time; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("speccache: create schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error { return c.db.Close() }

// PutChanges records spec changes, replacing any entry for the same block.
func (c *Cache) PutChanges(ctx context.Context, changes ...Change) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("speccache: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, ch := range changes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO spec_changes (block_number, spec_version) VALUES (?, ?)
			 ON CONFLICT (block_number) DO UPDATE SET spec_version = excluded.spec_version`,
			int64(ch.Block), int64(ch.SpecVersion), //nolint:gosec // block heights fit in int64
		); err != nil {
			return fmt.Errorf("speccache: put change at %d: %w", ch.Block, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("speccache: commit: %w", err)
	}
	return nil
}

// Changes returns every recorded change in block order.
func (c *Cache) Changes(ctx context.Context) ([]Change, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT block_number, spec_version FROM spec_changes ORDER BY block_number`)
	if err != nil {
		return nil, fmt.Errorf("speccache: list changes: %w", err)
	}
	defer rows.Close()

	var out []Change
	for rows.Next() {
		var block, spec int64
		if err := rows.Scan(&block, &spec); err != nil {
			return nil, fmt.Errorf("speccache: scan change: %w", err)
		}
		out = append(out, Change{Block: uint64(block), SpecVersion: uint32(spec)}) //nolint:gosec // stored from unsigned values
	}
	return out, rows.Err()
}

// LastChange returns the highest recorded change, if any.
func (c *Cache) LastChange(ctx context.Context) (Change, bool, error) {
	var block, spec int64
	err := c.db.QueryRowContext(ctx,
		`SELECT block_number, spec_version FROM spec_changes ORDER BY block_number DESC LIMIT 1`,
	).Scan(&block, &spec)
	if errors.Is(err, sql.ErrNoRows) {
		return Change{}, false, nil
	}
	if err != nil {
		return Change{}, false, fmt.Errorf("speccache: last change: %w", err)
	}
	return Change{Block: uint64(block), SpecVersion: uint32(spec)}, true, nil //nolint:gosec // stored from unsigned values
}

// PutMetadata stores the raw metadata bytes for a spec version.
func (c *Cache) PutMetadata(ctx context.Context, specVersion uint32, data []byte) error {
	if _, err := c.db.ExecContext(ctx,
		`INSERT INTO metadata (spec_version, bytes) VALUES (?, ?)
		 ON CONFLICT (spec_version) DO UPDATE SET bytes = excluded.bytes`,
		int64(specVersion), data,
	); err != nil {
		return fmt.Errorf("speccache: put metadata %d: %w", specVersion, err)
	}
	return nil
}

// Metadata returns the cached metadata bytes for a spec version.
func (c *Cache) Metadata(ctx context.Context, specVersion uint32) ([]byte, error) {
	var data []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT bytes FROM metadata WHERE spec_version = ?`, int64(specVersion),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("speccache: metadata %d: %w", specVersion, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("speccache: metadata %d: %w", specVersion, err)
	}
	return data, nil
}
