package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/kiroku/internal/model"
)

// copyTimeout keeps a hung Postgres from blocking a sink flush forever.
const copyTimeout = 30 * time.Second

// InsertExtrinsics inserts extrinsic records using the COPY protocol.
func (db *DB) InsertExtrinsics(ctx context.Context, recs []model.ExtrinsicRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	columns := []string{"run_id", "block_number", "block_hash", "spec_version", "idx", "pallet", "call", "decoded", "error", "bytes"}
	rows := make([][]any, len(recs))
	for i, r := range recs {
		var decoded any
		if len(r.Decoded) > 0 {
			decoded = string(r.Decoded)
		}
		rows[i] = []any{
			r.RunID, int64(r.BlockNumber), r.BlockHash, int64(r.SpecVersion), r.Index, //nolint:gosec // block heights fit in int64
			r.Pallet, r.Call, decoded, r.Error, r.Bytes,
		}
	}
	return db.copy(ctx, "extrinsics", columns, rows)
}

// InsertStorageItems inserts storage item records using the COPY protocol.
func (db *DB) InsertStorageItems(ctx context.Context, recs []model.StorageItemRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	columns := []string{"run_id", "block_number", "spec_version", "pallet", "entry", "key", "keys", "value", "skipped", "error"}
	rows := make([][]any, len(recs))
	for i, r := range recs {
		rows[i] = []any{
			r.RunID, int64(r.BlockNumber), int64(r.SpecVersion), r.Pallet, r.Entry, r.Key, //nolint:gosec // block heights fit in int64
			jsonOrNil(r.Keys), jsonOrNil(r.Value), r.Skipped, r.Error,
		}
	}
	return db.copy(ctx, "storage_items", columns, rows)
}

// copy runs a COPY, retrying failures that left the table untouched.
func (db *DB) copy(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	var n int64
	err := WithRetry(ctx, 3, 100*time.Millisecond, func() error {
		copyCtx, cancel := context.WithTimeout(ctx, copyTimeout)
		defer cancel()
		var err error
		n, err = db.pool.CopyFrom(copyCtx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("storage: copy %s: %w", table, err)
	}
	return n, nil
}

func jsonOrNil(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// RunCounts summarises the records written for a run.
type RunCounts struct {
	Extrinsics         int64 `json:"extrinsics"`
	ExtrinsicErrors    int64 `json:"extrinsic_errors"`
	StorageItems       int64 `json:"storage_items"`
	StorageItemErrors  int64 `json:"storage_item_errors"`
	StorageItemSkipped int64 `json:"storage_items_skipped"`
}

// CountRecords returns record totals for a run.
func (db *DB) CountRecords(ctx context.Context, runID uuid.UUID) (RunCounts, error) {
	var c RunCounts
	err := db.pool.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM extrinsics WHERE run_id = $1),
		   (SELECT COUNT(*) FROM extrinsics WHERE run_id = $1 AND error <> ''),
		   (SELECT COUNT(*) FROM storage_items WHERE run_id = $1),
		   (SELECT COUNT(*) FROM storage_items WHERE run_id = $1 AND error <> ''),
		   (SELECT COUNT(*) FROM storage_items WHERE run_id = $1 AND skipped)`, runID,
	).Scan(&c.Extrinsics, &c.ExtrinsicErrors, &c.StorageItems, &c.StorageItemErrors, &c.StorageItemSkipped)
	if err != nil {
		return RunCounts{}, fmt.Errorf("storage: count records: %w", err)
	}
	return c, nil
}

// ListExtrinsicErrors returns the failed extrinsics of a run in block order.
func (db *DB) ListExtrinsicErrors(ctx context.Context, runID uuid.UUID, limit int) ([]model.ExtrinsicRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx,
		`SELECT run_id, block_number, block_hash, spec_version, idx, pallet, call, error, bytes
		 FROM extrinsics WHERE run_id = $1 AND error <> ''
		 ORDER BY block_number, idx LIMIT $2`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list extrinsic errors: %w", err)
	}
	defer rows.Close()

	var out []model.ExtrinsicRecord
	for rows.Next() {
		var r model.ExtrinsicRecord
		var block, spec int64
		if err := rows.Scan(&r.RunID, &block, &r.BlockHash, &spec, &r.Index, &r.Pallet, &r.Call, &r.Error, &r.Bytes); err != nil {
			return nil, fmt.Errorf("storage: scan extrinsic: %w", err)
		}
		r.BlockNumber = uint64(block) //nolint:gosec // stored from uint64
		r.SpecVersion = uint32(spec)  //nolint:gosec // stored from uint32
		out = append(out, r)
	}
	return out, rows.Err()
}
