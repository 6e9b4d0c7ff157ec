package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/kiroku/internal/model"
)

// CreateRun inserts a new running run and returns it.
func (db *DB) CreateRun(ctx context.Context, req model.CreateRunRequest) (model.Run, error) {
	run := model.Run{
		ID:        uuid.New(),
		Command:   req.Command,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
		Params:    req.Params,
	}
	if run.Params == nil {
		run.Params = map[string]any{}
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO runs (id, command, status, started_at, params)
		 VALUES ($1, $2, $3, $4, $5)`,
		run.ID, string(run.Command), string(run.Status), run.StartedAt, run.Params,
	)
	if err != nil {
		return model.Run{}, fmt.Errorf("storage: create run: %w", err)
	}
	return run, nil
}

// GetRun retrieves a run by ID.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (model.Run, error) {
	var run model.Run
	err := db.pool.QueryRow(ctx,
		`SELECT id, command, status, started_at, completed_at, params, summary
		 FROM runs WHERE id = $1`, id,
	).Scan(&run.ID, &run.Command, &run.Status, &run.StartedAt, &run.CompletedAt, &run.Params, &run.Summary)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Run{}, fmt.Errorf("storage: run %s: %w", id, ErrNotFound)
		}
		return model.Run{}, fmt.Errorf("storage: get run: %w", err)
	}
	return run, nil
}

// CompleteRun marks a running run as completed or failed and merges summary
// into its recorded summary.
func (db *DB) CompleteRun(ctx context.Context, id uuid.UUID, status model.RunStatus, summary map[string]any) error {
	if summary == nil {
		summary = map[string]any{}
	}
	var rows int64
	err := WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		tag, err := db.pool.Exec(ctx,
			`UPDATE runs SET status = $1, completed_at = $2, summary = summary || $3
			 WHERE id = $4 AND status = 'running'`,
			string(status), time.Now().UTC(), summary, id,
		)
		rows = tag.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("storage: complete run: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("storage: complete run %s: %w", id, ErrRunFinished)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, command, status, started_at, completed_at, params, summary
		 FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list runs: %w", err)
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		if err := rows.Scan(&r.ID, &r.Command, &r.Status, &r.StartedAt, &r.CompletedAt, &r.Params, &r.Summary); err != nil {
			return nil, fmt.Errorf("storage: scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
