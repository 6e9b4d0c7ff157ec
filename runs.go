package kiroku

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/kiroku/internal/model"
	"github.com/ashita-ai/kiroku/internal/storage"
)

// ErrNoSink is returned by run queries when no database is configured.
var ErrNoSink = errors.New("kiroku: no database configured (set DATABASE_URL)")

// startRun records a run when the sink is enabled. The returned ID is
// uuid.Nil otherwise.
func (a *App) startRun(ctx context.Context, cmd model.Command, params map[string]any) uuid.UUID {
	if a.db == nil {
		return uuid.Nil
	}
	run, err := a.db.CreateRun(ctx, model.CreateRunRequest{Command: cmd, Params: params})
	if err != nil {
		// Decoding is still useful without bookkeeping.
		a.logger.Warn("kiroku: could not record run", "command", cmd, "error", err)
		return uuid.Nil
	}
	a.logger.Info("kiroku: run started", "run_id", run.ID, "command", cmd)
	return run.ID
}

// finishRun marks the run completed or failed.
func (a *App) finishRun(ctx context.Context, id uuid.UUID, runErr error, summary map[string]any) {
	if a.db == nil || id == uuid.Nil {
		return
	}
	status := model.RunStatusCompleted
	if runErr != nil {
		status = model.RunStatusFailed
		summary["error"] = runErr.Error()
	}
	// Finish the record even when the run was interrupted.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := a.db.CompleteRun(ctx, id, status, summary); err != nil {
		a.logger.Warn("kiroku: could not complete run", "run_id", id, "error", err)
	}
}

// RunReport describes one recorded run.
type RunReport struct {
	Run    model.Run               `json:"run"`
	Counts storage.RunCounts       `json:"counts"`
	Errors []model.ExtrinsicRecord `json:"extrinsic_errors,omitempty"`
}

// ListRuns returns the most recent runs recorded in the sink.
func (a *App) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if a.db == nil {
		return nil, ErrNoSink
	}
	return a.db.ListRuns(ctx, limit)
}

// Run returns a recorded run with its record counts and up to errorLimit
// failed extrinsics.
func (a *App) Run(ctx context.Context, id uuid.UUID, errorLimit int) (*RunReport, error) {
	if a.db == nil {
		return nil, ErrNoSink
	}
	run, err := a.db.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	counts, err := a.db.CountRecords(ctx, id)
	if err != nil {
		return nil, err
	}
	report := &RunReport{Run: run, Counts: counts}
	if counts.ExtrinsicErrors > 0 {
		report.Errors, err = a.db.ListExtrinsicErrors(ctx, id, errorLimit)
		if err != nil {
			return nil, err
		}
	}
	return report, nil
}
