// Package model defines the records kiroku persists: decode runs and the
// per-extrinsic and per-storage-item results they produce.
package model

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the lifecycle state of a decode run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Command names the kind of work a run performs.
type Command string

const (
	CommandDecodeBlocks       Command = "decode-blocks"
	CommandDecodeStorageItems Command = "decode-storage-items"
)

// Run is one invocation of a decode command.
type Run struct {
	ID          uuid.UUID      `json:"id"`
	Command     Command        `json:"command"`
	Status      RunStatus      `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Params      map[string]any `json:"params"`
	Summary     map[string]any `json:"summary,omitempty"`
}

// CreateRunRequest holds the fields needed to start a run.
type CreateRunRequest struct {
	Command Command        `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}
