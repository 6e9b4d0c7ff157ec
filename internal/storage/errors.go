package storage

import "errors"

var (
	// ErrNotFound is returned when a run does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrRunFinished is returned when completing a run that already completed
	// or failed.
	ErrRunFinished = errors.New("storage: run already finished")
)
