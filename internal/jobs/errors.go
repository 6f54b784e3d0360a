package jobs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown job ids (stale links, restarted process).
	ErrNotFound = errors.New("job not found")
	// ErrNotReady is returned when outputs are requested before completion.
	ErrNotReady = errors.New("job not completed")
	// ErrEmpty is returned when a completed job produced no files.
	ErrEmpty = errors.New("job produced no output files")
	// ErrConflict is returned when a runner is started twice for one job.
	ErrConflict = errors.New("job already started")
	// ErrTerminal is returned when mutating a completed or failed job.
	ErrTerminal = errors.New("job already finished")
	// ErrInvalidTransition is returned for status changes outside the state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotRunning is returned when cancel is requested for a job without a live task.
	ErrNotRunning = errors.New("job is not running")
	// ErrCancelled is the failure reason of cancelled jobs.
	ErrCancelled = errors.New("cancelled")
)

// SpawnError reports that the segmentation process could not be started.
type SpawnError struct {
	Bin string
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("could not start %s: %v", e.Bin, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// ProcessError reports a non-zero exit of the segmentation process.
type ProcessError struct {
	ExitCode   int
	Diagnostic string // last line ffmpeg wrote to stderr
}

func (e *ProcessError) Error() string {
	if e.Diagnostic != "" {
		return e.Diagnostic
	}
	return fmt.Sprintf("ffmpeg exited %d", e.ExitCode)
}
