package job

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for unknown or expired job IDs.
var ErrNotFound = errors.New("job not found")

// ErrNotReady is returned when a result is requested before the job reaches
// a terminal phase.
var ErrNotReady = errors.New("job not ready")

// ErrRegressiveTransition is returned when a phase write would move a job
// backwards or out of a terminal state.
var ErrRegressiveTransition = errors.New("regressive phase transition")

// ExecutionError is the failure of a delegated collaborator during a phase.
type ExecutionError struct {
	Phase Phase
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s phase failed: %v", e.Phase, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
