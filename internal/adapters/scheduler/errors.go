package scheduler

import "errors"

var (
	// ErrUnknownJob is returned when creating a job whose name has no registered callback.
	ErrUnknownJob = errors.New("no callback registered for job")
	// ErrStopped is returned after Stop.
	ErrStopped = errors.New("scheduler stopped")
)
