package notifier

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied is returned by Schedule when the user has refused
	// notifications. Nothing is delivered.
	ErrPermissionDenied = errors.New("notification permission denied")
	ErrStopped          = errors.New("notifier stopped")
)

// SchedulingError reports that a permitted notification could not be registered.
type SchedulingError struct {
	Op  string
	Err error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("schedule notification: %s: %v", e.Op, e.Err)
}

func (e *SchedulingError) Unwrap() error { return e.Err }
