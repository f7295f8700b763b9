// Package pipeline implements the per-record stages: decode -> validate -> process.
package pipeline

import "errors"

// Common pipeline errors.
var (
	// ErrContextCanceled indicates the caller's context was canceled.
	// Stages may return this error directly (or wrapped) when ctx.Done() is signaled.
	ErrContextCanceled = errors.New("context canceled")
)

// ProcessError represents a failure in the process stage.
// It wraps the error returned by the business handler.
type ProcessError struct {
	Err error
}

func (e *ProcessError) Error() string {
	if e == nil || e.Err == nil {
		return "process failed"
	}
	return "process failed: " + e.Err.Error()
}

func (e *ProcessError) Unwrap() error { return e.Err }
