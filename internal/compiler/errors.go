package compiler

import (
	"errors"
	"fmt"
)

// PipelineError represents a cooperative stop of the compilation pipeline:
// a handler cancelled or aborted the run, or a required file lock could not
// be obtained under strict policy.
type PipelineError struct {
	// Code identifies the error category.
	Code PipelineErrorCode

	// Stage names the checkpoint where the pipeline stopped.
	Stage string

	// Message is a human-readable description.
	Message string
}

// PipelineErrorCode categorizes pipeline stops.
type PipelineErrorCode string

const (
	// ErrCodeCancelled indicates a handler cancelled the run before it began.
	ErrCodeCancelled PipelineErrorCode = "CANCELLED"

	// ErrCodeAborted indicates a handler aborted the run at a validation
	// checkpoint.
	ErrCodeAborted PipelineErrorCode = "ABORTED"

	// ErrCodeLockFailed indicates a source file lock could not be acquired
	// under strict lock policy.
	ErrCodeLockFailed PipelineErrorCode = "LOCK_FAILED"
)

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s (stage=%s)", e.Code, e.Message, e.Stage)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsCancelled returns true if the error is a handler cancellation.
// Uses errors.As to handle wrapped errors.
func IsCancelled(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeCancelled
	}
	return false
}

// IsAborted returns true if the error is a validation abort.
func IsAborted(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeAborted
	}
	return false
}
