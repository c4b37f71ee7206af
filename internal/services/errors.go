package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no live status exists for the job.
	ErrNotFound = errors.New("job not found")
	// ErrInvalidInput is returned by pre-invocation validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrLookupFailed means the original input for a retry or regeneration could not be located.
	ErrLookupFailed = errors.New("original input could not be located")
	// ErrJobInProgress is returned when an invocation for the same job is still running.
	ErrJobInProgress = errors.New("job is already running")
	// ErrCollaboratorFailed wraps every normalization-service failure.
	ErrCollaboratorFailed = errors.New("normalization service failed")
)

// Failure classes recorded on failed statuses.
const (
	ClassTimeout           = "timeout"
	ClassConnectionRefused = "connection-refused"
	ClassUnavailable       = "unavailable"
	ClassRemoteRejected    = "remote-rejected"
	ClassInvalidResponse   = "invalid-response"
)

// ValidationError names the offending field and value.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s: %s (%q)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// InvocationError describes why a call to the normalization service failed.
type InvocationError struct {
	Class   string
	Message string
	Cause   error
}

func (e *InvocationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Class, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Message)
}

func (e *InvocationError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrCollaboratorFailed}
	}
	return []error{ErrCollaboratorFailed, e.Cause}
}

// LookupError reports which stores were consulted for a job's original input.
type LookupError struct {
	JobID string
	Cause error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("original input for job %s could not be located in case storage or the submission fallback store", e.JobID)
}

func (e *LookupError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrLookupFailed}
	}
	return []error{ErrLookupFailed, e.Cause}
}
