package dspot

import (
	"errors"
	"fmt"
	"strings"
)

// RuntimeError reports that dspot could not do its job: bad configuration, a
// binary that cannot be loaded, a run cut short by its budget, an output file
// that cannot be written. It maps to exit code 2.
type RuntimeError struct {
	Stage string // what was being done, e.g. "config" or "output"
	Err   error
}

func (e *RuntimeError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("runtime error: %v", e.Err)
	}
	return fmt.Sprintf("runtime error during %s: %v", e.Stage, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func NewRuntimeError(stage string, err error) *RuntimeError {
	return &RuntimeError{Stage: stage, Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return errors.As(err, &runtimeErr)
}

// TestFailureError reports jobs that ran to completion with failing
// variants. It maps to exit code 1.
type TestFailureError struct {
	Jobs []string
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("failing variants in %s", strings.Join(e.Jobs, ", "))
}

func NewTestFailureError(jobs ...string) *TestFailureError {
	return &TestFailureError{Jobs: jobs}
}

// IsTestFailureError checks if the error is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return errors.As(err, &testErr)
}
