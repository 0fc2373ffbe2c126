package workflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for the manager's failure taxonomy. Wrap with %w and test
// with errors.Is.
var (
	// ErrValidation reports a malformed definition or an operation that the
	// workflow's current state forbids. Always synchronous, never retried.
	ErrValidation = errors.New("workflow: validation failed")

	// ErrNotFound reports a workflow ID unknown to both the in-memory
	// repository and the external store.
	ErrNotFound = errors.New("workflow: not found")

	// ErrPersistence reports a failed write to the external store. Under the
	// fail-open policy it is logged and swallowed; fail-closed surfaces it.
	ErrPersistence = errors.New("workflow: persistence failed")
)

// Error wraps a failure with the operation and workflow it occurred in.
type Error struct {
	Op         string // the manager operation, e.g. "create", "advance"
	WorkflowID string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.WorkflowID != "" {
		return fmt.Sprintf("workflow %s: %s: %s", e.WorkflowID, e.Op, e.Err.Error())
	}
	return fmt.Sprintf("workflow: %s: %s", e.Op, e.Err.Error())
}

// Unwrap allows errors.Is and errors.As to reach the sentinel.
func (e *Error) Unwrap() error {
	return e.Err
}

func opErr(op, id string, err error) *Error {
	return &Error{Op: op, WorkflowID: id, Err: err}
}
