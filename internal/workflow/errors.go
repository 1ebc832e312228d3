package workflow

import (
	"errors"
	"fmt"
)

// ErrFatalInvariant aborts a ledger mutation that would break a contract or
// request invariant. The surrounding transaction is always rolled back.
var ErrFatalInvariant = errors.New("fatal invariant violation")

// CollaboratorError wraps a storage or transport failure of an external
// collaborator. Callers may retry the operation.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

func collaboratorFailure(op string, err error) error {
	return &CollaboratorError{Op: op, Err: err}
}

func fatalf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFatalInvariant, fmt.Sprintf(format, args...))
}
