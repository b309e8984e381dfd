package runtest

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-runtest/exitcodes"
)

// RuntimeError is an operational failure of the run itself, such as an
// unreadable manifest or a dependency cycle. It leads to exit code 2.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// TestFailureError reports that at least one test did not pass (exit code 1).
type TestFailureError struct {
	Failed []string
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test failure: %d test(s) failed", len(e.Failed))
}

func NewTestFailureError(failed []string) *TestFailureError {
	return &TestFailureError{Failed: failed}
}

// IsTestFailureError checks if the error is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return err != nil && errors.As(err, &testErr)
}

// ExitCode maps err to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return exitcodes.Success
	case IsRuntimeError(err):
		return exitcodes.RuntimeErr
	default:
		return exitcodes.TestFailure
	}
}
