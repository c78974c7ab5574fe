package engine

import (
	"errors"
	"fmt"

	"github.com/SacredTexts/huly/internal/ir"
)

// StepError reports an abandoned step: an action failed or panicked while a
// transition was being executed. The execution is left untouched and the
// triggering transaction is still forwarded.
type StepError struct {
	// Code identifies the error category.
	Code StepErrorCode

	// Message is a human-readable description.
	Message string

	// Execution identifies the affected execution.
	Execution ir.Ref

	// Transition identifies the transition being executed.
	Transition string

	// Action is the failing action's method, with its index.
	Action string

	// Cause is the underlying error, if any.
	Cause error
}

// StepErrorCode categorizes step errors.
type StepErrorCode string

const (
	// ErrCodeUnknownAction indicates an action method with no registered implementation.
	ErrCodeUnknownAction StepErrorCode = "UNKNOWN_ACTION"

	// ErrCodeActionFailed indicates an action returned an error.
	ErrCodeActionFailed StepErrorCode = "ACTION_FAILED"

	// ErrCodeActionPanic indicates an action panicked.
	ErrCodeActionPanic StepErrorCode = "ACTION_PANIC"
)

// Error implements the error interface.
func (e *StepError) Error() string {
	msg := fmt.Sprintf("%s: %s (execution=%s, transition=%s, action=%s)", e.Code, e.Message, e.Execution, e.Transition, e.Action)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *StepError) Unwrap() error {
	return e.Cause
}

// IsStepError returns true if err is or wraps a StepError.
func IsStepError(err error) bool {
	var se *StepError
	return errors.As(err, &se)
}
