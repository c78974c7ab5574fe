package model

import (
	"errors"
	"fmt"
)

// DefinitionError reports a class or process definition rejected at
// registration time.
type DefinitionError struct {
	// Code identifies the error category.
	Code DefinitionErrorCode

	// Message is a human-readable description.
	Message string

	// Process is the offending process, if any.
	Process string

	// Transition is the offending transition, if any.
	Transition string
}

// DefinitionErrorCode categorizes definition errors.
type DefinitionErrorCode string

const (
	ErrCodeDuplicate      DefinitionErrorCode = "DUPLICATE"
	ErrCodeUnknownClass   DefinitionErrorCode = "UNKNOWN_CLASS"
	ErrCodeUnknownState   DefinitionErrorCode = "UNKNOWN_STATE"
	ErrCodeInvalidTrigger DefinitionErrorCode = "INVALID_TRIGGER"
	ErrCodeRankConflict   DefinitionErrorCode = "RANK_CONFLICT"
	ErrCodeInvalid        DefinitionErrorCode = "INVALID"
)

func (e *DefinitionError) Error() string {
	switch {
	case e.Process != "" && e.Transition != "":
		return fmt.Sprintf("%s: %s (process=%s, transition=%s)", e.Code, e.Message, e.Process, e.Transition)
	case e.Process != "":
		return fmt.Sprintf("%s: %s (process=%s)", e.Code, e.Message, e.Process)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsDefinitionError reports whether err wraps a DefinitionError with code.
func IsDefinitionError(err error, code DefinitionErrorCode) bool {
	var de *DefinitionError
	return errors.As(err, &de) && de.Code == code
}
