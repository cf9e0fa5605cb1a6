package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while applying a command.
//
// Runtime errors include:
//   - Unknown names: a store, view or join the catalog does not declare
//   - Invalid records: a record that does not fit its store's field kinds
//   - Stopped or saturated engines
//
// Absent join references and incomplete joins are never errors.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Source names the store, view or join involved.
	Source string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownStore indicates a store the catalog does not declare.
	ErrCodeUnknownStore RuntimeErrorCode = "UNKNOWN_STORE"

	// ErrCodeUnknownView indicates a view the catalog does not declare.
	ErrCodeUnknownView RuntimeErrorCode = "UNKNOWN_VIEW"

	// ErrCodeUnknownJoin indicates a join the catalog does not declare.
	ErrCodeUnknownJoin RuntimeErrorCode = "UNKNOWN_JOIN"

	// ErrCodeInvalidRecord indicates a record rejected by its store definition
	// or a malformed join key.
	ErrCodeInvalidRecord RuntimeErrorCode = "INVALID_RECORD"

	// ErrCodeEngineStopped indicates the command queue is closed.
	ErrCodeEngineStopped RuntimeErrorCode = "ENGINE_STOPPED"

	// ErrCodeQueueFull indicates the command queue is at capacity.
	ErrCodeQueueFull RuntimeErrorCode = "QUEUE_FULL"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Source != "" {
		msg = fmt.Sprintf("%s (source=%s)", msg, e.Source)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsUnknown returns true if err reports an undeclared store, view or join.
// Uses errors.As to handle wrapped errors.
func IsUnknown(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		switch re.Code {
		case ErrCodeUnknownStore, ErrCodeUnknownView, ErrCodeUnknownJoin:
			return true
		}
	}
	return false
}

// IsInvalid returns true if err reports a rejected record or key.
func IsInvalid(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re) && re.Code == ErrCodeInvalidRecord
}

// IsStopped returns true if err reports a stopped engine.
func IsStopped(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re) && re.Code == ErrCodeEngineStopped
}

func newUnknownError(code RuntimeErrorCode, kind, name string) *RuntimeError {
	return &RuntimeError{
		Code:    code,
		Message: fmt.Sprintf("%s is not declared in the catalog", kind),
		Source:  name,
	}
}

// NewInvalidRecordError creates a RuntimeError for a rejected record.
func NewInvalidRecordError(source, id string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidRecord,
		Message: "record rejected",
		Source:  source,
		Details: map[string]string{"id": id},
		Err:     cause,
	}
}

var errStopped = &RuntimeError{Code: ErrCodeEngineStopped, Message: "engine is stopped"}
