// Package errors provides error code definitions shared across the core.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique, user-surfaceable error code.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrDuplicate  ErrorCode = "DUPLICATE"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Storage errors
	ErrDatabase         ErrorCode = "DATABASE_ERROR"
	ErrMigration        ErrorCode = "MIGRATION_FAILED"
	ErrStorageExhausted ErrorCode = "STORAGE_EXHAUSTED"

	// Queue errors
	ErrOpNotFound       ErrorCode = "OPERATION_NOT_FOUND"
	ErrMalformedPayload ErrorCode = "MALFORMED_PAYLOAD"
	ErrRetryExhausted   ErrorCode = "RETRY_EXHAUSTED"

	// Remote boundary errors
	ErrRemoteUnavailable ErrorCode = "REMOTE_UNAVAILABLE"
	ErrRemoteRejected    ErrorCode = "REMOTE_REJECTED"
	ErrDuplicateName     ErrorCode = "DUPLICATE_NAME"

	// Sync errors
	ErrSyncFailed  ErrorCode = "SYNC_FAILED"
	ErrSyncTimeout ErrorCode = "SYNC_TIMEOUT"
	ErrSyncLocked  ErrorCode = "SYNC_LOCKED"
	ErrSyncOffline ErrorCode = "SYNC_OFFLINE"
	ErrCircuitOpen ErrorCode = "CIRCUIT_OPEN"
	ErrConflict    ErrorCode = "SYNC_CONFLICT"

	// An operation references an entity whose creation has not been
	// replayed yet. The reference may resolve on a later pass.
	ErrUnresolvedRef ErrorCode = "UNRESOLVED_REFERENCE"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error carries a specific code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// CodeOf returns the error code of the first AppError in the chain, or
// ErrInternal when the error carries no code.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// IsTransient reports whether a failed operation should stay queued and be
// retried: network-class failures and timeouts, plus lock contention.
func IsTransient(err error) bool {
	switch CodeOf(err) {
	case ErrRemoteUnavailable, ErrSyncTimeout, ErrSyncLocked, ErrDatabase, ErrUnresolvedRef:
		return true
	}
	return false
}

// IsTerminal reports whether an operation can never succeed as queued:
// rejected by validation, malformed, or a duplicate of existing state.
func IsTerminal(err error) bool {
	switch CodeOf(err) {
	case ErrRemoteRejected, ErrMalformedPayload, ErrValidation, ErrDuplicateName, ErrDuplicate, ErrInvalid:
		return true
	}
	return false
}
