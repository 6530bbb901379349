package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Reconciliation and attendance state-conflict errors. All of these abort
// the atomic unit they occur in; callers recover by re-reading state.
var (
	ErrCapacityExceeded       = New("CAPACITY_EXCEEDED", http.StatusConflict, "class is full")
	ErrInvalidClassState      = New("INVALID_CLASS_STATE", http.StatusPreconditionFailed, "class does not accept enrollments")
	ErrDuplicateReservation   = New("DUPLICATE_RESERVATION", http.StatusConflict, "registration already covered by another payment")
	ErrStaleApproval          = New("STALE_APPROVAL", http.StatusPreconditionFailed, "approval request does not match payment registrations")
	ErrInconsistentDependents = New("INCONSISTENT_DEPENDENTS", http.StatusConflict, "payment dependents are not in the expected state")
	ErrTerminalState          = New("TERMINAL_STATE", http.StatusConflict, "payment is in a terminal state")
	ErrInvalidDeleteState     = New("INVALID_DELETE_STATE", http.StatusConflict, "only rejected payments can be deleted")
	ErrDuplicateSession       = New("DUPLICATE_SESSION_NUMBER", http.StatusConflict, "session number already exists for class")
	ErrAlreadyMarked          = New("ALREADY_MARKED", http.StatusConflict, "member already marked present")
	ErrInvalidSessionNumber   = New("INVALID_SESSION_NUMBER", http.StatusBadRequest, "session number out of range")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
