package booking

import (
	"errors"
	"fmt"
	"strings"
)

// Domain-level error values returned by the booking core.
var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidState         = errors.New("invalid state")
	ErrDeadlinePassed       = errors.New("cancellation deadline passed")
	ErrExpired              = errors.New("transfer expired")
	ErrForbidden            = errors.New("forbidden")
	ErrValidation           = errors.New("invalid input")
	ErrConflict             = errors.New("scheduling conflict")
	ErrAlreadyExists        = errors.New("already exists")
	ErrAttendanceWindow     = errors.New("attendance window")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// ConflictError carries the ids of the bookings that overlap the requested
// course so the caller can decide whether to override them.
type ConflictError struct {
	BookingIDs []string
}

// Error returns the formatted error message.
func (conflictError ConflictError) Error() string {
	return fmt.Sprintf("scheduling conflict with bookings [%s]", strings.Join(conflictError.BookingIDs, ", "))
}

// Unwrap lets callers branch with errors.Is(err, ErrConflict).
func (conflictError ConflictError) Unwrap() error {
	return ErrConflict
}

// NewConflictError wraps the conflicting booking ids.
func NewConflictError(bookingIDs []string) error {
	return ConflictError{BookingIDs: bookingIDs}
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
