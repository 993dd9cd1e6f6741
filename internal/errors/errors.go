// Package errors defines the error taxonomy shared by the store, the services and
// the HTTP transport. Every error that leaves a service boundary is one of the
// types below, so callers can map it to a response with errors.As.
package errors

import (
	"errors"
	"fmt"
)

// Standard error codes for the application.
const (
	CodeUnknown      = "UNKNOWN"
	CodeValidation   = "VALIDATION"
	CodeConnection   = "CONNECTION"
	CodeStorage      = "STORAGE"
	CodeFatalStartup = "FATAL_STARTUP"
)

// ApplicationError is the interface that all our custom errors implement.
type ApplicationError interface {
	error
	Code() string
	Unwrap() error
}

// Error represents a basic application error.
type Error struct {
	code    string
	message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}

	return e.message
}

func (e *Error) Code() string {
	return e.code
}

// Message returns the message without the wrapped cause.
func (e *Error) Message() string {
	return e.message
}

func (e *Error) Unwrap() error {
	return e.err
}

// Code returns the code of the first ApplicationError in err's chain,
// or CodeUnknown if it doesn't have one.
func Code(err error) string {
	var appErr ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Code()
	}

	return CodeUnknown
}

// ValidationError reports malformed or incomplete caller input. It never
// touches storage.
type ValidationError struct {
	base Error
}

func (e *ValidationError) Error() string  { return e.base.Error() }
func (e *ValidationError) Code() string   { return e.base.Code() }
func (e *ValidationError) Unwrap() error  { return e.base.Unwrap() }
func (e *ValidationError) Reason() string { return e.base.Message() }

func NewValidationError(message string, cause error) error {
	return &ValidationError{
		base: Error{
			code:    CodeValidation,
			message: message,
			err:     cause,
		},
	}
}

// ConnectionError reports that the backing store was unreachable when the
// operation ran.
type ConnectionError struct {
	base Error
}

func (e *ConnectionError) Error() string { return e.base.Error() }
func (e *ConnectionError) Code() string  { return e.base.Code() }
func (e *ConnectionError) Unwrap() error { return e.base.Unwrap() }

func NewConnectionError(message string, cause error) error {
	return &ConnectionError{
		base: Error{
			code:    CodeConnection,
			message: message,
			err:     cause,
		},
	}
}

// StorageError reports an operation that reached the store but failed there.
type StorageError struct {
	base Error
}

func (e *StorageError) Error() string { return e.base.Error() }
func (e *StorageError) Code() string  { return e.base.Code() }
func (e *StorageError) Unwrap() error { return e.base.Unwrap() }

func NewStorageError(message string, cause error) error {
	return &StorageError{
		base: Error{
			code:    CodeStorage,
			message: message,
			err:     cause,
		},
	}
}

// FatalStartupError is returned when the initial connection cannot be
// established in fail-fast mode. The process exits with status 1 on it.
type FatalStartupError struct {
	base Error
}

func (e *FatalStartupError) Error() string { return e.base.Error() }
func (e *FatalStartupError) Code() string  { return e.base.Code() }
func (e *FatalStartupError) Unwrap() error { return e.base.Unwrap() }

func NewFatalStartupError(message string, cause error) error {
	return &FatalStartupError{
		base: Error{
			code:    CodeFatalStartup,
			message: message,
			err:     cause,
		},
	}
}

// IsValidation reports whether err's chain contains a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsConnection reports whether err's chain contains a ConnectionError.
func IsConnection(err error) bool {
	var target *ConnectionError
	return errors.As(err, &target)
}

// IsStorage reports whether err's chain contains a StorageError.
func IsStorage(err error) bool {
	var target *StorageError
	return errors.As(err, &target)
}

// IsFatalStartup reports whether err's chain contains a FatalStartupError.
func IsFatalStartup(err error) bool {
	var target *FatalStartupError
	return errors.As(err, &target)
}

// ValidationReason returns the human readable reason of the first
// ValidationError in err's chain, or an empty string.
func ValidationReason(err error) string {
	var target *ValidationError
	if errors.As(err, &target) {
		return target.Reason()
	}
	return ""
}
