// Package apperr defines the stable error taxonomy shared by every public
// operation. Error codes never change meaning once shipped; messages carry
// the offending ids and values, and Detail carries structured,
// machine-readable context for callers that want more than a string.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a stable, comparable error classification.
type Code string

const (
	// Not-found family
	NotFound          Code = "NotFound"
	NoHistory         Code = "NoHistory"
	NoBackups         Code = "NoBackups"
	NoPath            Code = "NoPath"
	NoLink            Code = "NoLink"
	NoActiveSession   Code = "NoActiveSession"
	NoConfig          Code = "NoConfig"

	// Conflict family
	VaultExists         Code = "VaultExists"
	IdCollision         Code = "IdCollision"
	ActiveSessionExists Code = "ActiveSessionExists"
	AlreadyOpen         Code = "AlreadyOpen"
	InvalidTransition   Code = "InvalidTransition"

	// Validation family
	ValidationFailed Code = "ValidationFailed"
	EmptyQuery       Code = "EmptyQuery"
	UnknownType      Code = "UnknownType"
	InvalidFormat    Code = "InvalidFormat"
	NoChanges        Code = "NoChanges"

	// Batch family
	BatchFailed  Code = "BatchFailed"
	BatchPartial Code = "BatchPartial"

	// Infra family
	CheckFailed         Code = "CheckFailed"
	BackupFailed        Code = "BackupFailed"
	MigrationFailed     Code = "MigrationFailed"
	StampFailed         Code = "StampFailed"
	SemanticUnavailable Code = "SemanticUnavailable"
	FileNotFound        Code = "FileNotFound"

	// Storage classification (internal, surfaced via Detail on Storage errors)
	StorageRecoverable Code = "StorageRecoverable"
	StorageFatal       Code = "StorageFatal"
)

// Error is the concrete error type carried in result.error.
type Error struct {
	Code    Code
	Message string
	Detail  any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error with no detail and no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf constructs an *Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetail attaches machine-readable context and returns the receiver for
// chaining at the call site.
func (e *Error) WithDetail(detail any) *Error {
	e.Detail = detail
	return e
}

// Wrap attaches an underlying cause, used when translating an infrastructure
// error into the public taxonomy.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Is reports whether err is an *Error carrying the given code.
func Is(err error, code Code) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// CodeOf extracts the Code of err, or "" if err is not an *Error.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
