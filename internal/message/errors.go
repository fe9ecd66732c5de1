package message

import (
	"errors"
	"fmt"
)

// Error is the messaging-layer error raised for both configuration-time and
// execution-time failures. It wraps the underlying cause.
type Error struct {
	// Code identifies the failure category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes messaging errors.
type ErrorCode string

const (
	// ErrCodeConfiguration indicates invalid or incomplete configuration:
	// conflicting query sources, missing query, missing parameters.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION"

	// ErrCodeExecution indicates the query engine failed while preparing,
	// binding or executing a query.
	ErrCodeExecution ErrorCode = "EXECUTION"

	// ErrCodeResultMapping indicates a result item could not be coerced to
	// the requested type.
	ErrCodeResultMapping ErrorCode = "RESULT_MAPPING"

	// ErrCodePayloadConversion indicates the payload could not be turned
	// into an XML node.
	ErrCodePayloadConversion ErrorCode = "PAYLOAD_CONVERSION"

	// ErrCodeResource indicates a query resource could not be read.
	ErrCodeResource ErrorCode = "RESOURCE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error without a cause.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates an Error wrapping err.
func WrapError(code ErrorCode, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var me *Error
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}

// IsConfigError reports whether err is a configuration-time failure.
func IsConfigError(err error) bool {
	return CodeOf(err) == ErrCodeConfiguration
}

// IsExecutionError reports whether err is an execution-time engine failure.
func IsExecutionError(err error) bool {
	return CodeOf(err) == ErrCodeExecution
}

// IsMappingError reports whether err is a result coercion failure.
func IsMappingError(err error) bool {
	return CodeOf(err) == ErrCodeResultMapping
}
