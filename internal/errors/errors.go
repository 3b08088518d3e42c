package errors

import (
	stderrors "errors"
	"fmt"
)

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Human-readable message
	Metadata map[string]string // Additional context (ids, fields)
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a simple domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// WithMetadata creates a domain error carrying metadata.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Metadata: metadata,
	}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Sentinels for errors.Is comparisons by code.
var (
	ErrValidation             = New(CodeValidation, "validation failed")
	ErrInvalidState           = New(CodeInvalidState, "invalid state")
	ErrDimensionAlreadyAssign = New(CodeDimensionAlreadyAssigned, "dimension already assigned")
	ErrEmptySurvey            = New(CodeEmptySurvey, "survey has no dimensions")
	ErrPermissionDenied       = New(CodePermissionDenied, "permission denied")
	ErrNotFound               = New(CodeNotFound, "not found")
)

// CodeOf returns the code of the first *Error in err's chain, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Validation is shorthand for a CodeValidation error.
func Validation(format string, args ...any) *Error {
	return Newf(CodeValidation, format, args...)
}

// InvalidState is shorthand for a CodeInvalidState error.
func InvalidState(format string, args ...any) *Error {
	return Newf(CodeInvalidState, format, args...)
}

// NotFound builds a CodeNotFound error for the given entity kind and id.
func NotFound(kind, id string) *Error {
	return WithMetadata(CodeNotFound, fmt.Sprintf("%s not found: %s", kind, id), map[string]string{
		"kind": kind,
		"id":   id,
	})
}

// DimensionAlreadyAssigned builds the claim-race error for a dimension.
func DimensionAlreadyAssigned(evaluationID, dimensionID string, cause error) *Error {
	return &Error{
		Code:    CodeDimensionAlreadyAssigned,
		Message: fmt.Sprintf("dimension %s is already assigned in evaluation %s", dimensionID, evaluationID),
		Metadata: map[string]string{
			"evaluation_id": evaluationID,
			"dimension_id":  dimensionID,
		},
		Cause: cause,
	}
}
