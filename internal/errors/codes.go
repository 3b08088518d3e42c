// Package errors provides the coded error type shared by the workflow engine,
// the storage backends and the HTTP layer.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an error that carries no domain code.
	CodeUnknown Code = "UNKNOWN"

	// Input errors
	CodeValidation Code = "VALIDATION"

	// Lifecycle errors
	CodeInvalidState             Code = "INVALID_STATE"
	CodeDimensionAlreadyAssigned Code = "DIMENSION_ALREADY_ASSIGNED"
	CodeEmptySurvey              Code = "EMPTY_SURVEY"

	// Access errors
	CodePermissionDenied Code = "PERMISSION_DENIED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
	CodeInternal Code = "INTERNAL"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeInvalidState, CodeDimensionAlreadyAssigned:
		return http.StatusConflict
	case CodeEmptySurvey:
		return http.StatusUnprocessableEntity
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
