package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOfWrappedError(t *testing.T) {
	base := Validation("comments are required")
	wrapped := fmt.Errorf("review: %w", base)

	assert.Equal(t, CodeValidation, CodeOf(wrapped))
	assert.True(t, HasCode(wrapped, CodeValidation))
	assert.True(t, stderrors.Is(wrapped, ErrValidation))
	assert.False(t, stderrors.Is(wrapped, ErrInvalidState))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, CodeUnknown, CodeOf(stderrors.New("boom")))
	assert.False(t, HasCode(nil, CodeValidation))
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := DimensionAlreadyAssigned("ev-1", "dim-1", stderrors.New("UNIQUE constraint failed"))

	assert.Contains(t, err.Error(), "dim-1")
	assert.Contains(t, err.Error(), "UNIQUE constraint failed")
	assert.Equal(t, "ev-1", err.Metadata["evaluation_id"])
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:               http.StatusBadRequest,
		CodeInvalidState:             http.StatusConflict,
		CodeDimensionAlreadyAssigned: http.StatusConflict,
		CodeEmptySurvey:              http.StatusUnprocessableEntity,
		CodePermissionDenied:         http.StatusForbidden,
		CodeNotFound:                 http.StatusNotFound,
		CodeInternal:                 http.StatusInternalServerError,
		CodeUnknown:                  http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, code.HTTPStatus(), string(code))
	}
}
