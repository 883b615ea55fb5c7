package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/phrazzld/measure-hub/internal/fhir"
	"github.com/stretchr/testify/assert"
)

func TestIsNotFoundError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "generic error",
			err:      errors.New("some error"),
			expected: false,
		},
		{
			name:     "ErrNotFound",
			err:      ErrNotFound,
			expected: true,
		},
		{
			name:     "resource not found",
			err:      &ResourceNotFoundError{Type: "Task", ID: "t1"},
			expected: true,
		},
		{
			name:     "wrapped resource not found",
			err:      fmt.Errorf("failed to fetch task: %w", &ResourceNotFoundError{Type: "Task", ID: "t1"}),
			expected: true,
		},
		{
			name:     "conflict",
			err:      ErrConflict,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsNotFoundError(tt.err))
		})
	}
}

func TestIsConflictError(t *testing.T) {
	assert.True(t, IsConflictError(fmt.Errorf("update task: %w", ErrConflict)))
	assert.False(t, IsConflictError(ErrNotFound))
	assert.False(t, IsConflictError(nil))
}

func TestResourceNotFoundError_Message(t *testing.T) {
	err := &ResourceNotFoundError{Type: "MeasureReport", ID: "r42"}
	assert.Equal(t, `MeasureReport with id "r42" not found`, err.Error())
}

func TestBadRequestError(t *testing.T) {
	err := &BadRequestError{Outcome: fhir.NewErrorOutcome("Task.status is required")}

	assert.True(t, errors.Is(err, ErrBadRequest))
	assert.Equal(t, "bad request: Task.status is required", err.Error())

	var bre *BadRequestError
	wrapped := fmt.Errorf("create task: %w", err)
	if assert.True(t, errors.As(wrapped, &bre)) {
		assert.Equal(t, "error", bre.Outcome.Issue[0].Severity)
	}

	assert.Equal(t, "bad request", (&BadRequestError{}).Error())
}

func TestStoreError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewStoreError("Task", "update", "request failed", cause)

	assert.Equal(t, "update operation on Task failed: request failed: connection refused", err.Error())
	assert.True(t, errors.Is(err, cause))

	bare := NewStoreError("Task", "read", "unexpected status 500", nil)
	assert.Equal(t, "read operation on Task failed: unexpected status 500", bare.Error())
}
