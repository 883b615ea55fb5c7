package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/measure-hub/internal/api/shared"
	"github.com/phrazzld/measure-hub/internal/store"
)

// ErrPipelineNotFound is returned for a pipeline name that is not registered.
var ErrPipelineNotFound = errors.New("pipeline not found")

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, ErrPipelineNotFound):
		return http.StatusNotFound

	// The task store answers the health check; any failure of it means the
	// hub cannot work.
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrBadRequest),
		errors.As(err, new(*store.StoreError)):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, ErrPipelineNotFound):
		return "Pipeline not found"
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrBadRequest),
		errors.As(err, new(*store.StoreError)):
		return "Task store unavailable"
	default:
		return "An unexpected error occurred"
	}
}

// respondWithError maps err and writes the matching error response.
func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
}
