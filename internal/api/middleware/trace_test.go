package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/measure-hub/internal/api/shared"
	"github.com/phrazzld/measure-hub/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceMiddleware(t *testing.T) {
	log, buf := logger.GetTestLogger(t)

	var traceID, requestID string
	handler := chimiddleware.RequestID(NewTraceMiddleware(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = shared.GetTraceID(r.Context())
		requestID = logger.RequestID(r.Context())
		logger.FromContext(r.Context()).Info("handled")
		w.WriteHeader(http.StatusNoContent)
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/pipelines", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotEmpty(t, traceID)
	require.NotEmpty(t, requestID)

	entries, err := buf.FindEntries("handled")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, traceID, entries[0]["trace_id"])
	assert.Equal(t, requestID, entries[0]["request_id"])

	started, err := buf.FindEntries("request started")
	require.NoError(t, err)
	require.Len(t, started, 1)
	assert.Equal(t, "/api/pipelines", started[0]["path"])
}
