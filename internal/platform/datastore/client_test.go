package datastore

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/phrazzld/measure-hub/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)), config.DataStoreConfig{
		URL:         srv.URL + "/fhir",
		Timeout:     5 * time.Second,
		PeriodStart: "2000",
		PeriodEnd:   "2030",
	})
	require.NoError(t, err)
	return c
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fhir/Measure/$evaluate-measure", r.URL.Path)
		assert.Equal(t, "https://x/Measure/m", r.URL.Query().Get("measure"))
		assert.Equal(t, "2000", r.URL.Query().Get("periodStart"))
		assert.Equal(t, "2030", r.URL.Query().Get("periodEnd"))
		w.Header().Set("Content-Type", "application/fhir+json")
		_, _ = w.Write([]byte(`{"resourceType":"MeasureReport","status":"complete","type":"summary","measure":"https://x/Measure/m","group":[{"population":[]}]}`))
	})

	report, err := c.Evaluate(context.Background(), "https://x/Measure/m")
	require.NoError(t, err)
	assert.Equal(t, "complete", report.Status)
	assert.Equal(t, "https://x/Measure/m", report.Measure)
	assert.JSONEq(t, `[{"population":[]}]`, string(report.Group))
}

func TestEvaluate_ReportIsPassedOnWhole(t *testing.T) {
	t.Parallel()

	const evaluated = `{"resourceType":"MeasureReport","status":"complete","type":"summary","measure":"https://x/Measure/m",` +
		`"extension":[{"url":"https://example.org/ext","valueString":"v"}],"subject":{"reference":"Group/g1"},` +
		`"improvementNotation":{"coding":[{"code":"increase"}]},"evaluatedResource":[{"reference":"Patient/p1"}],` +
		`"group":[{"population":[]}]}`
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/fhir+json")
		_, _ = w.Write([]byte(evaluated))
	})

	report, err := c.Evaluate(context.Background(), "https://x/Measure/m")
	require.NoError(t, err)

	raw, err := json.Marshal(report)
	require.NoError(t, err)
	assert.JSONEq(t, evaluated, string(raw))
}

func TestEvaluate_OperationOutcome(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"resourceType":"OperationOutcome","issue":[{"severity":"error","code":"not-found","diagnostics":"Measure not found"}]}`))
	})

	_, err := c.Evaluate(context.Background(), "https://x/Measure/unknown")
	require.ErrorIs(t, err, ErrEvaluationFailed)
	assert.Contains(t, err.Error(), "Measure not found")
}

func TestEvaluate_UnexpectedBody(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"resourceType":"Bundle"}`))
	})

	_, err := c.Evaluate(context.Background(), "https://x/Measure/m")
	assert.ErrorIs(t, err, ErrEvaluationFailed)
}

func TestNewClient_InvalidURL(t *testing.T) {
	t.Parallel()

	_, err := NewClient(slog.Default(), config.DataStoreConfig{URL: "/relative"})
	assert.Error(t, err)
}
