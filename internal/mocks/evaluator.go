package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/measure-hub/internal/fhir"
)

// MockEvaluator evaluates measures with EvaluateFn and records the URLs it
// was asked for.
type MockEvaluator struct {
	mu    sync.Mutex
	calls []string

	EvaluateFn func(ctx context.Context, measureURL string) (*fhir.MeasureReport, error)
}

// Evaluate returns EvaluateFn's result, or a complete report without id.
func (m *MockEvaluator) Evaluate(ctx context.Context, measureURL string) (*fhir.MeasureReport, error) {
	m.mu.Lock()
	m.calls = append(m.calls, measureURL)
	m.mu.Unlock()

	if m.EvaluateFn != nil {
		return m.EvaluateFn(ctx, measureURL)
	}
	return &fhir.MeasureReport{Status: "complete", Type: "summary", Measure: measureURL}, nil
}

// Calls returns the measure URLs evaluated so far.
func (m *MockEvaluator) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}
