package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"iter"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/measure-hub/internal/fhir"
	"github.com/phrazzld/measure-hub/internal/messaging"
	"github.com/phrazzld/measure-hub/internal/mocks"
	"github.com/phrazzld/measure-hub/internal/platform/beam"
	"github.com/phrazzld/measure-hub/internal/store"
	"github.com/phrazzld/measure-hub/internal/watermark"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var responderEpoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newClockedStore() *mocks.MockTaskStore {
	s := mocks.NewMockTaskStore()
	s.Now = newFakeClock().Now
	return s
}

func newTestResponder(s *mocks.MockTaskStore, b messaging.Broker, marks watermark.Store) *Responder {
	p := NewResponder(s, b, marks, 10*time.Millisecond, discardLogger())
	p.now = func() time.Time { return responderEpoch }
	return p
}

func completedTask(reportID string) *fhir.Task {
	task := readyTask("https://x/Measure/m")
	task.Status = fhir.TaskStatusCompleted
	ref := fhir.NewReference("MeasureReport", reportID)
	task.Output = []fhir.TaskParameter{{
		Type:           fhir.NewCodeableConcept(fhir.CodeSystemTaskOutput, fhir.OutputMeasureReport),
		ValueReference: &ref,
	}}
	return task
}

func failedTask(reason string) *fhir.Task {
	task := readyTask("https://x/Measure/m")
	task.Status = fhir.TaskStatusFailed
	if reason != "" {
		task.Output = []fhir.TaskParameter{{
			Type:        fhir.NewCodeableConcept(fhir.CodeSystemTaskOutput, fhir.OutputError),
			ValueString: reason,
		}}
	}
	return task
}

func decodeAnswer(t *testing.T, a mocks.Answer, resourceType string, v any) {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(a.Body)
	require.NoError(t, err)
	require.NoError(t, fhir.Decode(raw, resourceType, v))
}

func TestResponder_AnswersCompletedTask(t *testing.T) {
	t.Parallel()

	s := newClockedStore()
	s.PutMeasureReport(&fhir.MeasureReport{ID: "r42", Status: "complete", Measure: "https://x/Measure/m"})
	s.PutTask(completedTask("r42"))

	fake := mocks.NewFakeBeam()
	broker, err := messaging.NewBeamBroker(fake, discardLogger())
	require.NoError(t, err)

	_, err = newTestResponder(s, broker, watermark.NewMemory()).sweep(context.Background(), responderEpoch)
	require.NoError(t, err)

	answers := fake.Answers()
	require.Len(t, answers, 1)
	assert.Equal(t, "msg-1", answers[0].TaskID)
	assert.Equal(t, []string{"dest-1"}, answers[0].To)
	assert.Equal(t, beam.StatusSucceeded, answers[0].Status)

	var report fhir.MeasureReport
	decodeAnswer(t, answers[0], "MeasureReport", &report)
	assert.Equal(t, "r42", report.ID)
	assert.Equal(t, "https://x/Measure/m", report.Measure)
}

func TestResponder_AnswerCarriesTheStoredReport(t *testing.T) {
	t.Parallel()

	const stored = `{"resourceType":"MeasureReport","id":"r42","status":"complete","type":"summary",` +
		`"measure":"https://x/Measure/m","extension":[{"url":"https://example.org/ext","valueString":"v"}],` +
		`"subject":{"reference":"Group/g1"},"reporter":{"reference":"Organization/o1"},` +
		`"group":[{"population":[{"count":3}]}]}`
	var report fhir.MeasureReport
	require.NoError(t, json.Unmarshal([]byte(stored), &report))

	s := newClockedStore()
	s.PutMeasureReport(&report)
	s.PutTask(completedTask("r42"))

	fake := mocks.NewFakeBeam()
	broker, err := messaging.NewBeamBroker(fake, discardLogger())
	require.NoError(t, err)

	_, err = newTestResponder(s, broker, watermark.NewMemory()).sweep(context.Background(), responderEpoch)
	require.NoError(t, err)

	answers := fake.Answers()
	require.Len(t, answers, 1)
	raw, err := base64.StdEncoding.DecodeString(answers[0].Body)
	require.NoError(t, err)

	var answered map[string]any
	require.NoError(t, json.Unmarshal(raw, &answered))
	assert.Equal(t, []any{map[string]any{"url": "https://example.org/ext", "valueString": "v"}}, answered["extension"])
	assert.Equal(t, map[string]any{"reference": "Group/g1"}, answered["subject"])
	assert.Equal(t, map[string]any{"reference": "Organization/o1"}, answered["reporter"])
}

func TestResponder_AnswersFailedTask(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		task        *fhir.Task
		diagnostics string
	}{
		{
			name:        "error output",
			task:        failedTask("Missing Measure URL in Task input."),
			diagnostics: "Missing Measure URL in Task input.",
		},
		{
			name:        "no error output",
			task:        failedTask(""),
			diagnostics: "Task failed.",
		},
		{
			name: "completed without report",
			task: func() *fhir.Task {
				task := completedTask("r1")
				task.Output = nil
				return task
			}(),
			diagnostics: "Missing MeasureReport reference in Task output.",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := newClockedStore()
			s.PutTask(tc.task)
			fake := mocks.NewFakeBeam()
			broker, err := messaging.NewBeamBroker(fake, discardLogger())
			require.NoError(t, err)

			_, err = newTestResponder(s, broker, watermark.NewMemory()).sweep(context.Background(), responderEpoch)
			require.NoError(t, err)

			answers := fake.Answers()
			require.Len(t, answers, 1)
			assert.Equal(t, beam.StatusPermFailed, answers[0].Status)

			var outcome fhir.OperationOutcome
			decodeAnswer(t, answers[0], "OperationOutcome", &outcome)
			assert.Equal(t, tc.diagnostics, outcome.Summary())
		})
	}
}

func TestResponder_ResponseMessage(t *testing.T) {
	t.Parallel()

	s := newClockedStore()
	s.PutTask(failedTask("boom"))
	b := &mocks.MockBroker{}

	_, err := newTestResponder(s, b, watermark.NewMemory()).sweep(context.Background(), responderEpoch)
	require.NoError(t, err)

	sent := b.Sent()
	require.Len(t, sent, 1)
	header, err := sent[0].Header()
	require.NoError(t, err)

	assert.NotEmpty(t, header.ID)
	assert.NotEqual(t, "msg-1", header.ID)
	assert.Equal(t, fhir.EventEvaluateMeasure, header.Event())
	assert.Equal(t, []string{"dest-1"}, header.Destinations())
	correlationID, ok := header.CorrelationID()
	require.True(t, ok)
	assert.Equal(t, "msg-1", correlationID)
	assert.Equal(t, fhir.ResponseFatalError, header.Response.Code)

	require.Len(t, header.Focus, 1)
	_, err = sent[0].Resolve(header.Focus[0])
	assert.NoError(t, err)
}

func TestResponder_SweepWatermark(t *testing.T) {
	t.Parallel()

	s := newClockedStore()
	first := s.PutTask(failedTask("a"))
	second := s.PutTask(failedTask("b"))
	b := &mocks.MockBroker{}
	p := newTestResponder(s, b, watermark.NewMemory())

	next, err := p.sweep(context.Background(), responderEpoch)
	require.NoError(t, err)
	assert.Len(t, b.Sent(), 2)
	assert.True(t, second.LastUpdated().After(first.LastUpdated()))
	assert.Equal(t, second.LastUpdated().Add(time.Millisecond), next)

	again, err := p.sweep(context.Background(), next)
	require.NoError(t, err)
	assert.Equal(t, next, again, "nothing newer keeps the watermark")
	assert.Len(t, b.Sent(), 2, "tasks before the watermark are not answered again")
}

func TestResponder_IgnoresUnfinishedAndOldTasks(t *testing.T) {
	t.Parallel()

	s := newClockedStore()
	s.PutTask(readyTask("https://x/Measure/m"))
	old := s.PutTask(failedTask("old"))
	b := &mocks.MockBroker{}

	_, err := newTestResponder(s, b, watermark.NewMemory()).sweep(context.Background(), old.LastUpdated().Add(time.Millisecond))
	require.NoError(t, err)
	assert.Empty(t, b.Sent())
}

func TestResponder_SkipsTaskWithoutCorrelation(t *testing.T) {
	t.Parallel()

	s := newClockedStore()
	task := failedTask("boom")
	task.Extension = nil
	stored := s.PutTask(task)
	b := &mocks.MockBroker{}

	next, err := newTestResponder(s, b, watermark.NewMemory()).sweep(context.Background(), responderEpoch)
	require.NoError(t, err)
	assert.Empty(t, b.Sent())
	assert.Equal(t, stored.LastUpdated().Add(time.Millisecond), next)
}

func TestResponder_SendFailureKeepsWatermark(t *testing.T) {
	t.Parallel()

	s := newClockedStore()
	s.PutTask(failedTask("boom"))
	sendErr := errors.New("proxy unavailable")
	b := &mocks.MockBroker{SendFn: func(context.Context, *fhir.Bundle) error { return sendErr }}
	marks := watermark.NewMemory()

	err := newTestResponder(s, b, marks).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, sendErr)

	_, ok, err := marks.Load(context.Background(), ResponderWatermark)
	require.NoError(t, err)
	assert.False(t, ok, "watermark is not advanced past unsent responses")
}

func TestResponder_ReportFetchFailurePropagates(t *testing.T) {
	t.Parallel()

	s := newClockedStore()
	s.PutTask(completedTask("missing"))
	b := &mocks.MockBroker{}

	_, err := newTestResponder(s, b, watermark.NewMemory()).sweep(context.Background(), responderEpoch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch measure report")
	assert.Empty(t, b.Sent())
}

func TestResponder_RunPersistsWatermark(t *testing.T) {
	t.Parallel()

	s := newClockedStore()
	task := s.PutTask(failedTask("boom"))
	b := &mocks.MockBroker{}
	marks := watermark.NewMemory()
	p := newTestResponder(s, b, marks)

	err := runUntil(t, p, func() bool {
		at, ok, _ := marks.Load(context.Background(), ResponderWatermark)
		return ok && at.Equal(task.LastUpdated().Add(time.Millisecond))
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, b.Sent(), 1, "later sweeps start after the answered task")
}

func TestResponder_RunResumesFromSavedWatermark(t *testing.T) {
	t.Parallel()

	s := newClockedStore()
	s.PutTask(failedTask("answered before restart"))
	fresh := s.PutTask(failedTask("new"))

	marks := watermark.NewMemory()
	require.NoError(t, marks.Advance(context.Background(), ResponderWatermark, fresh.LastUpdated()))
	b := &mocks.MockBroker{}

	err := runUntil(t, newTestResponder(s, b, marks), func() bool { return len(b.Sent()) > 0 })
	assert.ErrorIs(t, err, context.Canceled)

	sent := b.Sent()
	require.Len(t, sent, 1)
	var outcome fhir.OperationOutcome
	header, err := sent[0].Header()
	require.NoError(t, err)
	raw, err := sent[0].Resolve(header.Focus[0])
	require.NoError(t, err)
	require.NoError(t, fhir.Decode(raw, "OperationOutcome", &outcome))
	assert.Equal(t, "new", outcome.Summary())
}

// countingSearches counts the searches run to completion against a mock
// store.
type countingSearches struct {
	*mocks.MockTaskStore
	searches atomic.Int32
}

func (c *countingSearches) SearchTasks(ctx context.Context, filter store.TaskFilter) iter.Seq2[*fhir.Task, error] {
	return func(yield func(*fhir.Task, error) bool) {
		for task, err := range c.MockTaskStore.SearchTasks(ctx, filter) {
			if !yield(task, err) {
				return
			}
		}
		c.searches.Add(1)
	}
}

func TestResponder_StartPointIsTakenOnFirstRun(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	s := &countingSearches{MockTaskStore: mocks.NewMockTaskStore()}
	s.Now = clock.Now
	b := &mocks.MockBroker{}
	marks := watermark.NewMemory()
	p := NewResponder(s, b, marks, time.Hour, discardLogger())
	p.now = clock.Now

	finishedBeforeStart := s.PutTask(failedTask("before start"))

	err := runUntil(t, p, func() bool { return s.searches.Load() > 0 })
	assert.ErrorIs(t, err, context.Canceled)

	assert.Empty(t, b.Sent(), "tasks finished before the first run are not answered")
	mark, ok, err := marks.Load(context.Background(), ResponderWatermark)
	require.NoError(t, err)
	require.True(t, ok, "the start point is saved")
	assert.True(t, mark.After(finishedBeforeStart.LastUpdated()))
}
