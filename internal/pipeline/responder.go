package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/measure-hub/internal/fhir"
	"github.com/phrazzld/measure-hub/internal/messaging"
	"github.com/phrazzld/measure-hub/internal/store"
	"github.com/phrazzld/measure-hub/internal/watermark"
)

// ResponderWatermark names the watermark of the responder in a
// watermark.Store.
const ResponderWatermark = "responder"

// watermarkStep is added to the newest processed timestamp so the next sweep
// starts after it. It matches the millisecond precision of store searches.
const watermarkStep = time.Millisecond

// Responder answers the message behind every completed or failed
// evaluate-measure task.
type Responder struct {
	store     store.TaskStore
	broker    messaging.Broker
	marks     watermark.Store
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewResponder creates the responder pipeline. Without a saved watermark it
// starts with tasks updated after its first run began.
func NewResponder(taskStore store.TaskStore, broker messaging.Broker, marks watermark.Store, interval time.Duration, logger *slog.Logger) *Responder {
	return &Responder{
		store:    taskStore,
		broker:   broker,
		marks:    marks,
		interval: interval,
		now:      time.Now,
		logger:   logger.With("component", "pipeline", "pipeline", "responder"),
	}
}

// Name implements Pipeline.
func (p *Responder) Name() string { return "responder" }

// Run implements Pipeline. The watermark advances only after a sweep sent
// every response, so a failed sweep is repeated from the same point and
// responses may be sent more than once.
func (p *Responder) Run(ctx context.Context) error {
	mark, ok, err := p.marks.Load(ctx, ResponderWatermark)
	if err != nil {
		return err
	}
	if !ok {
		// Saved at once so a restart after a failure keeps this start point.
		mark = p.now().UTC()
		if err := p.marks.Advance(ctx, ResponderWatermark, mark); err != nil {
			return err
		}
		p.logger.InfoContext(ctx, "watermark initialized", "watermark", mark)
	}

	for {
		next, err := p.sweep(ctx, mark)
		if err != nil {
			return err
		}
		if next.After(mark) {
			if err := p.marks.Advance(ctx, ResponderWatermark, next); err != nil {
				return err
			}
			p.logger.DebugContext(ctx, "watermark advanced", "watermark", next)
			mark = next
		}
		if err := sleep(ctx, p.interval); err != nil {
			return err
		}
	}
}

// sweep answers all finished tasks updated at or after mark and returns the
// next watermark.
func (p *Responder) sweep(ctx context.Context, mark time.Time) (time.Time, error) {
	filter := store.TaskFilter{
		Statuses:        []fhir.TaskStatus{fhir.TaskStatusCompleted, fhir.TaskStatusFailed},
		Code:            &evaluateMeasureCode,
		LastUpdatedFrom: mark,
	}

	next := mark
	for task, err := range p.store.SearchTasks(ctx, filter) {
		if err != nil {
			return mark, fmt.Errorf("failed to search finished tasks: %w", err)
		}
		if err := p.respond(ctx, task); err != nil {
			return mark, err
		}
		if candidate := task.LastUpdated().Add(watermarkStep); candidate.After(next) {
			next = candidate
		}
	}
	return next, nil
}

func (p *Responder) respond(ctx context.Context, task *fhir.Task) error {
	logger := p.logger.With("task_id", task.ID)

	c, ok := task.Correlation()
	if !ok {
		logger.WarnContext(ctx, "skipping task without correlation data")
		return nil
	}

	code, payload, err := p.responsePayload(ctx, task)
	if err != nil {
		return err
	}

	msg, err := newResponseMessage(c, code, payload)
	if err != nil {
		return err
	}
	if err := p.broker.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send response for task %s: %w", task.ID, err)
	}

	logger.InfoContext(ctx, "response sent",
		"message_id", c.InboundMessageID,
		"response_destination", c.ResponseDestination,
		"response_code", string(code))
	return nil
}

// responsePayload returns the MeasureReport of a completed task or an
// OperationOutcome describing why no report can be sent.
func (p *Responder) responsePayload(ctx context.Context, task *fhir.Task) (fhir.ResponseCode, any, error) {
	if task.Status == fhir.TaskStatusFailed {
		diagnostics := "Task failed."
		if out, ok := task.FindOutput(fhir.CodeSystemTaskOutput, fhir.OutputError); ok && out.ValueString != "" {
			diagnostics = out.ValueString
		}
		return fhir.ResponseFatalError, fhir.NewErrorOutcome(diagnostics), nil
	}

	out, ok := task.FindOutput(fhir.CodeSystemTaskOutput, fhir.OutputMeasureReport)
	if !ok || out.ValueReference == nil {
		return fhir.ResponseFatalError, fhir.NewErrorOutcome("Missing MeasureReport reference in Task output."), nil
	}
	ref := *out.ValueReference
	ref.Type = "MeasureReport"
	_, id, ok := ref.TypeAndID()
	if !ok {
		return fhir.ResponseFatalError, fhir.NewErrorOutcome("Invalid MeasureReport reference in Task output."), nil
	}

	report, err := p.store.FetchMeasureReport(ctx, id)
	if err != nil {
		return "", nil, fmt.Errorf("failed to fetch measure report of task %s: %w", task.ID, err)
	}
	return fhir.ResponseOK, report, nil
}

func newResponseMessage(c fhir.Correlation, code fhir.ResponseCode, payload any) (*fhir.Bundle, error) {
	payloadURL := "urn:uuid:" + uuid.NewString()
	entry, err := fhir.NewEntry(payloadURL, payload)
	if err != nil {
		return nil, err
	}
	return fhir.NewMessage(&fhir.MessageHeader{
		ID:          uuid.NewString(),
		EventCoding: fhir.Coding{System: fhir.CodeSystemMessageEvent, Code: fhir.EventEvaluateMeasure},
		Destination: []fhir.MessageDestination{{Endpoint: c.ResponseDestination}},
		Response:    &fhir.MessageResponse{Identifier: c.InboundMessageID, Code: code},
		Focus:       []fhir.Reference{{Reference: payloadURL}},
	}, entry)
}
