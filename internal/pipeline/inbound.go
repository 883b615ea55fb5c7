package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/measure-hub/internal/fhir"
	"github.com/phrazzld/measure-hub/internal/messaging"
	"github.com/phrazzld/measure-hub/internal/store"
)

// Inbound creates a ready evaluate-measure task for every received
// evaluate-measure message.
type Inbound struct {
	broker messaging.Broker
	store  store.TaskStore
	logger *slog.Logger
	now    func() time.Time
}

// NewInbound creates the inbound pipeline.
func NewInbound(broker messaging.Broker, taskStore store.TaskStore, logger *slog.Logger) *Inbound {
	return &Inbound{
		broker: broker,
		store:  taskStore,
		logger: logger.With("component", "pipeline", "pipeline", "inbound"),
		now:    time.Now,
	}
}

// Name implements Pipeline.
func (p *Inbound) Name() string { return "inbound" }

// Run implements Pipeline. It receives until ctx is cancelled or a store or
// broker error occurs.
func (p *Inbound) Run(ctx context.Context) error {
	pred := messaging.EventIs(fhir.EventEvaluateMeasure)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		for rec, err := range p.broker.Receive(ctx, pred) {
			if err != nil {
				return fmt.Errorf("failed to receive messages: %w", err)
			}
			if err := p.handle(ctx, rec); err != nil {
				return err
			}
		}
	}
}

// evaluateRequest is what an evaluate-measure message asks for.
type evaluateRequest struct {
	messageID   string
	destination string
	measureURL  string
}

func (p *Inbound) handle(ctx context.Context, rec *messaging.Record) error {
	req, err := parseEvaluateRequest(rec.Message)
	if err != nil {
		p.logger.WarnContext(ctx, "dropping malformed evaluate-measure message", "error", err)
		return rec.Acknowledge(ctx)
	}

	task := fhir.NewEvaluateMeasureTask(req.measureURL, fhir.Correlation{
		InboundMessageID:    req.messageID,
		ResponseDestination: req.destination,
	}, p.now())

	ifNoneExist := "identifier=" + fhir.Identifier{System: fhir.IdentifierSystemMessageID, Value: req.messageID}.Token()
	created, err := p.store.CreateTask(ctx, task, ifNoneExist)
	if err != nil {
		return fmt.Errorf("failed to create task for message %s: %w", req.messageID, err)
	}

	if err := rec.Acknowledge(ctx); err != nil {
		return err
	}

	p.logger.InfoContext(ctx, "created task from message",
		"task_id", created.ID,
		"message_id", req.messageID,
		"measure", req.measureURL,
		"response_destination", req.destination)
	return nil
}

var (
	errNoMessageID  = errors.New("message header has no id")
	errNoSource     = errors.New("message header has no source endpoint")
	errNoMeasure    = errors.New("parameters have no measure")
	errFocusCount   = errors.New("message needs exactly one focus")
	errNotParameter = errors.New("focus is not a Parameters resource")
)

func parseEvaluateRequest(msg *fhir.Bundle) (evaluateRequest, error) {
	header, err := msg.Header()
	if err != nil {
		return evaluateRequest{}, err
	}
	if header.ID == "" {
		return evaluateRequest{}, errNoMessageID
	}
	if header.Source == nil || header.Source.Endpoint == "" {
		return evaluateRequest{}, errNoSource
	}
	if len(header.Focus) != 1 {
		return evaluateRequest{}, fmt.Errorf("%w: got %d", errFocusCount, len(header.Focus))
	}

	raw, err := msg.Resolve(header.Focus[0])
	if err != nil {
		return evaluateRequest{}, err
	}
	var params fhir.Parameters
	if err := fhir.Decode(raw, "Parameters", &params); err != nil {
		return evaluateRequest{}, fmt.Errorf("%w: %w", errNotParameter, err)
	}
	measure, ok := params.Value(fhir.InputMeasure)
	if !ok {
		return evaluateRequest{}, errNoMeasure
	}

	return evaluateRequest{
		messageID:   header.ID,
		destination: header.Source.Endpoint,
		measureURL:  measure,
	}, nil
}
