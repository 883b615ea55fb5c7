package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/measure-hub/internal/fhir"
	"github.com/phrazzld/measure-hub/internal/messaging"
	"github.com/phrazzld/measure-hub/internal/store"
)

var errNoEndpoint = errors.New("recipient has no endpoint address")

// Sender forwards requested tasks to the single organization they are
// restricted to.
type Sender struct {
	store    store.TaskStore
	broker   messaging.Broker
	interval time.Duration
	logger   *slog.Logger
}

// NewSender creates the sender pipeline.
func NewSender(taskStore store.TaskStore, broker messaging.Broker, interval time.Duration, logger *slog.Logger) *Sender {
	return &Sender{
		store:    taskStore,
		broker:   broker,
		interval: interval,
		logger:   logger.With("component", "pipeline", "pipeline", "sender"),
	}
}

// Name implements Pipeline.
func (p *Sender) Name() string { return "sender" }

// Run implements Pipeline. Requested tasks are sent again on every sweep;
// the broker drops repeats of the same message id.
func (p *Sender) Run(ctx context.Context) error {
	for {
		if err := p.sweep(ctx); err != nil {
			return err
		}
		if err := sleep(ctx, p.interval); err != nil {
			return err
		}
	}
}

func (p *Sender) sweep(ctx context.Context) error {
	filter := store.TaskFilter{Statuses: []fhir.TaskStatus{fhir.TaskStatusRequested}}
	for task, err := range p.store.SearchTasks(ctx, filter) {
		if err != nil {
			return fmt.Errorf("failed to search requested tasks: %w", err)
		}
		if _, err := p.send(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

// send delivers task to its recipient and returns the task as sent.
// Only a failure to persist the correlation id is returned as error.
func (p *Sender) send(ctx context.Context, task *fhir.Task) (*fhir.Task, error) {
	logger := p.logger.With("task_id", task.ID)

	var recipients []fhir.Reference
	if task.Restriction != nil {
		recipients = task.Restriction.Recipient
	}
	if len(recipients) != 1 {
		logger.InfoContext(ctx, "skipping task without a single recipient",
			"recipient_count", len(recipients))
		return task, nil
	}

	address, err := p.resolveAddress(ctx, recipients[0])
	if err != nil {
		logger.WarnContext(ctx, "cannot resolve recipient address",
			"recipient", recipients[0].Reference,
			"error", err)
		return task, nil
	}

	task, err = p.ensureCorrelationID(ctx, task)
	if err != nil {
		return nil, err
	}
	correlationID, _ := task.IdentifierValue(fhir.IdentifierSystemMessageID)

	msg, err := newFulfillTaskMessage(correlationID, address, task)
	if err != nil {
		logger.ErrorContext(ctx, "cannot build request message", "error", err)
		return task, nil
	}
	if err := p.broker.Send(ctx, msg); err != nil {
		logger.ErrorContext(ctx, "failed to send request",
			"message_id", correlationID,
			"destination", address,
			"error", err)
		return task, nil
	}

	logger.InfoContext(ctx, "request sent",
		"message_id", correlationID,
		"destination", address)
	return task, nil
}

// resolveAddress follows Organization -> first Endpoint -> address.
func (p *Sender) resolveAddress(ctx context.Context, recipient fhir.Reference) (string, error) {
	orgRef := recipient
	orgRef.Type = "Organization"
	_, orgID, ok := orgRef.TypeAndID()
	if !ok {
		return "", fmt.Errorf("recipient %q is not an Organization reference", recipient.Reference)
	}
	org, err := p.store.FetchOrganization(ctx, orgID)
	if err != nil {
		return "", err
	}
	if len(org.Endpoint) == 0 {
		return "", fmt.Errorf("%w: organization %s", errNoEndpoint, orgID)
	}

	epRef := org.Endpoint[0]
	epRef.Type = "Endpoint"
	_, epID, ok := epRef.TypeAndID()
	if !ok {
		return "", fmt.Errorf("%w: invalid endpoint reference %q", errNoEndpoint, org.Endpoint[0].Reference)
	}
	ep, err := p.store.FetchEndpoint(ctx, epID)
	if err != nil {
		return "", err
	}
	if ep.Address == "" {
		return "", fmt.Errorf("%w: endpoint %s", errNoEndpoint, epID)
	}
	return ep.Address, nil
}

// ensureCorrelationID gives task a stable message identifier, writing only
// when it has none yet.
func (p *Sender) ensureCorrelationID(ctx context.Context, task *fhir.Task) (*fhir.Task, error) {
	if _, ok := task.IdentifierValue(fhir.IdentifierSystemMessageID); ok {
		return task, nil
	}
	task.Identifier = append(task.Identifier, fhir.Identifier{
		System: fhir.IdentifierSystemMessageID,
		Value:  uuid.NewString(),
	})
	updated, err := p.store.UpdateTask(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("failed to persist correlation id of task %s: %w", task.ID, err)
	}
	return updated, nil
}

func newFulfillTaskMessage(correlationID, destination string, task *fhir.Task) (*fhir.Bundle, error) {
	taskURL := "urn:uuid:" + uuid.NewString()
	entry, err := fhir.NewEntry(taskURL, task)
	if err != nil {
		return nil, err
	}
	return fhir.NewMessage(&fhir.MessageHeader{
		ID:          correlationID,
		EventCoding: fhir.Coding{System: fhir.CodeSystemMessageEvent, Code: fhir.EventFulfillTask},
		Destination: []fhir.MessageDestination{{Endpoint: destination}},
		Focus:       []fhir.Reference{{Reference: taskURL}},
	}, entry)
}
