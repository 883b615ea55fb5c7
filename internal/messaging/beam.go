package messaging

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/measure-hub/internal/fhir"
	"github.com/phrazzld/measure-hub/internal/platform/beam"
)

// TaskClient is the part of the Beam client the broker depends on.
type TaskClient interface {
	Retrieve(ctx context.Context) ([]beam.Task, error)
	Create(ctx context.Context, task beam.Task) error
	Claim(ctx context.Context, task beam.Task) error
	Answer(ctx context.Context, taskID string, to []string, status beam.Status, body string) error
}

// BeamBroker carries messages as base64 encoded bodies of Beam tasks.
type BeamBroker struct {
	client TaskClient
	logger *slog.Logger
}

// NewBeamBroker creates a broker on top of client.
func NewBeamBroker(client TaskClient, logger *slog.Logger) (*BeamBroker, error) {
	if client == nil {
		return nil, errors.New("beam client cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &BeamBroker{
		client: client,
		logger: logger.With("component", "message_broker"),
	}, nil
}

// Send implements Broker.
func (b *BeamBroker) Send(ctx context.Context, msg *fhir.Bundle) error {
	header, err := msg.Header()
	if err != nil {
		return fmt.Errorf("cannot send message: %w", err)
	}

	if correlationID, ok := header.CorrelationID(); ok {
		return b.answer(ctx, msg, header, correlationID)
	}

	if header.ID == "" {
		return ErrMissingHeaderID
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message %s: %w", header.ID, err)
	}

	if err := b.client.Create(ctx, beam.Task{
		ID:   header.ID,
		To:   header.Destinations(),
		Body: base64.StdEncoding.EncodeToString(raw),
	}); err != nil {
		return fmt.Errorf("failed to send message %s: %w", header.ID, err)
	}

	b.logger.InfoContext(ctx, "message sent",
		"message_id", header.ID,
		"event", header.Event(),
		"destinations", header.Destinations())
	return nil
}

// answer sends the single focus resource of a response as the result of the
// broker task it correlates to.
func (b *BeamBroker) answer(ctx context.Context, msg *fhir.Bundle, header *fhir.MessageHeader, correlationID string) error {
	if len(header.Focus) != 1 {
		return fmt.Errorf("%w: got %d", ErrMissingFocus, len(header.Focus))
	}
	focus, err := msg.Resolve(header.Focus[0])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMissingFocus, err)
	}

	status := beam.StatusPermFailed
	if header.Response.Code == fhir.ResponseOK {
		status = beam.StatusSucceeded
	}

	body := base64.StdEncoding.EncodeToString(focus)
	if err := b.client.Answer(ctx, correlationID, header.Destinations(), status, body); err != nil {
		return fmt.Errorf("failed to answer message %s: %w", correlationID, err)
	}

	b.logger.InfoContext(ctx, "response sent",
		"correlation_id", correlationID,
		"status", string(status),
		"destinations", header.Destinations())
	return nil
}

// Receive implements Broker with a single long-poll round.
//
// Tasks whose body is not a valid message, and messages rejected by pred,
// are claimed. A claim is final, so these tasks are never seen again.
func (b *BeamBroker) Receive(ctx context.Context, pred Predicate) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		tasks, err := b.client.Retrieve(ctx)
		if err != nil {
			yield(nil, err)
			return
		}

		for _, task := range tasks {
			msg, err := decodeMessage(task)
			if err != nil {
				b.logger.WarnContext(ctx, "dropping undecodable broker task",
					"beam_task_id", task.ID,
					"from", task.From,
					"error", err)
				if err := b.drop(ctx, task); err != nil {
					yield(nil, err)
					return
				}
				continue
			}

			if !pred(msg) {
				b.logger.DebugContext(ctx, "dropping message not matching filter",
					"beam_task_id", task.ID,
					"from", task.From)
				if err := b.drop(ctx, task); err != nil {
					yield(nil, err)
					return
				}
				continue
			}

			task := task
			record := NewRecord(msg, func(ctx context.Context) error {
				if err := b.client.Claim(ctx, task); err != nil {
					return fmt.Errorf("failed to acknowledge message %s: %w", task.ID, err)
				}
				return nil
			})
			if !yield(record, nil) {
				return
			}
		}
	}
}

func (b *BeamBroker) drop(ctx context.Context, task beam.Task) error {
	if err := b.client.Claim(ctx, task); err != nil {
		return fmt.Errorf("failed to drop broker task %s: %w", task.ID, err)
	}
	return nil
}

// decodeMessage turns a broker task body into a message bundle whose header
// id and source identify the broker task and its sender.
func decodeMessage(task beam.Task) (*fhir.Bundle, error) {
	if _, err := uuid.Parse(task.ID); err != nil {
		return nil, fmt.Errorf("broker task id %q is not a uuid: %w", task.ID, err)
	}
	raw, err := base64.StdEncoding.DecodeString(task.Body)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 body: %w", err)
	}

	var msg fhir.Bundle
	if err := fhir.Decode(raw, "Bundle", &msg); err != nil {
		return nil, err
	}

	header, err := msg.Header()
	if err != nil {
		return nil, err
	}

	header.ID = task.ID
	if header.Source == nil {
		header.Source = &fhir.MessageSource{}
	}
	header.Source.Endpoint = task.From
	if err := msg.SetHeader(header); err != nil {
		return nil, err
	}
	return &msg, nil
}

var _ Broker = (*BeamBroker)(nil)
