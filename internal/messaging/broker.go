package messaging

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/phrazzld/measure-hub/internal/fhir"
)

var (
	// ErrMissingHeaderID is returned when an original message has no header id
	// to use as broker task id.
	ErrMissingHeaderID = errors.New("message header has no id")

	// ErrMissingFocus is returned when a response message does not focus on
	// exactly one resource contained in the bundle.
	ErrMissingFocus = errors.New("response message needs exactly one focus resource")
)

// Predicate selects the messages a receiver is interested in.
type Predicate func(msg *fhir.Bundle) bool

// Broker exchanges FHIR message bundles with remote sites.
type Broker interface {
	// Send delivers msg. Responses are sent as the answer of the message they
	// correlate to, other messages as new broker tasks.
	Send(ctx context.Context, msg *fhir.Bundle) error

	// Receive yields the currently available messages matching pred. Every
	// message that is not yielded is dropped for good. A yielded message is
	// delivered again by a later Receive until its Record is acknowledged.
	Receive(ctx context.Context, pred Predicate) iter.Seq2[*Record, error]
}

// Record is a received message awaiting acknowledgment.
type Record struct {
	Message *fhir.Bundle

	mu    sync.Mutex
	acked bool
	ack   func(ctx context.Context) error
}

// NewRecord creates a record whose acknowledgment runs ack.
func NewRecord(msg *fhir.Bundle, ack func(ctx context.Context) error) *Record {
	return &Record{Message: msg, ack: ack}
}

// Acknowledge marks the message as handled. Call it only once the effect of
// the message is durably recorded: it cannot be undone and the message will
// not be delivered again. Repeated calls after a success are no-ops.
func (r *Record) Acknowledge(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.acked {
		return nil
	}
	if err := r.ack(ctx); err != nil {
		return err
	}
	r.acked = true
	return nil
}

// Acknowledged reports whether Acknowledge succeeded.
func (r *Record) Acknowledged() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acked
}

// EventIs returns a predicate matching messages with the given event code.
func EventIs(code string) Predicate {
	return func(msg *fhir.Bundle) bool {
		h, err := msg.Header()
		if err != nil {
			return false
		}
		return h.Event() == code
	}
}
