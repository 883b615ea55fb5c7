package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType is the kind of lifecycle change.
type EventType string

// Lifecycle event types.
const (
	PipelineStarted EventType = "started"
	PipelineFailed  EventType = "failed"
	PipelineStopped EventType = "stopped"
)

// PipelineEvent reports a lifecycle change of one pipeline.
type PipelineEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Pipeline names the pipeline the event is about
	Pipeline string `json:"pipeline"`

	Type EventType `json:"type"`

	// Error is the failure message of a failed event
	Error string `json:"error,omitempty"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// NewPipelineEvent creates an event of type for pipeline. err may be nil.
func NewPipelineEvent(pipeline string, eventType EventType, err error) *PipelineEvent {
	event := &PipelineEvent{
		ID:        uuid.New(),
		Pipeline:  pipeline,
		Type:      eventType,
		CreatedAt: time.Now().UTC(),
	}
	if err != nil {
		event.Error = err.Error()
	}
	return event
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	HandleEvent(ctx context.Context, event *PipelineEvent) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows supervisors to publish events without knowing the handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *PipelineEvent) error
}
