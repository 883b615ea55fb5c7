package events

import (
	"context"
	"sync"
	"time"
)

// Status is what is known about a pipeline from its events.
type Status struct {
	Pipeline    string     `json:"pipeline"`
	LastEvent   EventType  `json:"last_event"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	Failures    int        `json:"failures"`
	LastError   string     `json:"last_error,omitempty"`
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`
}

// StatusRecorder is an EventHandler that keeps the latest Status of every
// pipeline it has heard of.
type StatusRecorder struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

// NewStatusRecorder creates an empty recorder.
func NewStatusRecorder() *StatusRecorder {
	return &StatusRecorder{statuses: make(map[string]Status)}
}

// HandleEvent implements EventHandler.
func (r *StatusRecorder) HandleEvent(_ context.Context, event *PipelineEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.statuses[event.Pipeline]
	s.Pipeline = event.Pipeline
	s.LastEvent = event.Type

	at := event.CreatedAt
	switch event.Type {
	case PipelineStarted:
		s.StartedAt = &at
	case PipelineFailed:
		s.Failures++
		s.LastError = event.Error
		s.LastErrorAt = &at
	}

	r.statuses[event.Pipeline] = s
	return nil
}

// Status returns the status of pipeline. ok is false when no event for it
// was recorded.
func (r *StatusRecorder) Status(pipeline string) (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.statuses[pipeline]
	return s, ok
}
