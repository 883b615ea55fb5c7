package api

import (
	"time"

	"github.com/phrazzld/measure-hub/internal/events"
	"github.com/phrazzld/measure-hub/internal/redact"
)

// PipelineResponse is the state of one pipeline.
type PipelineResponse struct {
	Name        string     `json:"name"`
	Running     bool       `json:"running"`
	LastEvent   string     `json:"last_event,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	Failures    int        `json:"failures"`
	LastError   string     `json:"last_error,omitempty"`
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`
}

// PipelinesResponse lists all pipelines in registration order.
type PipelinesResponse struct {
	Pipelines []PipelineResponse `json:"pipelines"`
}

// HealthResponse reports whether the task store can be reached.
type HealthResponse struct {
	Status          string `json:"status"`
	TaskStoreStatus string `json:"task_store_status,omitempty"`
	FhirVersion     string `json:"fhir_version,omitempty"`
	Software        string `json:"software,omitempty"`
}

// newPipelineResponse merges the supervisor state with the recorded status.
// Error text is redacted before it leaves the process.
func newPipelineResponse(name string, running bool, status events.Status, ok bool) PipelineResponse {
	resp := PipelineResponse{Name: name, Running: running}
	if !ok {
		return resp
	}
	resp.LastEvent = string(status.LastEvent)
	resp.StartedAt = status.StartedAt
	resp.Failures = status.Failures
	resp.LastError = redact.String(status.LastError)
	resp.LastErrorAt = status.LastErrorAt
	return resp
}
