package beam

import "github.com/go-playground/validator/v10"

// validate checks envelopes before they are sent and after they are
// retrieved. The broker identifies tasks by uuid.
var validate = validator.New()

// Status is the state of a Result.
type Status string

// Result statuses understood by the broker.
const (
	StatusClaimed    Status = "claimed"
	StatusSucceeded  Status = "succeeded"
	StatusTempFailed Status = "tempfailed"
	StatusPermFailed Status = "permfailed"
)

// Retry is the redelivery hint attached to a task. The broker
// infrastructure enforces it; this client only forwards it.
type Retry struct {
	BackoffMillisecs int64 `json:"backoff_millisecs"`
	MaxTries         int   `json:"max_tries"`
}

// FailureStrategy wraps Retry the way the broker expects it on the wire.
type FailureStrategy struct {
	Retry Retry `json:"retry"`
}

// Task is the transport envelope exchanged through the broker. Body holds
// base64 encoded payload bytes.
type Task struct {
	ID              string           `json:"id" validate:"required,uuid"`
	From            string           `json:"from" validate:"required"`
	To              []string         `json:"to" validate:"required,min=1,dive,required"`
	Metadata        string           `json:"metadata"`
	Body            string           `json:"body"`
	FailureStrategy *FailureStrategy `json:"failure_strategy,omitempty"`
}

// Result is submitted by a recipient to claim or answer a Task.
type Result struct {
	From     string   `json:"from" validate:"required"`
	To       []string `json:"to" validate:"dive,required"`
	Task     string   `json:"task" validate:"required,uuid"`
	Status   Status   `json:"status" validate:"required,oneof=claimed succeeded tempfailed permfailed"`
	Metadata string   `json:"metadata"`
	Body     string   `json:"body,omitempty"`
}
