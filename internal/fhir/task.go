package fhir

import (
	"fmt"
	"time"
)

// TaskStatus is the status of a Task work item.
type TaskStatus string

// Task statuses. Only the draft → requested → ready → in-progress →
// completed/failed path is produced by this application.
const (
	TaskStatusDraft          TaskStatus = "draft"
	TaskStatusRequested      TaskStatus = "requested"
	TaskStatusReceived       TaskStatus = "received"
	TaskStatusAccepted       TaskStatus = "accepted"
	TaskStatusRejected       TaskStatus = "rejected"
	TaskStatusReady          TaskStatus = "ready"
	TaskStatusCancelled      TaskStatus = "cancelled"
	TaskStatusInProgress     TaskStatus = "in-progress"
	TaskStatusOnHold         TaskStatus = "on-hold"
	TaskStatusFailed         TaskStatus = "failed"
	TaskStatusCompleted      TaskStatus = "completed"
	TaskStatusEnteredInError TaskStatus = "entered-in-error"
)

var transitions = map[TaskStatus][]TaskStatus{
	TaskStatusDraft:      {TaskStatusRequested, TaskStatusReady},
	TaskStatusRequested:  {TaskStatusReady},
	TaskStatusReady:      {TaskStatusInProgress},
	TaskStatusInProgress: {TaskStatusCompleted, TaskStatusFailed},
}

// IsTerminal reports whether no further transition leaves s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// CanTransition reports whether the state machine allows from → to.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Task is the persistent work item.
type Task struct {
	ID                    string           `json:"id,omitempty"`
	Meta                  *Meta            `json:"meta,omitempty"`
	Extension             []Extension      `json:"extension,omitempty"`
	Identifier            []Identifier     `json:"identifier,omitempty"`
	InstantiatesCanonical string           `json:"instantiatesCanonical,omitempty"`
	Status                TaskStatus       `json:"status"`
	Intent                string           `json:"intent"`
	Code                  *CodeableConcept `json:"code,omitempty"`
	AuthoredOn            *time.Time       `json:"authoredOn,omitempty"`
	LastModified          *time.Time       `json:"lastModified,omitempty"`
	Restriction           *TaskRestriction `json:"restriction,omitempty"`
	Input                 []TaskParameter  `json:"input,omitempty"`
	Output                []TaskParameter  `json:"output,omitempty"`

	unknown members
}

// TaskRestriction limits who may fulfil a task.
type TaskRestriction struct {
	Recipient []Reference `json:"recipient,omitempty"`

	unknown members
}

// MarshalJSON implements json.Marshaler.
func (r TaskRestriction) MarshalJSON() ([]byte, error) {
	type plain TaskRestriction
	return encodeKeeping("", plain(r), r.unknown)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *TaskRestriction) UnmarshalJSON(data []byte) error {
	type plain TaskRestriction
	return decodeKeeping(data, (*plain)(r), &r.unknown)
}

// TaskParameter is one typed input or output of a task.
type TaskParameter struct {
	Type           CodeableConcept `json:"type"`
	ValueCanonical string          `json:"valueCanonical,omitempty"`
	ValueString    string          `json:"valueString,omitempty"`
	ValueReference *Reference      `json:"valueReference,omitempty"`

	unknown members
}

// MarshalJSON implements json.Marshaler.
func (p TaskParameter) MarshalJSON() ([]byte, error) {
	type plain TaskParameter
	return encodeKeeping("", plain(p), p.unknown)
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *TaskParameter) UnmarshalJSON(data []byte) error {
	type plain TaskParameter
	return decodeKeeping(data, (*plain)(p), &p.unknown)
}

// MarshalJSON writes the task with its resourceType. Members read from JSON
// that Task does not declare are written back as they were.
func (t Task) MarshalJSON() ([]byte, error) {
	type plain Task
	return encodeKeeping("Task", plain(t), t.unknown)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Task) UnmarshalJSON(data []byte) error {
	type plain Task
	return decodeKeeping(data, (*plain)(t), &t.unknown)
}

// Correlation is the data needed to answer the message that created a task.
type Correlation struct {
	InboundMessageID    string
	ResponseDestination string
}

// Correlation reads the correlation extensions. ok is false unless both are
// present.
func (t *Task) Correlation() (c Correlation, ok bool) {
	for _, ext := range t.Extension {
		switch ext.URL {
		case ExtensionMessageID:
			c.InboundMessageID = ext.Value()
		case ExtensionResponseDestination:
			c.ResponseDestination = ext.Value()
		}
	}
	return c, c.InboundMessageID != "" && c.ResponseDestination != ""
}

// SetCorrelation replaces any existing correlation extensions.
func (t *Task) SetCorrelation(c Correlation) {
	kept := t.Extension[:0:0]
	for _, ext := range t.Extension {
		if ext.URL != ExtensionMessageID && ext.URL != ExtensionResponseDestination {
			kept = append(kept, ext)
		}
	}
	t.Extension = append(kept,
		Extension{URL: ExtensionMessageID, ValueString: c.InboundMessageID},
		Extension{URL: ExtensionResponseDestination, ValueURL: c.ResponseDestination},
	)
}

// IdentifierValue returns the value of the first identifier with system.
func (t *Task) IdentifierValue(system string) (string, bool) {
	for _, id := range t.Identifier {
		if id.System == system && id.Value != "" {
			return id.Value, true
		}
	}
	return "", false
}

// HasCode reports whether the task code contains system|code.
func (t *Task) HasCode(system, code string) bool {
	return t.Code.Has(system, code)
}

// Version returns the store-assigned version id, or "" for unsaved tasks.
func (t *Task) Version() string {
	if t.Meta == nil {
		return ""
	}
	return t.Meta.VersionID
}

// LastUpdated returns meta.lastUpdated, falling back to lastModified.
func (t *Task) LastUpdated() time.Time {
	if t.Meta != nil && t.Meta.LastUpdated != nil {
		return *t.Meta.LastUpdated
	}
	if t.LastModified != nil {
		return *t.LastModified
	}
	return time.Time{}
}

// Transition moves the task to status and bumps lastModified. It refuses any
// move the state machine does not allow.
func (t *Task) Transition(to TaskStatus, now time.Time) error {
	if !CanTransition(t.Status, to) {
		return fmt.Errorf("task %s: illegal status transition %s -> %s", t.ID, t.Status, to)
	}
	t.Status = to
	now = now.UTC()
	t.LastModified = &now
	return nil
}

// FindInput returns the first input with the given type code.
func (t *Task) FindInput(system, code string) (TaskParameter, bool) {
	return findParameter(t.Input, system, code)
}

// FindOutput returns the first output with the given type code.
func (t *Task) FindOutput(system, code string) (TaskParameter, bool) {
	return findParameter(t.Output, system, code)
}

// MeasureURL returns the canonical URL of the measure input.
func (t *Task) MeasureURL() (string, bool) {
	in, ok := t.FindInput(CodeSystemTaskInput, InputMeasure)
	if !ok || in.ValueCanonical == "" {
		return "", false
	}
	return in.ValueCanonical, true
}

func findParameter(params []TaskParameter, system, code string) (TaskParameter, bool) {
	for _, p := range params {
		if p.Type.Has(system, code) {
			return p, true
		}
	}
	return TaskParameter{}, false
}

// NewEvaluateMeasureTask builds a ready task asking for the evaluation of
// measureURL on behalf of the message described by c.
func NewEvaluateMeasureTask(measureURL string, c Correlation, now time.Time) *Task {
	now = now.UTC()
	code := NewCodeableConcept(CodeSystemTaskCode, TaskCodeEvaluateMeasure)
	t := &Task{
		Identifier:            []Identifier{{System: IdentifierSystemMessageID, Value: c.InboundMessageID}},
		InstantiatesCanonical: ActivityDefinitionEvaluateMeasure,
		Status:                TaskStatusReady,
		Intent:                "order",
		Code:                  &code,
		AuthoredOn:            &now,
		LastModified:          &now,
		Input: []TaskParameter{{
			Type:           NewCodeableConcept(CodeSystemTaskInput, InputMeasure),
			ValueCanonical: measureURL,
		}},
	}
	t.SetCorrelation(c)
	return t
}
