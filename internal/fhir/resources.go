package fhir

import (
	"encoding/json"
	"strings"
)

// Parameters is the generic operation-parameter resource.
type Parameters struct {
	ID        string                `json:"id,omitempty"`
	Parameter []ParametersParameter `json:"parameter,omitempty"`
}

// ParametersParameter is a named value of a Parameters resource.
type ParametersParameter struct {
	Name           string `json:"name"`
	ValueCanonical string `json:"valueCanonical,omitempty"`
	ValueURI       string `json:"valueUri,omitempty"`
	ValueURL       string `json:"valueUrl,omitempty"`
	ValueString    string `json:"valueString,omitempty"`
}

// MarshalJSON writes the resource with its resourceType.
func (p Parameters) MarshalJSON() ([]byte, error) {
	type plain Parameters
	return encodeKeeping("Parameters", plain(p), nil)
}

// Value returns the first non-empty value of the parameter called name.
func (p *Parameters) Value(name string) (string, bool) {
	for _, param := range p.Parameter {
		if param.Name != name {
			continue
		}
		for _, v := range []string{param.ValueCanonical, param.ValueURI, param.ValueURL, param.ValueString} {
			if v != "" {
				return v, true
			}
		}
	}
	return "", false
}

// MeasureReport is the result of a measure evaluation. Group content and
// every undeclared member (subject, reporter, extensions ...) are kept
// verbatim.
type MeasureReport struct {
	ID      string          `json:"id,omitempty"`
	Meta    *Meta           `json:"meta,omitempty"`
	Status  string          `json:"status,omitempty"`
	Type    string          `json:"type,omitempty"`
	Measure string          `json:"measure,omitempty"`
	Date    string          `json:"date,omitempty"`
	Period  *Period         `json:"period,omitempty"`
	Group   json.RawMessage `json:"group,omitempty"`

	unknown members
}

// MarshalJSON writes the resource with its resourceType.
func (m MeasureReport) MarshalJSON() ([]byte, error) {
	type plain MeasureReport
	return encodeKeeping("MeasureReport", plain(m), m.unknown)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *MeasureReport) UnmarshalJSON(data []byte) error {
	type plain MeasureReport
	return decodeKeeping(data, (*plain)(m), &m.unknown)
}

// OperationOutcome reports errors and warnings.
type OperationOutcome struct {
	ID    string                  `json:"id,omitempty"`
	Issue []OperationOutcomeIssue `json:"issue"`

	unknown members
}

// OperationOutcomeIssue is one issue of an OperationOutcome.
type OperationOutcomeIssue struct {
	Severity    string `json:"severity"`
	Code        string `json:"code"`
	Diagnostics string `json:"diagnostics,omitempty"`

	unknown members
}

// MarshalJSON implements json.Marshaler.
func (i OperationOutcomeIssue) MarshalJSON() ([]byte, error) {
	type plain OperationOutcomeIssue
	return encodeKeeping("", plain(i), i.unknown)
}

// UnmarshalJSON implements json.Unmarshaler.
func (i *OperationOutcomeIssue) UnmarshalJSON(data []byte) error {
	type plain OperationOutcomeIssue
	return decodeKeeping(data, (*plain)(i), &i.unknown)
}

// MarshalJSON writes the resource with its resourceType.
func (o OperationOutcome) MarshalJSON() ([]byte, error) {
	type plain OperationOutcome
	return encodeKeeping("OperationOutcome", plain(o), o.unknown)
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *OperationOutcome) UnmarshalJSON(data []byte) error {
	type plain OperationOutcome
	return decodeKeeping(data, (*plain)(o), &o.unknown)
}

// NewErrorOutcome returns an outcome with one error issue.
func NewErrorOutcome(diagnostics string) *OperationOutcome {
	return &OperationOutcome{Issue: []OperationOutcomeIssue{{
		Severity:    "error",
		Code:        "exception",
		Diagnostics: diagnostics,
	}}}
}

// Summary joins the diagnostics of all issues.
func (o *OperationOutcome) Summary() string {
	if o == nil {
		return ""
	}
	parts := make([]string, 0, len(o.Issue))
	for _, issue := range o.Issue {
		if issue.Diagnostics != "" {
			parts = append(parts, issue.Diagnostics)
		} else {
			parts = append(parts, issue.Code)
		}
	}
	return strings.Join(parts, "; ")
}

// Organization is a recipient of outbound requests.
type Organization struct {
	ID       string      `json:"id,omitempty"`
	Meta     *Meta       `json:"meta,omitempty"`
	Name     string      `json:"name,omitempty"`
	Endpoint []Reference `json:"endpoint,omitempty"`

	unknown members
}

// MarshalJSON writes the resource with its resourceType.
func (o Organization) MarshalJSON() ([]byte, error) {
	type plain Organization
	return encodeKeeping("Organization", plain(o), o.unknown)
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Organization) UnmarshalJSON(data []byte) error {
	type plain Organization
	return decodeKeeping(data, (*plain)(o), &o.unknown)
}

// Endpoint holds the technical address of an organization.
type Endpoint struct {
	ID      string `json:"id,omitempty"`
	Meta    *Meta  `json:"meta,omitempty"`
	Status  string `json:"status,omitempty"`
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`

	unknown members
}

// MarshalJSON writes the resource with its resourceType.
func (e Endpoint) MarshalJSON() ([]byte, error) {
	type plain Endpoint
	return encodeKeeping("Endpoint", plain(e), e.unknown)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Endpoint) UnmarshalJSON(data []byte) error {
	type plain Endpoint
	return decodeKeeping(data, (*plain)(e), &e.unknown)
}

// ActivityDefinition describes the kind of work a Task instantiates.
type ActivityDefinition struct {
	ID     string           `json:"id,omitempty"`
	Meta   *Meta            `json:"meta,omitempty"`
	URL    string           `json:"url"`
	Name   string           `json:"name,omitempty"`
	Title  string           `json:"title,omitempty"`
	Status string           `json:"status"`
	Kind   string           `json:"kind,omitempty"`
	Code   *CodeableConcept `json:"code,omitempty"`

	unknown members
}

// MarshalJSON writes the resource with its resourceType.
func (a ActivityDefinition) MarshalJSON() ([]byte, error) {
	type plain ActivityDefinition
	return encodeKeeping("ActivityDefinition", plain(a), a.unknown)
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *ActivityDefinition) UnmarshalJSON(data []byte) error {
	type plain ActivityDefinition
	return decodeKeeping(data, (*plain)(a), &a.unknown)
}

// EvaluateMeasureDefinition is the activity definition referenced by every
// evaluate-measure task.
func EvaluateMeasureDefinition() *ActivityDefinition {
	code := NewCodeableConcept(CodeSystemTaskCode, TaskCodeEvaluateMeasure)
	return &ActivityDefinition{
		URL:    ActivityDefinitionEvaluateMeasure,
		Name:   "EvaluateMeasure",
		Title:  "Evaluate Measure",
		Status: "active",
		Kind:   "Task",
		Code:   &code,
	}
}

// CapabilityStatement is the answer of the metadata interaction. Only the
// fields used for health reporting are decoded.
type CapabilityStatement struct {
	Status      string `json:"status,omitempty"`
	FhirVersion string `json:"fhirVersion,omitempty"`
	Software    *struct {
		Name    string `json:"name,omitempty"`
		Version string `json:"version,omitempty"`
	} `json:"software,omitempty"`
}
