package fhir

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrWrongResourceType is returned when JSON of one resource type is decoded
// as another.
var ErrWrongResourceType = errors.New("unexpected resource type")

// Meta holds the server-maintained resource metadata.
type Meta struct {
	VersionID   string     `json:"versionId,omitempty"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`

	unknown members
}

// MarshalJSON implements json.Marshaler.
func (m Meta) MarshalJSON() ([]byte, error) {
	type plain Meta
	return encodeKeeping("", plain(m), m.unknown)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Meta) UnmarshalJSON(data []byte) error {
	type plain Meta
	return decodeKeeping(data, (*plain)(m), &m.unknown)
}

// Coding is a reference to a code defined by a terminology system.
type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`

	unknown members
}

// MarshalJSON implements json.Marshaler.
func (c Coding) MarshalJSON() ([]byte, error) {
	type plain Coding
	return encodeKeeping("", plain(c), c.unknown)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Coding) UnmarshalJSON(data []byte) error {
	type plain Coding
	return decodeKeeping(data, (*plain)(c), &c.unknown)
}

// Is reports whether the coding has the given system and code.
func (c Coding) Is(system, code string) bool {
	return c.System == system && c.Code == code
}

// CodeableConcept is a set of codings plus optional text.
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`

	unknown members
}

// MarshalJSON implements json.Marshaler.
func (c CodeableConcept) MarshalJSON() ([]byte, error) {
	type plain CodeableConcept
	return encodeKeeping("", plain(c), c.unknown)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *CodeableConcept) UnmarshalJSON(data []byte) error {
	type plain CodeableConcept
	return decodeKeeping(data, (*plain)(c), &c.unknown)
}

// Has reports whether any coding of the concept matches system and code.
func (c *CodeableConcept) Has(system, code string) bool {
	if c == nil {
		return false
	}
	for _, coding := range c.Coding {
		if coding.Is(system, code) {
			return true
		}
	}
	return false
}

// NewCodeableConcept returns a concept with a single coding.
func NewCodeableConcept(system, code string) CodeableConcept {
	return CodeableConcept{Coding: []Coding{{System: system, Code: code}}}
}

// Identifier is a business identifier of a resource.
type Identifier struct {
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`

	unknown members
}

// MarshalJSON implements json.Marshaler.
func (i Identifier) MarshalJSON() ([]byte, error) {
	type plain Identifier
	return encodeKeeping("", plain(i), i.unknown)
}

// UnmarshalJSON implements json.Unmarshaler.
func (i *Identifier) UnmarshalJSON(data []byte) error {
	type plain Identifier
	return decodeKeeping(data, (*plain)(i), &i.unknown)
}

// Token renders the identifier as a search token "system|value".
func (i Identifier) Token() string {
	return i.System + "|" + i.Value
}

// Extension is a key/value pair attached to a resource.
type Extension struct {
	URL         string `json:"url"`
	ValueString string `json:"valueString,omitempty"`
	ValueURL    string `json:"valueUrl,omitempty"`

	unknown members
}

// MarshalJSON implements json.Marshaler.
func (e Extension) MarshalJSON() ([]byte, error) {
	type plain Extension
	return encodeKeeping("", plain(e), e.unknown)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Extension) UnmarshalJSON(data []byte) error {
	type plain Extension
	return decodeKeeping(data, (*plain)(e), &e.unknown)
}

// Value returns whichever value member is populated.
func (e Extension) Value() string {
	if e.ValueString != "" {
		return e.ValueString
	}
	return e.ValueURL
}

// Reference points at another resource, either relatively ("Type/id"),
// absolutely, or as a URN inside a bundle.
type Reference struct {
	Reference string `json:"reference,omitempty"`
	Type      string `json:"type,omitempty"`
	Display   string `json:"display,omitempty"`

	unknown members
}

// MarshalJSON implements json.Marshaler.
func (r Reference) MarshalJSON() ([]byte, error) {
	type plain Reference
	return encodeKeeping("", plain(r), r.unknown)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Reference) UnmarshalJSON(data []byte) error {
	type plain Reference
	return decodeKeeping(data, (*plain)(r), &r.unknown)
}

// NewReference builds a relative reference "resourceType/id".
func NewReference(resourceType, id string) Reference {
	return Reference{Reference: resourceType + "/" + id}
}

// TypeAndID splits a literal reference into its resource type and id. Absolute
// URLs and version suffixes ("/_history/n") are accepted. URN references
// yield ok=false.
func (r Reference) TypeAndID() (resourceType, id string, ok bool) {
	ref := r.Reference
	if ref == "" || strings.HasPrefix(ref, "urn:") || strings.HasPrefix(ref, "#") {
		return "", "", false
	}
	if i := strings.Index(ref, "/_history/"); i >= 0 {
		ref = ref[:i]
	}
	parts := strings.Split(strings.TrimSuffix(ref, "/"), "/")
	if len(parts) < 2 {
		return "", "", false
	}
	resourceType, id = parts[len(parts)-2], parts[len(parts)-1]
	if resourceType == "" || id == "" {
		return "", "", false
	}
	if r.Type != "" && r.Type != resourceType {
		return "", "", false
	}
	return resourceType, id, true
}

// Period is a time range. Bounds are kept as FHIR date/dateTime strings.
type Period struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`

	unknown members
}

// MarshalJSON implements json.Marshaler.
func (p Period) MarshalJSON() ([]byte, error) {
	type plain Period
	return encodeKeeping("", plain(p), p.unknown)
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Period) UnmarshalJSON(data []byte) error {
	type plain Period
	return decodeKeeping(data, (*plain)(p), &p.unknown)
}

// ResourceTypeOf returns the "resourceType" member of a JSON resource.
func ResourceTypeOf(raw json.RawMessage) string {
	var head struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return ""
	}
	return head.ResourceType
}

// Decode unmarshals raw into v after checking that raw is of resourceType.
func Decode(raw json.RawMessage, resourceType string, v any) error {
	if got := ResourceTypeOf(raw); got != resourceType {
		return fmt.Errorf("%w: want %s, got %q", ErrWrongResourceType, resourceType, got)
	}
	return json.Unmarshal(raw, v)
}
