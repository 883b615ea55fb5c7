package fhir

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Bundle types used here.
const (
	BundleTypeMessage   = "message"
	BundleTypeSearchset = "searchset"
)

// Message validation errors.
var (
	ErrNotMessage          = errors.New("bundle is not of type message")
	ErrMissingHeader       = errors.New("message bundle has no MessageHeader")
	ErrUnresolvedReference = errors.New("reference cannot be resolved inside bundle")
)

// Bundle is a container of resources: a message or a search result page.
type Bundle struct {
	ID        string        `json:"id,omitempty"`
	Meta      *Meta         `json:"meta,omitempty"`
	Type      string        `json:"type"`
	Timestamp *time.Time    `json:"timestamp,omitempty"`
	Total     *int          `json:"total,omitempty"`
	Link      []BundleLink  `json:"link,omitempty"`
	Entry     []BundleEntry `json:"entry,omitempty"`

	unknown members
}

// BundleLink is a paging or self link of a bundle.
type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

// BundleEntry holds one resource as undecoded JSON.
type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`

	unknown members
}

// MarshalJSON implements json.Marshaler.
func (e BundleEntry) MarshalJSON() ([]byte, error) {
	type plain BundleEntry
	return encodeKeeping("", plain(e), e.unknown)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *BundleEntry) UnmarshalJSON(data []byte) error {
	type plain BundleEntry
	return decodeKeeping(data, (*plain)(e), &e.unknown)
}

// MarshalJSON writes the bundle with its resourceType.
func (b Bundle) MarshalJSON() ([]byte, error) {
	type plain Bundle
	return encodeKeeping("Bundle", plain(b), b.unknown)
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Bundle) UnmarshalJSON(data []byte) error {
	type plain Bundle
	return decodeKeeping(data, (*plain)(b), &b.unknown)
}

// NextLink returns the URL of the next search page, or "".
func (b *Bundle) NextLink() string {
	for _, l := range b.Link {
		if l.Relation == "next" {
			return l.URL
		}
	}
	return ""
}

// NewEntry encodes resource into a bundle entry.
func NewEntry(fullURL string, resource any) (BundleEntry, error) {
	raw, err := json.Marshal(resource)
	if err != nil {
		return BundleEntry{}, fmt.Errorf("failed to encode bundle entry %s: %w", fullURL, err)
	}
	return BundleEntry{FullURL: fullURL, Resource: raw}, nil
}

// MessageHeader is the first entry of every message bundle.
type MessageHeader struct {
	ID          string               `json:"id,omitempty"`
	EventCoding Coding               `json:"eventCoding"`
	Destination []MessageDestination `json:"destination,omitempty"`
	Source      *MessageSource       `json:"source,omitempty"`
	Response    *MessageResponse     `json:"response,omitempty"`
	Focus       []Reference          `json:"focus,omitempty"`

	unknown members
}

// MessageDestination is a receiver of a message.
type MessageDestination struct {
	Name     string `json:"name,omitempty"`
	Endpoint string `json:"endpoint"`

	unknown members
}

// MarshalJSON implements json.Marshaler.
func (m MessageDestination) MarshalJSON() ([]byte, error) {
	type plain MessageDestination
	return encodeKeeping("", plain(m), m.unknown)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *MessageDestination) UnmarshalJSON(data []byte) error {
	type plain MessageDestination
	return decodeKeeping(data, (*plain)(m), &m.unknown)
}

// MessageSource is the sender of a message.
type MessageSource struct {
	Name     string `json:"name,omitempty"`
	Endpoint string `json:"endpoint"`

	unknown members
}

// MarshalJSON implements json.Marshaler.
func (m MessageSource) MarshalJSON() ([]byte, error) {
	type plain MessageSource
	return encodeKeeping("", plain(m), m.unknown)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *MessageSource) UnmarshalJSON(data []byte) error {
	type plain MessageSource
	return decodeKeeping(data, (*plain)(m), &m.unknown)
}

// MessageResponse correlates a response with the message it answers.
type MessageResponse struct {
	Identifier string       `json:"identifier"`
	Code       ResponseCode `json:"code"`

	unknown members
}

// MarshalJSON implements json.Marshaler.
func (m MessageResponse) MarshalJSON() ([]byte, error) {
	type plain MessageResponse
	return encodeKeeping("", plain(m), m.unknown)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *MessageResponse) UnmarshalJSON(data []byte) error {
	type plain MessageResponse
	return decodeKeeping(data, (*plain)(m), &m.unknown)
}

// MarshalJSON writes the header with its resourceType.
func (h MessageHeader) MarshalJSON() ([]byte, error) {
	type plain MessageHeader
	return encodeKeeping("MessageHeader", plain(h), h.unknown)
}

// UnmarshalJSON implements json.Unmarshaler.
func (h *MessageHeader) UnmarshalJSON(data []byte) error {
	type plain MessageHeader
	return decodeKeeping(data, (*plain)(h), &h.unknown)
}

// Event returns the event code of the message.
func (h *MessageHeader) Event() string {
	return h.EventCoding.Code
}

// Destinations returns the endpoints of all destinations.
func (h *MessageHeader) Destinations() []string {
	out := make([]string, 0, len(h.Destination))
	for _, d := range h.Destination {
		if d.Endpoint != "" {
			out = append(out, d.Endpoint)
		}
	}
	return out
}

// CorrelationID returns the identifier of the message this one responds to.
func (h *MessageHeader) CorrelationID() (string, bool) {
	if h.Response == nil || h.Response.Identifier == "" {
		return "", false
	}
	return h.Response.Identifier, true
}

// NewMessage assembles a message bundle from a header and payload entries.
func NewMessage(header *MessageHeader, payload ...BundleEntry) (*Bundle, error) {
	headerEntry, err := NewEntry(headerFullURL(header), header)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Bundle{
		Type:      BundleTypeMessage,
		Timestamp: &now,
		Entry:     append([]BundleEntry{headerEntry}, payload...),
	}, nil
}

func headerFullURL(h *MessageHeader) string {
	if h.ID == "" {
		return ""
	}
	return "urn:uuid:" + h.ID
}

// Header decodes the MessageHeader of a message bundle.
func (b *Bundle) Header() (*MessageHeader, error) {
	if b.Type != BundleTypeMessage {
		return nil, fmt.Errorf("%w: type %q", ErrNotMessage, b.Type)
	}
	i := b.headerIndex()
	if i < 0 {
		return nil, ErrMissingHeader
	}
	var h MessageHeader
	if err := json.Unmarshal(b.Entry[i].Resource, &h); err != nil {
		return nil, fmt.Errorf("failed to decode MessageHeader: %w", err)
	}
	return &h, nil
}

// SetHeader replaces the MessageHeader entry of a message bundle.
func (b *Bundle) SetHeader(h *MessageHeader) error {
	i := b.headerIndex()
	if i < 0 {
		return ErrMissingHeader
	}
	raw, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to encode MessageHeader: %w", err)
	}
	b.Entry[i].Resource = raw
	return nil
}

func (b *Bundle) headerIndex() int {
	for i, e := range b.Entry {
		if ResourceTypeOf(e.Resource) == "MessageHeader" {
			return i
		}
	}
	return -1
}

// Resolve finds the entry a reference points at, matching on fullUrl first
// and on resource type and id second.
func (b *Bundle) Resolve(ref Reference) (json.RawMessage, error) {
	if ref.Reference == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrUnresolvedReference)
	}
	for _, e := range b.Entry {
		if e.FullURL != "" && e.FullURL == ref.Reference {
			return e.Resource, nil
		}
	}
	if typ, id, ok := ref.TypeAndID(); ok {
		for _, e := range b.Entry {
			if strings.HasSuffix(e.FullURL, "/"+typ+"/"+id) {
				return e.Resource, nil
			}
			if rt, rid := identify(e.Resource); rt == typ && rid == id {
				return e.Resource, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnresolvedReference, ref.Reference)
}

func identify(raw json.RawMessage) (resourceType, id string) {
	var head struct {
		ResourceType string `json:"resourceType"`
		ID           string `json:"id"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return "", ""
	}
	return head.ResourceType, head.ID
}
