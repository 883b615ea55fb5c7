package fhir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evaluateMeasureMessage(t *testing.T) *Bundle {
	t.Helper()

	params, err := NewEntry("urn:uuid:params-1", &Parameters{Parameter: []ParametersParameter{
		{Name: "measure", ValueCanonical: "https://x/Measure/m"},
	}})
	require.NoError(t, err)

	msg, err := NewMessage(&MessageHeader{
		ID:          "msg-1",
		EventCoding: Coding{System: CodeSystemMessageEvent, Code: EventEvaluateMeasure},
		Focus:       []Reference{{Reference: "urn:uuid:params-1"}},
	}, params)
	require.NoError(t, err)
	return msg
}

func TestBundle_Header(t *testing.T) {
	t.Parallel()

	msg := evaluateMeasureMessage(t)

	h, err := msg.Header()
	require.NoError(t, err)
	assert.Equal(t, "msg-1", h.ID)
	assert.Equal(t, EventEvaluateMeasure, h.Event())

	_, err = (&Bundle{Type: BundleTypeSearchset}).Header()
	assert.ErrorIs(t, err, ErrNotMessage)

	_, err = (&Bundle{Type: BundleTypeMessage}).Header()
	assert.ErrorIs(t, err, ErrMissingHeader)
}

func TestBundle_SetHeader(t *testing.T) {
	t.Parallel()

	msg := evaluateMeasureMessage(t)
	h, err := msg.Header()
	require.NoError(t, err)

	h.ID = "broker-task-id"
	h.Source = &MessageSource{Endpoint: "app.proxy.broker"}
	require.NoError(t, msg.SetHeader(h))

	again, err := msg.Header()
	require.NoError(t, err)
	assert.Equal(t, "broker-task-id", again.ID)
	assert.Equal(t, "app.proxy.broker", again.Source.Endpoint)
}

func TestBundle_Resolve(t *testing.T) {
	t.Parallel()

	msg := evaluateMeasureMessage(t)
	report, err := NewEntry("", &MeasureReport{ID: "r42", Status: "complete"})
	require.NoError(t, err)
	task, err := NewEntry("http://store/fhir/Task/t1", &Task{ID: "t1", Status: TaskStatusRequested})
	require.NoError(t, err)
	msg.Entry = append(msg.Entry, report, task)

	raw, err := msg.Resolve(Reference{Reference: "urn:uuid:params-1"})
	require.NoError(t, err)
	var params Parameters
	require.NoError(t, Decode(raw, "Parameters", &params))
	v, ok := params.Value("measure")
	require.True(t, ok)
	assert.Equal(t, "https://x/Measure/m", v)

	raw, err = msg.Resolve(Reference{Reference: "MeasureReport/r42"})
	require.NoError(t, err)
	assert.Equal(t, "MeasureReport", ResourceTypeOf(raw))

	raw, err = msg.Resolve(Reference{Reference: "Task/t1"})
	require.NoError(t, err)
	assert.Equal(t, "Task", ResourceTypeOf(raw))

	_, err = msg.Resolve(Reference{Reference: "urn:uuid:missing"})
	assert.ErrorIs(t, err, ErrUnresolvedReference)
}

func TestBundle_MarshalIncludesResourceType(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(evaluateMeasureMessage(t))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "Bundle", decoded["resourceType"])
	assert.Equal(t, "message", decoded["type"])
}

func TestParameters_Value(t *testing.T) {
	t.Parallel()

	p := &Parameters{Parameter: []ParametersParameter{
		{Name: "other", ValueString: "x"},
		{Name: "measure", ValueURI: "https://x/Measure/uri"},
	}}

	v, ok := p.Value("measure")
	require.True(t, ok)
	assert.Equal(t, "https://x/Measure/uri", v)

	_, ok = p.Value("missing")
	assert.False(t, ok)
}
