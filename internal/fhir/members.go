package fhir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"
)

// members holds the JSON members of an element that its Go type does not
// declare. They are written back unchanged, so a resource read from a
// server and saved again loses nothing this package does not model.
type members map[string]json.RawMessage

var declaredCache sync.Map // reflect.Type -> map[string]bool

// declaredNames returns the JSON member names of the exported fields of t.
func declaredNames(t reflect.Type) map[string]bool {
	if cached, ok := declaredCache.Load(t); ok {
		return cached.(map[string]bool)
	}
	names := map[string]bool{"resourceType": true}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		names[name] = true
	}
	declaredCache.Store(t, names)
	return names
}

// decodeKeeping unmarshals data into v, a pointer to a struct, and stores
// the members v has no field for in rest.
func decodeKeeping(data []byte, v any, rest *members) error {
	if err := json.Unmarshal(data, v); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}

	declared := declaredNames(reflect.TypeOf(v).Elem())
	var kept members
	for name, raw := range all {
		if declared[name] {
			continue
		}
		if kept == nil {
			kept = make(members)
		}
		kept[name] = raw
	}
	*rest = kept
	return nil
}

// encodeKeeping encodes v, prepends resourceType when it is set and appends
// rest in name order.
func encodeKeeping(resourceType string, v any, rest members) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("element %T did not encode as an object", v)
	}
	if resourceType == "" && len(rest) == 0 {
		return body, nil
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + 32)
	buf.WriteByte('{')
	written := false
	member := func(name string, value []byte) {
		if written {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(name)
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
		written = true
	}

	if resourceType != "" {
		value, _ := json.Marshal(resourceType)
		member("resourceType", value)
	}
	if inner := bytes.TrimSpace(body[1 : len(body)-1]); len(inner) > 0 {
		if written {
			buf.WriteByte(',')
		}
		buf.Write(inner)
		written = true
	}
	for _, name := range slices.Sorted(maps.Keys(rest)) {
		member(name, rest[name])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
