// Package fhir contains the subset of the FHIR R4 resource model that the
// task exchange core reads and writes: Task work items, message Bundles and
// the payload resources carried inside them.
//
// Resources are plain structs with JSON tags. Each resource type writes its
// own "resourceType" member on encoding; decoding ignores it, so callers that
// receive untyped JSON (bundle entries, search results) should check the type
// with ResourceTypeOf before decoding.
package fhir
