// Package datastore evaluates measures against the FHIR server holding the
// clinical data.
package datastore
