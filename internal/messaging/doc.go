// Package messaging exchanges FHIR message bundles with remote sites.
//
// Delivery is at least once. Receive hands out a Record per message and the
// message keeps coming back until the Record is acknowledged, so consumers
// acknowledge only after the effect of a message is stored. Messages that
// cannot be decoded or that nobody asked for are acknowledged right away,
// which drops them permanently.
package messaging
