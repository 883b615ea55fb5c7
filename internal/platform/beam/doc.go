// Package beam is a client for a Samply Beam proxy, the long-poll task broker
// used to exchange messages with remote sites.
//
// The proxy stores opaque tasks addressed to application ids. A task stays
// visible to Retrieve until its recipient submits a result, so a result with
// status claimed is what stops redelivery.
package beam
