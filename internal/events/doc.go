// Package events carries pipeline lifecycle events from the supervisors to
// whoever wants to observe them.
//
// The primary components are:
// - PipelineEvent: a pipeline started, failed or stopped
// - EventHandler: Interface for components that can handle events
// - EventEmitter: Interface for components that can emit events
// - StatusRecorder: a handler keeping the latest state of every pipeline
package events
