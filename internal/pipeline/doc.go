// Package pipeline contains the four long-running processes that move
// evaluate-measure work between the broker and the task store, and the
// supervisor that keeps each of them running.
//
//   - Inbound turns received evaluate-measure messages into ready tasks.
//   - Executor drives ready tasks through in-progress to completed or failed.
//   - Responder answers the messages behind completed and failed tasks.
//   - Sender forwards requested tasks to the site of their recipient.
//
// A pipeline's Run returns on the first error it cannot handle locally. The
// Supervisor logs it and runs the pipeline again after a fixed delay. At most
// one instance of a pipeline runs per process; conflicting writes to a task
// surface as store.ErrConflict and are never retried in place.
package pipeline
