// Package mocks provides in-memory stand-ins for the external systems of the
// hub: the FHIR task store, the Beam proxy, the message broker and the
// measure evaluator.
//
// The mocks behave like the real systems where tests depend on it. The task
// store assigns versions and rejects stale updates, and the Beam proxy keeps
// handing out a task until it is claimed. Single operations can be replaced
// through the ...Fn fields:
//
//	taskStore := mocks.NewMockTaskStore()
//	taskStore.UpdateTaskFn = func(ctx context.Context, task *fhir.Task) (*fhir.Task, error) {
//	    return nil, store.NewStoreError("Task", "update", "task "+task.ID, store.ErrConflict)
//	}
package mocks
