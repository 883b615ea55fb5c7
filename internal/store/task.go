package store

import (
	"context"
	"iter"
	"time"

	"github.com/phrazzld/measure-hub/internal/fhir"
)

// TaskFilter selects tasks in a search. Zero fields do not restrict.
type TaskFilter struct {
	// Statuses matches any of the listed statuses.
	Statuses []fhir.TaskStatus

	// Code matches tasks whose code contains this coding.
	Code *fhir.Coding

	// LastUpdatedFrom matches tasks last updated at or after this instant.
	LastUpdatedFrom time.Time
}

// TaskStore is the store holding Task work items and the resources they
// reference. It is the single source of truth for work item state; every
// mutation goes through UpdateTask's optimistic concurrency check.
type TaskStore interface {
	// FetchTask returns the task with id or a *ResourceNotFoundError.
	FetchTask(ctx context.Context, id string) (*fhir.Task, error)

	// SearchTasks streams all tasks matching filter, fetching pages lazily.
	// Iteration stops at the first error, which is yielded with a nil task.
	SearchTasks(ctx context.Context, filter TaskFilter) iter.Seq2[*fhir.Task, error]

	// CreateTask stores a new task. When ifNoneExist is a non-empty search
	// query (e.g. "identifier=system|value") and a task matches it, the
	// existing task is returned instead, so the id may differ from any the
	// caller expected.
	CreateTask(ctx context.Context, task *fhir.Task, ifNoneExist string) (*fhir.Task, error)

	// UpdateTask writes task if its version still matches the stored one and
	// returns the new version. A mismatch yields ErrConflict.
	UpdateTask(ctx context.Context, task *fhir.Task) (*fhir.Task, error)

	// FetchOrganization returns the organization with id.
	FetchOrganization(ctx context.Context, id string) (*fhir.Organization, error)

	// FetchEndpoint returns the endpoint with id.
	FetchEndpoint(ctx context.Context, id string) (*fhir.Endpoint, error)

	// FetchMeasureReport returns the measure report with id.
	FetchMeasureReport(ctx context.Context, id string) (*fhir.MeasureReport, error)

	// CreateMeasureReport stores a report and returns it with its assigned id.
	CreateMeasureReport(ctx context.Context, report *fhir.MeasureReport) (*fhir.MeasureReport, error)
}
