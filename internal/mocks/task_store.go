package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/phrazzld/measure-hub/internal/fhir"
	"github.com/phrazzld/measure-hub/internal/store"
)

// MockTaskStore is an in-memory store.TaskStore. It assigns ids and
// versions, honours If-None-Exist identifier queries and rejects stale
// updates the way a FHIR server does. The Fn fields override single
// operations.
type MockTaskStore struct {
	mu sync.Mutex

	tasks         map[string]*fhir.Task
	reports       map[string]*fhir.MeasureReport
	organizations map[string]*fhir.Organization
	endpoints     map[string]*fhir.Endpoint
	nextID        int
	history       []fhir.Task

	// Now stamps meta.lastUpdated. Defaults to time.Now.
	Now func() time.Time

	FetchTaskFn           func(ctx context.Context, id string) (*fhir.Task, error)
	SearchTasksFn         func(ctx context.Context, filter store.TaskFilter) iter.Seq2[*fhir.Task, error]
	CreateTaskFn          func(ctx context.Context, task *fhir.Task, ifNoneExist string) (*fhir.Task, error)
	UpdateTaskFn          func(ctx context.Context, task *fhir.Task) (*fhir.Task, error)
	CreateMeasureReportFn func(ctx context.Context, report *fhir.MeasureReport) (*fhir.MeasureReport, error)
}

// NewMockTaskStore creates an empty store.
func NewMockTaskStore() *MockTaskStore {
	return &MockTaskStore{
		tasks:         make(map[string]*fhir.Task),
		reports:       make(map[string]*fhir.MeasureReport),
		organizations: make(map[string]*fhir.Organization),
		endpoints:     make(map[string]*fhir.Endpoint),
		Now:           time.Now,
	}
}

// PutTask seeds task as a new stored resource and returns the stored copy.
func (m *MockTaskStore) PutTask(task *fhir.Task) *fhir.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.insertTask(task))
}

// PutOrganization seeds an organization.
func (m *MockTaskStore) PutOrganization(org *fhir.Organization) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.organizations[org.ID] = clone(org)
}

// PutEndpoint seeds an endpoint.
func (m *MockTaskStore) PutEndpoint(ep *fhir.Endpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoints[ep.ID] = clone(ep)
}

// PutMeasureReport seeds a measure report.
func (m *MockTaskStore) PutMeasureReport(report *fhir.MeasureReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[report.ID] = clone(report)
}

// Task returns the stored task with id, or nil.
func (m *MockTaskStore) Task(id string) *fhir.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil
	}
	return clone(t)
}

// Tasks returns all stored tasks ordered by id.
func (m *MockTaskStore) Tasks() []*fhir.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*fhir.Task, 0, len(m.tasks))
	for _, id := range m.sortedIDs() {
		out = append(out, clone(m.tasks[id]))
	}
	return out
}

// MeasureReport returns the stored report with id, or nil.
func (m *MockTaskStore) MeasureReport(id string) *fhir.MeasureReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil
	}
	return clone(r)
}

// StatusHistory returns every status task id was written with, oldest first.
func (m *MockTaskStore) StatusHistory(id string) []fhir.TaskStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []fhir.TaskStatus
	for _, t := range m.history {
		if t.ID == id {
			out = append(out, t.Status)
		}
	}
	return out
}

// FetchTask implements store.TaskStore.
func (m *MockTaskStore) FetchTask(ctx context.Context, id string) (*fhir.Task, error) {
	if m.FetchTaskFn != nil {
		return m.FetchTaskFn(ctx, id)
	}
	if t := m.Task(id); t != nil {
		return t, nil
	}
	return nil, &store.ResourceNotFoundError{Type: "Task", ID: id}
}

// SearchTasks implements store.TaskStore over a snapshot taken when
// iteration starts.
func (m *MockTaskStore) SearchTasks(ctx context.Context, filter store.TaskFilter) iter.Seq2[*fhir.Task, error] {
	if m.SearchTasksFn != nil {
		return m.SearchTasksFn(ctx, filter)
	}
	return func(yield func(*fhir.Task, error) bool) {
		for _, t := range m.Tasks() {
			if !matches(t, filter) {
				continue
			}
			if !yield(t, nil) {
				return
			}
		}
	}
}

// CreateTask implements store.TaskStore. Only identifier=system|value
// conditions are understood.
func (m *MockTaskStore) CreateTask(ctx context.Context, task *fhir.Task, ifNoneExist string) (*fhir.Task, error) {
	if m.CreateTaskFn != nil {
		return m.CreateTaskFn(ctx, task, ifNoneExist)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if token, ok := strings.CutPrefix(ifNoneExist, "identifier="); ok {
		for _, id := range m.sortedIDs() {
			for _, ident := range m.tasks[id].Identifier {
				if ident.Token() == token {
					return clone(m.tasks[id]), nil
				}
			}
		}
	}
	if task.Status == "" {
		return nil, &store.BadRequestError{Outcome: fhir.NewErrorOutcome("Task.status is required")}
	}

	t := clone(task)
	t.ID = ""
	return clone(m.insertTask(t)), nil
}

// UpdateTask implements store.TaskStore with version checking.
func (m *MockTaskStore) UpdateTask(ctx context.Context, task *fhir.Task) (*fhir.Task, error) {
	if m.UpdateTaskFn != nil {
		return m.UpdateTaskFn(ctx, task)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.tasks[task.ID]
	if !ok {
		return nil, &store.ResourceNotFoundError{Type: "Task", ID: task.ID}
	}
	if task.Version() == "" {
		return nil, store.NewStoreError("Task", "update", "task "+task.ID, store.ErrMissingVersion)
	}
	if task.Version() != current.Version() {
		return nil, store.NewStoreError("Task", "update",
			fmt.Sprintf("task %s version %s", task.ID, task.Version()), store.ErrConflict)
	}

	version, _ := strconv.Atoi(current.Version())
	updated := clone(task)
	m.stamp(updated, version+1)
	m.tasks[updated.ID] = updated
	m.history = append(m.history, *clone(updated))
	return clone(updated), nil
}

// FetchOrganization implements store.TaskStore.
func (m *MockTaskStore) FetchOrganization(_ context.Context, id string) (*fhir.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.organizations[id]; ok {
		return clone(o), nil
	}
	return nil, &store.ResourceNotFoundError{Type: "Organization", ID: id}
}

// FetchEndpoint implements store.TaskStore.
func (m *MockTaskStore) FetchEndpoint(_ context.Context, id string) (*fhir.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.endpoints[id]; ok {
		return clone(e), nil
	}
	return nil, &store.ResourceNotFoundError{Type: "Endpoint", ID: id}
}

// FetchMeasureReport implements store.TaskStore.
func (m *MockTaskStore) FetchMeasureReport(_ context.Context, id string) (*fhir.MeasureReport, error) {
	if r := m.MeasureReport(id); r != nil {
		return r, nil
	}
	return nil, &store.ResourceNotFoundError{Type: "MeasureReport", ID: id}
}

// CreateMeasureReport implements store.TaskStore. A report that already
// carries an id keeps it.
func (m *MockTaskStore) CreateMeasureReport(ctx context.Context, report *fhir.MeasureReport) (*fhir.MeasureReport, error) {
	if m.CreateMeasureReportFn != nil {
		return m.CreateMeasureReportFn(ctx, report)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r := clone(report)
	if r.ID == "" {
		m.nextID++
		r.ID = fmt.Sprintf("report-%d", m.nextID)
	}
	now := m.Now().UTC()
	if r.Meta == nil {
		r.Meta = &fhir.Meta{}
	}
	r.Meta.VersionID = "1"
	r.Meta.LastUpdated = &now
	m.reports[r.ID] = r
	return clone(r), nil
}

func (m *MockTaskStore) insertTask(task *fhir.Task) *fhir.Task {
	t := clone(task)
	if t.ID == "" {
		m.nextID++
		t.ID = fmt.Sprintf("task-%d", m.nextID)
	}
	m.stamp(t, 1)
	m.tasks[t.ID] = t
	m.history = append(m.history, *clone(t))
	return t
}

func (m *MockTaskStore) stamp(t *fhir.Task, version int) {
	now := m.Now().UTC()
	if t.Meta == nil {
		t.Meta = &fhir.Meta{}
	}
	t.Meta.VersionID = strconv.Itoa(version)
	t.Meta.LastUpdated = &now
}

func (m *MockTaskStore) sortedIDs() []string {
	ids := make([]string, 0, len(m.tasks))
	for id := range m.tasks {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func matches(t *fhir.Task, filter store.TaskFilter) bool {
	if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, t.Status) {
		return false
	}
	if filter.Code != nil && !t.HasCode(filter.Code.System, filter.Code.Code) {
		return false
	}
	if !filter.LastUpdatedFrom.IsZero() && t.LastUpdated().Before(filter.LastUpdatedFrom) {
		return false
	}
	return true
}

// clone deep-copies a resource through its JSON form so callers never share
// state with the store.
func clone[T any](v *T) *T {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("mocks: cannot encode %T: %v", v, err))
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		panic(fmt.Sprintf("mocks: cannot decode %T: %v", v, err))
	}
	return out
}

var _ store.TaskStore = (*MockTaskStore)(nil)
