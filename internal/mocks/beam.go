package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/phrazzld/measure-hub/internal/platform/beam"
)

// Answer is a final result recorded by FakeBeam.
type Answer struct {
	TaskID string
	To     []string
	Status beam.Status
	Body   string
}

// FakeBeam is an in-memory Beam proxy for a single recipient. Like the real
// proxy it keeps handing out a task until it has been claimed.
type FakeBeam struct {
	mu      sync.Mutex
	inbox   []beam.Task
	claims  map[string]int
	created []beam.Task
	answers []Answer

	// PollWait is how long Retrieve blocks when nothing is visible.
	// Defaults to 5ms.
	PollWait time.Duration

	RetrieveFn func(ctx context.Context) ([]beam.Task, error)
	CreateFn   func(ctx context.Context, task beam.Task) error
	ClaimFn    func(ctx context.Context, task beam.Task) error
	AnswerFn   func(ctx context.Context, taskID string, to []string, status beam.Status, body string) error
}

// NewFakeBeam creates an empty proxy.
func NewFakeBeam() *FakeBeam {
	return &FakeBeam{
		claims:   make(map[string]int),
		PollWait: 5 * time.Millisecond,
	}
}

// Deliver queues tasks for retrieval.
func (f *FakeBeam) Deliver(tasks ...beam.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbox = append(f.inbox, tasks...)
}

// Claims returns how often taskID was claimed.
func (f *FakeBeam) Claims(taskID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claims[taskID]
}

// Created returns the tasks passed to Create, duplicates excluded.
func (f *FakeBeam) Created() []beam.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]beam.Task(nil), f.created...)
}

// Answers returns the recorded answers.
func (f *FakeBeam) Answers() []Answer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Answer(nil), f.answers...)
}

// Retrieve returns every unclaimed task, waiting up to PollWait when there
// is none.
func (f *FakeBeam) Retrieve(ctx context.Context) ([]beam.Task, error) {
	if f.RetrieveFn != nil {
		return f.RetrieveFn(ctx)
	}

	if tasks := f.visible(); len(tasks) > 0 {
		return tasks, nil
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(f.PollWait):
	}
	return f.visible(), nil
}

func (f *FakeBeam) visible() []beam.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []beam.Task
	for _, t := range f.inbox {
		if f.claims[t.ID] == 0 {
			out = append(out, t)
		}
	}
	return out
}

// Create records task unless one with the same id exists.
func (f *FakeBeam) Create(ctx context.Context, task beam.Task) error {
	if f.CreateFn != nil {
		return f.CreateFn(ctx, task)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.created {
		if t.ID == task.ID {
			return nil
		}
	}
	f.created = append(f.created, task)
	return nil
}

// Claim hides task from later retrievals.
func (f *FakeBeam) Claim(ctx context.Context, task beam.Task) error {
	if f.ClaimFn != nil {
		return f.ClaimFn(ctx, task)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims[task.ID]++
	return nil
}

// Answer records a final result.
func (f *FakeBeam) Answer(ctx context.Context, taskID string, to []string, status beam.Status, body string) error {
	if f.AnswerFn != nil {
		return f.AnswerFn(ctx, taskID, to, status, body)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, Answer{TaskID: taskID, To: to, Status: status, Body: body})
	return nil
}
