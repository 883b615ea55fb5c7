package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/measure-hub/internal/fhir"
	"github.com/phrazzld/measure-hub/internal/store"
)

// ErrMissingMeasureURL fails a task that has no measure input. Its text
// becomes the error output of the task.
var ErrMissingMeasureURL = errors.New("Missing Measure URL in Task input.") //nolint:staticcheck // exact text expected by peers

// Evaluator computes a MeasureReport for a measure.
type Evaluator interface {
	Evaluate(ctx context.Context, measureURL string) (*fhir.MeasureReport, error)
}

// evaluateMeasureCode is the task code every pipeline filters on.
var evaluateMeasureCode = fhir.Coding{System: fhir.CodeSystemTaskCode, Code: fhir.TaskCodeEvaluateMeasure}

// Executor evaluates ready evaluate-measure tasks.
type Executor struct {
	store     store.TaskStore
	evaluator Evaluator
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewExecutor creates the executor pipeline. interval is the pause between
// sweeps.
func NewExecutor(taskStore store.TaskStore, evaluator Evaluator, interval time.Duration, logger *slog.Logger) *Executor {
	return &Executor{
		store:     taskStore,
		evaluator: evaluator,
		interval:  interval,
		logger:    logger.With("component", "pipeline", "pipeline", "executor"),
		now:       time.Now,
	}
}

// Name implements Pipeline.
func (p *Executor) Name() string { return "executor" }

// Run implements Pipeline. Every sweep lists all ready tasks again; there is
// no cursor.
func (p *Executor) Run(ctx context.Context) error {
	for {
		if err := p.sweep(ctx); err != nil {
			return err
		}
		if err := sleep(ctx, p.interval); err != nil {
			return err
		}
	}
}

func (p *Executor) sweep(ctx context.Context) error {
	filter := store.TaskFilter{
		Statuses: []fhir.TaskStatus{fhir.TaskStatusReady},
		Code:     &evaluateMeasureCode,
	}
	for task, err := range p.store.SearchTasks(ctx, filter) {
		if err != nil {
			return fmt.Errorf("failed to search ready tasks: %w", err)
		}
		if _, err := p.execute(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

// execute moves task through in-progress to completed or failed. Only
// failures to write the task itself are returned.
func (p *Executor) execute(ctx context.Context, task *fhir.Task) (*fhir.Task, error) {
	logger := p.logger.With("task_id", task.ID)

	if err := task.Transition(fhir.TaskStatusInProgress, p.now()); err != nil {
		return nil, err
	}
	task, err := p.store.UpdateTask(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("failed to mark task in progress: %w", err)
	}

	report, evalErr := p.evaluate(ctx, task)
	if evalErr != nil {
		if err := task.Transition(fhir.TaskStatusFailed, p.now()); err != nil {
			return nil, err
		}
		task.Output = append(task.Output, fhir.TaskParameter{
			Type:        fhir.NewCodeableConcept(fhir.CodeSystemTaskOutput, fhir.OutputError),
			ValueString: evalErr.Error(),
		})
		task, err = p.store.UpdateTask(ctx, task)
		if err != nil {
			return nil, fmt.Errorf("failed to mark task failed: %w", err)
		}
		logger.WarnContext(ctx, "task failed", "error", evalErr)
		return task, nil
	}

	if err := task.Transition(fhir.TaskStatusCompleted, p.now()); err != nil {
		return nil, err
	}
	ref := fhir.NewReference("MeasureReport", report.ID)
	task.Output = append(task.Output, fhir.TaskParameter{
		Type:           fhir.NewCodeableConcept(fhir.CodeSystemTaskOutput, fhir.OutputMeasureReport),
		ValueReference: &ref,
	})
	task, err = p.store.UpdateTask(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("failed to mark task completed: %w", err)
	}
	logger.InfoContext(ctx, "task completed", "measure_report", ref.Reference)
	return task, nil
}

// evaluate runs the measure of task and stores the resulting report.
func (p *Executor) evaluate(ctx context.Context, task *fhir.Task) (*fhir.MeasureReport, error) {
	measureURL, ok := task.MeasureURL()
	if !ok {
		return nil, ErrMissingMeasureURL
	}

	report, err := p.evaluator.Evaluate(ctx, measureURL)
	if err != nil {
		return nil, err
	}
	stored, err := p.store.CreateMeasureReport(ctx, report)
	if err != nil {
		return nil, fmt.Errorf("failed to store measure report: %w", err)
	}
	return stored, nil
}
