package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/measure-hub/internal/api"
	"github.com/phrazzld/measure-hub/internal/config"
	"github.com/phrazzld/measure-hub/internal/events"
	"github.com/phrazzld/measure-hub/internal/fhir"
	"github.com/phrazzld/measure-hub/internal/messaging"
	"github.com/phrazzld/measure-hub/internal/pipeline"
	"github.com/phrazzld/measure-hub/internal/platform/beam"
	"github.com/phrazzld/measure-hub/internal/platform/datastore"
	"github.com/phrazzld/measure-hub/internal/platform/fhirstore"
	"github.com/phrazzld/measure-hub/internal/platform/sqlite"
	"github.com/phrazzld/measure-hub/internal/store"
	"github.com/phrazzld/measure-hub/internal/watermark"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// health answers GET /health, normally the task store client.
	health api.CapabilityChecker

	pipelines *pipeline.Registry
	statuses  *events.StatusRecorder

	closers []func() error
}

// dependencies are the external systems the pipelines talk to.
type dependencies struct {
	taskStore interface {
		store.TaskStore
		api.CapabilityChecker
		EnsureActivityDefinition(ctx context.Context, def *fhir.ActivityDefinition) (*fhir.ActivityDefinition, error)
	}
	broker    messaging.Broker
	evaluator pipeline.Evaluator
	marks     watermark.Store
}

// newApplication connects to the task store, Beam proxy and data store and
// builds a stopped supervisor for every pipeline.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{config: cfg, logger: logger}

	taskStore, err := fhirstore.NewClient(logger, cfg.TaskStore)
	if err != nil {
		return nil, fmt.Errorf("failed to create task store client: %w", err)
	}
	logger.Info("task store client created", "url", cfg.TaskStore.URL)

	beamClient, err := beam.NewClient(logger, cfg.Beam)
	if err != nil {
		return nil, fmt.Errorf("failed to create beam client: %w", err)
	}
	broker, err := messaging.NewBeamBroker(beamClient, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create message broker: %w", err)
	}

	evaluator, err := datastore.NewClient(logger, cfg.DataStore)
	if err != nil {
		return nil, fmt.Errorf("failed to create data store client: %w", err)
	}

	marks, err := app.openWatermarks(ctx)
	if err != nil {
		app.cleanup()
		return nil, err
	}

	app.wire(dependencies{
		taskStore: taskStore,
		broker:    broker,
		evaluator: evaluator,
		marks:     marks,
	})
	return app, nil
}

// openWatermarks returns the SQLite watermark store when a path is
// configured and an in-memory one otherwise.
func (app *application) openWatermarks(ctx context.Context) (watermark.Store, error) {
	path := app.config.Pipelines.WatermarkDB
	if path == "" {
		app.logger.Info("keeping response watermark in memory")
		return watermark.NewMemory(), nil
	}

	db, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open watermark database: %w", err)
	}
	app.closers = append(app.closers, db.Close)
	app.logger.Info("watermark database opened")
	return db, nil
}

// wire builds the event plumbing and one supervisor per pipeline.
func (app *application) wire(deps dependencies) {
	cfg := app.config.Pipelines

	app.health = deps.taskStore
	app.statuses = events.NewStatusRecorder()
	emitter := events.NewInMemoryEventEmitter(app.logger)
	emitter.RegisterHandler(app.statuses)

	supervise := func(p pipeline.Pipeline) *pipeline.Supervisor {
		return pipeline.NewSupervisor(p, cfg.RestartDelay, emitter, app.logger)
	}
	// Inbound creates the tasks that instantiate the definition, so it
	// registers it first and retries under supervision while the store is down.
	ensureDefinition := func(ctx context.Context) error {
		if _, err := deps.taskStore.EnsureActivityDefinition(ctx, fhir.EvaluateMeasureDefinition()); err != nil {
			app.logger.WarnContext(ctx, "failed to register evaluate-measure activity definition", "error", err)
			return err
		}
		app.logger.InfoContext(ctx, "evaluate-measure activity definition registered")
		return nil
	}

	app.pipelines = pipeline.NewRegistry(
		supervise(pipeline.WithSetup(pipeline.NewInbound(deps.broker, deps.taskStore, app.logger), ensureDefinition)),
		supervise(pipeline.NewExecutor(deps.taskStore, deps.evaluator, cfg.ExecutorInterval, app.logger)),
		supervise(pipeline.NewResponder(deps.taskStore, deps.broker, deps.marks, cfg.ResponseInterval, app.logger)),
		supervise(pipeline.NewSender(deps.taskStore, deps.broker, cfg.RequestInterval, app.logger)),
	)
}

// cleanup stops all pipelines and releases resources. It is safe to call
// more than once.
func (app *application) cleanup() {
	if app.pipelines != nil {
		app.pipelines.StopAll()
	}
	for _, closeFn := range app.closers {
		if err := closeFn(); err != nil {
			app.logger.Error("failed to close resource", "error", err)
		}
	}
	app.closers = nil
}
