package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/measure-hub/internal/api"
	apiMiddleware "github.com/phrazzld/measure-hub/internal/api/middleware"
)

// setupRouter creates the control API router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))

	pipelineHandler := api.NewPipelineHandler(app.pipelines, app.statuses, app.logger)
	healthHandler := api.NewHealthHandler(app.health)

	r.Route("/api/pipelines", func(r chi.Router) {
		r.Get("/", pipelineHandler.ListPipelines)
		r.Get("/{name}", pipelineHandler.GetPipeline)
		r.Post("/{name}/start", pipelineHandler.StartPipeline)
		r.Post("/{name}/stop", pipelineHandler.StopPipeline)
	})

	r.Get("/health", healthHandler.Health)

	return r
}
