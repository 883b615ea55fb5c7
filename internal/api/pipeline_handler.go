package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/measure-hub/internal/api/shared"
	"github.com/phrazzld/measure-hub/internal/events"
	"github.com/phrazzld/measure-hub/internal/pipeline"
	"github.com/phrazzld/measure-hub/internal/platform/logger"
)

// PipelineRegistry gives access to the supervisors of all pipelines.
type PipelineRegistry interface {
	Get(name string) (*pipeline.Supervisor, bool)
	All() []*pipeline.Supervisor
}

// StatusSource reports what is known about a pipeline from its events.
type StatusSource interface {
	Status(pipeline string) (events.Status, bool)
}

// PipelineHandler lists, starts and stops pipelines.
type PipelineHandler struct {
	pipelines PipelineRegistry
	statuses  StatusSource
	logger    *slog.Logger
}

// NewPipelineHandler creates a handler over pipelines and their statuses.
func NewPipelineHandler(pipelines PipelineRegistry, statuses StatusSource, logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{
		pipelines: pipelines,
		statuses:  statuses,
		logger:    logger.With("component", "pipeline_handler"),
	}
}

// ListPipelines handles GET /api/pipelines.
func (h *PipelineHandler) ListPipelines(w http.ResponseWriter, r *http.Request) {
	resp := PipelinesResponse{Pipelines: []PipelineResponse{}}
	for _, s := range h.pipelines.All() {
		resp.Pipelines = append(resp.Pipelines, h.describe(s))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// GetPipeline handles GET /api/pipelines/{name}.
func (h *PipelineHandler) GetPipeline(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, h.describe(s))
}

// StartPipeline handles POST /api/pipelines/{name}/start. Starting a running
// pipeline is not an error.
func (h *PipelineHandler) StartPipeline(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if s.Start() {
		logger.FromContextOrDefault(r.Context(), h.logger).InfoContext(r.Context(),
			"pipeline started by operator", "pipeline", s.Name())
	}
	shared.RespondWithJSON(w, r, http.StatusOK, h.describe(s))
}

// StopPipeline handles POST /api/pipelines/{name}/stop. It returns once the
// pipeline has stopped.
func (h *PipelineHandler) StopPipeline(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if s.Stop() {
		logger.FromContextOrDefault(r.Context(), h.logger).InfoContext(r.Context(),
			"pipeline stopped by operator", "pipeline", s.Name())
	}
	shared.RespondWithJSON(w, r, http.StatusOK, h.describe(s))
}

func (h *PipelineHandler) lookup(w http.ResponseWriter, r *http.Request) (*pipeline.Supervisor, bool) {
	name := chi.URLParam(r, "name")
	s, ok := h.pipelines.Get(name)
	if !ok {
		respondWithError(w, r, fmt.Errorf("%w: %q", ErrPipelineNotFound, name))
		return nil, false
	}
	return s, true
}

func (h *PipelineHandler) describe(s *pipeline.Supervisor) PipelineResponse {
	status, ok := h.statuses.Status(s.Name())
	return newPipelineResponse(s.Name(), s.Running(), status, ok)
}
