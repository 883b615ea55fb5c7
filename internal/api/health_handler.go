package api

import (
	"context"
	"net/http"

	"github.com/phrazzld/measure-hub/internal/api/shared"
	"github.com/phrazzld/measure-hub/internal/fhir"
)

// CapabilityChecker reads the capability statement of the task store.
type CapabilityChecker interface {
	Metadata(ctx context.Context) (*fhir.CapabilityStatement, error)
}

// HealthHandler reports the reachability of the task store.
type HealthHandler struct {
	taskStore CapabilityChecker
}

// NewHealthHandler creates a health handler checking taskStore.
func NewHealthHandler(taskStore CapabilityChecker) *HealthHandler {
	return &HealthHandler{taskStore: taskStore}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	cs, err := h.taskStore.Metadata(r.Context())
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	resp := HealthResponse{
		Status:          "ok",
		TaskStoreStatus: cs.Status,
		FhirVersion:     cs.FhirVersion,
	}
	if cs.Software != nil {
		resp.Software = cs.Software.Name
		if cs.Software.Version != "" {
			resp.Software += " " + cs.Software.Version
		}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}
