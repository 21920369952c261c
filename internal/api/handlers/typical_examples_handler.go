package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/formbricks/precedent/internal/api/response"
	"github.com/formbricks/precedent/internal/api/validation"
	"github.com/formbricks/precedent/internal/models"
)

// TypicalExamplesService builds and lists representative answers per score bucket.
type TypicalExamplesService interface {
	Build(ctx context.Context, key models.BucketKey, k int) ([]models.TypicalExample, error)
	List(ctx context.Context, caseID, question string) ([]models.TypicalExample, error)
}

// TypicalExamplesHandler handles typical example rebuilds and reads.
type TypicalExamplesHandler struct {
	service TypicalExamplesService
	buckets *keyedMutex
}

// NewTypicalExamplesHandler creates a new typical examples handler.
func NewTypicalExamplesHandler(service TypicalExamplesService) *TypicalExamplesHandler {
	return &TypicalExamplesHandler{service: service, buckets: newKeyedMutex()}
}

// TypicalExamplesResponse wraps the examples of one bucket or question.
type TypicalExamplesResponse struct {
	Data []models.TypicalExample `json:"data"`
}

// ListTypicalExamplesParams are the query parameters of the list endpoint.
type ListTypicalExamplesParams struct {
	Question string `form:"question" validate:"required,question_key"`
}

// Build handles POST /v1/cases/{caseID}/typical-examples.
// Rebuilds of the same bucket run one at a time.
func (h *TypicalExamplesHandler) Build(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")

	var req models.BuildTypicalExamplesRequest
	if err := validation.DecodeAndValidateJSON(r, &req); err != nil {
		respondDecodeError(w, err)

		return
	}

	key := req.Key(caseID)

	unlock, err := h.buckets.Lock(r.Context(), key.String())
	if err != nil {
		response.RespondError(w, http.StatusServiceUnavailable, "Service Unavailable", "request canceled while waiting for bucket")

		return
	}
	defer unlock()

	examples, err := h.service.Build(r.Context(), key, req.K)
	if err != nil {
		respondServiceError(w, r, err, "Failed to build typical examples")

		return
	}

	response.RespondJSON(w, http.StatusOK, TypicalExamplesResponse{Data: examples})
}

// List handles GET /v1/cases/{caseID}/typical-examples?question=q1.
func (h *TypicalExamplesHandler) List(w http.ResponseWriter, r *http.Request) {
	var params ListTypicalExamplesParams
	if err := validation.ValidateAndDecodeQueryParams(r, &params); err != nil {
		respondDecodeError(w, err)

		return
	}

	examples, err := h.service.List(r.Context(), chi.URLParam(r, "caseID"), params.Question)
	if err != nil {
		respondServiceError(w, r, err, "Failed to list typical examples")

		return
	}

	response.RespondJSON(w, http.StatusOK, TypicalExamplesResponse{Data: examples})
}
