package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/formbricks/precedent/internal/api/response"
	"github.com/formbricks/precedent/internal/models"
)

// CasesStore reads and deletes cases.
type CasesStore interface {
	GetCase(ctx context.Context, id string) (*models.Case, error)
	DeleteCase(ctx context.Context, id string) (*models.DeleteCaseResult, error)
}

// CasesHandler handles case lookups and cascading deletes.
type CasesHandler struct {
	store CasesStore
}

// NewCasesHandler creates a new cases handler.
func NewCasesHandler(store CasesStore) *CasesHandler {
	return &CasesHandler{store: store}
}

// Get handles GET /v1/cases/{caseID}.
func (h *CasesHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.store.GetCase(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		respondServiceError(w, r, err, "Failed to get case")

		return
	}

	response.RespondJSON(w, http.StatusOK, c)
}

// Delete handles DELETE /v1/cases/{caseID}: the case, its responses, embeddings, typical
// examples and pending queue items are removed together.
func (h *CasesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	result, err := h.store.DeleteCase(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		respondServiceError(w, r, err, "Failed to delete case")

		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}
