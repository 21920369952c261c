package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/formbricks/precedent/internal/api/response"
	"github.com/formbricks/precedent/internal/api/validation"
	"github.com/formbricks/precedent/internal/models"
	"github.com/formbricks/precedent/internal/service"
)

// RetrievalService finds precedents and similar cases or questions.
type RetrievalService interface {
	ScorePrecedents(ctx context.Context, caseID string, target [models.MainScoreCount]float64, k int) (
		[]models.ScoredResponse, error)
	SimilarCases(ctx context.Context, text string, k int) ([]models.SimilarCase, error)
	SimilarQuestions(ctx context.Context, text string, k int) ([]models.SimilarQuestion, error)
}

// RetrievalHandler handles similarity lookups.
type RetrievalHandler struct {
	service          RetrievalService
	embeddingEnabled bool
}

// NewRetrievalHandler creates a new retrieval handler. Text lookups answer 503 when
// embeddingEnabled is false; score lookups work regardless.
func NewRetrievalHandler(service RetrievalService, embeddingEnabled bool) *RetrievalHandler {
	return &RetrievalHandler{service: service, embeddingEnabled: embeddingEnabled}
}

// ResultsResponse wraps a ranked result list.
type ResultsResponse[T any] struct {
	Results []T `json:"results"`
}

// Precedents handles POST /v1/cases/{caseID}/precedents.
func (h *RetrievalHandler) Precedents(w http.ResponseWriter, r *http.Request) {
	var req models.PrecedentsRequest
	if err := validation.DecodeAndValidateJSON(r, &req); err != nil {
		respondDecodeError(w, err)

		return
	}

	var target [models.MainScoreCount]float64
	copy(target[:], req.Scores)

	results, err := h.service.ScorePrecedents(r.Context(), chi.URLParam(r, "caseID"), target, req.Limit)
	if err != nil {
		respondServiceError(w, r, err, "Failed to find precedents")

		return
	}

	response.RespondJSON(w, http.StatusOK, ResultsResponse[models.ScoredResponse]{Results: results})
}

// SimilarCases handles POST /v1/similar/cases.
func (h *RetrievalHandler) SimilarCases(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSimilar(w, r)
	if !ok {
		return
	}

	results, err := h.service.SimilarCases(r.Context(), req.Text, req.Limit)
	if err != nil {
		h.respondSimilarError(w, r, err, "Failed to find similar cases")

		return
	}

	response.RespondJSON(w, http.StatusOK, ResultsResponse[models.SimilarCase]{Results: results})
}

// SimilarQuestions handles POST /v1/similar/questions.
func (h *RetrievalHandler) SimilarQuestions(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSimilar(w, r)
	if !ok {
		return
	}

	results, err := h.service.SimilarQuestions(r.Context(), req.Text, req.Limit)
	if err != nil {
		h.respondSimilarError(w, r, err, "Failed to find similar questions")

		return
	}

	response.RespondJSON(w, http.StatusOK, ResultsResponse[models.SimilarQuestion]{Results: results})
}

func (h *RetrievalHandler) decodeSimilar(w http.ResponseWriter, r *http.Request) (models.SimilarRequest, bool) {
	var req models.SimilarRequest

	if !h.embeddingEnabled {
		response.RespondServiceUnavailable(w, "embedding provider is not configured")

		return req, false
	}

	if err := validation.DecodeAndValidateJSON(r, &req); err != nil {
		respondDecodeError(w, err)

		return req, false
	}

	return req, true
}

func (h *RetrievalHandler) respondSimilarError(w http.ResponseWriter, r *http.Request, err error, generic string) {
	if errors.Is(err, service.ErrEmptyQuery) {
		response.RespondBadRequest(w, "text is required and must be non-empty")

		return
	}

	respondServiceError(w, r, err, generic)
}
