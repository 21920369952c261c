package handlers

import (
	"context"
	"net/http"

	"github.com/formbricks/precedent/internal/api/response"
	"github.com/formbricks/precedent/internal/api/validation"
	"github.com/formbricks/precedent/internal/models"
)

// QueueProcessor runs one embedding worker batch.
type QueueProcessor interface {
	ProcessBatch(ctx context.Context, limit int) (models.BatchResult, error)
}

// EmbeddingQueueHandler exposes on-demand queue processing.
type EmbeddingQueueHandler struct {
	processor    QueueProcessor
	defaultLimit int
}

// NewEmbeddingQueueHandler creates a handler. processor may be nil when no embedding
// provider is configured; requests then get 503.
func NewEmbeddingQueueHandler(processor QueueProcessor, defaultLimit int) *EmbeddingQueueHandler {
	return &EmbeddingQueueHandler{processor: processor, defaultLimit: defaultLimit}
}

// Process handles POST /v1/embedding-queue/process. The body is optional.
func (h *EmbeddingQueueHandler) Process(w http.ResponseWriter, r *http.Request) {
	if h.processor == nil {
		response.RespondServiceUnavailable(w, "embedding provider is not configured")

		return
	}

	var req models.ProcessQueueRequest
	if err := validation.DecodeAndValidateJSON(r, &req); err != nil {
		respondDecodeError(w, err)

		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = h.defaultLimit
	}

	result, err := h.processor.ProcessBatch(r.Context(), limit)
	if err != nil {
		respondServiceError(w, r, err, "Failed to process embedding queue")

		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}
