package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/formbricks/precedent/internal/api/response"
	"github.com/formbricks/precedent/internal/api/validation"
	"github.com/formbricks/precedent/internal/csvstream"
	"github.com/formbricks/precedent/internal/huberrors"
	"github.com/formbricks/precedent/internal/models"
)

const ndjsonContentType = "application/x-ndjson"

// IngestionStreamer starts a streamed ingestion of an uploaded CSV body.
type IngestionStreamer interface {
	StreamUpload(ctx context.Context, body io.Reader, hint csvstream.Encoding, sourceName string) (
		<-chan models.ProgressEvent, error)
}

// IngestionHandler handles CSV uploads.
type IngestionHandler struct {
	pipeline     IngestionStreamer
	maxBodyBytes int64
}

// NewIngestionHandler creates a new ingestion handler. maxBodyBytes <= 0 disables the limit.
func NewIngestionHandler(pipeline IngestionStreamer, maxBodyBytes int64) *IngestionHandler {
	return &IngestionHandler{pipeline: pipeline, maxBodyBytes: maxBodyBytes}
}

// IngestionParams are the query parameters of POST /v1/ingestions.
type IngestionParams struct {
	Encoding   csvstream.Encoding `form:"encoding"`
	SourceName string             `form:"source_name" validate:"max=200,no_null_bytes"`
}

// Create handles POST /v1/ingestions. The body is the raw CSV export; the response is an
// NDJSON stream of progress events ending with one completed or error event.
func (h *IngestionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var params IngestionParams
	if err := validation.ValidateAndDecodeQueryParams(r, &params); err != nil {
		if errors.Is(err, validation.ErrValidationFailed) {
			validation.RespondValidationError(w, err)

			return
		}

		response.RespondBadRequest(w, "encoding must be one of auto, utf-8, shift_jis")

		return
	}

	body := io.Reader(r.Body)
	if h.maxBodyBytes > 0 {
		body = &limitedBody{r: http.MaxBytesReader(w, r.Body, h.maxBodyBytes)}
	}

	events, err := h.pipeline.StreamUpload(r.Context(), body, params.Encoding, params.SourceName)
	if err != nil {
		var tooLarge *huberrors.LimitExceededError

		switch {
		case errors.Is(err, csvstream.ErrUnsupportedEncoding):
			response.RespondBadRequest(w, "unsupported encoding")
		case errors.As(err, &tooLarge):
			response.RespondRequestEntityTooLarge(w, tooLarge.Error())
		default:
			slog.WarnContext(r.Context(), "ingestion upload unreadable", "error", err)
			response.RespondBadRequest(w, "request body could not be read")
		}

		return
	}

	w.Header().Set("Content-Type", ndjsonContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	writable := true

	// Drain every event even after the client is gone so the pipeline goroutine can finish.
	for ev := range events {
		if !writable {
			continue
		}

		if err := enc.Encode(ev); err != nil {
			slog.WarnContext(r.Context(), "progress stream write failed", "error", err)

			writable = false

			continue
		}

		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			writable = false
		}
	}
}

// limitedBody turns the body limit error into a huberrors.LimitExceededError, so the
// pipeline can report it after the stream has started.
type limitedBody struct {
	r io.Reader
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return n, huberrors.NewLimitExceededError("request body", tooLarge.Limit)
	}

	return n, err //nolint:wrapcheck // io.EOF must reach the decoder unwrapped
}
