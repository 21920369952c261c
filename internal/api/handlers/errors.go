package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/formbricks/precedent/internal/api/response"
	"github.com/formbricks/precedent/internal/api/validation"
	"github.com/formbricks/precedent/internal/huberrors"
)

// respondServiceError maps domain errors to problem responses. Storage and provider
// failures are logged and surfaced with a generic detail.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, generic string) {
	switch {
	case errors.Is(err, huberrors.ErrValidation):
		response.RespondBadRequest(w, err.Error())
	case errors.Is(err, huberrors.ErrNotFound):
		response.RespondNotFound(w, err.Error())
	default:
		slog.ErrorContext(r.Context(), generic, "error", err, "path", r.URL.Path)
		response.RespondInternalServerError(w, generic)
	}
}

// respondDecodeError writes 400 for malformed bodies and a field-level validation problem otherwise.
func respondDecodeError(w http.ResponseWriter, err error) {
	if validation.IsDecodeError(err) {
		response.RespondBadRequest(w, "Invalid request body")

		return
	}

	validation.RespondValidationError(w, err)
}
