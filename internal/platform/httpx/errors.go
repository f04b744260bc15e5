package httpx

import (
	"errors"
	"net/http"

	"github.com/moneymint/moneymint/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Busy responses carry Retry-After so clients back off before retrying.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrBusy):
		w.Header().Set("Retry-After", "1")
		Problem(w, http.StatusConflict, "Busy", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate", shared.UserSafeMessage(err))
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
