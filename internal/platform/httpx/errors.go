package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

var exposeInternal atomic.Bool

// ExposeInternalErrors toggles echoing unexpected error text to clients.
// It must stay disabled in production.
func ExposeInternalErrors(enabled bool) {
	exposeInternal.Store(enabled)
}

// RespondError maps domain errors to the response envelope. Unexpected errors
// are logged with detail and reported to the client generically.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	if verr, ok := shared.AsValidationError(err); ok {
		Fail(w, http.StatusUnprocessableEntity, "The given data was invalid.", verr.Fields)
		return
	}
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Fail(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, shared.ErrForbidden):
		Fail(w, http.StatusForbidden, "You are not allowed to perform this action.", nil)
	case errors.Is(err, shared.ErrUnauthorized), errors.Is(err, shared.ErrInvalidCredentials):
		Fail(w, http.StatusUnauthorized, err.Error(), nil)
	case errors.Is(err, shared.ErrInvalidState):
		Fail(w, http.StatusUnprocessableEntity, err.Error(), nil)
	case errors.Is(err, shared.ErrConflict):
		Fail(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, shared.ErrBadRequest):
		Fail(w, http.StatusBadRequest, err.Error(), nil)
	default:
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("unexpected error", slog.Any("error", err))
		message := "An unexpected error occurred."
		if exposeInternal.Load() {
			message = err.Error()
		}
		Fail(w, http.StatusInternalServerError, message, nil)
	}
}
