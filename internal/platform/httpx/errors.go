package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aegis-platform/aegis/internal/shared"
)

// RespondError maps domain errors to HTTP responses. Authorization failures
// carry their per-item denial details; unexpected errors are logged and
// answered with a bare 500.
func RespondError(logger *slog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	var (
		unauth  *shared.UnauthorizedError
		blocked *shared.BlockedError
		exists  *shared.AlreadyExistsError
	)
	switch {
	case shared.IsNotFound(err):
		Problem(w, r, http.StatusNotFound, err.Error())
	case errors.As(err, &exists):
		Problem(w, r, http.StatusConflict, err.Error())
	case shared.IsValidation(err):
		Problem(w, r, http.StatusBadRequest, err.Error())
	case errors.As(err, &blocked):
		JSON(w, http.StatusForbidden, ProblemDetail{
			Title:  "Blocked",
			Status: http.StatusForbidden,
			Detail: err.Error(),
			Items:  blocked.Items,
		})
	case errors.As(err, &unauth):
		JSON(w, http.StatusForbidden, ProblemDetail{
			Title:  "Unauthorized",
			Status: http.StatusForbidden,
			Detail: err.Error(),
			Items:  unauth.Items,
		})
	default:
		if logger != nil {
			logger.ErrorContext(r.Context(), "request failed",
				slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		Problem(w, r, http.StatusInternalServerError, "internal error")
	}
}
