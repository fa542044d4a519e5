// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RespondError maps domain errors to RFC7807 responses by category. Domain
// packages wrap the shared category sentinels, so one errors.Is per
// category covers every operation in the core.
func RespondError(w http.ResponseWriter, err error) {
	var precondition *shared.PreconditionError
	switch {
	case errors.As(err, &precondition):
		ProblemWith(w, http.StatusPreconditionFailed, "Precondition Failed", precondition.Detail, map[string]any{
			"checks": precondition.Checks,
		})
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
