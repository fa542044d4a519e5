package reconciliation

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for bank statement reconciliation.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a reconciliation HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers reconciliation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/bank-statements", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/import", h.importBatch)
		r.Post("/{id}/match", h.match)
		r.Post("/{id}/ignore", h.ignore)
	})
}

type importLineRequest struct {
	StatementDate   string  `json:"statement_date" validate:"required"`
	Description     string  `json:"description" validate:"max=500"`
	Amount          float64 `json:"amount" validate:"required"`
	ReferenceNumber string  `json:"reference_number" validate:"max=100"`
}

type importRequest struct {
	Lines []importLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type matchRequest struct {
	ChequeID *int64 `json:"cheque_id,omitempty"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing principal")
		return
	}
	query := r.URL.Query()
	in := ListInput{
		TenantID: principal.TenantID,
		Status:   StatementStatus(query.Get("status")),
	}
	if raw := query.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be RFC3339")
			return
		}
		in.From = &from
	}
	if raw := query.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be RFC3339")
			return
		}
		in.To = &to
	}
	in.Page, _ = strconv.Atoi(query.Get("page"))
	in.PerPage, _ = strconv.Atoi(query.Get("per_page"))

	lines, total, err := h.service.List(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"statements": lines,
		"pagination": shared.NewPagination(in.Page, in.PerPage, total),
	})
}

func (h *Handler) importBatch(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing principal")
		return
	}
	var req importRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	in := ImportInput{TenantID: principal.TenantID, ActorID: principal.UserID}
	for _, line := range req.Lines {
		date, err := time.Parse(time.RFC3339, line.StatementDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "statement_date must be RFC3339")
			return
		}
		in.Lines = append(in.Lines, ImportLine{
			StatementDate:   date,
			Description:     line.Description,
			Amount:          line.Amount,
			ReferenceNumber: line.ReferenceNumber,
		})
	}
	lines, err := h.service.Import(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"statements": lines})
}

func (h *Handler) match(w http.ResponseWriter, r *http.Request) {
	principal, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	var req matchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	line, err := h.service.MarkMatched(r.Context(), principal.TenantID, id, principal.UserID, req.ChequeID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *Handler) ignore(w http.ResponseWriter, r *http.Request) {
	principal, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	line, err := h.service.MarkIgnored(r.Context(), principal.TenantID, id, principal.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *Handler) principalAndID(w http.ResponseWriter, r *http.Request) (*shared.Principal, int64, bool) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing principal")
		return nil, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid statement id")
		return nil, 0, false
	}
	return principal, id, true
}
