package ledger

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for journal posting and ledger listing.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a ledger HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/ledger", func(r chi.Router) {
		r.Post("/journal", h.postJournal)
		r.Post("/transactions/{txID}/reverse", h.reverse)
		r.Get("/entries", h.listEntries)
		r.Get("/transactions/{txID}", h.getTransaction)
	})
}

type postingLineRequest struct {
	AccountID int64   `json:"account_id" validate:"required,gt=0"`
	Debit     float64 `json:"debit" validate:"gte=0"`
	Credit    float64 `json:"credit" validate:"gte=0"`
}

type postJournalRequest struct {
	Date               time.Time            `json:"date" validate:"required"`
	Description        string               `json:"description" validate:"required,max=500"`
	Currency           string               `json:"currency" validate:"omitempty,len=3"`
	ExchangeRateToBase float64              `json:"exchange_rate_to_base" validate:"gte=0"`
	Lines              []postingLineRequest `json:"lines" validate:"required,min=2,dive"`
}

func (h *Handler) postJournal(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing principal")
		return
	}
	var req postJournalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	lines := make([]PostingLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, PostingLine{AccountID: line.AccountID, Debit: line.Debit, Credit: line.Credit})
	}
	txn, err := h.service.Post(r.Context(), PostingInput{
		TenantID:           principal.TenantID,
		Date:               req.Date,
		Description:        req.Description,
		Currency:           req.Currency,
		ExchangeRateToBase: req.ExchangeRateToBase,
		SourceModule:       "ledger",
		PostedBy:           principal.UserID,
		Lines:              lines,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, txn)
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing principal")
		return
	}
	transactionID, err := uuid.Parse(chi.URLParam(r, "txID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid transaction id")
		return
	}
	reversal, err := h.service.Reverse(r.Context(), principal.TenantID, transactionID, principal.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reversal)
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing principal")
		return
	}
	transactionID, err := uuid.Parse(chi.URLParam(r, "txID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid transaction id")
		return
	}
	txn, err := h.service.GetTransaction(r.Context(), principal.TenantID, transactionID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing principal")
		return
	}
	in := ListInput{TenantID: principal.TenantID}
	query := r.URL.Query()
	if raw := query.Get("account_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid account_id")
			return
		}
		in.AccountID = id
	}
	for name, dst := range map[string]**time.Time{"from": &in.From, "to": &in.To} {
		if raw := query.Get(name); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", name+" must be RFC3339")
				return
			}
			*dst = &t
		}
	}
	in.Page, _ = strconv.Atoi(query.Get("page"))
	in.PerPage, _ = strconv.Atoi(query.Get("per_page"))

	entries, total, err := h.service.List(r.Context(), in)
	if err != nil {
		h.logger.Error("list ledger entries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entries":    entries,
		"pagination": shared.NewPagination(in.Page, in.PerPage, total),
	})
}
