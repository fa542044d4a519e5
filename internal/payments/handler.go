package payments

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/invoices"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for payments and the cheque lifecycle.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	idempotent *shared.IdempotencyStore
	validate   *validator.Validate
}

// NewHandler constructs a payments HTTP handler. The idempotency store may
// be nil; record-payment then skips replay protection.
func NewHandler(logger *slog.Logger, service *Service, idempotent *shared.IdempotencyStore) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, idempotent: idempotent, validate: validator.New()}
}

// MountRoutes registers payment and cheque routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/payments", func(r chi.Router) {
		r.Post("/", h.record)
		r.Get("/{id}", h.get)
	})
	r.Route("/cheques", func(r chi.Router) {
		r.Get("/{id}", h.getCheque)
		r.Post("/{id}/status", h.transition)
		r.Post("/{id}/cancel", h.cancel)
	})
	r.Get("/payment-methods", h.listMethods)
}

type chequeDetailsRequest struct {
	ChequeNumber string `json:"cheque_number" validate:"required,max=50"`
	BankName     string `json:"bank_name" validate:"required,max=100"`
	BranchName   string `json:"branch_name" validate:"max=100"`
	ChequeDate   string `json:"cheque_date" validate:"required"`
}

type recordLineRequest struct {
	MethodID        int64                 `json:"payment_method_id" validate:"required"`
	Amount          float64               `json:"amount" validate:"required,gt=0"`
	ReferenceNumber string                `json:"reference_number" validate:"max=100"`
	Cheque          *chequeDetailsRequest `json:"cheque,omitempty"`
}

type recordPaymentRequest struct {
	SourceKind         string              `json:"source_kind" validate:"required"`
	SourceID           int64               `json:"source_id" validate:"required"`
	Direction          string              `json:"direction" validate:"required,oneof=inflow outflow"`
	Date               string              `json:"date"`
	Currency           string              `json:"currency" validate:"omitempty,len=3"`
	ExchangeRateToBase float64             `json:"exchange_rate_to_base" validate:"gte=0"`
	Lines              []recordLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type chequeTransitionRequest struct {
	Status string `json:"status" validate:"required,oneof=cleared bounced"`
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing principal")
		return
	}
	var req recordPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}

	in := RecordPaymentInput{
		TenantID:           principal.TenantID,
		ActorID:            principal.UserID,
		Source:             invoices.SourceRef{Kind: invoices.SourceKind(req.SourceKind), ID: req.SourceID},
		Direction:          Direction(req.Direction),
		Currency:           req.Currency,
		ExchangeRateToBase: req.ExchangeRateToBase,
	}
	if req.Date != "" {
		date, err := time.Parse(time.RFC3339, req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be RFC3339")
			return
		}
		in.Date = date
	}
	for _, line := range req.Lines {
		lineIn := RecordLineInput{
			MethodID:        line.MethodID,
			Amount:          line.Amount,
			ReferenceNumber: line.ReferenceNumber,
		}
		if line.Cheque != nil {
			chequeDate, err := time.Parse(time.RFC3339, line.Cheque.ChequeDate)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "cheque_date must be RFC3339")
				return
			}
			lineIn.Cheque = &ChequeDetails{
				ChequeNumber: line.Cheque.ChequeNumber,
				BankName:     line.Cheque.BankName,
				BranchName:   line.Cheque.BranchName,
				ChequeDate:   chequeDate,
			}
		}
		in.Lines = append(in.Lines, lineIn)
	}

	key := r.Header.Get("Idempotency-Key")
	if key != "" && h.idempotent != nil {
		if err := h.idempotent.CheckAndInsert(r.Context(), principal.TenantID, key, "payments"); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}

	payment, err := h.service.RecordPayment(r.Context(), in)
	if err != nil {
		if key != "" && h.idempotent != nil {
			// Release the key so the caller may retry after a failure.
			if delErr := h.idempotent.Delete(r.Context(), principal.TenantID, key); delErr != nil {
				h.logger.Error("idempotency key release", slog.Any("error", delErr))
			}
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing principal")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid payment id")
		return
	}
	payment, err := h.service.GetPayment(r.Context(), principal.TenantID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) getCheque(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing principal")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid cheque id")
		return
	}
	cheque, err := h.service.GetCheque(r.Context(), principal.TenantID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cheque)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing principal")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid cheque id")
		return
	}
	var req chequeTransitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	payment, err := h.service.UpdateChequeStatus(r.Context(), ChequeTransitionInput{
		TenantID: principal.TenantID,
		ActorID:  principal.UserID,
		ChequeID: id,
		Status:   ChequeStatus(req.Status),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing principal")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid cheque id")
		return
	}
	payment, err := h.service.CancelCheque(r.Context(), principal.TenantID, id, principal.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) listMethods(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing principal")
		return
	}
	methods, err := h.service.ListMethods(r.Context(), principal.TenantID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payment_methods": methods})
}
