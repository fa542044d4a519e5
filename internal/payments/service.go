package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/invoices"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// AuditPort records operation trails after commit.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the payment aggregate: recording, per-line clearance and
// the cheque lifecycle. Every mutation runs as one atomic unit covering
// the cheque row, its line, the journal entries, the payment status and
// the billed document's derived fields.
type Service struct {
	repo  Repository
	audit AuditPort
	log   *slog.Logger
	now   func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo Repository, audit AuditPort, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, audit: audit, log: log, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// GetPayment returns the payment with its lines.
func (s *Service) GetPayment(ctx context.Context, tenantID, id int64) (Payment, error) {
	return s.repo.GetPayment(ctx, tenantID, id)
}

// GetCheque returns one cheque instrument.
func (s *Service) GetCheque(ctx context.Context, tenantID, id int64) (Cheque, error) {
	return s.repo.GetCheque(ctx, tenantID, id)
}

// ListMethods returns the tenant's configured payment methods.
func (s *Service) ListMethods(ctx context.Context, tenantID int64) ([]PaymentMethod, error) {
	return s.repo.ListMethods(ctx, tenantID)
}

// moneyAccount picks the ledger account a line's funds move through at
// recording time: deferred instruments park in the holding account until
// clearance, immediate ones hit the final account directly.
func moneyAccount(m PaymentMethod, deferred bool) (int64, error) {
	if !deferred {
		if m.AccountID == 0 {
			return 0, ErrAccountsUnconfigured
		}
		return m.AccountID, nil
	}
	if m.HoldingAccountID == nil || *m.HoldingAccountID == 0 {
		return 0, ErrAccountsUnconfigured
	}
	return *m.HoldingAccountID, nil
}

// movement builds the two posting lines for an amount flowing between a
// money account and the document counterparty. For an inflow money is
// debited and the counterparty credited; an outflow mirrors that.
func movement(direction Direction, moneyAccountID, counterpartyID int64, amount float64) []ledger.PostingLine {
	if direction == DirectionInflow {
		return []ledger.PostingLine{
			{AccountID: moneyAccountID, Debit: amount},
			{AccountID: counterpartyID, Credit: amount},
		}
	}
	return []ledger.PostingLine{
		{AccountID: counterpartyID, Debit: amount},
		{AccountID: moneyAccountID, Credit: amount},
	}
}

// RecordPayment records a payment or receipt against a billed document,
// posting one combined journal for all lines. Immediate lines clear on
// the spot; deferred lines open a cheque in pending clearance and park
// their funds in the method's holding account.
func (s *Service) RecordPayment(ctx context.Context, in RecordPaymentInput) (Payment, error) {
	if err := in.Validate(); err != nil {
		return Payment{}, err
	}
	if in.Date.IsZero() {
		in.Date = s.now()
	}

	var out Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetSource(ctx, in.TenantID, in.Source)
		if err != nil {
			return err
		}

		number, err := tx.NextPaymentNumber(ctx, in.TenantID)
		if err != nil {
			return err
		}

		type plannedLine struct {
			input    RecordLineInput
			method   PaymentMethod
			deferred bool
		}
		planned := make([]plannedLine, 0, len(in.Lines))
		anyDeferred := false
		for _, line := range in.Lines {
			method, err := tx.GetMethod(ctx, in.TenantID, line.MethodID)
			if err != nil {
				return err
			}
			if method.Deferred {
				if line.Cheque == nil {
					return ErrChequeDetails
				}
				anyDeferred = true
			}
			planned = append(planned, plannedLine{input: line, method: method, deferred: method.Deferred})
		}

		status := PaymentStatusCompleted
		if anyDeferred {
			status = PaymentStatusPendingClearance
		}
		payment, err := tx.InsertPayment(ctx, Payment{
			TenantID:    in.TenantID,
			Number:      number,
			Source:      in.Source,
			Direction:   in.Direction,
			TotalAmount: in.TotalAmount(),
			Status:      status,
			CreatedBy:   in.ActorID,
		})
		if err != nil {
			return err
		}

		var postingLines []ledger.PostingLine
		for _, plan := range planned {
			lineStatus := LineStatusCleared
			if plan.deferred {
				lineStatus = LineStatusPending
			}
			line, err := tx.InsertLine(ctx, PaymentLine{
				PaymentID:       payment.ID,
				MethodID:        plan.method.ID,
				Amount:          plan.input.Amount,
				ReferenceNumber: plan.input.ReferenceNumber,
				Status:          lineStatus,
			})
			if err != nil {
				return err
			}
			if plan.deferred {
				details := plan.input.Cheque
				if _, err := tx.InsertCheque(ctx, Cheque{
					TenantID:           in.TenantID,
					PaymentID:          payment.ID,
					PaymentLineID:      line.ID,
					ChequeNumber:       details.ChequeNumber,
					BankName:           details.BankName,
					BranchName:         details.BranchName,
					ChequeDate:         details.ChequeDate,
					Status:             ChequeStatusPending,
					Direction:          in.Direction,
					Amount:             plan.input.Amount,
					Currency:           in.Currency,
					ExchangeRateToBase: in.ExchangeRateToBase,
				}); err != nil {
					return err
				}
			}
			payment.Lines = append(payment.Lines, line)

			account, err := moneyAccount(plan.method, plan.deferred)
			if err != nil {
				return err
			}
			postingLines = append(postingLines, movement(in.Direction, account, doc.CounterpartyAccountID, plan.input.Amount)...)
		}

		if _, err := tx.PostJournal(ctx, ledger.PostingInput{
			TenantID:           in.TenantID,
			Date:               in.Date,
			Description:        fmt.Sprintf("Payment %s for %s %s", number, in.Source.Kind, doc.Number),
			Currency:           in.Currency,
			ExchangeRateToBase: in.ExchangeRateToBase,
			SourceModule:       "payments",
			SourceID:           number,
			PostedBy:           in.ActorID,
			Lines:              postingLines,
		}); err != nil {
			return err
		}

		if _, err := tx.RecalculateSource(ctx, in.TenantID, in.Source); err != nil {
			return err
		}
		out = payment
		return nil
	})
	if err != nil {
		return Payment{}, err
	}
	s.recordAudit(ctx, in.TenantID, in.ActorID, "payment.record", out.ID, map[string]any{
		"number": out.Number, "total_amount": out.TotalAmount, "direction": out.Direction,
	})
	return out, nil
}

// UpdateChequeStatus moves a pending cheque to cleared or bounced. The
// cheque row, its line, the confirming or reversing journal, the payment
// status and the billed document update atomically.
func (s *Service) UpdateChequeStatus(ctx context.Context, in ChequeTransitionInput) (Payment, error) {
	if in.Status != ChequeStatusCleared && in.Status != ChequeStatusBounced {
		return Payment{}, ErrBadStatus
	}
	payment, err := s.transition(ctx, in.TenantID, in.ChequeID, in.Status, in.ActorID)
	if err != nil {
		return Payment{}, err
	}
	action := "cheque.clear"
	if in.Status == ChequeStatusBounced {
		action = "cheque.bounce"
	}
	s.recordAudit(ctx, in.TenantID, in.ActorID, action, in.ChequeID, map[string]any{
		"payment_id": payment.ID, "payment_status": payment.Status,
	})
	return payment, nil
}

// CancelCheque voids a pending cheque before presentation. Ledger-wise a
// cancellation is a bounce: the parked funds return to the counterparty
// and the line never clears.
func (s *Service) CancelCheque(ctx context.Context, tenantID, chequeID, actorID int64) (Payment, error) {
	payment, err := s.transition(ctx, tenantID, chequeID, ChequeStatusCancelled, actorID)
	if err != nil {
		return Payment{}, err
	}
	s.recordAudit(ctx, tenantID, actorID, "cheque.cancel", chequeID, map[string]any{
		"payment_id": payment.ID, "payment_status": payment.Status,
	})
	return payment, nil
}

func (s *Service) transition(ctx context.Context, tenantID, chequeID int64, target ChequeStatus, actorID int64) (Payment, error) {
	var out Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		cheque, err := tx.GetChequeForUpdate(ctx, tenantID, chequeID)
		if err != nil {
			return err
		}
		if cheque.Status != ChequeStatusPending {
			return ErrNotPending
		}
		payment, err := tx.GetPaymentForUpdate(ctx, tenantID, cheque.PaymentID)
		if err != nil {
			return err
		}

		var line PaymentLine
		for _, l := range payment.Lines {
			if l.ID == cheque.PaymentLineID {
				line = l
				break
			}
		}
		if line.ID == 0 {
			return fmt.Errorf("cheque %d references missing line %d", cheque.ID, cheque.PaymentLineID)
		}
		method, err := tx.GetMethod(ctx, tenantID, line.MethodID)
		if err != nil {
			return err
		}
		holding, err := moneyAccount(method, true)
		if err != nil {
			return err
		}

		now := s.now()
		var journal ledger.PostingInput
		lineStatus := LineStatusBounced
		switch target {
		case ChequeStatusCleared:
			// Settlement: move the parked amount from holding to the
			// method's final account. Direction decides which side the
			// money accounts take, same as at recording time.
			final, err := moneyAccount(method, false)
			if err != nil {
				return err
			}
			journal = ledger.PostingInput{
				TenantID:    tenantID,
				Date:        now,
				Description: fmt.Sprintf("Cheque %s cleared (payment %s)", cheque.ChequeNumber, payment.Number),
				Lines:       movement(cheque.Direction, final, holding, cheque.Amount),
			}
			lineStatus = LineStatusCleared
		case ChequeStatusBounced, ChequeStatusCancelled:
			// Reversal: return the parked amount to the counterparty,
			// undoing the recording-time entry for this line.
			doc, err := tx.GetSource(ctx, tenantID, payment.Source)
			if err != nil {
				return err
			}
			verb := "bounced"
			if target == ChequeStatusCancelled {
				verb = "cancelled"
			}
			reversed := DirectionOutflow
			if cheque.Direction == DirectionOutflow {
				reversed = DirectionInflow
			}
			journal = ledger.PostingInput{
				TenantID:    tenantID,
				Date:        now,
				Description: fmt.Sprintf("Cheque %s %s (payment %s)", cheque.ChequeNumber, verb, payment.Number),
				Lines:       movement(reversed, holding, doc.CounterpartyAccountID, cheque.Amount),
			}
		}
		// Settle in the recording currency so the base amount leaving the
		// holding account matches the base amount parked there.
		journal.Currency = cheque.Currency
		journal.ExchangeRateToBase = cheque.ExchangeRateToBase
		journal.SourceModule = "payments"
		journal.SourceID = payment.Number
		journal.PostedBy = actorID
		if _, err := tx.PostJournal(ctx, journal); err != nil {
			return err
		}

		if err := tx.UpdateCheque(ctx, tenantID, cheque.ID, target, now); err != nil {
			return err
		}
		if err := tx.UpdateLineStatus(ctx, line.ID, lineStatus); err != nil {
			return err
		}

		cheques, err := tx.ListCheques(ctx, tenantID, payment.ID)
		if err != nil {
			return err
		}
		status := derivePaymentStatus(cheques, len(payment.Lines))
		if err := tx.UpdatePaymentStatus(ctx, tenantID, payment.ID, status); err != nil {
			return err
		}
		payment.Status = status

		if _, err := tx.RecalculateSource(ctx, tenantID, payment.Source); err != nil {
			return err
		}
		out = payment
		return nil
	})
	if err != nil {
		return Payment{}, err
	}
	return out, nil
}

func (s *Service) recordAudit(ctx context.Context, tenantID, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entity := "payment"
	if action == "cheque.clear" || action == "cheque.bounce" || action == "cheque.cancel" {
		entity = "cheque"
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.log.WarnContext(ctx, "audit record failed", "action", action, "error", err)
	}
}

var _ invoices.ClearedAmountSource = ClearedAmounts{}
