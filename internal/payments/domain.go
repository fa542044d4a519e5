// Package payments owns the multi-line payment aggregate and the deferred
// cheque instrument lifecycle attached to it.
package payments

import (
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/invoices"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Direction states whether money moves into or out of the tenant.
type Direction string

const (
	DirectionInflow  Direction = "inflow"
	DirectionOutflow Direction = "outflow"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionInflow || d == DirectionOutflow
}

// PaymentStatus is derived from the statuses of the payment's lines and
// cheques; it is recomputed inside every transition, never cached across
// transactions.
type PaymentStatus string

const (
	PaymentStatusCompleted        PaymentStatus = "completed"
	PaymentStatusPendingClearance PaymentStatus = "pending_clearance"
	PaymentStatusPartiallyCleared PaymentStatus = "partially_cleared"
	PaymentStatusVoided           PaymentStatus = "voided"
)

// LineStatus tracks per-line clearance.
type LineStatus string

const (
	LineStatusCleared LineStatus = "cleared"
	LineStatusPending LineStatus = "pending"
	LineStatusBounced LineStatus = "bounced"
)

// ChequeStatus is the instrument sub-lifecycle. pending_clearance is
// initial; cleared, bounced, and cancelled are terminal.
type ChequeStatus string

const (
	ChequeStatusPending   ChequeStatus = "pending_clearance"
	ChequeStatusCleared   ChequeStatus = "cleared"
	ChequeStatusBounced   ChequeStatus = "bounced"
	ChequeStatusCancelled ChequeStatus = "cancelled"
)

// Payment is a multi-line payment or receipt against one billed document.
type Payment struct {
	ID          int64              `json:"id"`
	TenantID    int64              `json:"-"`
	Number      string             `json:"number"`
	Source      invoices.SourceRef `json:"source"`
	Direction   Direction          `json:"direction"`
	TotalAmount float64            `json:"total_amount"`
	Status      PaymentStatus      `json:"status"`
	Lines       []PaymentLine      `json:"lines"`
	CreatedBy   int64              `json:"created_by"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// PaymentLine is one funded slice of a payment.
type PaymentLine struct {
	ID              int64      `json:"id"`
	PaymentID       int64      `json:"payment_id"`
	MethodID        int64      `json:"payment_method_id"`
	Amount          float64    `json:"amount"`
	ReferenceNumber string     `json:"reference_number"`
	Status          LineStatus `json:"status"`
}

// Cheque is the deferred-clearing instrument backing exactly one payment
// line.
type Cheque struct {
	ID            int64        `json:"id"`
	TenantID      int64        `json:"-"`
	PaymentID     int64        `json:"payment_id"`
	PaymentLineID int64        `json:"payment_line_id"`
	ChequeNumber  string       `json:"cheque_number"`
	BankName      string       `json:"bank_name"`
	BranchName    string       `json:"branch_name"`
	ChequeDate    time.Time    `json:"cheque_date"`
	ClearingDate  *time.Time   `json:"clearing_date,omitempty"`
	Status        ChequeStatus `json:"status"`
	Direction     Direction    `json:"direction"`
	Amount        float64      `json:"amount"`
	// Currency and ExchangeRateToBase are captured from the recording so
	// settlement and reversal journals move the same base amount the
	// recording parked in the holding account.
	Currency           string  `json:"currency,omitempty"`
	ExchangeRateToBase float64 `json:"exchange_rate_to_base,omitempty"`
}

// PaymentMethod configures where a funding method's money lands. Deferred
// methods park funds in the holding account until the instrument clears.
type PaymentMethod struct {
	ID               int64  `json:"id"`
	TenantID         int64  `json:"-"`
	Name             string `json:"name"`
	Deferred         bool   `json:"deferred"`
	AccountID        int64  `json:"account_id"`
	HoldingAccountID *int64 `json:"holding_account_id,omitempty"`
}

var (
	// ErrPaymentNotFound indicates a missing payment.
	ErrPaymentNotFound = fmt.Errorf("%w: payment", shared.ErrNotFound)
	// ErrChequeNotFound indicates a missing cheque.
	ErrChequeNotFound = fmt.Errorf("%w: cheque", shared.ErrNotFound)
	// ErrMethodNotFound indicates an unknown payment method.
	ErrMethodNotFound = fmt.Errorf("%w: payment method", shared.ErrNotFound)
	// ErrNotPending indicates a transition attempted on a settled cheque.
	ErrNotPending = fmt.Errorf("%w: cheque is not pending clearance", shared.ErrConflict)
	// ErrBadStatus indicates a requested cheque status outside the clearance flow.
	ErrBadStatus = fmt.Errorf("%w: cheque status must be cleared or bounced", shared.ErrValidation)
	// ErrAccountsUnconfigured indicates a method without the holding or
	// final account the transition must post against.
	ErrAccountsUnconfigured = fmt.Errorf("%w: payment method ledger accounts", shared.ErrNotFound)
	// ErrNoLines indicates a payment without lines.
	ErrNoLines = fmt.Errorf("%w: payment requires at least one line", shared.ErrValidation)
	// ErrBadDirection indicates an unknown direction.
	ErrBadDirection = fmt.Errorf("%w: direction must be inflow or outflow", shared.ErrValidation)
	// ErrLineAmount indicates a non-positive line amount.
	ErrLineAmount = fmt.Errorf("%w: line amount must be positive", shared.ErrValidation)
	// ErrChequeDetails indicates a deferred line without instrument details.
	ErrChequeDetails = fmt.Errorf("%w: cheque details required for deferred line", shared.ErrValidation)
)

// derivePaymentStatus recomputes the aggregate status from the full cheque
// set and line count. Cancelled cheques count as bounced: the funds never
// arrived.
func derivePaymentStatus(cheques []Cheque, lineCount int) PaymentStatus {
	var bounced int
	for _, cheque := range cheques {
		switch cheque.Status {
		case ChequeStatusPending:
			return PaymentStatusPendingClearance
		case ChequeStatusBounced, ChequeStatusCancelled:
			bounced++
		}
	}
	if bounced == 0 {
		return PaymentStatusCompleted
	}
	if bounced == len(cheques) && len(cheques) == lineCount {
		return PaymentStatusVoided
	}
	return PaymentStatusPartiallyCleared
}
