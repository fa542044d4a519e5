package reconciliation

import (
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// StatementStatus is the reconciliation state of one imported line.
type StatementStatus string

const (
	StatusPending StatementStatus = "pending"
	StatusMatched StatementStatus = "matched"
	StatusIgnored StatementStatus = "ignored"
)

// BankStatement is one imported bank statement line. Lines are the
// external signal reconciled against recorded payments; a period cannot
// close while lines inside it stay pending.
type BankStatement struct {
	ID              int64           `json:"id"`
	TenantID        int64           `json:"-"`
	StatementDate   time.Time       `json:"statement_date"`
	Description     string          `json:"description"`
	Amount          float64         `json:"amount"`
	ReferenceNumber string          `json:"reference_number,omitempty"`
	Status          StatementStatus `json:"status"`
	MatchedChequeID *int64          `json:"matched_cheque_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

var (
	// ErrNotFound indicates an unknown statement line.
	ErrNotFound = fmt.Errorf("%w: bank statement", shared.ErrNotFound)
	// ErrNotPending indicates a resolution attempt on an already resolved line.
	ErrNotPending = fmt.Errorf("%w: statement line already resolved", shared.ErrConflict)
	// ErrDateRequired indicates an import line without a date.
	ErrDateRequired = fmt.Errorf("%w: statement date required", shared.ErrValidation)
	// ErrZeroAmount indicates an import line without an amount.
	ErrZeroAmount = fmt.Errorf("%w: statement amount must be non-zero", shared.ErrValidation)
)
