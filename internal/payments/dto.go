package payments

import (
	"time"

	"github.com/meridian-erp/meridian-erp/internal/invoices"
)

// ChequeDetails carries the instrument fields for a deferred line.
type ChequeDetails struct {
	ChequeNumber string
	BankName     string
	BranchName   string
	ChequeDate   time.Time
}

// RecordLineInput is one requested payment line.
type RecordLineInput struct {
	MethodID        int64
	Amount          float64
	ReferenceNumber string
	Cheque          *ChequeDetails
}

// RecordPaymentInput groups the fields to record one payment or receipt.
type RecordPaymentInput struct {
	TenantID  int64
	ActorID   int64
	Source    invoices.SourceRef
	Direction Direction
	Date      time.Time
	Currency  string
	// ExchangeRateToBase converts Currency amounts into the base
	// currency; zero is accepted for base-currency payments.
	ExchangeRateToBase float64
	Lines              []RecordLineInput
}

// Validate rejects malformed recordings before the transaction opens.
func (in RecordPaymentInput) Validate() error {
	if !in.Source.Kind.Valid() {
		return invoices.ErrUnknownKind
	}
	if !in.Direction.Valid() {
		return ErrBadDirection
	}
	if len(in.Lines) == 0 {
		return ErrNoLines
	}
	for _, line := range in.Lines {
		if line.MethodID == 0 {
			return ErrMethodNotFound
		}
		if line.Amount <= 0 {
			return ErrLineAmount
		}
	}
	return nil
}

// TotalAmount sums the requested lines.
func (in RecordPaymentInput) TotalAmount() float64 {
	var total float64
	for _, line := range in.Lines {
		total += line.Amount
	}
	return total
}

// ChequeTransitionInput requests a clearance-flow transition.
type ChequeTransitionInput struct {
	TenantID int64
	ActorID  int64
	ChequeID int64
	Status   ChequeStatus
}
