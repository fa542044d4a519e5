// Package invoices resolves the documents a payment can settle and derives
// their payment status from cleared funds.
package invoices

import (
	"fmt"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// SourceKind tags which collection a payment source reference targets.
type SourceKind string

const (
	KindSalesInvoice    SourceKind = "SalesInvoice"
	KindSupplierInvoice SourceKind = "SupplierInvoice"
	KindExpenseClaim    SourceKind = "ExpenseClaim"
)

// Valid reports whether k is a known source kind.
func (k SourceKind) Valid() bool {
	switch k {
	case KindSalesInvoice, KindSupplierInvoice, KindExpenseClaim:
		return true
	default:
		return false
	}
}

// SourceRef is the tagged variant identifying a billed document.
type SourceRef struct {
	Kind SourceKind `json:"kind"`
	ID   int64      `json:"id"`
}

// InvoiceStatus is the derived payment status of a billed document.
type InvoiceStatus string

const (
	StatusPendingPayment InvoiceStatus = "pending_payment"
	StatusPartiallyPaid  InvoiceStatus = "partially_paid"
	StatusFullyPaid      InvoiceStatus = "fully_paid"
)

// SourceDoc is the resolved view of a billed document: enough to post
// against its counterparty and to derive its payment status.
type SourceDoc struct {
	ID                    int64
	Number                string
	TotalAmount           float64
	AmountPaid            float64
	PaymentStatus         InvoiceStatus
	CounterpartyAccountID int64
}

var (
	// ErrUnknownKind indicates an unregistered source kind.
	ErrUnknownKind = fmt.Errorf("%w: unknown payment source kind", shared.ErrValidation)
	// ErrSourceNotFound indicates a missing billed document.
	ErrSourceNotFound = fmt.Errorf("%w: payment source document", shared.ErrNotFound)
	// ErrNoCounterpartyAccount indicates the linked counterparty has no
	// configured ledger account.
	ErrNoCounterpartyAccount = fmt.Errorf("%w: counterparty ledger account", shared.ErrNotFound)
)
