package invoices

import (
	"context"
	"math"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// ClearedAmountSource sums the cleared payment-line amounts settling a
// document. Implemented by the payments repository; lines with pending or
// bounced status and lines of voided payments contribute zero.
type ClearedAmountSource interface {
	ClearedAmount(ctx context.Context, q db.Querier, tenantID int64, ref SourceRef) (float64, error)
}

// Recalculator re-derives a document's amountPaid and payment status from
// cleared funds. It caches nothing and is idempotent; it must run after
// every payment-line status change, inside the transaction that changed it.
type Recalculator struct {
	registry *Registry
	cleared  ClearedAmountSource
}

// NewRecalculator constructs a Recalculator.
func NewRecalculator(registry *Registry, cleared ClearedAmountSource) *Recalculator {
	return &Recalculator{registry: registry, cleared: cleared}
}

// statusTolerance absorbs cent rounding when comparing paid against total.
const statusTolerance = 0.01

// Recalculate recomputes and persists the document's derived state on q.
func (r *Recalculator) Recalculate(ctx context.Context, q db.Querier, tenantID int64, ref SourceRef) (SourceDoc, error) {
	source, err := r.registry.Resolve(ref.Kind)
	if err != nil {
		return SourceDoc{}, err
	}
	doc, err := source.Get(ctx, q, tenantID, ref.ID)
	if err != nil {
		return SourceDoc{}, err
	}
	paid, err := r.cleared.ClearedAmount(ctx, q, tenantID, ref)
	if err != nil {
		return SourceDoc{}, err
	}

	status := StatusPendingPayment
	switch {
	case math.Abs(paid-doc.TotalAmount) < statusTolerance:
		status = StatusFullyPaid
	case paid > 0 && paid < doc.TotalAmount:
		status = StatusPartiallyPaid
	}

	if err := source.SetPaymentStatus(ctx, q, tenantID, ref.ID, paid, status); err != nil {
		return SourceDoc{}, err
	}
	doc.AmountPaid = paid
	doc.PaymentStatus = status
	return doc, nil
}
