package invoices

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// pgSource is the shared Postgres resolver; one instance is registered per
// kind, each joining its document table to the counterparty table that
// carries the ledger account.
type pgSource struct {
	kind      SourceKind
	getSQL    string
	updateSQL string
}

func (s *pgSource) Kind() SourceKind { return s.kind }

func (s *pgSource) Get(ctx context.Context, q db.Querier, tenantID, id int64) (SourceDoc, error) {
	var doc SourceDoc
	var counterpartyAccountID *int64
	err := q.QueryRow(ctx, s.getSQL, tenantID, id).
		Scan(&doc.ID, &doc.Number, &doc.TotalAmount, &doc.AmountPaid, &doc.PaymentStatus, &counterpartyAccountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SourceDoc{}, ErrSourceNotFound
		}
		return SourceDoc{}, err
	}
	if counterpartyAccountID == nil || *counterpartyAccountID == 0 {
		return SourceDoc{}, ErrNoCounterpartyAccount
	}
	doc.CounterpartyAccountID = *counterpartyAccountID
	return doc, nil
}

func (s *pgSource) SetPaymentStatus(ctx context.Context, q db.Querier, tenantID, id int64, amountPaid float64, status InvoiceStatus) error {
	cmd, err := q.Exec(ctx, s.updateSQL, tenantID, id, amountPaid, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrSourceNotFound
	}
	return nil
}

// NewSalesInvoiceSource resolves sales invoices; the counterparty account is
// the customer's receivable account.
func NewSalesInvoiceSource() Source {
	return &pgSource{
		kind: KindSalesInvoice,
		getSQL: `SELECT i.id, i.number, i.total_amount, i.amount_paid, i.payment_status, c.receivable_account_id
FROM sales_invoices i JOIN customers c ON c.id = i.customer_id AND c.tenant_id = i.tenant_id
WHERE i.tenant_id=$1 AND i.id=$2`,
		updateSQL: `UPDATE sales_invoices SET amount_paid=$3, payment_status=$4, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2`,
	}
}

// NewSupplierInvoiceSource resolves supplier invoices; the counterparty
// account is the supplier's payable account.
func NewSupplierInvoiceSource() Source {
	return &pgSource{
		kind: KindSupplierInvoice,
		getSQL: `SELECT i.id, i.number, i.total_amount, i.amount_paid, i.payment_status, s.payable_account_id
FROM supplier_invoices i JOIN suppliers s ON s.id = i.supplier_id AND s.tenant_id = i.tenant_id
WHERE i.tenant_id=$1 AND i.id=$2`,
		updateSQL: `UPDATE supplier_invoices SET amount_paid=$3, payment_status=$4, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2`,
	}
}

// NewExpenseClaimSource resolves expense claims; the counterparty account is
// the employee's payable account.
func NewExpenseClaimSource() Source {
	return &pgSource{
		kind: KindExpenseClaim,
		getSQL: `SELECT c.id, c.number, c.total_amount, c.amount_paid, c.payment_status, e.payable_account_id
FROM expense_claims c JOIN employees e ON e.id = c.employee_id AND e.tenant_id = c.tenant_id
WHERE c.tenant_id=$1 AND c.id=$2`,
		updateSQL: `UPDATE expense_claims SET amount_paid=$3, payment_status=$4, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2`,
	}
}
