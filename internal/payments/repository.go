package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/invoices"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository encapsulates DB operations for the payment aggregate.
type Repository interface {
	GetPayment(ctx context.Context, tenantID, id int64) (Payment, error)
	GetCheque(ctx context.Context, tenantID, id int64) (Cheque, error)
	ListMethods(ctx context.Context, tenantID int64) ([]PaymentMethod, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes every operation a payment mutation performs inside
// its single atomic unit, including journal posting and source
// recalculation. Mirrors are needed here because the transition reads
// derived state and writes new derived state that must not come from a
// stale snapshot.
type TxRepository interface {
	NextPaymentNumber(ctx context.Context, tenantID int64) (string, error)
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	InsertLine(ctx context.Context, line PaymentLine) (PaymentLine, error)
	InsertCheque(ctx context.Context, c Cheque) (Cheque, error)
	GetChequeForUpdate(ctx context.Context, tenantID, id int64) (Cheque, error)
	GetPaymentForUpdate(ctx context.Context, tenantID, id int64) (Payment, error)
	GetMethod(ctx context.Context, tenantID, id int64) (PaymentMethod, error)
	ListCheques(ctx context.Context, tenantID, paymentID int64) ([]Cheque, error)
	UpdateCheque(ctx context.Context, tenantID, id int64, status ChequeStatus, clearingDate time.Time) error
	UpdateLineStatus(ctx context.Context, id int64, status LineStatus) error
	UpdatePaymentStatus(ctx context.Context, tenantID, id int64, status PaymentStatus) error

	// PostJournal writes ledger rows on this transaction through the
	// journal posting service, which stays the sole writer.
	PostJournal(ctx context.Context, in ledger.PostingInput) (ledger.Transaction, error)
	// GetSource resolves the billed document and its counterparty account.
	GetSource(ctx context.Context, tenantID int64, ref invoices.SourceRef) (invoices.SourceDoc, error)
	// RecalculateSource re-derives the document's paid amount and status.
	RecalculateSource(ctx context.Context, tenantID int64, ref invoices.SourceRef) (invoices.SourceDoc, error)
}

type repository struct {
	pool   *pgxpool.Pool
	poster *ledger.Service
	recalc *invoices.Recalculator
	reg    *invoices.Registry
}

// NewRepository constructs a Repository. The ledger service and invoice
// collaborators run on the repository's transactions.
func NewRepository(pool *pgxpool.Pool, poster *ledger.Service, registry *invoices.Registry, recalc *invoices.Recalculator) Repository {
	return &repository{pool: pool, poster: poster, recalc: recalc, reg: registry}
}

const paymentColumns = `id, tenant_id, number, source_kind, source_id, direction, total_amount, status, created_by, created_at, updated_at`
const chequeColumns = `id, tenant_id, payment_id, payment_line_id, cheque_number, bank_name, branch_name, cheque_date, clearing_date, status, direction, amount, currency, exchange_rate_to_base`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.TenantID, &p.Number, &p.Source.Kind, &p.Source.ID, &p.Direction,
		&p.TotalAmount, &p.Status, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func scanCheque(row pgx.Row) (Cheque, error) {
	var c Cheque
	err := row.Scan(&c.ID, &c.TenantID, &c.PaymentID, &c.PaymentLineID, &c.ChequeNumber, &c.BankName,
		&c.BranchName, &c.ChequeDate, &c.ClearingDate, &c.Status, &c.Direction, &c.Amount,
		&c.Currency, &c.ExchangeRateToBase)
	return c, err
}

func loadLines(ctx context.Context, q db.Querier, paymentID int64) ([]PaymentLine, error) {
	rows, err := q.Query(ctx, `SELECT id, payment_id, payment_method_id, amount, reference_number, status
FROM payment_lines WHERE payment_id=$1 ORDER BY id ASC`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []PaymentLine
	for rows.Next() {
		var line PaymentLine
		if err := rows.Scan(&line.ID, &line.PaymentID, &line.MethodID, &line.Amount, &line.ReferenceNumber, &line.Status); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *repository) GetPayment(ctx context.Context, tenantID, id int64) (Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrPaymentNotFound
		}
		return Payment{}, err
	}
	p.Lines, err = loadLines(ctx, r.pool, p.ID)
	if err != nil {
		return Payment{}, err
	}
	return p, nil
}

func (r *repository) GetCheque(ctx context.Context, tenantID, id int64) (Cheque, error) {
	c, err := scanCheque(r.pool.QueryRow(ctx, `SELECT `+chequeColumns+` FROM cheques WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cheque{}, ErrChequeNotFound
		}
		return Cheque{}, err
	}
	return c, nil
}

func (r *repository) ListMethods(ctx context.Context, tenantID int64) ([]PaymentMethod, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, name, deferred, account_id, holding_account_id
FROM payment_methods WHERE tenant_id=$1 ORDER BY name`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var methods []PaymentMethod
	for rows.Next() {
		var m PaymentMethod
		if err := rows.Scan(&m.ID, &m.TenantID, &m.Name, &m.Deferred, &m.AccountID, &m.HoldingAccountID); err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	return methods, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, poster: r.poster, recalc: r.recalc, reg: r.reg})
	})
}

type txRepository struct {
	tx     pgx.Tx
	poster *ledger.Service
	recalc *invoices.Recalculator
	reg    *invoices.Registry
}

func (r *txRepository) NextPaymentNumber(ctx context.Context, tenantID int64) (string, error) {
	var value int64
	err := r.tx.QueryRow(ctx, `INSERT INTO payment_counters (tenant_id, value) VALUES ($1, 1)
ON CONFLICT (tenant_id) DO UPDATE SET value = payment_counters.value + 1
RETURNING value`, tenantID).Scan(&value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("PAY-%06d", value), nil
}

func (r *txRepository) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO payments (tenant_id, number, source_kind, source_id, direction, total_amount, status, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, created_at, updated_at`,
		p.TenantID, p.Number, p.Source.Kind, p.Source.ID, p.Direction, p.TotalAmount, p.Status, p.CreatedBy)
	if err := row.Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Payment{}, err
	}
	return p, nil
}

func (r *txRepository) InsertLine(ctx context.Context, line PaymentLine) (PaymentLine, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO payment_lines (payment_id, payment_method_id, amount, reference_number, status)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		line.PaymentID, line.MethodID, line.Amount, line.ReferenceNumber, line.Status).Scan(&line.ID)
	if err != nil {
		return PaymentLine{}, err
	}
	return line, nil
}

func (r *txRepository) InsertCheque(ctx context.Context, c Cheque) (Cheque, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO cheques (tenant_id, payment_id, payment_line_id, cheque_number, bank_name, branch_name, cheque_date, status, direction, amount, currency, exchange_rate_to_base)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
		c.TenantID, c.PaymentID, c.PaymentLineID, c.ChequeNumber, c.BankName, c.BranchName, c.ChequeDate, c.Status, c.Direction, c.Amount, c.Currency, c.ExchangeRateToBase).Scan(&c.ID)
	if err != nil {
		return Cheque{}, err
	}
	return c, nil
}

func (r *txRepository) GetChequeForUpdate(ctx context.Context, tenantID, id int64) (Cheque, error) {
	c, err := scanCheque(r.tx.QueryRow(ctx, `SELECT `+chequeColumns+` FROM cheques WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cheque{}, ErrChequeNotFound
		}
		return Cheque{}, err
	}
	return c, nil
}

func (r *txRepository) GetPaymentForUpdate(ctx context.Context, tenantID, id int64) (Payment, error) {
	p, err := scanPayment(r.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrPaymentNotFound
		}
		return Payment{}, err
	}
	p.Lines, err = loadLines(ctx, r.tx, p.ID)
	if err != nil {
		return Payment{}, err
	}
	return p, nil
}

func (r *txRepository) GetMethod(ctx context.Context, tenantID, id int64) (PaymentMethod, error) {
	var m PaymentMethod
	err := r.tx.QueryRow(ctx, `SELECT id, tenant_id, name, deferred, account_id, holding_account_id
FROM payment_methods WHERE tenant_id=$1 AND id=$2`, tenantID, id).
		Scan(&m.ID, &m.TenantID, &m.Name, &m.Deferred, &m.AccountID, &m.HoldingAccountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PaymentMethod{}, ErrMethodNotFound
		}
		return PaymentMethod{}, err
	}
	return m, nil
}

func (r *txRepository) ListCheques(ctx context.Context, tenantID, paymentID int64) ([]Cheque, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+chequeColumns+` FROM cheques WHERE tenant_id=$1 AND payment_id=$2 ORDER BY id ASC`, tenantID, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cheques []Cheque
	for rows.Next() {
		c, err := scanCheque(rows)
		if err != nil {
			return nil, err
		}
		cheques = append(cheques, c)
	}
	return cheques, rows.Err()
}

func (r *txRepository) UpdateCheque(ctx context.Context, tenantID, id int64, status ChequeStatus, clearingDate time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE cheques SET status=$3, clearing_date=$4 WHERE tenant_id=$1 AND id=$2`,
		tenantID, id, status, clearingDate)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrChequeNotFound
	}
	return nil
}

func (r *txRepository) UpdateLineStatus(ctx context.Context, id int64, status LineStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE payment_lines SET status=$2 WHERE id=$1`, id, status)
	return err
}

func (r *txRepository) UpdatePaymentStatus(ctx context.Context, tenantID, id int64, status PaymentStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE payments SET status=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`,
		tenantID, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (r *txRepository) PostJournal(ctx context.Context, in ledger.PostingInput) (ledger.Transaction, error) {
	return r.poster.PostOn(ctx, ledger.TxRepositoryOn(r.tx), in)
}

func (r *txRepository) GetSource(ctx context.Context, tenantID int64, ref invoices.SourceRef) (invoices.SourceDoc, error) {
	source, err := r.reg.Resolve(ref.Kind)
	if err != nil {
		return invoices.SourceDoc{}, err
	}
	return source.Get(ctx, r.tx, tenantID, ref.ID)
}

func (r *txRepository) RecalculateSource(ctx context.Context, tenantID int64, ref invoices.SourceRef) (invoices.SourceDoc, error) {
	return r.recalc.Recalculate(ctx, r.tx, tenantID, ref)
}

// ClearedAmounts implements invoices.ClearedAmountSource against the
// payment tables. Lines count only when their status is exactly cleared
// and the owning payment is not voided.
type ClearedAmounts struct{}

// ClearedAmount sums cleared line amounts settling the referenced document.
func (ClearedAmounts) ClearedAmount(ctx context.Context, q db.Querier, tenantID int64, ref invoices.SourceRef) (float64, error) {
	var total float64
	err := q.QueryRow(ctx, `SELECT COALESCE(SUM(l.amount), 0)
FROM payment_lines l
JOIN payments p ON p.id = l.payment_id
WHERE p.tenant_id=$1 AND p.source_kind=$2 AND p.source_id=$3 AND p.status <> 'voided' AND l.status='cleared'`,
		tenantID, ref.Kind, ref.ID).Scan(&total)
	return total, err
}
