package ledger

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository encapsulates DB operations for the ledger store. The store is
// append-only: no update or delete statement exists in this package.
type Repository interface {
	List(ctx context.Context, in ListInput) ([]Entry, int, error)
	GetTransaction(ctx context.Context, tenantID int64, transactionID uuid.UUID) (Transaction, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the row operations available inside a transaction.
type TxRepository interface {
	InsertEntries(ctx context.Context, entries []Entry) error
	GetTransactionEntries(ctx context.Context, tenantID int64, transactionID uuid.UUID) ([]Entry, error)
	// CountAccounts reports how many of the given account ids exist for
	// the tenant, so a posting against a phantom account fails pre-write.
	CountAccounts(ctx context.Context, tenantID int64, accountIDs []int64) (int64, error)
	// ClosedPeriodCovering reports whether a closed or archived financial
	// period covers the posting date.
	ClosedPeriodCovering(ctx context.Context, tenantID int64, date time.Time) (bool, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const entryColumns = `id, tenant_id, transaction_id, date, description, debit_account_id, credit_account_id,
amount, original_amount, original_currency, source_module, source_id, created_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.TenantID, &e.TransactionID, &e.Date, &e.Description, &e.DebitAccountID,
		&e.CreditAccountID, &e.Amount, &e.OriginalAmount, &e.OriginalCurrency, &e.SourceModule, &e.SourceID, &e.CreatedAt)
	return e, err
}

func (r *repository) List(ctx context.Context, in ListInput) ([]Entry, int, error) {
	where := ` WHERE tenant_id=$1`
	args := []any{in.TenantID}
	if in.AccountID != 0 {
		args = append(args, in.AccountID)
		n := strconv.Itoa(len(args))
		where += ` AND (debit_account_id=$` + n + ` OR credit_account_id=$` + n + `)`
	}
	if in.From != nil {
		args = append(args, *in.From)
		where += ` AND date >= $` + strconv.Itoa(len(args))
	}
	if in.To != nil {
		args = append(args, *in.To)
		where += ` AND date <= $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := in.PerPage
	if perPage <= 0 {
		perPage = 50
	}
	page := in.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	query := `SELECT ` + entryColumns + ` FROM ledger_entries` + where +
		` ORDER BY date DESC, id DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func (r *repository) GetTransaction(ctx context.Context, tenantID int64, transactionID uuid.UUID) (Transaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
WHERE tenant_id=$1 AND transaction_id=$2 ORDER BY id ASC`, tenantID, transactionID)
	if err != nil {
		return Transaction{}, err
	}
	defer rows.Close()
	txn := Transaction{TransactionID: transactionID}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return Transaction{}, err
		}
		txn.Entries = append(txn.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return Transaction{}, err
	}
	if len(txn.Entries) == 0 {
		return Transaction{}, ErrTransactionNotFound
	}
	return txn, nil
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// TxRepositoryOn adapts an existing transaction so other modules (the
// payment aggregate in particular) can post journals inside their own
// atomic unit while this package stays the only writer of ledger rows.
func TxRepositoryOn(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertEntries(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		_, err := r.tx.Exec(ctx, `INSERT INTO ledger_entries
(tenant_id, transaction_id, date, description, debit_account_id, credit_account_id, amount, original_amount, original_currency, source_module, source_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			e.TenantID, e.TransactionID, e.Date, e.Description, e.DebitAccountID, e.CreditAccountID,
			e.Amount, e.OriginalAmount, e.OriginalCurrency, e.SourceModule, e.SourceID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetTransactionEntries(ctx context.Context, tenantID int64, transactionID uuid.UUID) ([]Entry, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
WHERE tenant_id=$1 AND transaction_id=$2 ORDER BY id ASC`, tenantID, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *txRepository) CountAccounts(ctx context.Context, tenantID int64, accountIDs []int64) (int64, error) {
	var count int64
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE tenant_id=$1 AND id = ANY($2)`,
		tenantID, accountIDs).Scan(&count)
	return count, err
}

func (r *txRepository) ClosedPeriodCovering(ctx context.Context, tenantID int64, date time.Time) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM financial_periods
WHERE tenant_id=$1 AND status IN ('Closed','Archived') AND $2 BETWEEN start_date AND end_date)`,
		tenantID, date).Scan(&exists)
	return exists, err
}
