package accounts

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// ListInput filters the chart of accounts.
type ListInput struct {
	TenantID int64
	Type     AccountType
	Search   string
	Limit    int
	Offset   int
}

// BalanceInput selects the account and optional as-of cutoff for a derived
// balance computation.
type BalanceInput struct {
	TenantID  int64
	AccountID int64
	AsOf      *time.Time
}

// Repository encapsulates DB operations for the account directory.
type Repository interface {
	List(ctx context.Context, in ListInput) ([]Account, error)
	Get(ctx context.Context, tenantID, id int64) (Account, error)
	Insert(ctx context.Context, account Account) (Account, error)
	// DebitNet returns sum(debits) - sum(credits) touching the account up
	// to the optional as-of date. Read-only; runs outside any transaction.
	DebitNet(ctx context.Context, in BalanceInput) (float64, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the row operations available inside a transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, tenantID, id int64) (Account, error)
	Update(ctx context.Context, account Account) error
	// CountLedgerReferences counts ledger entries naming the account on
	// either side. Authoritative only inside the deleting transaction.
	CountLedgerReferences(ctx context.Context, tenantID, accountID int64) (int64, error)
	Delete(ctx context.Context, tenantID, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const accountColumns = `id, tenant_id, name, type, sub_type, is_system_account, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.TenantID, &a.Name, &a.Type, &a.SubType, &a.IsSystemAccount, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *repository) List(ctx context.Context, in ListInput) ([]Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE tenant_id=$1`
	args := []any{in.TenantID}
	if in.Type != "" {
		args = append(args, in.Type)
		query += ` AND type=$2`
	}
	if search := strings.TrimSpace(in.Search); search != "" {
		args = append(args, "%"+search+"%")
		query += ` AND name ILIKE $` + itoa(len(args))
	}
	query += ` ORDER BY type, name`
	if in.Limit > 0 {
		args = append(args, in.Limit, in.Offset)
		query += ` LIMIT $` + itoa(len(args)-1) + ` OFFSET $` + itoa(len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *repository) Get(ctx context.Context, tenantID, id int64) (Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *repository) Insert(ctx context.Context, account Account) (Account, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO accounts (tenant_id, name, type, sub_type, is_system_account)
VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at, updated_at`,
		account.TenantID, account.Name, account.Type, account.SubType, account.IsSystemAccount)
	if err := row.Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt); err != nil {
		if db.IsUniqueViolation(err, "uq_accounts_tenant_name") {
			return Account{}, ErrDuplicateName
		}
		return Account{}, err
	}
	return account, nil
}

func (r *repository) DebitNet(ctx context.Context, in BalanceInput) (float64, error) {
	var net float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(CASE WHEN debit_account_id=$2 THEN amount ELSE -amount END), 0)
FROM ledger_entries
WHERE tenant_id=$1 AND (debit_account_id=$2 OR credit_account_id=$2) AND ($3::timestamptz IS NULL OR date <= $3)`,
		in.TenantID, in.AccountID, in.AsOf).Scan(&net)
	return net, err
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetForUpdate(ctx context.Context, tenantID, id int64) (Account, error) {
	a, err := scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *txRepository) Update(ctx context.Context, account Account) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET name=$3, sub_type=$4, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`,
		account.TenantID, account.ID, account.Name, account.SubType)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_accounts_tenant_name") {
			return ErrDuplicateName
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) CountLedgerReferences(ctx context.Context, tenantID, accountID int64) (int64, error) {
	var count int64
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries
WHERE tenant_id=$1 AND (debit_account_id=$2 OR credit_account_id=$2)`, tenantID, accountID).Scan(&count)
	return count, err
}

func (r *txRepository) Delete(ctx context.Context, tenantID, id int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM accounts WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
