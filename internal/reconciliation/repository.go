package reconciliation

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// ListInput filters the statement listing.
type ListInput struct {
	TenantID int64
	Status   StatementStatus
	From     *time.Time
	To       *time.Time
	Page     int
	PerPage  int
}

// Repository encapsulates DB operations for bank statement lines.
type Repository interface {
	List(ctx context.Context, in ListInput) ([]BankStatement, int, error)
	Get(ctx context.Context, tenantID, id int64) (BankStatement, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository is the transactional surface used by statement mutations.
type TxRepository interface {
	Insert(ctx context.Context, line BankStatement) (BankStatement, error)
	GetForUpdate(ctx context.Context, tenantID, id int64) (BankStatement, error)
	Resolve(ctx context.Context, tenantID, id int64, status StatementStatus, chequeID *int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const statementColumns = `id, tenant_id, statement_date, description, amount, reference_number, status, matched_cheque_id, created_at`

func scanStatement(row pgx.Row) (BankStatement, error) {
	var s BankStatement
	err := row.Scan(&s.ID, &s.TenantID, &s.StatementDate, &s.Description, &s.Amount,
		&s.ReferenceNumber, &s.Status, &s.MatchedChequeID, &s.CreatedAt)
	return s, err
}

func (r *repository) List(ctx context.Context, in ListInput) ([]BankStatement, int, error) {
	where := ` WHERE tenant_id=$1`
	args := []any{in.TenantID}
	if in.Status != "" {
		args = append(args, in.Status)
		where += ` AND status=$` + itoa(len(args))
	}
	if in.From != nil {
		args = append(args, *in.From)
		where += ` AND statement_date >= $` + itoa(len(args))
	}
	if in.To != nil {
		args = append(args, *in.To)
		where += ` AND statement_date <= $` + itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bank_statements`+where, args...).Scan(&total); err != nil {
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
	sql := `SELECT ` + statementColumns + ` FROM bank_statements` + where +
		` ORDER BY statement_date DESC, id DESC LIMIT $` + itoa(len(args)-1) + ` OFFSET $` + itoa(len(args))
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []BankStatement
	for rows.Next() {
		s, err := scanStatement(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, tenantID, id int64) (BankStatement, error) {
	s, err := scanStatement(r.pool.QueryRow(ctx, `SELECT `+statementColumns+` FROM bank_statements WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankStatement{}, ErrNotFound
		}
		return BankStatement{}, err
	}
	return s, nil
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Insert(ctx context.Context, line BankStatement) (BankStatement, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO bank_statements (tenant_id, statement_date, description, amount, reference_number, status)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at`,
		line.TenantID, line.StatementDate, line.Description, line.Amount, line.ReferenceNumber, line.Status).
		Scan(&line.ID, &line.CreatedAt)
	if err != nil {
		return BankStatement{}, err
	}
	return line, nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, tenantID, id int64) (BankStatement, error) {
	s, err := scanStatement(r.tx.QueryRow(ctx, `SELECT `+statementColumns+` FROM bank_statements WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankStatement{}, ErrNotFound
		}
		return BankStatement{}, err
	}
	return s, nil
}

func (r *txRepository) Resolve(ctx context.Context, tenantID, id int64, status StatementStatus, chequeID *int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE bank_statements SET status=$3, matched_cheque_id=$4 WHERE tenant_id=$1 AND id=$2`,
		tenantID, id, status, chequeID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func itoa(n int) string { return strconv.Itoa(n) }
