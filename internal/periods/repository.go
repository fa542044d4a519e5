package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository encapsulates DB operations for financial periods.
type Repository interface {
	List(ctx context.Context, tenantID int64, year int) ([]FinancialPeriod, error)
	Get(ctx context.Context, tenantID, id int64) (FinancialPeriod, error)
	Pool() db.Querier
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository is the transactional surface used by period mutations.
type TxRepository interface {
	db.Querier
	CountByYear(ctx context.Context, tenantID int64, year int) (int64, error)
	GetForUpdate(ctx context.Context, tenantID, id int64) (FinancialPeriod, error)
	InsertMonths(ctx context.Context, months []FinancialPeriod) ([]FinancialPeriod, error)
	UpdateStatus(ctx context.Context, tenantID, id int64, status PeriodStatus, closedBy *int64, closedAt *time.Time) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const periodColumns = `id, tenant_id, name, start_date, end_date, status, closed_by, closed_at`

func scanPeriod(row pgx.Row) (FinancialPeriod, error) {
	var p FinancialPeriod
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedBy, &p.ClosedAt)
	return p, err
}

func (r *repository) List(ctx context.Context, tenantID int64, year int) ([]FinancialPeriod, error) {
	sql := `SELECT ` + periodColumns + ` FROM financial_periods WHERE tenant_id=$1`
	args := []any{tenantID}
	if year != 0 {
		sql += ` AND EXTRACT(YEAR FROM start_date) = $2`
		args = append(args, year)
	}
	sql += ` ORDER BY start_date ASC`
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FinancialPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, tenantID, id int64) (FinancialPeriod, error) {
	p, err := scanPeriod(r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM financial_periods WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FinancialPeriod{}, ErrNotFound
		}
		return FinancialPeriod{}, err
	}
	return p, nil
}

func (r *repository) Pool() db.Querier { return r.pool }

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{Tx: tx})
	})
}

type txRepository struct {
	pgx.Tx
}

func (r *txRepository) CountByYear(ctx context.Context, tenantID int64, year int) (int64, error) {
	var count int64
	err := r.QueryRow(ctx, `SELECT COUNT(*) FROM financial_periods
WHERE tenant_id=$1 AND EXTRACT(YEAR FROM start_date) = $2`, tenantID, year).Scan(&count)
	return count, err
}

func (r *txRepository) GetForUpdate(ctx context.Context, tenantID, id int64) (FinancialPeriod, error) {
	p, err := scanPeriod(r.QueryRow(ctx, `SELECT `+periodColumns+` FROM financial_periods WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FinancialPeriod{}, ErrNotFound
		}
		return FinancialPeriod{}, err
	}
	return p, nil
}

func (r *txRepository) InsertMonths(ctx context.Context, months []FinancialPeriod) ([]FinancialPeriod, error) {
	out := make([]FinancialPeriod, 0, len(months))
	for _, m := range months {
		err := r.QueryRow(ctx, `INSERT INTO financial_periods (tenant_id, name, start_date, end_date, status)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, m.TenantID, m.Name, m.StartDate, m.EndDate, m.Status).Scan(&m.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *txRepository) UpdateStatus(ctx context.Context, tenantID, id int64, status PeriodStatus, closedBy *int64, closedAt *time.Time) error {
	cmd, err := r.Exec(ctx, `UPDATE financial_periods SET status=$3, closed_by=COALESCE($4, closed_by), closed_at=COALESCE($5, closed_at)
WHERE tenant_id=$1 AND id=$2`, tenantID, id, status, closedBy, closedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
