package periods

import (
	"context"
	"fmt"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Check is one closing-readiness gate. Checks run against the pool for
// previews and against the closing transaction for the authoritative run,
// so implementations take a Querier rather than holding a connection.
type Check interface {
	Name() string
	Run(ctx context.Context, q db.Querier, period FinancialPeriod) (CheckResult, error)
}

// pendingChequesCheck fails while cheques dated inside the period are
// still awaiting clearance.
type pendingChequesCheck struct{}

func (pendingChequesCheck) Name() string { return "All cheques resolved" }

func (c pendingChequesCheck) Run(ctx context.Context, q db.Querier, period FinancialPeriod) (CheckResult, error) {
	var pending int64
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM cheques
WHERE tenant_id=$1 AND status='pending_clearance' AND cheque_date BETWEEN $2 AND $3`,
		period.TenantID, period.StartDate, period.EndDate).Scan(&pending)
	if err != nil {
		return CheckResult{}, err
	}
	result := CheckResult{Task: c.Name(), IsCompleted: pending == 0}
	if pending > 0 {
		result.Details = fmt.Sprintf("%d cheque(s) still pending clearance", pending)
	}
	return result, nil
}

// pendingStatementsCheck fails while bank statement lines dated inside the
// period are neither matched nor ignored.
type pendingStatementsCheck struct{}

func (pendingStatementsCheck) Name() string { return "Bank statements reconciled" }

func (c pendingStatementsCheck) Run(ctx context.Context, q db.Querier, period FinancialPeriod) (CheckResult, error) {
	var pending int64
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM bank_statements
WHERE tenant_id=$1 AND status='pending' AND statement_date BETWEEN $2 AND $3`,
		period.TenantID, period.StartDate, period.EndDate).Scan(&pending)
	if err != nil {
		return CheckResult{}, err
	}
	result := CheckResult{Task: c.Name(), IsCompleted: pending == 0}
	if pending > 0 {
		result.Details = fmt.Sprintf("%d statement line(s) unreconciled", pending)
	}
	return result, nil
}

// DefaultChecks returns the closing gate suite in presentation order.
func DefaultChecks() []Check {
	return []Check{pendingChequesCheck{}, pendingStatementsCheck{}}
}
