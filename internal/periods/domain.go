package periods

import (
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// PeriodStatus is the lifecycle state of a financial period. Transitions
// are monotonic: Open to Closed to Archived, never backwards.
type PeriodStatus string

const (
	StatusOpen     PeriodStatus = "Open"
	StatusClosed   PeriodStatus = "Closed"
	StatusArchived PeriodStatus = "Archived"
)

// FinancialPeriod is one calendar month of a tenant's fiscal year.
type FinancialPeriod struct {
	ID        int64        `json:"id"`
	TenantID  int64        `json:"-"`
	Name      string       `json:"name"`
	StartDate time.Time    `json:"start_date"`
	EndDate   time.Time    `json:"end_date"`
	Status    PeriodStatus `json:"status"`
	ClosedBy  *int64       `json:"closed_by,omitempty"`
	ClosedAt  *time.Time   `json:"closed_at,omitempty"`
}

// Contains reports whether the date falls inside the period, inclusive.
func (p FinancialPeriod) Contains(date time.Time) bool {
	return !date.Before(p.StartDate) && !date.After(p.EndDate)
}

var (
	// ErrNotFound indicates an unknown period id.
	ErrNotFound = fmt.Errorf("%w: financial period", shared.ErrNotFound)
	// ErrNotOpen indicates a close attempt on a period that is not Open.
	ErrNotOpen = fmt.Errorf("%w: period is not open", shared.ErrConflict)
	// ErrNotClosed indicates an archive attempt on a period that is not Closed.
	ErrNotClosed = fmt.Errorf("%w: period is not closed", shared.ErrConflict)
	// ErrYearExists indicates periods for the requested year already exist.
	ErrYearExists = fmt.Errorf("%w: periods for year already generated", shared.ErrConflict)
	// ErrBadYear indicates an implausible fiscal year.
	ErrBadYear = fmt.Errorf("%w: year out of range", shared.ErrValidation)
)

// CheckResult is the outcome of one closing-readiness check.
type CheckResult struct {
	Task        string `json:"task"`
	IsCompleted bool   `json:"is_completed"`
	Details     string `json:"details"`
}
