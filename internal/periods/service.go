package periods

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// AuditPort records operation trails after commit.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the financial period lifecycle and the closing gate.
type Service struct {
	repo   Repository
	checks []Check
	audit  AuditPort
	log    *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service instance. A nil checks slice installs
// the default closing suite.
func NewService(repo Repository, checks []Check, audit AuditPort, log *slog.Logger) *Service {
	if checks == nil {
		checks = DefaultChecks()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, checks: checks, audit: audit, log: log, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// List returns the tenant's periods, optionally filtered by fiscal year.
func (s *Service) List(ctx context.Context, tenantID int64, year int) ([]FinancialPeriod, error) {
	return s.repo.List(ctx, tenantID, year)
}

// Get returns one period.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (FinancialPeriod, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// GenerateYearlyPeriods creates the twelve monthly periods of a fiscal
// year in one shot. Generation is all-or-nothing: if any period for that
// year already exists the call fails and no rows are written.
func (s *Service) GenerateYearlyPeriods(ctx context.Context, tenantID int64, year int, actorID int64) ([]FinancialPeriod, error) {
	if year < 1900 || year > 2999 {
		return nil, ErrBadYear
	}
	var out []FinancialPeriod
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.CountByYear(ctx, tenantID, year)
		if err != nil {
			return err
		}
		if existing > 0 {
			return ErrYearExists
		}
		months := make([]FinancialPeriod, 0, 12)
		for m := time.January; m <= time.December; m++ {
			start := time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
			end := start.AddDate(0, 1, 0).AddDate(0, 0, -1)
			months = append(months, FinancialPeriod{
				TenantID:  tenantID,
				Name:      fmt.Sprintf("%s %d", m, year),
				StartDate: start,
				EndDate:   end,
				Status:    StatusOpen,
			})
		}
		out, err = tx.InsertMonths(ctx, months)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, tenantID, actorID, "period.generate", fmt.Sprintf("%d", year), map[string]any{"year": year})
	return out, nil
}

// ClosingChecks previews the closing gate without mutating anything.
// Checks fan out concurrently against the pool; results come back in
// suite order.
func (s *Service) ClosingChecks(ctx context.Context, tenantID, periodID int64) ([]CheckResult, error) {
	period, err := s.repo.Get(ctx, tenantID, periodID)
	if err != nil {
		return nil, err
	}
	results := make([]CheckResult, len(s.checks))
	g, ctx := errgroup.WithContext(ctx)
	for i, check := range s.checks {
		i, check := i, check
		g.Go(func() error {
			result, err := check.Run(ctx, s.repo.Pool(), period)
			if err != nil {
				return fmt.Errorf("closing check %q: %w", check.Name(), err)
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ClosePeriod transitions an Open period to Closed after the full check
// suite passes. The checks re-run inside the closing transaction on the
// locked period, so a statement recorded between preview and close still
// blocks the gate.
func (s *Service) ClosePeriod(ctx context.Context, tenantID, periodID, actorID int64) (FinancialPeriod, error) {
	var out FinancialPeriod
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.GetForUpdate(ctx, tenantID, periodID)
		if err != nil {
			return err
		}
		if period.Status != StatusOpen {
			return ErrNotOpen
		}
		results := make([]CheckResult, 0, len(s.checks))
		failed := false
		for _, check := range s.checks {
			result, err := check.Run(ctx, tx, period)
			if err != nil {
				return fmt.Errorf("closing check %q: %w", check.Name(), err)
			}
			results = append(results, result)
			if !result.IsCompleted {
				failed = true
			}
		}
		if failed {
			return &shared.PreconditionError{
				Detail: fmt.Sprintf("period %q cannot close until all checks pass", period.Name),
				Checks: results,
			}
		}
		now := s.now()
		if err := tx.UpdateStatus(ctx, tenantID, periodID, StatusClosed, &actorID, &now); err != nil {
			return err
		}
		period.Status = StatusClosed
		period.ClosedBy = &actorID
		period.ClosedAt = &now
		out = period
		return nil
	})
	if err != nil {
		return FinancialPeriod{}, err
	}
	s.recordAudit(ctx, tenantID, actorID, "period.close", fmt.Sprintf("%d", periodID), map[string]any{"name": out.Name})
	return out, nil
}

// ArchivePeriod transitions a Closed period to Archived. Archived periods
// stay read-only forever.
func (s *Service) ArchivePeriod(ctx context.Context, tenantID, periodID, actorID int64) (FinancialPeriod, error) {
	var out FinancialPeriod
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.GetForUpdate(ctx, tenantID, periodID)
		if err != nil {
			return err
		}
		if period.Status != StatusClosed {
			return ErrNotClosed
		}
		if err := tx.UpdateStatus(ctx, tenantID, periodID, StatusArchived, nil, nil); err != nil {
			return err
		}
		period.Status = StatusArchived
		out = period
		return nil
	})
	if err != nil {
		return FinancialPeriod{}, err
	}
	s.recordAudit(ctx, tenantID, actorID, "period.archive", fmt.Sprintf("%d", periodID), map[string]any{"name": out.Name})
	return out, nil
}

func (s *Service) recordAudit(ctx context.Context, tenantID, actorID int64, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "financial_period",
		EntityID: entityID,
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.log.WarnContext(ctx, "audit record failed", "action", action, "error", err)
	}
}
