package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// AuditPort records operation trails after commit.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ImportLine is one statement line in an import batch.
type ImportLine struct {
	StatementDate   time.Time
	Description     string
	Amount          float64
	ReferenceNumber string
}

// ImportInput groups an import batch.
type ImportInput struct {
	TenantID int64
	ActorID  int64
	Lines    []ImportLine
}

// Validate rejects malformed import batches before the transaction opens.
func (in ImportInput) Validate() error {
	if len(in.Lines) == 0 {
		return fmt.Errorf("%w: import requires at least one line", shared.ErrValidation)
	}
	for _, line := range in.Lines {
		if line.StatementDate.IsZero() {
			return ErrDateRequired
		}
		if line.Amount == 0 {
			return ErrZeroAmount
		}
	}
	return nil
}

// Service owns bank statement import and resolution. Resolution never
// touches ledger rows: matching is a reconciliation signal, not a posting.
type Service struct {
	repo  Repository
	audit AuditPort
	log   *slog.Logger
	now   func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo Repository, audit AuditPort, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, audit: audit, log: log, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Import records a batch of statement lines, all opening as pending.
// The batch commits atomically.
func (s *Service) Import(ctx context.Context, in ImportInput) ([]BankStatement, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var out []BankStatement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, line := range in.Lines {
			inserted, err := tx.Insert(ctx, BankStatement{
				TenantID:        in.TenantID,
				StatementDate:   line.StatementDate,
				Description:     line.Description,
				Amount:          line.Amount,
				ReferenceNumber: line.ReferenceNumber,
				Status:          StatusPending,
			})
			if err != nil {
				return err
			}
			out = append(out, inserted)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, in.TenantID, in.ActorID, "statement.import", fmt.Sprintf("batch:%d", len(out)), map[string]any{"lines": len(out)})
	return out, nil
}

// List returns a paginated slice of statement lines.
func (s *Service) List(ctx context.Context, in ListInput) ([]BankStatement, int, error) {
	return s.repo.List(ctx, in)
}

// MarkMatched resolves a pending line as matched, optionally linking the
// cheque it confirms.
func (s *Service) MarkMatched(ctx context.Context, tenantID, id, actorID int64, chequeID *int64) (BankStatement, error) {
	line, err := s.resolve(ctx, tenantID, id, StatusMatched, chequeID)
	if err != nil {
		return BankStatement{}, err
	}
	s.recordAudit(ctx, tenantID, actorID, "statement.match", fmt.Sprintf("%d", id), map[string]any{"cheque_id": chequeID})
	return line, nil
}

// MarkIgnored resolves a pending line as ignored (bank fees, noise).
func (s *Service) MarkIgnored(ctx context.Context, tenantID, id, actorID int64) (BankStatement, error) {
	line, err := s.resolve(ctx, tenantID, id, StatusIgnored, nil)
	if err != nil {
		return BankStatement{}, err
	}
	s.recordAudit(ctx, tenantID, actorID, "statement.ignore", fmt.Sprintf("%d", id), nil)
	return line, nil
}

func (s *Service) resolve(ctx context.Context, tenantID, id int64, status StatementStatus, chequeID *int64) (BankStatement, error) {
	var out BankStatement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		line, err := tx.GetForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if line.Status != StatusPending {
			return ErrNotPending
		}
		if err := tx.Resolve(ctx, tenantID, id, status, chequeID); err != nil {
			return err
		}
		line.Status = status
		line.MatchedChequeID = chequeID
		out = line
		return nil
	})
	if err != nil {
		return BankStatement{}, err
	}
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
		Entity:   "bank_statement",
		EntityID: entityID,
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.log.WarnContext(ctx, "audit record failed", "action", action, "error", err)
	}
}
