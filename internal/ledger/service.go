package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// AuditPort records operation trails after commit.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the journal posting service: the only writer of ledger rows.
// Every posting commits as one atomic unit; partial writes are never
// observable.
type Service struct {
	repo         Repository
	audit        AuditPort
	log          *slog.Logger
	baseCurrency string
	now          func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo Repository, audit AuditPort, log *slog.Logger, baseCurrency string) *Service {
	if log == nil {
		log = slog.Default()
	}
	if baseCurrency == "" {
		baseCurrency = "USD"
	}
	return &Service{repo: repo, audit: audit, log: log, baseCurrency: baseCurrency, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// List returns a paginated slice of ledger entries.
func (s *Service) List(ctx context.Context, in ListInput) ([]Entry, int, error) {
	return s.repo.List(ctx, in)
}

// GetTransaction returns all rows sharing a transaction id.
func (s *Service) GetTransaction(ctx context.Context, tenantID int64, transactionID uuid.UUID) (Transaction, error) {
	return s.repo.GetTransaction(ctx, tenantID, transactionID)
}

// Post validates and writes one journal inside its own transaction.
func (s *Service) Post(ctx context.Context, in PostingInput) (Transaction, error) {
	var txn Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		txn, err = s.PostOn(ctx, tx, in)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	s.recordAudit(ctx, in.TenantID, in.PostedBy, "journal.post", txn)
	return txn, nil
}

// PostOn validates and writes one journal on the caller's transaction. The
// payment aggregate posts through here so a cheque transition and its
// confirming entry commit or roll back together. This package remains the
// sole writer of ledger rows.
func (s *Service) PostOn(ctx context.Context, tx TxRepository, in PostingInput) (Transaction, error) {
	if in.Currency == "" {
		in.Currency = s.baseCurrency
		if in.ExchangeRateToBase == 0 {
			in.ExchangeRateToBase = 1
		}
	}
	if err := in.Validate(); err != nil {
		return Transaction{}, err
	}

	closed, err := tx.ClosedPeriodCovering(ctx, in.TenantID, in.Date)
	if err != nil {
		return Transaction{}, err
	}
	if closed {
		return Transaction{}, ErrPeriodClosed
	}

	ids := distinctAccountIDs(in.Lines)
	count, err := tx.CountAccounts(ctx, in.TenantID, ids)
	if err != nil {
		return Transaction{}, err
	}
	if count != int64(len(ids)) {
		return Transaction{}, ErrAccountMissing
	}

	rows, err := in.explode()
	if err != nil {
		return Transaction{}, err
	}

	transactionID := uuid.New()
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, Entry{
			TenantID:         in.TenantID,
			TransactionID:    transactionID,
			Date:             in.Date,
			Description:      in.Description,
			DebitAccountID:   row.debitAccountID,
			CreditAccountID:  row.creditAccountID,
			Amount:           in.baseAmount(row.originalAmount),
			OriginalAmount:   row.originalAmount,
			OriginalCurrency: in.Currency,
			SourceModule:     in.SourceModule,
			SourceID:         in.SourceID,
		})
	}
	if err := tx.InsertEntries(ctx, entries); err != nil {
		return Transaction{}, err
	}
	return Transaction{TransactionID: transactionID, Entries: entries}, nil
}

// Reverse posts a mirror-image of an existing transaction under a new
// transaction id. Stored entries are immutable; this is the only correction
// mechanism.
func (s *Service) Reverse(ctx context.Context, tenantID int64, transactionID uuid.UUID, actorID int64) (Transaction, error) {
	var reversal Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		originals, err := tx.GetTransactionEntries(ctx, tenantID, transactionID)
		if err != nil {
			return err
		}
		if len(originals) == 0 {
			return ErrTransactionNotFound
		}

		date := s.now()
		closed, err := tx.ClosedPeriodCovering(ctx, tenantID, date)
		if err != nil {
			return err
		}
		if closed {
			return ErrPeriodClosed
		}

		reversalID := uuid.New()
		entries := make([]Entry, 0, len(originals))
		for _, original := range originals {
			entries = append(entries, Entry{
				TenantID:         tenantID,
				TransactionID:    reversalID,
				Date:             date,
				Description:      fmt.Sprintf("Reversal of %s", original.Description),
				DebitAccountID:   original.CreditAccountID,
				CreditAccountID:  original.DebitAccountID,
				Amount:           original.Amount,
				OriginalAmount:   original.OriginalAmount,
				OriginalCurrency: original.OriginalCurrency,
				SourceModule:     original.SourceModule + ":REVERSAL",
				SourceID:         original.SourceID,
			})
		}
		if err := tx.InsertEntries(ctx, entries); err != nil {
			return err
		}
		reversal = Transaction{TransactionID: reversalID, Entries: entries}
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	s.recordAudit(ctx, tenantID, actorID, "journal.reverse", reversal)
	return reversal, nil
}

func (s *Service) recordAudit(ctx context.Context, tenantID, actorID int64, action string, txn Transaction) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "ledger_transaction",
		EntityID: txn.TransactionID.String(),
		Meta: map[string]any{
			"rows":  len(txn.Entries),
			"total": txn.Total(),
		},
		At: s.now(),
	})
	if err != nil {
		s.log.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}

func distinctAccountIDs(lines []PostingLine) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.AccountID]; ok {
			continue
		}
		seen[line.AccountID] = struct{}{}
		ids = append(ids, line.AccountID)
	}
	return ids
}
