package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	entries     []Entry
	accounts    map[int64]bool
	closedSince *time.Time
	nextID      int64
}

func newMockRepository(accountIDs ...int64) *mockRepository {
	accounts := make(map[int64]bool, len(accountIDs))
	for _, id := range accountIDs {
		accounts[id] = true
	}
	return &mockRepository{accounts: accounts, nextID: 1}
}

func (m *mockRepository) List(ctx context.Context, in ListInput) ([]Entry, int, error) {
	return m.entries, len(m.entries), nil
}

func (m *mockRepository) GetTransaction(ctx context.Context, tenantID int64, transactionID uuid.UUID) (Transaction, error) {
	txn := Transaction{TransactionID: transactionID}
	for _, e := range m.entries {
		if e.TenantID == tenantID && e.TransactionID == transactionID {
			txn.Entries = append(txn.Entries, e)
		}
	}
	if len(txn.Entries) == 0 {
		return Transaction{}, ErrTransactionNotFound
	}
	return txn, nil
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &mockTx{mock: m})
}

type mockTx struct {
	mock *mockRepository
}

func (tx *mockTx) InsertEntries(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		e.ID = tx.mock.nextID
		tx.mock.nextID++
		tx.mock.entries = append(tx.mock.entries, e)
	}
	return nil
}

func (tx *mockTx) GetTransactionEntries(ctx context.Context, tenantID int64, transactionID uuid.UUID) ([]Entry, error) {
	var out []Entry
	for _, e := range tx.mock.entries {
		if e.TenantID == tenantID && e.TransactionID == transactionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (tx *mockTx) CountAccounts(ctx context.Context, tenantID int64, accountIDs []int64) (int64, error) {
	var count int64
	for _, id := range accountIDs {
		if tx.mock.accounts[id] {
			count++
		}
	}
	return count, nil
}

func (tx *mockTx) ClosedPeriodCovering(ctx context.Context, tenantID int64, date time.Time) (bool, error) {
	return tx.mock.closedSince != nil && !date.Before(*tx.mock.closedSince), nil
}

func newTestService(repo *mockRepository) *Service {
	svc := NewService(repo, nil, nil, "USD")
	svc.WithNow(func() time.Time { return time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC) })
	return svc
}

func basePosting(lines ...PostingLine) PostingInput {
	return PostingInput{
		TenantID:     1,
		Date:         time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Description:  "office supplies",
		SourceModule: "ledger",
		PostedBy:     7,
		Lines:        lines,
	}
}

// ============================================================================
// POSTING
// ============================================================================

func TestPostSimpleJournal(t *testing.T) {
	repo := newMockRepository(1, 2)
	svc := newTestService(repo)

	txn, err := svc.Post(context.Background(), basePosting(
		PostingLine{AccountID: 1, Debit: 120.50},
		PostingLine{AccountID: 2, Credit: 120.50},
	))
	require.NoError(t, err)
	require.Len(t, txn.Entries, 1)
	entry := txn.Entries[0]
	assert.Equal(t, int64(1), entry.DebitAccountID)
	assert.Equal(t, int64(2), entry.CreditAccountID)
	assert.Equal(t, 120.50, entry.Amount)
	assert.Equal(t, "USD", entry.OriginalCurrency)
	assert.Equal(t, txn.TransactionID, entry.TransactionID)
	assert.NotEqual(t, uuid.Nil, txn.TransactionID)
}

type failingAudit struct{}

func (failingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	return errors.New("audit store down")
}

func TestPostSucceedsWhenAuditFails(t *testing.T) {
	repo := newMockRepository(1, 2)
	svc := NewService(repo, failingAudit{}, nil, "USD")
	svc.WithNow(func() time.Time { return time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC) })

	txn, err := svc.Post(context.Background(), basePosting(
		PostingLine{AccountID: 1, Debit: 120.50},
		PostingLine{AccountID: 2, Credit: 120.50},
	))
	require.NoError(t, err)
	assert.Len(t, txn.Entries, 1)
	assert.Len(t, repo.entries, 1)
}

func TestPostExplodesMultiLineJournal(t *testing.T) {
	repo := newMockRepository(1, 2, 3)
	svc := newTestService(repo)

	// One debit of 100 funded by two credits of 60 and 40.
	txn, err := svc.Post(context.Background(), basePosting(
		PostingLine{AccountID: 1, Debit: 100},
		PostingLine{AccountID: 2, Credit: 60},
		PostingLine{AccountID: 3, Credit: 40},
	))
	require.NoError(t, err)
	require.Len(t, txn.Entries, 2)
	assert.Equal(t, 60.0, txn.Entries[0].Amount)
	assert.Equal(t, int64(2), txn.Entries[0].CreditAccountID)
	assert.Equal(t, 40.0, txn.Entries[1].Amount)
	assert.Equal(t, int64(3), txn.Entries[1].CreditAccountID)
	assert.Equal(t, txn.Entries[0].TransactionID, txn.Entries[1].TransactionID)
	assert.Equal(t, 100.0, txn.Total())
}

func TestPostRejectsUnbalancedJournal(t *testing.T) {
	repo := newMockRepository(1, 2)
	svc := newTestService(repo)

	_, err := svc.Post(context.Background(), basePosting(
		PostingLine{AccountID: 1, Debit: 100},
		PostingLine{AccountID: 2, Credit: 99.98},
	))
	require.ErrorIs(t, err, ErrUnbalanced)
	assert.Empty(t, repo.entries)
}

func TestPostRejectsSingleLine(t *testing.T) {
	repo := newMockRepository(1)
	svc := newTestService(repo)

	_, err := svc.Post(context.Background(), basePosting(
		PostingLine{AccountID: 1, Debit: 100},
	))
	require.ErrorIs(t, err, ErrTooFewLines)
}

func TestPostRejectsMixedLine(t *testing.T) {
	repo := newMockRepository(1, 2)
	svc := newTestService(repo)

	_, err := svc.Post(context.Background(), basePosting(
		PostingLine{AccountID: 1, Debit: 50, Credit: 50},
		PostingLine{AccountID: 2, Credit: 0.0, Debit: 0.0},
	))
	require.ErrorIs(t, err, ErrMixedLine)
}

func TestPostRejectsSelfTransfer(t *testing.T) {
	repo := newMockRepository(1)
	svc := newTestService(repo)

	_, err := svc.Post(context.Background(), basePosting(
		PostingLine{AccountID: 1, Debit: 100},
		PostingLine{AccountID: 1, Credit: 100},
	))
	require.ErrorIs(t, err, ErrSelfTransfer)
}

func TestPostRejectsUnknownAccount(t *testing.T) {
	repo := newMockRepository(1)
	svc := newTestService(repo)

	_, err := svc.Post(context.Background(), basePosting(
		PostingLine{AccountID: 1, Debit: 100},
		PostingLine{AccountID: 99, Credit: 100},
	))
	require.ErrorIs(t, err, ErrAccountMissing)
	assert.Empty(t, repo.entries)
}

func TestPostRejectsClosedPeriod(t *testing.T) {
	repo := newMockRepository(1, 2)
	closed := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	repo.closedSince = &closed
	svc := newTestService(repo)

	_, err := svc.Post(context.Background(), basePosting(
		PostingLine{AccountID: 1, Debit: 100},
		PostingLine{AccountID: 2, Credit: 100},
	))
	require.ErrorIs(t, err, ErrPeriodClosed)
	assert.Empty(t, repo.entries)
}

func TestPostConvertsForeignCurrency(t *testing.T) {
	repo := newMockRepository(1, 2)
	svc := newTestService(repo)

	in := basePosting(
		PostingLine{AccountID: 1, Debit: 200},
		PostingLine{AccountID: 2, Credit: 200},
	)
	in.Currency = "EUR"
	in.ExchangeRateToBase = 1.0875

	txn, err := svc.Post(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, txn.Entries, 1)
	assert.Equal(t, 217.50, txn.Entries[0].Amount)
	assert.Equal(t, 200.0, txn.Entries[0].OriginalAmount)
	assert.Equal(t, "EUR", txn.Entries[0].OriginalCurrency)
}

func TestPostRejectsForeignCurrencyWithoutRate(t *testing.T) {
	repo := newMockRepository(1, 2)
	svc := newTestService(repo)

	in := basePosting(
		PostingLine{AccountID: 1, Debit: 200},
		PostingLine{AccountID: 2, Credit: 200},
	)
	in.Currency = "EUR"

	_, err := svc.Post(context.Background(), in)
	require.ErrorIs(t, err, ErrBadRate)
}

// ============================================================================
// REVERSAL
// ============================================================================

func TestReverseMirrorsTransaction(t *testing.T) {
	repo := newMockRepository(1, 2, 3)
	svc := newTestService(repo)

	txn, err := svc.Post(context.Background(), basePosting(
		PostingLine{AccountID: 1, Debit: 100},
		PostingLine{AccountID: 2, Credit: 60},
		PostingLine{AccountID: 3, Credit: 40},
	))
	require.NoError(t, err)

	reversal, err := svc.Reverse(context.Background(), 1, txn.TransactionID, 7)
	require.NoError(t, err)
	require.Len(t, reversal.Entries, len(txn.Entries))
	assert.NotEqual(t, txn.TransactionID, reversal.TransactionID)
	for i, entry := range reversal.Entries {
		assert.Equal(t, txn.Entries[i].DebitAccountID, entry.CreditAccountID)
		assert.Equal(t, txn.Entries[i].CreditAccountID, entry.DebitAccountID)
		assert.Equal(t, txn.Entries[i].Amount, entry.Amount)
		assert.Equal(t, "ledger:REVERSAL", entry.SourceModule)
	}
	// Original rows untouched: the store is append-only.
	original, err := repo.GetTransaction(context.Background(), 1, txn.TransactionID)
	require.NoError(t, err)
	assert.Len(t, original.Entries, 2)
}

func TestReverseUnknownTransaction(t *testing.T) {
	repo := newMockRepository(1, 2)
	svc := newTestService(repo)

	_, err := svc.Reverse(context.Background(), 1, uuid.New(), 7)
	require.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestReverseRejectedWhenCurrentPeriodClosed(t *testing.T) {
	repo := newMockRepository(1, 2)
	svc := newTestService(repo)

	txn, err := svc.Post(context.Background(), basePosting(
		PostingLine{AccountID: 1, Debit: 100},
		PostingLine{AccountID: 2, Credit: 100},
	))
	require.NoError(t, err)

	closed := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	repo.closedSince = &closed
	_, err = svc.Reverse(context.Background(), 1, txn.TransactionID, 7)
	require.ErrorIs(t, err, ErrPeriodClosed)
}
