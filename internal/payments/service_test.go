package payments

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/invoices"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	methods  map[int64]PaymentMethod
	payments map[int64]Payment
	lines    map[int64]PaymentLine
	cheques  map[int64]Cheque

	doc    invoices.SourceDoc
	docRef invoices.SourceRef

	journals []ledger.PostingInput

	counter                           int64
	nextPaymentID, nextLineID, nextChequeID int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		methods:       make(map[int64]PaymentMethod),
		payments:      make(map[int64]Payment),
		lines:         make(map[int64]PaymentLine),
		cheques:       make(map[int64]Cheque),
		nextPaymentID: 1,
		nextLineID:    1,
		nextChequeID:  1,
	}
}

func (m *mockRepository) GetPayment(ctx context.Context, tenantID, id int64) (Payment, error) {
	p, ok := m.payments[id]
	if !ok || p.TenantID != tenantID {
		return Payment{}, ErrPaymentNotFound
	}
	p.Lines = m.linesOf(id)
	return p, nil
}

func (m *mockRepository) linesOf(paymentID int64) []PaymentLine {
	var out []PaymentLine
	for id := int64(1); id < m.nextLineID; id++ {
		if line, ok := m.lines[id]; ok && line.PaymentID == paymentID {
			out = append(out, line)
		}
	}
	return out
}

func (m *mockRepository) GetCheque(ctx context.Context, tenantID, id int64) (Cheque, error) {
	c, ok := m.cheques[id]
	if !ok || c.TenantID != tenantID {
		return Cheque{}, ErrChequeNotFound
	}
	return c, nil
}

func (m *mockRepository) ListMethods(ctx context.Context, tenantID int64) ([]PaymentMethod, error) {
	var out []PaymentMethod
	for _, method := range m.methods {
		if method.TenantID == tenantID {
			out = append(out, method)
		}
	}
	return out, nil
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	// Snapshot for rollback on error, matching transactional semantics.
	snapshot := *m
	snapshot.payments = clone(m.payments)
	snapshot.lines = clone(m.lines)
	snapshot.cheques = clone(m.cheques)
	snapshot.journals = append([]ledger.PostingInput(nil), m.journals...)
	if err := fn(ctx, &mockTx{mock: m}); err != nil {
		*m = snapshot
		return err
	}
	return nil
}

func clone[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type mockTx struct {
	mock *mockRepository
}

func (tx *mockTx) NextPaymentNumber(ctx context.Context, tenantID int64) (string, error) {
	tx.mock.counter++
	return fmt.Sprintf("PAY-%06d", tx.mock.counter), nil
}

func (tx *mockTx) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	p.ID = tx.mock.nextPaymentID
	tx.mock.nextPaymentID++
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	tx.mock.payments[p.ID] = p
	return p, nil
}

func (tx *mockTx) InsertLine(ctx context.Context, line PaymentLine) (PaymentLine, error) {
	line.ID = tx.mock.nextLineID
	tx.mock.nextLineID++
	tx.mock.lines[line.ID] = line
	return line, nil
}

func (tx *mockTx) InsertCheque(ctx context.Context, c Cheque) (Cheque, error) {
	c.ID = tx.mock.nextChequeID
	tx.mock.nextChequeID++
	tx.mock.cheques[c.ID] = c
	return c, nil
}

func (tx *mockTx) GetChequeForUpdate(ctx context.Context, tenantID, id int64) (Cheque, error) {
	return tx.mock.GetCheque(ctx, tenantID, id)
}

func (tx *mockTx) GetPaymentForUpdate(ctx context.Context, tenantID, id int64) (Payment, error) {
	return tx.mock.GetPayment(ctx, tenantID, id)
}

func (tx *mockTx) GetMethod(ctx context.Context, tenantID, id int64) (PaymentMethod, error) {
	method, ok := tx.mock.methods[id]
	if !ok || method.TenantID != tenantID {
		return PaymentMethod{}, ErrMethodNotFound
	}
	return method, nil
}

func (tx *mockTx) ListCheques(ctx context.Context, tenantID, paymentID int64) ([]Cheque, error) {
	var out []Cheque
	for id := int64(1); id < tx.mock.nextChequeID; id++ {
		if c, ok := tx.mock.cheques[id]; ok && c.TenantID == tenantID && c.PaymentID == paymentID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (tx *mockTx) UpdateCheque(ctx context.Context, tenantID, id int64, status ChequeStatus, clearingDate time.Time) error {
	c, ok := tx.mock.cheques[id]
	if !ok {
		return ErrChequeNotFound
	}
	c.Status = status
	c.ClearingDate = &clearingDate
	tx.mock.cheques[id] = c
	return nil
}

func (tx *mockTx) UpdateLineStatus(ctx context.Context, id int64, status LineStatus) error {
	line := tx.mock.lines[id]
	line.Status = status
	tx.mock.lines[id] = line
	return nil
}

func (tx *mockTx) UpdatePaymentStatus(ctx context.Context, tenantID, id int64, status PaymentStatus) error {
	p, ok := tx.mock.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	p.Status = status
	tx.mock.payments[id] = p
	return nil
}

func (tx *mockTx) PostJournal(ctx context.Context, in ledger.PostingInput) (ledger.Transaction, error) {
	if in.Currency == "" {
		in.Currency = "USD"
		if in.ExchangeRateToBase == 0 {
			in.ExchangeRateToBase = 1
		}
	}
	if err := in.Validate(); err != nil {
		return ledger.Transaction{}, err
	}
	tx.mock.journals = append(tx.mock.journals, in)
	return ledger.Transaction{TransactionID: uuid.New()}, nil
}

func (tx *mockTx) GetSource(ctx context.Context, tenantID int64, ref invoices.SourceRef) (invoices.SourceDoc, error) {
	if ref != tx.mock.docRef {
		return invoices.SourceDoc{}, invoices.ErrSourceNotFound
	}
	return tx.mock.doc, nil
}

func (tx *mockTx) RecalculateSource(ctx context.Context, tenantID int64, ref invoices.SourceRef) (invoices.SourceDoc, error) {
	if ref != tx.mock.docRef {
		return invoices.SourceDoc{}, invoices.ErrSourceNotFound
	}
	var paid float64
	for _, line := range tx.mock.lines {
		owner := tx.mock.payments[line.PaymentID]
		if owner.Source == ref && owner.Status != PaymentStatusVoided && line.Status == LineStatusCleared {
			paid += line.Amount
		}
	}
	doc := tx.mock.doc
	doc.AmountPaid = paid
	switch {
	case math.Abs(paid-doc.TotalAmount) < 0.01:
		doc.PaymentStatus = invoices.StatusFullyPaid
	case paid > 0:
		doc.PaymentStatus = invoices.StatusPartiallyPaid
	default:
		doc.PaymentStatus = invoices.StatusPendingPayment
	}
	tx.mock.doc = doc
	return doc, nil
}

// ============================================================================
// FIXTURES
// ============================================================================

const (
	cashAccount         = int64(10)
	bankAccount         = int64(11)
	holdingAccount      = int64(12)
	counterpartyAccount = int64(20)

	cashMethod   = int64(1)
	chequeMethod = int64(2)
)

func newFixture(t *testing.T) (*mockRepository, *Service) {
	t.Helper()
	repo := newMockRepository()
	repo.methods[cashMethod] = PaymentMethod{ID: cashMethod, TenantID: 1, Name: "Cash", AccountID: cashAccount}
	holding := holdingAccount
	repo.methods[chequeMethod] = PaymentMethod{ID: chequeMethod, TenantID: 1, Name: "Cheque", Deferred: true, AccountID: bankAccount, HoldingAccountID: &holding}
	repo.docRef = invoices.SourceRef{Kind: invoices.KindSalesInvoice, ID: 1}
	repo.doc = invoices.SourceDoc{
		ID:                    1,
		Number:                "INV-000001",
		TotalAmount:           500,
		PaymentStatus:         invoices.StatusPendingPayment,
		CounterpartyAccountID: counterpartyAccount,
	}
	svc := NewService(repo, nil, nil)
	svc.WithNow(func() time.Time { return time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC) })
	return repo, svc
}

func chequeLine(amount float64) RecordLineInput {
	return RecordLineInput{
		MethodID: chequeMethod,
		Amount:   amount,
		Cheque: &ChequeDetails{
			ChequeNumber: "CHQ-881",
			BankName:     "First National",
			ChequeDate:   time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC),
		},
	}
}

func recordInput(lines ...RecordLineInput) RecordPaymentInput {
	return RecordPaymentInput{
		TenantID:  1,
		ActorID:   7,
		Source:    invoices.SourceRef{Kind: invoices.KindSalesInvoice, ID: 1},
		Direction: DirectionInflow,
		Lines:     lines,
	}
}

// ============================================================================
// RECORDING
// ============================================================================

func TestRecordImmediatePayment(t *testing.T) {
	repo, svc := newFixture(t)

	payment, err := svc.RecordPayment(context.Background(), recordInput(
		RecordLineInput{MethodID: cashMethod, Amount: 500},
	))
	require.NoError(t, err)
	assert.Equal(t, "PAY-000001", payment.Number)
	assert.Equal(t, PaymentStatusCompleted, payment.Status)
	assert.Equal(t, 500.0, payment.TotalAmount)
	require.Len(t, payment.Lines, 1)
	assert.Equal(t, LineStatusCleared, payment.Lines[0].Status)

	// Inflow: debit the cash account, credit the counterparty.
	require.Len(t, repo.journals, 1)
	lines := repo.journals[0].Lines
	require.Len(t, lines, 2)
	assert.Equal(t, cashAccount, lines[0].AccountID)
	assert.Equal(t, 500.0, lines[0].Debit)
	assert.Equal(t, counterpartyAccount, lines[1].AccountID)
	assert.Equal(t, 500.0, lines[1].Credit)

	assert.Equal(t, 500.0, repo.doc.AmountPaid)
	assert.Equal(t, invoices.StatusFullyPaid, repo.doc.PaymentStatus)
}

func TestRecordChequePaymentParksInHolding(t *testing.T) {
	repo, svc := newFixture(t)

	payment, err := svc.RecordPayment(context.Background(), recordInput(chequeLine(500)))
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusPendingClearance, payment.Status)
	require.Len(t, payment.Lines, 1)
	assert.Equal(t, LineStatusPending, payment.Lines[0].Status)

	require.Len(t, repo.cheques, 1)
	cheque := repo.cheques[1]
	assert.Equal(t, ChequeStatusPending, cheque.Status)
	assert.Equal(t, payment.Lines[0].ID, cheque.PaymentLineID)
	assert.Equal(t, 500.0, cheque.Amount)

	// Funds park in holding, not the final bank account.
	require.Len(t, repo.journals, 1)
	lines := repo.journals[0].Lines
	assert.Equal(t, holdingAccount, lines[0].AccountID)
	assert.Equal(t, 500.0, lines[0].Debit)
	assert.Equal(t, counterpartyAccount, lines[1].AccountID)

	// Pending funds never count as paid.
	assert.Equal(t, 0.0, repo.doc.AmountPaid)
	assert.Equal(t, invoices.StatusPendingPayment, repo.doc.PaymentStatus)
}

func TestRecordOutflowMirrorsEntries(t *testing.T) {
	repo, svc := newFixture(t)

	in := recordInput(RecordLineInput{MethodID: cashMethod, Amount: 120})
	in.Direction = DirectionOutflow
	_, err := svc.RecordPayment(context.Background(), in)
	require.NoError(t, err)

	lines := repo.journals[0].Lines
	assert.Equal(t, counterpartyAccount, lines[0].AccountID)
	assert.Equal(t, 120.0, lines[0].Debit)
	assert.Equal(t, cashAccount, lines[1].AccountID)
	assert.Equal(t, 120.0, lines[1].Credit)
}

func TestRecordDeferredLineRequiresChequeDetails(t *testing.T) {
	repo, svc := newFixture(t)

	_, err := svc.RecordPayment(context.Background(), recordInput(
		RecordLineInput{MethodID: chequeMethod, Amount: 500},
	))
	require.ErrorIs(t, err, ErrChequeDetails)
	assert.Empty(t, repo.payments)
	assert.Empty(t, repo.journals)
}

func TestRecordUnknownSource(t *testing.T) {
	_, svc := newFixture(t)

	in := recordInput(RecordLineInput{MethodID: cashMethod, Amount: 500})
	in.Source.ID = 99
	_, err := svc.RecordPayment(context.Background(), in)
	require.ErrorIs(t, err, invoices.ErrSourceNotFound)
}

func TestRecordUnknownMethod(t *testing.T) {
	repo, svc := newFixture(t)

	_, err := svc.RecordPayment(context.Background(), recordInput(
		RecordLineInput{MethodID: 42, Amount: 500},
	))
	require.ErrorIs(t, err, ErrMethodNotFound)
	assert.Empty(t, repo.payments)
}

// ============================================================================
// CHEQUE CLEARANCE
// ============================================================================

func TestClearChequeCompletesPayment(t *testing.T) {
	repo, svc := newFixture(t)

	payment, err := svc.RecordPayment(context.Background(), recordInput(chequeLine(500)))
	require.NoError(t, err)

	updated, err := svc.UpdateChequeStatus(context.Background(), ChequeTransitionInput{
		TenantID: 1, ActorID: 7, ChequeID: 1, Status: ChequeStatusCleared,
	})
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusCompleted, updated.Status)
	assert.Equal(t, payment.ID, updated.ID)

	cheque := repo.cheques[1]
	assert.Equal(t, ChequeStatusCleared, cheque.Status)
	require.NotNil(t, cheque.ClearingDate)

	// Settlement entry moves holding to the final bank account.
	require.Len(t, repo.journals, 2)
	lines := repo.journals[1].Lines
	assert.Equal(t, bankAccount, lines[0].AccountID)
	assert.Equal(t, 500.0, lines[0].Debit)
	assert.Equal(t, holdingAccount, lines[1].AccountID)
	assert.Equal(t, 500.0, lines[1].Credit)

	assert.Equal(t, 500.0, repo.doc.AmountPaid)
	assert.Equal(t, invoices.StatusFullyPaid, repo.doc.PaymentStatus)
}

func TestGetChequeScopedToTenant(t *testing.T) {
	_, svc := newFixture(t)

	_, err := svc.RecordPayment(context.Background(), recordInput(chequeLine(500)))
	require.NoError(t, err)

	cheque, err := svc.GetCheque(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "CHQ-881", cheque.ChequeNumber)
	assert.Equal(t, ChequeStatusPending, cheque.Status)

	_, err = svc.GetCheque(context.Background(), 2, 1)
	assert.ErrorIs(t, err, ErrChequeNotFound)
}

func TestForeignCurrencyChequeSettlesAtRecordedRate(t *testing.T) {
	repo, svc := newFixture(t)

	in := recordInput(chequeLine(500))
	in.Currency = "EUR"
	in.ExchangeRateToBase = 1.10
	_, err := svc.RecordPayment(context.Background(), in)
	require.NoError(t, err)

	cheque := repo.cheques[1]
	assert.Equal(t, "EUR", cheque.Currency)
	assert.Equal(t, 1.10, cheque.ExchangeRateToBase)

	_, err = svc.UpdateChequeStatus(context.Background(), ChequeTransitionInput{
		TenantID: 1, ActorID: 7, ChequeID: 1, Status: ChequeStatusCleared,
	})
	require.NoError(t, err)

	// The settlement journal restates the recording currency and rate so
	// the base amount leaving the holding account equals the base amount
	// parked there.
	require.Len(t, repo.journals, 2)
	recording, settlement := repo.journals[0], repo.journals[1]
	assert.Equal(t, "EUR", settlement.Currency)
	assert.Equal(t, recording.ExchangeRateToBase, settlement.ExchangeRateToBase)
	assert.Equal(t, holdingAccount, settlement.Lines[1].AccountID)
	assert.Equal(t, 500.0, settlement.Lines[1].Credit)
}

func TestForeignCurrencyChequeBouncesAtRecordedRate(t *testing.T) {
	repo, svc := newFixture(t)

	in := recordInput(chequeLine(500))
	in.Currency = "EUR"
	in.ExchangeRateToBase = 1.10
	_, err := svc.RecordPayment(context.Background(), in)
	require.NoError(t, err)

	_, err = svc.UpdateChequeStatus(context.Background(), ChequeTransitionInput{
		TenantID: 1, ActorID: 7, ChequeID: 1, Status: ChequeStatusBounced,
	})
	require.NoError(t, err)

	require.Len(t, repo.journals, 2)
	reversal := repo.journals[1]
	assert.Equal(t, "EUR", reversal.Currency)
	assert.Equal(t, 1.10, reversal.ExchangeRateToBase)
	assert.Equal(t, counterpartyAccount, reversal.Lines[0].AccountID)
	assert.Equal(t, 500.0, reversal.Lines[0].Debit)
	assert.Equal(t, holdingAccount, reversal.Lines[1].AccountID)
	assert.Equal(t, 500.0, reversal.Lines[1].Credit)
}

func TestBounceChequeVoidsFullyChequeFundedPayment(t *testing.T) {
	repo, svc := newFixture(t)

	_, err := svc.RecordPayment(context.Background(), recordInput(chequeLine(500)))
	require.NoError(t, err)

	updated, err := svc.UpdateChequeStatus(context.Background(), ChequeTransitionInput{
		TenantID: 1, ActorID: 7, ChequeID: 1, Status: ChequeStatusBounced,
	})
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusVoided, updated.Status)
	assert.Equal(t, LineStatusBounced, repo.lines[1].Status)

	// Reversal returns the parked funds to the counterparty.
	require.Len(t, repo.journals, 2)
	lines := repo.journals[1].Lines
	assert.Equal(t, counterpartyAccount, lines[0].AccountID)
	assert.Equal(t, 500.0, lines[0].Debit)
	assert.Equal(t, holdingAccount, lines[1].AccountID)
	assert.Equal(t, 500.0, lines[1].Credit)

	assert.Equal(t, 0.0, repo.doc.AmountPaid)
	assert.Equal(t, invoices.StatusPendingPayment, repo.doc.PaymentStatus)
}

func TestBounceInMixedFundingPartiallyClears(t *testing.T) {
	repo, svc := newFixture(t)

	_, err := svc.RecordPayment(context.Background(), recordInput(
		RecordLineInput{MethodID: cashMethod, Amount: 300},
		chequeLine(200),
	))
	require.NoError(t, err)
	assert.Equal(t, 300.0, repo.doc.AmountPaid)
	assert.Equal(t, invoices.StatusPartiallyPaid, repo.doc.PaymentStatus)

	updated, err := svc.UpdateChequeStatus(context.Background(), ChequeTransitionInput{
		TenantID: 1, ActorID: 7, ChequeID: 1, Status: ChequeStatusBounced,
	})
	require.NoError(t, err)
	// The cash line cleared at recording time, so the payment is not void.
	assert.Equal(t, PaymentStatusPartiallyCleared, updated.Status)
	assert.Equal(t, 300.0, repo.doc.AmountPaid)
	assert.Equal(t, invoices.StatusPartiallyPaid, repo.doc.PaymentStatus)
}

func TestTransitionRequiresPendingCheque(t *testing.T) {
	_, svc := newFixture(t)

	_, err := svc.RecordPayment(context.Background(), recordInput(chequeLine(500)))
	require.NoError(t, err)
	_, err = svc.UpdateChequeStatus(context.Background(), ChequeTransitionInput{
		TenantID: 1, ActorID: 7, ChequeID: 1, Status: ChequeStatusCleared,
	})
	require.NoError(t, err)

	_, err = svc.UpdateChequeStatus(context.Background(), ChequeTransitionInput{
		TenantID: 1, ActorID: 7, ChequeID: 1, Status: ChequeStatusBounced,
	})
	require.ErrorIs(t, err, ErrNotPending)
}

func TestTransitionRejectsBadTarget(t *testing.T) {
	_, svc := newFixture(t)

	_, err := svc.UpdateChequeStatus(context.Background(), ChequeTransitionInput{
		TenantID: 1, ActorID: 7, ChequeID: 1, Status: ChequeStatusCancelled,
	})
	require.ErrorIs(t, err, ErrBadStatus)
}

func TestCancelChequeVoidsLine(t *testing.T) {
	repo, svc := newFixture(t)

	_, err := svc.RecordPayment(context.Background(), recordInput(chequeLine(500)))
	require.NoError(t, err)

	updated, err := svc.CancelCheque(context.Background(), 1, 1, 7)
	require.NoError(t, err)
	assert.Equal(t, ChequeStatusCancelled, repo.cheques[1].Status)
	assert.Equal(t, LineStatusBounced, repo.lines[1].Status)
	assert.Equal(t, PaymentStatusVoided, updated.Status)

	// Cancellation posts the same reversal a bounce would.
	require.Len(t, repo.journals, 2)
	assert.Equal(t, counterpartyAccount, repo.journals[1].Lines[0].AccountID)
}

// ============================================================================
// STATUS DERIVATION
// ============================================================================

func TestDerivePaymentStatus(t *testing.T) {
	pending := Cheque{Status: ChequeStatusPending}
	cleared := Cheque{Status: ChequeStatusCleared}
	bounced := Cheque{Status: ChequeStatusBounced}
	cancelled := Cheque{Status: ChequeStatusCancelled}

	assert.Equal(t, PaymentStatusPendingClearance, derivePaymentStatus([]Cheque{pending, cleared}, 2))
	assert.Equal(t, PaymentStatusCompleted, derivePaymentStatus([]Cheque{cleared, cleared}, 2))
	assert.Equal(t, PaymentStatusCompleted, derivePaymentStatus(nil, 1))
	assert.Equal(t, PaymentStatusVoided, derivePaymentStatus([]Cheque{bounced}, 1))
	assert.Equal(t, PaymentStatusVoided, derivePaymentStatus([]Cheque{cancelled}, 1))
	// A bounced cheque alongside a cash line partially clears.
	assert.Equal(t, PaymentStatusPartiallyCleared, derivePaymentStatus([]Cheque{bounced}, 2))
	assert.Equal(t, PaymentStatusPartiallyCleared, derivePaymentStatus([]Cheque{bounced, cleared}, 2))
}
