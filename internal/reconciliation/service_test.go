package reconciliation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	statements map[int64]BankStatement
	nextID     int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{statements: make(map[int64]BankStatement), nextID: 1}
}

func (m *mockRepository) List(ctx context.Context, in ListInput) ([]BankStatement, int, error) {
	var out []BankStatement
	for id := int64(1); id < m.nextID; id++ {
		s, ok := m.statements[id]
		if !ok || s.TenantID != in.TenantID || (in.Status != "" && s.Status != in.Status) {
			continue
		}
		if in.From != nil && s.StatementDate.Before(*in.From) {
			continue
		}
		if in.To != nil && s.StatementDate.After(*in.To) {
			continue
		}
		out = append(out, s)
	}
	return out, len(out), nil
}

func (m *mockRepository) Get(ctx context.Context, tenantID, id int64) (BankStatement, error) {
	s, ok := m.statements[id]
	if !ok || s.TenantID != tenantID {
		return BankStatement{}, ErrNotFound
	}
	return s, nil
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[int64]BankStatement, len(m.statements))
	for k, v := range m.statements {
		snapshot[k] = v
	}
	nextID := m.nextID
	if err := fn(ctx, &mockTx{mock: m}); err != nil {
		m.statements = snapshot
		m.nextID = nextID
		return err
	}
	return nil
}

type mockTx struct {
	mock *mockRepository
}

func (tx *mockTx) Insert(ctx context.Context, line BankStatement) (BankStatement, error) {
	line.ID = tx.mock.nextID
	tx.mock.nextID++
	line.CreatedAt = time.Now()
	tx.mock.statements[line.ID] = line
	return line, nil
}

func (tx *mockTx) GetForUpdate(ctx context.Context, tenantID, id int64) (BankStatement, error) {
	return tx.mock.Get(ctx, tenantID, id)
}

func (tx *mockTx) Resolve(ctx context.Context, tenantID, id int64, status StatementStatus, chequeID *int64) error {
	s, ok := tx.mock.statements[id]
	if !ok {
		return ErrNotFound
	}
	s.Status = status
	s.MatchedChequeID = chequeID
	tx.mock.statements[id] = s
	return nil
}

func importedLine(amount float64) ImportLine {
	return ImportLine{
		StatementDate: time.Date(2025, 4, 3, 0, 0, 0, 0, time.UTC),
		Description:   "incoming wire",
		Amount:        amount,
	}
}

func TestImportBatch(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, nil)

	lines, err := svc.Import(context.Background(), ImportInput{
		TenantID: 1, ActorID: 7,
		Lines: []ImportLine{importedLine(500), importedLine(-32.50)},
	})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Equal(t, StatusPending, line.Status)
	}
}

func TestImportValidation(t *testing.T) {
	svc := NewService(newMockRepository(), nil, nil)

	_, err := svc.Import(context.Background(), ImportInput{TenantID: 1})
	require.Error(t, err)

	_, err = svc.Import(context.Background(), ImportInput{
		TenantID: 1, Lines: []ImportLine{{StatementDate: time.Now(), Amount: 0}},
	})
	require.ErrorIs(t, err, ErrZeroAmount)

	_, err = svc.Import(context.Background(), ImportInput{
		TenantID: 1, Lines: []ImportLine{{Amount: 10}},
	})
	require.ErrorIs(t, err, ErrDateRequired)
}

func TestMarkMatched(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, nil)

	lines, err := svc.Import(context.Background(), ImportInput{
		TenantID: 1, ActorID: 7, Lines: []ImportLine{importedLine(500)},
	})
	require.NoError(t, err)

	chequeID := int64(9)
	line, err := svc.MarkMatched(context.Background(), 1, lines[0].ID, 7, &chequeID)
	require.NoError(t, err)
	assert.Equal(t, StatusMatched, line.Status)
	require.NotNil(t, line.MatchedChequeID)
	assert.Equal(t, int64(9), *line.MatchedChequeID)

	// Matching is terminal.
	_, err = svc.MarkIgnored(context.Background(), 1, lines[0].ID, 7)
	require.ErrorIs(t, err, ErrNotPending)
}

func TestMarkIgnored(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, nil)

	lines, err := svc.Import(context.Background(), ImportInput{
		TenantID: 1, ActorID: 7, Lines: []ImportLine{importedLine(-15)},
	})
	require.NoError(t, err)

	line, err := svc.MarkIgnored(context.Background(), 1, lines[0].ID, 7)
	require.NoError(t, err)
	assert.Equal(t, StatusIgnored, line.Status)
	assert.Nil(t, line.MatchedChequeID)
}

func TestListFiltersPendingWindow(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, nil)

	_, err := svc.Import(context.Background(), ImportInput{
		TenantID: 1, ActorID: 7,
		Lines: []ImportLine{
			importedLine(500),
			{StatementDate: time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC), Amount: 80},
		},
	})
	require.NoError(t, err)

	from := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC)
	lines, total, err := svc.List(context.Background(), ListInput{
		TenantID: 1, Status: StatusPending, From: &from, To: &to,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, lines, 1)
	assert.Equal(t, 500.0, lines[0].Amount)
}
