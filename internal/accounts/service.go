package accounts

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

var (
	// ErrNotFound indicates a missing account.
	ErrNotFound = fmt.Errorf("%w: account", shared.ErrNotFound)
	// ErrSystemAccount indicates an attempted edit of a system account.
	ErrSystemAccount = fmt.Errorf("%w: system accounts cannot be modified", shared.ErrForbidden)
	// ErrSystemAccountDelete indicates an attempted delete of a system account.
	ErrSystemAccountDelete = fmt.Errorf("%w: system accounts cannot be deleted", shared.ErrConflict)
	// ErrReferenced indicates the account appears in at least one ledger entry.
	ErrReferenced = fmt.Errorf("%w: account is referenced by ledger entries", shared.ErrConflict)
	// ErrDuplicateName indicates another account with the same name exists in the tenant.
	ErrDuplicateName = fmt.Errorf("%w: account name already in use", shared.ErrConflict)
	// ErrBadType indicates an unknown account type.
	ErrBadType = fmt.Errorf("%w: unknown account type", shared.ErrValidation)
	// ErrNameRequired indicates a blank account name.
	ErrNameRequired = fmt.Errorf("%w: account name required", shared.ErrValidation)
)

// CreateInput describes a new non-system account.
type CreateInput struct {
	TenantID int64
	Name     string
	Type     AccountType
	SubType  string
}

// UpdateInput patches a non-system account. Nil fields are left unchanged.
type UpdateInput struct {
	TenantID int64
	ID       int64
	Name     *string
	SubType  *string
}

// Service implements the account directory operations.
type Service struct {
	repo Repository
	// balances deduplicates concurrent identical balance computations;
	// the result is derived and tolerates bounded staleness.
	balances singleflight.Group
}

// NewService constructs a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns the tenant's chart of accounts.
func (s *Service) List(ctx context.Context, in ListInput) ([]Account, error) {
	return s.repo.List(ctx, in)
}

// Get returns a single account.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (Account, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// Create inserts a new account. Accounts created through the API are never
// system accounts; system rows are seeded at provisioning time.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Account{}, ErrNameRequired
	}
	if !in.Type.Valid() {
		return Account{}, ErrBadType
	}
	return s.repo.Insert(ctx, Account{
		TenantID:        in.TenantID,
		Name:            name,
		Type:            in.Type,
		SubType:         in.SubType,
		IsSystemAccount: false,
	})
}

// Update patches name and sub-type. System accounts are immutable.
func (s *Service) Update(ctx context.Context, in UpdateInput) (Account, error) {
	var updated Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetForUpdate(ctx, in.TenantID, in.ID)
		if err != nil {
			return err
		}
		if account.IsSystemAccount {
			return ErrSystemAccount
		}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return ErrNameRequired
			}
			account.Name = name
		}
		if in.SubType != nil {
			account.SubType = *in.SubType
		}
		if err := tx.Update(ctx, account); err != nil {
			return err
		}
		updated = account
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return updated, nil
}

// Delete removes an account. The reference check runs inside the deleting
// transaction, so a ledger post racing the delete serializes against it.
func (s *Service) Delete(ctx context.Context, tenantID, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if account.IsSystemAccount {
			return ErrSystemAccountDelete
		}
		refs, err := tx.CountLedgerReferences(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return ErrReferenced
		}
		return tx.Delete(ctx, tenantID, id)
	})
}

// Balance computes the sign-adjusted balance of an account on demand.
// Assets and expenses report debit-positive, liabilities, equity, and
// revenue credit-positive.
func (s *Service) Balance(ctx context.Context, in BalanceInput) (float64, error) {
	account, err := s.repo.Get(ctx, in.TenantID, in.AccountID)
	if err != nil {
		return 0, err
	}
	key := balanceKey(in)
	v, err, _ := s.balances.Do(key, func() (any, error) {
		return s.repo.DebitNet(ctx, in)
	})
	if err != nil {
		return 0, err
	}
	net := v.(float64)
	if !account.Type.DebitPositive() {
		net = -net
	}
	return math.Round(net*100) / 100, nil
}

func balanceKey(in BalanceInput) string {
	asOf := ""
	if in.AsOf != nil {
		asOf = in.AsOf.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("%d:%d:%s", in.TenantID, in.AccountID, asOf)
}
