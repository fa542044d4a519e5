package accounts

import (
	"time"
)

// AccountType enumerates chart-of-accounts categories. The set is closed;
// values are validated once at the store boundary.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	default:
		return false
	}
}

// DebitPositive reports whether a debit increases the balance of accounts
// of this type. Assets and expenses grow on the debit side; liabilities,
// equity, and revenue grow on the credit side.
func (t AccountType) DebitPositive() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// Account models a chart of accounts node. Balance is never stored; it is
// derived from ledger entries on demand.
type Account struct {
	ID              int64       `json:"id"`
	TenantID        int64       `json:"-"`
	Name            string      `json:"name"`
	Type            AccountType `json:"type"`
	SubType         string      `json:"sub_type"`
	IsSystemAccount bool        `json:"is_system_account"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}
