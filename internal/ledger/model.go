// Package ledger holds the append-only ledger store and the journal
// posting service, the sole writer of ledger entries.
package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Entry is one immutable balanced accounting record pairing a debit account
// and a credit account. Entries are never updated or deleted; corrections
// are posted as new reversing entries.
type Entry struct {
	ID               int64     `json:"id"`
	TenantID         int64     `json:"-"`
	TransactionID    uuid.UUID `json:"transaction_id"`
	Date             time.Time `json:"date"`
	Description      string    `json:"description"`
	DebitAccountID   int64     `json:"debit_account_id"`
	CreditAccountID  int64     `json:"credit_account_id"`
	Amount           float64   `json:"amount"`
	OriginalAmount   float64   `json:"original_amount"`
	OriginalCurrency string    `json:"original_currency"`
	SourceModule     string    `json:"source_module,omitempty"`
	SourceID         string    `json:"source_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Transaction groups the co-dependent rows written by one posting call.
type Transaction struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Entries       []Entry   `json:"entries"`
}

// Total returns the debit-side total of the transaction in base currency.
func (t Transaction) Total() float64 {
	var total float64
	for _, entry := range t.Entries {
		total += entry.Amount
	}
	return total
}
