package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

var (
	// ErrUnbalanced indicates debit and credit totals differ.
	ErrUnbalanced = fmt.Errorf("%w: journal debits and credits do not balance", shared.ErrValidation)
	// ErrTooFewLines indicates fewer than two posting lines.
	ErrTooFewLines = fmt.Errorf("%w: journal requires at least two lines", shared.ErrValidation)
	// ErrMixedLine indicates a line carrying both a debit and a credit.
	ErrMixedLine = fmt.Errorf("%w: line cannot carry both debit and credit", shared.ErrValidation)
	// ErrZeroLine indicates a line with no amount on either side.
	ErrZeroLine = fmt.Errorf("%w: line requires a positive debit or credit", shared.ErrValidation)
	// ErrSelfTransfer indicates a pairing whose debit and credit account coincide.
	ErrSelfTransfer = fmt.Errorf("%w: debit and credit account must differ", shared.ErrValidation)
	// ErrDateRequired indicates a posting without a date.
	ErrDateRequired = fmt.Errorf("%w: posting date required", shared.ErrValidation)
	// ErrBadRate indicates a non-positive exchange rate.
	ErrBadRate = fmt.Errorf("%w: exchange rate must be positive", shared.ErrValidation)
	// ErrAccountMissing indicates a posting line naming an unknown account.
	ErrAccountMissing = fmt.Errorf("%w: posting account", shared.ErrNotFound)
	// ErrPeriodClosed indicates the posting date falls inside a closed period.
	ErrPeriodClosed = fmt.Errorf("%w: period is closed for posting", shared.ErrConflict)
	// ErrTransactionNotFound indicates an unknown transaction id.
	ErrTransactionNotFound = fmt.Errorf("%w: ledger transaction", shared.ErrNotFound)
)

// PostingLine is one requested movement: a debit XOR a credit against an
// account, stated in the posting currency.
type PostingLine struct {
	AccountID int64
	Debit     float64
	Credit    float64
}

// PostingInput groups the fields required to post one journal.
type PostingInput struct {
	TenantID           int64
	Date               time.Time
	Description        string
	Currency           string
	ExchangeRateToBase float64
	SourceModule       string
	SourceID           string
	PostedBy           int64
	Lines              []PostingLine
}

// Validate rejects unbalanced or malformed postings before any write.
// Totals are compared at cent precision.
func (in PostingInput) Validate() error {
	if in.Date.IsZero() {
		return ErrDateRequired
	}
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	if in.ExchangeRateToBase <= 0 {
		return ErrBadRate
	}
	var debit, credit float64
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("%w: line %d missing account", shared.ErrValidation, idx)
		}
		if line.Debit < 0 || line.Credit < 0 {
			return fmt.Errorf("%w: line %d negative amount", shared.ErrValidation, idx)
		}
		if line.Debit > 0 && line.Credit > 0 {
			return ErrMixedLine
		}
		if line.Debit == 0 && line.Credit == 0 {
			return ErrZeroLine
		}
		debit += line.Debit
		credit += line.Credit
	}
	if fmt.Sprintf("%.2f", debit) != fmt.Sprintf("%.2f", credit) {
		return ErrUnbalanced
	}
	return nil
}

// explode converts the multi-line posting into balanced debit/credit pairs
// sharing one transaction id. Debit lines are greedily matched against
// credit lines; each match emits one paired row of the smaller remaining
// amount. A pair whose two sides name the same account is rejected.
func (in PostingInput) explode() ([]pairedRow, error) {
	type open struct {
		accountID int64
		remaining float64
	}
	var debits, credits []open
	for _, line := range in.Lines {
		if line.Debit > 0 {
			debits = append(debits, open{accountID: line.AccountID, remaining: line.Debit})
		} else {
			credits = append(credits, open{accountID: line.AccountID, remaining: line.Credit})
		}
	}

	const epsilon = 0.005
	var rows []pairedRow
	di, ci := 0, 0
	for di < len(debits) && ci < len(credits) {
		d, c := &debits[di], &credits[ci]
		amount := d.remaining
		if c.remaining < amount {
			amount = c.remaining
		}
		if d.accountID == c.accountID {
			return nil, ErrSelfTransfer
		}
		rows = append(rows, pairedRow{
			debitAccountID:  d.accountID,
			creditAccountID: c.accountID,
			originalAmount:  roundCents(amount),
		})
		d.remaining -= amount
		c.remaining -= amount
		if d.remaining < epsilon {
			di++
		}
		if c.remaining < epsilon {
			ci++
		}
	}
	return rows, nil
}

type pairedRow struct {
	debitAccountID  int64
	creditAccountID int64
	originalAmount  float64
}

// baseAmount converts an original-currency amount into base currency with
// exact decimal arithmetic, so FX rounding cannot skew a stored row.
func (in PostingInput) baseAmount(original float64) float64 {
	amount := decimal.NewFromFloat(original).Mul(decimal.NewFromFloat(in.ExchangeRateToBase))
	result, _ := amount.Round(2).Float64()
	return result
}

func roundCents(v float64) float64 {
	result, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return result
}

// ListInput filters the paginated ledger listing.
type ListInput struct {
	TenantID  int64
	AccountID int64
	From      *time.Time
	To        *time.Time
	Page      int
	PerPage   int
}
