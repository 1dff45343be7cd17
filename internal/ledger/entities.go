package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/retail-ledger/internal/errs"
)

// Side represents the accounting position of a journal line.
type Side string

const (
	// SideDebit records a value on the debit side of an account.
	SideDebit Side = "debit"
	// SideCredit records a value on the credit side of an account.
	SideCredit Side = "credit"
)

// Valid reports whether s is one of the two posting sides.
func (s Side) Valid() bool { return s == SideDebit || s == SideCredit }

// Opposite returns the other side; used when reversing entries.
func (s Side) Opposite() Side {
	if s == SideDebit {
		return SideCredit
	}
	return SideDebit
}

// AccountType enumerates the broad classification of an account in the chart of accounts.
type AccountType string

const (
	// AccountTypeAsset increases on the debit side and holds resources owned by the business.
	AccountTypeAsset AccountType = "asset"
	// AccountTypeLiability increases on the credit side and tracks obligations.
	AccountTypeLiability AccountType = "liability"
	// AccountTypeEquity captures the owner's residual interest in the business.
	AccountTypeEquity AccountType = "equity"
	// AccountTypeIncome represents sales and other inflows that increase equity.
	AccountTypeIncome AccountType = "income"
	// AccountTypeCOGS holds the direct cost of goods sold; debit-normal.
	AccountTypeCOGS AccountType = "cogs"
	// AccountTypeExpense represents operating outflows that decrease equity.
	AccountTypeExpense AccountType = "expense"
)

// AccountTypes lists every account type in reporting order.
var AccountTypes = []AccountType{
	AccountTypeAsset,
	AccountTypeLiability,
	AccountTypeEquity,
	AccountTypeIncome,
	AccountTypeCOGS,
	AccountTypeExpense,
}

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	for _, known := range AccountTypes {
		if t == known {
			return true
		}
	}
	return false
}

// NormalSide returns the side on which accounts of this type increase.
func (t AccountType) NormalSide() Side {
	switch t {
	case AccountTypeAsset, AccountTypeCOGS, AccountTypeExpense:
		return SideDebit
	default:
		return SideCredit
	}
}

// AccountSubtype is a finer category owned by exactly one account type.
type AccountSubtype struct {
	ID   int
	Type AccountType
	Name string
}

// Account represents one ledger account in the chart of accounts.
type Account struct {
	ID          uuid.UUID
	Code        string
	Name        string
	Type        AccountType
	SubtypeID   int
	Description string
	// Enabled is false for accounts that no longer accept postings.
	Enabled bool
	// System marks reserved accounts seeded by the chart (e.g. Retained Earnings).
	System    bool
	CreatedAt time.Time
}

// Classification pairs an account's type with its derived normal balance side.
type Classification struct {
	Type       AccountType
	NormalSide Side
}

// Classify returns the account's type and normal balance side.
func (a Account) Classify() Classification {
	return Classification{Type: a.Type, NormalSide: a.Type.NormalSide()}
}

// JournalEntry is one balanced accounting transaction.
type JournalEntry struct {
	ID uuid.UUID
	// Number is the sequential, human-readable journal number assigned at posting.
	Number      int64
	Date        time.Time
	Description string
	Reference   string
	Currency    string
	Lines       []JournalLine
	TotalDebit  money.Amount
	TotalCredit money.Amount
	CreatedAt   time.Time
	// ReversalOf links a reversing entry to the entry it offsets.
	ReversalOf *uuid.UUID
	// ReversedBy is set on an entry once an offsetting entry has been posted.
	ReversedBy *uuid.UUID
}

// IsReversed reports whether an offsetting entry exists for e.
func (e JournalEntry) IsReversed() bool { return e.ReversedBy != nil }

// JournalLine links a journal entry to an account with an amount on one side.
type JournalLine struct {
	ID          uuid.UUID
	EntryID     uuid.UUID
	AccountID   uuid.UUID
	Description string
	Side        Side
	Amount      money.Amount
}

// MinorUnits returns the line amount in the currency's minor units.
func (l JournalLine) MinorUnits() int64 {
	units, _ := l.Amount.MinorUnits()
	return units
}

// AddUnits returns a+b, or errs.ErrAmountOverflow when the sum does not fit
// in an int64.
func AddUnits(a, b int64) (int64, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, errs.ErrAmountOverflow
	}
	return sum, nil
}

// Totals sums debit and credit lines in minor units.
func Totals(lines []JournalLine) (debit, credit int64, err error) {
	for _, ln := range lines {
		switch ln.Side {
		case SideDebit:
			debit, err = AddUnits(debit, ln.MinorUnits())
		case SideCredit:
			credit, err = AddUnits(credit, ln.MinorUnits())
		}
		if err != nil {
			return 0, 0, err
		}
	}
	return debit, credit, nil
}

// AccountBalance is the running total of postings to one account, in minor units.
type AccountBalance struct {
	AccountID uuid.UUID
	Debit     int64
	Credit    int64
}

// Apply adds a single line to the running totals.
func (b *AccountBalance) Apply(side Side, units int64) {
	if side == SideDebit {
		b.Debit += units
		return
	}
	b.Credit += units
}

// Plus returns b with one more line applied, failing instead of wrapping.
func (b AccountBalance) Plus(side Side, units int64) (AccountBalance, error) {
	var err error
	if side == SideDebit {
		b.Debit, err = AddUnits(b.Debit, units)
	} else {
		b.Credit, err = AddUnits(b.Credit, units)
	}
	return b, err
}

// HasActivity reports whether anything was ever posted.
func (b AccountBalance) HasActivity() bool { return b.Debit != 0 || b.Credit != 0 }

// Net returns the balance measured on the normal side of t: positive when the
// account carries its natural balance.
func (b AccountBalance) Net(t AccountType) int64 {
	if t.NormalSide() == SideDebit {
		return b.Debit - b.Credit
	}
	return b.Credit - b.Debit
}

// Amount converts minor units into a money.Amount in curr. An unknown
// currency yields the zero Amount.
func Amount(curr string, units int64) money.Amount {
	amt, err := money.NewAmountFromMinorUnits(curr, units)
	if err != nil {
		return money.Amount{}
	}
	return amt
}
