package ledger

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/retail-ledger/internal/errs"
)

func TestAddUnits(t *testing.T) {
	sum, err := AddUnits(40, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(42), sum)

	_, err = AddUnits(math.MaxInt64, 1)
	assert.ErrorIs(t, err, errs.ErrAmountOverflow)
	_, err = AddUnits(math.MinInt64, -1)
	assert.ErrorIs(t, err, errs.ErrAmountOverflow)
}

func TestTotals(t *testing.T) {
	acc := uuid.New()
	lines := []JournalLine{
		{AccountID: acc, Side: SideDebit, Amount: Amount("USD", 700)},
		{AccountID: acc, Side: SideDebit, Amount: Amount("USD", 300)},
		{AccountID: acc, Side: SideCredit, Amount: Amount("USD", 1000)},
	}
	debit, credit, err := Totals(lines)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), debit)
	assert.Equal(t, int64(1000), credit)

	lines = append(lines, JournalLine{AccountID: acc, Side: SideDebit, Amount: Amount("USD", math.MaxInt64)})
	_, _, err = Totals(lines)
	assert.ErrorIs(t, err, errs.ErrAmountOverflow)
}

func TestBalancePlus(t *testing.T) {
	b := AccountBalance{Debit: math.MaxInt64}
	_, err := b.Plus(SideDebit, 1)
	assert.ErrorIs(t, err, errs.ErrAmountOverflow)

	b, err = b.Plus(SideCredit, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), b.Credit)
}

func TestFingerprint(t *testing.T) {
	acc := uuid.New()
	base := JournalEntry{
		Date:        time.Date(2024, 3, 1, 15, 4, 0, 0, time.UTC),
		Description: "Cash sale",
		Currency:    "USD",
		Lines: []JournalLine{
			{ID: uuid.New(), AccountID: acc, Side: SideDebit, Amount: Amount("USD", 1250)},
			{ID: uuid.New(), AccountID: acc, Side: SideCredit, Amount: Amount("USD", 1250)},
		},
	}
	retry := base
	retry.ID = uuid.New()
	retry.Date = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	retry.Lines = []JournalLine{
		{ID: uuid.New(), AccountID: acc, Side: SideDebit, Amount: Amount("USD", 1250)},
		{ID: uuid.New(), AccountID: acc, Side: SideCredit, Amount: Amount("USD", 1250)},
	}
	assert.Equal(t, Fingerprint(base), Fingerprint(retry), "assigned ids and time of day are ignored")

	changed := retry
	changed.Lines = []JournalLine{
		{AccountID: acc, Side: SideDebit, Amount: Amount("USD", 99900)},
		{AccountID: acc, Side: SideCredit, Amount: Amount("USD", 99900)},
	}
	assert.NotEqual(t, Fingerprint(base), Fingerprint(changed))

	renamed := retry
	renamed.Description = "Cash sale B"
	assert.NotEqual(t, Fingerprint(base), Fingerprint(renamed))
}
