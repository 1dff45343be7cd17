package report_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/retail-ledger/internal/errs"
	"github.com/tinoosan/retail-ledger/internal/ledger"
	"github.com/tinoosan/retail-ledger/internal/service/journal"
	"github.com/tinoosan/retail-ledger/internal/service/report"
	"github.com/tinoosan/retail-ledger/internal/storage/memory"
)

type books struct {
	store    *memory.Store
	journal  journal.Service
	reports  report.Service
	accounts map[string]ledger.Account
	flagged  []string
}

func newBooks(t *testing.T) *books {
	t.Helper()
	b := &books{store: memory.New(), accounts: map[string]ledger.Account{}}
	for _, a := range []ledger.Account{
		{Code: "1000", Name: "Cash", Type: ledger.AccountTypeAsset, SubtypeID: 101},
		{Code: "2000", Name: "Accounts Payable", Type: ledger.AccountTypeLiability, SubtypeID: 201},
		{Code: "3000", Name: "Owner's Equity", Type: ledger.AccountTypeEquity, SubtypeID: 301},
		{Code: "4000", Name: "Revenue", Type: ledger.AccountTypeIncome, SubtypeID: 401},
		{Code: "5000", Name: "COGS", Type: ledger.AccountTypeCOGS, SubtypeID: 501},
		{Code: "6100", Name: "Rent", Type: ledger.AccountTypeExpense, SubtypeID: 601},
	} {
		a.ID = uuid.New()
		a.Enabled = true
		b.store.SeedAccount(a)
		b.accounts[a.Code] = a
	}
	b.journal = journal.New(b.store, b.store, "USD", nil)
	b.reports = report.New(b.store, "USD", nil, func(r string) { b.flagged = append(b.flagged, r) })
	return b
}

func (b *books) post(t *testing.T, date time.Time, debit, credit string, units int64) {
	t.Helper()
	_, err := b.journal.Post(context.Background(), ledger.JournalEntry{
		Date:        date,
		Description: debit + "/" + credit,
		Lines: []ledger.JournalLine{
			{AccountID: b.accounts[debit].ID, Side: ledger.SideDebit, Amount: ledger.Amount("USD", units)},
			{AccountID: b.accounts[credit].ID, Side: ledger.SideCredit, Amount: ledger.Amount("USD", units)},
		},
	}, "")
	require.NoError(t, err)
}

var (
	jan = time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	feb = time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)
)

func TestCashSaleScenario(t *testing.T) {
	b := newBooks(t)
	ctx := context.Background()
	b.post(t, jan, "1000", "4000", 10000)

	start, end := jan.AddDate(0, 0, -1), jan.AddDate(0, 0, 1)
	is, err := b.reports.IncomeStatement(ctx, &start, &end)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), is.TotalIncome)
	assert.Zero(t, is.TotalCOGS)
	assert.Equal(t, int64(10000), is.GrossProfit)
	assert.Zero(t, is.TotalExpenses)
	assert.Equal(t, int64(10000), is.NetIncome)

	asOf := jan
	tb, err := b.reports.TrialBalance(ctx, &asOf)
	require.NoError(t, err)
	require.Len(t, tb.Rows, 2)
	assert.Equal(t, "1000", tb.Rows[0].Account.Code)
	assert.Equal(t, int64(10000), tb.Rows[0].Debit)
	assert.Equal(t, "4000", tb.Rows[1].Account.Code)
	assert.Equal(t, int64(10000), tb.Rows[1].Credit)
	assert.Equal(t, tb.TotalDebit, tb.TotalCredit)
	assert.True(t, tb.Balanced)
}

func TestRejectedEntryNeverReported(t *testing.T) {
	b := newBooks(t)
	ctx := context.Background()
	_, err := b.journal.Post(ctx, ledger.JournalEntry{
		Date:        jan,
		Description: "short sale",
		Lines: []ledger.JournalLine{
			{AccountID: b.accounts["1000"].ID, Side: ledger.SideDebit, Amount: ledger.Amount("USD", 10000)},
			{AccountID: b.accounts["4000"].ID, Side: ledger.SideCredit, Amount: ledger.Amount("USD", 9000)},
		},
	}, "")
	var ue *errs.UnbalancedError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, int64(10000), ue.TotalDebit)
	assert.Equal(t, int64(9000), ue.TotalCredit)

	tb, err := b.reports.TrialBalance(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, tb.Rows)
	assert.True(t, tb.Balanced)
}

func TestStatementIdentities(t *testing.T) {
	b := newBooks(t)
	ctx := context.Background()
	b.post(t, jan, "1000", "3000", 500000) // owner contribution
	b.post(t, jan, "5000", "2000", 120000) // stock bought on credit, sold the same day
	b.post(t, jan, "1000", "4000", 300000) // sales
	b.post(t, feb, "6100", "1000", 80000)  // rent
	b.post(t, feb, "2000", "1000", 50000)  // pay supplier

	tb, err := b.reports.TrialBalance(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, tb.TotalDebit, tb.TotalCredit)

	is, err := b.reports.IncomeStatement(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, is.NetIncome, (is.TotalIncome-is.TotalCOGS)-is.TotalExpenses)
	assert.Equal(t, int64(300000-120000-80000), is.NetIncome)

	bs, err := b.reports.BalanceSheet(ctx, nil)
	require.NoError(t, err)
	assert.True(t, bs.Balanced)
	assert.Zero(t, bs.Difference)
	assert.Equal(t, int64(500000+300000-80000-50000), bs.TotalAssets)
	assert.Equal(t, int64(70000), bs.TotalLiabilities)
	assert.Equal(t, int64(500000), bs.EquityPostings)
	assert.Equal(t, is.NetIncome, bs.NetIncome)
	assert.Equal(t, bs.TotalAssets, bs.TotalLiabilities+bs.TotalEquity)
	assert.Empty(t, b.flagged)

	asOf := jan
	janSheet, err := b.reports.BalanceSheet(ctx, &asOf)
	require.NoError(t, err)
	assert.True(t, janSheet.Balanced)
	assert.Equal(t, int64(180000), janSheet.NetIncome)
}

func TestReportsAreRepeatable(t *testing.T) {
	b := newBooks(t)
	ctx := context.Background()
	b.post(t, jan, "1000", "4000", 2500)
	b.post(t, feb, "6100", "1000", 1000)

	tb1, err := b.reports.TrialBalance(ctx, nil)
	require.NoError(t, err)
	tb2, err := b.reports.TrialBalance(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, tb1, tb2)

	is1, err := b.reports.IncomeStatement(ctx, &jan, &feb)
	require.NoError(t, err)
	is2, err := b.reports.IncomeStatement(ctx, &jan, &feb)
	require.NoError(t, err)
	assert.Equal(t, is1, is2)

	bs1, err := b.reports.BalanceSheet(ctx, &feb)
	require.NoError(t, err)
	bs2, err := b.reports.BalanceSheet(ctx, &feb)
	require.NoError(t, err)
	assert.Equal(t, bs1, bs2)
}

func TestDisabledAccountsStayInTrialBalance(t *testing.T) {
	b := newBooks(t)
	ctx := context.Background()
	b.post(t, jan, "1000", "4000", 2500)

	cash := b.accounts["1000"]
	cash.Enabled = false
	b.store.SeedAccount(cash)

	tb, err := b.reports.TrialBalance(ctx, nil)
	require.NoError(t, err)
	require.Len(t, tb.Rows, 2)
	assert.False(t, tb.Rows[0].Account.Enabled)
	assert.True(t, tb.Balanced)
}

func TestIncomeStatementWindow(t *testing.T) {
	b := newBooks(t)
	ctx := context.Background()
	b.post(t, jan, "1000", "4000", 2500)
	b.post(t, feb, "1000", "4000", 4000)

	is, err := b.reports.IncomeStatement(ctx, &feb, &feb)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), is.TotalIncome)

	_, err = b.reports.IncomeStatement(ctx, &feb, &jan)
	assert.ErrorIs(t, err, errs.ErrInvalid)
}
