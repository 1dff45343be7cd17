// Package report derives financial statements from posted ledger state.
// Every statement is computed from one snapshot, so repeated calls over an
// unchanged ledger return identical results.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/tinoosan/retail-ledger/internal/errs"
	"github.com/tinoosan/retail-ledger/internal/ledger"
)

// Repo reads a consistent view of accounts and their activity in [from, to].
type Repo interface {
	Snapshot(ctx context.Context, from, to *time.Time) (ledger.Snapshot, error)
}

// Row is one account line of a statement. Amounts are minor units.
type Row struct {
	Account ledger.Account
	Debit   int64
	Credit  int64
	// Balance is measured on the account's normal side.
	Balance int64
}

type TrialBalance struct {
	AsOf        *time.Time
	Currency    string
	Rows        []Row
	TotalDebit  int64
	TotalCredit int64
	Balanced    bool
}

type IncomeStatement struct {
	Start         *time.Time
	End           *time.Time
	Currency      string
	Income        []Row
	COGS          []Row
	Expenses      []Row
	TotalIncome   int64
	TotalCOGS     int64
	GrossProfit   int64
	TotalExpenses int64
	NetIncome     int64
}

type BalanceSheet struct {
	AsOf                      *time.Time
	Currency                  string
	Assets                    []Row
	Liabilities               []Row
	Equity                    []Row
	TotalAssets               int64
	TotalLiabilities          int64
	EquityPostings            int64
	NetIncome                 int64
	TotalEquity               int64
	TotalLiabilitiesAndEquity int64
	Difference                int64
	Balanced                  bool
}

// ImbalanceObserver is told about statements that fail their self-check.
type ImbalanceObserver func(report string)

type Service interface {
	TrialBalance(ctx context.Context, asOf *time.Time) (TrialBalance, error)
	IncomeStatement(ctx context.Context, start, end *time.Time) (IncomeStatement, error)
	BalanceSheet(ctx context.Context, asOf *time.Time) (BalanceSheet, error)
}

type service struct {
	repo     Repo
	currency string
	log      *slog.Logger
	observe  ImbalanceObserver
}

// New returns a statement service. observe may be nil.
func New(repo Repo, currency string, logger *slog.Logger, observe ImbalanceObserver) Service {
	if logger == nil {
		logger = slog.Default()
	}
	if observe == nil {
		observe = func(string) {}
	}
	return &service{repo: repo, currency: currency, log: logger, observe: observe}
}

// TrialBalance lists every account with activity up to asOf. Disabled accounts
// are kept so the grand totals still agree.
func (s *service) TrialBalance(ctx context.Context, asOf *time.Time) (TrialBalance, error) {
	snap, err := s.repo.Snapshot(ctx, nil, asOf)
	if err != nil {
		return TrialBalance{}, err
	}
	tb := TrialBalance{AsOf: asOf, Currency: s.currency}
	for _, acc := range sortedByCode(snap.Accounts) {
		bal, ok := snap.Activity[acc.ID]
		if !ok || !bal.HasActivity() {
			continue
		}
		tb.Rows = append(tb.Rows, row(acc, bal))
		tb.TotalDebit += bal.Debit
		tb.TotalCredit += bal.Credit
	}
	tb.Balanced = tb.TotalDebit == tb.TotalCredit
	if !tb.Balanced {
		s.imbalance("trial_balance", "total_debit", tb.TotalDebit, "total_credit", tb.TotalCredit)
	}
	return tb, nil
}

// IncomeStatement summarizes income, cost of goods sold and expenses posted
// within [start, end]. Either bound may be open.
func (s *service) IncomeStatement(ctx context.Context, start, end *time.Time) (IncomeStatement, error) {
	if start != nil && end != nil && ledger.DateOnly(*start).After(ledger.DateOnly(*end)) {
		return IncomeStatement{}, fmt.Errorf("start_date after end_date: %w", errs.ErrInvalid)
	}
	snap, err := s.repo.Snapshot(ctx, start, end)
	if err != nil {
		return IncomeStatement{}, err
	}
	is := IncomeStatement{Start: start, End: end, Currency: s.currency}
	for _, acc := range sortedByCode(snap.Accounts) {
		bal, ok := snap.Activity[acc.ID]
		if !ok || !bal.HasActivity() {
			continue
		}
		r := row(acc, bal)
		switch acc.Type {
		case ledger.AccountTypeIncome:
			is.Income = append(is.Income, r)
			is.TotalIncome += r.Balance
		case ledger.AccountTypeCOGS:
			is.COGS = append(is.COGS, r)
			is.TotalCOGS += r.Balance
		case ledger.AccountTypeExpense:
			is.Expenses = append(is.Expenses, r)
			is.TotalExpenses += r.Balance
		}
	}
	is.GrossProfit = is.TotalIncome - is.TotalCOGS
	is.NetIncome = is.GrossProfit - is.TotalExpenses
	return is, nil
}

// BalanceSheet reports assets, liabilities and equity at asOf. Income not yet
// closed to equity is rolled into total equity as net income.
func (s *service) BalanceSheet(ctx context.Context, asOf *time.Time) (BalanceSheet, error) {
	snap, err := s.repo.Snapshot(ctx, nil, asOf)
	if err != nil {
		return BalanceSheet{}, err
	}
	bs := BalanceSheet{AsOf: asOf, Currency: s.currency}
	for _, acc := range sortedByCode(snap.Accounts) {
		bal, ok := snap.Activity[acc.ID]
		if !ok || !bal.HasActivity() {
			continue
		}
		r := row(acc, bal)
		switch acc.Type {
		case ledger.AccountTypeAsset:
			bs.Assets = append(bs.Assets, r)
			bs.TotalAssets += r.Balance
		case ledger.AccountTypeLiability:
			bs.Liabilities = append(bs.Liabilities, r)
			bs.TotalLiabilities += r.Balance
		case ledger.AccountTypeEquity:
			bs.Equity = append(bs.Equity, r)
			bs.EquityPostings += r.Balance
		case ledger.AccountTypeIncome:
			bs.NetIncome += r.Balance
		case ledger.AccountTypeCOGS, ledger.AccountTypeExpense:
			bs.NetIncome -= r.Balance
		}
	}
	bs.TotalEquity = bs.EquityPostings + bs.NetIncome
	bs.TotalLiabilitiesAndEquity = bs.TotalLiabilities + bs.TotalEquity
	bs.Difference = bs.TotalAssets - bs.TotalLiabilitiesAndEquity
	bs.Balanced = bs.Difference == 0
	if !bs.Balanced {
		s.imbalance("balance_sheet", "total_assets", bs.TotalAssets, "total_liabilities_and_equity", bs.TotalLiabilitiesAndEquity)
	}
	return bs, nil
}

func (s *service) imbalance(report string, kv ...any) {
	s.observe(report)
	s.log.Warn(errs.ErrImbalanceDetected.Error(), append([]any{"report", report}, kv...)...)
}

func row(acc ledger.Account, bal ledger.AccountBalance) Row {
	return Row{Account: acc, Debit: bal.Debit, Credit: bal.Credit, Balance: bal.Net(acc.Type)}
}

func sortedByCode(accounts []ledger.Account) []ledger.Account {
	out := append([]ledger.Account(nil), accounts...)
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
