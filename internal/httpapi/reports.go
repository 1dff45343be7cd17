package httpapi

import (
	"net/http"
)

func (s *Server) trialBalance(w http.ResponseWriter, r *http.Request) {
	q, ok := validated[reportQuery](w, r, ctxKeyReportQuery)
	if !ok {
		return
	}
	tb, err := s.reports.TrialBalance(r.Context(), q.End)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, trialBalanceResponse{
		AsOf:         formatDate(tb.AsOf),
		Currency:     tb.Currency,
		TrialBalance: toReportRows(tb.Rows, tb.Currency),
		Totals: trialBalanceTotals{
			TotalDebit:  formatUnits(tb.TotalDebit, tb.Currency),
			TotalCredit: formatUnits(tb.TotalCredit, tb.Currency),
		},
		Balanced: tb.Balanced,
	})
}

func (s *Server) incomeStatement(w http.ResponseWriter, r *http.Request) {
	q, ok := validated[reportQuery](w, r, ctxKeyReportQuery)
	if !ok {
		return
	}
	is, err := s.reports.IncomeStatement(r.Context(), q.Start, q.End)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	c := is.Currency
	toJSON(w, http.StatusOK, incomeStatementResponse{
		StartDate:     formatDate(is.Start),
		EndDate:       formatDate(is.End),
		Currency:      c,
		TotalIncome:   formatUnits(is.TotalIncome, c),
		TotalCOGS:     formatUnits(is.TotalCOGS, c),
		GrossProfit:   formatUnits(is.GrossProfit, c),
		TotalExpenses: formatUnits(is.TotalExpenses, c),
		NetIncome:     formatUnits(is.NetIncome, c),
		Income:        toReportRows(is.Income, c),
		COGS:          toReportRows(is.COGS, c),
		Expenses:      toReportRows(is.Expenses, c),
	})
}

// balanceSheet is returned even when it does not balance; the flag and the
// difference tell the caller something upstream is wrong.
func (s *Server) balanceSheet(w http.ResponseWriter, r *http.Request) {
	q, ok := validated[reportQuery](w, r, ctxKeyReportQuery)
	if !ok {
		return
	}
	bs, err := s.reports.BalanceSheet(r.Context(), q.End)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	c := bs.Currency
	toJSON(w, http.StatusOK, balanceSheetResponse{
		AsOf:                      formatDate(bs.AsOf),
		Currency:                  c,
		TotalAssets:               formatUnits(bs.TotalAssets, c),
		TotalLiabilities:          formatUnits(bs.TotalLiabilities, c),
		TotalEquity:               formatUnits(bs.TotalEquity, c),
		NetIncome:                 formatUnits(bs.NetIncome, c),
		TotalLiabilitiesAndEquity: formatUnits(bs.TotalLiabilitiesAndEquity, c),
		Difference:                formatUnits(bs.Difference, c),
		Balanced:                  bs.Balanced,
		Assets:                    toReportRows(bs.Assets, c),
		Liabilities:               toReportRows(bs.Liabilities, c),
		Equity:                    toReportRows(bs.Equity, c),
	})
}
