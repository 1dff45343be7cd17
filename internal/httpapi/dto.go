package httpapi

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/shopspring/decimal"

	"github.com/tinoosan/retail-ledger/internal/chart"
	"github.com/tinoosan/retail-ledger/internal/errs"
	"github.com/tinoosan/retail-ledger/internal/ledger"
	"github.com/tinoosan/retail-ledger/internal/service/report"
)

const dateLayout = "2006-01-02"

// --- Amounts ---

func currencyScale(curr string) int32 {
	c, err := money.ParseCurr(curr)
	if err != nil {
		return 2
	}
	return int32(c.Scale())
}

// formatUnits renders minor units as a JSON number with the currency's scale.
func formatUnits(units int64, curr string) json.Number {
	scale := currencyScale(curr)
	return json.Number(decimal.New(units, -scale).StringFixed(scale))
}

func formatAmount(a money.Amount) json.Number {
	units, _ := a.MinorUnits()
	return formatUnits(units, a.Curr().Code())
}

var maxUnits = decimal.NewFromInt(math.MaxInt64)

// toUnits converts a wire decimal into minor units, refusing fractions finer
// than the currency allows and values outside [1, MaxInt64] minor units.
func toUnits(d decimal.Decimal, curr string) (int64, error) {
	shifted := d.Shift(currencyScale(curr))
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("%s has more decimal places than %s allows: %w", d.String(), curr, errs.ErrInvalidAmount)
	}
	if shifted.LessThan(decimal.NewFromInt(1)) {
		return 0, fmt.Errorf("%s: %w", d.String(), errs.ErrInvalidAmount)
	}
	if shifted.GreaterThan(maxUnits) {
		return 0, fmt.Errorf("%s: %w", d.String(), errs.ErrAmountOverflow)
	}
	return shifted.IntPart(), nil
}

// --- Dates ---

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", raw)
	}
	return ledger.DateOnly(t), nil
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

// --- Accounts ---

type postAccountRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	TypeID      int    `json:"type_id"`
	SubTypeID   int    `json:"sub_type_id"`
	Description string `json:"description,omitempty"`
	IsEnabled   *bool  `json:"is_enabled,omitempty"`
}

type updateAccountRequest struct {
	Code        *string `json:"code,omitempty"`
	Name        *string `json:"name,omitempty"`
	TypeID      *int    `json:"type_id,omitempty"`
	SubTypeID   *int    `json:"sub_type_id,omitempty"`
	Description *string `json:"description,omitempty"`
	IsEnabled   *bool   `json:"is_enabled,omitempty"`
}

type accountResponse struct {
	ID          uuid.UUID          `json:"id"`
	Code        string             `json:"code"`
	Name        string             `json:"name"`
	Type        ledger.AccountType `json:"type"`
	TypeID      int                `json:"type_id"`
	SubTypeID   int                `json:"sub_type_id"`
	SubType     string             `json:"sub_type,omitempty"`
	NormalSide  ledger.Side        `json:"normal_side"`
	Description string             `json:"description"`
	IsEnabled   bool               `json:"is_enabled"`
	System      bool               `json:"system"`
	CreatedAt   time.Time          `json:"created_at"`
}

func toAccountResponse(a ledger.Account) accountResponse {
	resp := accountResponse{
		ID:          a.ID,
		Code:        a.Code,
		Name:        a.Name,
		Type:        a.Type,
		TypeID:      chart.TypeID(a.Type),
		SubTypeID:   a.SubtypeID,
		NormalSide:  a.Classify().NormalSide,
		Description: a.Description,
		IsEnabled:   a.Enabled,
		System:      a.System,
		CreatedAt:   a.CreatedAt,
	}
	if st, ok := chart.Subtype(a.SubtypeID); ok {
		resp.SubType = st.Name
	}
	return resp
}

type subtypeResponse struct {
	ID   int                `json:"id"`
	Type ledger.AccountType `json:"type"`
	Name string             `json:"name"`
}

type balanceResponse struct {
	AccountID   uuid.UUID   `json:"account_id"`
	Code        string      `json:"code"`
	AsOf        *string     `json:"as_of,omitempty"`
	Currency    string      `json:"currency"`
	NormalSide  ledger.Side `json:"normal_side"`
	TotalDebit  json.Number `json:"total_debit"`
	TotalCredit json.Number `json:"total_credit"`
	Balance     json.Number `json:"balance"`
}

type initializeResponse struct {
	Message string            `json:"message"`
	Created []accountResponse `json:"created"`
	Skipped int               `json:"skipped"`
}

// --- Journal entries ---

type postEntryRequest struct {
	Date        string          `json:"date"`
	Reference   string          `json:"reference,omitempty"`
	Description string          `json:"description"`
	Currency    string          `json:"currency,omitempty"`
	Items       []postEntryItem `json:"items"`
}

// postEntryItem carries exactly one of debit or credit.
type postEntryItem struct {
	AccountID   uuid.UUID           `json:"account_id"`
	Description string              `json:"description,omitempty"`
	Debit       decimal.NullDecimal `json:"debit"`
	Credit      decimal.NullDecimal `json:"credit"`
}

type reverseEntryRequest struct {
	Date        string `json:"date,omitempty"`
	Description string `json:"description,omitempty"`
}

type entryResponse struct {
	ID          uuid.UUID      `json:"id"`
	Number      int64          `json:"journal_number"`
	Date        string         `json:"date"`
	Description string         `json:"description"`
	Reference   string         `json:"reference,omitempty"`
	Currency    string         `json:"currency"`
	TotalDebit  json.Number    `json:"total_debit"`
	TotalCredit json.Number    `json:"total_credit"`
	CreatedAt   time.Time      `json:"created_at"`
	ReversalOf  *uuid.UUID     `json:"reversal_of,omitempty"`
	ReversedBy  *uuid.UUID     `json:"reversed_by,omitempty"`
	Items       []itemResponse `json:"items"`
}

type itemResponse struct {
	ID          uuid.UUID   `json:"id"`
	AccountID   uuid.UUID   `json:"account_id"`
	Description string      `json:"description,omitempty"`
	Debit       json.Number `json:"debit"`
	Credit      json.Number `json:"credit"`
}

// toEntryDomain converts the wire shape into a candidate entry. Lines that set
// both or neither side are rejected here; the tagged Side makes them
// unrepresentable past this point.
func toEntryDomain(req postEntryRequest, ledgerCurrency string) (ledger.JournalEntry, error) {
	curr := strings.ToUpper(strings.TrimSpace(req.Currency))
	if curr == "" {
		curr = ledgerCurrency
	}
	if _, err := money.ParseCurr(curr); err != nil {
		return ledger.JournalEntry{}, fmt.Errorf("unknown currency %q: %w", curr, errs.ErrMixedCurrency)
	}
	e := ledger.JournalEntry{
		Description: req.Description,
		Reference:   req.Reference,
		Currency:    curr,
		Lines:       make([]ledger.JournalLine, 0, len(req.Items)),
	}
	if strings.TrimSpace(req.Date) != "" {
		d, err := parseDate(req.Date)
		if err != nil {
			return ledger.JournalEntry{}, fmt.Errorf("%s: %w", err.Error(), errs.ErrMalformedEntry)
		}
		e.Date = d
	}
	for i, it := range req.Items {
		hasDebit := it.Debit.Valid && !it.Debit.Decimal.IsZero()
		hasCredit := it.Credit.Valid && !it.Credit.Decimal.IsZero()
		if hasDebit == hasCredit {
			return ledger.JournalEntry{}, &errs.LineError{Index: i, Err: fmt.Errorf("exactly one of debit or credit must be set: %w", errs.ErrMalformedEntry)}
		}
		side, amt := ledger.SideDebit, it.Debit.Decimal
		if hasCredit {
			side, amt = ledger.SideCredit, it.Credit.Decimal
		}
		if amt.IsNegative() {
			return ledger.JournalEntry{}, &errs.LineError{Index: i, Err: errs.ErrInvalidAmount}
		}
		units, err := toUnits(amt, curr)
		if err != nil {
			return ledger.JournalEntry{}, &errs.LineError{Index: i, Err: err}
		}
		e.Lines = append(e.Lines, ledger.JournalLine{
			AccountID:   it.AccountID,
			Description: it.Description,
			Side:        side,
			Amount:      ledger.Amount(curr, units),
		})
	}
	return e, nil
}

func toEntryResponse(e ledger.JournalEntry) entryResponse {
	zero := formatUnits(0, e.Currency)
	items := make([]itemResponse, 0, len(e.Lines))
	for _, ln := range e.Lines {
		it := itemResponse{ID: ln.ID, AccountID: ln.AccountID, Description: ln.Description, Debit: zero, Credit: zero}
		if ln.Side == ledger.SideDebit {
			it.Debit = formatAmount(ln.Amount)
		} else {
			it.Credit = formatAmount(ln.Amount)
		}
		items = append(items, it)
	}
	return entryResponse{
		ID:          e.ID,
		Number:      e.Number,
		Date:        e.Date.Format(dateLayout),
		Description: e.Description,
		Reference:   e.Reference,
		Currency:    e.Currency,
		TotalDebit:  formatAmount(e.TotalDebit),
		TotalCredit: formatAmount(e.TotalCredit),
		CreatedAt:   e.CreatedAt,
		ReversalOf:  e.ReversalOf,
		ReversedBy:  e.ReversedBy,
		Items:       items,
	}
}

// --- Reports ---

type reportQuery struct {
	Start *time.Time
	End   *time.Time
}

type reportRow struct {
	AccountID   uuid.UUID          `json:"account_id"`
	Code        string             `json:"code"`
	Name        string             `json:"name"`
	Type        ledger.AccountType `json:"type"`
	IsEnabled   bool               `json:"is_enabled"`
	TotalDebit  json.Number        `json:"total_debit"`
	TotalCredit json.Number        `json:"total_credit"`
	Balance     json.Number        `json:"balance"`
}

func toReportRows(rows []report.Row, curr string) []reportRow {
	out := make([]reportRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, reportRow{
			AccountID:   r.Account.ID,
			Code:        r.Account.Code,
			Name:        r.Account.Name,
			Type:        r.Account.Type,
			IsEnabled:   r.Account.Enabled,
			TotalDebit:  formatUnits(r.Debit, curr),
			TotalCredit: formatUnits(r.Credit, curr),
			Balance:     formatUnits(r.Balance, curr),
		})
	}
	return out
}

type trialBalanceTotals struct {
	TotalDebit  json.Number `json:"total_debit"`
	TotalCredit json.Number `json:"total_credit"`
}

type trialBalanceResponse struct {
	AsOf         *string            `json:"as_of,omitempty"`
	Currency     string             `json:"currency"`
	TrialBalance []reportRow        `json:"trial_balance"`
	Totals       trialBalanceTotals `json:"totals"`
	Balanced     bool               `json:"balanced"`
}

type incomeStatementResponse struct {
	StartDate     *string     `json:"start_date,omitempty"`
	EndDate       *string     `json:"end_date,omitempty"`
	Currency      string      `json:"currency"`
	TotalIncome   json.Number `json:"total_income"`
	TotalCOGS     json.Number `json:"total_cogs"`
	GrossProfit   json.Number `json:"gross_profit"`
	TotalExpenses json.Number `json:"total_expenses"`
	NetIncome     json.Number `json:"net_income"`
	Income        []reportRow `json:"income"`
	COGS          []reportRow `json:"cogs"`
	Expenses      []reportRow `json:"expenses"`
}

type balanceSheetResponse struct {
	AsOf                      *string     `json:"as_of,omitempty"`
	Currency                  string      `json:"currency"`
	TotalAssets               json.Number `json:"total_assets"`
	TotalLiabilities          json.Number `json:"total_liabilities"`
	TotalEquity               json.Number `json:"total_equity"`
	NetIncome                 json.Number `json:"net_income"`
	TotalLiabilitiesAndEquity json.Number `json:"total_liabilities_and_equity"`
	Difference                json.Number `json:"difference"`
	Balanced                  bool        `json:"balanced"`
	Assets                    []reportRow `json:"assets"`
	Liabilities               []reportRow `json:"liabilities"`
	Equity                    []reportRow `json:"equity"`
}
