package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tinoosan/retail-ledger/internal/storage/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type errResp struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details"`
}

type acctResp struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Type      string `json:"type"`
	IsEnabled bool   `json:"is_enabled"`
}

type entryResp struct {
	ID          string      `json:"id"`
	Number      int64       `json:"journal_number"`
	Date        string      `json:"date"`
	Description string      `json:"description"`
	TotalDebit  json.Number `json:"total_debit"`
	TotalCredit json.Number `json:"total_credit"`
	ReversalOf  *string     `json:"reversal_of"`
	ReversedBy  *string     `json:"reversed_by"`
	Items       []struct {
		AccountID string      `json:"account_id"`
		Debit     json.Number `json:"debit"`
		Credit    json.Number `json:"credit"`
	} `json:"items"`
}

type fixture struct {
	h     http.Handler
	store *memory.Store
	ids   map[string]string
}

func setup(t *testing.T) fixture {
	t.Helper()
	return setupWith(t, Options{Currency: "USD"})
}

func setupWith(t *testing.T, opts Options) fixture {
	t.Helper()
	store := memory.New()
	h := New(store, opts, testLogger()).Handler()
	f := fixture{h: h, store: store, ids: map[string]string{}}

	rec := f.do(t, http.MethodPost, "/accounting/initialize", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("initialize: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var accs []acctResp
	f.decode(t, f.do(t, http.MethodGet, "/accounting/accounts", nil), &accs)
	for _, a := range accs {
		f.ids[a.Code] = a.ID
	}
	return f
}

func (f fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func (f fixture) decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func (f fixture) entry(date, desc string, items ...map[string]any) map[string]any {
	return map[string]any{"date": date, "description": desc, "currency": "USD", "items": items}
}

func (f fixture) debit(code, amount string) map[string]any {
	return map[string]any{"account_id": f.ids[code], "debit": amount}
}

func (f fixture) credit(code, amount string) map[string]any {
	return map[string]any{"account_id": f.ids[code], "credit": amount}
}

func (f fixture) post(t *testing.T, body map[string]any) entryResp {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/accounting/journal-entries", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("post entry: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var e entryResp
	f.decode(t, rec, &e)
	return e
}

func TestPostAccount(t *testing.T) {
	f := setup(t)
	body := map[string]any{"code": "1300", "name": "Prepaid Rent", "type_id": 1, "sub_type_id": 105}
	rec := f.do(t, http.MethodPost, "/accounting/accounts", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var a acctResp
	f.decode(t, rec, &a)
	if a.Type != "asset" || !a.IsEnabled {
		t.Fatalf("unexpected account: %+v", a)
	}

	rec = f.do(t, http.MethodPost, "/accounting/accounts", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate code: expected 409, got %d", rec.Code)
	}

	body = map[string]any{"code": "1301", "name": "Bad", "type_id": 1, "sub_type_id": 401}
	rec = f.do(t, http.MethodPost, "/accounting/accounts", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("subtype of another type: expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPostAccount_RequiresJSON(t *testing.T) {
	f := setup(t)
	req := httptest.NewRequest(http.MethodPost, "/accounting/accounts", strings.NewReader(`code=1`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rec.Code)
	}
}

func TestPostEntry_Balanced(t *testing.T) {
	f := setup(t)
	e := f.post(t, f.entry("2024-03-01", "Cash sale", f.debit("1000", "100.00"), f.credit("4000", "100.00")))
	if e.Number != 1 || e.TotalDebit.String() != "100.00" || e.TotalCredit.String() != "100.00" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if len(e.Items) != 2 || e.Items[0].Debit.String() != "100.00" || e.Items[0].Credit.String() != "0.00" {
		t.Fatalf("unexpected items: %+v", e.Items)
	}
	second := f.post(t, f.entry("2024-03-02", "Cash sale", f.debit("1000", "5"), f.credit("4000", "5")))
	if second.Number != 2 {
		t.Fatalf("expected journal number 2, got %d", second.Number)
	}

	rec := f.do(t, http.MethodGet, "/accounting/journal-entries/"+e.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get entry: %d", rec.Code)
	}
}

func TestPostEntry_UnbalancedIsRejected(t *testing.T) {
	f := setup(t)
	rec := f.do(t, http.MethodPost, "/accounting/journal-entries",
		f.entry("2024-03-01", "Short", f.debit("1000", "100.00"), f.credit("4000", "90.00")))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	var er errResp
	f.decode(t, rec, &er)
	if er.Code != "unbalanced_entry" {
		t.Fatalf("expected unbalanced_entry, got %q", er.Code)
	}
	if er.Details["total_debit"] != 100.0 || er.Details["total_credit"] != 90.0 || er.Details["difference"] != 10.0 {
		t.Fatalf("unexpected details: %+v", er.Details)
	}

	var list []entryResp
	f.decode(t, f.do(t, http.MethodGet, "/accounting/journal-entries", nil), &list)
	if len(list) != 0 {
		t.Fatalf("rejected entry was stored: %+v", list)
	}
}

func TestPostEntry_LineErrors(t *testing.T) {
	f := setup(t)
	cases := []struct {
		name  string
		items []map[string]any
		code  string
		line  float64
	}{
		{
			name:  "both sides",
			items: []map[string]any{{"account_id": f.ids["1000"], "debit": "10", "credit": "10"}, f.credit("4000", "10")},
			code:  "malformed_entry",
		},
		{
			name:  "neither side",
			items: []map[string]any{f.debit("1000", "10"), {"account_id": f.ids["4000"]}},
			code:  "malformed_entry",
			line:  1,
		},
		{
			name:  "unknown account",
			items: []map[string]any{f.debit("1000", "10"), {"account_id": "6b3f4f55-38a8-4f0b-9d0f-4a3f0a5d2a11", "credit": "10"}},
			code:  "account_not_found",
			line:  1,
		},
		{
			name:  "wider than int64",
			items: []map[string]any{f.debit("1000", "184467440737095516.17"), f.credit("4000", "0.01")},
			code:  "invalid_amount",
		},
		{
			name:  "too many decimals",
			items: []map[string]any{f.debit("1000", "10.001"), f.credit("4000", "10.001")},
			code:  "invalid_amount",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/accounting/journal-entries", f.entry("2024-03-01", "x", tc.items...))
			if rec.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
			}
			var er errResp
			f.decode(t, rec, &er)
			if er.Code != tc.code {
				t.Fatalf("expected %s, got %s (%s)", tc.code, er.Code, er.Error)
			}
			if er.Details["line"] != tc.line {
				t.Fatalf("expected line %v, got %v", tc.line, er.Details["line"])
			}
		})
	}
}

func TestPostEntry_DisabledAccount(t *testing.T) {
	f := setup(t)
	rec := f.do(t, http.MethodPut, "/accounting/accounts/"+f.ids["6400"], map[string]any{"is_enabled": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("disable: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = f.do(t, http.MethodPost, "/accounting/journal-entries",
		f.entry("2024-03-01", "Supplies", f.debit("6400", "20"), f.credit("1000", "20")))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	var er errResp
	f.decode(t, rec, &er)
	if er.Code != "account_disabled" {
		t.Fatalf("expected account_disabled, got %s", er.Code)
	}
}

func TestPostEntry_IdempotencyKey(t *testing.T) {
	f := setup(t)
	body := f.entry("2024-03-01", "Cash sale", f.debit("1000", "12.50"), f.credit("4000", "12.50"))
	send := func() *httptest.ResponseRecorder {
		b, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, "/accounting/journal-entries", bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", "till-7-receipt-0042")
		rec := httptest.NewRecorder()
		f.h.ServeHTTP(rec, req)
		return rec
	}
	first := send()
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", first.Code, first.Body.String())
	}
	again := send()
	if again.Code != http.StatusOK || again.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replay 200, got %d headers=%v", again.Code, again.Header())
	}
	var a, b entryResp
	f.decode(t, first, &a)
	f.decode(t, again, &b)
	if a.ID != b.ID || a.Number != b.Number {
		t.Fatalf("replay returned a different entry: %s/%s", a.ID, b.ID)
	}
}

func TestPostEntry_OverflowingTotal(t *testing.T) {
	f := setup(t)
	rec := f.do(t, http.MethodPost, "/accounting/journal-entries", f.entry("2024-03-01", "Wrap",
		f.debit("1000", "92233720368547758.07"), f.debit("1000", "92233720368547758.07"),
		f.credit("4000", "0.02")))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	var er errResp
	f.decode(t, rec, &er)
	if er.Code != "invalid_amount" {
		t.Fatalf("expected invalid_amount, got %s", er.Code)
	}
	var list []entryResp
	f.decode(t, f.do(t, http.MethodGet, "/accounting/journal-entries", nil), &list)
	if len(list) != 0 {
		t.Fatalf("overflowing entry was stored: %+v", list)
	}
}

func TestPostEntry_IdempotencyKeyReused(t *testing.T) {
	f := setup(t)
	send := func(body map[string]any) *httptest.ResponseRecorder {
		b, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, "/accounting/journal-entries", bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", "k1")
		rec := httptest.NewRecorder()
		f.h.ServeHTTP(rec, req)
		return rec
	}
	if rec := send(f.entry("2024-03-01", "sale A", f.debit("1000", "12.50"), f.credit("4000", "12.50"))); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	rec := send(f.entry("2024-03-01", "sale B", f.debit("1000", "999.00"), f.credit("4000", "999.00")))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Idempotent-Replayed") != "" {
		t.Fatal("a different entry must not be reported as a replay")
	}
	var er errResp
	f.decode(t, rec, &er)
	if er.Code != "idempotency_key_reused" {
		t.Fatalf("expected idempotency_key_reused, got %s", er.Code)
	}
	var list []entryResp
	f.decode(t, f.do(t, http.MethodGet, "/accounting/journal-entries", nil), &list)
	if len(list) != 1 || list[0].Description != "sale A" {
		t.Fatalf("unexpected entries: %+v", list)
	}
}

func TestEntries_DeleteRefusedAndReverse(t *testing.T) {
	f := setup(t)
	e := f.post(t, f.entry("2024-03-01", "Cash sale", f.debit("1000", "40"), f.credit("4000", "40")))

	rec := f.do(t, http.MethodDelete, "/accounting/journal-entries/"+e.ID, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("delete: expected 409, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/accounting/journal-entries/6b3f4f55-38a8-4f0b-9d0f-4a3f0a5d2a11", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown entry: expected 404, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/accounting/journal-entries/"+e.ID+"/reverse", map[string]any{"date": "2024-03-05"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("reverse: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var rev entryResp
	f.decode(t, rec, &rev)
	if rev.ReversalOf == nil || *rev.ReversalOf != e.ID || rev.Number != 2 || rev.Description != "Reversal of entry #1" {
		t.Fatalf("unexpected reversal: %+v", rev)
	}
	if rev.Items[0].Credit.String() != "40.00" {
		t.Fatalf("reversal should flip sides: %+v", rev.Items)
	}

	rec = f.do(t, http.MethodPost, "/accounting/journal-entries/"+e.ID+"/reverse", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second reverse: expected 409, got %d", rec.Code)
	}

	var bal struct {
		Balance json.Number `json:"balance"`
	}
	f.decode(t, f.do(t, http.MethodGet, "/accounting/accounts/"+f.ids["1000"]+"/balance", nil), &bal)
	if bal.Balance.String() != "0.00" {
		t.Fatalf("expected zero cash after reversal, got %s", bal.Balance)
	}
	f.decode(t, f.do(t, http.MethodGet, "/accounting/accounts/"+f.ids["1000"]+"/balance?as_of=2024-03-02", nil), &bal)
	if bal.Balance.String() != "40.00" {
		t.Fatalf("expected 40.00 before reversal date, got %s", bal.Balance)
	}
}

func TestListEntries_Filters(t *testing.T) {
	f := setup(t)
	f.post(t, f.entry("2024-01-10", "Rent", f.debit("6100", "500"), f.credit("1060", "500")))
	f.post(t, f.entry("2024-02-10", "Sale", f.debit("1000", "80"), f.credit("4000", "80")))

	var list []entryResp
	f.decode(t, f.do(t, http.MethodGet, "/accounting/journal-entries?start_date=2024-02-01", nil), &list)
	if len(list) != 1 || list[0].Description != "Sale" {
		t.Fatalf("date filter: %+v", list)
	}
	f.decode(t, f.do(t, http.MethodGet, "/accounting/journal-entries?account_id="+f.ids["6100"], nil), &list)
	if len(list) != 1 || list[0].Description != "Rent" {
		t.Fatalf("account filter: %+v", list)
	}
	rec := f.do(t, http.MethodGet, "/accounting/journal-entries?start_date=2024-13-01", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date: expected 400, got %d", rec.Code)
	}
}

func TestReports(t *testing.T) {
	f := setup(t)
	f.post(t, f.entry("2024-01-01", "Owner investment", f.debit("1060", "10000"), f.credit("3000", "10000")))
	f.post(t, f.entry("2024-01-05", "Stock purchase", f.debit("1200", "3000"), f.credit("2000", "3000")))
	f.post(t, f.entry("2024-01-15", "Cash sale",
		f.debit("1000", "1500"), f.credit("4000", "1500"),
		f.debit("5000", "900"), f.credit("1200", "900")))
	f.post(t, f.entry("2024-01-31", "Rent", f.debit("6100", "400"), f.credit("1060", "400")))

	var tb struct {
		Totals struct {
			TotalDebit  json.Number `json:"total_debit"`
			TotalCredit json.Number `json:"total_credit"`
		} `json:"totals"`
		Balanced bool `json:"balanced"`
	}
	f.decode(t, f.do(t, http.MethodGet, "/accounting/reports/trial-balance", nil), &tb)
	if !tb.Balanced || tb.Totals.TotalDebit.String() != "15800.00" || tb.Totals.TotalCredit.String() != "15800.00" {
		t.Fatalf("trial balance: %+v", tb)
	}

	var is struct {
		GrossProfit json.Number `json:"gross_profit"`
		NetIncome   json.Number `json:"net_income"`
	}
	f.decode(t, f.do(t, http.MethodGet, "/accounting/reports/income-statement?start_date=2024-01-01&end_date=2024-01-31", nil), &is)
	if is.GrossProfit.String() != "600.00" || is.NetIncome.String() != "200.00" {
		t.Fatalf("income statement: %+v", is)
	}

	var bs struct {
		TotalAssets               json.Number `json:"total_assets"`
		TotalLiabilities          json.Number `json:"total_liabilities"`
		TotalEquity               json.Number `json:"total_equity"`
		TotalLiabilitiesAndEquity json.Number `json:"total_liabilities_and_equity"`
		Difference                json.Number `json:"difference"`
		Balanced                  bool        `json:"balanced"`
	}
	f.decode(t, f.do(t, http.MethodGet, "/accounting/reports/balance-sheet?end_date=2024-01-31", nil), &bs)
	if !bs.Balanced || bs.TotalAssets.String() != "13200.00" || bs.TotalLiabilities.String() != "3000.00" ||
		bs.TotalEquity.String() != "10200.00" || bs.TotalLiabilitiesAndEquity.String() != "13200.00" || bs.Difference.String() != "0.00" {
		t.Fatalf("balance sheet: %+v", bs)
	}

	rec := f.do(t, http.MethodGet, "/accounting/reports/income-statement?start_date=2024-02-01&end_date=2024-01-01", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("inverted range: expected 400, got %d", rec.Code)
	}
}

func TestInitialize_Idempotent(t *testing.T) {
	f := setup(t)
	rec := f.do(t, http.MethodPost, "/accounting/initialize", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var res struct {
		Created []acctResp `json:"created"`
		Skipped int        `json:"skipped"`
	}
	f.decode(t, rec, &res)
	if len(res.Created) != 0 || res.Skipped != len(f.ids) {
		t.Fatalf("second initialize should skip everything: created=%d skipped=%d", len(res.Created), res.Skipped)
	}
}

func TestDeleteAccount(t *testing.T) {
	f := setup(t)
	f.post(t, f.entry("2024-03-01", "Sale", f.debit("1000", "10"), f.credit("4100", "10")))

	rec := f.do(t, http.MethodDelete, "/accounting/accounts/"+f.ids["1000"], nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("account with history: expected 409, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodDelete, "/accounting/accounts/"+f.ids["6300"], nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unused account: expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = f.do(t, http.MethodGet, "/accounting/accounts/"+f.ids["6300"], nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deleted account: expected 404, got %d", rec.Code)
	}
}

func TestTypesAndSubtypes(t *testing.T) {
	f := setup(t)
	var types []map[string]any
	f.decode(t, f.do(t, http.MethodGet, "/accounting/types", nil), &types)
	if len(types) != 6 {
		t.Fatalf("expected 6 types, got %d", len(types))
	}
	var subs []struct {
		Type string `json:"type"`
	}
	f.decode(t, f.do(t, http.MethodGet, "/accounting/subtypes?type=5", nil), &subs)
	if len(subs) == 0 {
		t.Fatal("expected cogs subtypes")
	}
	for _, st := range subs {
		if st.Type != "cogs" {
			t.Fatalf("unexpected subtype type %s", st.Type)
		}
	}
	rec := f.do(t, http.MethodGet, "/accounting/subtypes?type=nope", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	f := setupWith(t, Options{Currency: "USD", RateLimitRPS: 0.001, RateLimitBurst: 1})
	// setup spent the single token on initialize.
	rec := f.do(t, http.MethodPost, "/accounting/initialize", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
	if rec := f.do(t, http.MethodGet, "/accounting/accounts", nil); rec.Code != http.StatusOK {
		t.Fatalf("reads are not limited: got %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	f := setup(t)
	if rec := f.do(t, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/readyz", nil); rec.Code != http.StatusOK {
		t.Fatalf("readyz: %d", rec.Code)
	}
	rec := f.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ledger_http_requests_total") {
		t.Fatalf("metrics missing request counter: %d", rec.Code)
	}
}
