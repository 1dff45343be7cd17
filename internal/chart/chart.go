// Package chart holds the default chart of accounts: account types, their
// subtypes, and the seed accounts written by the initialize operation.
package chart

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tinoosan/retail-ledger/internal/ledger"
)

// TypeDef describes an account type as exposed to clients.
type TypeDef struct {
	ID         int                `json:"id" yaml:"id"`
	Type       ledger.AccountType `json:"type" yaml:"type"`
	Label      string             `json:"label" yaml:"label"`
	NormalSide ledger.Side        `json:"normal_side" yaml:"-"`
}

// AccountDef is one seed account of a chart.
type AccountDef struct {
	Code        string             `yaml:"code"`
	Name        string             `yaml:"name"`
	Type        ledger.AccountType `yaml:"type"`
	SubtypeID   int                `yaml:"subtype_id"`
	Description string             `yaml:"description,omitempty"`
	System      bool               `yaml:"system,omitempty"`
}

var types = []TypeDef{
	{ID: 1, Type: ledger.AccountTypeAsset, Label: "Asset"},
	{ID: 2, Type: ledger.AccountTypeLiability, Label: "Liability"},
	{ID: 3, Type: ledger.AccountTypeEquity, Label: "Equity"},
	{ID: 4, Type: ledger.AccountTypeIncome, Label: "Income"},
	{ID: 5, Type: ledger.AccountTypeCOGS, Label: "Cost of Goods Sold"},
	{ID: 6, Type: ledger.AccountTypeExpense, Label: "Expense"},
}

var subtypes = []ledger.AccountSubtype{
	{ID: 101, Type: ledger.AccountTypeAsset, Name: "Cash"},
	{ID: 102, Type: ledger.AccountTypeAsset, Name: "Bank"},
	{ID: 103, Type: ledger.AccountTypeAsset, Name: "Accounts Receivable"},
	{ID: 104, Type: ledger.AccountTypeAsset, Name: "Inventory"},
	{ID: 105, Type: ledger.AccountTypeAsset, Name: "Fixed Assets"},
	{ID: 201, Type: ledger.AccountTypeLiability, Name: "Accounts Payable"},
	{ID: 202, Type: ledger.AccountTypeLiability, Name: "Tax Payable"},
	{ID: 203, Type: ledger.AccountTypeLiability, Name: "Loans"},
	{ID: 301, Type: ledger.AccountTypeEquity, Name: "Owner Equity"},
	{ID: 302, Type: ledger.AccountTypeEquity, Name: "Retained Earnings"},
	{ID: 401, Type: ledger.AccountTypeIncome, Name: "Sales"},
	{ID: 402, Type: ledger.AccountTypeIncome, Name: "Other Income"},
	{ID: 501, Type: ledger.AccountTypeCOGS, Name: "Cost of Sales"},
	{ID: 502, Type: ledger.AccountTypeCOGS, Name: "Inventory Adjustments"},
	{ID: 601, Type: ledger.AccountTypeExpense, Name: "Occupancy"},
	{ID: 602, Type: ledger.AccountTypeExpense, Name: "Payroll"},
	{ID: 603, Type: ledger.AccountTypeExpense, Name: "Operating"},
}

var defaultAccounts = []AccountDef{
	{Code: "1000", Name: "Cash", Type: ledger.AccountTypeAsset, SubtypeID: 101, Description: "Cash on hand and till floats"},
	{Code: "1060", Name: "Checking Account", Type: ledger.AccountTypeAsset, SubtypeID: 102},
	{Code: "1100", Name: "Accounts Receivable", Type: ledger.AccountTypeAsset, SubtypeID: 103},
	{Code: "1200", Name: "Inventory", Type: ledger.AccountTypeAsset, SubtypeID: 104, Description: "Goods held for sale"},
	{Code: "1500", Name: "Equipment", Type: ledger.AccountTypeAsset, SubtypeID: 105},
	{Code: "2000", Name: "Accounts Payable", Type: ledger.AccountTypeLiability, SubtypeID: 201, Description: "Amounts owed to suppliers"},
	{Code: "2100", Name: "Sales Tax Payable", Type: ledger.AccountTypeLiability, SubtypeID: 202},
	{Code: "2500", Name: "Loans Payable", Type: ledger.AccountTypeLiability, SubtypeID: 203},
	{Code: "3000", Name: "Owner's Equity", Type: ledger.AccountTypeEquity, SubtypeID: 301},
	{Code: "3100", Name: "Retained Earnings", Type: ledger.AccountTypeEquity, SubtypeID: 302, System: true},
	{Code: "4000", Name: "Sales Revenue", Type: ledger.AccountTypeIncome, SubtypeID: 401},
	{Code: "4100", Name: "Other Income", Type: ledger.AccountTypeIncome, SubtypeID: 402},
	{Code: "5000", Name: "Cost of Goods Sold", Type: ledger.AccountTypeCOGS, SubtypeID: 501},
	{Code: "5100", Name: "Inventory Shrinkage", Type: ledger.AccountTypeCOGS, SubtypeID: 502},
	{Code: "6100", Name: "Rent", Type: ledger.AccountTypeExpense, SubtypeID: 601},
	{Code: "6200", Name: "Wages", Type: ledger.AccountTypeExpense, SubtypeID: 602},
	{Code: "6300", Name: "Utilities", Type: ledger.AccountTypeExpense, SubtypeID: 603},
	{Code: "6400", Name: "Supplies", Type: ledger.AccountTypeExpense, SubtypeID: 603},
}

// Types returns every account type in reporting order.
func Types() []TypeDef {
	out := make([]TypeDef, len(types))
	for i, t := range types {
		t.NormalSide = t.Type.NormalSide()
		out[i] = t
	}
	return out
}

// TypeByID resolves the numeric type id used by clients.
func TypeByID(id int) (ledger.AccountType, bool) {
	for _, t := range types {
		if t.ID == id {
			return t.Type, true
		}
	}
	return "", false
}

// TypeID returns the numeric id of an account type, or 0.
func TypeID(t ledger.AccountType) int {
	for _, def := range types {
		if def.Type == t {
			return def.ID
		}
	}
	return 0
}

// Subtypes returns subtypes, optionally restricted to one type.
func Subtypes(t *ledger.AccountType) []ledger.AccountSubtype {
	out := make([]ledger.AccountSubtype, 0, len(subtypes))
	for _, st := range subtypes {
		if t != nil && st.Type != *t {
			continue
		}
		out = append(out, st)
	}
	return out
}

// Subtype looks up a subtype by id.
func Subtype(id int) (ledger.AccountSubtype, bool) {
	for _, st := range subtypes {
		if st.ID == id {
			return st, true
		}
	}
	return ledger.AccountSubtype{}, false
}

// BelongsTo reports whether subtype id is owned by t.
func BelongsTo(id int, t ledger.AccountType) bool {
	st, ok := Subtype(id)
	return ok && st.Type == t
}

// Default returns a copy of the built-in retail chart.
func Default() []AccountDef {
	out := make([]AccountDef, len(defaultAccounts))
	copy(out, defaultAccounts)
	return out
}

// file is the on-disk layout of a chart override.
type file struct {
	Accounts []AccountDef `yaml:"accounts"`
}

// Load reads a YAML chart file. Every account must reference a subtype that
// belongs to its type.
func Load(path string) ([]AccountDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading chart: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing chart: %w", err)
	}
	if len(f.Accounts) == 0 {
		return nil, errors.New("chart has no accounts")
	}
	seen := make(map[string]struct{}, len(f.Accounts))
	for i, a := range f.Accounts {
		if a.Code == "" || a.Name == "" {
			return nil, fmt.Errorf("chart account %d: code and name are required", i)
		}
		if _, dup := seen[a.Code]; dup {
			return nil, fmt.Errorf("chart account %d: duplicate code %q", i, a.Code)
		}
		seen[a.Code] = struct{}{}
		if !a.Type.Valid() {
			return nil, fmt.Errorf("chart account %s: invalid type %q", a.Code, a.Type)
		}
		if !BelongsTo(a.SubtypeID, a.Type) {
			return nil, fmt.Errorf("chart account %s: subtype %d does not belong to %s", a.Code, a.SubtypeID, a.Type)
		}
	}
	return f.Accounts, nil
}
