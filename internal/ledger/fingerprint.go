package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Fingerprint hashes the caller-supplied content of e: date, texts, currency
// and every line in order. Identifiers, numbers and timestamps assigned at
// posting are left out, so a retried request hashes the same.
func Fingerprint(e JournalEntry) string {
	h := sha256.New()
	field := func(s string) {
		h.Write([]byte(strconv.Itoa(len(s))))
		h.Write([]byte{':'})
		h.Write([]byte(s))
	}
	field(DateOnly(e.Date).Format("2006-01-02"))
	field(strings.TrimSpace(e.Description))
	field(strings.TrimSpace(e.Reference))
	field(strings.ToUpper(e.Currency))
	for _, ln := range e.Lines {
		field(ln.AccountID.String())
		field(string(ln.Side))
		field(strconv.FormatInt(ln.MinorUnits(), 10))
		field(ln.Description)
	}
	return hex.EncodeToString(h.Sum(nil))
}
