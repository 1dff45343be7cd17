package memory

import (
	"github.com/tinoosan/retail-ledger/internal/service/account"
	"github.com/tinoosan/retail-ledger/internal/service/journal"
	"github.com/tinoosan/retail-ledger/internal/service/report"
)

// Compile-time interface assertions documenting which interfaces Store satisfies.
var (
	_ journal.Repo       = (*Store)(nil)
	_ journal.Writer     = (*Store)(nil)
	_ account.Repo       = (*Store)(nil)
	_ account.Writer     = (*Store)(nil)
	_ account.TxBeginner = (*Store)(nil)
	_ report.Repo        = (*Store)(nil)
)
