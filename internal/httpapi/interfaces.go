package httpapi

import (
	"context"

	"github.com/tinoosan/retail-ledger/internal/service/account"
	"github.com/tinoosan/retail-ledger/internal/service/journal"
	"github.com/tinoosan/retail-ledger/internal/service/report"
)

// Store is the storage backend the server composes its services from.
type Store interface {
	account.Repo
	account.Writer
	journal.Repo
	journal.Writer
	report.Repo
	Ready(ctx context.Context) error
}
