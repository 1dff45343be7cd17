package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tinoosan/retail-ledger/internal/ledger"
)

// Snapshot reads accounts and per-account activity in [from, to] inside one
// repeatable-read transaction, so both queries see the same committed entries.
func (s *Store) Snapshot(ctx context.Context, from, to *time.Time) (ledger.Snapshot, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return ledger.Snapshot{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	accounts, err := listAccounts(ctx, tx)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	rows, err := tx.Query(ctx, `
		select l.account_id,
		  coalesce(sum(l.amount_minor) filter (where l.side = 'debit'), 0)::bigint,
		  coalesce(sum(l.amount_minor) filter (where l.side = 'credit'), 0)::bigint
		from journal_lines l
		join journal_entries e on e.id = l.entry_id
		where ($1::date is null or e.date >= $1)
		  and ($2::date is null or e.date <= $2)
		group by l.account_id
	`, dateArg(from), dateArg(to))
	if err != nil {
		return ledger.Snapshot{}, err
	}
	defer rows.Close()
	activity := make(map[uuid.UUID]ledger.AccountBalance)
	for rows.Next() {
		var b ledger.AccountBalance
		if err := rows.Scan(&b.AccountID, &b.Debit, &b.Credit); err != nil {
			return ledger.Snapshot{}, err
		}
		activity[b.AccountID] = b
	}
	if err := rows.Err(); err != nil {
		return ledger.Snapshot{}, err
	}
	return ledger.Snapshot{Accounts: accounts, Activity: activity}, tx.Commit(ctx)
}
