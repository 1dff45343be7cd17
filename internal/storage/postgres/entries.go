package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tinoosan/retail-ledger/internal/errs"
	"github.com/tinoosan/retail-ledger/internal/ledger"
)

const entryColumns = `id, number, date, description, reference, currency, created_at, reversal_of, reversed_by`

// --- Entry reads ---

// ListEntries returns entries matching f ordered by journal number, lines populated.
func (s *Store) ListEntries(ctx context.Context, f ledger.EntryFilter) ([]ledger.JournalEntry, error) {
	rows, err := s.pool.Query(ctx, `
		select `+entryColumns+`
		from journal_entries e
		where ($1::date is null or e.date >= $1)
		  and ($2::date is null or e.date <= $2)
		  and ($3::uuid is null or exists (
		        select 1 from journal_lines l where l.entry_id = e.id and l.account_id = $3))
		order by e.number asc
	`, dateArg(f.From), dateArg(f.To), f.AccountID)
	if err != nil {
		return nil, err
	}
	entries, err := collectEntries(rows)
	if err != nil {
		return nil, err
	}
	if err := loadLines(ctx, s.pool, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetEntry returns an entry by id with lines populated.
func (s *Store) GetEntry(ctx context.Context, entryID uuid.UUID) (ledger.JournalEntry, error) {
	return getEntry(ctx, s.pool, entryID)
}

func getEntry(ctx context.Context, q querier, entryID uuid.UUID) (ledger.JournalEntry, error) {
	rows, err := q.Query(ctx, `select `+entryColumns+` from journal_entries where id = $1`, entryID)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	entries, err := collectEntries(rows)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	if len(entries) == 0 {
		return ledger.JournalEntry{}, errs.ErrNotFound
	}
	if err := loadLines(ctx, q, entries); err != nil {
		return ledger.JournalEntry{}, err
	}
	return entries[0], nil
}

func collectEntries(rows pgx.Rows) ([]ledger.JournalEntry, error) {
	defer rows.Close()
	out := make([]ledger.JournalEntry, 0)
	for rows.Next() {
		var e ledger.JournalEntry
		if err := rows.Scan(&e.ID, &e.Number, &e.Date, &e.Description, &e.Reference, &e.Currency, &e.CreatedAt, &e.ReversalOf, &e.ReversedBy); err != nil {
			return nil, err
		}
		e.Date = ledger.DateOnly(e.Date)
		out = append(out, e)
	}
	return out, rows.Err()
}

func loadLines(ctx context.Context, q querier, entries []ledger.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(entries))
	idx := make(map[uuid.UUID]*ledger.JournalEntry, len(entries))
	for i := range entries {
		ids[i] = entries[i].ID
		idx[entries[i].ID] = &entries[i]
	}
	rows, err := q.Query(ctx, `
		select id, entry_id, account_id, description, side, amount_minor
		from journal_lines
		where entry_id = any($1)
		order by entry_id, line_no
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var ln ledger.JournalLine
		var side string
		var minor int64
		if err := rows.Scan(&ln.ID, &ln.EntryID, &ln.AccountID, &ln.Description, &side, &minor); err != nil {
			return err
		}
		e := idx[ln.EntryID]
		if e == nil {
			continue
		}
		ln.Side = ledger.Side(side)
		ln.Amount = ledger.Amount(e.Currency, minor)
		e.Lines = append(e.Lines, ln)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i := range entries {
		debit, credit, _ := ledger.Totals(entries[i].Lines)
		entries[i].TotalDebit = ledger.Amount(entries[i].Currency, debit)
		entries[i].TotalCredit = ledger.Amount(entries[i].Currency, credit)
	}
	return nil
}

// AccountBalance reads the materialized totals, or sums lines dated on or
// before asOf when it is set.
func (s *Store) AccountBalance(ctx context.Context, accountID uuid.UUID, asOf *time.Time) (ledger.AccountBalance, error) {
	b := ledger.AccountBalance{AccountID: accountID}
	if asOf == nil {
		err := s.pool.QueryRow(ctx, `
			select debit_minor, credit_minor from account_balances where account_id = $1
		`, accountID).Scan(&b.Debit, &b.Credit)
		if errors.Is(err, pgx.ErrNoRows) {
			return b, nil
		}
		return b, err
	}
	err := s.pool.QueryRow(ctx, `
		select
		  coalesce(sum(l.amount_minor) filter (where l.side = 'debit'), 0)::bigint,
		  coalesce(sum(l.amount_minor) filter (where l.side = 'credit'), 0)::bigint
		from journal_lines l
		join journal_entries e on e.id = l.entry_id
		where l.account_id = $1 and e.date <= $2::date
	`, accountID, dateArg(asOf)).Scan(&b.Debit, &b.Credit)
	return b, err
}

// --- Entry writes ---

// PostEntry appends e inside one transaction. The counter row lock taken
// first serializes writers; a rollback releases the number unused.
func (s *Store) PostEntry(ctx context.Context, e ledger.JournalEntry, idemKey string) (ledger.JournalEntry, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return ledger.JournalEntry{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	last, err := lockCounter(ctx, tx)
	if err != nil {
		return ledger.JournalEntry{}, false, err
	}
	fp := ledger.Fingerprint(e)
	if idemKey != "" {
		var existing uuid.UUID
		var storedFP string
		err := tx.QueryRow(ctx, `select entry_id, request_hash from entry_idempotency where key = $1`, idemKey).Scan(&existing, &storedFP)
		if err == nil {
			if storedFP != "" && storedFP != fp {
				return ledger.JournalEntry{}, false, errs.ErrIdempotencyKeyReused
			}
			stored, err := getEntry(ctx, tx, existing)
			return stored, err == nil, err
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return ledger.JournalEntry{}, false, err
		}
	}
	stored, err := appendEntry(ctx, tx, e, last+1)
	if err != nil {
		return ledger.JournalEntry{}, false, err
	}
	if idemKey != "" {
		if _, err := tx.Exec(ctx, `insert into entry_idempotency (key, entry_id, request_hash) values ($1, $2, $3)`, idemKey, stored.ID, fp); err != nil {
			return ledger.JournalEntry{}, false, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return ledger.JournalEntry{}, false, err
	}
	return stored, false, nil
}

// PostReversal appends rev and links the original entry to it.
func (s *Store) PostReversal(ctx context.Context, rev ledger.JournalEntry) (ledger.JournalEntry, error) {
	if rev.ReversalOf == nil {
		return ledger.JournalEntry{}, errs.ErrInvalid
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	last, err := lockCounter(ctx, tx)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	var reversedBy *uuid.UUID
	err = tx.QueryRow(ctx, `select reversed_by from journal_entries where id = $1 for update`, *rev.ReversalOf).Scan(&reversedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.JournalEntry{}, errs.ErrNotFound
	}
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	if reversedBy != nil {
		return ledger.JournalEntry{}, errs.ErrAlreadyReversed
	}
	stored, err := appendEntry(ctx, tx, rev, last+1)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	if _, err := tx.Exec(ctx, `update journal_entries set reversed_by = $1 where id = $2`, stored.ID, *rev.ReversalOf); err != nil {
		return ledger.JournalEntry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ledger.JournalEntry{}, err
	}
	return stored, nil
}

func lockCounter(ctx context.Context, tx pgx.Tx) (int64, error) {
	var last int64
	err := tx.QueryRow(ctx, `select last_number from journal_counter where id = 1 for update`).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("journal_counter not initialized; run migrations")
	}
	return last, err
}

// appendEntry writes header, lines and balance deltas, then advances the counter.
func appendEntry(ctx context.Context, tx pgx.Tx, e ledger.JournalEntry, number int64) (ledger.JournalEntry, error) {
	if err := checkAccounts(ctx, tx, e.Lines); err != nil {
		return ledger.JournalEntry{}, err
	}
	debit, _, err := ledger.Totals(e.Lines)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	if _, err := tx.Exec(ctx, `
		insert into journal_entries (id, number, date, description, reference, currency, total_minor, created_at, reversal_of)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, e.ID, number, e.Date, e.Description, e.Reference, e.Currency, debit, e.CreatedAt, e.ReversalOf); err != nil {
		return ledger.JournalEntry{}, fmt.Errorf("insert entry: %w", err)
	}
	batch := &pgx.Batch{}
	for i, ln := range e.Lines {
		units := ln.MinorUnits()
		batch.Queue(`
			insert into journal_lines (id, entry_id, line_no, account_id, description, side, amount_minor)
			values ($1,$2,$3,$4,$5,$6,$7)
		`, ln.ID, e.ID, i+1, ln.AccountID, ln.Description, string(ln.Side), units)
		var dr, cr int64
		if ln.Side == ledger.SideDebit {
			dr = units
		} else {
			cr = units
		}
		batch.Queue(`
			insert into account_balances (account_id, debit_minor, credit_minor)
			values ($1, $2, $3)
			on conflict (account_id) do update
			set debit_minor = account_balances.debit_minor + excluded.debit_minor,
			    credit_minor = account_balances.credit_minor + excluded.credit_minor
		`, ln.AccountID, dr, cr)
	}
	// bigint arithmetic raises 22003 instead of wrapping; volume_minor bounds
	// every statement total.
	batch.Queue(`update journal_counter set last_number = $1, volume_minor = volume_minor + $2 where id = 1`, number, debit)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		if isOutOfRange(err) {
			return ledger.JournalEntry{}, errs.ErrAmountOverflow
		}
		return ledger.JournalEntry{}, fmt.Errorf("insert lines: %w", err)
	}
	e.Number = number
	return e, nil
}

// checkAccounts re-reads the posted accounts under a share lock so an account
// cannot be disabled or removed between validation and commit.
func checkAccounts(ctx context.Context, tx pgx.Tx, lines []ledger.JournalLine) error {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, ln := range lines {
		ids = append(ids, ln.AccountID)
	}
	rows, err := tx.Query(ctx, `select id, enabled from accounts where id = any($1) for share`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	enabled := make(map[uuid.UUID]bool, len(ids))
	for rows.Next() {
		var id uuid.UUID
		var on bool
		if err := rows.Scan(&id, &on); err != nil {
			return err
		}
		enabled[id] = on
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, id := range ids {
		on, ok := enabled[id]
		if !ok {
			return errs.ErrAccountNotFound
		}
		if !on {
			return errs.ErrAccountDisabled
		}
	}
	return nil
}

// dateArg converts an optional bound to a nullable date parameter.
func dateArg(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := ledger.DateOnly(*t)
	return &d
}
