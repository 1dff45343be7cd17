// Package postgres provides a pgx-backed ledger store. The schema lives in
// internal/migrate; this package maps rows to domain entities and runs the
// posting transaction.
package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tinoosan/retail-ledger/internal/errs"
	"github.com/tinoosan/retail-ledger/internal/ledger"
	"github.com/tinoosan/retail-ledger/internal/service/account"
)

// Store holds a pgx connection pool. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Open establishes a pgx pool using the provided connection string.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

const accountColumns = `id, code, name, type, subtype_id, description, enabled, system, created_at`

// querier is satisfied by the pool and by transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanAccount(row pgx.Row) (ledger.Account, error) {
	var a ledger.Account
	var typ string
	err := row.Scan(&a.ID, &a.Code, &a.Name, &typ, &a.SubtypeID, &a.Description, &a.Enabled, &a.System, &a.CreatedAt)
	a.Type = ledger.AccountType(typ)
	return a, err
}

func listAccounts(ctx context.Context, q querier) ([]ledger.Account, error) {
	rows, err := q.Query(ctx, `select `+accountColumns+` from accounts order by code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- Account reads ---

func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	return listAccounts(ctx, s.pool)
}

func (s *Store) GetAccount(ctx context.Context, accountID uuid.UUID) (ledger.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx, `select `+accountColumns+` from accounts where id = $1`, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, err
}

func (s *Store) AccountByCode(ctx context.Context, code string) (ledger.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx, `select `+accountColumns+` from accounts where code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, err
}

func (s *Store) AccountsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error) {
	out := make(map[uuid.UUID]ledger.Account, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `select `+accountColumns+` from accounts where id = any($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

func (s *Store) AccountHasActivity(ctx context.Context, accountID uuid.UUID) (bool, error) {
	var used bool
	err := s.pool.QueryRow(ctx, `select exists (select 1 from journal_lines where account_id = $1)`, accountID).Scan(&used)
	return used, err
}

// --- Account writes ---

func insertAccount(ctx context.Context, q querier, a ledger.Account) error {
	_, err := q.Exec(ctx, `
		insert into accounts (`+accountColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, a.ID, a.Code, a.Name, string(a.Type), a.SubtypeID, a.Description, a.Enabled, a.System, a.CreatedAt)
	return mapConstraint(err)
}

func (s *Store) CreateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	if err := insertAccount(ctx, s.pool, a); err != nil {
		return ledger.Account{}, err
	}
	return a, nil
}

// UpdateAccount overwrites every mutable column; the service decides what may change.
func (s *Store) UpdateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	ct, err := s.pool.Exec(ctx, `
		update accounts
		set code=$1, name=$2, type=$3, subtype_id=$4, description=$5, enabled=$6
		where id=$7
	`, a.Code, a.Name, string(a.Type), a.SubtypeID, a.Description, a.Enabled, a.ID)
	if err != nil {
		return ledger.Account{}, mapConstraint(err)
	}
	if ct.RowsAffected() == 0 {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, nil
}

// DeleteAccount removes an account row. Lines referencing it make the foreign
// key fail, which surfaces as ErrAccountInUse.
func (s *Store) DeleteAccount(ctx context.Context, accountID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, `delete from account_balances where account_id = $1 and debit_minor = 0 and credit_minor = 0`, accountID); err != nil {
		return err
	}
	ct, err := tx.Exec(ctx, `delete from accounts where id = $1`, accountID)
	if err != nil {
		return mapConstraint(err)
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return tx.Commit(ctx)
}

// BeginAccountsTx opens a transaction for seeding a chart of accounts.
func (s *Store) BeginAccountsTx(ctx context.Context) (account.TxWriter, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// Tx wraps a pgx.Tx for batch account creation.
type Tx struct{ tx pgx.Tx }

func (t *Tx) CreateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	if err := insertAccount(ctx, t.tx, a); err != nil {
		return ledger.Account{}, err
	}
	return a, nil
}

func (t *Tx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *Tx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// isOutOfRange reports a numeric_value_out_of_range error (bigint overflow).
func isOutOfRange(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22003"
}

// mapConstraint turns constraint violations into domain errors.
func mapConstraint(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		if pgErr.ConstraintName == "accounts_code_key" {
			return errs.ErrCodeExists
		}
		return errs.ErrConflict
	case "23503":
		return errs.ErrAccountInUse
	}
	return err
}
