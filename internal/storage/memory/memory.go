// Package memory provides an in-memory ledger store used for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/retail-ledger/internal/errs"
	"github.com/tinoosan/retail-ledger/internal/ledger"
	"github.com/tinoosan/retail-ledger/internal/service/account"
)

// Store is an in-memory implementation of the account, journal and report
// repositories. A single RWMutex serializes writers, so journal numbers are
// gapless and readers only ever see whole entries.
type Store struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]ledger.Account
	// entries is ordered by journal number.
	entries  []ledger.JournalEntry
	entryIdx map[uuid.UUID]int
	balances map[uuid.UUID]ledger.AccountBalance
	idem     map[string]idemRecord
	last     int64
	// volume is the sum of all debit lines; keeping it within int64 keeps
	// every statement total representable.
	volume int64
	// failNext makes the next write fail before anything is mutated.
	failNext error
}

type idemRecord struct {
	entryID     uuid.UUID
	fingerprint string
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{
		accounts: make(map[uuid.UUID]ledger.Account),
		entryIdx: make(map[uuid.UUID]int),
		balances: make(map[uuid.UUID]ledger.AccountBalance),
		idem:     make(map[string]idemRecord),
	}
}

// SeedAccount stores a without validation. For local dev and tests.
func (s *Store) SeedAccount(a ledger.Account) { s.mu.Lock(); s.accounts[a.ID] = a; s.mu.Unlock() }

// FailNextWrite makes the next posting or reversal fail with err without
// touching state.
func (s *Store) FailNextWrite(err error) { s.mu.Lock(); s.failNext = err; s.mu.Unlock() }

// Reset drops all state.
func (s *Store) Reset() {
	s.mu.Lock()
	s.accounts = map[uuid.UUID]ledger.Account{}
	s.entries = nil
	s.entryIdx = map[uuid.UUID]int{}
	s.balances = map[uuid.UUID]ledger.AccountBalance{}
	s.idem = map[string]idemRecord{}
	s.last = 0
	s.volume = 0
	s.mu.Unlock()
}

// Ready always succeeds.
func (s *Store) Ready(context.Context) error { return nil }

func (s *Store) ListAccounts(context.Context) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accountsLocked(), nil
}

func (s *Store) GetAccount(_ context.Context, accountID uuid.UUID) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[accountID]
	if !ok {
		return ledger.Account{}, errs.ErrNotFound
	}
	return acc, nil
}

func (s *Store) AccountByCode(_ context.Context, code string) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, acc := range s.accounts {
		if acc.Code == code {
			return acc, nil
		}
	}
	return ledger.Account{}, errs.ErrNotFound
}

func (s *Store) AccountHasActivity(_ context.Context, accountID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[accountID].HasActivity(), nil
}

func (s *Store) AccountsByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]ledger.Account, len(ids))
	for _, id := range ids {
		if acc, ok := s.accounts[id]; ok {
			out[id] = acc
		}
	}
	return out, nil
}

func (s *Store) CreateAccount(_ context.Context, a ledger.Account) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.createAccountLocked(a); err != nil {
		return ledger.Account{}, err
	}
	return a, nil
}

func (s *Store) UpdateAccount(_ context.Context, a ledger.Account) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; !ok {
		return ledger.Account{}, errs.ErrNotFound
	}
	for id, other := range s.accounts {
		if id != a.ID && other.Code == a.Code {
			return ledger.Account{}, errs.ErrCodeExists
		}
	}
	s.accounts[a.ID] = a
	return a, nil
}

func (s *Store) DeleteAccount(_ context.Context, accountID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[accountID]; !ok {
		return errs.ErrNotFound
	}
	if s.balances[accountID].HasActivity() {
		return errs.ErrAccountInUse
	}
	delete(s.accounts, accountID)
	return nil
}

// BeginAccountsTx buffers account creations and applies them all on Commit.
func (s *Store) BeginAccountsTx(context.Context) (account.TxWriter, error) {
	return &accountsTx{store: s}, nil
}

type accountsTx struct {
	store   *Store
	pending []ledger.Account
	done    bool
}

func (t *accountsTx) CreateAccount(_ context.Context, a ledger.Account) (ledger.Account, error) {
	if t.done {
		return ledger.Account{}, errs.ErrConflict
	}
	t.pending = append(t.pending, a)
	return a, nil
}

func (t *accountsTx) Commit(context.Context) error {
	if t.done {
		return errs.ErrConflict
	}
	t.done = true
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := make(map[string]struct{}, len(t.pending))
	for _, a := range t.pending {
		if _, dup := codes[a.Code]; dup {
			return errs.ErrCodeExists
		}
		codes[a.Code] = struct{}{}
		for _, other := range s.accounts {
			if other.Code == a.Code {
				return errs.ErrCodeExists
			}
		}
	}
	for _, a := range t.pending {
		s.accounts[a.ID] = a
	}
	return nil
}

func (t *accountsTx) Rollback(context.Context) error {
	t.done = true
	t.pending = nil
	return nil
}

// PostEntry assigns the next journal number and applies e to the ledger. A
// repeated idemKey returns the first entry when the content matches and
// ErrIdempotencyKeyReused when it does not.
func (s *Store) PostEntry(_ context.Context, e ledger.JournalEntry, idemKey string) (ledger.JournalEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fp := ledger.Fingerprint(e)
	if idemKey != "" {
		if rec, ok := s.idem[idemKey]; ok {
			if rec.fingerprint != fp {
				return ledger.JournalEntry{}, false, errs.ErrIdempotencyKeyReused
			}
			return s.entryLocked(rec.entryID), true, nil
		}
	}
	stored, err := s.appendLocked(e)
	if err != nil {
		return ledger.JournalEntry{}, false, err
	}
	if idemKey != "" {
		s.idem[idemKey] = idemRecord{entryID: stored.ID, fingerprint: fp}
	}
	return stored, false, nil
}

// PostReversal appends rev and links it to the entry it offsets.
func (s *Store) PostReversal(_ context.Context, rev ledger.JournalEntry) (ledger.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rev.ReversalOf == nil {
		return ledger.JournalEntry{}, errs.ErrInvalid
	}
	pos, ok := s.entryIdx[*rev.ReversalOf]
	if !ok {
		return ledger.JournalEntry{}, errs.ErrNotFound
	}
	if s.entries[pos].ReversedBy != nil {
		return ledger.JournalEntry{}, errs.ErrAlreadyReversed
	}
	stored, err := s.appendLocked(rev)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	revID := stored.ID
	s.entries[pos].ReversedBy = &revID
	return stored, nil
}

func (s *Store) appendLocked(e ledger.JournalEntry) (ledger.JournalEntry, error) {
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return ledger.JournalEntry{}, err
	}
	for _, ln := range e.Lines {
		acc, ok := s.accounts[ln.AccountID]
		if !ok {
			return ledger.JournalEntry{}, errs.ErrAccountNotFound
		}
		if !acc.Enabled {
			return ledger.JournalEntry{}, errs.ErrAccountDisabled
		}
	}
	debit, _, err := ledger.Totals(e.Lines)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	volume, err := ledger.AddUnits(s.volume, debit)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	next := make(map[uuid.UUID]ledger.AccountBalance, len(e.Lines))
	for _, ln := range e.Lines {
		b, ok := next[ln.AccountID]
		if !ok {
			b = s.balances[ln.AccountID]
			b.AccountID = ln.AccountID
		}
		if b, err = b.Plus(ln.Side, ln.MinorUnits()); err != nil {
			return ledger.JournalEntry{}, err
		}
		next[ln.AccountID] = b
	}

	s.last++
	s.volume = volume
	e.Number = s.last
	e.Lines = append([]ledger.JournalLine(nil), e.Lines...)
	for id, b := range next {
		s.balances[id] = b
	}
	s.entryIdx[e.ID] = len(s.entries)
	s.entries = append(s.entries, e)
	return copyEntry(e), nil
}

func (s *Store) GetEntry(_ context.Context, entryID uuid.UUID) (ledger.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.entryIdx[entryID]; !ok {
		return ledger.JournalEntry{}, errs.ErrNotFound
	}
	return s.entryLocked(entryID), nil
}

// ListEntries returns matching entries ordered by journal number.
func (s *Store) ListEntries(_ context.Context, f ledger.EntryFilter) ([]ledger.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.JournalEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if f.Matches(e) {
			out = append(out, copyEntry(e))
		}
	}
	return out, nil
}

// AccountBalance returns running totals; with asOf set they are recomputed
// from lines dated on or before it.
func (s *Store) AccountBalance(_ context.Context, accountID uuid.UUID, asOf *time.Time) (ledger.AccountBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if asOf == nil {
		b := s.balances[accountID]
		b.AccountID = accountID
		return b, nil
	}
	b := ledger.AccountBalance{AccountID: accountID}
	for _, e := range s.entries {
		if !ledger.InRange(e.Date, nil, asOf) {
			continue
		}
		for _, ln := range e.Lines {
			if ln.AccountID == accountID {
				b.Apply(ln.Side, ln.MinorUnits())
			}
		}
	}
	return b, nil
}

// Snapshot reads accounts and per-account activity in [from, to] under one lock.
func (s *Store) Snapshot(_ context.Context, from, to *time.Time) (ledger.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := ledger.Snapshot{Accounts: s.accountsLocked(), Activity: make(map[uuid.UUID]ledger.AccountBalance)}
	if from == nil && to == nil {
		for id, b := range s.balances {
			snap.Activity[id] = b
		}
		return snap, nil
	}
	for _, e := range s.entries {
		if !ledger.InRange(e.Date, from, to) {
			continue
		}
		for _, ln := range e.Lines {
			b := snap.Activity[ln.AccountID]
			b.AccountID = ln.AccountID
			b.Apply(ln.Side, ln.MinorUnits())
			snap.Activity[ln.AccountID] = b
		}
	}
	return snap, nil
}

func (s *Store) createAccountLocked(a ledger.Account) error {
	if _, ok := s.accounts[a.ID]; ok {
		return errs.ErrConflict
	}
	for _, other := range s.accounts {
		if other.Code == a.Code {
			return errs.ErrCodeExists
		}
	}
	s.accounts[a.ID] = a
	return nil
}

func (s *Store) accountsLocked() []ledger.Account {
	out := make([]ledger.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (s *Store) entryLocked(id uuid.UUID) ledger.JournalEntry {
	return copyEntry(s.entries[s.entryIdx[id]])
}

func copyEntry(e ledger.JournalEntry) ledger.JournalEntry {
	e.Lines = append([]ledger.JournalLine(nil), e.Lines...)
	if e.ReversedBy != nil {
		id := *e.ReversedBy
		e.ReversedBy = &id
	}
	if e.ReversalOf != nil {
		id := *e.ReversalOf
		e.ReversalOf = &id
	}
	return e
}
