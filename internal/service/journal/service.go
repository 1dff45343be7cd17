// Package journal validates and posts double-entry journal entries.
package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/retail-ledger/internal/errs"
	"github.com/tinoosan/retail-ledger/internal/ledger"
)

// Repo defines read operations needed by the service.
type Repo interface {
	AccountsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error)
	ListEntries(ctx context.Context, f ledger.EntryFilter) ([]ledger.JournalEntry, error)
	GetEntry(ctx context.Context, entryID uuid.UUID) (ledger.JournalEntry, error)
	AccountBalance(ctx context.Context, accountID uuid.UUID, asOf *time.Time) (ledger.AccountBalance, error)
}

// Writer appends entries to the ledger. Implementations assign the next journal
// number and persist header, lines and balance deltas as one unit.
type Writer interface {
	// PostEntry stores e. When idemKey was used before, the entry stored under it
	// is returned with replayed set and nothing is written.
	PostEntry(ctx context.Context, e ledger.JournalEntry, idemKey string) (stored ledger.JournalEntry, replayed bool, err error)
	// PostReversal stores rev and marks *rev.ReversalOf as reversed in the same
	// unit of work; ErrAlreadyReversed if another reversal won.
	PostReversal(ctx context.Context, rev ledger.JournalEntry) (ledger.JournalEntry, error)
}

// PostResult is the outcome of Post.
type PostResult struct {
	Entry    ledger.JournalEntry
	Replayed bool
}

type Service interface {
	Validate(ctx context.Context, e ledger.JournalEntry) error
	Post(ctx context.Context, e ledger.JournalEntry, idemKey string) (PostResult, error)
	Get(ctx context.Context, entryID uuid.UUID) (ledger.JournalEntry, error)
	List(ctx context.Context, f ledger.EntryFilter) ([]ledger.JournalEntry, error)
	Reverse(ctx context.Context, entryID uuid.UUID, date time.Time, description string) (ledger.JournalEntry, error)
	Delete(ctx context.Context, entryID uuid.UUID) error
	Balance(ctx context.Context, accountID uuid.UUID, asOf *time.Time) (ledger.AccountBalance, error)
}

type service struct {
	repo     Repo
	writer   Writer
	currency string
	log      *slog.Logger
	now      func() time.Time
}

// New returns a journal service for a single-currency ledger.
func New(repo Repo, writer Writer, currency string, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		repo:     repo,
		writer:   writer,
		currency: strings.ToUpper(currency),
		log:      logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Validate checks e without touching the ledger. Structural problems are
// reported first so a caller sees the cheapest fix.
func (s *service) Validate(ctx context.Context, e ledger.JournalEntry) error {
	if e.Date.IsZero() {
		return fmt.Errorf("date is required: %w", errs.ErrMalformedEntry)
	}
	if strings.TrimSpace(e.Description) == "" {
		return fmt.Errorf("description is required: %w", errs.ErrMalformedEntry)
	}
	curr := e.Currency
	if curr == "" {
		curr = s.currency
	}
	if s.currency != "" && !strings.EqualFold(curr, s.currency) {
		return fmt.Errorf("entry currency %s, ledger currency %s: %w", curr, s.currency, errs.ErrMixedCurrency)
	}
	if len(e.Lines) < 2 {
		return errs.ErrTooFewLines
	}

	var hasDebit, hasCredit bool
	ids := make([]uuid.UUID, 0, len(e.Lines))
	for i, ln := range e.Lines {
		if ln.AccountID == uuid.Nil {
			return &errs.LineError{Index: i, Err: fmt.Errorf("account_id is required: %w", errs.ErrMalformedEntry)}
		}
		if !ln.Side.Valid() {
			return &errs.LineError{Index: i, Err: fmt.Errorf("side must be debit or credit: %w", errs.ErrMalformedEntry)}
		}
		if !strings.EqualFold(ln.Amount.Curr().Code(), curr) {
			return &errs.LineError{Index: i, Err: fmt.Errorf("line currency %s: %w", ln.Amount.Curr().Code(), errs.ErrMixedCurrency)}
		}
		if ln.MinorUnits() <= 0 {
			return &errs.LineError{Index: i, Err: errs.ErrInvalidAmount}
		}
		hasDebit = hasDebit || ln.Side == ledger.SideDebit
		hasCredit = hasCredit || ln.Side == ledger.SideCredit
		ids = append(ids, ln.AccountID)
	}
	if !hasDebit || !hasCredit {
		return errs.ErrTooFewLines
	}

	accounts, err := s.repo.AccountsByIDs(ctx, unique(ids))
	if err != nil {
		return err
	}
	for i, ln := range e.Lines {
		acc, ok := accounts[ln.AccountID]
		if !ok {
			return &errs.LineError{Index: i, Err: errs.ErrAccountNotFound}
		}
		if !acc.Enabled {
			return &errs.LineError{Index: i, Err: fmt.Errorf("account %s: %w", acc.Code, errs.ErrAccountDisabled)}
		}
	}

	debit, credit, err := ledger.Totals(e.Lines)
	if err != nil {
		return err
	}
	if debit != credit {
		return &errs.UnbalancedError{Currency: strings.ToUpper(curr), TotalDebit: debit, TotalCredit: credit}
	}
	return nil
}

// Post validates e and appends it to the ledger. The returned entry carries its
// journal number; a rejected entry leaves no trace.
func (s *service) Post(ctx context.Context, e ledger.JournalEntry, idemKey string) (PostResult, error) {
	if err := s.Validate(ctx, e); err != nil {
		return PostResult{}, err
	}
	entry := s.prepare(e)
	stored, replayed, err := s.writer.PostEntry(ctx, entry, idemKey)
	if err != nil {
		return PostResult{}, postingErr(err)
	}
	if replayed {
		s.log.Info("journal entry replayed", "entry_id", stored.ID.String(), "journal_number", stored.Number)
	} else {
		s.log.Info("journal entry posted", "entry_id", stored.ID.String(), "journal_number", stored.Number, "lines", len(stored.Lines))
	}
	return PostResult{Entry: stored, Replayed: replayed}, nil
}

func (s *service) Get(ctx context.Context, entryID uuid.UUID) (ledger.JournalEntry, error) {
	if entryID == uuid.Nil {
		return ledger.JournalEntry{}, errs.ErrInvalid
	}
	return s.repo.GetEntry(ctx, entryID)
}

// List returns entries matching f ordered by journal number.
func (s *service) List(ctx context.Context, f ledger.EntryFilter) ([]ledger.JournalEntry, error) {
	if f.From != nil && f.To != nil && ledger.DateOnly(*f.From).After(ledger.DateOnly(*f.To)) {
		return nil, fmt.Errorf("start_date after end_date: %w", errs.ErrInvalid)
	}
	return s.repo.ListEntries(ctx, f)
}

// Reverse posts an entry that offsets entryID line by line and links the two.
func (s *service) Reverse(ctx context.Context, entryID uuid.UUID, date time.Time, description string) (ledger.JournalEntry, error) {
	orig, err := s.Get(ctx, entryID)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	if orig.IsReversed() {
		return ledger.JournalEntry{}, errs.ErrAlreadyReversed
	}
	if date.IsZero() {
		date = s.now()
	}
	if strings.TrimSpace(description) == "" {
		description = fmt.Sprintf("Reversal of entry #%d", orig.Number)
	}
	lines := make([]ledger.JournalLine, 0, len(orig.Lines))
	for _, ln := range orig.Lines {
		lines = append(lines, ledger.JournalLine{
			AccountID:   ln.AccountID,
			Description: ln.Description,
			Side:        ln.Side.Opposite(),
			Amount:      ln.Amount,
		})
	}
	candidate := ledger.JournalEntry{
		Date:        date,
		Description: description,
		Reference:   orig.Reference,
		Currency:    orig.Currency,
		Lines:       lines,
	}
	if err := s.Validate(ctx, candidate); err != nil {
		return ledger.JournalEntry{}, err
	}
	rev := s.prepare(candidate)
	origID := orig.ID
	rev.ReversalOf = &origID
	stored, err := s.writer.PostReversal(ctx, rev)
	if err != nil {
		return ledger.JournalEntry{}, postingErr(err)
	}
	s.log.Info("journal entry reversed", "entry_id", orig.ID.String(), "reversal_id", stored.ID.String(), "journal_number", stored.Number)
	return stored, nil
}

// Delete never removes a posted entry; the ledger is append-only.
func (s *service) Delete(ctx context.Context, entryID uuid.UUID) error {
	if _, err := s.Get(ctx, entryID); err != nil {
		return err
	}
	return errs.ErrPostedEntryImmutable
}

func (s *service) Balance(ctx context.Context, accountID uuid.UUID, asOf *time.Time) (ledger.AccountBalance, error) {
	accounts, err := s.repo.AccountsByIDs(ctx, []uuid.UUID{accountID})
	if err != nil {
		return ledger.AccountBalance{}, err
	}
	if _, ok := accounts[accountID]; !ok {
		return ledger.AccountBalance{}, errs.ErrAccountNotFound
	}
	return s.repo.AccountBalance(ctx, accountID, asOf)
}

// prepare assigns identifiers, normalizes the date and computes totals. The
// journal number is left for the writer.
func (s *service) prepare(e ledger.JournalEntry) ledger.JournalEntry {
	curr := strings.ToUpper(e.Currency)
	if curr == "" {
		curr = s.currency
	}
	entryID := uuid.New()
	lines := make([]ledger.JournalLine, len(e.Lines))
	for i, ln := range e.Lines {
		ln.ID = uuid.New()
		ln.EntryID = entryID
		lines[i] = ln
	}
	// Validate has already rejected totals that overflow.
	debit, credit, _ := ledger.Totals(lines)
	return ledger.JournalEntry{
		ID:          entryID,
		Date:        ledger.DateOnly(e.Date),
		Description: strings.TrimSpace(e.Description),
		Reference:   strings.TrimSpace(e.Reference),
		Currency:    curr,
		Lines:       lines,
		TotalDebit:  ledger.Amount(curr, debit),
		TotalCredit: ledger.Amount(curr, credit),
		CreatedAt:   s.now(),
		ReversalOf:  e.ReversalOf,
	}
}

// postingErr passes domain rejections raised inside the writer through and
// wraps everything else as a storage failure.
func postingErr(err error) error {
	for _, known := range []error{errs.ErrAmountOverflow, errs.ErrAccountDisabled, errs.ErrAccountNotFound, errs.ErrAlreadyReversed, errs.ErrNotFound, errs.ErrConflict} {
		if errors.Is(err, known) {
			return err
		}
	}
	var pe *errs.PostingError
	if errors.As(err, &pe) {
		return err
	}
	return &errs.PostingError{Err: err}
}

func unique(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
