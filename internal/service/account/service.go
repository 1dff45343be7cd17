// Package account implements the account registry: the chart of accounts that
// journal lines post to. Codes are unique, subtypes stay within their type, and
// accounts with ledger history are disabled rather than deleted.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/retail-ledger/internal/chart"
	"github.com/tinoosan/retail-ledger/internal/errs"
	"github.com/tinoosan/retail-ledger/internal/ledger"
)

type Repo interface {
	ListAccounts(ctx context.Context) ([]ledger.Account, error)
	GetAccount(ctx context.Context, accountID uuid.UUID) (ledger.Account, error)
	AccountByCode(ctx context.Context, code string) (ledger.Account, error)
	AccountHasActivity(ctx context.Context, accountID uuid.UUID) (bool, error)
}

type Writer interface {
	CreateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error)
	UpdateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error)
	DeleteAccount(ctx context.Context, accountID uuid.UUID) error
}

// TxWriter creates accounts inside a storage transaction.
type TxWriter interface {
	CreateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TxBeginner is implemented by writers that can seed a chart atomically.
type TxBeginner interface {
	BeginAccountsTx(ctx context.Context) (TxWriter, error)
}

// Filter narrows List; nil fields match everything.
type Filter struct {
	Type      *ledger.AccountType
	SubtypeID *int
	Enabled   *bool
}

// Patch carries the mutable fields of an account; nil means unchanged.
type Patch struct {
	Code        *string
	Name        *string
	Type        *ledger.AccountType
	SubtypeID   *int
	Description *string
	Enabled     *bool
}

// InitResult reports what Initialize did.
type InitResult struct {
	Created []ledger.Account
	Skipped int
}

type Service interface {
	ValidateCreate(a ledger.Account) error
	Create(ctx context.Context, a ledger.Account) (ledger.Account, error)
	Get(ctx context.Context, accountID uuid.UUID) (ledger.Account, error)
	GetByCode(ctx context.Context, code string) (ledger.Account, error)
	List(ctx context.Context, f Filter) ([]ledger.Account, error)
	Classify(a ledger.Account) ledger.Classification
	Update(ctx context.Context, accountID uuid.UUID, p Patch) (ledger.Account, error)
	Delete(ctx context.Context, accountID uuid.UUID) error
	Initialize(ctx context.Context, defs []chart.AccountDef) (InitResult, error)
}

type service struct {
	repo   Repo
	writer Writer
	log    *slog.Logger
	now    func() time.Time
}

func New(repo Repo, writer Writer, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{repo: repo, writer: writer, log: logger, now: func() time.Time { return time.Now().UTC() }}
}

var reCode = regexp.MustCompile(`^[0-9A-Za-z][0-9A-Za-z._-]{0,19}$`)

// ValidCode reports whether s is an acceptable account code.
func ValidCode(s string) bool { return reCode.MatchString(s) }

func (s *service) ValidateCreate(a ledger.Account) error {
	if !ValidCode(a.Code) {
		return fmt.Errorf("invalid account code %q: %w", a.Code, errs.ErrInvalid)
	}
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("name is required: %w", errs.ErrInvalid)
	}
	if !a.Type.Valid() {
		return fmt.Errorf("invalid account type %q: %w", a.Type, errs.ErrInvalid)
	}
	if !chart.BelongsTo(a.SubtypeID, a.Type) {
		return fmt.Errorf("subtype %d does not belong to type %s: %w", a.SubtypeID, a.Type, errs.ErrInvalid)
	}
	return nil
}

func (s *service) Create(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	a.Code = strings.TrimSpace(a.Code)
	a.Name = strings.TrimSpace(a.Name)
	if err := s.ValidateCreate(a); err != nil {
		return ledger.Account{}, err
	}
	if _, err := s.repo.AccountByCode(ctx, a.Code); err == nil {
		return ledger.Account{}, errs.ErrCodeExists
	} else if !errors.Is(err, errs.ErrNotFound) {
		return ledger.Account{}, err
	}
	acc := ledger.Account{
		ID:          uuid.New(),
		Code:        a.Code,
		Name:        a.Name,
		Type:        a.Type,
		SubtypeID:   a.SubtypeID,
		Description: a.Description,
		Enabled:     a.Enabled,
		System:      a.System,
		CreatedAt:   s.now(),
	}
	created, err := s.writer.CreateAccount(ctx, acc)
	if err != nil {
		return ledger.Account{}, err
	}
	s.log.Info("account created", "account_id", created.ID.String(), "code", created.Code, "type", string(created.Type))
	return created, nil
}

func (s *service) Get(ctx context.Context, accountID uuid.UUID) (ledger.Account, error) {
	if accountID == uuid.Nil {
		return ledger.Account{}, errs.ErrInvalid
	}
	acc, err := s.repo.GetAccount(ctx, accountID)
	if errors.Is(err, errs.ErrNotFound) {
		return ledger.Account{}, errs.ErrAccountNotFound
	}
	return acc, err
}

func (s *service) GetByCode(ctx context.Context, code string) (ledger.Account, error) {
	acc, err := s.repo.AccountByCode(ctx, strings.TrimSpace(code))
	if errors.Is(err, errs.ErrNotFound) {
		return ledger.Account{}, errs.ErrAccountNotFound
	}
	return acc, err
}

// List returns accounts matching f ordered by code ascending.
func (s *service) List(ctx context.Context, f Filter) ([]ledger.Account, error) {
	all, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Account, 0, len(all))
	for _, a := range all {
		if f.Type != nil && a.Type != *f.Type {
			continue
		}
		if f.SubtypeID != nil && a.SubtypeID != *f.SubtypeID {
			continue
		}
		if f.Enabled != nil && a.Enabled != *f.Enabled {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *service) Classify(a ledger.Account) ledger.Classification { return a.Classify() }

// Update applies p. Code and type are frozen once the account has postings;
// system accounts accept no changes besides description.
func (s *service) Update(ctx context.Context, accountID uuid.UUID, p Patch) (ledger.Account, error) {
	current, err := s.Get(ctx, accountID)
	if err != nil {
		return ledger.Account{}, err
	}
	next := current
	if p.Code != nil {
		next.Code = strings.TrimSpace(*p.Code)
	}
	if p.Name != nil {
		next.Name = strings.TrimSpace(*p.Name)
	}
	if p.Type != nil {
		next.Type = *p.Type
	}
	if p.SubtypeID != nil {
		next.SubtypeID = *p.SubtypeID
	}
	if p.Description != nil {
		next.Description = *p.Description
	}
	if p.Enabled != nil {
		next.Enabled = *p.Enabled
	}

	if current.System && (next.Code != current.Code || next.Type != current.Type || next.Enabled != current.Enabled || next.Name != current.Name) {
		return ledger.Account{}, errs.ErrSystemAccount
	}
	if next.Code != current.Code || next.Type != current.Type {
		used, err := s.repo.AccountHasActivity(ctx, accountID)
		if err != nil {
			return ledger.Account{}, err
		}
		if used {
			return ledger.Account{}, errs.ErrImmutable
		}
	}
	if err := s.ValidateCreate(next); err != nil {
		return ledger.Account{}, err
	}
	if next.Code != current.Code {
		if other, err := s.repo.AccountByCode(ctx, next.Code); err == nil && other.ID != current.ID {
			return ledger.Account{}, errs.ErrCodeExists
		} else if err != nil && !errors.Is(err, errs.ErrNotFound) {
			return ledger.Account{}, err
		}
	}
	updated, err := s.writer.UpdateAccount(ctx, next)
	if err != nil {
		return ledger.Account{}, err
	}
	if current.Enabled && !updated.Enabled {
		s.log.Info("account disabled", "account_id", updated.ID.String(), "code", updated.Code)
	}
	return updated, nil
}

// Delete removes an account that was never posted to. Accounts with history
// fail with ErrAccountInUse and should be disabled instead.
func (s *service) Delete(ctx context.Context, accountID uuid.UUID) error {
	acc, err := s.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if acc.System {
		return errs.ErrSystemAccount
	}
	used, err := s.repo.AccountHasActivity(ctx, accountID)
	if err != nil {
		return err
	}
	if used {
		return errs.ErrAccountInUse
	}
	if err := s.writer.DeleteAccount(ctx, accountID); err != nil {
		return err
	}
	s.log.Info("account deleted", "account_id", acc.ID.String(), "code", acc.Code)
	return nil
}

// Initialize seeds defs, skipping codes that already exist. Running it twice is a no-op.
func (s *service) Initialize(ctx context.Context, defs []chart.AccountDef) (InitResult, error) {
	var res InitResult
	existing, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return res, err
	}
	have := make(map[string]struct{}, len(existing))
	for _, a := range existing {
		have[a.Code] = struct{}{}
	}
	pending := make([]ledger.Account, 0, len(defs))
	for _, d := range defs {
		if _, ok := have[d.Code]; ok {
			res.Skipped++
			continue
		}
		acc := ledger.Account{Code: d.Code, Name: d.Name, Type: d.Type, SubtypeID: d.SubtypeID, Description: d.Description, System: d.System, Enabled: true}
		if err := s.ValidateCreate(acc); err != nil {
			return res, fmt.Errorf("chart account %s: %w", d.Code, err)
		}
		acc.ID = uuid.New()
		acc.CreatedAt = s.now()
		pending = append(pending, acc)
		have[d.Code] = struct{}{}
	}
	if len(pending) == 0 {
		return res, nil
	}

	if b, ok := s.writer.(TxBeginner); ok {
		tx, err := b.BeginAccountsTx(ctx)
		if err != nil {
			return res, err
		}
		for _, a := range pending {
			if _, err := tx.CreateAccount(ctx, a); err != nil {
				_ = tx.Rollback(ctx)
				return InitResult{}, err
			}
		}
		if err := tx.Commit(ctx); err != nil {
			return InitResult{}, err
		}
		res.Created = pending
	} else {
		for _, a := range pending {
			created, err := s.writer.CreateAccount(ctx, a)
			if errors.Is(err, errs.ErrCodeExists) {
				res.Skipped++
				continue
			}
			if err != nil {
				return res, err
			}
			res.Created = append(res.Created, created)
		}
	}
	s.log.Info("chart of accounts initialized", "created", len(res.Created), "skipped", res.Skipped)
	return res, nil
}
