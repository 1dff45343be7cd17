package errs

import (
	"errors"
	"fmt"
)

// Common sentinel errors for cross-layer signaling.
var (
	ErrNotFound  = errors.New("not_found")
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
	ErrInvalid   = errors.New("invalid")
	// ErrUnprocessable is used for semantic validation failures (HTTP 422)
	ErrUnprocessable = errors.New("unprocessable")
	// ErrSystemAccount indicates a system account cannot be modified or removed
	ErrSystemAccount = errors.New("system_account")
	// ErrImmutable indicates an attempt to change immutable fields
	ErrImmutable = errors.New("immutable")

	ErrAccountNotFound = fmt.Errorf("account not found: %w", ErrNotFound)
	ErrAccountDisabled = errors.New("account is disabled")
	// ErrAccountInUse is returned when removing an account that has ledger history.
	ErrAccountInUse = fmt.Errorf("account has ledger history: %w", ErrConflict)
	ErrCodeExists   = fmt.Errorf("account code already exists: %w", ErrConflict)

	ErrMalformedEntry = errors.New("malformed entry")
	ErrTooFewLines    = fmt.Errorf("at least 2 lines with one debit and one credit: %w", ErrMalformedEntry)
	ErrInvalidAmount  = fmt.Errorf("amount must be > 0: %w", ErrMalformedEntry)
	// ErrAmountOverflow is returned when an amount or a running total leaves the int64 minor-unit range.
	ErrAmountOverflow  = fmt.Errorf("amount out of range: %w", ErrInvalidAmount)
	ErrMixedCurrency   = errors.New("currency mismatch")
	ErrUnbalancedEntry = errors.New("sum(debits) must equal sum(credits)")

	ErrPostingFailed        = errors.New("posting failed")
	ErrPostedEntryImmutable = fmt.Errorf("posted entries cannot be deleted; post a reversal: %w", ErrConflict)
	ErrAlreadyReversed      = fmt.Errorf("entry already reversed: %w", ErrConflict)
	ErrIdempotencyKeyReused = fmt.Errorf("idempotency key already used for a different entry: %w", ErrConflict)

	// ErrImbalanceDetected is informational: statements that fail their self-check
	// are still returned, flagged as not balanced.
	ErrImbalanceDetected = errors.New("ledger imbalance detected")
)

// UnbalancedError carries both totals (minor units) of a rejected entry so the
// caller can show the mismatch.
type UnbalancedError struct {
	Currency    string
	TotalDebit  int64
	TotalCredit int64
}

func (e *UnbalancedError) Error() string {
	return fmt.Sprintf("%s: debit=%d credit=%d", ErrUnbalancedEntry.Error(), e.TotalDebit, e.TotalCredit)
}

func (e *UnbalancedError) Is(target error) bool { return target == ErrUnbalancedEntry }

// LineError attributes a validation failure to a single line of an entry.
type LineError struct {
	Index int
	Err   error
}

func (e *LineError) Error() string { return fmt.Sprintf("line[%d]: %v", e.Index, e.Err) }

func (e *LineError) Unwrap() error { return e.Err }

// PostingError wraps a storage failure raised while committing an entry.
type PostingError struct {
	Err error
}

func (e *PostingError) Error() string { return ErrPostingFailed.Error() + ": " + e.Err.Error() }

func (e *PostingError) Unwrap() []error { return []error{ErrPostingFailed, e.Err} }
