package ledger

import (
	"time"

	"github.com/google/uuid"
)

// DateOnly truncates t to midnight UTC; transaction dates carry no time of day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EntryFilter narrows entry listings. Date bounds are inclusive.
type EntryFilter struct {
	From      *time.Time
	To        *time.Time
	AccountID *uuid.UUID
}

// InRange reports whether date falls inside the inclusive [from, to] window.
func InRange(date time.Time, from, to *time.Time) bool {
	d := DateOnly(date)
	if from != nil && d.Before(DateOnly(*from)) {
		return false
	}
	if to != nil && d.After(DateOnly(*to)) {
		return false
	}
	return true
}

// Matches reports whether e satisfies the filter.
func (f EntryFilter) Matches(e JournalEntry) bool {
	if !InRange(e.Date, f.From, f.To) {
		return false
	}
	if f.AccountID == nil {
		return true
	}
	for _, ln := range e.Lines {
		if ln.AccountID == *f.AccountID {
			return true
		}
	}
	return false
}

// Snapshot is a consistent read of the chart and the per-account activity
// posted inside a date window.
type Snapshot struct {
	Accounts []Account
	Activity map[uuid.UUID]AccountBalance
}
