package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/tinoosan/retail-ledger/internal/ledger"
)

const idempotencyHeader = "Idempotency-Key"

func (s *Server) postEntry(w http.ResponseWriter, r *http.Request) {
	e, ok := validated[ledger.JournalEntry](w, r, ctxKeyPostEntry)
	if !ok {
		return
	}
	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if len(key) > 128 {
		badRequest(w, idempotencyHeader+" must be at most 128 characters")
		return
	}
	res, err := s.journal.Post(r.Context(), e, key)
	if err != nil {
		outcome := outcomeRejected
		if m := mapError(err); m.status >= http.StatusInternalServerError {
			outcome = outcomeFailed
		}
		journalPostingsTotal.WithLabelValues(outcome).Inc()
		s.writeServiceErr(w, r, err)
		return
	}
	if res.Replayed {
		journalPostingsTotal.WithLabelValues(outcomeReplayed).Inc()
		w.Header().Set("Idempotent-Replayed", "true")
		toJSON(w, http.StatusOK, toEntryResponse(res.Entry))
		return
	}
	journalPostingsTotal.WithLabelValues(outcomePosted).Inc()
	toJSON(w, http.StatusCreated, toEntryResponse(res.Entry))
}

func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	f, ok := validated[ledger.EntryFilter](w, r, ctxKeyListEntries)
	if !ok {
		return
	}
	entries, err := s.journal.List(r.Context(), f)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	e, err := s.journal.Get(r.Context(), id)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toEntryResponse(e))
}

// deleteEntry always refuses: posted entries are corrected by reversal.
func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.writeServiceErr(w, r, s.journal.Delete(r.Context(), id))
}

func (s *Server) reverseEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, ok := validated[reverseEntryRequest](w, r, ctxKeyReverseEntry)
	if !ok {
		return
	}
	var date time.Time
	if req.Date != "" {
		date, _ = parseDate(req.Date)
	}
	rev, err := s.journal.Reverse(r.Context(), id, date, req.Description)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	journalPostingsTotal.WithLabelValues(outcomePosted).Inc()
	toJSON(w, http.StatusCreated, toEntryResponse(rev))
}
