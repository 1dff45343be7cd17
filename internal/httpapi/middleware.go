package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tinoosan/retail-ledger/internal/chart"
	"github.com/tinoosan/retail-ledger/internal/ledger"
	"github.com/tinoosan/retail-ledger/internal/service/account"
)

type ctxKey string

const (
	ctxKeyPostEntry     ctxKey = "validatedPostEntry"
	ctxKeyListEntries   ctxKey = "validatedListEntries"
	ctxKeyReverseEntry  ctxKey = "validatedReverseEntry"
	ctxKeyPostAccount   ctxKey = "validatedPostAccount"
	ctxKeyUpdateAccount ctxKey = "validatedUpdateAccount"
	ctxKeyListAccounts  ctxKey = "validatedListAccounts"
	ctxKeyReportQuery   ctxKey = "validatedReportQuery"
)

// validatePostEntry decodes POST /journal-entries, runs the validator and
// stores the candidate entry in the request context.
func (s *Server) validatePostEntry() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req postEntryRequest
			if err := decodeJSON(w, r, &req); err != nil {
				badRequest(w, bodyErr(err))
				return
			}
			e, err := toEntryDomain(req, s.currency)
			if err == nil {
				err = s.journal.Validate(r.Context(), e)
			}
			if err != nil {
				journalPostingsTotal.WithLabelValues(outcomeRejected).Inc()
				s.writeServiceErr(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPostEntry, e)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateListEntries parses start_date, end_date and account_id.
func (s *Server) validateListEntries() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			rng, ok := parseRange(w, q.Get("start_date"), q.Get("end_date"))
			if !ok {
				return
			}
			f := ledger.EntryFilter{From: rng.Start, To: rng.End}
			if raw := q.Get("account_id"); raw != "" {
				id, err := uuid.Parse(raw)
				if err != nil {
					badRequest(w, "invalid account_id")
					return
				}
				f.AccountID = &id
			}
			ctx := context.WithValue(r.Context(), ctxKeyListEntries, f)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateReverseEntry parses the optional reversal body.
func (s *Server) validateReverseEntry() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req reverseEntryRequest
			if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
				badRequest(w, err.Error())
				return
			}
			if req.Date != "" {
				if _, err := parseDate(req.Date); err != nil {
					badRequest(w, err.Error())
					return
				}
			}
			ctx := context.WithValue(r.Context(), ctxKeyReverseEntry, req)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validatePostAccount decodes POST /accounts and checks it with the registry rules.
func (s *Server) validatePostAccount() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req postAccountRequest
			if err := decodeJSON(w, r, &req); err != nil {
				badRequest(w, bodyErr(err))
				return
			}
			typ, ok := chart.TypeByID(req.TypeID)
			if !ok {
				badRequest(w, "unknown type_id "+strconv.Itoa(req.TypeID))
				return
			}
			in := ledger.Account{
				Code:        strings.TrimSpace(req.Code),
				Name:        strings.TrimSpace(req.Name),
				Type:        typ,
				SubtypeID:   req.SubTypeID,
				Description: req.Description,
				Enabled:     req.IsEnabled == nil || *req.IsEnabled,
			}
			if err := s.accounts.ValidateCreate(in); err != nil {
				s.writeServiceErr(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPostAccount, in)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateUpdateAccount decodes a partial PUT /accounts/{id} body into a Patch.
func (s *Server) validateUpdateAccount() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req updateAccountRequest
			if err := decodeJSON(w, r, &req); err != nil {
				badRequest(w, bodyErr(err))
				return
			}
			p := account.Patch{
				Code:        req.Code,
				Name:        req.Name,
				SubtypeID:   req.SubTypeID,
				Description: req.Description,
				Enabled:     req.IsEnabled,
			}
			if req.TypeID != nil {
				typ, ok := chart.TypeByID(*req.TypeID)
				if !ok {
					badRequest(w, "unknown type_id "+strconv.Itoa(*req.TypeID))
					return
				}
				p.Type = &typ
			}
			ctx := context.WithValue(r.Context(), ctxKeyUpdateAccount, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateListAccounts parses type, type_id, sub_type_id and is_enabled filters.
func (s *Server) validateListAccounts() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			var f account.Filter
			if raw := q.Get("type"); raw != "" {
				t := ledger.AccountType(strings.ToLower(raw))
				if !t.Valid() {
					badRequest(w, "invalid type")
					return
				}
				f.Type = &t
			}
			if raw := q.Get("type_id"); raw != "" {
				id, _ := strconv.Atoi(raw)
				t, ok := chart.TypeByID(id)
				if !ok {
					badRequest(w, "invalid type_id")
					return
				}
				f.Type = &t
			}
			if raw := q.Get("sub_type_id"); raw != "" {
				id, err := strconv.Atoi(raw)
				if err != nil {
					badRequest(w, "invalid sub_type_id")
					return
				}
				f.SubtypeID = &id
			}
			if raw := q.Get("is_enabled"); raw != "" {
				b, err := strconv.ParseBool(raw)
				if err != nil {
					badRequest(w, "invalid is_enabled")
					return
				}
				f.Enabled = &b
			}
			ctx := context.WithValue(r.Context(), ctxKeyListAccounts, f)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateAsOf parses the end_date (or as_of) cut-off used by point-in-time reports.
func (s *Server) validateAsOf() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			raw := q.Get("end_date")
			if raw == "" {
				raw = q.Get("as_of")
			}
			rng, ok := parseRange(w, "", raw)
			if !ok {
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyReportQuery, rng)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateDateRange parses start_date and end_date for period reports.
func (s *Server) validateDateRange() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			rng, ok := parseRange(w, q.Get("start_date"), q.Get("end_date"))
			if !ok {
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyReportQuery, rng)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseRange(w http.ResponseWriter, start, end string) (reportQuery, bool) {
	var q reportQuery
	for _, p := range []struct {
		name string
		raw  string
		dst  **time.Time
	}{{"start_date", start, &q.Start}, {"end_date", end, &q.End}} {
		if p.raw == "" {
			continue
		}
		t, err := parseDate(p.raw)
		if err != nil {
			badRequest(w, p.name+": "+err.Error())
			return q, false
		}
		*p.dst = &t
	}
	if q.Start != nil && q.End != nil && q.Start.After(*q.End) {
		badRequest(w, "start_date must not be after end_date")
		return q, false
	}
	return q, true
}

// pathID parses the {id} URL parameter, writing 400 when malformed.
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func bodyErr(err error) string {
	if errors.Is(err, io.EOF) {
		return "request body is required"
	}
	return err.Error()
}

func validated[T any](w http.ResponseWriter, r *http.Request, key ctxKey) (T, bool) {
	v, ok := r.Context().Value(key).(T)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "validated request missing", "internal")
	}
	return v, ok
}
