package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tinoosan/retail-ledger/internal/chart"
	"github.com/tinoosan/retail-ledger/internal/ledger"
)

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

// readyz reports whether the storage backend answers.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ready(ctx); err != nil {
		s.log.Warn("readiness check failed", "err", err)
		writeErr(w, http.StatusServiceUnavailable, "storage unavailable", "not_ready")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) listTypes(w http.ResponseWriter, r *http.Request) {
	toJSON(w, http.StatusOK, chart.Types())
}

// listSubtypes accepts ?type= as a type name or numeric id.
func (s *Server) listSubtypes(w http.ResponseWriter, r *http.Request) {
	var filter *ledger.AccountType
	if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
		t := ledger.AccountType(strings.ToLower(raw))
		if id, err := strconv.Atoi(raw); err == nil {
			t, _ = chart.TypeByID(id)
		}
		if !t.Valid() {
			badRequest(w, "invalid type")
			return
		}
		filter = &t
	}
	subs := chart.Subtypes(filter)
	out := make([]subtypeResponse, 0, len(subs))
	for _, st := range subs {
		out = append(out, subtypeResponse{ID: st.ID, Type: st.Type, Name: st.Name})
	}
	toJSON(w, http.StatusOK, out)
}

// initialize seeds the configured chart. Existing codes are left alone, so
// calling it again is harmless.
func (s *Server) initialize(w http.ResponseWriter, r *http.Request) {
	res, err := s.accounts.Initialize(r.Context(), s.chart)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	created := make([]accountResponse, 0, len(res.Created))
	for _, a := range res.Created {
		created = append(created, toAccountResponse(a))
	}
	msg := "chart of accounts initialized"
	if len(created) == 0 {
		msg = "chart of accounts already initialized"
	}
	toJSON(w, http.StatusOK, initializeResponse{Message: msg, Created: created, Skipped: res.Skipped})
}
