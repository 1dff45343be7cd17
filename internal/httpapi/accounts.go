// Account handlers: the chart of accounts and per-account balances.
package httpapi

import (
	"net/http"

	"github.com/tinoosan/retail-ledger/internal/ledger"
	"github.com/tinoosan/retail-ledger/internal/service/account"
)

func (s *Server) postAccount(w http.ResponseWriter, r *http.Request) {
	in, ok := validated[ledger.Account](w, r, ctxKeyPostAccount)
	if !ok {
		return
	}
	acc, err := s.accounts.Create(r.Context(), in)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusCreated, toAccountResponse(acc))
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	f, ok := validated[account.Filter](w, r, ctxKeyListAccounts)
	if !ok {
		return
	}
	accs, err := s.accounts.List(r.Context(), f)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	out := make([]accountResponse, 0, len(accs))
	for _, a := range accs {
		out = append(out, toAccountResponse(a))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	acc, err := s.accounts.Get(r.Context(), id)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toAccountResponse(acc))
}

func (s *Server) updateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, ok := validated[account.Patch](w, r, ctxKeyUpdateAccount)
	if !ok {
		return
	}
	acc, err := s.accounts.Update(r.Context(), id, p)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toAccountResponse(acc))
}

// deleteAccount removes an unused account. Accounts with postings answer 409
// and should be disabled through PUT instead.
func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.accounts.Delete(r.Context(), id); err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getAccountBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	q, ok := validated[reportQuery](w, r, ctxKeyReportQuery)
	if !ok {
		return
	}
	acc, err := s.accounts.Get(r.Context(), id)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	bal, err := s.journal.Balance(r.Context(), id, q.End)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, balanceResponse{
		AccountID:   acc.ID,
		Code:        acc.Code,
		AsOf:        formatDate(q.End),
		Currency:    s.currency,
		NormalSide:  acc.Classify().NormalSide,
		TotalDebit:  formatUnits(bal.Debit, s.currency),
		TotalCredit: formatUnits(bal.Credit, s.currency),
		Balance:     formatUnits(bal.Net(acc.Type), s.currency),
	})
}
