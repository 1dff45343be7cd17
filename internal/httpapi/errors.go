package httpapi

import (
	"errors"
	"net/http"

	"github.com/tinoosan/retail-ledger/internal/errs"
)

// errorResponse is the standard error payload for the API.
type errorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func writeErr(w http.ResponseWriter, status int, msg, code string) {
	toJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeErr(w, http.StatusBadRequest, msg, "bad_request")
}

// mappedError is how a domain error is presented to clients.
type mappedError struct {
	status int
	code   string
}

// errorTable is checked in order; more specific sentinels come first.
var errorTable = []struct {
	target error
	mappedError
}{
	{errs.ErrUnbalancedEntry, mappedError{http.StatusUnprocessableEntity, "unbalanced_entry"}},
	{errs.ErrTooFewLines, mappedError{http.StatusUnprocessableEntity, "too_few_lines"}},
	{errs.ErrInvalidAmount, mappedError{http.StatusUnprocessableEntity, "invalid_amount"}},
	{errs.ErrMixedCurrency, mappedError{http.StatusUnprocessableEntity, "mixed_currency"}},
	{errs.ErrMalformedEntry, mappedError{http.StatusUnprocessableEntity, "malformed_entry"}},
	{errs.ErrAccountDisabled, mappedError{http.StatusUnprocessableEntity, "account_disabled"}},
	{errs.ErrAccountNotFound, mappedError{http.StatusNotFound, "account_not_found"}},
	{errs.ErrNotFound, mappedError{http.StatusNotFound, "not_found"}},
	{errs.ErrPostedEntryImmutable, mappedError{http.StatusConflict, "posted_entry_immutable"}},
	{errs.ErrAlreadyReversed, mappedError{http.StatusConflict, "already_reversed"}},
	{errs.ErrIdempotencyKeyReused, mappedError{http.StatusConflict, "idempotency_key_reused"}},
	{errs.ErrAccountInUse, mappedError{http.StatusConflict, "account_in_use"}},
	{errs.ErrCodeExists, mappedError{http.StatusConflict, "code_exists"}},
	{errs.ErrSystemAccount, mappedError{http.StatusConflict, "system_account"}},
	{errs.ErrImmutable, mappedError{http.StatusConflict, "immutable_field"}},
	{errs.ErrConflict, mappedError{http.StatusConflict, "conflict"}},
	{errs.ErrPostingFailed, mappedError{http.StatusServiceUnavailable, "posting_failed"}},
	{errs.ErrInvalid, mappedError{http.StatusBadRequest, "validation_error"}},
	{errs.ErrUnprocessable, mappedError{http.StatusUnprocessableEntity, "validation_error"}},
	{errs.ErrForbidden, mappedError{http.StatusForbidden, "forbidden"}},
}

func mapError(err error) mappedError {
	for _, e := range errorTable {
		if errors.Is(err, e.target) {
			return e.mappedError
		}
	}
	return mappedError{http.StatusInternalServerError, "internal"}
}

// writeServiceErr maps a service error to a status code and payload. An
// account that a posting line references but that does not exist is a
// problem with the request body, not the URL, so it becomes a 422.
func (s *Server) writeServiceErr(w http.ResponseWriter, r *http.Request, err error) {
	m := mapError(err)
	resp := errorResponse{Error: err.Error(), Code: m.code}

	var le *errs.LineError
	if errors.As(err, &le) {
		resp.Details = map[string]any{"line": le.Index}
		if m.status == http.StatusNotFound {
			m.status = http.StatusUnprocessableEntity
		}
	}
	var ue *errs.UnbalancedError
	if errors.As(err, &ue) {
		resp.Details = map[string]any{
			"total_debit":  formatUnits(ue.TotalDebit, ue.Currency),
			"total_credit": formatUnits(ue.TotalCredit, ue.Currency),
			"difference":   formatUnits(ue.TotalDebit-ue.TotalCredit, ue.Currency),
		}
	}
	if m.status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "code", m.code, "err", err)
		if m.status == http.StatusInternalServerError {
			resp.Error = "internal error"
		}
	}
	toJSON(w, m.status, resp)
}
