// Package httpapi wires the HTTP surface of the ledger service.
// It keeps handlers thin, delegating business rules to the service layer.
package httpapi

import (
	"log/slog"
	"net/http"
	"strings"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tinoosan/retail-ledger/internal/chart"
	"github.com/tinoosan/retail-ledger/internal/service/account"
	"github.com/tinoosan/retail-ledger/internal/service/journal"
	"github.com/tinoosan/retail-ledger/internal/service/report"
)

// Options tune the server. Zero values fall back to defaults.
type Options struct {
	// Currency is the single ledger currency (ISO 4217).
	Currency string
	// Chart is seeded by POST /accounting/initialize.
	Chart []chart.AccountDef
	// RateLimitRPS limits write routes; <= 0 disables limiting.
	RateLimitRPS   float64
	RateLimitBurst int
}

// Server wires handlers and middleware using Chi.
type Server struct {
	accounts account.Service
	journal  journal.Service
	reports  report.Service
	store    Store
	currency string
	chart    []chart.AccountDef
	log      *slog.Logger
	rt       *chi.Mux
}

// New constructs the HTTP server with routes and middleware.
func New(store Store, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	currency := strings.ToUpper(opts.Currency)
	if currency == "" {
		currency = "USD"
	}
	defs := opts.Chart
	if len(defs) == 0 {
		defs = chart.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(metricsMiddleware)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))

	s := &Server{
		accounts: account.New(store, store, logger),
		journal:  journal.New(store, store, currency, logger),
		reports:  report.New(store, currency, logger, observeImbalance),
		store:    store,
		currency: currency,
		chart:    defs,
		log:      logger,
		rt:       r,
	}
	s.routes(rateLimit(opts.RateLimitRPS, opts.RateLimitBurst))
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

// routes declares the public HTTP API endpoints and attaches per-route middleware.
func (s *Server) routes(limit func(http.Handler) http.Handler) {
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Handle("/metrics", metricsHandler())

	s.rt.Route("/accounting", func(r chi.Router) {
		r.Get("/types", s.listTypes)
		r.Get("/subtypes", s.listSubtypes)

		r.With(s.validateListAccounts()).Get("/accounts", s.listAccounts)
		r.Get("/accounts/{id}", s.getAccount)
		r.With(s.validateAsOf()).Get("/accounts/{id}/balance", s.getAccountBalance)

		r.With(s.validateListEntries()).Get("/journal-entries", s.listEntries)
		r.Get("/journal-entries/{id}", s.getEntry)

		r.With(s.validateAsOf()).Get("/reports/trial-balance", s.trialBalance)
		r.With(s.validateDateRange()).Get("/reports/income-statement", s.incomeStatement)
		r.With(s.validateAsOf()).Get("/reports/balance-sheet", s.balanceSheet)

		r.Group(func(w chi.Router) {
			w.Use(limit)
			w.With(requireJSON, s.validatePostAccount()).Post("/accounts", s.postAccount)
			w.With(requireJSON, s.validateUpdateAccount()).Put("/accounts/{id}", s.updateAccount)
			w.Delete("/accounts/{id}", s.deleteAccount)
			w.With(requireJSON, s.validatePostEntry()).Post("/journal-entries", s.postEntry)
			w.Delete("/journal-entries/{id}", s.deleteEntry)
			w.With(s.validateReverseEntry()).Post("/journal-entries/{id}/reverse", s.reverseEntry)
			w.Post("/initialize", s.initialize)
		})
	})
}
