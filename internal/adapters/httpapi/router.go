// Package httpapi exposes the raffle ledger over a JSON HTTP API.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"raffleledger/internal/core"
)

const defaultRequestTimeout = 30 * time.Second

// Options tunes the router. Zero values select the defaults.
type Options struct {
	Logger core.Logger
	// Metrics serves GET /metrics; promhttp.Handler() when nil.
	Metrics        http.Handler
	RequestTimeout time.Duration
	// DisableRequestLog drops chi's access log middleware.
	DisableRequestLog bool
}

// Handler serves the ledger endpoints.
type Handler struct {
	svc    *core.Service
	logger core.Logger
}

// NewRouter mounts every ledger route on a chi router.
func NewRouter(svc *core.Service, opts Options) chi.Router {
	h := &Handler{svc: svc, logger: opts.Logger}
	if h.logger == nil {
		h.logger = discardLogger{}
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if !opts.DisableRequestLog {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Get("/healthz", h.health)
	r.Method(http.MethodGet, "/metrics", metrics)

	r.Route("/api", func(r chi.Router) {
		r.Route("/raffles", func(r chi.Router) {
			r.Get("/", h.listRaffles)
			r.Post("/", h.createRaffle)
			r.Route("/{raffleID}", func(r chi.Router) {
				r.Get("/", h.getRaffle)
				r.Put("/", h.updateRaffle)
				r.Delete("/", h.deleteRaffle)
				r.Post("/finalize", h.setFinalized(true))
				r.Delete("/finalize", h.setFinalized(false))
				r.Post("/entries", h.addEntry)
				r.Put("/entries/{entryID}", h.updateEntry)
				r.Delete("/entries/{entryID}", h.deleteEntry)
				r.Post("/costs/{costID}/reimbursement", h.recordReimbursement)
				r.Delete("/costs/{costID}/reimbursement", h.clearReimbursement)
			})
		})
		r.Get("/history", h.listHistory)
		r.Get("/history/{logID}", h.getHistory)
		r.Post("/history/undo/{logID}", h.undo)
		r.Get("/reimbursements/pending", h.pendingReimbursements)
		r.Get("/archives", h.listArchives)
		r.Post("/archives", h.exportArchive)
		r.Get("/archives/{key}", h.downloadArchive)
	})
	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type discardLogger struct{}

func (discardLogger) Debug(string, ...any) {}
func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Warn(string, ...any)  {}
func (discardLogger) Error(string, ...any) {}
