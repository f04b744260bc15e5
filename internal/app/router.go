package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/moneymint/moneymint/internal/auth"
	"github.com/moneymint/moneymint/internal/ledger"
	"github.com/moneymint/moneymint/internal/observability"
	"github.com/moneymint/moneymint/jobs"
	"github.com/moneymint/moneymint/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger        *slog.Logger
	Config        *Config
	LedgerHandler *ledger.Handler
	ReportHandler *report.Handler
	JobHandler    *jobs.Handler
	Metrics       *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults. Everything
// under /api and /report requires the verified owner header; health and
// metrics endpoints stay open for probes and scrapers.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	ownerHeader := ""
	if params.Config != nil {
		ownerHeader = params.Config.OwnerHeader
	}
	r.Group(func(r chi.Router) {
		r.Use(auth.OwnerIdentity(ownerHeader))
		if params.LedgerHandler != nil {
			r.Route("/api", params.LedgerHandler.MountRoutes)
		}
		if params.ReportHandler != nil {
			r.Route("/report", params.ReportHandler.MountRoutes)
		}
	})

	return r
}
