package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/campus-ops/campus-ops/internal/cookedfood"
	"github.com/campus-ops/campus-ops/internal/foodstuff"
	"github.com/campus-ops/campus-ops/internal/observability"
	"github.com/campus-ops/campus-ops/internal/reporting"
	"github.com/campus-ops/campus-ops/internal/requisition"
	"github.com/campus-ops/campus-ops/jobs"
)

// ReportInvalidator bumps the reporting cache after write traffic.
type ReportInvalidator interface {
	Invalidate(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	FoodstuffHandler   *foodstuff.Handler
	RequisitionHandler *requisition.Handler
	CookedFoodHandler  *cookedfood.Handler
	ReportingHandler   *reporting.Handler
	JobHandler         *jobs.Handler
	Invalidator        ReportInvalidator
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
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

	// Writes through any module invalidate the cached reports.
	bump := invalidateOnWrite(params.Logger, params.Invalidator)

	r.Route("/foodstuffs", func(r chi.Router) {
		r.Use(bump)
		params.FoodstuffHandler.MountRoutes(r)
	})
	r.Route("/requisitions", func(r chi.Router) {
		r.Use(bump)
		params.RequisitionHandler.MountRoutes(r)
	})
	r.Route("/cooked-food", func(r chi.Router) {
		r.Use(bump)
		params.CookedFoodHandler.MountRoutes(r)
	})
	r.Route("/reports", params.ReportingHandler.MountRoutes)
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

type statusCapture struct {
	http.ResponseWriter
	status int
}

func (w *statusCapture) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func invalidateOnWrite(logger *slog.Logger, invalidator ReportInvalidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if invalidator == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			capture := &statusCapture{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(capture, r)
			if capture.status < 400 {
				if err := invalidator.Invalidate(r.Context()); err != nil {
					logger.Warn("invalidate report cache", slog.Any("error", err))
				}
			}
		})
	}
}
