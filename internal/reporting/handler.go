package reporting

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/campus-ops/campus-ops/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the reporting read model.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the reporting handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers reporting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/dashboard", h.handleDashboard)
	r.Get("/stock-alerts", h.handleStockAlerts)
	r.Get("/stock-levels", h.handleStockLevels)
	r.Get("/purchases", h.handlePurchases)
	r.Get("/usage", h.handleUsage)
	r.Get("/wastage", h.handleWastage)
	r.Get("/usage-vs-wastage", h.handleUsageVsWastage)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.service.Dashboard(r.Context())
	if err != nil {
		h.fail(w, "dashboard report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, dashboard)
}

func (h *Handler) handleStockAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.service.StockAlerts(r.Context())
	if err != nil {
		h.fail(w, "stock alerts report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": alerts})
}

func (h *Handler) handleStockLevels(w http.ResponseWriter, r *http.Request) {
	levels, err := h.service.StockLevels(r.Context())
	if err != nil {
		h.fail(w, "stock levels report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": levels})
}

func (h *Handler) handlePurchases(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Purchases(r.Context(), parseWindow(r))
	if err != nil {
		h.fail(w, "purchases report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": rows})
}

func (h *Handler) handleUsage(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Usage(r.Context(), parseWindow(r))
	if err != nil {
		h.fail(w, "usage report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": rows})
}

func (h *Handler) handleWastage(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Wastage(r.Context(), parseWindow(r))
	if err != nil {
		h.fail(w, "wastage report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": rows})
}

func (h *Handler) handleUsageVsWastage(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.UsageVsWastage(r.Context(), parseWindow(r))
	if err != nil {
		h.fail(w, "usage vs wastage report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

func parseWindow(r *http.Request) Window {
	var w Window
	q := r.URL.Query()
	if from := q.Get("from"); from != "" {
		if t, err := time.Parse("2006-01-02", from); err == nil {
			w.From = t
		}
	}
	if to := q.Get("to"); to != "" {
		if t, err := time.Parse("2006-01-02", to); err == nil {
			w.To = t.Add(24*time.Hour - time.Nanosecond)
		}
	}
	return w
}
