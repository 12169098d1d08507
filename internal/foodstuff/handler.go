package foodstuff

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/campus-ops/campus-ops/internal/observability"
	"github.com/campus-ops/campus-ops/internal/platform/httpx"
	"github.com/campus-ops/campus-ops/internal/shared"
)

// Handler wires HTTP endpoints for the stock ledger module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	metrics  *observability.Metrics
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), metrics: metrics}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/alerts", h.handleAlerts)
	r.Get("/{id}", h.handleGet)
	r.Delete("/{id}", h.handleDelete)
	r.Get("/{id}/activities", h.handleListActivities)
	r.Post("/{id}/activities", h.handleAddActivity)
}

type createRequest struct {
	Name            string  `json:"name" validate:"required"`
	Unit            string  `json:"unit" validate:"required"`
	InitialQuantity float64 `json:"initial_quantity" validate:"gte=0"`
	StoreType       string  `json:"store_type" validate:"required"`
}

type activityRequest struct {
	ActionType       string  `json:"action_type" validate:"required,oneof=purchase usage wastage correction"`
	QuantityChanged  float64 `json:"quantity_changed" validate:"required"`
	Reason           string  `json:"reason" validate:"required"`
	UnitCost         float64 `json:"unit_cost" validate:"gte=0"`
	TotalCost        float64 `json:"total_cost" validate:"gte=0"`
	CookedFoodNameID int64   `json:"cooked_food_name_id"`
	DoneBy           int64   `json:"done_by"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), CreateInput{
		Name:            req.Name,
		Unit:            req.Unit,
		InitialQuantity: req.InitialQuantity,
		StoreType:       req.StoreType,
		ActorID:         shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, "create foodstuff", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	pagination := shared.NewPagination(page, perPage, 0)
	filter := Filter{
		Query:     q.Get("q"),
		StoreType: q.Get("store_type"),
		Limit:     pagination.PerPage,
		Offset:    pagination.Offset(),
	}
	items, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list foodstuffs", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	f, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get foodstuff", err)
		return
	}
	httpx.JSON(w, http.StatusOK, f)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	if err := h.service.Delete(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.respondError(w, "delete foodstuff", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAddActivity(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	var req activityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := req.DoneBy
	if actor == 0 {
		actor = shared.ActorFromContext(r.Context())
	}
	updated, activity, err := h.service.AddActivity(r.Context(), ActivityInput{
		FoodstuffID:      id,
		Action:           ActionType(req.ActionType),
		QuantityChanged:  req.QuantityChanged,
		Reason:           req.Reason,
		ActorID:          actor,
		UnitCost:         req.UnitCost,
		TotalCost:        req.TotalCost,
		CookedFoodNameID: req.CookedFoodNameID,
	})
	if err != nil {
		h.respondError(w, "post activity", err)
		return
	}
	h.metrics.ObserveActivity(req.ActionType)
	httpx.JSON(w, http.StatusCreated, map[string]any{"foodstuff": updated, "activity": activity})
}

func (h *Handler) handleListActivities(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	q := r.URL.Query()
	filter := ActivityFilter{FoodstuffID: id, Action: ActionType(q.Get("action_type"))}
	if from := q.Get("from"); from != "" {
		if t, err := time.Parse("2006-01-02", from); err == nil {
			filter.From = t
		}
	}
	if to := q.Get("to"); to != "" {
		if t, err := time.Parse("2006-01-02", to); err == nil {
			filter.To = t.Add(24*time.Hour - time.Nanosecond)
		}
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = limit
	}
	activities, err := h.service.ListActivities(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list activities", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": activities})
}

func (h *Handler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.service.StockAlerts(r.Context())
	if err != nil {
		h.respondError(w, "stock alerts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": alerts})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", shared.UserSafeMessage(err))
	case errors.Is(err, ErrDuplicateName):
		httpx.Problem(w, http.StatusConflict, "Duplicate Name", shared.UserSafeMessage(err))
	case errors.Is(err, ErrHasHistory):
		httpx.Problem(w, http.StatusConflict, "Has History", shared.UserSafeMessage(err))
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", shared.UserSafeMessage(err))
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", shared.UserSafeMessage(err))
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
