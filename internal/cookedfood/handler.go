package cookedfood

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/campus-ops/campus-ops/internal/platform/httpx"
	"github.com/campus-ops/campus-ops/internal/shared"
)

// Handler wires HTTP endpoints for the cooked-food tracker.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the cooked-food handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers cooked-food routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/names", h.handleListNames)
	r.Post("/names", h.handleCreateName)
	r.Patch("/names/{id}", h.handleToggleName)
	r.Get("/batches", h.handleListBatches)
	r.Post("/batches", h.handlePrepare)
	r.Get("/batches/{id}", h.handleGetBatch)
	r.Post("/batches/{id}/quantities", h.handleQuantities)
	r.Delete("/batches/{id}", h.handleDeleteBatch)
}

type createNameRequest struct {
	Name string `json:"name" validate:"required"`
}

type toggleNameRequest struct {
	Active bool `json:"active"`
}

type prepareRequest struct {
	CookedFoodNameID   int64   `json:"cooked_food_name_id" validate:"required"`
	PreparedQuantityKg float64 `json:"prepared_quantity_kg" validate:"required,gt=0"`
	PreparationDate    string  `json:"preparation_date"`
}

type quantitiesRequest struct {
	SoldQuantityKg     *float64 `json:"sold_quantity_kg"`
	LeftoverQuantityKg *float64 `json:"leftover_quantity_kg"`
}

func (h *Handler) handleCreateName(w http.ResponseWriter, r *http.Request) {
	var req createNameRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.CreateName(r.Context(), req.Name, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, "create cooked food name", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) handleListNames(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	names, err := h.service.ListNames(r.Context(), activeOnly)
	if err != nil {
		h.respondError(w, "list cooked food names", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": names})
}

func (h *Handler) handleToggleName(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	var req toggleNameRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	if err := h.service.SetNameActive(r.Context(), id, req.Active, shared.ActorFromContext(r.Context())); err != nil {
		h.respondError(w, "toggle cooked food name", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePrepare(w http.ResponseWriter, r *http.Request) {
	var req prepareRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := PrepareInput{
		CookedFoodNameID:   req.CookedFoodNameID,
		PreparedQuantityKg: req.PreparedQuantityKg,
		PreparedBy:         shared.ActorFromContext(r.Context()),
	}
	if req.PreparationDate != "" {
		date, err := time.Parse("2006-01-02", req.PreparationDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "preparation_date must be YYYY-MM-DD")
			return
		}
		input.PreparationDate = date
	}
	created, err := h.service.Prepare(r.Context(), input)
	if err != nil {
		h.respondError(w, "prepare batch", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) handleListBatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	pagination := shared.NewPagination(page, perPage, 0)
	filter := BatchFilter{
		Limit:  pagination.PerPage,
		Offset: pagination.Offset(),
	}
	if nameID, err := strconv.ParseInt(q.Get("cooked_food_name_id"), 10, 64); err == nil {
		filter.CookedFoodNameID = nameID
	}
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
	batches, total, err := h.service.ListBatches(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list batches", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      batches,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	b, err := h.service.GetBatch(r.Context(), id)
	if err != nil {
		h.respondError(w, "get batch", err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) handleQuantities(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	var req quantitiesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	updated, err := h.service.RecordSaleOrLeftover(r.Context(), id, QuantityInput{
		SoldQuantityKg:     req.SoldQuantityKg,
		LeftoverQuantityKg: req.LeftoverQuantityKg,
		ActorID:            shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, "record quantities", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	if err := h.service.DeleteBatch(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.respondError(w, "delete batch", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", shared.UserSafeMessage(err))
	case errors.Is(err, ErrDuplicateName):
		httpx.Problem(w, http.StatusConflict, "Duplicate Name", shared.UserSafeMessage(err))
	case errors.Is(err, ErrQuantityExceeded):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Quantity Exceeded", shared.UserSafeMessage(err))
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
