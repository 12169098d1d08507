package requisition

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/campus-ops/campus-ops/internal/foodstuff"
	"github.com/campus-ops/campus-ops/internal/observability"
	"github.com/campus-ops/campus-ops/internal/platform/httpx"
	"github.com/campus-ops/campus-ops/internal/shared"
)

// Handler wires HTTP endpoints for the requisition workflow.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	metrics  *observability.Metrics
}

// NewHandler constructs the requisition handler.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), metrics: metrics}
}

// MountRoutes registers requisition routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDelete)
	r.Post("/{id}/approve", h.handleApprove)
	r.Post("/{id}/reject", h.handleReject)
	r.Post("/{id}/fulfill", h.handleFulfill)
}

type itemRequest struct {
	FoodstuffID       int64   `json:"foodstuff_id" validate:"required"`
	RequestedQuantity float64 `json:"requested_quantity" validate:"required,gt=0"`
	Notes             string  `json:"notes"`
}

type createRequest struct {
	CookedFoodNameID int64         `json:"cooked_food_name_id" validate:"required"`
	Priority         string        `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	RequiredDate     string        `json:"required_date"`
	Items            []itemRequest `json:"items" validate:"required,min=1,dive"`
}

type approveRequest struct {
	Quantities map[int64]float64 `json:"quantities"`
	Note       string            `json:"note"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type fulfillRequest struct {
	Quantities map[int64]float64 `json:"quantities"`
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
	input := CreateInput{
		CookedFoodNameID: req.CookedFoodNameID,
		RequestedBy:      shared.ActorFromContext(r.Context()),
		Priority:         Priority(req.Priority),
		Items:            toItemInputs(req.Items),
	}
	if req.RequiredDate != "" {
		date, err := time.Parse("2006-01-02", req.RequiredDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "required_date must be YYYY-MM-DD")
			return
		}
		input.RequiredDate = date
	}
	created, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, "create requisition", err)
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
		Status: Status(q.Get("status")),
		Limit:  pagination.PerPage,
		Offset: pagination.Offset(),
	}
	if nameID, err := strconv.ParseInt(q.Get("cooked_food_name_id"), 10, 64); err == nil {
		filter.CookedFoodNameID = nameID
	}
	items, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list requisitions", err)
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
	req, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get requisition", err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := UpdateInput{
		CookedFoodNameID: req.CookedFoodNameID,
		Priority:         Priority(req.Priority),
		Items:            toItemInputs(req.Items),
		ActorID:          shared.ActorFromContext(r.Context()),
	}
	if req.RequiredDate != "" {
		date, err := time.Parse("2006-01-02", req.RequiredDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "required_date must be YYYY-MM-DD")
			return
		}
		input.RequiredDate = date
	}
	updated, err := h.service.Update(r.Context(), id, input)
	if err != nil {
		h.respondError(w, "update requisition", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	if err := h.service.Delete(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.respondError(w, "delete requisition", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	var req approveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	approved, err := h.service.Approve(r.Context(), id, ApproveInput{
		ActorID:    shared.ActorFromContext(r.Context()),
		Quantities: req.Quantities,
		Note:       req.Note,
	})
	if err != nil {
		h.respondError(w, "approve requisition", err)
		return
	}
	h.metrics.ObserveTransition(string(StatusApproved))
	httpx.JSON(w, http.StatusOK, approved)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rejected, err := h.service.Reject(r.Context(), id, shared.ActorFromContext(r.Context()), req.Reason)
	if err != nil {
		h.respondError(w, "reject requisition", err)
		return
	}
	h.metrics.ObserveTransition(string(StatusRejected))
	httpx.JSON(w, http.StatusOK, rejected)
}

func (h *Handler) handleFulfill(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be an integer")
		return
	}
	// The body is optional: without overrides every item ships at its
	// approved quantity.
	var req fulfillRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	fulfilled, err := h.service.Fulfill(r.Context(), id, FulfillInput{
		ActorID:    shared.ActorFromContext(r.Context()),
		Quantities: req.Quantities,
	})
	if err != nil {
		h.respondError(w, "fulfill requisition", err)
		return
	}
	h.metrics.ObserveTransition(string(StatusFulfilled))
	httpx.JSON(w, http.StatusOK, fulfilled)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", shared.UserSafeMessage(err))
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", shared.UserSafeMessage(err))
	case errors.Is(err, ErrCannotDelete):
		httpx.Problem(w, http.StatusConflict, "Cannot Delete", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Already Processed", shared.UserSafeMessage(err))
	case errors.Is(err, foodstuff.ErrInsufficientStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", shared.UserSafeMessage(err))
	case errors.Is(err, ErrValidation), errors.Is(err, foodstuff.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", shared.UserSafeMessage(err))
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func toItemInputs(items []itemRequest) []ItemInput {
	out := make([]ItemInput, 0, len(items))
	for _, item := range items {
		out = append(out, ItemInput{
			FoodstuffID:       item.FoodstuffID,
			RequestedQuantity: item.RequestedQuantity,
			Notes:             item.Notes,
		})
	}
	return out
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
