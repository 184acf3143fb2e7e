package order

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/goodimpact/backoffice-api/internal/domain/points"
	"github.com/goodimpact/backoffice-api/internal/middleware"
	"github.com/goodimpact/backoffice-api/internal/pkg/errorhandler"
	"github.com/goodimpact/backoffice-api/internal/pkg/response"
	"github.com/goodimpact/backoffice-api/internal/pkg/validator"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Detail handles GET /admin/orders/{id}
func (h *Handler) Detail(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid order ID")
		return
	}

	o, items, err := h.service.Get(r.Context(), id)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	response.OK(w, OrderResponseFromEntity(o, items))
}

// UpdateStatus handles PATCH /admin/orders/{id}/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid order ID")
		return
	}

	var req UpdateStatusRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidation(r.Context(), w, errs)
		return
	}

	o, err := h.service.Transition(r.Context(), id, Status(req.Status), TransitionInput{
		Reason:          req.Reason,
		TrackingNumber:  req.TrackingNumber,
		ShippingCarrier: req.ShippingCarrier,
		ETA:             req.ETA,
		ExpectedVersion: req.ExpectedVersion,
		Actor:           middleware.GetUserID(r.Context()),
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"order": OrderResponseFromEntity(o, nil),
	})
}

// WriteError maps engine errors onto the response envelope
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var terr *TransitionError
	switch {
	case errors.Is(err, ErrOrderNotFound):
		response.NotFound(w, "Order not found")
	case errors.Is(err, ErrInvalidStatus):
		response.BadRequest(w, "Invalid order status")
	case errors.As(err, &terr):
		response.Error(w, http.StatusConflict, "TRANSITION_NOT_ALLOWED", terr.Error())
	case errors.Is(err, ErrVersionConflict),
		errors.Is(err, points.ErrConcurrentUpdate),
		errors.Is(err, points.ErrDuplicateEntry):
		response.Error(w, http.StatusConflict, "VERSION_CONFLICT", "Order was modified by someone else, reload and retry")
	case errors.Is(err, points.ErrReferenceConflict):
		response.Error(w, http.StatusConflict, "REFUND_CONFLICT", "A different refund is already recorded for this order")
	case errors.Is(err, ErrETARequired):
		response.BadRequest(w, "eta is required to confirm an order")
	case errors.Is(err, ErrNotReschedulable):
		response.Error(w, http.StatusConflict, "TRANSITION_NOT_ALLOWED", "eta can only be changed on a confirmed order")
	default:
		errorhandler.HandleInternal(r.Context(), w, err)
	}
}

// AdminRoutes mounts under /admin/orders
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{id}", h.Detail)
	r.Patch("/{id}/status", h.UpdateStatus)
	return r
}
