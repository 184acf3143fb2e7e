package dispatch

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/goodimpact/backoffice-api/internal/domain/order"
	"github.com/goodimpact/backoffice-api/internal/middleware"
	"github.com/goodimpact/backoffice-api/internal/pkg/errorhandler"
	"github.com/goodimpact/backoffice-api/internal/pkg/logger"
	"github.com/goodimpact/backoffice-api/internal/pkg/response"
	"github.com/goodimpact/backoffice-api/internal/pkg/validator"
)

// ETARequest is the body of accept and eta
type ETARequest struct {
	ETA        time.Time `json:"eta" validate:"required"`
	ETATouched bool      `json:"eta_touched"`
}

// ReasonRequest is the body of refuse and cancel
type ReasonRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// AdvanceRequest is the body of advance
type AdvanceRequest struct {
	Status string `json:"status" validate:"required,order_status"`
}

// CommitResponse is returned after an operator action: the changed order and what to show next
type CommitResponse struct {
	Order *OrderView `json:"order"`
	Next  Action     `json:"next"`
}

type Handler struct {
	surface      *Surface
	hub          *Hub
	lister       OrderLister
	scanInterval time.Duration
	upgrader     websocket.Upgrader
}

// NewHandler creates the operator dispatch handler
func NewHandler(surface *Surface, hub *Hub, lister OrderLister, scanInterval time.Duration, allowedOrigins []string) *Handler {
	return &Handler{
		surface:      surface,
		hub:          hub,
		lister:       lister,
		scanInterval: scanInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowedOrigins) == 0 {
					return true
				}
				for _, allowed := range allowedOrigins {
					if origin == allowed {
						return true
					}
				}
				log.Warn().Str("origin", origin).Msg("WebSocket origin rejected")
				return false
			},
		},
	}
}

// Next handles GET /shops/{shopID}/dispatch/next
func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	shopID, ok := parseParam(w, r, "shopID", "Invalid shop ID")
	if !ok {
		return
	}

	action, err := h.surface.Next(r.Context(), shopID)
	if err != nil {
		errorhandler.HandleInternal(r.Context(), w, err)
		return
	}
	response.OK(w, action)
}

// Accept handles POST /shops/{shopID}/orders/{id}/accept
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	var req ETARequest
	h.commit(w, r, &req, func(ctx context.Context, shopID, orderID, actor uuid.UUID) (*order.Order, error) {
		return h.surface.Accept(ctx, shopID, orderID, ETAProposal{ETA: req.ETA, Touched: req.ETATouched}, actor)
	})
}

// Refuse handles POST /shops/{shopID}/orders/{id}/refuse
func (h *Handler) Refuse(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	h.commit(w, r, &req, func(ctx context.Context, shopID, orderID, actor uuid.UUID) (*order.Order, error) {
		return h.surface.Refuse(ctx, shopID, orderID, req.Reason, actor)
	})
}

// Advance handles POST /shops/{shopID}/orders/{id}/advance
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	var req AdvanceRequest
	h.commit(w, r, &req, func(ctx context.Context, shopID, orderID, actor uuid.UUID) (*order.Order, error) {
		return h.surface.Advance(ctx, shopID, orderID, order.Status(req.Status), actor)
	})
}

// UpdateETA handles POST /shops/{shopID}/orders/{id}/eta
func (h *Handler) UpdateETA(w http.ResponseWriter, r *http.Request) {
	var req ETARequest
	h.commit(w, r, &req, func(ctx context.Context, shopID, orderID, actor uuid.UUID) (*order.Order, error) {
		return h.surface.UpdateETA(ctx, shopID, orderID, ETAProposal{ETA: req.ETA, Touched: req.ETATouched}, actor)
	})
}

// Cancel handles POST /shops/{shopID}/orders/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	h.commit(w, r, &req, func(ctx context.Context, shopID, orderID, actor uuid.UUID) (*order.Order, error) {
		return h.surface.Cancel(ctx, shopID, orderID, req.Reason, actor)
	})
}

type commitFunc func(ctx context.Context, shopID, orderID, actor uuid.UUID) (*order.Order, error)

func (h *Handler) commit(w http.ResponseWriter, r *http.Request, req interface{}, fn commitFunc) {
	shopID, ok := parseParam(w, r, "shopID", "Invalid shop ID")
	if !ok {
		return
	}
	orderID, ok := parseParam(w, r, "id", "Invalid order ID")
	if !ok {
		return
	}

	if err := response.DecodeJSON(r.Body, req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		errorhandler.HandleValidation(r.Context(), w, errs)
		return
	}

	o, err := fn(r.Context(), shopID, orderID, middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := CommitResponse{Order: viewOf(o)}
	if next, err := h.surface.Next(r.Context(), shopID); err == nil {
		resp.Next = next
	} else {
		logger.FromContext(r.Context()).Warn().Err(err).Msg("Failed to compute next dispatch action")
	}
	response.OK(w, resp)
}

// WebSocket handles GET /shops/{shopID}/dispatch/ws
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	shopID, ok := parseParam(w, r, "shopID", "Invalid shop ID")
	if !ok {
		return
	}
	operatorID := middleware.GetUserID(r.Context())
	if operatorID == uuid.Nil {
		response.Unauthorized(w, "Authentication required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	l := logger.FromContext(r.Context()).With().
		Str("shop_id", shopID.String()).
		Str("operator_id", operatorID.String()).
		Logger()

	newSession(conn, shopID, operatorID, h.surface, h.hub, h.lister, h.scanInterval, l).Run(r.Context())
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrLeadTimeNotMet):
		response.Unprocessable(w, "LEAD_TIME_NOT_MET", "The chosen ETA is earlier than the minimum lead time")
	case errors.Is(err, ErrInvalidAdvance):
		response.BadRequest(w, "Advance target must be processing, shipped or delivered")
	default:
		order.WriteError(w, r, err)
	}
}

func parseParam(w http.ResponseWriter, r *http.Request, name, message string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		response.BadRequest(w, message)
		return uuid.Nil, false
	}
	return id, true
}

// Routes mounts under /shops/{shopID}; callers add auth and shop access middleware.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/dispatch/next", h.Next)
	r.Get("/dispatch/ws", h.WebSocket)
	r.Route("/orders/{id}", func(r chi.Router) {
		r.Post("/accept", h.Accept)
		r.Post("/refuse", h.Refuse)
		r.Post("/advance", h.Advance)
		r.Post("/eta", h.UpdateETA)
		r.Post("/cancel", h.Cancel)
	})
	return r
}
