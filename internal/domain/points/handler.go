package points

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/goodimpact/backoffice-api/internal/middleware"
	"github.com/goodimpact/backoffice-api/internal/pkg/errorhandler"
	"github.com/goodimpact/backoffice-api/internal/pkg/response"
	"github.com/goodimpact/backoffice-api/internal/pkg/validator"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Balance handles GET /points/balance
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}
	h.writeBalance(w, r, userID)
}

// Transactions handles GET /points/transactions
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}
	h.writeHistory(w, r, userID)
}

// UserBalance handles GET /admin/users/{id}/points
func (h *Handler) UserBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}
	h.writeBalance(w, r, userID)
}

// UserTransactions handles GET /admin/users/{id}/points/transactions
func (h *Handler) UserTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}
	h.writeHistory(w, r, userID)
}

// Adjust handles POST /admin/users/{id}/points/adjust
func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	var req AdjustRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidation(r.Context(), w, errs)
		return
	}

	adminID := middleware.GetUserID(r.Context())
	res, err := h.svc.AdminAdjust(r.Context(), adminID, userID, req.Amount, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.OK(w, AdjustResponse{UserID: userID, EntryID: res.EntryID, NewBalance: res.NewBalance})
}

// Audit handles GET /admin/users/{id}/points/audit
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}
	report, err := h.svc.Audit(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, report)
}

func (h *Handler) writeBalance(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	balance, err := h.svc.Balance(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, BalanceResponse{UserID: userID, Balance: balance})
}

func (h *Handler) writeHistory(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	entries, total, err := h.svc.History(r.Context(), userID, limit, offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]EntryResponse, len(entries))
	for i := range entries {
		items[i] = EntryResponseFromEntity(&entries[i])
	}
	response.WithMeta(w, items, response.Meta{
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasNext: offset+len(items) < total,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrUserNotFound):
		response.NotFound(w, "User not found")
	case errors.Is(err, ErrInvalidAmount):
		response.BadRequest(w, "amount must be non-zero")
	case errors.Is(err, ErrInsufficientPoints):
		response.Unprocessable(w, "INSUFFICIENT_POINTS", "Adjustment would make the balance negative")
	case errors.Is(err, ErrConcurrentUpdate), errors.Is(err, ErrDuplicateEntry):
		response.Conflict(w, "Balance changed concurrently, retry")
	default:
		errorhandler.HandleInternal(r.Context(), w, err)
	}
}

func parseUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid user ID")
		return uuid.Nil, false
	}
	return id, true
}

// Routes mounts the customer-facing points endpoints
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/balance", h.Balance)
	r.Get("/transactions", h.Transactions)
	return r
}

// AdminRoutes mounts under /admin/users/{id}/points
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.UserBalance)
	r.Get("/transactions", h.UserTransactions)
	r.Get("/audit", h.Audit)
	r.Post("/adjust", h.Adjust)
	return r
}
