package investment

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/goodimpact/backoffice-api/internal/domain/points"
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

// CreateAdoption handles POST /investments/adoptions
func (h *Handler) CreateAdoption(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req CreateAdoptionRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidation(r.Context(), w, errs)
		return
	}

	res, err := h.svc.CreateAdoption(r.Context(), userID, AdoptionInput{
		ProjectID:       uuid.MustParse(req.ProjectID),
		Type:            Type(req.Type),
		EURAmount:       req.EURAmount,
		Partner:         req.Partner,
		BonusPercentage: req.BonusPercentage,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrProjectNotFound):
			response.NotFound(w, "Project not found")
		case errors.Is(err, ErrProjectInactive):
			response.Conflict(w, "Project is not accepting investments")
		case errors.Is(err, ErrInvalidAmount):
			response.ValidationError(w, map[string]string{"eur_amount": "Must be a positive amount up to 1000000 with at most 2 decimals"})
		case errors.Is(err, ErrAmountTooSmall):
			response.Unprocessable(w, "AMOUNT_TOO_SMALL", "Amount is too small to earn points")
		case errors.Is(err, points.ErrUserNotFound):
			response.NotFound(w, "User not found")
		default:
			errorhandler.HandleInternal(r.Context(), w, err)
		}
		return
	}

	response.Created(w, AdoptionResponse{
		InvestmentID: res.Investment.ID,
		PointsEarned: res.Investment.PointsEarned,
		BalanceAfter: res.BalanceAfter,
	})
}

// List handles GET /investments
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	items, err := h.svc.List(r.Context(), userID, limit, offset)
	if err != nil {
		errorhandler.HandleInternal(r.Context(), w, err)
		return
	}

	resp := make([]InvestmentResponse, len(items))
	for i := range items {
		resp[i] = InvestmentResponseFromEntity(&items[i])
	}
	response.OK(w, resp)
}

// Routes mounts at /investments
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/", h.List)
	r.Post("/adoptions", h.CreateAdoption)
	return r
}
