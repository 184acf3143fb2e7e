package investment

import (
	"time"

	"github.com/google/uuid"
)

// CreateAdoptionRequest is the body of POST /investments/adoptions
type CreateAdoptionRequest struct {
	ProjectID       string `json:"project_id" validate:"required,uuid"`
	Type            string `json:"type" validate:"required,investment_type"`
	EURAmount       string `json:"eur_amount" validate:"required,max=32"`
	Partner         string `json:"partner" validate:"max=200"`
	BonusPercentage int    `json:"bonus_percentage" validate:"gte=0,lte=100"`
}

type AdoptionResponse struct {
	InvestmentID uuid.UUID `json:"investment_id"`
	PointsEarned int64     `json:"points_earned"`
	BalanceAfter int64     `json:"balance_after"`
}

type InvestmentResponse struct {
	ID              uuid.UUID `json:"id"`
	ProjectID       uuid.UUID `json:"project_id"`
	Type            Type      `json:"type"`
	EURAmount       string    `json:"eur_amount"`
	Partner         string    `json:"partner,omitempty"`
	BonusPercentage int       `json:"bonus_percentage"`
	PointsEarned    int64     `json:"points_earned"`
	CreatedAt       time.Time `json:"created_at"`
}

func InvestmentResponseFromEntity(inv *Investment) InvestmentResponse {
	return InvestmentResponse{
		ID:              inv.ID,
		ProjectID:       inv.ProjectID,
		Type:            inv.Type,
		EURAmount:       inv.EURAmount.StringFixed(2),
		Partner:         inv.Partner,
		BonusPercentage: inv.BonusPercentage,
		PointsEarned:    inv.PointsEarned,
		CreatedAt:       inv.CreatedAt,
	}
}
