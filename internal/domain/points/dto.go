package points

import (
	"time"

	"github.com/google/uuid"
)

// AdjustRequest is the admin body for a manual balance correction
type AdjustRequest struct {
	Amount int64  `json:"amount" validate:"required"`
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

type BalanceResponse struct {
	UserID  uuid.UUID `json:"user_id"`
	Balance int64     `json:"balance"`
}

type AdjustResponse struct {
	UserID     uuid.UUID `json:"user_id"`
	EntryID    uuid.UUID `json:"entry_id"`
	NewBalance int64     `json:"new_balance"`
}

type EntryResponse struct {
	ID            uuid.UUID `json:"id"`
	Seq           int64     `json:"seq"`
	Type          EntryType `json:"type"`
	Amount        int64     `json:"amount"`
	BalanceAfter  int64     `json:"balance_after"`
	ReferenceType string    `json:"reference_type,omitempty"`
	ReferenceID   string    `json:"reference_id,omitempty"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
}

func EntryResponseFromEntity(e *Entry) EntryResponse {
	resp := EntryResponse{
		ID:           e.ID,
		Seq:          e.Seq,
		Type:         e.Type,
		Amount:       e.Amount,
		BalanceAfter: e.BalanceAfter,
		Description:  e.Description,
		CreatedAt:    e.CreatedAt,
	}
	if e.ReferenceType != nil {
		resp.ReferenceType = *e.ReferenceType
	}
	if e.ReferenceID != nil {
		resp.ReferenceID = *e.ReferenceID
	}
	return resp
}
