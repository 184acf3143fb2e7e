package order

import (
	"time"

	"github.com/google/uuid"
)

// UpdateStatusRequest is the admin body of PATCH /admin/orders/{id}/status
type UpdateStatusRequest struct {
	Status          string     `json:"status" validate:"required,order_status"`
	Reason          *string    `json:"reason,omitempty" validate:"omitempty,max=1000"`
	TrackingNumber  *string    `json:"tracking_number,omitempty" validate:"omitempty,max=100"`
	ShippingCarrier *string    `json:"shipping_carrier,omitempty" validate:"omitempty,max=100"`
	ETA             *time.Time `json:"eta,omitempty"`
	ExpectedVersion *int64     `json:"expected_version,omitempty" validate:"omitempty,gte=1"`
}

type ItemResponse struct {
	ID          uuid.UUID `json:"id"`
	ProductName string    `json:"product_name"`
	Quantity    int       `json:"quantity"`
	UnitPoints  int64     `json:"unit_points"`
}

type OrderResponse struct {
	ID               uuid.UUID      `json:"id"`
	ShopID           uuid.UUID      `json:"shop_id"`
	UserID           uuid.UUID      `json:"user_id"`
	Status           Status         `json:"status"`
	Label            string         `json:"label"`
	Mode             Mode           `json:"mode"`
	TotalPoints      int64          `json:"total_points"`
	RequestedReadyAt *time.Time     `json:"requested_ready_at,omitempty"`
	SentAt           time.Time      `json:"sent_at"`
	ETA              *time.Time     `json:"eta,omitempty"`
	AdminNotes       string         `json:"admin_notes,omitempty"`
	TrackingNumber   string         `json:"tracking_number,omitempty"`
	ShippingCarrier  string         `json:"shipping_carrier,omitempty"`
	Version          int64          `json:"version"`
	NextStatuses     []Status       `json:"next_statuses"`
	Items            []ItemResponse `json:"items,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func OrderResponseFromEntity(o *Order, items []Item) OrderResponse {
	resp := OrderResponse{
		ID:               o.ID,
		ShopID:           o.ShopID,
		UserID:           o.UserID,
		Status:           o.Status,
		Label:            o.OperatorLabel(),
		Mode:             o.Mode,
		TotalPoints:      o.TotalPoints,
		RequestedReadyAt: o.RequestedReadyAt,
		SentAt:           o.SentAt,
		ETA:              o.ETA,
		AdminNotes:       o.AdminNotes,
		TrackingNumber:   o.TrackingNumber,
		ShippingCarrier:  o.ShippingCarrier,
		Version:          o.Version,
		NextStatuses:     NextStatuses(o.Status),
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
	for _, it := range items {
		resp.Items = append(resp.Items, ItemResponse{
			ID:          it.ID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPoints:  it.UnitPoints,
		})
	}
	return resp
}
