package order

import (
	"time"

	"github.com/google/uuid"
)

// Status represents an order's lifecycle stage
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// ActiveStatuses are the non-terminal statuses an operator still works on
var ActiveStatuses = []Status{StatusPending, StatusConfirmed, StatusProcessing, StatusShipped}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped,
		StatusDelivered, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusRefunded
}

// Mode is the fulfilment mode chosen at checkout
type Mode string

const (
	ModeDelivery Mode = "Delivery"
	ModeTakeaway Mode = "Takeaway"
)

// Order is a customer order (matches orders table)
type Order struct {
	ID     uuid.UUID `db:"id"`
	ShopID uuid.UUID `db:"shop_id"`
	UserID uuid.UUID `db:"user_id"`

	Status      Status `db:"status"`
	Mode        Mode   `db:"mode"`
	TotalPoints int64  `db:"total_points"`

	RequestedReadyAt *time.Time `db:"requested_ready_at"`
	SentAt           time.Time  `db:"sent_at"`
	ETA              *time.Time `db:"eta"`

	AdminNotes      string `db:"admin_notes"`
	TrackingNumber  string `db:"tracking_number"`
	ShippingCarrier string `db:"shipping_carrier"`

	Version   int64     `db:"version"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Item is a line of an order
type Item struct {
	ID          uuid.UUID `db:"id"`
	OrderID     uuid.UUID `db:"order_id"`
	ProductName string    `db:"product_name"`
	Quantity    int       `db:"quantity"`
	UnitPoints  int64     `db:"unit_points"`
}

// OperatorLabel is the name shown to shop operators for the current stage
func (o *Order) OperatorLabel() string {
	return Label(o.Status, o.Mode)
}

// Label names a status the way the operator screen does; shipped depends on mode.
func Label(s Status, m Mode) string {
	switch s {
	case StatusPending:
		return "New"
	case StatusConfirmed:
		return "Accepted"
	case StatusProcessing:
		return "Preparing"
	case StatusShipped:
		if m == ModeTakeaway {
			return "Ready"
		}
		return "Delivering"
	case StatusDelivered:
		return "Delivered"
	case StatusCancelled:
		return "Cancelled"
	case StatusRefunded:
		return "Refunded"
	}
	return string(s)
}

// OrderChanged is emitted after a status or ETA change is committed
type OrderChanged struct {
	ShopID  uuid.UUID `json:"shop_id"`
	OrderID uuid.UUID `json:"order_id"`
	Status  Status    `json:"status"`
	Version int64     `json:"version"`
}
