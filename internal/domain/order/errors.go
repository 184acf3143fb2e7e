package order

import "errors"

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrInvalidStatus        = errors.New("invalid order status")
	ErrTransitionNotAllowed = errors.New("status transition not allowed")
	ErrVersionConflict      = errors.New("order was modified concurrently")
	ErrETARequired          = errors.New("eta is required to confirm an order")
	ErrNotReschedulable     = errors.New("eta can only be changed on a confirmed order")
	ErrInternal             = errors.New("internal error")
)
