package dispatch

import "errors"

var (
	// ErrLeadTimeNotMet is returned when a proposed eta is too early to commit
	ErrLeadTimeNotMet = errors.New("eta does not meet the minimum lead time")

	ErrInvalidAdvance = errors.New("advance target must be the next fulfilment step")
)
