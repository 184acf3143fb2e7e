package investment

import "errors"

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrProjectInactive = errors.New("project is not accepting investments")
	ErrInvalidAmount   = errors.New("eur amount must be a positive decimal up to 1000000 with at most 2 fraction digits")
	// ErrAmountTooSmall is returned when the amount converts to zero points
	ErrAmountTooSmall = errors.New("amount earns no points")
	ErrInternal       = errors.New("internal error")
)
