package dispatch

import (
	"time"

	"github.com/goodimpact/backoffice-api/internal/domain/order"
)

// ETAProposal is an eta picked by the operator. Touched is false when the operator
// left the suggested value as it was.
type ETAProposal struct {
	ETA     time.Time `json:"eta"`
	Touched bool      `json:"eta_touched"`
}

// leadBase is the instant the lead time is measured from: the later of now and the
// order's requested time (pending) or current eta (confirmed).
func leadBase(o *order.Order, now time.Time) time.Time {
	var ref *time.Time
	switch o.Status {
	case order.StatusPending:
		ref = o.RequestedReadyAt
	case order.StatusConfirmed:
		ref = o.ETA
	}
	if ref != nil && ref.After(now) {
		return *ref
	}
	return now
}

// MinimumETA is the earliest eta the gate accepts for o
func MinimumETA(o *order.Order, now time.Time, offsets Offsets) time.Time {
	return leadBase(o, now).Add(offsets.For(o.Mode))
}

// SuggestedETA is the default offered to the operator: the minimum eta rounded up to the minute
func SuggestedETA(o *order.Order, now time.Time, offsets Offsets) time.Time {
	minETA := MinimumETA(o, now, offsets)
	suggested := minETA.Truncate(time.Minute)
	if suggested.Before(minETA) {
		suggested = suggested.Add(time.Minute)
	}
	return suggested
}

// CheckLeadTime validates an eta proposal for a pending (accept) or confirmed (re-confirm) order.
//
// A pending order without a requested time only needs a touched eta after it was sent.
// Leaving a confirmed order's eta untouched keeps the current one and always passes.
func CheckLeadTime(o *order.Order, p ETAProposal, now time.Time, offsets Offsets) error {
	switch o.Status {
	case order.StatusPending:
		if o.RequestedReadyAt == nil {
			if p.Touched && p.ETA.After(o.SentAt) {
				return nil
			}
			return ErrLeadTimeNotMet
		}
	case order.StatusConfirmed:
		if !p.Touched {
			return nil
		}
	default:
		return order.ErrNotReschedulable
	}

	if p.ETA.Before(MinimumETA(o, now, offsets)) {
		return ErrLeadTimeNotMet
	}
	return nil
}
