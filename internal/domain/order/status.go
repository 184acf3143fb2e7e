package order

import "fmt"

var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusRefunded},
	StatusShipped:    {StatusDelivered, StatusRefunded},
}

// CanTransition reports whether from -> to is an edge of the order lifecycle
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses returns the allowed targets from s
func NextStatuses(s Status) []Status {
	return append([]Status(nil), transitions[s]...)
}

// RefundsPoints reports whether moving from -> to returns the order total to its owner.
// Refusing a pending order does not: nothing was settled yet.
func RefundsPoints(from, to Status) bool {
	switch to {
	case StatusCancelled:
		return from == StatusConfirmed
	case StatusRefunded:
		return from == StatusProcessing || from == StatusShipped
	}
	return false
}

// TransitionError is returned for an edge outside the lifecycle graph
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s -> %s not allowed", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrTransitionNotAllowed
}
