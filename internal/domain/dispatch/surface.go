package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/goodimpact/backoffice-api/internal/domain/order"
)

// ActionKind is what the operator screen should show next
type ActionKind string

const (
	ActionNearETA        ActionKind = "near_eta"
	ActionAcceptOrRefuse ActionKind = "accept_or_refuse"
	ActionIdle           ActionKind = "idle"
)

// MenuStep is one stage of a mode's fulfilment menu
type MenuStep struct {
	Status  order.Status `json:"status"`
	Label   string       `json:"label"`
	Current bool         `json:"current"`
}

// Action is the single item an operator is asked to handle
type Action struct {
	Kind         ActionKind `json:"kind"`
	Order        *OrderView `json:"order,omitempty"`
	Menu         []MenuStep `json:"menu,omitempty"`
	SuggestedETA *time.Time `json:"suggested_eta,omitempty"`
	MinimumETA   *time.Time `json:"minimum_eta,omitempty"`
	PendingCount int        `json:"pending_count"`
	ActiveCount  int        `json:"active_count"`
}

// OrderView is the operator's view of an order
type OrderView struct {
	ID               uuid.UUID    `json:"id"`
	Status           order.Status `json:"status"`
	Label            string       `json:"label"`
	Mode             order.Mode   `json:"mode"`
	TotalPoints      int64        `json:"total_points"`
	RequestedReadyAt *time.Time   `json:"requested_ready_at,omitempty"`
	SentAt           time.Time    `json:"sent_at"`
	ETA              *time.Time   `json:"eta,omitempty"`
	Version          int64        `json:"version"`
}

func viewOf(o *order.Order) *OrderView {
	return &OrderView{
		ID:               o.ID,
		Status:           o.Status,
		Label:            o.OperatorLabel(),
		Mode:             o.Mode,
		TotalPoints:      o.TotalPoints,
		RequestedReadyAt: o.RequestedReadyAt,
		SentAt:           o.SentAt,
		ETA:              o.ETA,
		Version:          o.Version,
	}
}

// same reports whether two actions would render identically
func (a Action) same(b Action) bool {
	if a.Kind != b.Kind || a.PendingCount != b.PendingCount || a.ActiveCount != b.ActiveCount {
		return false
	}
	if a.Order == nil || b.Order == nil {
		return a.Order == nil && b.Order == nil
	}
	return a.Order.ID == b.Order.ID && a.Order.Version == b.Order.Version
}

var fulfilmentSteps = []order.Status{order.StatusConfirmed, order.StatusProcessing, order.StatusShipped}

// Menu returns the transition menu of a mode with current marked.
// Delivery reads Accepted, Preparing, Delivering; Takeaway ends in Ready.
func Menu(m order.Mode, current order.Status) []MenuStep {
	steps := make([]MenuStep, len(fulfilmentSteps))
	for i, s := range fulfilmentSteps {
		steps[i] = MenuStep{Status: s, Label: order.Label(s, m), Current: s == current}
	}
	return steps
}

// Engine is the order transition engine as seen by operators
type Engine interface {
	Get(ctx context.Context, id uuid.UUID) (*order.Order, []order.Item, error)
	ListActive(ctx context.Context, shopID uuid.UUID) ([]order.Order, error)
	Transition(ctx context.Context, id uuid.UUID, target order.Status, in order.TransitionInput) (*order.Order, error)
	Reschedule(ctx context.Context, id uuid.UUID, eta time.Time, in order.TransitionInput) (*order.Order, error)
}

// SurfaceConfig holds the operator surface settings
type SurfaceConfig struct {
	Offsets        Offsets
	NearETAEnabled bool
}

// Surface decides the next operator action and commits operator decisions through the engine
type Surface struct {
	engine Engine
	cfg    SurfaceConfig
	now    func() time.Time
}

func NewSurface(engine Engine, cfg SurfaceConfig) *Surface {
	return &Surface{engine: engine, cfg: cfg, now: time.Now}
}

// Decide picks the action for a shop's active orders (newest first)
func (s *Surface) Decide(active []order.Order, now time.Time) Action {
	return s.decide(active, FirstNearETA(active, now, s.cfg.Offsets), now)
}

func (s *Surface) decide(active []order.Order, near *order.Order, now time.Time) Action {
	var oldest *order.Order
	pending := 0
	for i := range active {
		o := &active[i]
		if o.Status != order.StatusPending {
			continue
		}
		pending++
		if oldest == nil || o.SentAt.Before(oldest.SentAt) {
			oldest = o
		}
	}

	action := Action{Kind: ActionIdle, PendingCount: pending, ActiveCount: len(active)}

	switch {
	case s.cfg.NearETAEnabled && near != nil:
		minETA := MinimumETA(near, now, s.cfg.Offsets)
		action.Kind = ActionNearETA
		action.Order = viewOf(near)
		action.Menu = Menu(near.Mode, near.Status)
		action.MinimumETA = &minETA
	case oldest != nil:
		suggested := SuggestedETA(oldest, now, s.cfg.Offsets)
		minETA := MinimumETA(oldest, now, s.cfg.Offsets)
		action.Kind = ActionAcceptOrRefuse
		action.Order = viewOf(oldest)
		action.SuggestedETA = &suggested
		action.MinimumETA = &minETA
	}
	return action
}

// Next loads the shop's active orders and decides the current action
func (s *Surface) Next(ctx context.Context, shopID uuid.UUID) (Action, error) {
	active, err := s.engine.ListActive(ctx, shopID)
	if err != nil {
		return Action{}, err
	}
	return s.Decide(active, s.now()), nil
}

// load fetches an order and hides orders of other shops
func (s *Surface) load(ctx context.Context, shopID, orderID uuid.UUID) (*order.Order, error) {
	o, _, err := s.engine.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.ShopID != shopID {
		return nil, order.ErrOrderNotFound
	}
	return o, nil
}

// Accept confirms a pending order with the proposed eta
func (s *Surface) Accept(ctx context.Context, shopID, orderID uuid.UUID, p ETAProposal, actor uuid.UUID) (*order.Order, error) {
	o, err := s.load(ctx, shopID, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == order.StatusConfirmed {
		return o, nil
	}
	if o.Status != order.StatusPending {
		return nil, &order.TransitionError{From: o.Status, To: order.StatusConfirmed}
	}
	if err := CheckLeadTime(o, p, s.now(), s.cfg.Offsets); err != nil {
		return nil, err
	}

	eta := p.ETA
	return s.engine.Transition(ctx, orderID, order.StatusConfirmed, order.TransitionInput{
		ETA:             &eta,
		ExpectedVersion: &o.Version,
		Actor:           actor,
	})
}

// Refuse cancels a pending order. Nothing was settled, so nothing is refunded.
func (s *Surface) Refuse(ctx context.Context, shopID, orderID uuid.UUID, reason string, actor uuid.UUID) (*order.Order, error) {
	o, err := s.load(ctx, shopID, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != order.StatusPending && o.Status != order.StatusCancelled {
		return nil, &order.TransitionError{From: o.Status, To: order.StatusCancelled}
	}
	return s.engine.Transition(ctx, orderID, order.StatusCancelled, order.TransitionInput{
		Reason:          optional(reason),
		ExpectedVersion: &o.Version,
		Actor:           actor,
	})
}

// Advance moves a confirmed order one fulfilment step forward (Preparing, Delivering/Ready, delivered)
func (s *Surface) Advance(ctx context.Context, shopID, orderID uuid.UUID, target order.Status, actor uuid.UUID) (*order.Order, error) {
	switch target {
	case order.StatusProcessing, order.StatusShipped, order.StatusDelivered:
	default:
		return nil, ErrInvalidAdvance
	}

	o, err := s.load(ctx, shopID, orderID)
	if err != nil {
		return nil, err
	}
	return s.engine.Transition(ctx, orderID, target, order.TransitionInput{
		ExpectedVersion: &o.Version,
		Actor:           actor,
	})
}

// UpdateETA re-confirms a confirmed order. An untouched proposal keeps the current eta.
func (s *Surface) UpdateETA(ctx context.Context, shopID, orderID uuid.UUID, p ETAProposal, actor uuid.UUID) (*order.Order, error) {
	o, err := s.load(ctx, shopID, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != order.StatusConfirmed {
		return nil, order.ErrNotReschedulable
	}
	if err := CheckLeadTime(o, p, s.now(), s.cfg.Offsets); err != nil {
		return nil, err
	}
	if !p.Touched {
		return o, nil
	}
	return s.engine.Reschedule(ctx, orderID, p.ETA, order.TransitionInput{
		ExpectedVersion: &o.Version,
		Actor:           actor,
	})
}

// Cancel cancels a confirmed order and refunds its total to the customer
func (s *Surface) Cancel(ctx context.Context, shopID, orderID uuid.UUID, reason string, actor uuid.UUID) (*order.Order, error) {
	o, err := s.load(ctx, shopID, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != order.StatusConfirmed && o.Status != order.StatusCancelled {
		return nil, &order.TransitionError{From: o.Status, To: order.StatusCancelled}
	}
	return s.engine.Transition(ctx, orderID, order.StatusCancelled, order.TransitionInput{
		Reason:          optional(reason),
		ExpectedVersion: &o.Version,
		Actor:           actor,
	})
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
